package api

import (
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"musescore-server/internal/jobs"
	"musescore-server/internal/models"
)

// formField is the multipart field carrying the MIDI upload.
const formField = "midi"

// multipartOverhead leaves room for boundaries and part headers on top of the file limit.
const multipartOverhead = 64 << 10

// ValidationError rejects an upload before any conversion is attempted.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

var (
	ErrMissingFile     = &ValidationError{Reason: "missing_file", Message: "MIDI file is required"}
	ErrFileTooLarge    = &ValidationError{Reason: "too_large", Message: "MIDI file exceeds the upload size limit"}
	ErrUnsupportedType = &ValidationError{Reason: "bad_type", Message: "only MIDI files (.mid, .midi) can be uploaded"}
	ErrMalformedForm   = &ValidationError{Reason: "bad_form", Message: "request is not a valid multipart form"}
)

var midiContentTypes = map[string]struct{}{
	"audio/midi":   {},
	"audio/x-midi": {},
	"audio/mid":    {},
	"audio/x-mid":  {},
}

// isMIDI accepts a part whose declared type is a MIDI type or whose name ends in .mid/.midi.
func isMIDI(filename, contentType string) bool {
	if mediaType, _, err := mime.ParseMediaType(contentType); err == nil {
		if _, ok := midiContentTypes[strings.ToLower(mediaType)]; ok {
			return true
		}
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".mid", ".midi":
		return true
	}
	return false
}

// generateFilename returns `{unix millis}-{random}.mid`.
func generateFilename(now time.Time) string {
	return fmt.Sprintf("%d-%d.mid", now.UnixMilli(), rand.Int64N(1_000_000_000))
}

// receiveUpload streams the `midi` part into the scratch directory. Type
// checks happen before anything touches disk; a part that overruns the size
// limit is deleted before returning.
func (h *Handler) receiveUpload(w http.ResponseWriter, r *http.Request) (*models.Upload, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUpload+multipartOverhead)

	reader, err := r.MultipartReader()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, ErrMissingFile
		}
		return nil, ErrMalformedForm
	}

	for {
		part, err := reader.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, ErrMissingFile
		}
		if err != nil {
			return nil, bodyError(err)
		}
		if part.FormName() != formField || part.FileName() == "" {
			part.Close()
			continue
		}
		defer part.Close()
		return h.stage(part)
	}
}

func (h *Handler) stage(part *multipart.Part) (*models.Upload, error) {
	original := filepath.Base(part.FileName())
	contentType := part.Header.Get("Content-Type")
	if !isMIDI(original, contentType) {
		return nil, ErrUnsupportedType
	}

	file, name, err := createUnique(h.scratchDir)
	if err != nil {
		return nil, fmt.Errorf("create scratch file: %w", err)
	}
	path := filepath.Join(h.scratchDir, name)

	written, err := io.Copy(file, io.LimitReader(part, h.maxUpload+1))
	closeErr := file.Close()
	switch {
	case err != nil:
		jobs.RemoveIfExists(path)
		return nil, bodyError(err)
	case written > h.maxUpload:
		jobs.RemoveIfExists(path)
		return nil, ErrFileTooLarge
	case closeErr != nil:
		jobs.RemoveIfExists(path)
		return nil, fmt.Errorf("write scratch file: %w", closeErr)
	}

	return &models.Upload{
		Filename:     name,
		OriginalName: original,
		Path:         path,
		Size:         written,
		ContentType:  contentType,
		CreatedAt:    time.Now(),
	}, nil
}

// createUnique opens a fresh file in dir; O_EXCL guards against the
// astronomically unlikely name collision.
func createUnique(dir string) (*os.File, string, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		name := generateFilename(time.Now())
		file, err := os.OpenFile(filepath.Join(dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return file, name, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
		lastErr = err
	}
	return nil, "", lastErr
}

func bodyError(err error) error {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return ErrFileTooLarge
	}
	return ErrMalformedForm
}
