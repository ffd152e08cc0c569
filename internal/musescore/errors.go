package musescore

import (
	"errors"
	"fmt"
)

// Failure classes reported by Locate and Engine.Convert. Match them with errors.Is.
var (
	ErrToolUnavailable  = errors.New("MuseScore is not installed")
	ErrToolNotFound     = errors.New("MuseScore executable could not be found")
	ErrTimeout          = errors.New("conversion timed out")
	ErrMalformedInput   = errors.New("MIDI file could not be read")
	ErrConversionFailed = errors.New("conversion failed")
	ErrNoOutput         = errors.New("MusicXML file was not generated")
	ErrReadOutput       = errors.New("result file could not be read")
	ErrCanceled         = errors.New("conversion canceled")
)

// unreadableMarker is what MuseScore prints on stderr for a MIDI file it cannot parse.
const unreadableMarker = "Cannot read"

// ConversionError carries the diagnostics of a failed MuseScore run.
type ConversionError struct {
	Kind     error
	ExitCode int // -1 when the process never exited on its own
	Stderr   string
	Command  string
	Err      error
}

func (e *ConversionError) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v: %v", e.Kind, e.Err)
}

func (e *ConversionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}
