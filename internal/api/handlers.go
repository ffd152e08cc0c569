package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"musescore-server/internal/config"
	"musescore-server/internal/jobs"
	"musescore-server/internal/logging"
	"musescore-server/internal/metrics"
	"musescore-server/internal/models"
	"musescore-server/internal/musescore"
)

// Converter runs the staged-upload pipeline. *jobs.Manager satisfies it.
type Converter interface {
	Convert(ctx context.Context, upload *models.Upload) (*models.Result, error)
	Tool() musescore.Tool
}

// HelpRunner exposes the tool's --help output. *musescore.Engine satisfies it.
type HelpRunner interface {
	Help(ctx context.Context) (stdout, stderr string, err error)
}

type Handler struct {
	converter  Converter
	helper     HelpRunner
	scratchDir string
	maxUpload  int64
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

func NewHandler(cfg *config.Config, converter Converter, helper HelpRunner, m *metrics.Metrics, logger *slog.Logger) *Handler {
	return &Handler{
		converter:  converter,
		helper:     helper,
		scratchDir: cfg.ScratchDir,
		maxUpload:  cfg.MaxUploadBytes,
		metrics:    m,
		logger:     logging.OrNop(logger),
	}
}

// Status handles GET /.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	tool := h.converter.Tool()
	resp := models.StatusResponse{
		Message:    "MIDI to MusicXML Converter Server",
		Status:     "running",
		ToolStatus: "not found",
	}
	if tool.Available() {
		resp.ToolStatus = "available"
		resp.Tool = tool.Command
		resp.Version = tool.Version
	}
	writeJSON(w, http.StatusOK, resp)
}

// Convert handles POST /convert.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context(), h.logger)

	upload, err := h.receiveUpload(w, r)
	if err != nil {
		var invalid *ValidationError
		if errors.As(err, &invalid) {
			h.metrics.RejectUpload(invalid.Reason)
			log.Warn("upload rejected", "reason", invalid.Reason)
			writeError(w, http.StatusBadRequest, invalid.Message, nil)
			return
		}
		log.Error("staging upload failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error", nil)
		return
	}
	h.metrics.ObserveUpload(upload.Size)

	result, err := h.converter.Convert(r.Context(), upload)
	if err != nil {
		status, msg, details := describeFailure(err)
		writeError(w, status, msg, details)
		return
	}

	writeJSON(w, http.StatusOK, models.ConvertResponse{
		Success:      true,
		MusicXML:     result.MusicXML,
		OriginalName: result.OriginalName,
		Size:         len(result.MusicXML),
	})
}

// Debug handles GET /debug: raw `--help` output for operators.
func (h *Handler) Debug(w http.ResponseWriter, r *http.Request) {
	tool := h.converter.Tool()
	if !tool.Available() {
		writeJSON(w, http.StatusOK, models.ErrorResponse{Error: "MuseScore not found"})
		return
	}

	stdout, stderr, err := h.helper.Help(r.Context())
	resp := models.DebugResponse{Command: tool.Command, Stdout: stdout, Stderr: stderr}
	if err != nil {
		msg := err.Error()
		resp.Error = &msg
	}
	writeJSON(w, http.StatusOK, resp)
}

// describeFailure maps a pipeline error onto status, message and diagnostics.
func describeFailure(err error) (int, string, *models.ErrorDetails) {
	if errors.Is(err, jobs.ErrServerBusy) {
		return http.StatusServiceUnavailable, err.Error(), nil
	}
	if errors.Is(err, musescore.ErrToolUnavailable) {
		return http.StatusInternalServerError, musescore.ErrToolUnavailable.Error(), nil
	}

	var convErr *musescore.ConversionError
	if !errors.As(err, &convErr) {
		if errors.Is(err, musescore.ErrCanceled) {
			return http.StatusServiceUnavailable, musescore.ErrCanceled.Error(), nil
		}
		return http.StatusInternalServerError, "internal server error", nil
	}

	if errors.Is(convErr.Kind, musescore.ErrReadOutput) {
		return http.StatusInternalServerError, convErr.Kind.Error(), nil
	}

	details := &models.ErrorDetails{Stderr: convErr.Stderr, Command: convErr.Command}
	if convErr.ExitCode >= 0 {
		code := convErr.ExitCode
		details.Code = &code
	}
	return http.StatusInternalServerError, convErr.Kind.Error(), details
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, details *models.ErrorDetails) {
	writeJSON(w, status, models.ErrorResponse{Error: msg, Details: details})
}
