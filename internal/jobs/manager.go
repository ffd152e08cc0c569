package jobs

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"musescore-server/internal/config"
	"musescore-server/internal/logging"
	"musescore-server/internal/metrics"
	"musescore-server/internal/models"
	"musescore-server/internal/musescore"

	"github.com/google/uuid"
)

// ErrServerBusy is returned when no conversion slot frees up within the queue wait.
var ErrServerBusy = errors.New("server busy, try again later")

// Converter runs a single conversion job. *musescore.Engine satisfies it.
type Converter interface {
	Convert(ctx context.Context, job *models.Job) error
	Tool() musescore.Tool
}

// Manager owns the request-scoped conversion pipeline: gate, invoke, read
// back, clean up.
type Manager struct {
	queue     chan struct{}
	queueWait time.Duration
	engine    Converter
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewManager(cfg *config.Config, engine Converter, m *metrics.Metrics, logger *slog.Logger) *Manager {
	return &Manager{
		queue:     make(chan struct{}, cfg.MaxConcurrentJobs),
		queueWait: cfg.QueueWait,
		engine:    engine,
		metrics:   m,
		logger:    logging.OrNop(logger),
	}
}

// Tool reports the executable conversions run against.
func (m *Manager) Tool() musescore.Tool {
	return m.engine.Tool()
}

// Convert turns a staged upload into MusicXML. The staged input and the
// derived output are removed before Convert returns, whatever the outcome.
func (m *Manager) Convert(ctx context.Context, upload *models.Upload) (*models.Result, error) {
	job := &models.Job{
		ID:         uuid.NewString(),
		InputPath:  upload.Path,
		OutputPath: musescore.OutputPath(upload.Path),
	}
	defer m.cleanup(ctx, job)

	log := logging.FromContext(ctx, m.logger).With("job_id", job.ID, "original_name", upload.OriginalName)

	if !m.engine.Tool().Available() {
		m.metrics.ObserveConversion(metrics.OutcomeUnavailable, 0)
		return nil, musescore.ErrToolUnavailable
	}

	// Rate Limiting
	if err := m.acquire(ctx); err != nil {
		m.metrics.ObserveConversion(outcomeFor(err), 0)
		log.Warn("no conversion slot available", "error", err)
		return nil, err
	}
	defer m.release()

	log.Info("conversion started", "input", upload.Filename, "size", upload.Size)

	if err := m.engine.Convert(ctx, job); err != nil {
		m.metrics.ObserveConversion(outcomeFor(err), job.Duration.Seconds())
		log.Error("conversion failed", "error", musescore.Describe(err), "stderr", job.Stderr)
		return nil, err
	}

	content, err := musescore.ReadOutput(job.OutputPath)
	if err != nil {
		m.metrics.ObserveConversion(metrics.OutcomeReadError, job.Duration.Seconds())
		log.Error("reading MusicXML failed", "error", err)
		return nil, err
	}

	m.metrics.ObserveConversion(metrics.OutcomeSuccess, job.Duration.Seconds())
	log.Info("conversion succeeded", "bytes", len(content), "duration", job.Duration)

	return &models.Result{MusicXML: content, OriginalName: upload.OriginalName}, nil
}

func (m *Manager) acquire(ctx context.Context) error {
	select {
	case m.queue <- struct{}{}:
		m.metrics.SlotAcquired()
		return nil
	default:
	}

	timer := time.NewTimer(m.queueWait)
	defer timer.Stop()

	select {
	case m.queue <- struct{}{}:
		m.metrics.SlotAcquired()
		return nil
	case <-ctx.Done():
		return musescore.ErrCanceled
	case <-timer.C:
		return ErrServerBusy
	}
}

func (m *Manager) release() {
	<-m.queue
	m.metrics.SlotReleased()
}

func (m *Manager) cleanup(ctx context.Context, job *models.Job) {
	log := logging.FromContext(ctx, m.logger)
	for _, path := range []string{job.InputPath, job.OutputPath} {
		if err := RemoveIfExists(path); err != nil {
			log.Warn("could not remove scratch file", "path", path, "error", err)
		}
	}
}

// RemoveIfExists deletes path, treating an already-missing file as success.
func RemoveIfExists(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

func outcomeFor(err error) string {
	switch {
	case errors.Is(err, musescore.ErrToolUnavailable):
		return metrics.OutcomeUnavailable
	case errors.Is(err, musescore.ErrToolNotFound):
		return metrics.OutcomeToolMissing
	case errors.Is(err, musescore.ErrTimeout):
		return metrics.OutcomeTimeout
	case errors.Is(err, musescore.ErrMalformedInput):
		return metrics.OutcomeMalformed
	case errors.Is(err, musescore.ErrNoOutput):
		return metrics.OutcomeNoOutput
	case errors.Is(err, musescore.ErrReadOutput):
		return metrics.OutcomeReadError
	case errors.Is(err, ErrServerBusy):
		return metrics.OutcomeBusy
	default:
		return metrics.OutcomeFailed
	}
}
