package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"musescore-server/internal/config"
	"musescore-server/internal/logging"
	"musescore-server/internal/metrics"

	"github.com/robfig/cron/v3"
)

// Janitor is the backstop for scratch files orphaned by aborted requests.
// Request handlers clean up after themselves; the janitor only catches leftovers.
type Janitor struct {
	dir       string
	interval  time.Duration
	retention time.Duration
	cron      *cron.Cron
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

func NewJanitor(cfg *config.Config, m *metrics.Metrics, logger *slog.Logger) *Janitor {
	return &Janitor{
		dir:       cfg.ScratchDir,
		interval:  cfg.JanitorInterval,
		retention: cfg.FileRetention,
		cron:      cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		metrics:   m,
		logger:    logging.OrNop(logger),
	}
}

// Start schedules a sweep every interval. The first sweep runs one interval after Start.
func (j *Janitor) Start() error {
	spec := fmt.Sprintf("@every %s", j.interval)
	if _, err := j.cron.AddFunc(spec, func() { j.Sweep(time.Now()) }); err != nil {
		return fmt.Errorf("schedule janitor %q: %w", spec, err)
	}
	j.cron.Start()
	j.logger.Info("janitor started", "dir", j.dir, "interval", j.interval, "retention", j.retention)
	return nil
}

// Stop halts scheduling and waits for a running sweep, or for ctx.
func (j *Janitor) Stop(ctx context.Context) {
	done := j.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	j.logger.Info("janitor stopped")
}

// Sweep deletes regular files in the scratch directory last modified more
// than the retention window before now. Errors on individual entries are
// skipped. It returns the number of files removed.
func (j *Janitor) Sweep(now time.Time) int {
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		j.logger.Debug("janitor could not list scratch dir", "dir", j.dir, "error", err)
		return 0
	}

	removed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= j.retention {
			continue
		}
		if err := RemoveIfExists(filepath.Join(j.dir, entry.Name())); err != nil {
			j.logger.Debug("janitor could not remove file", "file", entry.Name(), "error", err)
			continue
		}
		removed++
		j.logger.Info("janitor removed stale file", "file", entry.Name(), "age", now.Sub(info.ModTime()).Round(time.Second))
	}

	j.metrics.ObserveSweep(removed)
	return removed
}
