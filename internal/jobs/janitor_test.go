package jobs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musescore-server/internal/config"
	"musescore-server/internal/metrics"
)

func touch(t *testing.T, path string, age time.Duration) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	mtime := time.Now().Add(-age)
	require.NoError(t, os.Chtimes(path, mtime, mtime))
}

func TestJanitorSweepRemovesOnlyStaleFiles(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "1-1.mid")
	staleXML := filepath.Join(dir, "1-1.musicxml")
	fresh := filepath.Join(dir, "2-2.mid")
	touch(t, stale, 20*time.Minute)
	touch(t, staleXML, 11*time.Minute)
	touch(t, fresh, time.Minute)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	cfg := &config.Config{ScratchDir: dir, JanitorInterval: 10 * time.Minute, FileRetention: 10 * time.Minute}
	janitor := NewJanitor(cfg, metrics.New(prometheus.NewRegistry()), nil)

	removed := janitor.Sweep(time.Now())

	assert.Equal(t, 2, removed)
	assert.NoFileExists(t, stale)
	assert.NoFileExists(t, staleXML)
	assert.FileExists(t, fresh)
	assert.DirExists(t, filepath.Join(dir, "nested"))
}

func TestJanitorSweepMissingDirectory(t *testing.T) {
	cfg := &config.Config{ScratchDir: filepath.Join(t.TempDir(), "gone"), FileRetention: time.Minute}
	assert.Zero(t, NewJanitor(cfg, nil, nil).Sweep(time.Now()))
}

func TestJanitorRunsOnSchedule(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, "1-1.mid")
	fresh := filepath.Join(dir, "2-2.mid")
	touch(t, stale, time.Hour)
	touch(t, fresh, 0)

	cfg := &config.Config{ScratchDir: dir, JanitorInterval: time.Second, FileRetention: 10 * time.Minute}
	janitor := NewJanitor(cfg, nil, nil)
	require.NoError(t, janitor.Start())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		janitor.Stop(ctx)
	})

	require.Eventually(t, func() bool {
		_, err := os.Stat(stale)
		return os.IsNotExist(err)
	}, 5*time.Second, 50*time.Millisecond)
	assert.FileExists(t, fresh)
}
