package jobs

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"musescore-server/internal/config"
	"musescore-server/internal/models"
	"musescore-server/internal/musescore"
)

type fakeConverter struct {
	tool  musescore.Tool
	run   func(ctx context.Context, job *models.Job) error
	calls atomic.Int32
}

func (f *fakeConverter) Tool() musescore.Tool { return f.tool }

func (f *fakeConverter) Convert(ctx context.Context, job *models.Job) error {
	f.calls.Add(1)
	job.OutputPath = musescore.OutputPath(job.InputPath)
	return f.run(ctx, job)
}

func writeOutput(content string) func(context.Context, *models.Job) error {
	return func(_ context.Context, job *models.Job) error {
		return os.WriteFile(job.OutputPath, []byte(content), 0o644)
	}
}

func stagedUpload(t *testing.T, dir string) *models.Upload {
	t.Helper()
	name := "1700000000000-7.mid"
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("MThd"), 0o644))
	return &models.Upload{Filename: name, OriginalName: "song.mid", Path: path, Size: 4}
}

func testConfig(dir string) *config.Config {
	return &config.Config{ScratchDir: dir, MaxConcurrentJobs: 2, QueueWait: 50 * time.Millisecond}
}

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch dir should hold no residue")
}

func TestManagerConvertSuccessCleansUp(t *testing.T) {
	dir := t.TempDir()
	conv := &fakeConverter{tool: musescore.Tool{Command: "mscore"}, run: writeOutput("<score-partwise/>")}
	mgr := NewManager(testConfig(dir), conv, nil, nil)

	result, err := mgr.Convert(context.Background(), stagedUpload(t, dir))
	require.NoError(t, err)

	assert.Equal(t, "<score-partwise/>", result.MusicXML)
	assert.Equal(t, "song.mid", result.OriginalName)
	assertScratchEmpty(t, dir)
}

func TestManagerConvertFailureCleansUp(t *testing.T) {
	dir := t.TempDir()
	conv := &fakeConverter{
		tool: musescore.Tool{Command: "mscore"},
		run: func(ctx context.Context, job *models.Job) error {
			require.NoError(t, os.WriteFile(job.OutputPath, []byte("partial"), 0o644))
			return &musescore.ConversionError{Kind: musescore.ErrConversionFailed, ExitCode: 1, Stderr: "boom"}
		},
	}
	mgr := NewManager(testConfig(dir), conv, nil, nil)

	_, err := mgr.Convert(context.Background(), stagedUpload(t, dir))
	require.ErrorIs(t, err, musescore.ErrConversionFailed)
	assertScratchEmpty(t, dir)
}

func TestManagerToolUnavailableSkipsProcess(t *testing.T) {
	dir := t.TempDir()
	conv := &fakeConverter{run: writeOutput("never")}
	mgr := NewManager(testConfig(dir), conv, nil, nil)

	_, err := mgr.Convert(context.Background(), stagedUpload(t, dir))
	require.ErrorIs(t, err, musescore.ErrToolUnavailable)
	assert.Zero(t, conv.calls.Load())
	assertScratchEmpty(t, dir)
}

func TestManagerReportsBusyWhenSlotsExhausted(t *testing.T) {
	dir := t.TempDir()
	release := make(chan struct{})
	started := make(chan struct{})
	conv := &fakeConverter{
		tool: musescore.Tool{Command: "mscore"},
		run: func(ctx context.Context, job *models.Job) error {
			close(started)
			<-release
			return os.WriteFile(job.OutputPath, []byte("<x/>"), 0o644)
		},
	}
	cfg := testConfig(dir)
	cfg.MaxConcurrentJobs = 1
	mgr := NewManager(cfg, conv, nil, nil)

	first := stagedUpload(t, dir)
	done := make(chan error, 1)
	go func() {
		_, err := mgr.Convert(context.Background(), first)
		done <- err
	}()
	<-started

	second := &models.Upload{OriginalName: "b.mid", Path: filepath.Join(dir, "1700000000001-8.mid")}
	require.NoError(t, os.WriteFile(second.Path, []byte("MThd"), 0o644))

	_, err := mgr.Convert(context.Background(), second)
	require.ErrorIs(t, err, ErrServerBusy)
	assert.NoFileExists(t, second.Path)

	close(release)
	require.NoError(t, <-done)
	assertScratchEmpty(t, dir)
}

func TestManagerWithRealEngineStub(t *testing.T) {
	dir := t.TempDir()
	stub := filepath.Join(t.TempDir(), "mscore")
	script := "#!/bin/sh\nout=\"$2\"\nprintf '<?xml version=\"1.0\"?><score-partwise/>' > \"$out\"\n"
	require.NoError(t, os.WriteFile(stub, []byte(script), 0o755))

	engine := musescore.NewEngine(musescore.Tool{Command: stub}, musescore.Options{Timeout: 5 * time.Second})
	mgr := NewManager(testConfig(dir), engine, nil, nil)

	result, err := mgr.Convert(context.Background(), stagedUpload(t, dir))
	require.NoError(t, err)
	assert.Contains(t, result.MusicXML, "score-partwise")
	assertScratchEmpty(t, dir)
}

func TestRemoveIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.mid")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	require.NoError(t, RemoveIfExists(path))
	require.NoError(t, RemoveIfExists(path))
	require.NoError(t, RemoveIfExists(""))
	assert.NoFileExists(t, path)
}

func TestOutcomeFor(t *testing.T) {
	assert.Equal(t, "timeout", outcomeFor(&musescore.ConversionError{Kind: musescore.ErrTimeout}))
	assert.Equal(t, "busy", outcomeFor(ErrServerBusy))
	assert.Equal(t, "failed", outcomeFor(os.ErrPermission))
}
