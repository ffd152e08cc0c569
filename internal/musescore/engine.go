package musescore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"musescore-server/internal/logging"
	"musescore-server/internal/models"
)

const (
	DefaultTimeout = 30 * time.Second
	helpTimeout    = 10 * time.Second

	// exitCommandNotFound is the shell convention for "command not found".
	// Only a hint: not every platform reports it.
	exitCommandNotFound = 127
)

// Options configures an Engine.
type Options struct {
	Timeout   time.Duration
	Display   string // exported as DISPLAY for the child, "" leaves it untouched
	Offscreen bool   // sets QT_QPA_PLATFORM=offscreen
	Logger    *slog.Logger
}

// Engine runs MuseScore conversions for a single resolved Tool.
type Engine struct {
	tool    Tool
	timeout time.Duration
	env     []string
	logger  *slog.Logger
}

func NewEngine(tool Tool, opts Options) *Engine {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	var env []string
	if opts.Display != "" {
		env = append(env, "DISPLAY="+opts.Display)
	}
	if opts.Offscreen {
		env = append(env, "QT_QPA_PLATFORM=offscreen")
	}
	return &Engine{
		tool:    tool,
		timeout: timeout,
		env:     env,
		logger:  logging.OrNop(opts.Logger),
	}
}

// Tool returns the executable this engine invokes.
func (e *Engine) Tool() Tool {
	return e.tool
}

// Timeout returns the wall-clock bound applied to each conversion.
func (e *Engine) Timeout() time.Duration {
	return e.timeout
}

// OutputPath swaps a trailing .mid/.midi for .musicxml in the same directory.
func OutputPath(inputPath string) string {
	ext := filepath.Ext(inputPath)
	switch strings.ToLower(ext) {
	case ".mid", ".midi":
		return strings.TrimSuffix(inputPath, ext) + ".musicxml"
	default:
		return inputPath + ".musicxml"
	}
}

// Convert runs `<tool> -o <output> <input>` for job, filling in its output
// path, exit code and captured streams. The returned error is a
// *ConversionError classified against the sentinel errors of this package.
// Convert does not delete any files.
func (e *Engine) Convert(ctx context.Context, job *models.Job) error {
	job.OutputPath = OutputPath(job.InputPath)
	job.Timeout = e.timeout
	job.ExitCode = -1

	if !e.tool.Available() {
		return ErrToolUnavailable
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.tool.Command, "-o", job.OutputPath, job.InputPath)
	cmd.Env = append(os.Environ(), e.env...)
	// Headless MuseScore may leave helper processes holding our pipes.
	cmd.WaitDelay = 2 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log := logging.FromContext(ctx, e.logger).With("job_id", job.ID)
	log.Info("running MuseScore", "command", e.tool.Command, "input", filepath.Base(job.InputPath))

	started := time.Now()
	runErr := cmd.Run()
	job.Duration = time.Since(started)
	job.Stdout = stdout.String()
	job.Stderr = stderr.String()
	if cmd.ProcessState != nil {
		job.ExitCode = cmd.ProcessState.ExitCode()
	}

	log.Debug("MuseScore finished", "exit_code", job.ExitCode, "duration", job.Duration,
		"stdout", job.Stdout, "stderr", job.Stderr)

	if runErr != nil {
		kind := classify(ctx.Err(), runErr, job.ExitCode, job.Stderr)
		return &ConversionError{
			Kind:     kind,
			ExitCode: job.ExitCode,
			Stderr:   job.Stderr,
			Command:  e.tool.Command,
			Err:      runErr,
		}
	}

	// MuseScore occasionally exits 0 without writing anything.
	if info, err := os.Stat(job.OutputPath); err != nil || info.IsDir() {
		return &ConversionError{
			Kind:     ErrNoOutput,
			ExitCode: job.ExitCode,
			Stderr:   job.Stderr,
			Command:  e.tool.Command,
		}
	}

	return nil
}

// Help runs `<tool> --help` for operator troubleshooting.
func (e *Engine) Help(ctx context.Context) (stdout, stderr string, err error) {
	if !e.tool.Available() {
		return "", "", ErrToolUnavailable
	}
	ctx, cancel := context.WithTimeout(ctx, helpTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.tool.Command, "--help")
	cmd.Env = append(os.Environ(), e.env...)
	cmd.WaitDelay = time.Second
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err = cmd.Run()
	return outBuf.String(), errBuf.String(), err
}

// ReadOutput reads the generated MusicXML in full.
func ReadOutput(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ConversionError{Kind: ErrReadOutput, ExitCode: 0, Err: err}
	}
	return string(data), nil
}

// classify maps a failed run onto one of the sentinel errors. Order matters:
// a killed process also has a non-zero exit code.
func classify(ctxErr, runErr error, exitCode int, stderr string) error {
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(ctxErr, context.Canceled):
		return ErrCanceled
	case errors.Is(runErr, exec.ErrNotFound), errors.Is(runErr, fs.ErrNotExist):
		return ErrToolNotFound
	case exitCode == exitCommandNotFound:
		return ErrToolNotFound
	case strings.Contains(stderr, unreadableMarker):
		return ErrMalformedInput
	default:
		return ErrConversionFailed
	}
}

// Describe renders err for logs, including the exit code when known.
func Describe(err error) string {
	var convErr *ConversionError
	if errors.As(err, &convErr) && convErr.ExitCode >= 0 {
		return fmt.Sprintf("%v (exit %d)", err, convErr.ExitCode)
	}
	return err.Error()
}
