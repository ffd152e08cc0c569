package musescore

import (
	"bytes"
	"context"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"musescore-server/internal/logging"
)

const versionProbeTimeout = 10 * time.Second

// Tool is the MuseScore executable resolved at startup. The zero value means
// no candidate was found.
type Tool struct {
	Command string
	Version string
}

// Available reports whether a command was located.
func (t Tool) Available() bool {
	return t.Command != ""
}

// Locate probes candidates in order and returns the first one found on disk
// or in PATH. A miss on every candidate returns ErrToolUnavailable.
func Locate(ctx context.Context, candidates []string, logger *slog.Logger) (Tool, error) {
	logger = logging.OrNop(logger)
	logger.Info("searching for MuseScore", "candidates", candidates)

	for _, candidate := range candidates {
		if err := ctx.Err(); err != nil {
			return Tool{}, err
		}
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if _, err := exec.LookPath(candidate); err != nil {
			logger.Debug("MuseScore candidate rejected", "candidate", candidate, "error", err)
			continue
		}

		tool := Tool{Command: candidate}
		tool.Version = probeVersion(ctx, candidate)
		logger.Info("MuseScore available", "command", candidate, "version", tool.Version)
		return tool, nil
	}

	logger.Error("MuseScore could not be found, conversions will fail until restart")
	return Tool{}, ErrToolUnavailable
}

// probeVersion returns the first line of `<command> --version`, or "" on any failure.
func probeVersion(ctx context.Context, command string) string {
	ctx, cancel := context.WithTimeout(ctx, versionProbeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, command, "--version")
	cmd.WaitDelay = time.Second
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return ""
	}
	line, _, _ := strings.Cut(strings.TrimSpace(stdout.String()), "\n")
	return strings.TrimSpace(line)
}
