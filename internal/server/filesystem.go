package server

import (
	"fmt"
	"os"

	"musescore-server/internal/config"
)

// PrepareFilesystem creates the scratch directory and checks it is writable
func PrepareFilesystem(cfg *config.Config) error {
	if err := os.MkdirAll(cfg.ScratchDir, 0755); err != nil {
		return fmt.Errorf("create scratch dir %q: %w", cfg.ScratchDir, err)
	}
	probe, err := os.CreateTemp(cfg.ScratchDir, ".probe-*")
	if err != nil {
		return fmt.Errorf("scratch dir %q is not writable: %w", cfg.ScratchDir, err)
	}
	probe.Close()
	return os.Remove(probe.Name())
}
