// Package store persists session credential blobs. The registry itself
// performs no I/O; the server wires a provider-backed credentials file into
// the promote callback and the startup restore path.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// FileProvider abstracts blob storage for small named files.
type FileProvider interface {
	// Read returns the file contents, or os.ErrNotExist if absent.
	Read(ctx context.Context, name string) ([]byte, error)
	// Write stores the file contents, replacing any existing version.
	Write(ctx context.Context, name string, data []byte) error
}

// LocalProvider stores files under a base directory.
type LocalProvider struct {
	baseDir string
}

// NewLocalProvider creates a provider rooted at baseDir, creating it if
// needed.
func NewLocalProvider(baseDir string) (*LocalProvider, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("base directory is required")
	}
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	return &LocalProvider{baseDir: baseDir}, nil
}

// Read implements FileProvider.
func (p *LocalProvider) Read(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(filepath.Join(p.baseDir, name))
}

// Write implements FileProvider. The write goes through a temp file and
// rename so a crash cannot leave a half-written credentials file.
func (p *LocalProvider) Write(_ context.Context, name string, data []byte) error {
	path := filepath.Join(p.baseDir, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}
