// Package status holds synchronization run summaries and the side marker
// that records how far the last completed run got.
package status

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

//go:generate mockgen -destination=mocks/mock_marker.go -package=mocks -source=persistence.go MarkerStore

// MarkerFileName is the name of the side marker file
const MarkerFileName = "last_update.txt"

// MarkerStore persists the side marker, the cursor text of the last completed run
type MarkerStore interface {
	// Load returns the stored marker. ok is false when none was saved yet.
	Load(ctx context.Context) (text string, ok bool, err error)

	// Save replaces the stored marker
	Save(ctx context.Context, text string) error
}

// FileMarker implements MarkerStore with a single text file
type FileMarker struct {
	path string
}

var _ MarkerStore = (*FileMarker)(nil)

// NewFileMarker creates a marker stored at path
func NewFileMarker(path string) *FileMarker {
	return &FileMarker{path: path}
}

// Path returns the marker file location
func (f *FileMarker) Path() string {
	return f.path
}

// Load reads the marker file. A missing or blank file is not an error.
func (f *FileMarker) Load(_ context.Context) (string, bool, error) {
	// #nosec G304 -- path comes from configuration
	data, err := os.ReadFile(f.path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read marker file: %w", err)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", false, nil
	}
	return text, true, nil
}

// Save writes the marker through a temporary file and an atomic rename
func (f *FileMarker) Save(_ context.Context, text string) error {
	if err := os.MkdirAll(filepath.Dir(f.path), 0750); err != nil {
		return fmt.Errorf("failed to create marker directory: %w", err)
	}

	tempPath := f.path + ".tmp"
	if err := os.WriteFile(tempPath, []byte(text), 0600); err != nil {
		return fmt.Errorf("failed to write temporary marker file: %w", err)
	}

	if err := os.Rename(tempPath, f.path); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename marker file: %w", err)
	}
	return nil
}
