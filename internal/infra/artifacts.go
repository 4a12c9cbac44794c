package infra

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/eliteGoblin/pathfinder/internal/domain"
)

// FileArtifactStore implements domain.ArtifactStore on the local filesystem.
// Artifacts live under <baseDir>/<runID>/<name>.
type FileArtifactStore struct {
	baseDir string
}

// NewFileArtifactStore creates a store rooted at baseDir.
func NewFileArtifactStore(baseDir string) *FileArtifactStore {
	return &FileArtifactStore{baseDir: baseDir}
}

// BaseDir returns the resolved artifact root.
func (s *FileArtifactStore) BaseDir() string {
	return s.baseDir
}

// WriteArtifact writes data to <baseDir>/<runID>/<name> and returns the path.
func (s *FileArtifactStore) WriteArtifact(runID, name string, data []byte) (string, error) {
	if err := checkComponent(runID); err != nil {
		return "", fmt.Errorf("run id: %w", err)
	}
	if err := checkComponent(name); err != nil {
		return "", fmt.Errorf("artifact name: %w", err)
	}
	dir := filepath.Join(s.baseDir, runID)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create artifact directory: %w", err)
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0600); err != nil {
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return path, nil
}

// RemoveRun deletes every artifact of a run. Missing runs are not an error.
func (s *FileArtifactStore) RemoveRun(runID string) error {
	if err := checkComponent(runID); err != nil {
		return err
	}
	return os.RemoveAll(filepath.Join(s.baseDir, runID))
}

// PruneBefore removes run directories last modified before cutoff and
// returns how many were removed.
func (s *FileArtifactStore) PruneBefore(cutoff time.Time) (int, error) {
	entries, err := os.ReadDir(s.baseDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read artifact directory: %w", err)
	}
	var removed int
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := s.RemoveRun(e.Name()); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}

// checkComponent rejects names that would escape their directory.
func checkComponent(s string) error {
	if s == "" || s == "." || s == ".." || strings.ContainsAny(s, `/\`) {
		return fmt.Errorf("invalid path component %q", s)
	}
	return nil
}

var _ domain.ArtifactStore = (*FileArtifactStore)(nil)
