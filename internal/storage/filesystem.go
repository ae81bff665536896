package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Workspace hands out per-job scratch directories under a single downloads
// root. A directory belongs to exactly one job until it is removed.
type Workspace struct {
	basePath string
}

// NewWorkspace initializes a Workspace rooted at basePath.
func NewWorkspace(basePath string) (*Workspace, error) {
	basePath = strings.TrimSpace(basePath)
	if basePath == "" {
		return nil, errors.New("storage: base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("storage: ensure base path: %w", err)
	}
	abs, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve base path: %w", err)
	}
	return &Workspace{basePath: abs}, nil
}

// BasePath returns the configured root directory.
func (s *Workspace) BasePath() string {
	if s == nil {
		return ""
	}
	return s.basePath
}

// NewDir creates the scratch directory for key. It fails if the directory
// already exists so two jobs can never share one.
func (s *Workspace) NewDir(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", errors.New("storage: no workspace configured")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	cleanKey, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(s.basePath, filepath.FromSlash(cleanKey))
	if err := os.MkdirAll(filepath.Dir(dir), 0o755); err != nil {
		return "", fmt.Errorf("storage: ensure parent: %w", err)
	}
	if err := os.Mkdir(dir, 0o755); err != nil {
		return "", fmt.Errorf("storage: create dir: %w", err)
	}
	return dir, nil
}

// TempDir creates a uniquely named scratch directory for work that is not
// tracked by a job record.
func (s *Workspace) TempDir(prefix string) (string, error) {
	if s == nil {
		return "", errors.New("storage: no workspace configured")
	}
	return os.MkdirTemp(s.basePath, prefix+"-*")
}

// Contains reports whether path lies inside the workspace root.
func (s *Workspace) Contains(path string) bool {
	if s == nil || path == "" {
		return false
	}
	rel, err := filepath.Rel(s.basePath, path)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// Remove deletes dir recursively. Paths outside the root are refused and a
// missing directory is not an error.
func (s *Workspace) Remove(dir string) error {
	if dir == "" {
		return nil
	}
	if !s.Contains(dir) {
		return fmt.Errorf("storage: refusing to remove %q outside workspace", dir)
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("storage: remove dir: %w", err)
	}
	return nil
}

// sanitizeKey normalizes a key and prevents escaping the storage root.
func sanitizeKey(key string) (string, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return "", errors.New("storage: key is required")
	}
	key = strings.ReplaceAll(key, "\\", "/")
	key = strings.TrimPrefix(key, "./")
	key = strings.TrimLeft(key, "/")
	cleaned := filepath.Clean(key)
	cleaned = strings.ReplaceAll(cleaned, "\\", "/")
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", errors.New("storage: invalid key")
	}
	return cleaned, nil
}
