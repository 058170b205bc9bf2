package config

import (
	"os"
	"path/filepath"
)

// WorkspaceDir is the per-workspace state directory.
const WorkspaceDir = ".livecast"

// FindWorkspaceRoot walks up from the working directory looking for a
// .livecast directory, then a go.mod. It falls back to the working directory.
func FindWorkspaceRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	originalDir := dir
	for {
		if _, err := os.Stat(filepath.Join(dir, WorkspaceDir)); err == nil {
			return dir, nil
		}
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return originalDir, nil
}

// DefaultConfigPath returns the config path under the workspace root.
func DefaultConfigPath() string {
	root, err := FindWorkspaceRoot()
	if err != nil {
		return DefaultPath
	}
	return filepath.Join(root, DefaultPath)
}

// Resolve makes a workspace-relative path absolute. Absolute paths are
// returned unchanged.
func Resolve(workspace, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(workspace, p)
}
