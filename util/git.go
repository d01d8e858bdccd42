package util

import (
	"os"
	"path/filepath"
)

// rootMarkers identify a workspace root, checked in order in every directory.
var rootMarkers = []string{".erdgen.yaml", ".git"}

// FindWorkspaceRoot walks up from start until a directory holds one of the
// root markers. Returns the absolute start directory if none is found.
func FindWorkspaceRoot(start string) (string, error) {
	if start == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", err
		}
		start = wd
	}
	abs, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}
	if info, err := os.Stat(abs); err == nil && !info.IsDir() {
		abs = filepath.Dir(abs)
	}

	dir := abs
	for {
		for _, marker := range rootMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir, nil
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return abs, nil
		}
		dir = parent
	}
}
