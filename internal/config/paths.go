package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
)

// Home returns the root directory for erdgen state.
// Priority: $ERDGEN_HOME -> $XDG_CACHE_HOME/erdgen -> ~/.cache/erdgen (Unix) / %LOCALAPPDATA%\erdgen (Windows)
func Home() (string, error) {
	// Priority 1: ERDGEN_HOME environment variable
	if home := os.Getenv("ERDGEN_HOME"); home != "" {
		return home, nil
	}

	// Priority 2: XDG_CACHE_HOME on Unix-like systems
	if runtime.GOOS != "windows" {
		if xdgCache := os.Getenv("XDG_CACHE_HOME"); xdgCache != "" {
			return filepath.Join(xdgCache, "erdgen"), nil
		}
	}

	// Priority 3: Platform-specific defaults
	userHome, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		return filepath.Join(userHome, "AppData", "Local", "erdgen"), nil
	default:
		return filepath.Join(userHome, ".cache", "erdgen"), nil
	}
}

// BinDir is searched for language servers after $PATH.
func BinDir() (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "bin"), nil
}

// DefaultIndexPath places the declaration index of a workspace under the
// home directory, keyed by the workspace's base name and a short hash of
// its absolute path.
func DefaultIndexPath(root string) (string, error) {
	home, err := Home()
	if err != nil {
		return "", err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "index", fmt.Sprintf("%s-%s.sqlite", filepath.Base(abs), shortHash(abs))), nil
}
