package lsp

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
)

// Locate finds the server binary. Priority:
// 1. cfg.Path (if set and exists)
// 2. System PATH
// 3. binDir, the erdgen-managed bin directory
func Locate(cfg ServerConfig, binDir string, logger *slog.Logger) (string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With(slog.String("language", cfg.Language))

	// Priority 1: Custom path from config
	if cfg.Path != "" {
		if _, err := os.Stat(cfg.Path); err == nil {
			log.Debug("using configured server path", slog.String("path", cfg.Path))
			return cfg.Path, nil
		}
		log.Warn("configured server path not found, falling back", slog.String("path", cfg.Path))
	}

	// Priority 2: System PATH
	if p, err := findInPath(cfg.Command); err == nil {
		log.Debug("using system server", slog.String("path", p))
		return p, nil
	}

	// Priority 3: erdgen bin directory
	if binDir != "" {
		p := filepath.Join(binDir, executableName(cfg.Command))
		if isExecutable(p) {
			log.Debug("using managed server", slog.String("path", p))
			return p, nil
		}
	}

	return "", fmt.Errorf("%w: %s", ErrServerNotInstalled, cfg.Command)
}

// findInPath searches for a binary in the system PATH.
func findInPath(binaryName string) (string, error) {
	binaryName = executableName(binaryName)

	for _, dir := range filepath.SplitList(os.Getenv("PATH")) {
		fullPath := filepath.Join(dir, binaryName)
		if isExecutable(fullPath) {
			return fullPath, nil
		}
	}

	return "", fmt.Errorf("%s not found in PATH", binaryName)
}

func executableName(name string) string {
	// Add .exe extension on Windows
	if runtime.GOOS == "windows" && !strings.HasSuffix(name, ".exe") {
		return name + ".exe"
	}
	return name
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	// Check if executable on Unix-like systems
	if runtime.GOOS != "windows" && info.Mode()&0o111 == 0 {
		return false
	}
	return true
}
