package symbols

import (
	"path/filepath"
	"strings"
)

// Languages known by extension. The values match LSP language identifiers.
var extensionLanguages = map[string]string{
	".rb":   "ruby",
	".rake": "ruby",
	".go":   "go",
	".py":   "python",
	".pyi":  "python",
	".js":   "javascript",
	".jsx":  "javascript",
	".mjs":  "javascript",
	".cjs":  "javascript",
	".ts":   "typescript",
	".tsx":  "typescript",
	".mts":  "typescript",
	".cts":  "typescript",
}

// LanguageOf returns the language identifier for a file, or "" if unknown.
func LanguageOf(file FileID) string {
	base := filepath.Base(string(file))
	if base == "Rakefile" || base == "Gemfile" {
		return "ruby"
	}
	return extensionLanguages[strings.ToLower(filepath.Ext(base))]
}

// Extensions returns every file extension registered for lang.
func Extensions(lang string) []string {
	var exts []string
	for ext, l := range extensionLanguages {
		if l == lang {
			exts = append(exts, ext)
		}
	}
	return exts
}
