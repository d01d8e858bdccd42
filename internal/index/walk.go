package index

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"

	ignore "github.com/sabhiram/go-gitignore"

	"erdgen/internal/symbols"
)

// skipDirs are never descended into, ignored or not.
var skipDirs = map[string]bool{
	".git":         true,
	".hg":          true,
	".svn":         true,
	"node_modules": true,
	"vendor":       true,
	".bundle":      true,
	"__pycache__":  true,
}

// Walk lists the files under root accepted by include, honoring the
// root's .gitignore.
func Walk(ctx context.Context, root string, include func(symbols.FileID) bool) ([]symbols.FileID, error) {
	root, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}

	matcher, err := ignore.CompileIgnoreFile(filepath.Join(root, ".gitignore"))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		matcher = ignore.CompileIgnoreLines()
	}

	var files []symbols.FileID
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, os.ErrPermission) {
				return nil
			}
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if skipDirs[d.Name()] || matcher.MatchesPath(rel+"/") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || matcher.MatchesPath(rel) {
			return nil
		}

		file := symbols.FileID(path)
		if include == nil || include(file) {
			files = append(files, file)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
