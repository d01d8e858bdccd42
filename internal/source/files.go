// Package source reads source text from the local file system.
package source

import (
	"context"
	"fmt"
	"os"

	"erdgen/internal/symbols"
)

// Files is a TextAccessor backed by os.ReadFile. It keeps no state between
// calls, so edits on disk are always observed.
type Files struct{}

// Text returns the whole file when rng is nil, otherwise the ranged slice.
func (Files) Text(ctx context.Context, file symbols.FileID, rng *symbols.Range) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(string(file))
	if err != nil {
		return "", fmt.Errorf("failed to read %s: %w", file, err)
	}
	if rng == nil {
		return string(data), nil
	}
	return symbols.Slice(string(data), *rng), nil
}
