package util

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// NodeID creates a deterministic id for a symbol from its file, kind, name
// and line, so re-indexing the same tree yields the same rows.
func NodeID(filePath, kind, name string, line int) string {
	input := fmt.Sprintf("%s:%s:%s:%d", filePath, kind, name, line)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])
}
