package symbols

import (
	"strings"
	"unicode/utf8"
)

// PositionAt converts a byte offset in text into a Position.
// Offsets past the end clamp to the end of text.
func PositionAt(text string, offset int) Position {
	if offset > len(text) {
		offset = len(text)
	}
	if offset < 0 {
		offset = 0
	}
	prefix := text[:offset]
	line := strings.Count(prefix, "\n")
	lineStart := strings.LastIndexByte(prefix, '\n') + 1
	return Position{Line: line, Character: utf16Len(prefix[lineStart:])}
}

// OffsetAt converts a Position into a byte offset in text.
// Positions past the end of a line clamp to the line end.
func OffsetAt(text string, pos Position) int {
	offset := 0
	for line := 0; line < pos.Line; line++ {
		next := strings.IndexByte(text[offset:], '\n')
		if next < 0 {
			return len(text)
		}
		offset += next + 1
	}

	units := 0
	for offset < len(text) && units < pos.Character {
		r, size := utf8.DecodeRuneInString(text[offset:])
		if r == '\n' {
			break
		}
		if r >= 0x10000 {
			units += 2
		} else {
			units++
		}
		offset += size
	}
	return offset
}

// Slice returns the part of text covered by rng.
func Slice(text string, rng Range) string {
	start := OffsetAt(text, rng.Start)
	end := OffsetAt(text, rng.End)
	if end < start {
		return ""
	}
	return text[start:end]
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if r >= 0x10000 {
			n += 2
		} else {
			n++
		}
	}
	return n
}
