package symbols

import (
	"context"
	"path/filepath"
)

// Kind classifies a symbol independently of the source language.
type Kind int

const (
	KindOther Kind = iota
	KindModule
	KindClass
	KindInterface
	KindMethod
	KindConstructor
	KindConstant
	KindVariable
	KindProperty
	KindLiteral
)

var kindNames = map[Kind]string{
	KindOther:       "other",
	KindModule:      "module",
	KindClass:       "class",
	KindInterface:   "interface",
	KindMethod:      "method",
	KindConstructor: "constructor",
	KindConstant:    "constant",
	KindVariable:    "variable",
	KindProperty:    "property",
	KindLiteral:     "literal",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "other"
}

// ParseKind is the inverse of String. Unknown names yield KindOther.
func ParseKind(name string) Kind {
	for k, n := range kindNames {
		if n == name {
			return k
		}
	}
	return KindOther
}

// MarshalText lets symbol trees be dumped as JSON with readable kinds.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// IsContainer reports whether a symbol of this kind can own members.
func (k Kind) IsContainer() bool {
	return k == KindModule || k == KindClass || k == KindInterface
}

// FileID identifies a source file. It is always a cleaned absolute path.
type FileID string

// NewFileID normalizes a path into a FileID.
func NewFileID(path string) FileID {
	abs, err := filepath.Abs(path)
	if err != nil {
		return FileID(filepath.Clean(path))
	}
	return FileID(abs)
}

func (f FileID) String() string { return string(f) }

// Position is zero-based; Character counts UTF-16 code units like LSP does.
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

type Range struct {
	File  FileID   `json:"file"`
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a resolved definition target.
type Location struct {
	File  FileID `json:"file"`
	Range Range  `json:"range"`
}

// Symbol is one node of a file's symbol tree.
type Symbol struct {
	Kind     Kind     `json:"kind"`
	Name     string   `json:"name"`
	Range    Range    `json:"range"`
	Children []Symbol `json:"children,omitempty"`
}

// Provider yields the symbol tree of a file. An empty slice is a valid answer.
type Provider interface {
	Symbols(ctx context.Context, file FileID) ([]Symbol, error)
}

// TextAccessor returns the text of a whole file (rng == nil) or of a range in it.
type TextAccessor interface {
	Text(ctx context.Context, file FileID, rng *Range) (string, error)
}

// DefinitionResolver maps a text position to the locations that define
// the symbol found there. Zero results is not an error.
type DefinitionResolver interface {
	ResolveDefinition(ctx context.Context, file FileID, pos Position) ([]Location, error)
}

// NoResolver never resolves anything.
type NoResolver struct{}

func (NoResolver) ResolveDefinition(context.Context, FileID, Position) ([]Location, error) {
	return nil, nil
}
