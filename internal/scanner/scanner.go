// Package scanner provides symbol trees from tree-sitter parses, without a
// language server.
package scanner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	tree_sitter "github.com/tree-sitter/go-tree-sitter"
	tree_sitter_go "github.com/tree-sitter/tree-sitter-go/bindings/go"
	tree_sitter_javascript "github.com/tree-sitter/tree-sitter-javascript/bindings/go"
	tree_sitter_python "github.com/tree-sitter/tree-sitter-python/bindings/go"
	tree_sitter_ruby "github.com/tree-sitter/tree-sitter-ruby/bindings/go"
	tree_sitter_typescript "github.com/tree-sitter/tree-sitter-typescript/bindings/go"

	"erdgen/internal/symbols"
)

type grammar struct {
	lang  string
	query *tree_sitter.Query
	ts    *tree_sitter.Language
}

// Scanner implements symbols.Provider. Queries are compiled once; a parser
// is created per call so a Scanner is safe for concurrent use.
type Scanner struct {
	grammars map[string]*grammar // keyed by grammar name; tsx is separate
	logger   *slog.Logger
}

var _ symbols.Provider = (*Scanner)(nil)

// New compiles the queries of every supported language.
func New(logger *slog.Logger) (*Scanner, error) {
	if logger == nil {
		logger = slog.Default()
	}
	langs := map[string]struct {
		lang string
		ptr  *tree_sitter.Language
	}{
		"ruby":       {"ruby", tree_sitter.NewLanguage(tree_sitter_ruby.Language())},
		"go":         {"go", tree_sitter.NewLanguage(tree_sitter_go.Language())},
		"python":     {"python", tree_sitter.NewLanguage(tree_sitter_python.Language())},
		"javascript": {"javascript", tree_sitter.NewLanguage(tree_sitter_javascript.Language())},
		"typescript": {"typescript", tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTypescript())},
		"tsx":        {"typescript", tree_sitter.NewLanguage(tree_sitter_typescript.LanguageTSX())},
	}

	s := &Scanner{grammars: make(map[string]*grammar), logger: logger}
	for name, l := range langs {
		q, qerr := tree_sitter.NewQuery(l.ptr, Queries[l.lang])
		if qerr != nil {
			s.Close()
			return nil, fmt.Errorf("failed to compile %s query: %s", name, qerr.Error())
		}
		s.grammars[name] = &grammar{lang: l.lang, query: q, ts: l.ptr}
	}
	return s, nil
}

// Close releases the compiled queries.
func (s *Scanner) Close() {
	for _, g := range s.grammars {
		g.query.Close()
	}
}

// Supports reports whether file has a grammar.
func (s *Scanner) Supports(file symbols.FileID) bool {
	return s.grammarFor(file) != nil
}

func (s *Scanner) grammarFor(file symbols.FileID) *grammar {
	lang := symbols.LanguageOf(file)
	if lang == "typescript" && strings.EqualFold(filepath.Ext(string(file)), ".tsx") {
		lang = "tsx"
	}
	return s.grammars[lang]
}

// Symbols reads and parses file.
func (s *Scanner) Symbols(ctx context.Context, file symbols.FileID) ([]symbols.Symbol, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	content, err := os.ReadFile(string(file))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}
	return s.Parse(file, content)
}

// Parse extracts the symbol tree of content, which is the text of file.
// Files without a grammar yield no symbols.
func (s *Scanner) Parse(file symbols.FileID, content []byte) ([]symbols.Symbol, error) {
	g := s.grammarFor(file)
	if g == nil {
		s.logger.Debug("no grammar for file", slog.String("file", string(file)))
		return nil, nil
	}

	parser := tree_sitter.NewParser()
	defer parser.Close()
	if err := parser.SetLanguage(g.ts); err != nil {
		return nil, fmt.Errorf("failed to set %s language: %w", g.lang, err)
	}
	tree := parser.Parse(content, nil)
	if tree == nil {
		return nil, fmt.Errorf("failed to parse %s", file)
	}
	defer tree.Close()

	x := &extraction{
		file:    file,
		lang:    g.lang,
		content: content,
		text:    string(content),
	}
	x.collect(g.query, tree.RootNode())
	roots := nest(x.entries)

	switch g.lang {
	case "go":
		roots = attachMethods(roots)
		roots = []*entry{x.wrap(packageName(tree.RootNode(), content), roots)}
	case "python":
		stem := strings.TrimSuffix(filepath.Base(string(file)), filepath.Ext(string(file)))
		roots = []*entry{x.wrap(stem, roots)}
	}

	out := make([]symbols.Symbol, 0, len(roots))
	for _, e := range roots {
		out = append(out, e.symbol())
	}
	return out, nil
}

// entry is a symbol while the tree is being assembled.
type entry struct {
	sym        symbols.Symbol
	start, end uint
	receiver   string
	children   []*entry
}

func (e *entry) contains(o *entry) bool {
	if e.start == o.start && e.end == o.end {
		return false
	}
	return e.start <= o.start && o.end <= e.end
}

func (e *entry) symbol() symbols.Symbol {
	s := e.sym
	for _, c := range e.children {
		s.Children = append(s.Children, c.symbol())
	}
	return s
}

type extraction struct {
	file    symbols.FileID
	lang    string
	content []byte
	text    string
	entries []*entry
}

func (x *extraction) collect(q *tree_sitter.Query, root *tree_sitter.Node) {
	qc := tree_sitter.NewQueryCursor()
	defer qc.Close()

	names := q.CaptureNames()
	seen := make(map[string]bool)

	matches := qc.Matches(q, root, x.content)
	for m := matches.Next(); m != nil; m = matches.Next() {
		var (
			def   tree_sitter.Node
			name  string
			macro string
			kind  symbols.Kind
			found bool
		)
		for _, c := range m.Captures {
			switch capture := names[c.Index]; capture {
			case "name":
				name = c.Node.Utf8Text(x.content)
			case "macro":
				macro = c.Node.Utf8Text(x.content)
			default:
				if k, ok := captureKinds[capture]; ok {
					def, kind, found = c.Node, k, true
				}
			}
		}
		if !found || name == "" {
			continue
		}
		if kind == symbols.KindProperty && x.lang == "ruby" && !rubyAttributeMacros[macro] {
			continue
		}

		name, kind = x.normalize(name, kind)
		key := fmt.Sprintf("%d:%d:%d:%s", def.StartByte(), def.EndByte(), kind, name)
		if seen[key] {
			continue
		}
		seen[key] = true

		e := &entry{
			sym: symbols.Symbol{
				Kind:  kind,
				Name:  name,
				Range: x.rangeOf(def.StartByte(), def.EndByte()),
			},
			start: def.StartByte(),
			end:   def.EndByte(),
		}
		if x.lang == "go" && def.Kind() == "method_declaration" {
			e.receiver = receiverType(&def, x.content)
		}
		x.entries = append(x.entries, e)
	}
}

func (x *extraction) normalize(name string, kind symbols.Kind) (string, symbols.Kind) {
	switch x.lang {
	case "ruby":
		name = strings.TrimPrefix(name, ":")
		if i := strings.LastIndex(name, "::"); i >= 0 {
			name = name[i+2:]
		}
	case "python":
		if kind == symbols.KindVariable && isUpperSnake(name) {
			kind = symbols.KindConstant
		}
	}
	if kind == symbols.KindMethod && constructorNames[x.lang] == name {
		kind = symbols.KindConstructor
	}
	return name, kind
}

func (x *extraction) rangeOf(start, end uint) symbols.Range {
	return symbols.Range{
		File:  x.file,
		Start: symbols.PositionAt(x.text, int(start)),
		End:   symbols.PositionAt(x.text, int(end)),
	}
}

// wrap puts roots under a module spanning the whole file.
func (x *extraction) wrap(name string, roots []*entry) *entry {
	return &entry{
		sym: symbols.Symbol{
			Kind:  symbols.KindModule,
			Name:  name,
			Range: x.rangeOf(0, uint(len(x.content))),
		},
		end:      uint(len(x.content)),
		children: roots,
	}
}

// nest builds the tree by byte-range containment. Symbols enclosed by a
// non-container (locals inside a function body) are dropped.
func nest(entries []*entry) []*entry {
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].start != entries[j].start {
			return entries[i].start < entries[j].start
		}
		return entries[i].end > entries[j].end
	})

	var roots, stack []*entry
	for _, e := range entries {
		for len(stack) > 0 && !stack[len(stack)-1].contains(e) {
			stack = stack[:len(stack)-1]
		}
		if len(stack) == 0 {
			roots = append(roots, e)
		} else {
			parent := stack[len(stack)-1]
			if !parent.sym.Kind.IsContainer() {
				continue
			}
			parent.children = append(parent.children, e)
		}
		stack = append(stack, e)
	}
	return roots
}

// attachMethods moves Go methods under the struct they are declared on,
// when that struct is in the same file.
func attachMethods(roots []*entry) []*entry {
	types := make(map[string]*entry)
	for _, e := range roots {
		if e.sym.Kind == symbols.KindClass {
			types[e.sym.Name] = e
		}
	}

	kept := roots[:0]
	for _, e := range roots {
		if owner, ok := types[e.receiver]; ok && e.receiver != "" {
			owner.children = append(owner.children, e)
			continue
		}
		kept = append(kept, e)
	}
	return kept
}

func receiverType(method *tree_sitter.Node, content []byte) string {
	params := method.ChildByFieldName("receiver")
	if params == nil {
		return ""
	}
	for i := uint(0); i < params.NamedChildCount(); i++ {
		decl := params.NamedChild(i)
		if decl == nil || decl.Kind() != "parameter_declaration" {
			continue
		}
		return typeName(decl.ChildByFieldName("type"), content)
	}
	return ""
}

func typeName(n *tree_sitter.Node, content []byte) string {
	for n != nil {
		switch n.Kind() {
		case "type_identifier":
			return n.Utf8Text(content)
		case "pointer_type":
			n = n.NamedChild(0)
		case "generic_type":
			n = n.ChildByFieldName("type")
		default:
			return ""
		}
	}
	return ""
}

func packageName(root *tree_sitter.Node, content []byte) string {
	for i := uint(0); i < root.NamedChildCount(); i++ {
		child := root.NamedChild(i)
		if child == nil || child.Kind() != "package_clause" {
			continue
		}
		if id := child.NamedChild(0); id != nil {
			return id.Utf8Text(content)
		}
	}
	return "main"
}

func isUpperSnake(name string) bool {
	hasLetter := false
	for _, r := range name {
		switch {
		case unicode.IsUpper(r):
			hasLetter = true
		case r == '_' || unicode.IsDigit(r):
		default:
			return false
		}
	}
	return hasLetter
}
