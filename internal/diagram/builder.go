// Package diagram builds a class diagram graph from symbol trees.
//
// A Builder walks the symbol tree of a starting file, turns classes,
// interfaces and modules that own members into graph nodes, and lets a
// per-language Plugin enrich each node from its source text. Plugins can
// pull further files into the same graph; every file is entered at most
// once per run, which is what makes mutually referencing files terminate.
package diagram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"erdgen/internal/graph"
	"erdgen/internal/symbols"
)

// Options configures a Builder. Zero values are usable.
type Options struct {
	// Resolver is exposed to plugins for cross-file expansion.
	Resolver symbols.DefinitionResolver
	// Plugins selects a plugin by the language of each entered file.
	Plugins Registry
	// MemberAugmentation calls MemberAugmenter plugins for every method.
	MemberAugmentation bool
	Logger             *slog.Logger
}

// Builder turns symbol trees into a graph. A Builder may be reused for
// many runs; concurrent Generate calls are serialized.
type Builder struct {
	provider           symbols.Provider
	text               symbols.TextAccessor
	resolver           symbols.DefinitionResolver
	plugins            Registry
	memberAugmentation bool
	logger             *slog.Logger

	mu      sync.Mutex
	graph   *graph.Graph
	visited graph.VisitedSet
	log     *slog.Logger
}

// fileScope carries what is resolved once per entered file.
type fileScope struct {
	file   symbols.FileID
	plugin Plugin
}

// New creates a Builder over the given symbol provider and text accessor.
func New(provider symbols.Provider, text symbols.TextAccessor, opts Options) *Builder {
	if opts.Resolver == nil {
		opts.Resolver = symbols.NoResolver{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Builder{
		provider:           provider,
		text:               text,
		resolver:           opts.Resolver,
		plugins:            opts.Plugins,
		memberAugmentation: opts.MemberAugmentation,
		logger:             opts.Logger,
	}
}

// Generate runs one traversal starting from files, in order, and returns
// the resulting graph. Graph and visited set are fresh for every call.
// Any collaborator or plugin error aborts the run.
func (b *Builder) Generate(ctx context.Context, files ...symbols.FileID) (*graph.Graph, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.graph = graph.New()
	b.visited = graph.VisitedSet{}
	b.log = b.logger.With(slog.String("run_id", uuid.NewString()))
	defer func() {
		b.graph = nil
		b.visited = nil
	}()

	start := time.Now()
	b.log.Info("generation started", slog.Int("roots", len(files)))

	for _, file := range files {
		if err := b.enterFile(ctx, file); err != nil {
			b.log.Error("generation failed", slog.Any("error", err))
			return nil, err
		}
	}

	g := b.graph
	b.log.Info("generation finished",
		slog.Int("files", len(b.visited)),
		slog.Int("nodes", len(g.Nodes())),
		slog.Int("edges", len(g.Edges())),
		slog.Duration("duration", time.Since(start)),
	)
	return g, nil
}

func (b *Builder) enterFile(ctx context.Context, file symbols.FileID) error {
	if !b.visited.Mark(file) {
		b.log.Debug("file already entered", slog.String("file", string(file)))
		return nil
	}

	syms, err := b.provider.Symbols(ctx, file)
	if err != nil {
		return fmt.Errorf("failed to get symbols for %s: %w", file, err)
	}
	b.log.Debug("entered file", slog.String("file", string(file)), slog.Int("symbols", len(syms)))

	scope := &fileScope{file: file, plugin: b.plugins.For(file)}
	for i := range syms {
		if _, err := b.classifyRoot(ctx, scope, &syms[i]); err != nil {
			return err
		}
	}
	return nil
}

// classifyRoot handles a symbol that is not a member of an existing node.
// It returns the node the symbol produced, or nil.
func (b *Builder) classifyRoot(ctx context.Context, scope *fileScope, sym *symbols.Symbol) (*graph.Node, error) {
	var headers []string
	switch sym.Kind {
	case symbols.KindModule:
		if isNamespace(sym) {
			for i := range sym.Children {
				if _, err := b.classifyRoot(ctx, scope, &sym.Children[i]); err != nil {
					return nil, err
				}
			}
			return nil, nil
		}
		headers = []string{"class " + sym.Name}
	case symbols.KindClass:
		headers = []string{"class " + sym.Name}
	case symbols.KindInterface:
		headers = []string{"class " + sym.Name, "<<Interface>> " + sym.Name}
	default:
		b.log.Debug("unclassifiable root symbol",
			slog.String("kind", sym.Kind.String()),
			slog.String("name", sym.Name),
			slog.String("file", string(scope.file)),
		)
		return nil, nil
	}

	node, _ := b.graph.Upsert(sym.Name, headers, sym, scope.file)
	if err := b.addElements(ctx, scope, node, sym); err != nil {
		return nil, err
	}
	if err := b.augmentNode(ctx, scope, node, sym); err != nil {
		return nil, err
	}
	return node, nil
}

// isNamespace reports whether a module only groups other containers.
func isNamespace(sym *symbols.Symbol) bool {
	for _, child := range sym.Children {
		if !child.Kind.IsContainer() {
			return false
		}
	}
	return true
}

// addElements applies the member rules to the children of sym, which
// already produced parent.
func (b *Builder) addElements(ctx context.Context, scope *fileScope, parent *graph.Node, sym *symbols.Symbol) error {
	for i := range sym.Children {
		child := &sym.Children[i]
		switch child.Kind {
		case symbols.KindClass:
			nested, err := b.classifyRoot(ctx, scope, child)
			if err != nil {
				return err
			}
			if nested != nil {
				b.graph.AddEdge(graph.Edge{From: parent.Name, To: nested.Name})
			}
		case symbols.KindMethod:
			parent.SetMember(child.Name, fmt.Sprintf("%s : %s()", parent.Name, child.Name))
			if err := b.augmentMember(ctx, scope, parent, child, sym); err != nil {
				return err
			}
		case symbols.KindConstructor:
			parent.SetMember(child.Name, fmt.Sprintf("%s : %s() %s", parent.Name, child.Name, parent.Name))
		case symbols.KindConstant:
			parent.SetMember(child.Name, fmt.Sprintf("%s : static %s", parent.Name, child.Name))
		case symbols.KindVariable, symbols.KindProperty, symbols.KindLiteral:
			parent.SetMember(child.Name, fmt.Sprintf("%s : %s", parent.Name, child.Name))
		default:
			b.log.Debug("unclassifiable element symbol",
				slog.String("kind", child.Kind.String()),
				slog.String("name", child.Name),
				slog.String("parent", parent.Name),
			)
		}
	}
	return nil
}

func (b *Builder) augmentNode(ctx context.Context, scope *fileScope, node *graph.Node, sym *symbols.Symbol) error {
	if scope.plugin == nil {
		return nil
	}
	text, err := b.text.Text(ctx, scope.file, &sym.Range)
	if err != nil {
		return fmt.Errorf("failed to read source of %s: %w", sym.Name, err)
	}
	h := b.handle(node, scope.file)
	defer h.release()
	if err := scope.plugin.AugmentNode(ctx, node, text, h); err != nil {
		return fmt.Errorf("failed to augment %s: %w", node.Name, err)
	}
	return nil
}

func (b *Builder) augmentMember(ctx context.Context, scope *fileScope, parent *graph.Node, member, parentSym *symbols.Symbol) error {
	if !b.memberAugmentation || scope.plugin == nil {
		return nil
	}
	ma, ok := scope.plugin.(MemberAugmenter)
	if !ok {
		return nil
	}
	text, err := b.text.Text(ctx, scope.file, &member.Range)
	if err != nil {
		return fmt.Errorf("failed to read source of %s.%s: %w", parentSym.Name, member.Name, err)
	}
	h := b.handle(parent, scope.file)
	defer h.release()
	if err := ma.AugmentMember(ctx, member, parentSym, text, h); err != nil {
		return fmt.Errorf("failed to augment member %s.%s: %w", parentSym.Name, member.Name, err)
	}
	return nil
}
