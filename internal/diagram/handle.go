package diagram

import (
	"context"
	"errors"

	"erdgen/internal/graph"
	"erdgen/internal/symbols"
)

// ErrHandleExpired is returned by a Handle used after the plugin callback
// it was passed to has returned.
var ErrHandleExpired = errors.New("diagram handle used after its callback returned")

// Handle is what a plugin may do to the graph while augmenting a node:
// set members on that node, append edges, and pull other files in.
// A Handle is only valid during the callback it was passed to; afterwards
// SetMember and the edge methods do nothing and the rest return
// ErrHandleExpired.
type Handle struct {
	b       *Builder
	graph   *graph.Graph
	node    *graph.Node
	file    symbols.FileID
	expired bool
}

func (b *Builder) handle(node *graph.Node, file symbols.FileID) *Handle {
	return &Handle{b: b, graph: b.graph, node: node, file: file}
}

func (h *Handle) release() { h.expired = true }

// File is the file whose symbol produced the node being augmented.
func (h *Handle) File() symbols.FileID { return h.file }

// SetMember adds or overwrites a member line on the node being augmented.
func (h *Handle) SetMember(name, line string) {
	if h.expired {
		return
	}
	h.node.SetMember(name, line)
}

// AddEdge appends an edge with the default dependency rendering.
func (h *Handle) AddEdge(from, to string) {
	h.AddRenderedEdge(from, to, "")
}

// AddRenderedEdge appends an edge rendered as the given line. An empty
// rendering uses the default.
func (h *Handle) AddRenderedEdge(from, to, rendered string) {
	if h.expired {
		return
	}
	h.graph.AddEdge(graph.Edge{From: from, To: to, Rendered: rendered})
}

// EnterFile merges another file into the graph. Files already entered in
// this run are skipped, so mutual references terminate.
func (h *Handle) EnterFile(ctx context.Context, file symbols.FileID) error {
	if h.expired {
		return ErrHandleExpired
	}
	return h.b.enterFile(ctx, file)
}

// Text reads source text through the builder's text accessor.
func (h *Handle) Text(ctx context.Context, file symbols.FileID, rng *symbols.Range) (string, error) {
	if h.expired {
		return "", ErrHandleExpired
	}
	return h.b.text.Text(ctx, file, rng)
}

// ResolveDefinition asks the builder's resolver where the symbol at pos is defined.
func (h *Handle) ResolveDefinition(ctx context.Context, file symbols.FileID, pos symbols.Position) ([]symbols.Location, error) {
	if h.expired {
		return nil, ErrHandleExpired
	}
	return h.b.resolver.ResolveDefinition(ctx, file, pos)
}
