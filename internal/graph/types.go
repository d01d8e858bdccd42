package graph

import "erdgen/internal/symbols"

// Node is one class-like box of the diagram.
type Node struct {
	Name    string
	Headers []string
	Origin  *symbols.Symbol // symbol that first produced the node; read-only
	File    symbols.FileID

	memberOrder []string
	members     map[string]string
}

// Member is a rendered member line keyed by member name.
type Member struct {
	Name string
	Line string
}

// SetMember stores a rendered member line. A later write for the same name
// replaces the line but keeps the member's original position.
func (n *Node) SetMember(name, line string) {
	if n.members == nil {
		n.members = make(map[string]string)
	}
	if _, ok := n.members[name]; !ok {
		n.memberOrder = append(n.memberOrder, name)
	}
	n.members[name] = line
}

// Member returns the rendered line for name.
func (n *Node) Member(name string) (string, bool) {
	line, ok := n.members[name]
	return line, ok
}

// Members returns the member lines in insertion order.
func (n *Node) Members() []Member {
	out := make([]Member, 0, len(n.memberOrder))
	for _, name := range n.memberOrder {
		out = append(out, Member{Name: name, Line: n.members[name]})
	}
	return out
}

// Edge is a relation between two nodes. Containment edges are stored with
// the owner in From and the nested node in To.
type Edge struct {
	From     string
	To       string
	Rendered string // replaces the default rendering when set
}

// Graph is the node table and edge list of one generation run.
type Graph struct {
	order []string
	nodes map[string]*Node
	edges []Edge
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{nodes: make(map[string]*Node)}
}

// Upsert returns the node called name, creating it with the given headers,
// origin and file when it does not exist yet. An existing node is returned
// untouched so that members discovered earlier are never lost.
func (g *Graph) Upsert(name string, headers []string, origin *symbols.Symbol, file symbols.FileID) (*Node, bool) {
	if n, ok := g.nodes[name]; ok {
		return n, false
	}
	n := &Node{
		Name:    name,
		Headers: headers,
		Origin:  origin,
		File:    file,
	}
	g.nodes[name] = n
	g.order = append(g.order, name)
	return n, true
}

// Node looks a node up by name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns all nodes in first-discovery order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// AddEdge appends an edge. Duplicates are kept.
func (g *Graph) AddEdge(e Edge) {
	g.edges = append(g.edges, e)
}

// Edges returns the edges in append order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// VisitedSet records files a traversal has entered.
type VisitedSet map[symbols.FileID]struct{}

// Mark adds file and reports whether it was newly added.
func (v VisitedSet) Mark(file symbols.FileID) bool {
	if _, ok := v[file]; ok {
		return false
	}
	v[file] = struct{}{}
	return true
}

// Has reports whether file was already entered.
func (v VisitedSet) Has(file symbols.FileID) bool {
	_, ok := v[file]
	return ok
}
