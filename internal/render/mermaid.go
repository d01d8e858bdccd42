// Package render serializes a diagram graph into Mermaid class diagram text.
package render

import (
	"strings"

	"erdgen/internal/graph"
)

// Header is the first line of every rendered diagram.
const Header = "classDiagram"

// Mermaid renders g verbatim: nodes in discovery order, members in insertion
// order, then every edge in append order. Nothing is sorted or deduplicated.
func Mermaid(g *graph.Graph) string {
	var sb strings.Builder

	sb.WriteString(Header)
	sb.WriteString("\n")

	for _, n := range g.Nodes() {
		for _, h := range n.Headers {
			sb.WriteString(h)
			sb.WriteString("\n")
		}
		for _, m := range n.Members() {
			sb.WriteString(m.Line)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}

	for _, e := range g.Edges() {
		sb.WriteString(Edge(e))
		sb.WriteString("\n")
	}

	return sb.String()
}

// Edge renders a single edge.
func Edge(e graph.Edge) string {
	if e.Rendered != "" {
		return e.Rendered
	}
	return e.To + " <.. " + e.From
}
