package diagram

import (
	"context"

	"erdgen/internal/graph"
	"erdgen/internal/symbols"
)

// Plugin enriches nodes of one language from their source text.
//
// AugmentNode runs once per materialized node, after its structural members
// are in place. source is the text of the node's own symbol range.
type Plugin interface {
	AugmentNode(ctx context.Context, node *graph.Node, source string, h *Handle) error
}

// MemberAugmenter is an optional Plugin capability invoked for each method
// of a node, with the method's source text. It only runs when member
// augmentation is enabled on the Builder.
type MemberAugmenter interface {
	AugmentMember(ctx context.Context, member, parent *symbols.Symbol, source string, h *Handle) error
}

// Registry maps a language identifier to its plugin.
type Registry map[string]Plugin

// For returns the plugin registered for the language of file.
func (r Registry) For(file symbols.FileID) Plugin {
	if r == nil {
		return nil
	}
	return r[symbols.LanguageOf(file)]
}
