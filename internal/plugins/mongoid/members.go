package mongoid

import (
	"context"
	"regexp"

	"erdgen/internal/attr"
	"erdgen/internal/diagram"
	"erdgen/internal/symbols"
)

// constantRef matches a constant used as a receiver: Invoice.create,
// Billing::Gateway.charge, Mailer::Weekly::deliver.
var constantRef = regexp.MustCompile(`\b([A-Z]\w*(?:::[A-Z]\w*)*)(?:\.|::)[a-z_]`)

// AugmentMember looks for constants a method calls into. Each one that
// resolves to a definition becomes a dependency edge from the parent and
// its defining files are merged.
func (p *Plugin) AugmentMember(ctx context.Context, member, parent *symbols.Symbol, source string, h *diagram.Handle) error {
	seen := map[string]struct{}{}

	for _, m := range constantRef.FindAllStringSubmatchIndex(source, -1) {
		ref := source[m[2]:m[3]]
		target := attr.LastSegment(ref)
		if target == parent.Name {
			continue
		}
		if _, ok := seen[ref]; ok {
			continue
		}
		seen[ref] = struct{}{}

		// Point at the final segment, which is what resolvers look up.
		offset := m[3] - len(target)
		locs, err := p.resolve(ctx, h, ref, documentPosition(member.Range.Start, source, offset))
		if err != nil {
			return err
		}
		if len(locs) == 0 {
			continue
		}
		h.AddEdge(parent.Name, target)
		if err := enter(ctx, h, locs); err != nil {
			return err
		}
	}
	return nil
}

// documentPosition maps an offset in a member's text to a position in the
// whole document, given where the member starts.
func documentPosition(start symbols.Position, source string, offset int) symbols.Position {
	rel := symbols.PositionAt(source, offset)
	if rel.Line == 0 {
		rel.Character += start.Character
	}
	rel.Line += start.Line
	return rel
}

