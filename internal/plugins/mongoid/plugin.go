// Package mongoid enriches Ruby model classes with the fields and
// associations they declare through Mongoid and ActiveRecord macros.
package mongoid

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"erdgen/internal/attr"
	"erdgen/internal/diagram"
	"erdgen/internal/graph"
	"erdgen/internal/symbols"
)

// Language is the registry key the plugin serves.
const Language = "ruby"

// Plugin implements diagram.Plugin and diagram.MemberAugmenter.
type Plugin struct {
	extractor *attr.Extractor
	logger    *slog.Logger
}

var (
	_ diagram.Plugin          = (*Plugin)(nil)
	_ diagram.MemberAugmenter = (*Plugin)(nil)
)

// New creates the plugin. A nil vocab uses attr.DefaultVocabulary.
func New(vocab attr.Vocabulary, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Plugin{
		extractor: attr.New(vocab),
		logger:    logger.With(slog.String("plugin", "mongoid")),
	}
}

// AugmentNode scans the class body line by line for field and relation
// macros.
func (p *Plugin) AugmentNode(ctx context.Context, node *graph.Node, source string, h *diagram.Handle) error {
	for _, line := range strings.Split(source, "\n") {
		rec, ok := p.extractor.Parse(line)
		if !ok {
			continue
		}

		switch rec.Category {
		case attr.CategoryField:
			h.SetMember(attr.MemberName(rec), attr.FieldLine(node.Name, rec))
		case attr.CategoryEncryptedField:
			h.SetMember(rec.Name, attr.EncryptedFieldLine(node.Name, rec))
		case attr.CategoryRelation:
			if err := p.relation(ctx, node, rec, h); err != nil {
				return err
			}
		default:
			p.logger.Debug("unknown declaration keyword",
				slog.String("keyword", rec.Keyword),
				slog.String("name", rec.Name),
				slog.String("node", node.Name),
			)
		}
	}
	return nil
}

func (p *Plugin) relation(ctx context.Context, node *graph.Node, rec attr.Record, h *diagram.Handle) error {
	target := attr.RelationTarget(rec)
	h.AddRenderedEdge(node.Name, target, attr.RelationLine(node.Name, target, rec))

	className, ok := rec.Meta.ClassName()
	if !ok {
		return nil
	}

	doc, err := h.Text(ctx, h.File(), nil)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", h.File(), err)
	}
	offset, ok := attr.ClassNameProbe(doc, className)
	if !ok {
		p.logger.Debug("class name not found in document",
			slog.String("class_name", className),
			slog.String("file", h.File().String()),
		)
		return nil
	}

	locs, err := p.resolve(ctx, h, className, symbols.PositionAt(doc, offset))
	if err != nil {
		return err
	}
	return enter(ctx, h, locs)
}

func (p *Plugin) resolve(ctx context.Context, h *diagram.Handle, ref string, pos symbols.Position) ([]symbols.Location, error) {
	locs, err := h.ResolveDefinition(ctx, h.File(), pos)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", ref, err)
	}
	if len(locs) == 0 {
		p.logger.Debug("reference not resolved", slog.String("ref", ref))
	}
	return locs, nil
}

// enter merges every file that defines a resolved reference.
func enter(ctx context.Context, h *diagram.Handle, locs []symbols.Location) error {
	for _, loc := range locs {
		if err := h.EnterFile(ctx, loc.File); err != nil {
			return err
		}
	}
	return nil
}
