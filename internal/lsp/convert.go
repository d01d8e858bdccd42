package lsp

import (
	"encoding/json"
	"fmt"

	"erdgen/internal/symbols"
	"erdgen/util"
)

var symbolKinds = map[int]symbols.Kind{
	SymbolKindModule:      symbols.KindModule,
	SymbolKindNamespace:   symbols.KindModule,
	SymbolKindPackage:     symbols.KindModule,
	SymbolKindClass:       symbols.KindClass,
	SymbolKindStruct:      symbols.KindClass,
	SymbolKindInterface:   symbols.KindInterface,
	SymbolKindMethod:      symbols.KindMethod,
	SymbolKindFunction:    symbols.KindMethod,
	SymbolKindConstructor: symbols.KindConstructor,
	SymbolKindConstant:    symbols.KindConstant,
	SymbolKindEnumMember:  symbols.KindConstant,
	SymbolKindVariable:    symbols.KindVariable,
	SymbolKindProperty:    symbols.KindProperty,
	SymbolKindField:       symbols.KindProperty,
	SymbolKindString:      symbols.KindLiteral,
}

// KindFromLSP maps an LSP SymbolKind onto the diagram's kinds.
func KindFromLSP(kind int) symbols.Kind {
	if k, ok := symbolKinds[kind]; ok {
		return k
	}
	return symbols.KindOther
}

// parseDocumentSymbols accepts both DocumentSymbol[] and the flat
// SymbolInformation[] form.
func parseDocumentSymbols(data json.RawMessage, file symbols.FileID) ([]symbols.Symbol, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: documentSymbol: %v", ErrInvalidResponse, err)
	}
	if len(raw) == 0 {
		return nil, nil
	}

	var probe struct {
		Location *Location `json:"location"`
	}
	if err := json.Unmarshal(raw[0], &probe); err != nil {
		return nil, fmt.Errorf("%w: documentSymbol: %v", ErrInvalidResponse, err)
	}

	if probe.Location != nil {
		var infos []SymbolInformation
		if err := json.Unmarshal(data, &infos); err != nil {
			return nil, fmt.Errorf("%w: documentSymbol: %v", ErrInvalidResponse, err)
		}
		return nestInformation(infos, file), nil
	}

	var docs []DocumentSymbol
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("%w: documentSymbol: %v", ErrInvalidResponse, err)
	}
	return convertDocumentSymbols(docs, file), nil
}

func convertDocumentSymbols(docs []DocumentSymbol, file symbols.FileID) []symbols.Symbol {
	if len(docs) == 0 {
		return nil
	}
	out := make([]symbols.Symbol, 0, len(docs))
	for _, d := range docs {
		out = append(out, symbols.Symbol{
			Kind:     KindFromLSP(d.Kind),
			Name:     d.Name,
			Range:    toRange(file, d.Range),
			Children: convertDocumentSymbols(d.Children, file),
		})
	}
	return out
}

// nestInformation rebuilds a tree from containerName links. A symbol whose
// container was not seen as a container earlier stays at the root.
func nestInformation(infos []SymbolInformation, file symbols.FileID) []symbols.Symbol {
	type node struct {
		sym      symbols.Symbol
		children []*node
	}

	var roots []*node
	containers := make(map[string]*node)
	for _, info := range infos {
		n := &node{sym: symbols.Symbol{
			Kind:  KindFromLSP(info.Kind),
			Name:  info.Name,
			Range: toRange(file, info.Location.Range),
		}}
		if parent, ok := containers[info.ContainerName]; ok && info.ContainerName != "" {
			parent.children = append(parent.children, n)
		} else {
			roots = append(roots, n)
		}
		if n.sym.Kind.IsContainer() {
			containers[info.Name] = n
		}
	}

	var build func([]*node) []symbols.Symbol
	build = func(nodes []*node) []symbols.Symbol {
		if len(nodes) == 0 {
			return nil
		}
		out := make([]symbols.Symbol, 0, len(nodes))
		for _, n := range nodes {
			s := n.sym
			s.Children = build(n.children)
			out = append(out, s)
		}
		return out
	}
	return build(roots)
}

// parseLocationResponse parses Location, Location[], LocationLink or
// LocationLink[]; null is an empty answer.
func parseLocationResponse(data json.RawMessage) ([]Location, error) {
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	if data[0] == '[' {
		// LocationLinks carry targetUri
		var links []LocationLink
		if err := json.Unmarshal(data, &links); err == nil && len(links) > 0 && links[0].TargetURI != "" {
			locations := make([]Location, len(links))
			for i, link := range links {
				locations[i] = Location{URI: link.TargetURI, Range: link.TargetSelectionRange}
			}
			return locations, nil
		}

		var locations []Location
		if err := json.Unmarshal(data, &locations); err == nil {
			return locations, nil
		}
	}

	var single Location
	if err := json.Unmarshal(data, &single); err == nil && single.URI != "" {
		return []Location{single}, nil
	}

	var link LocationLink
	if err := json.Unmarshal(data, &link); err == nil && link.TargetURI != "" {
		return []Location{{URI: link.TargetURI, Range: link.TargetSelectionRange}}, nil
	}

	return nil, ErrInvalidResponse
}

func toRange(file symbols.FileID, r Range) symbols.Range {
	return symbols.Range{
		File:  file,
		Start: symbols.Position{Line: r.Start.Line, Character: r.Start.Character},
		End:   symbols.Position{Line: r.End.Line, Character: r.End.Character},
	}
}

func toLocation(loc Location) symbols.Location {
	file := symbols.NewFileID(util.URIToPath(loc.URI))
	return symbols.Location{File: file, Range: toRange(file, loc.Range)}
}
