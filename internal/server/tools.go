package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"erdgen/internal/attr"
	"erdgen/internal/index"
	"erdgen/internal/render"
	"erdgen/internal/symbols"
)

var (
	errIndexDisabled = errors.New("the configured resolver keeps no declaration index")
	errIndexBusy     = errors.New("indexing already in progress")
)

// Arguments structs

type GenerateDiagramArgs struct {
	FilePath string `json:"file_path" jsonschema:"The absolute path of the file to start the diagram from"`
}

type GetSymbolsInFileArgs struct {
	FilePath string `json:"file_path" jsonschema:"The absolute path to the file to analyze"`
}

type IndexArgs struct{}

type IndexStatusArgs struct{}

type FindDeclarationArgs struct {
	Name       string `json:"name" jsonschema:"Name of the class, module or member; a qualified name is looked up by its last segment"`
	WithSource bool   `json:"with_source,omitempty" jsonschema:"If true, includes the source code of each declaration"`
}

func (s *Server) registerTools() {
	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "generate_diagram",
		Description: "Generates a Mermaid class diagram starting from a source file, following model relations into other files",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GenerateDiagramArgs) (*mcp.CallToolResult, any, error) {
		if args.FilePath == "" {
			return errorResult("file_path is required"), nil, nil
		}
		if res := s.awaitIndex(ctx); res != nil {
			return res, nil, nil
		}

		g, err := s.deps.Generator.Generate(ctx, symbols.NewFileID(args.FilePath))
		if err != nil {
			return errorResult(fmt.Sprintf("Generation failed: %v", err)), nil, nil
		}
		return textResult(render.Mermaid(g)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "get_symbols_in_file",
		Description: "Returns the symbol tree of a file as seen by the configured backend",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args GetSymbolsInFileArgs) (*mcp.CallToolResult, any, error) {
		if args.FilePath == "" {
			return errorResult("file_path is required"), nil, nil
		}
		syms, err := s.deps.Provider.Symbols(ctx, symbols.NewFileID(args.FilePath))
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if syms == nil {
			syms = []symbols.Symbol{}
		}
		jsonBytes, _ := json.MarshalIndent(syms, "", "  ")
		return textResult(string(jsonBytes)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "index",
		Description: "Scans the workspace and updates the declaration index used to resolve model references",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args IndexArgs) (*mcp.CallToolResult, any, error) {
		report, err := s.runIndex(ctx)
		switch {
		case errors.Is(err, errIndexDisabled), errors.Is(err, errIndexBusy):
			return errorResult(err.Error()), nil, nil
		case err != nil:
			return errorResult(fmt.Sprintf("Indexing failed: %v", err)), nil, nil
		}

		msg := fmt.Sprintf("Indexed %d files (%d parsed, %d unchanged, %d pruned): %d declarations in %.2fs",
			report.Files, report.Parsed, report.Skipped, report.Pruned,
			report.Stats.Declarations, report.Duration.Seconds())
		return textResult(msg), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "index_status",
		Description: "Returns the current indexing status of the workspace",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args IndexStatusArgs) (*mcp.CallToolResult, any, error) {
		status, err, duration := s.GetIndexStatus()

		result := map[string]any{
			"status": string(status),
		}
		if duration > 0 {
			result["duration_seconds"] = duration.Seconds()
		}
		if err != nil {
			result["error"] = err.Error()
		}
		s.indexMu.RLock()
		if s.lastReport != nil {
			result["files"] = s.lastReport.Stats.Files
			result["declarations"] = s.lastReport.Stats.Declarations
		}
		s.indexMu.RUnlock()

		jsonBytes, _ := json.MarshalIndent(result, "", "  ")
		return textResult(string(jsonBytes)), nil, nil
	})

	mcp.AddTool(s.mcpServer, &mcp.Tool{
		Name:        "find_declaration",
		Description: "Finds where a class, module or member is declared, optionally with its source",
	}, func(ctx context.Context, req *mcp.CallToolRequest, args FindDeclarationArgs) (*mcp.CallToolResult, any, error) {
		if s.deps.Index == nil {
			return errorResult(errIndexDisabled.Error()), nil, nil
		}
		if res := s.awaitIndex(ctx); res != nil {
			return res, nil, nil
		}

		decls, err := s.deps.Index.Store().Named(ctx, attr.LastSegment(args.Name))
		if err != nil {
			return errorResult(fmt.Sprintf("Query failed: %v", err)), nil, nil
		}
		if len(decls) == 0 {
			return textResult("Declaration not found."), nil, nil
		}

		type DeclarationInfo struct {
			index.Declaration
			Source string `json:"source,omitempty"`
		}

		info := make([]DeclarationInfo, 0, len(decls))
		for _, d := range decls {
			di := DeclarationInfo{Declaration: d}
			if args.WithSource && s.deps.Text != nil {
				rng := d.Range
				src, err := s.deps.Text.Text(ctx, d.File, &rng)
				if err != nil {
					// return what we have
					s.logger.Warn("failed to read declaration source",
						slog.String("name", d.Name), slog.String("file", string(d.File)), slog.Any("error", err))
				} else {
					di.Source = src
				}
			}
			info = append(info, di)
		}

		jsonBytes, _ := json.MarshalIndent(info, "", "  ")
		return textResult(string(jsonBytes)), nil, nil
	})
}

// awaitIndex waits for a running build. It returns a tool result when the
// caller should stop.
func (s *Server) awaitIndex(ctx context.Context) *mcp.CallToolResult {
	waitCtx, cancel := context.WithTimeout(ctx, indexWaitTimeout)
	defer cancel()
	if err := s.WaitForIndex(waitCtx); err != nil {
		status, indexErr, _ := s.GetIndexStatus()
		if indexErr != nil {
			return errorResult(fmt.Sprintf("Indexing failed: %v", indexErr))
		}
		if status == IndexStatusInProgress {
			return errorResult("Indexing in progress, please try again")
		}
		return errorResult(fmt.Sprintf("Indexing wait failed: %v", err))
	}
	return nil
}
