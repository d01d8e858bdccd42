package server

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	guidelinesURI = "erdgen://usage-guidelines"
	schemaPrefix  = "erdgen://schemas/"
)

const usageGuidelines = `# erdgen

erdgen draws Mermaid class diagrams of the models in a code base.

- Call generate_diagram with the absolute path of a model file. Classes,
  interfaces and modules that own members become boxes; nested classes are
  linked to their owner. Ruby models get their Mongoid/ActiveRecord fields
  and associations, and association targets are followed into their own
  files when they can be resolved.
- Call get_symbols_in_file to see what the symbol backend finds in a file
  before drawing it.
- Associations are resolved through a declaration index. Run index after
  large changes; index_status reports whether it is current.
- find_declaration locates a class or member by name.
`

func (s *Server) registerResources() {
	s.mcpServer.AddResource(&mcp.Resource{
		URI:         guidelinesURI,
		Name:        "Usage Guidelines",
		Description: "System prompt and usage guidelines for the erdgen MCP server",
		MIMEType:    "text/markdown",
	}, s.readGuidelines)

	s.schemas = s.toolSchemas()
	s.mcpServer.AddResourceTemplate(&mcp.ResourceTemplate{
		URITemplate: schemaPrefix + "{tool_name}",
		Name:        "Tool Schema",
		Description: "JSON schema for the named tool's arguments",
		MIMEType:    "application/schema+json",
	}, s.readSchema)
}

func (s *Server) readGuidelines(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	return resourceText(guidelinesURI, "text/markdown", s.systemPrompt), nil
}

func (s *Server) readSchema(ctx context.Context, req *mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	tool := strings.TrimPrefix(req.Params.URI, schemaPrefix)
	schema, ok := s.schemas[tool]
	if !ok {
		return nil, fmt.Errorf("unknown tool schema: %q", tool)
	}
	return resourceText(req.Params.URI, "application/schema+json", schema), nil
}

func resourceText(uri, mimeType, text string) *mcp.ReadResourceResult {
	return &mcp.ReadResourceResult{
		Contents: []*mcp.ResourceContents{{URI: uri, MIMEType: mimeType, Text: text}},
	}
}

// toolSchemas infers the argument schema of every registered tool.
func (s *Server) toolSchemas() map[string]string {
	schemas := make(map[string]string, 5)
	for name, infer := range map[string]func(*jsonschema.ForOptions) (*jsonschema.Schema, error){
		"generate_diagram":    jsonschema.For[GenerateDiagramArgs],
		"get_symbols_in_file": jsonschema.For[GetSymbolsInFileArgs],
		"index":               jsonschema.For[IndexArgs],
		"index_status":        jsonschema.For[IndexStatusArgs],
		"find_declaration":    jsonschema.For[FindDeclarationArgs],
	} {
		schema, err := infer(nil)
		if err != nil {
			s.logger.Warn("failed to infer tool schema", "tool", name, "error", err)
			continue
		}
		data, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			s.logger.Warn("failed to encode tool schema", "tool", name, "error", err)
			continue
		}
		schemas[name] = string(data)
	}
	return schemas
}
