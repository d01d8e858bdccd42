// Package export loads diagram graphs into Neo4j.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"erdgen/internal/graph"
	"erdgen/internal/render"
)

// Config holds the connection settings.
type Config struct {
	URI      string
	User     string
	Password string
	Database string
}

// Batches are the UNWIND parameters of one diagram.
type Batches struct {
	Nodes   []map[string]any
	Members []map[string]any
	Edges   []map[string]any
}

// Shape flattens g into batches keyed by diagram, which identifies the
// run (normally the entry file).
func Shape(g *graph.Graph, diagram string) Batches {
	var b Batches
	for i, n := range g.Nodes() {
		b.Nodes = append(b.Nodes, map[string]any{
			"diagram": diagram,
			"name":    n.Name,
			"file":    string(n.File),
			"headers": strings.Join(n.Headers, "\n"),
			"ordinal": i,
		})
		for j, m := range n.Members() {
			b.Members = append(b.Members, map[string]any{
				"diagram": diagram,
				"owner":   n.Name,
				"name":    m.Name,
				"line":    m.Line,
				"ordinal": j,
			})
		}
	}
	for i, e := range g.Edges() {
		b.Edges = append(b.Edges, map[string]any{
			"diagram":  diagram,
			"from":     e.From,
			"to":       e.To,
			"label":    edgeLabel(e),
			"rendered": render.Edge(e),
			"ordinal":  i,
		})
	}
	return b
}

// edgeLabel is the text after ": " of a rendered edge, or "depends" for
// default edges.
func edgeLabel(e graph.Edge) string {
	if e.Rendered == "" {
		return "depends"
	}
	if _, label, ok := strings.Cut(e.Rendered, ": "); ok {
		return strings.TrimSpace(label)
	}
	return ""
}

// Loader writes batches with UNWIND queries.
type Loader struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewLoader connects to Neo4j and verifies the connection.
func NewLoader(ctx context.Context, cfg Config, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("failed to create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("failed to reach neo4j at %s: %w", cfg.URI, err)
	}
	return &Loader{driver: driver, database: cfg.Database, logger: logger}, nil
}

// Close releases the underlying driver resources.
func (l *Loader) Close(ctx context.Context) error {
	return l.driver.Close(ctx)
}

func (l *Loader) run(ctx context.Context, cypher string, params map[string]any) error {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if l.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(l.database))
	}
	_, err := neo4j.ExecuteQuery(ctx, l.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	return err
}

// CreateIndexes ensures the lookup indexes exist.
func (l *Loader) CreateIndexes(ctx context.Context) error {
	indexes := []string{
		"CREATE INDEX erd_class_key IF NOT EXISTS FOR (n:ErdClass) ON (n.diagram, n.name)",
		"CREATE INDEX erd_member_key IF NOT EXISTS FOR (n:ErdMember) ON (n.diagram, n.owner)",
	}
	for _, q := range indexes {
		if err := l.run(ctx, q, nil); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}
	return nil
}

// Clean removes a previously loaded diagram.
func (l *Loader) Clean(ctx context.Context, diagram string) error {
	queries := []string{
		"MATCH (m:ErdMember {diagram: $diagram}) DETACH DELETE m",
		"MATCH (n:ErdClass {diagram: $diagram}) DETACH DELETE n",
	}
	for _, q := range queries {
		if err := l.run(ctx, q, map[string]any{"diagram": diagram}); err != nil {
			return fmt.Errorf("clean %s: %w", diagram, err)
		}
	}
	return nil
}

// Load replaces the stored diagram with g.
func (l *Loader) Load(ctx context.Context, g *graph.Graph, diagram string) error {
	if err := l.Clean(ctx, diagram); err != nil {
		return err
	}
	b := Shape(g, diagram)
	l.logger.Info("loading diagram",
		slog.String("diagram", diagram),
		slog.Int("nodes", len(b.Nodes)),
		slog.Int("members", len(b.Members)),
		slog.Int("edges", len(b.Edges)),
	)

	if len(b.Nodes) > 0 {
		err := l.run(ctx,
			`UNWIND $batch AS row
			 MERGE (n:ErdClass {diagram: row.diagram, name: row.name})
			 SET n.file = row.file, n.headers = row.headers, n.ordinal = row.ordinal`,
			map[string]any{"batch": b.Nodes},
		)
		if err != nil {
			return fmt.Errorf("load nodes: %w", err)
		}
	}

	if len(b.Members) > 0 {
		err := l.run(ctx,
			`UNWIND $batch AS row
			 MATCH (c:ErdClass {diagram: row.diagram, name: row.owner})
			 CREATE (m:ErdMember {diagram: row.diagram, owner: row.owner, name: row.name,
			                      line: row.line, ordinal: row.ordinal})
			 CREATE (c)-[:HAS_MEMBER]->(m)`,
			map[string]any{"batch": b.Members},
		)
		if err != nil {
			return fmt.Errorf("load members: %w", err)
		}
	}

	if len(b.Edges) > 0 {
		// edges are not deduplicated, so CREATE rather than MERGE; targets
		// outside the node table become bare classes
		err := l.run(ctx,
			`UNWIND $batch AS row
			 MERGE (a:ErdClass {diagram: row.diagram, name: row.from})
			 MERGE (b:ErdClass {diagram: row.diagram, name: row.to})
			 CREATE (a)-[:RELATES {label: row.label, rendered: row.rendered, ordinal: row.ordinal}]->(b)`,
			map[string]any{"batch": b.Edges},
		)
		if err != nil {
			return fmt.Errorf("load edges: %w", err)
		}
	}
	return nil
}
