package main

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"erdgen/internal/config"
	"erdgen/internal/export"
	"erdgen/internal/server"
	"erdgen/internal/source"
	"erdgen/internal/symbols"
)

func newIndexCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "index [dir]",
		Short: "Build or refresh the declaration index of a workspace",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := *opts
			if len(args) == 1 && o.root == "" {
				// an explicit directory is the root, not a place to search from
				o.root = args[0]
			}
			a, err := o.openApp(".", func(cfg *config.Config) {
				cfg.Resolver = config.ResolverIndex
			})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))

			report, err := a.RefreshIndex(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return printJSON(opts, report)
			}
			_, err = fmt.Fprintf(opts.stdout, "Indexed %d files (%d parsed, %d unchanged, %d pruned): %d declarations in %.2fs\n",
				report.Files, report.Parsed, report.Skipped, report.Pruned,
				report.Stats.Declarations, report.Duration.Seconds())
			return err
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	return cmd
}

func newSymbolsCmd(opts *globalOptions) *cobra.Command {
	var backend string
	cmd := &cobra.Command{
		Use:   "symbols <file>",
		Short: "Print the symbol tree of a file as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := symbols.NewFileID(args[0])
			a, err := opts.openApp(filepath.Dir(string(file)), func(cfg *config.Config) {
				if cmd.Flags().Changed("backend") {
					cfg.Backend = backend
				}
				cfg.Resolver = config.ResolverNone
			})
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))

			syms, err := a.Provider.Symbols(cmd.Context(), file)
			if err != nil {
				return err
			}
			if syms == nil {
				syms = []symbols.Symbol{}
			}
			return printJSON(opts, syms)
		},
	}
	cmd.Flags().StringVar(&backend, "backend", "", "Symbol backend: treesitter|lsp")
	return cmd
}

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the diagram tools over MCP on stdin/stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.openApp(".", nil)
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))

			srv := server.New(server.Deps{
				Root:      a.Root,
				Generator: a.Builder,
				Provider:  a.Provider,
				Text:      source.Files{},
				Index:     a.Index,
				Logger:    a.Logger,
			}, version)
			return srv.Run(cmd.Context())
		},
	}
}

func newExportCmd(opts *globalOptions) *cobra.Command {
	gen := &generateOptions{}
	var (
		neo4jURI  string
		neo4jUser string
		diagram   string
	)
	cmd := &cobra.Command{
		Use:   "export <file>...",
		Short: "Generate the diagram and load it into Neo4j",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := fileIDs(args)
			a, err := opts.openApp(filepath.Dir(string(files[0])), func(cfg *config.Config) {
				gen.apply(cmd)(cfg)
				if neo4jURI != "" {
					cfg.Neo4j.URI = neo4jURI
				}
				if neo4jUser != "" {
					cfg.Neo4j.User = neo4jUser
				}
			})
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			defer a.Close(context.WithoutCancel(ctx))

			g, err := generate(ctx, a, files)
			if err != nil {
				return err
			}

			n := a.Config.Neo4j
			loader, err := export.NewLoader(ctx, export.Config{
				URI: n.URI, User: n.User, Password: n.Password, Database: n.Database,
			}, a.Logger)
			if err != nil {
				return err
			}
			defer loader.Close(context.WithoutCancel(ctx))

			if err := loader.CreateIndexes(ctx); err != nil {
				return err
			}
			if diagram == "" {
				diagram = string(files[0])
			}
			if err := loader.Load(ctx, g, diagram); err != nil {
				return err
			}
			_, err = fmt.Fprintf(opts.stdout, "Loaded %d classes and %d edges into %s as %q\n",
				len(g.Nodes()), len(g.Edges()), n.URI, diagram)
			return err
		},
	}
	gen.register(cmd)
	f := cmd.Flags()
	f.StringVar(&neo4jURI, "neo4j-uri", "", "Neo4j URI (default from config)")
	f.StringVar(&neo4jUser, "neo4j-user", "", "Neo4j user (default from config)")
	f.StringVar(&diagram, "diagram", "", "Key the diagram is stored under (default: the first file)")
	return cmd
}

func printJSON(opts *globalOptions, v any) error {
	enc := json.NewEncoder(opts.stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	return nil
}
