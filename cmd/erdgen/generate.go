package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"erdgen/internal/app"
	"erdgen/internal/config"
	"erdgen/internal/graph"
	"erdgen/internal/render"
	"erdgen/internal/symbols"
)

type generateOptions struct {
	backend          string
	resolver         string
	output           string
	memberReferences bool
}

func (g *generateOptions) apply(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		flags := cmd.Flags()
		if flags.Changed("backend") {
			cfg.Backend = g.backend
		}
		if flags.Changed("resolver") {
			cfg.Resolver = g.resolver
		}
		if flags.Changed("output") {
			cfg.Generate.Output = g.output
		}
		if flags.Changed("member-references") {
			cfg.Generate.MemberReferences = g.memberReferences
		}
	}
}

func (g *generateOptions) register(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&g.backend, "backend", "", "Symbol backend: treesitter|lsp")
	f.StringVar(&g.resolver, "resolver", "", "Definition resolver: index|lsp|none")
	f.BoolVar(&g.memberReferences, "member-references", false, "Follow constants referenced from method bodies")
}

func newGenerateCmd(opts *globalOptions) *cobra.Command {
	gen := &generateOptions{}
	cmd := &cobra.Command{
		Use:   "generate <file>...",
		Short: "Print the class diagram reachable from the given files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			files := fileIDs(args)
			a, err := opts.openApp(filepath.Dir(string(files[0])), gen.apply(cmd))
			if err != nil {
				return err
			}
			defer a.Close(context.WithoutCancel(cmd.Context()))

			g, err := generate(cmd.Context(), a, files)
			if err != nil {
				return err
			}
			return writeDiagram(a.Config.Generate.Output, opts, render.Mermaid(g))
		},
	}
	gen.register(cmd)
	cmd.Flags().StringVarP(&gen.output, "output", "o", "", "Write the diagram to this file instead of stdout")
	return cmd
}

// generate refreshes the declaration index when it is the resolver, then
// runs one generation.
func generate(ctx context.Context, a *app.App, files []symbols.FileID) (*graph.Graph, error) {
	if _, err := a.RefreshIndex(ctx); err != nil {
		return nil, err
	}
	g, err := a.Builder.Generate(ctx, files...)
	if err != nil {
		return nil, fmt.Errorf("failed to generate diagram: %w", err)
	}
	return g, nil
}

func writeDiagram(path string, opts *globalOptions, diagram string) error {
	if path == "" {
		_, err := fmt.Fprint(opts.stdout, diagram)
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	if err := os.WriteFile(path, []byte(diagram), 0o644); err != nil {
		return fmt.Errorf("failed to write diagram: %w", err)
	}
	return nil
}

func fileIDs(args []string) []symbols.FileID {
	files := make([]symbols.FileID, 0, len(args))
	for _, arg := range args {
		files = append(files, symbols.NewFileID(arg))
	}
	return files
}
