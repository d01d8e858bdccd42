// Package app wires the configured backend, resolver and plugins into a
// diagram builder. The CLI and the MCP server both run on an App.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"erdgen/internal/config"
	"erdgen/internal/diagram"
	"erdgen/internal/index"
	"erdgen/internal/lsp"
	"erdgen/internal/plugins/mongoid"
	"erdgen/internal/scanner"
	"erdgen/internal/source"
	"erdgen/internal/symbols"
)

type App struct {
	Root     string
	Config   *config.Config
	Logger   *slog.Logger
	Provider symbols.Provider
	Resolver symbols.DefinitionResolver
	Builder  *diagram.Builder
	// Index is nil unless the resolver is the declaration index.
	Index *index.Index

	scanner *scanner.Scanner
	pool    *lsp.Pool
	store   *index.Store
}

// New builds an App for the workspace at root.
func New(cfg *config.Config, root string, logger *slog.Logger) (_ *App, err error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Root: root, Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close(context.Background())
		}
	}()

	a.scanner, err = scanner.New(logger)
	if err != nil {
		return nil, err
	}

	switch cfg.Backend {
	case config.BackendTreeSitter:
		a.Provider = a.scanner
	case config.BackendLSP:
		a.Provider = a.lspPool()
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, cfg.Backend)
	}

	switch cfg.Resolver {
	case config.ResolverIndex:
		path, err := cfg.IndexPath(root)
		if err != nil {
			return nil, err
		}
		a.store, err = index.Open(path)
		if err != nil {
			return nil, err
		}
		a.Index = index.New(a.store, a.scanner, index.Options{Workers: cfg.Index.Workers, Logger: logger})
		a.Resolver = a.Index
	case config.ResolverLSP:
		a.Resolver = a.lspPool()
	case config.ResolverNone:
		a.Resolver = symbols.NoResolver{}
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownResolver, cfg.Resolver)
	}

	plugins, err := Plugins(cfg, logger)
	if err != nil {
		return nil, err
	}

	a.Builder = diagram.New(a.Provider, source.Files{}, diagram.Options{
		Resolver:           a.Resolver,
		Plugins:            plugins,
		MemberAugmentation: cfg.Generate.MemberReferences,
		Logger:             logger,
	})
	return a, nil
}

// Plugins builds the registry of the enabled plugins.
func Plugins(cfg *config.Config, logger *slog.Logger) (diagram.Registry, error) {
	reg := diagram.Registry{}
	if cfg.PluginEnabled("mongoid") {
		vocab, err := cfg.Vocabulary()
		if err != nil {
			return nil, err
		}
		reg[mongoid.Language] = mongoid.New(vocab, logger)
	}
	return reg, nil
}

func (a *App) lspPool() *lsp.Pool {
	if a.pool == nil {
		binDir, err := config.BinDir()
		if err != nil {
			a.Logger.Warn("no managed bin directory", slog.Any("error", err))
		}
		a.pool = lsp.NewPool(a.Root, binDir, a.Config.Servers(), a.Logger)
	}
	return a.pool
}

// Scanner is the tree-sitter provider, available whatever the backend.
func (a *App) Scanner() *scanner.Scanner { return a.scanner }

// RefreshIndex brings the declaration index up to date. It is a no-op
// for other resolvers.
func (a *App) RefreshIndex(ctx context.Context) (*index.Report, error) {
	if a.Index == nil {
		return nil, nil
	}
	report, err := a.Index.Build(ctx, a.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to index %s: %w", a.Root, err)
	}
	return &report, nil
}

// Close stops language servers and closes the index.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.pool != nil {
		errs = append(errs, a.pool.Close(ctx))
	}
	if a.store != nil {
		errs = append(errs, a.store.Close())
	}
	if a.scanner != nil {
		a.scanner.Close()
	}
	return errors.Join(errs...)
}
