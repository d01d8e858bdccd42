package lsp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"erdgen/internal/symbols"
)

// DefaultServers are used for languages the configuration does not name.
func DefaultServers() map[string]ServerConfig {
	return map[string]ServerConfig{
		"ruby":       {Language: "ruby", Command: "solargraph", Args: []string{"stdio"}},
		"go":         {Language: "go", Command: "gopls"},
		"python":     {Language: "python", Command: "pylsp"},
		"javascript": {Language: "javascript", Command: "typescript-language-server", Args: []string{"--stdio"}},
		"typescript": {Language: "typescript", Command: "typescript-language-server", Args: []string{"--stdio"}},
	}
}

// Pool starts one Client per language on first use and routes each file
// to the client for its language.
type Pool struct {
	root    string
	binDir  string
	servers map[string]ServerConfig
	logger  *slog.Logger

	mu      sync.Mutex
	clients map[string]*Client
}

var (
	_ symbols.Provider           = (*Pool)(nil)
	_ symbols.DefinitionResolver = (*Pool)(nil)
)

// NewPool creates a pool rooted at root. servers are keyed by language.
func NewPool(root, binDir string, servers map[string]ServerConfig, logger *slog.Logger) *Pool {
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		root:    root,
		binDir:  binDir,
		servers: servers,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

func (p *Pool) client(ctx context.Context, file symbols.FileID) (*Client, error) {
	lang := symbols.LanguageOf(file)
	cfg, ok := p.servers[lang]
	if !ok {
		return nil, fmt.Errorf("%w: %q (%s)", ErrUnsupportedLanguage, lang, file)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[lang]; ok {
		return c, nil
	}
	c, err := Start(ctx, cfg, p.root, p.binDir, p.logger)
	if err != nil {
		return nil, err
	}
	p.clients[lang] = c
	return c, nil
}

func (p *Pool) Symbols(ctx context.Context, file symbols.FileID) ([]symbols.Symbol, error) {
	c, err := p.client(ctx, file)
	if err != nil {
		return nil, err
	}
	return c.Symbols(ctx, file)
}

func (p *Pool) ResolveDefinition(ctx context.Context, file symbols.FileID, pos symbols.Position) ([]symbols.Location, error) {
	c, err := p.client(ctx, file)
	if err != nil {
		return nil, err
	}
	return c.ResolveDefinition(ctx, file, pos)
}

// Close stops every started server.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	var errs []error
	for lang, c := range p.clients {
		if err := c.Close(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", lang, err))
		}
		delete(p.clients, lang)
	}
	return errors.Join(errs...)
}
