// Package server exposes diagram generation and the declaration index as
// MCP tools over stdio.
package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"erdgen/internal/graph"
	"erdgen/internal/index"
	"erdgen/internal/symbols"
)

type IndexStatus string

const (
	IndexStatusIdle       IndexStatus = "idle"
	IndexStatusInProgress IndexStatus = "in_progress"
	IndexStatusReady      IndexStatus = "ready"
	IndexStatusFailed     IndexStatus = "failed"
	// IndexStatusDisabled means the configured resolver keeps no index.
	IndexStatusDisabled IndexStatus = "disabled"
)

const indexWaitTimeout = 30 * time.Second

// Generator runs one diagram generation. diagram.Builder is one.
type Generator interface {
	Generate(ctx context.Context, files ...symbols.FileID) (*graph.Graph, error)
}

// Deps are the collaborators behind the tools.
type Deps struct {
	Root      string
	Generator Generator
	Provider  symbols.Provider
	Text      symbols.TextAccessor
	// Index may be nil; index tools then report the index as disabled.
	Index  *index.Index
	Logger *slog.Logger
}

type Server struct {
	mcpServer    *mcp.Server
	deps         Deps
	logger       *slog.Logger
	systemPrompt string
	schemas      map[string]string

	indexMu       sync.RWMutex
	indexStatus   IndexStatus
	indexErr      error
	indexReady    chan struct{}
	indexStarted  time.Time
	indexDuration time.Duration
	lastReport    *index.Report
}

// New registers every tool and resource on a fresh MCP server.
func New(deps Deps, version string) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		deps:         deps,
		logger:       logger,
		systemPrompt: usageGuidelines,
		indexStatus:  IndexStatusIdle,
		indexReady:   make(chan struct{}),
	}
	if deps.Index == nil {
		s.indexStatus = IndexStatusDisabled
		close(s.indexReady)
	}

	s.mcpServer = mcp.NewServer(&mcp.Implementation{
		Name:    "erdgen",
		Version: version,
	}, &mcp.ServerOptions{
		Instructions: usageGuidelines,
	})
	s.registerTools()
	s.registerResources()
	return s
}

// Run serves over stdin/stdout until the client disconnects or ctx ends.
// The initial index is built in the background.
func (s *Server) Run(ctx context.Context) error {
	if err := s.beginIndex(); err == nil {
		go func() {
			if _, err := s.buildIndex(ctx); err != nil {
				s.logger.Error("initial indexing failed", slog.Any("error", err))
			}
		}()
	}
	return s.mcpServer.Run(ctx, &mcp.StdioTransport{})
}

// MCP returns the underlying server, for custom transports.
func (s *Server) MCP() *mcp.Server { return s.mcpServer }

// runIndex builds the index and tracks its status. A build already in
// progress is reported as an error.
func (s *Server) runIndex(ctx context.Context) (*index.Report, error) {
	if err := s.beginIndex(); err != nil {
		return nil, err
	}
	return s.buildIndex(ctx)
}

func (s *Server) beginIndex() error {
	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	switch s.indexStatus {
	case IndexStatusDisabled:
		return errIndexDisabled
	case IndexStatusInProgress:
		return errIndexBusy
	case IndexStatusReady, IndexStatusFailed:
		s.indexReady = make(chan struct{})
	}
	s.indexStatus = IndexStatusInProgress
	s.indexErr = nil
	s.indexStarted = time.Now()
	return nil
}

func (s *Server) buildIndex(ctx context.Context) (*index.Report, error) {
	report, err := s.deps.Index.Build(ctx, s.deps.Root)

	s.indexMu.Lock()
	defer s.indexMu.Unlock()
	s.indexDuration = time.Since(s.indexStarted)
	if err != nil {
		s.indexStatus = IndexStatusFailed
		s.indexErr = err
	} else {
		s.indexStatus = IndexStatusReady
		s.lastReport = &report
	}
	close(s.indexReady)
	if err != nil {
		return nil, err
	}
	return &report, nil
}

// GetIndexStatus returns the status, the last error and how long the last
// (or running) build took.
func (s *Server) GetIndexStatus() (IndexStatus, error, time.Duration) {
	s.indexMu.RLock()
	defer s.indexMu.RUnlock()
	duration := s.indexDuration
	if s.indexStatus == IndexStatusInProgress {
		duration = time.Since(s.indexStarted)
	}
	return s.indexStatus, s.indexErr, duration
}

// WaitForIndex blocks until no build is running. It returns at once when
// no build was ever started.
func (s *Server) WaitForIndex(ctx context.Context) error {
	s.indexMu.RLock()
	ready := s.indexReady
	idle := s.indexStatus == IndexStatusIdle
	s.indexMu.RUnlock()
	if idle {
		return nil
	}

	select {
	case <-ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: msg}},
		IsError: true,
	}
}
