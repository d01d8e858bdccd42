package lsp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"erdgen/internal/symbols"
	"erdgen/util"
)

const shutdownTimeout = 5 * time.Second

// ServerConfig describes how to start a language server over stdio.
type ServerConfig struct {
	Language string
	Command  string
	Args     []string
	// Path is an explicit binary location tried before $PATH.
	Path string
}

// Client talks to one language server process. It implements
// symbols.Provider and symbols.DefinitionResolver for the files of its
// language. Safe for concurrent use.
type Client struct {
	language string
	root     string
	logger   *slog.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader

	writeMu   sync.Mutex
	nextID    atomic.Int64
	pendingMu sync.Mutex
	pending   map[int64]chan Response
	closed    atomic.Bool
	readDone  chan struct{}
	closeOnce sync.Once

	openMu sync.Mutex
	opened map[symbols.FileID]bool
}

var (
	_ symbols.Provider           = (*Client)(nil)
	_ symbols.DefinitionResolver = (*Client)(nil)
)

// Start launches the server binary found by Locate and performs the
// initialize handshake.
func Start(ctx context.Context, cfg ServerConfig, root, binDir string, logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}
	path, err := Locate(cfg, binDir, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("starting language server",
		slog.String("language", cfg.Language),
		slog.String("command", path),
		slog.String("root", root),
	)

	cmd := exec.Command(path, cfg.Args...)
	cmd.Dir = root
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start %s: %w", path, err)
	}

	c := newClient(stdout, stdin, cfg.Language, root, logger)
	c.cmd = cmd
	if err := c.initialize(ctx); err != nil {
		_ = c.Close(ctx)
		return nil, fmt.Errorf("failed to initialize %s server: %w", cfg.Language, err)
	}
	return c, nil
}

func newClient(r io.Reader, w io.WriteCloser, language, root string, logger *slog.Logger) *Client {
	c := &Client{
		language: language,
		root:     root,
		logger:   logger.With(slog.String("language", language)),
		stdin:    w,
		reader:   bufio.NewReader(r),
		pending:  make(map[int64]chan Response),
		readDone: make(chan struct{}),
		opened:   make(map[symbols.FileID]bool),
	}
	go c.readLoop()
	return c
}

func (c *Client) initialize(ctx context.Context) error {
	rootURI := util.PathToURI(c.root)
	params := InitializeParams{
		ProcessID: os.Getpid(),
		RootURI:   rootURI,
		Capabilities: ClientCapabilities{
			TextDocument: TextDocumentClientCapabilities{
				DocumentSymbol: &DocumentSymbolClientCapabilities{HierarchicalDocumentSymbolSupport: true},
				Definition:     &DefinitionClientCapabilities{LinkSupport: true},
			},
		},
		WorkspaceFolders: []WorkspaceFolder{{URI: rootURI, Name: filepath.Base(c.root)}},
	}

	result, err := c.request(ctx, "initialize", params)
	if err != nil {
		return err
	}
	var init InitializeResult
	if err := json.Unmarshal(result, &init); err != nil {
		return fmt.Errorf("%w: initialize: %v", ErrInvalidResponse, err)
	}
	return c.notify("initialized", struct{}{})
}

// Symbols returns the document symbols of file.
func (c *Client) Symbols(ctx context.Context, file symbols.FileID) ([]symbols.Symbol, error) {
	if err := c.open(file); err != nil {
		return nil, err
	}
	result, err := c.request(ctx, "textDocument/documentSymbol", DocumentSymbolParams{
		TextDocument: TextDocumentIdentifier{URI: util.PathToURI(string(file))},
	})
	if err != nil {
		return nil, fmt.Errorf("documentSymbol %s: %w", file, err)
	}
	return parseDocumentSymbols(result, file)
}

// ResolveDefinition asks the server where the symbol at pos is defined.
func (c *Client) ResolveDefinition(ctx context.Context, file symbols.FileID, pos symbols.Position) ([]symbols.Location, error) {
	if err := c.open(file); err != nil {
		return nil, err
	}
	result, err := c.request(ctx, "textDocument/definition", DefinitionParams{
		TextDocument: TextDocumentIdentifier{URI: util.PathToURI(string(file))},
		Position:     Position{Line: pos.Line, Character: pos.Character},
	})
	if err != nil {
		return nil, fmt.Errorf("definition %s: %w", file, err)
	}
	locs, err := parseLocationResponse(result)
	if err != nil {
		return nil, err
	}
	out := make([]symbols.Location, 0, len(locs))
	for _, loc := range locs {
		out = append(out, toLocation(loc))
	}
	return out, nil
}

// open sends didOpen once per file.
func (c *Client) open(file symbols.FileID) error {
	c.openMu.Lock()
	defer c.openMu.Unlock()
	if c.opened[file] {
		return nil
	}

	content, err := os.ReadFile(string(file))
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	err = c.notify("textDocument/didOpen", DidOpenTextDocumentParams{
		TextDocument: TextDocumentItem{
			URI:        util.PathToURI(string(file)),
			LanguageID: symbols.LanguageOf(file),
			Version:    1,
			Text:       string(content),
		},
	})
	if err != nil {
		return err
	}
	c.opened[file] = true
	return nil
}

func (c *Client) request(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	if c.closed.Load() {
		return nil, ErrServerNotRunning
	}

	id := c.nextID.Add(1)
	ch := make(chan Response, 1)
	c.pendingMu.Lock()
	c.pending[id] = ch
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		delete(c.pending, id)
		c.pendingMu.Unlock()
	}()

	// The read loop may have died between the check above and registration.
	if c.closed.Load() {
		return nil, ErrServerNotRunning
	}

	if err := c.write(Request{JSONRPC: jsonrpcVersion, ID: id, Method: method, Params: params}); err != nil {
		return nil, fmt.Errorf("write %s: %w", method, err)
	}

	select {
	case <-ctx.Done():
		err := ctx.Err()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: %s: %w", ErrRequestTimeout, method, err)
		}
		return nil, fmt.Errorf("%s: %w", method, err)
	case resp, ok := <-ch:
		if !ok {
			return nil, ErrServerNotRunning
		}
		if resp.Error != nil {
			return nil, resp.Error
		}
		return resp.Result, nil
	}
}

func (c *Client) notify(method string, params interface{}) error {
	if c.closed.Load() {
		return ErrServerNotRunning
	}
	return c.write(Notification{JSONRPC: jsonrpcVersion, Method: method, Params: params})
}

func (c *Client) write(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return WriteMessage(c.stdin, v)
}

// incoming is any message the server sends: a response, a notification or
// a request of its own.
type incoming struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Result json.RawMessage `json:"result"`
	Error  *RPCError       `json:"error"`
}

func (c *Client) readLoop() {
	defer close(c.readDone)
	for {
		body, err := ReadMessage(c.reader)
		if err != nil {
			if !c.closed.Load() {
				c.logger.Warn("language server stream closed", slog.Any("error", err))
			}
			c.failPending()
			return
		}
		c.dispatch(body)
	}
}

func (c *Client) dispatch(body []byte) {
	var msg incoming
	if err := json.Unmarshal(body, &msg); err != nil {
		c.logger.Debug("unparseable message", slog.Any("error", err))
		return
	}

	switch {
	case len(msg.ID) > 0 && msg.Method == "":
		var id int64
		if err := json.Unmarshal(msg.ID, &id); err != nil {
			c.logger.Debug("response with foreign id", slog.String("id", string(msg.ID)))
			return
		}
		c.pendingMu.Lock()
		ch, ok := c.pending[id]
		delete(c.pending, id)
		c.pendingMu.Unlock()
		if ok {
			ch <- Response{JSONRPC: jsonrpcVersion, ID: id, Result: msg.Result, Error: msg.Error}
		}
	case len(msg.ID) > 0:
		// Server-to-client request (workspace/configuration,
		// client/registerCapability, ...). A null result keeps servers going.
		reply := map[string]interface{}{"jsonrpc": jsonrpcVersion, "id": msg.ID, "result": nil}
		if err := c.write(reply); err != nil {
			c.logger.Debug("failed to answer server request", slog.String("method", msg.Method), slog.Any("error", err))
		}
	default:
		c.logger.Debug("server notification", slog.String("method", msg.Method))
	}
}

func (c *Client) failPending() {
	c.closed.Store(true)
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
}

// Close shuts the server down gracefully, killing it if it does not exit.
func (c *Client) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		if !c.closed.Load() {
			shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
			_, _ = c.request(shutdownCtx, "shutdown", nil)
			cancel()
			_ = c.notify("exit", nil)
		}
		c.closed.Store(true)
		_ = c.stdin.Close()

		if c.cmd != nil && c.cmd.Process != nil {
			done := make(chan error, 1)
			go func() { done <- c.cmd.Wait() }()
			select {
			case <-time.After(shutdownTimeout):
				_ = c.cmd.Process.Kill()
				<-done
			case <-done:
			}
		}

		select {
		case <-c.readDone:
		case <-time.After(time.Second):
		}
		c.logger.Info("language server stopped")
	})
	return nil
}
