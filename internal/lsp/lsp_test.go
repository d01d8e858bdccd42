package lsp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"erdgen/internal/symbols"
	"erdgen/util"
)

func TestMessageFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMessage(&buf, Notification{JSONRPC: "2.0", Method: "initialized"}))
	assert.Contains(t, buf.String(), "Content-Length: 40\r\n\r\n")

	body, err := ReadMessage(bufio.NewReader(&buf))
	require.NoError(t, err)
	assert.JSONEq(t, `{"jsonrpc":"2.0","method":"initialized"}`, string(body))
}

func TestReadMessageRejectsMissingLength(t *testing.T) {
	_, err := ReadMessage(bufio.NewReader(bytes.NewBufferString("Content-Type: x\r\n\r\n{}")))
	assert.Error(t, err)
}

func TestParseLocationResponse(t *testing.T) {
	tests := []struct {
		name string
		data string
		want []string
	}{
		{"null", `null`, nil},
		{"single", `{"uri":"file:///a.rb","range":{"start":{"line":1,"character":2},"end":{"line":1,"character":4}}}`, []string{"file:///a.rb"}},
		{"array", `[{"uri":"file:///a.rb","range":{}},{"uri":"file:///b.rb","range":{}}]`, []string{"file:///a.rb", "file:///b.rb"}},
		{"links", `[{"targetUri":"file:///c.rb","targetRange":{},"targetSelectionRange":{"start":{"line":3,"character":0},"end":{"line":3,"character":4}}}]`, []string{"file:///c.rb"}},
		{"empty array", `[]`, []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			locs, err := parseLocationResponse(json.RawMessage(tt.data))
			require.NoError(t, err)
			var uris []string
			if tt.want != nil {
				uris = []string{}
			}
			for _, l := range locs {
				uris = append(uris, l.URI)
			}
			assert.Equal(t, tt.want, uris)
		})
	}

	_, err := parseLocationResponse(json.RawMessage(`{"foo":1}`))
	assert.ErrorIs(t, err, ErrInvalidResponse)
}

func TestParseDocumentSymbolsHierarchical(t *testing.T) {
	data := `[{"name":"User","kind":5,"range":{"start":{"line":0,"character":0},"end":{"line":9,"character":3}},
		"selectionRange":{"start":{"line":0,"character":6},"end":{"line":0,"character":10}},
		"children":[{"name":"save","kind":6,"range":{"start":{"line":1,"character":2},"end":{"line":2,"character":5}},"selectionRange":{}}]}]`

	syms, err := parseDocumentSymbols(json.RawMessage(data), "/app/user.rb")
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, symbols.KindClass, syms[0].Kind)
	assert.Equal(t, symbols.Position{Line: 9, Character: 3}, syms[0].Range.End)
	require.Len(t, syms[0].Children, 1)
	assert.Equal(t, "save", syms[0].Children[0].Name)
	assert.Equal(t, symbols.KindMethod, syms[0].Children[0].Kind)
	assert.Equal(t, symbols.FileID("/app/user.rb"), syms[0].Children[0].Range.File)
}

func TestParseDocumentSymbolsFlat(t *testing.T) {
	data := `[
		{"name":"Blog","kind":2,"location":{"uri":"file:///app/post.rb","range":{}}},
		{"name":"Post","kind":5,"containerName":"Blog","location":{"uri":"file:///app/post.rb","range":{}}},
		{"name":"publish","kind":6,"containerName":"Post","location":{"uri":"file:///app/post.rb","range":{}}},
		{"name":"helper","kind":12,"containerName":"Nowhere","location":{"uri":"file:///app/post.rb","range":{}}}
	]`

	syms, err := parseDocumentSymbols(json.RawMessage(data), "/app/post.rb")
	require.NoError(t, err)
	require.Len(t, syms, 2)
	assert.Equal(t, "Blog", syms[0].Name)
	require.Len(t, syms[0].Children, 1)
	assert.Equal(t, "Post", syms[0].Children[0].Name)
	assert.Equal(t, "publish", syms[0].Children[0].Children[0].Name)
	assert.Equal(t, "helper", syms[1].Name)
}

func TestKindFromLSP(t *testing.T) {
	assert.Equal(t, symbols.KindModule, KindFromLSP(SymbolKindNamespace))
	assert.Equal(t, symbols.KindClass, KindFromLSP(SymbolKindStruct))
	assert.Equal(t, symbols.KindInterface, KindFromLSP(SymbolKindInterface))
	assert.Equal(t, symbols.KindProperty, KindFromLSP(SymbolKindField))
	assert.Equal(t, symbols.KindLiteral, KindFromLSP(SymbolKindString))
	assert.Equal(t, symbols.KindOther, KindFromLSP(SymbolKindOperator))
}

func writeExecutable(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, executableName(name))
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))
	return path
}

func TestLocate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("executable bits")
	}
	t.Setenv("PATH", t.TempDir())
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	custom := writeExecutable(t, t.TempDir(), "my-solargraph")
	got, err := Locate(ServerConfig{Language: "ruby", Command: "solargraph", Path: custom}, "", logger)
	require.NoError(t, err)
	assert.Equal(t, custom, got)

	binDir := t.TempDir()
	managed := writeExecutable(t, binDir, "solargraph")
	got, err = Locate(ServerConfig{Language: "ruby", Command: "solargraph", Path: "/does/not/exist"}, binDir, logger)
	require.NoError(t, err)
	assert.Equal(t, managed, got)

	pathDir := t.TempDir()
	t.Setenv("PATH", pathDir)
	system := writeExecutable(t, pathDir, "solargraph")
	got, err = Locate(ServerConfig{Language: "ruby", Command: "solargraph"}, binDir, logger)
	require.NoError(t, err)
	assert.Equal(t, system, got)

	_, err = Locate(ServerConfig{Language: "go", Command: "gopls"}, binDir, logger)
	assert.ErrorIs(t, err, ErrServerNotInstalled)
}

// fakeServer answers requests through handler over in-memory pipes.
type fakeServer struct {
	mu      sync.Mutex
	methods []string
}

func (s *fakeServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.methods...)
}

func startFake(t *testing.T, handler func(method string, params json.RawMessage) (interface{}, *RPCError, bool)) (*Client, *fakeServer) {
	t.Helper()
	toServerR, toServerW := io.Pipe()
	toClientR, toClientW := io.Pipe()
	srv := &fakeServer{}

	go func() {
		defer toClientW.Close()
		r := bufio.NewReader(toServerR)
		for {
			body, err := ReadMessage(r)
			if err != nil {
				return
			}
			var msg struct {
				ID     *int64          `json:"id"`
				Method string          `json:"method"`
				Params json.RawMessage `json:"params"`
			}
			if err := json.Unmarshal(body, &msg); err != nil {
				return
			}
			srv.mu.Lock()
			srv.methods = append(srv.methods, msg.Method)
			srv.mu.Unlock()
			if msg.ID == nil {
				continue
			}
			result, rpcErr, reply := handler(msg.Method, msg.Params)
			if !reply {
				continue
			}
			resp := map[string]interface{}{"jsonrpc": "2.0", "id": *msg.ID}
			if rpcErr != nil {
				resp["error"] = rpcErr
			} else {
				resp["result"] = result
			}
			if err := WriteMessage(toClientW, resp); err != nil {
				return
			}
		}
	}()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	c := newClient(toClientR, toServerW, "ruby", t.TempDir(), logger)
	t.Cleanup(func() { _ = c.Close(context.Background()) })
	return c, srv
}

func TestClientRoundTrip(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "user.rb")
	target := filepath.Join(dir, "post.rb")
	require.NoError(t, os.WriteFile(file, []byte("class User\nend\n"), 0o644))

	c, srv := startFake(t, func(method string, params json.RawMessage) (interface{}, *RPCError, bool) {
		switch method {
		case "initialize":
			return map[string]interface{}{"capabilities": map[string]interface{}{}}, nil, true
		case "textDocument/documentSymbol":
			return []DocumentSymbol{{Name: "User", Kind: SymbolKindClass}}, nil, true
		case "textDocument/definition":
			return Location{URI: util.PathToURI(target), Range: Range{Start: Position{Line: 1, Character: 2}}}, nil, true
		}
		return nil, nil, true
	})
	ctx := context.Background()

	require.NoError(t, c.initialize(ctx))

	syms, err := c.Symbols(ctx, symbols.FileID(file))
	require.NoError(t, err)
	require.Len(t, syms, 1)
	assert.Equal(t, "User", syms[0].Name)

	locs, err := c.ResolveDefinition(ctx, symbols.FileID(file), symbols.Position{Line: 0, Character: 6})
	require.NoError(t, err)
	require.Len(t, locs, 1)
	assert.Equal(t, symbols.FileID(target), locs[0].File)
	assert.Equal(t, symbols.Position{Line: 1, Character: 2}, locs[0].Range.Start)

	require.NoError(t, c.Close(ctx))
	assert.Equal(t, []string{
		"initialize",
		"initialized",
		"textDocument/didOpen",
		"textDocument/documentSymbol",
		"textDocument/definition",
		"shutdown",
		"exit",
	}, srv.seen())

	_, err = c.Symbols(ctx, symbols.FileID(file))
	assert.ErrorIs(t, err, ErrServerNotRunning)
}

func TestClientRPCError(t *testing.T) {
	file := filepath.Join(t.TempDir(), "user.rb")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	c, _ := startFake(t, func(string, json.RawMessage) (interface{}, *RPCError, bool) {
		return nil, &RPCError{Code: -32601, Message: "method not found"}, true
	})

	_, err := c.Symbols(context.Background(), symbols.FileID(file))
	var rpcErr *RPCError
	require.True(t, errors.As(err, &rpcErr))
	assert.True(t, rpcErr.IsMethodNotFound())
}

func TestClientRequestTimeout(t *testing.T) {
	file := filepath.Join(t.TempDir(), "user.rb")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	c, _ := startFake(t, func(method string, _ json.RawMessage) (interface{}, *RPCError, bool) {
		return nil, nil, method != "textDocument/definition"
	})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.ResolveDefinition(ctx, symbols.FileID(file), symbols.Position{})
	assert.ErrorIs(t, err, ErrRequestTimeout)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClientRequestCanceled(t *testing.T) {
	file := filepath.Join(t.TempDir(), "user.rb")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	c, _ := startFake(t, func(method string, _ json.RawMessage) (interface{}, *RPCError, bool) {
		return nil, nil, method != "textDocument/definition"
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	_, err := c.ResolveDefinition(ctx, symbols.FileID(file), symbols.Position{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrRequestTimeout)
}

func TestPoolRejectsUnconfiguredLanguage(t *testing.T) {
	p := NewPool(t.TempDir(), "", map[string]ServerConfig{}, nil)
	_, err := p.Symbols(context.Background(), "/app/user.rb")
	assert.ErrorIs(t, err, ErrUnsupportedLanguage)
	assert.NoError(t, p.Close(context.Background()))
}
