package lsp

import (
	"errors"
	"fmt"
)

var (
	// ErrServerNotInstalled means no binary was found for the configured command.
	ErrServerNotInstalled = errors.New("lsp server not installed")
	// ErrServerNotRunning is returned for requests after Close or a crash.
	ErrServerNotRunning = errors.New("lsp server not running")
	// ErrRequestTimeout wraps a context deadline hit while waiting for a
	// response. Plain cancellation is returned as context.Canceled.
	ErrRequestTimeout = errors.New("lsp request timeout")
	// ErrInvalidResponse means a result had none of the shapes allowed for it.
	ErrInvalidResponse = errors.New("invalid lsp response")
	// ErrUnsupportedLanguage means no server is configured for a file's language.
	ErrUnsupportedLanguage = errors.New("no lsp server configured for language")
)

// RPCError is a JSON-RPC error returned by the server.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("lsp error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("lsp error %d: %s", e.Code, e.Message)
}

// IsMethodNotFound reports whether the server does not implement the method.
func (e *RPCError) IsMethodNotFound() bool {
	return e.Code == -32601
}
