package lsp

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const contentLengthHeader = "Content-Length"

var errNoContentLength = errors.New("missing or zero Content-Length")

// ReadMessage reads one framed JSON-RPC body. Headers other than
// Content-Length are skipped.
func ReadMessage(r *bufio.Reader) ([]byte, error) {
	n, err := readContentLength(r)
	if err != nil {
		return nil, err
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}
	return body, nil
}

// readContentLength consumes the header block up to the blank line.
func readContentLength(r *bufio.Reader) (int, error) {
	n := 0
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return 0, err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), contentLengthHeader) {
			continue
		}
		if n, err = strconv.Atoi(strings.TrimSpace(value)); err != nil {
			return 0, fmt.Errorf("invalid %s: %w", contentLengthHeader, err)
		}
	}
	if n <= 0 {
		return 0, errNoContentLength
	}
	return n, nil
}

// WriteMessage frames msg as JSON and writes header and body in one call.
func WriteMessage(w io.Writer, msg any) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	frame := make([]byte, 0, len(body)+32)
	frame = append(frame, contentLengthHeader+": "...)
	frame = strconv.AppendInt(frame, int64(len(body)), 10)
	frame = append(frame, "\r\n\r\n"...)
	frame = append(frame, body...)
	_, err = w.Write(frame)
	return err
}
