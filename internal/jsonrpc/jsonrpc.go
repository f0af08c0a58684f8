// Package jsonrpc implements the line-delimited JSON-RPC 2.0 over stdio
// protocol the mock collaborators speak: one request object per line on
// stdin, one response object per line on stdout.
package jsonrpc

import "encoding/json"

const Version = "2.0"

// Standard JSON-RPC error codes plus the generic server error the mocks use.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeServerError    = -32000
)

type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      string          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC error object. It doubles as a Go error so callers can
// surface it directly.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// ToolInfo describes one tool exposed by a mock server, returned by the
// mcp.list_tools builtin.
type ToolInfo struct {
	Name   string         `json:"name"`
	Input  map[string]any `json:"input"`
	Output map[string]any `json:"output"`
}
