package jsonrpc

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// HandlerFunc serves one method call. Returned values are JSON-marshalled
// into the response; a returned error becomes a server-error response.
type HandlerFunc func(params json.RawMessage) (any, error)

// Server is the request loop shared by the stdio mock servers. It registers
// the mcp.list_tools builtin from the declared tool catalogue.
type Server struct {
	tools    []ToolInfo
	handlers map[string]HandlerFunc
}

func NewServer(tools []ToolInfo) *Server {
	s := &Server{
		tools:    tools,
		handlers: make(map[string]HandlerFunc),
	}
	s.Register("mcp.list_tools", func(json.RawMessage) (any, error) {
		return map[string]any{"tools": s.tools}, nil
	})
	return s
}

func (s *Server) Register(method string, handler HandlerFunc) {
	s.handlers[method] = handler
}

// Serve reads line-delimited requests from r until EOF, writing one response
// line per request to w. Blank lines are skipped; parse failures produce a
// parse-error response and the loop continues.
func (s *Server) Serve(r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			s.write(w, Response{
				JSONRPC: Version,
				Error:   &Error{Code: CodeParseError, Message: "Parse error", Data: err.Error()},
			})
			continue
		}

		handler, ok := s.handlers[req.Method]
		if !ok {
			s.write(w, Response{
				JSONRPC: Version,
				ID:      req.ID,
				Error:   &Error{Code: CodeMethodNotFound, Message: fmt.Sprintf("Method not found: %s", req.Method)},
			})
			continue
		}

		result, err := handler(req.Params)
		if err != nil {
			s.write(w, Response{
				JSONRPC: Version,
				ID:      req.ID,
				Error:   &Error{Code: CodeServerError, Message: "Server error", Data: err.Error()},
			})
			continue
		}

		payload, err := json.Marshal(result)
		if err != nil {
			s.write(w, Response{
				JSONRPC: Version,
				ID:      req.ID,
				Error:   &Error{Code: CodeServerError, Message: "Server error", Data: err.Error()},
			})
			continue
		}
		s.write(w, Response{JSONRPC: Version, ID: req.ID, Result: payload})
	}
	return scanner.Err()
}

func (s *Server) write(w io.Writer, resp Response) {
	data, err := json.Marshal(resp)
	if err != nil {
		return
	}
	_, _ = w.Write(append(data, '\n'))
}
