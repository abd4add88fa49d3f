package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"runtime/debug"
	"unicode/utf8"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	lwidebug "github.com/standardbeagle/lwi/internal/debug"
	"github.com/standardbeagle/lwi/internal/version"
)

// methodFunc handles one JSON-RPC method and returns its result
type methodFunc func(ctx context.Context, req *Request) (any, error)

// router is one ordered group of methods
type router struct {
	name    string
	methods map[string]methodFunc
}

// InitializeResult is the result of initialize
type InitializeResult struct {
	ProtocolVersion string                  `json:"protocolVersion"`
	ServerInfo      *mcp.Implementation     `json:"serverInfo"`
	Capabilities    *mcp.ServerCapabilities `json:"capabilities"`
	Workspace       WorkspaceInfo           `json:"workspace"`
	BuildID         string                  `json:"buildId"`
}

// WorkspaceInfo identifies the workspace served by this process
type WorkspaceInfo struct {
	Root     string   `json:"root"`
	Services []string `json:"services"`
}

// Dispatcher decodes request lines and routes them to lifecycle, tool and
// query methods, in that order. It is safe for concurrent use; each
// connection calls it sequentially.
type Dispatcher struct {
	handlers *Handlers
	routers  []router
}

// NewDispatcher builds the method table
func NewDispatcher(handlers *Handlers) *Dispatcher {
	d := &Dispatcher{handlers: handlers}

	lifecycle := router{name: "lifecycle", methods: map[string]methodFunc{
		"initialize":                d.initialize,
		"ping":                      func(context.Context, *Request) (any, error) { return struct{}{}, nil },
		"notifications/initialized": func(context.Context, *Request) (any, error) { return nil, nil },
	}}

	tools := router{name: "tools", methods: map[string]methodFunc{
		"tools/list": func(context.Context, *Request) (any, error) {
			return &mcp.ListToolsResult{Tools: Tools()}, nil
		},
		"tools/call": d.callTool,
	}}

	query := router{name: "query", methods: map[string]methodFunc{}}
	for _, q := range queryMethods {
		fn := d.query(q)
		query.methods[q.name] = fn
		for _, alias := range q.aliases {
			query.methods[alias] = fn
		}
	}

	d.routers = []router{lifecycle, tools, query}
	return d
}

// HandleLine processes one request line. It returns nil when no response
// is due, which is the case for notifications.
func (d *Dispatcher) HandleLine(ctx context.Context, line []byte) *Response {
	if !json.Valid(line) {
		return NewErrorResponse(nil, CodeParseError, "parse error: invalid JSON")
	}
	if !utf8.Valid(line) {
		return NewErrorResponse(nil, CodeParseError, "parse error: request is not valid UTF-8")
	}

	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return NewErrorResponse(nil, CodeInvalidRequest, "invalid request: expected a JSON-RPC request object")
	}
	if !validID(req.ID) {
		return NewErrorResponse(nil, CodeInvalidRequest, "invalid request: id must be a string, number or null")
	}
	if req.JSONRPC != JSONRPCVersion {
		return NewErrorResponse(req.ID, CodeInvalidRequest, fmt.Sprintf("invalid request: jsonrpc must be %q", JSONRPCVersion))
	}
	if req.Method == "" {
		return NewErrorResponse(req.ID, CodeInvalidRequest, "invalid request: method is required")
	}

	resp := d.Handle(ctx, &req)
	if req.IsNotification() {
		return nil
	}
	return resp
}

// Handle dispatches a decoded request
func (d *Dispatcher) Handle(ctx context.Context, req *Request) (resp *Response) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("panic handling %s: %v\n%s", req.Method, r, debug.Stack())
			resp = NewErrorResponse(req.ID, CodeInternalError, fmt.Sprintf("internal error: %v", r))
		}
	}()

	fn, group, ok := d.lookup(req.Method)
	if !ok {
		return NewErrorResponse(req.ID, CodeMethodNotFound, "method not found: "+req.Method)
	}
	lwidebug.LogRPC("%s -> %s router\n", req.Method, group)

	result, err := fn(ctx, req)
	if err != nil {
		return errorResponse(req.ID, err)
	}
	return NewResult(req.ID, result)
}

// Methods returns every routable method name, router by router
func (d *Dispatcher) Methods() []string {
	var out []string
	for _, r := range d.routers {
		for name := range r.methods {
			out = append(out, name)
		}
	}
	return out
}

func (d *Dispatcher) lookup(method string) (methodFunc, string, bool) {
	for _, r := range d.routers {
		if fn, ok := r.methods[method]; ok {
			return fn, r.name, true
		}
	}
	return nil, "", false
}

func (d *Dispatcher) initialize(ctx context.Context, req *Request) (any, error) {
	info := WorkspaceInfo{Root: d.handlers.state.Root(), Services: []string{}}
	if services, err := d.handlers.state.Resolver().Services(); err == nil {
		for _, svc := range services {
			info.Services = append(info.Services, svc.Name)
		}
	}
	return &InitializeResult{
		ProtocolVersion: version.ProtocolVersion,
		ServerInfo:      &mcp.Implementation{Name: ServerName, Version: version.Version},
		Capabilities:    &mcp.ServerCapabilities{Tools: &mcp.ToolCapabilities{}},
		Workspace:       info,
		BuildID:         version.BuildID(),
	}, nil
}

func (d *Dispatcher) callTool(ctx context.Context, req *Request) (any, error) {
	var p CallToolParams
	if err := decodeParams(req.Params, &p); err != nil {
		return nil, err
	}
	if p.Name == "" {
		return nil, &ParamError{Field: "name", Reason: "is required"}
	}

	q := findQuery(p.Name)
	if q == nil {
		return nil, &ParamError{Field: "name", Reason: "names no known tool: " + p.Name}
	}

	env, err := q.invoke(d.handlers, ctx, p.Arguments)
	if err != nil {
		return nil, err
	}
	return toolResult(env)
}

func (d *Dispatcher) query(q *queryMethod) methodFunc {
	return func(ctx context.Context, req *Request) (any, error) {
		return q.invoke(d.handlers, ctx, req.Params)
	}
}

func findQuery(name string) *queryMethod {
	for _, q := range queryMethods {
		if q.name == name {
			return q
		}
	}
	return nil
}

func errorResponse(id json.RawMessage, err error) *Response {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		return &Response{JSONRPC: JSONRPCVersion, ID: id, Error: rpcErr}
	}
	var paramErr *ParamError
	if errors.As(err, &paramErr) {
		return NewErrorResponse(id, CodeInvalidParams, paramErr.Error())
	}
	log.Printf("Warning: request failed: %v", err)
	return NewErrorResponse(id, CodeInternalError, "internal error: "+err.Error())
}
