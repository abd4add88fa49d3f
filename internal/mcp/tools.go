package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// queryMethod is one query exposed both as a JSON-RPC method and as a tool
type queryMethod struct {
	name        string
	aliases     []string
	description string
	schema      *jsonschema.Schema
	invoke      func(h *Handlers, ctx context.Context, params json.RawMessage) (*Envelope, error)
}

func noParams(call func(h *Handlers, ctx context.Context) (*Envelope, error)) func(*Handlers, context.Context, json.RawMessage) (*Envelope, error) {
	return func(h *Handlers, ctx context.Context, params json.RawMessage) (*Envelope, error) {
		var ignored map[string]any
		if err := decodeParams(params, &ignored); err != nil {
			return nil, err
		}
		return call(h, ctx)
	}
}

func withParams[P any](call func(h *Handlers, ctx context.Context, p P) (*Envelope, error)) func(*Handlers, context.Context, json.RawMessage) (*Envelope, error) {
	return func(h *Handlers, ctx context.Context, params json.RawMessage) (*Envelope, error) {
		var p P
		if err := decodeParams(params, &p); err != nil {
			return nil, err
		}
		return call(h, ctx, p)
	}
}

var emptyObject = &jsonschema.Schema{Type: "object", Properties: map[string]*jsonschema.Schema{}}

// queryMethods lists every query in tools/list order
var queryMethods = []*queryMethod{
	{
		name:        "list_services",
		aliases:     []string{"services", "listServices"},
		description: "List the services detected in the workspace, in discovery order, with their roots relative to the workspace.",
		schema:      emptyObject,
		invoke:      noParams((*Handlers).ListServices),
	},
	{
		name:        "get_workspace_routes",
		aliases:     []string{"workspace/routes", "getRoutes"},
		description: "List every HTTP route registration found in the workspace with its handler and whether the handler resolves to an indexed function.",
		schema:      emptyObject,
		invoke:      noParams((*Handlers).WorkspaceRoutes),
	},
	{
		name:        "get_file_documentation",
		aliases:     []string{"file/documentation", "getFileDocs"},
		description: "Describe one source file: module path, service, functions with signatures and spans, structs with fields, and the routes it registers.",
		schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"path": {
					Type:        "string",
					Description: "File path, relative to the workspace root or absolute inside it",
				},
			},
			Required: []string{"path"},
		},
		invoke: withParams((*Handlers).FileDocumentation),
	},
	{
		name:        "get_function_usage",
		aliases:     []string{"function/usage", "getFunctionUsage"},
		description: "Find the definitions of a function and every function that calls it, with files, line spans and call lines.",
		schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"function": {
					Type:        "string",
					Description: "Simple name (create_order) or qualified name (billing::orders::create_order)",
				},
			},
			Required: []string{"function"},
		},
		invoke: withParams((*Handlers).FunctionUsage),
	},
	{
		name:        "get_route_impact",
		aliases:     []string{"route/impact", "getRouteImpact"},
		description: "Resolve a route's handler and expand the indexed functions it transitively calls, with the set of affected files.",
		schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"method": {
					Type:        "string",
					Description: "HTTP method, case-insensitive",
				},
				"path": {
					Type:        "string",
					Description: "Route path exactly as registered, e.g. /orders/:id",
				},
			},
			Required: []string{"method", "path"},
		},
		invoke: withParams((*Handlers).RouteImpact),
	},
	{
		name:        "get_diagnostics",
		aliases:     []string{"diagnostics", "getDiagnostics"},
		description: "Return the latest build diagnostics collected from the workspace, optionally filtered by severity or file.",
		schema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"severity": {
					Type:        "string",
					Description: "Only return records of this severity",
					Enum:        []any{"error", "warning", "note", "help"},
				},
				"file": {
					Type:        "string",
					Description: "Only return records for this workspace-relative file",
				},
			},
		},
		invoke: withParams((*Handlers).Diagnostics),
	},
	{
		name:        "get_index_status",
		aliases:     []string{"index/status"},
		description: "Report the index state, generation, counts and the last scan report. Always answers, whatever the state.",
		schema:      emptyObject,
		invoke:      noParams((*Handlers).IndexStatus),
	},
	{
		name:        "rescan",
		description: "Queue a full rescan of the workspace. Poll get_index_status to see it finish.",
		schema:      emptyObject,
		invoke:      noParams((*Handlers).Rescan),
	},
}

// Tools returns the tool definitions advertised by tools/list
func Tools() []*mcp.Tool {
	tools := make([]*mcp.Tool, 0, len(queryMethods))
	for _, q := range queryMethods {
		tools = append(tools, &mcp.Tool{
			Name:        q.name,
			Description: q.description,
			InputSchema: q.schema,
		})
	}
	return tools
}

// CallToolParams are the params of tools/call
type CallToolParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// toolResult wraps an envelope as a tool result. The text content carries
// the same JSON as the structured content.
func toolResult(env *Envelope) (*mcp.CallToolResult, error) {
	content, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: string(content)},
		},
		StructuredContent: env,
		IsError:           env.IsRefusal(),
	}, nil
}
