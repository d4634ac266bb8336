// Package mcptools exposes the codespace tool calls as MCP tools.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ashureev/codespace/internal/toolcall"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Executor runs one tool call.
type Executor interface {
	Execute(ctx context.Context, req toolcall.Request) toolcall.Response
}

type toolSpec struct {
	method      string
	description string
	properties  map[string]any
	required    []string
}

var sessionIDProp = map[string]any{"type": "string", "description": "Codespace id"}

var tools = []toolSpec{
	{
		method:      toolcall.MethodUpdateCode,
		description: "Replace the whole source of a codespace and recompile it.",
		properties: map[string]any{
			"source": map[string]any{"type": "string", "description": "New source text"},
		},
		required: []string{"source"},
	},
	{
		method:      toolcall.MethodEditCode,
		description: "Replace an inclusive 1-based line range. startLine = line count + 1 appends.",
		properties: map[string]any{
			"startLine":  map[string]any{"type": "integer", "minimum": 1},
			"endLine":    map[string]any{"type": "integer", "minimum": 1},
			"newContent": map[string]any{"type": "string"},
		},
		required: []string{"startLine", "endLine", "newContent"},
	},
	{
		method:      toolcall.MethodSearchAndReplace,
		description: "Replace every match of a literal or ECMAScript regular expression. Zero matches changes nothing.",
		properties: map[string]any{
			"pattern":     map[string]any{"type": "string"},
			"replacement": map[string]any{"type": "string"},
			"isRegex":     map[string]any{"type": "boolean"},
		},
		required: []string{"pattern", "replacement"},
	},
	{
		method:      toolcall.MethodFindLines,
		description: "List line numbers and text of source lines matching a pattern.",
		properties: map[string]any{
			"pattern": map[string]any{"type": "string"},
			"isRegex": map[string]any{"type": "boolean"},
		},
		required: []string{"pattern"},
	},
	{
		method:      toolcall.MethodReadCode,
		description: "Read the current source.",
	},
	{
		method:      toolcall.MethodReadHTML,
		description: "Read the current rendered markup and style sheet.",
	},
	{
		method:      toolcall.MethodReadSession,
		description: "Read the full current bundle: source, compiled output, markup and style.",
	},
}

func inputSchema(properties map[string]any, required []string) map[string]any {
	props := map[string]any{"sessionId": sessionIDProp}
	for k, v := range properties {
		props[k] = v
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   append([]string{"sessionId"}, required...),
	}
}

// Register adds every codespace tool to srv.
func Register(srv *mcp.Server, exec Executor) {
	for _, spec := range tools {
		registerTool(srv, exec, spec)
	}
}

func registerTool(srv *mcp.Server, exec Executor, spec toolSpec) {
	tool := &mcp.Tool{
		Name:        spec.method,
		Description: spec.description,
		InputSchema: inputSchema(spec.properties, spec.required),
	}

	method := spec.method
	srv.AddTool(tool, func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		call, err := decodeCall(method, req.Params.Arguments)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("%s: invalid arguments: %w", method, err))
			return &res, nil
		}

		resp := exec.Execute(ctx, call)
		data, err := json.Marshal(resp)
		if err != nil {
			var res mcp.CallToolResult
			res.SetError(fmt.Errorf("marshal: %w", err))
			return &res, nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: string(data)}},
			IsError: !resp.OK,
		}, nil
	})
}

// decodeCall splits sessionId out of the flat MCP arguments; the rest
// become the tool-call args.
func decodeCall(method string, raw json.RawMessage) (toolcall.Request, error) {
	call := toolcall.Request{Method: method}
	fields := map[string]json.RawMessage{}
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &fields); err != nil {
			return call, err
		}
	}
	if sid, ok := fields["sessionId"]; ok {
		if err := json.Unmarshal(sid, &call.SessionID); err != nil {
			return call, fmt.Errorf("sessionId: %w", err)
		}
		delete(fields, "sessionId")
	}
	args, err := json.Marshal(fields)
	if err != nil {
		return call, err
	}
	call.Args = args
	return call, nil
}
