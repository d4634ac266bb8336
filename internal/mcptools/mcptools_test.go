package mcptools

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/codespace/internal/artifact"
	"github.com/ashureev/codespace/internal/compiler"
	"github.com/ashureev/codespace/internal/dispatch"
	"github.com/ashureev/codespace/internal/ledger"
	"github.com/ashureev/codespace/internal/objectstore"
	"github.com/ashureev/codespace/internal/session"
	"github.com/ashureev/codespace/internal/store"
	"github.com/ashureev/codespace/internal/toolcall"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var testImpl = &mcp.Implementation{Name: "codespace-test", Version: "0.1.0"}

func mcpSession(t *testing.T) *mcp.ClientSession {
	t.Helper()
	repo, err := store.NewSQLite(filepath.Join(t.TempDir(), "codespace.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	l := ledger.New(repo, artifact.NewStore(objectstore.NewMemory(), 0))
	coord := session.New(l, dispatch.New(compiler.Echo{}, time.Second, nil), nil, session.Config{})
	t.Cleanup(coord.Close)

	srv := mcp.NewServer(testImpl, nil)
	Register(srv, toolcall.NewExecutor(coord, nil))

	serverT, clientT := mcp.NewInMemoryTransports()
	ctx := context.Background()
	go func() { _ = srv.Run(ctx, serverT) }()

	client := mcp.NewClient(testImpl, nil)
	cs, err := client.Connect(ctx, clientT, nil)
	if err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { cs.Close() })
	return cs
}

func callTool(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) (toolcall.Response, bool) {
	t.Helper()
	result, err := cs.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		t.Fatalf("CallTool(%s): %v", name, err)
	}
	tc, ok := result.Content[0].(*mcp.TextContent)
	if !ok {
		t.Fatalf("CallTool(%s): expected TextContent, got %T", name, result.Content[0])
	}
	var resp toolcall.Response
	if err := json.Unmarshal([]byte(tc.Text), &resp); err != nil {
		t.Fatalf("CallTool(%s): decode %q: %v", name, tc.Text, err)
	}
	return resp, result.IsError
}

func TestListTools(t *testing.T) {
	cs := mcpSession(t)
	res, err := cs.ListTools(context.Background(), nil)
	if err != nil {
		t.Fatalf("ListTools: %v", err)
	}
	got := map[string]bool{}
	for _, tool := range res.Tools {
		got[tool.Name] = true
	}
	for _, m := range toolcall.Methods {
		if !got[m] {
			t.Errorf("tool %s not registered", m)
		}
	}
}

func TestUpdateThenRead(t *testing.T) {
	cs := mcpSession(t)

	resp, isErr := callTool(t, cs, toolcall.MethodUpdateCode, map[string]any{
		"sessionId": "demo",
		"source":    "line one\nline two",
	})
	if isErr || !resp.OK {
		t.Fatalf("update_code failed: %+v", resp)
	}

	resp, _ = callTool(t, cs, toolcall.MethodFindLines, map[string]any{
		"sessionId": "demo",
		"pattern":   "two",
	})
	result := resp.Result.(map[string]any)
	if result["version"].(float64) != 1 {
		t.Fatalf("expected version 1, got %v", result["version"])
	}
	matches := result["matches"].([]any)
	if len(matches) != 1 || matches[0].(map[string]any)["line"].(float64) != 2 {
		t.Fatalf("unexpected matches: %v", matches)
	}

	resp, _ = callTool(t, cs, toolcall.MethodReadCode, map[string]any{"sessionId": "demo"})
	if resp.Result.(map[string]any)["source"] != "line one\nline two" {
		t.Fatalf("unexpected source: %v", resp.Result)
	}
}

func TestInvalidEditIsToolError(t *testing.T) {
	cs := mcpSession(t)
	resp, isErr := callTool(t, cs, toolcall.MethodEditCode, map[string]any{
		"sessionId":  "demo",
		"startLine":  5,
		"endLine":    3,
		"newContent": "x",
	})
	if !isErr || resp.OK || resp.Error == nil || resp.Error.Kind != "ValidationError" {
		t.Fatalf("expected ValidationError tool error, got %+v", resp)
	}
}

func TestDecodeCall(t *testing.T) {
	call, err := decodeCall("find_lines", json.RawMessage(`{"sessionId":"demo","pattern":"x"}`))
	if err != nil {
		t.Fatalf("decodeCall: %v", err)
	}
	if call.SessionID != "demo" || string(call.Args) != `{"pattern":"x"}` {
		t.Fatalf("unexpected call: %+v args=%s", call, call.Args)
	}
	if _, err := decodeCall("find_lines", json.RawMessage(`{"sessionId":7}`)); err == nil {
		t.Fatal("expected error for non-string sessionId")
	}
}
