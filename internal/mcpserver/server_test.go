package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rakunlabs/kiwimcp/internal/chain"
	"github.com/rakunlabs/kiwimcp/internal/content"
	"github.com/rakunlabs/kiwimcp/internal/metaops"
	"github.com/rakunlabs/kiwimcp/internal/permission"
	"github.com/rakunlabs/kiwimcp/internal/registry"
	"github.com/rakunlabs/kiwimcp/internal/search"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	project, user, bundled := t.TempDir(), t.TempDir(), t.TempDir()

	writeFile(t, filepath.Join(bundled, "tools", "primitives", "subprocess.yaml"),
		"tool_type: primitive\ntitle: subprocess primitive\n")
	writeFile(t, filepath.Join(project, "tools", "general", "echo.yaml"),
		"tool_type: script\nexecutor: subprocess\ntitle: echo tool\n"+
			"config:\n  command: echo\n  args: [\"hi\"]\n"+
			"permissions:\n  - kind: execute\n    resource: shell\n    path: echo\n")

	store := content.New(project, user, bundled)
	resolver := chain.New(store)
	hybrid := search.NewHybrid(search.NewIndex(nil), nil)
	reg := registry.NewMemory()
	audit := permission.NewAuditLog(t.TempDir())

	k := metaops.New(store, resolver, hybrid, reg, audit)
	return New(k, ServerInfo{Name: "kiwimcp-test", Version: "v0.0.0-test"}, nil)
}

func TestHandleMessageInitializeAdvertisesToolsCapability(t *testing.T) {
	s := newTestServer(t)

	req := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test"}}}`
	resp := s.handleMessage(context.Background(), []byte(req))
	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp)
	}
	result, ok := resp.Result.(*InitializeResult)
	if !ok || result.Capabilities.Tools == nil {
		t.Fatalf("expected tools capability, got %+v", resp.Result)
	}
}

func TestHandleMessageToolsListReturnsFiveMetaOperations(t *testing.T) {
	s := newTestServer(t)

	resp := s.handleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp)
	}
	result, ok := resp.Result.(*ToolsListResult)
	if !ok || len(result.Tools) != 5 {
		t.Fatalf("expected 5 tools, got %+v", resp.Result)
	}
}

func TestHandleMessageToolsCallRunsExecuteTool(t *testing.T) {
	s := newTestServer(t)

	args, _ := json.Marshal(map[string]any{"item_type": "tool", "action": "run", "item_id": "echo", "session": "s1"})
	params, _ := json.Marshal(ToolsCallParams{Name: "execute", Arguments: args})
	req, _ := json.Marshal(Request{JSONRPC: "2.0", ID: json.RawMessage(`1`), Method: "tools/call", Params: params})

	resp := s.handleMessage(context.Background(), req)
	if resp == nil || resp.Error != nil {
		t.Fatalf("unexpected error response: %+v", resp)
	}
	result, ok := resp.Result.(*ToolsCallResult)
	if !ok || result.IsError {
		t.Fatalf("expected successful tool call, got %+v", resp.Result)
	}
}

func TestHandleMessageUnknownMethodReturnsMethodNotFound(t *testing.T) {
	s := newTestServer(t)

	resp := s.handleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","id":1,"method":"bogus"}`))
	if resp == nil || resp.Error == nil || resp.Error.Code != ErrCodeMethodNotFound {
		t.Fatalf("expected method-not-found error, got %+v", resp)
	}
}

func TestHandleMessageNotificationGetsNoResponse(t *testing.T) {
	s := newTestServer(t)

	resp := s.handleMessage(context.Background(), []byte(`{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	if resp != nil {
		t.Fatalf("expected no response for a notification, got %+v", resp)
	}
}
