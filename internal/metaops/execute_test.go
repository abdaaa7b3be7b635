package metaops

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/rakunlabs/kiwimcp/internal/item"
)

func TestRunToolExecutesThroughExecutorChain(t *testing.T) {
	k, _, _, _ := newTestKernel(t)

	resp, err := k.Execute(context.Background(), ExecuteRequest{
		ItemType: item.TypeTool, Action: "run", ItemID: "echo", Session: "s1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected ok status, got %+v", resp)
	}
	result, ok := resp.Data["execution_result"].(ExecutionResult)
	if !ok || !result.Success {
		t.Fatalf("expected successful execution result, got %+v", resp.Data)
	}
	if len(result.ExecutorChain) != 2 || result.ExecutorChain[0] != "echo" || result.ExecutorChain[1] != "subprocess" {
		t.Fatalf("unexpected executor chain: %v", result.ExecutorChain)
	}
}

func TestRunToolDryRunSkipsExecution(t *testing.T) {
	k, _, _, _ := newTestKernel(t)

	resp, err := k.Execute(context.Background(), ExecuteRequest{
		ItemType: item.TypeTool, Action: "run", ItemID: "echo", DryRun: true, Session: "s1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected ok status, got %+v", resp)
	}
	if _, ok := resp.Data["executor_chain"]; !ok {
		t.Fatalf("expected dry_run response to carry executor_chain, got %+v", resp.Data)
	}
}

func TestRunToolDeniedWithoutPermissionRule(t *testing.T) {
	k, project, _, _ := newTestKernel(t)
	writeFile(t, project+"/tools/general/curl.yaml",
		"tool_type: script\nexecutor: subprocess\ntitle: curl tool\nconfig:\n  command: curl\n")

	resp, err := k.Execute(context.Background(), ExecuteRequest{
		ItemType: item.TypeTool, Action: "run", ItemID: "curl", Session: "s1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "error" || resp.Error.Code != "permission_denied" {
		t.Fatalf("expected permission_denied, got %+v", resp)
	}
}

func TestRunToolRepeatedCallsInSameSessionTriggerLoopWarning(t *testing.T) {
	k, _, _, _ := newTestKernel(t)

	var lastMetadata map[string]any
	for i := 0; i < 3; i++ {
		resp, err := k.Execute(context.Background(), ExecuteRequest{
			ItemType: item.TypeTool, Action: "run", ItemID: "echo",
			Parameters: map[string]any{"x": 1}, Session: "same-session",
		})
		if err != nil {
			t.Fatal(err)
		}
		if resp.Status != "ok" {
			t.Fatalf("call %d: expected ok status, got %+v", i+1, resp)
		}
		lastMetadata = resp.Metadata
	}
	if lastMetadata["_loop_warning"] == nil {
		t.Fatalf("expected the 3rd identical call in the same session to carry a loop warning, got %+v", lastMetadata)
	}
}

func TestRunToolHTTPClientRetriesOnRetryableStatusAndAppliesAuth(t *testing.T) {
	k, project, _, bundled := newTestKernel(t)

	var attempts int32
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&attempts, 1)
		if n == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	writeFile(t, filepath.Join(bundled, "tools", "primitives", "http_client.yaml"),
		"tool_type: primitive\ntitle: http_client primitive\n")
	writeFile(t, filepath.Join(project, "tools", "general", "webcall.yaml"),
		"tool_type: script\nexecutor: http_client\ntitle: webcall tool\n"+
			"config:\n"+
			"  url: \""+srv.URL+"\"\n"+
			"  method: GET\n"+
			"  retries: 2\n"+
			"  retry_delay: 0.01\n"+
			"  retryable_statuses: [503]\n"+
			"  auth:\n    type: bearer\n    token: sekret\n"+
			"permissions:\n  - kind: execute\n    resource: tool\n    id: webcall\n")

	resp, err := k.Execute(context.Background(), ExecuteRequest{
		ItemType: item.TypeTool, Action: "run", ItemID: "webcall", Session: "s1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected ok status, got %+v", resp)
	}
	result, ok := resp.Data["execution_result"].(ExecutionResult)
	if !ok || !result.Success {
		t.Fatalf("expected successful execution result, got %+v", resp.Data)
	}
	if atomic.LoadInt32(&attempts) != 2 {
		t.Fatalf("expected exactly one retry after a 503, got %d attempts", attempts)
	}
	if gotAuth != "Bearer sekret" {
		t.Fatalf("expected bearer auth to reach the server, got %q", gotAuth)
	}
}

func TestExecuteDirectiveRunReturnsProcessSteps(t *testing.T) {
	k, _, _, _ := newTestKernel(t)

	resp, err := k.Execute(context.Background(), ExecuteRequest{
		ItemType: item.TypeDirective, Action: "run", ItemID: "greet", Session: "s1",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected ok status, got %+v", resp)
	}
	steps, ok := resp.Data["process"].([]item.ProcessStep)
	if !ok || len(steps) != 1 || steps[0].Name != "say-hello" {
		t.Fatalf("unexpected process steps: %+v", resp.Data["process"])
	}
}

func TestExecuteDirectiveRunRendersStepDescriptionTemplates(t *testing.T) {
	k, project, _, _ := newTestKernel(t)
	writeFile(t, project+"/directives/general/review.md",
		"---\ntitle: review\ndescription: reviews a change\nprocess:\n"+
			"  - order: 1\n    name: fetch\n    description: \"look at PR {{ .pr_number }}\"\n"+
			"---\nBody text.\n")

	resp, err := k.Execute(context.Background(), ExecuteRequest{
		ItemType: item.TypeDirective, Action: "run", ItemID: "review",
		Parameters: map[string]any{"pr_number": 42},
	})
	if err != nil {
		t.Fatal(err)
	}
	steps, ok := resp.Data["process"].([]item.ProcessStep)
	if !ok || len(steps) != 1 {
		t.Fatalf("unexpected process steps: %+v", resp.Data["process"])
	}
	if steps[0].Description != "look at PR 42" {
		t.Fatalf("expected rendered description, got %q", steps[0].Description)
	}
}

func TestExecuteKnowledgeReadReturnsContent(t *testing.T) {
	k, _, _, _ := newTestKernel(t)

	resp, err := k.Execute(context.Background(), ExecuteRequest{
		ItemType: item.TypeKnowledge, Action: "read", ItemID: "topic", Session: "s1",
	})
	if err != nil {
		t.Fatal(err)
	}
	content, _ := resp.Data["content"].(string)
	if content == "" {
		t.Fatalf("expected non-empty content, got %+v", resp.Data)
	}
	if html, _ := resp.Data["html"].(string); html == "" {
		t.Fatalf("expected rendered html, got %+v", resp.Data)
	}
}

func TestExecuteSystemPathsReturnsConfiguredRoots(t *testing.T) {
	k, project, _, bundled := newTestKernel(t)

	resp, err := k.Execute(context.Background(), ExecuteRequest{ItemType: "system", ItemID: "paths"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Data["project"] != project || resp.Data["bundled"] != bundled {
		t.Fatalf("unexpected paths: %+v", resp.Data)
	}
}

func TestExecuteSystemUnknownPseudoItemErrors(t *testing.T) {
	k, _, _, _ := newTestKernel(t)

	resp, err := k.Execute(context.Background(), ExecuteRequest{ItemType: "system", ItemID: "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "error" || resp.Error.Code != "not_found" {
		t.Fatalf("expected not_found error, got %+v", resp)
	}
}

func TestExecuteToolCreateThenLoadNewTool(t *testing.T) {
	k, _, _, _ := newTestKernel(t)

	createResp, err := k.Execute(context.Background(), ExecuteRequest{
		ItemType: item.TypeTool, Action: "create", ItemID: "pwd-tool",
		Parameters: map[string]any{
			"tool_type": "script", "executor": "subprocess", "title": "pwd tool",
			"category": "general",
			"config":   map[string]any{"command": "pwd"},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	if createResp.Status != "ok" {
		t.Fatalf("expected ok status creating tool, got %+v", createResp)
	}

	loadResp, err := k.Load(context.Background(), LoadRequest{ItemType: item.TypeTool, ItemID: "pwd-tool"})
	if err != nil {
		t.Fatal(err)
	}
	if loadResp.Manifest.Title != "pwd tool" {
		t.Fatalf("expected created tool to be loadable, got %+v", loadResp.Manifest)
	}
}

func TestExecuteToolDeleteRemovesItem(t *testing.T) {
	k, project, _, _ := newTestKernel(t)
	writeFile(t, project+"/tools/general/throwaway.yaml", "tool_type: script\nexecutor: subprocess\ntitle: throwaway\n")

	resp, err := k.Execute(context.Background(), ExecuteRequest{
		ItemType: item.TypeTool, Action: "delete", ItemID: "throwaway",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" {
		t.Fatalf("expected ok status, got %+v", resp)
	}
	if _, err := k.Store.Load(item.Key{Type: item.TypeTool, ID: "throwaway"}); err == nil {
		t.Fatalf("expected deleted tool to no longer load")
	}
}

func TestExecuteToolPublishRequiresRegistry(t *testing.T) {
	k, _, _, _ := newTestKernel(t)

	resp, err := k.Execute(context.Background(), ExecuteRequest{
		ItemType: item.TypeTool, Action: "publish", ItemID: "echo",
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "error" {
		t.Fatalf("expected publish to fail without a registry backend, got %+v", resp)
	}
}
