package metaops

import (
	"context"
	"time"

	"github.com/rakunlabs/kiwimcp/internal/item"
	"github.com/rakunlabs/kiwimcp/internal/kernel"
	"github.com/rakunlabs/kiwimcp/internal/permission"
	"github.com/rakunlabs/kiwimcp/internal/primitive"
)

// Execute dispatches a meta-action against an item, per the
// (item_type, action) table: directive{run,create,edit,delete},
// tool{run,create,update,publish,delete}, knowledge{read,create,update,
// delete}, and the virtual read-only system pseudo-items.
func (k *Kernel) Execute(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	switch req.ItemType {
	case item.TypeTool:
		return k.executeTool(ctx, req)
	case item.TypeDirective:
		return k.executeDirective(ctx, req)
	case item.TypeKnowledge:
		return k.executeKnowledge(ctx, req)
	case "system":
		return k.executeSystem(ctx, req)
	default:
		return errResponse(kernel.New(kernel.CodeInvalidItem, "unknown item_type %q", req.ItemType)), nil
	}
}

func errResponse(err *kernel.Error) *ExecuteResponse {
	return &ExecuteResponse{
		Status: "error",
		Error: &ExecuteError{
			Code: string(err.Code), Message: err.Message,
			Suggestion: err.Suggestion, Data: err.Data,
		},
	}
}

func okResponse(data map[string]any, metadata map[string]any) *ExecuteResponse {
	return &ExecuteResponse{Status: "ok", Data: data, Metadata: metadata}
}

func asKernelError(err error) *kernel.Error {
	if kerr, ok := err.(*kernel.Error); ok {
		return kerr
	}
	return kernel.New(kernel.CodeExecutionFailed, "%v", err)
}

func (k *Kernel) executeTool(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	switch req.Action {
	case "run":
		return k.runTool(ctx, req)
	case "create", "update":
		return k.writeItemFromParams(req, item.TypeTool)
	case "delete":
		return k.deleteItem(req, item.TypeTool)
	case "publish":
		return errResponse(kernel.New(kernel.CodeExecutionFailed, "publish requires a registry backend, which is not configured in this kernel")), nil
	default:
		return errResponse(kernel.New(kernel.CodeInvalidItem, "unknown tool action %q", req.Action)), nil
	}
}

func (k *Kernel) runTool(ctx context.Context, req ExecuteRequest) (*ExecuteResponse, error) {
	c, err := k.Resolver.Resolve(req.ItemID)
	if err != nil {
		return errResponse(asKernelError(err)), nil
	}

	leaf := c.Items[c.IDs[0]]
	permCtx := permission.New(leaf.Manifest.Permissions)
	// The session id is the caller's, not a fresh one per call: rate
	// limits and loop detection only mean anything if repeated calls
	// within the same session share state.
	session := permission.NewSession(req.Session, req.ItemID, permCtx, k.RateLimiter, k.LoopDetector, k.Audit)

	if req.DryRun {
		return okResponse(map[string]any{
			"executor_chain": c.IDs,
			"merged_config":  c.MergedConfig,
			"primitive":      c.Primitive,
		}, nil), nil
	}

	var call permission.Call
	switch c.Primitive {
	case "subprocess":
		call = permission.Call{Kind: "shell.run", Command: commandOf(c.MergedConfig)}
	case "http_client":
		call = permission.Call{Kind: "tool.run", ToolID: req.ItemID}
	}

	allowed, loopWarning, aerr := session.Authorize(call, req.ItemID, req.Parameters)
	if !allowed {
		return errResponse(asKernelError(aerr)), nil
	}

	start := time.Now()
	result := ExecutionResult{ExecutorChain: c.IDs}

	switch c.Primitive {
	case "subprocess":
		cfg := subprocessConfigFromMerged(c.MergedConfig)
		r := primitive.RunSubprocess(ctx, cfg, req.Parameters)
		result.Success = r.Success
		result.Error = r.Error
		result.Output = map[string]any{"stdout": r.Stdout, "stderr": r.Stderr, "return_code": r.ReturnCode}
	case "http_client":
		cfg := httpConfigFromMerged(c.MergedConfig)
		r := primitive.RunHTTP(ctx, cfg, req.Parameters)
		result.Success = r.Success
		result.Error = r.Error
		result.Output = map[string]any{"status_code": r.StatusCode, "body": r.Body, "headers": r.Headers}
	default:
		return errResponse(kernel.New(kernel.CodeChainError, "unknown terminal primitive %q", c.Primitive)), nil
	}
	result.DurationMs = time.Since(start).Milliseconds()

	metadata := map[string]any{}
	if loopWarning != "" {
		metadata["_loop_warning"] = loopWarning
	}

	if !result.Success {
		return &ExecuteResponse{
			Status:   "error",
			Data:     map[string]any{"execution_result": result},
			Error:    &ExecuteError{Code: string(kernel.CodeExecutionFailed), Message: result.Error},
			Metadata: metadata,
		}, nil
	}
	return okResponse(map[string]any{"execution_result": result}, metadata), nil
}

func commandOf(merged map[string]any) string {
	c, _ := merged["command"].(string)
	return c
}

func subprocessConfigFromMerged(merged map[string]any) primitive.SubprocessConfig {
	cfg := primitive.SubprocessConfig{}
	cfg.Command, _ = merged["command"].(string)
	cfg.Cwd, _ = merged["cwd"].(string)
	if args, ok := merged["args"].([]any); ok {
		for _, a := range args {
			if s, ok := a.(string); ok {
				cfg.Args = append(cfg.Args, s)
			}
		}
	}
	if env, ok := merged["env"].(map[string]any); ok {
		cfg.Env = make(map[string]string, len(env))
		for k, v := range env {
			if s, ok := v.(string); ok {
				cfg.Env[k] = s
			}
		}
	}
	if t, ok := asInt(merged["timeout"]); ok {
		cfg.TimeoutSecs = t
	}
	if capture, ok := merged["capture_output"].(bool); ok {
		cfg.CaptureOutput = &capture
	}
	cfg.InputData, _ = merged["input_data"].(string)
	return cfg
}

func httpConfigFromMerged(merged map[string]any) primitive.HTTPConfig {
	cfg := primitive.HTTPConfig{}
	cfg.Method, _ = merged["method"].(string)
	cfg.URL, _ = merged["url"].(string)
	cfg.URLTemplate, _ = merged["url_template"].(string)
	cfg.Body, _ = merged["body"].(string)
	cfg.BodyTemplate, _ = merged["body_template"].(string)
	cfg.ResponseTransform, _ = merged["response_transform"].(string)
	if headers, ok := merged["headers"].(map[string]any); ok {
		cfg.Headers = make(map[string]string, len(headers))
		for k, v := range headers {
			if s, ok := v.(string); ok {
				cfg.Headers[k] = s
			}
		}
	}
	if t, ok := asInt(merged["timeout"]); ok {
		cfg.TimeoutSecs = t
	}
	if r, ok := asInt(merged["retries"]); ok {
		cfg.Retries = r
	}
	if d, ok := asFloat(merged["retry_delay"]); ok {
		cfg.RetryDelaySecs = d
	}
	if statuses, ok := merged["retryable_statuses"].([]any); ok {
		for _, s := range statuses {
			if n, ok := asInt(s); ok {
				cfg.RetryableStatuses = append(cfg.RetryableStatuses, n)
			}
		}
	}
	if auth, ok := merged["auth"].(map[string]any); ok {
		a := &primitive.HTTPAuth{}
		a.Type, _ = auth["type"].(string)
		a.Token, _ = auth["token"].(string)
		a.Username, _ = auth["username"].(string)
		a.Password, _ = auth["password"].(string)
		a.Header, _ = auth["header"].(string)
		a.Key, _ = auth["key"].(string)
		cfg.Auth = a
	}
	return cfg
}

// asInt converts a YAML/JSON-decoded numeric value (int, int64, or
// float64, depending on the decoder that produced the merged config
// map) to an int.
func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

// asFloat is asInt's counterpart for fields that may carry a fraction,
// like retry_delay.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
