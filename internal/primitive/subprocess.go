// Package primitive implements the two hard-coded execution capabilities
// every tool chain ultimately reduces to: subprocess and http_client.
// Sandboxing/permission checks on top of these are the
// permission layer's job (internal/permission); these primitives only
// implement the executor contract itself.
package primitive

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rakunlabs/kiwimcp/internal/expand"
)

// SubprocessConfig is the merged, validated config handed to the
// subprocess primitive by the chain resolver.
type SubprocessConfig struct {
	Command       string            `json:"command" yaml:"command"`
	Args          []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env           map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Cwd           string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`
	TimeoutSecs   int               `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	CaptureOutput *bool             `json:"capture_output,omitempty" yaml:"capture_output,omitempty"`
	InputData     string            `json:"input_data,omitempty" yaml:"input_data,omitempty"`
}

// SubprocessResult is the shape of every subprocess primitive response.
type SubprocessResult struct {
	Success    bool   `json:"success"`
	Stdout     string `json:"stdout,omitempty"`
	Stderr     string `json:"stderr,omitempty"`
	ReturnCode int    `json:"return_code"`
	DurationMs int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

const defaultSubprocessTimeout = 300 * time.Second

// RunSubprocess executes cfg with params injected as KIWI_PARAM_<UPPER>
// environment variables. It never returns a Go error for execution
// failures — those are reported inside SubprocessResult, matching the
// "permission errors bubble up as failure results, not exceptions"
// contract (extended here to all execution failures).
func RunSubprocess(ctx context.Context, cfg SubprocessConfig, params map[string]any) SubprocessResult {
	start := time.Now()

	if strings.TrimSpace(cfg.Command) == "" {
		return SubprocessResult{Success: false, Error: "command not found", DurationMs: sinceMs(start)}
	}

	timeout := defaultSubprocessTimeout
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, cfg.Command, cfg.Args...)
	cmd.Dir = cfg.Cwd
	cmd.Env = buildEnv(cfg.Env, params)

	capture := cfg.CaptureOutput == nil || *cfg.CaptureOutput
	var stdout, stderr bytes.Buffer
	if capture {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}
	if cfg.InputData != "" {
		cmd.Stdin = strings.NewReader(cfg.InputData)
	}

	err := cmd.Run()
	duration := sinceMs(start)

	if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return SubprocessResult{
			Success: false, Stdout: stdout.String(), Stderr: stderr.String(),
			ReturnCode: -1, DurationMs: duration, TimedOut: true,
			Error: fmt.Sprintf("timed out after %s", timeout),
		}
	}

	if err == nil {
		return SubprocessResult{
			Success: true, Stdout: stdout.String(), Stderr: stderr.String(),
			ReturnCode: 0, DurationMs: duration,
		}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return SubprocessResult{
			Success: false, Stdout: stdout.String(), Stderr: stderr.String(),
			ReturnCode: exitErr.ExitCode(), DurationMs: duration,
			Error: fmt.Sprintf("exit code %d", exitErr.ExitCode()),
		}
	}

	return SubprocessResult{
		Success: false, Stdout: stdout.String(), Stderr: stderr.String(),
		ReturnCode: -1, DurationMs: duration, Error: err.Error(),
	}
}

func sinceMs(start time.Time) int64 {
	return time.Since(start).Milliseconds()
}

// buildEnv merges the process environment, the config's expanded env
// map, and the runtime params surfaced as KIWI_PARAM_<UPPER>.
func buildEnv(envCfg map[string]string, params map[string]any) []string {
	lookup := func(name string) (string, bool) { return os.LookupEnv(name) }

	env := os.Environ()
	for k, v := range envCfg {
		env = append(env, fmt.Sprintf("%s=%s", k, expand.Env(v, lookup)))
	}
	for k, v := range params {
		name := "KIWI_PARAM_" + strings.ToUpper(k)
		env = append(env, fmt.Sprintf("%s=%v", name, v))
	}
	return env
}
