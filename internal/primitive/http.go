package primitive

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rakunlabs/kiwimcp/internal/expand"
	"github.com/tidwall/gjson"
	"github.com/worldline-go/klient"
)

// HTTPAuth is the auth block of an http_client config.
type HTTPAuth struct {
	Type     string `json:"type" yaml:"type"` // bearer | basic | api_key
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	Username string `json:"username,omitempty" yaml:"username,omitempty"`
	Password string `json:"password,omitempty" yaml:"password,omitempty"`
	Header   string `json:"header,omitempty" yaml:"header,omitempty"` // api_key header name
	Key      string `json:"key,omitempty" yaml:"key,omitempty"`       // api_key value
}

// HTTPConfig is the merged, validated config handed to the http_client
// primitive by the chain resolver.
type HTTPConfig struct {
	Method            string            `json:"method,omitempty" yaml:"method,omitempty"`
	URL               string            `json:"url,omitempty" yaml:"url,omitempty"`
	URLTemplate       string            `json:"url_template,omitempty" yaml:"url_template,omitempty"`
	Headers           map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
	Body              string            `json:"body,omitempty" yaml:"body,omitempty"`
	BodyTemplate      string            `json:"body_template,omitempty" yaml:"body_template,omitempty"`
	Auth              *HTTPAuth         `json:"auth,omitempty" yaml:"auth,omitempty"`
	TimeoutSecs       int               `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retries           int               `json:"retries,omitempty" yaml:"retries,omitempty"`
	RetryDelaySecs    float64           `json:"retry_delay,omitempty" yaml:"retry_delay,omitempty"`
	RetryableStatuses []int             `json:"retryable_statuses,omitempty" yaml:"retryable_statuses,omitempty"`
	ResponseTransform string            `json:"response_transform,omitempty" yaml:"response_transform,omitempty"`
}

// HTTPResult is the shape of every http_client primitive response.
type HTTPResult struct {
	Success    bool              `json:"success"`
	StatusCode int               `json:"status_code,omitempty"`
	Body       any               `json:"body,omitempty"`
	Headers    map[string]string `json:"headers,omitempty"`
	DurationMs int64             `json:"duration_ms"`
	Error      string            `json:"error,omitempty"`
}

var defaultRetryableStatuses = []int{502, 503, 504, 429}

// sharedClient is the single long-lived connection-pooled client reused
// across calls within the process.
var sharedClient = mustClient()

func mustClient() *klient.Client {
	c, err := klient.New(
		klient.WithDisableBaseURLCheck(true),
		klient.WithDisableEnvValues(true),
		klient.WithDisableRetry(true), // retry semantics are owned by RunHTTP below
	)
	if err != nil {
		panic(fmt.Sprintf("primitive: build shared http client: %v", err))
	}
	return c
}

// RunHTTP executes cfg with params resolving "{name}" placeholders and
// environment resolving "${VAR}" placeholders in url/headers/body. Like
// RunSubprocess, failures are reported inside HTTPResult, never as a Go
// error; that includes errors building the request.
func RunHTTP(ctx context.Context, cfg HTTPConfig, params map[string]any) HTTPResult {
	start := time.Now()
	lookup := func(name string) (string, bool) { return os.LookupEnv(name) }

	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = "GET"
	}

	rawURL := cfg.URL
	if rawURL == "" {
		rawURL = cfg.URLTemplate
	}
	if rawURL == "" {
		return HTTPResult{Success: false, Error: "url or url_template is required", DurationMs: sinceMs(start)}
	}
	resolvedURL := expand.Env(expand.Params(rawURL, params), lookup)

	bodyTmpl := cfg.Body
	if bodyTmpl == "" {
		bodyTmpl = cfg.BodyTemplate
	}
	var bodyStr string
	if bodyTmpl != "" {
		bodyStr = expand.Env(expand.Params(bodyTmpl, params), lookup)
	}

	timeout := 30 * time.Second
	if cfg.TimeoutSecs > 0 {
		timeout = time.Duration(cfg.TimeoutSecs) * time.Second
	}
	retryDelay := time.Second
	if cfg.RetryDelaySecs > 0 {
		retryDelay = time.Duration(cfg.RetryDelaySecs * float64(time.Second))
	}
	retryable := cfg.RetryableStatuses
	if len(retryable) == 0 {
		retryable = defaultRetryableStatuses
	}

	var lastResult HTTPResult
	for attempt := 0; attempt <= cfg.Retries; attempt++ {
		reqCtx, cancel := context.WithTimeout(ctx, timeout)
		result, status, retryableErr := doOnce(reqCtx, method, resolvedURL, bodyStr, cfg, params, lookup)
		cancel()

		lastResult = result
		lastResult.DurationMs = sinceMs(start)

		if !retryableErr && !isRetryableStatus(status, retryable) {
			return lastResult
		}
		if attempt == cfg.Retries {
			return lastResult
		}
		select {
		case <-time.After(retryDelay * time.Duration(attempt+1)):
		case <-ctx.Done():
			lastResult.Error = ctx.Err().Error()
			lastResult.DurationMs = sinceMs(start)
			return lastResult
		}
	}
	return lastResult
}

func isRetryableStatus(status int, retryable []int) bool {
	for _, s := range retryable {
		if s == status {
			return true
		}
	}
	return false
}

func doOnce(ctx context.Context, method, url, body string, cfg HTTPConfig, params map[string]any, lookup func(string) (string, bool)) (HTTPResult, int, bool) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return HTTPResult{Success: false, Error: fmt.Sprintf("build request: %v", err)}, 0, false
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range cfg.Headers {
		req.Header.Set(k, expand.Env(expand.Params(v, params), lookup))
	}
	applyAuth(req, cfg.Auth, lookup)

	resp, err := sharedClient.HTTP.Do(req)
	if err != nil {
		timedOut := errors.Is(err, context.DeadlineExceeded) || isConnError(err)
		return HTTPResult{Success: false, Error: err.Error()}, 0, timedOut
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return HTTPResult{Success: false, StatusCode: resp.StatusCode, Error: fmt.Sprintf("read response: %v", err)}, resp.StatusCode, false
	}

	respHeaders := make(map[string]string, len(resp.Header))
	for k := range resp.Header {
		respHeaders[k] = resp.Header.Get(k)
	}

	var parsedBody any
	if cfg.ResponseTransform != "" && json.Valid(raw) {
		res := gjson.GetBytes(raw, cfg.ResponseTransform)
		parsedBody = res.Value()
	} else if json.Valid(raw) {
		var v any
		_ = json.Unmarshal(raw, &v)
		parsedBody = v
	} else {
		parsedBody = string(raw)
	}

	success := resp.StatusCode >= 200 && resp.StatusCode < 300
	result := HTTPResult{
		Success: success, StatusCode: resp.StatusCode, Body: parsedBody, Headers: respHeaders,
	}
	if !success {
		result.Error = fmt.Sprintf("unexpected status %d", resp.StatusCode)
	}
	return result, resp.StatusCode, false
}

func applyAuth(req *http.Request, auth *HTTPAuth, lookup func(string) (string, bool)) {
	if auth == nil {
		return
	}
	switch auth.Type {
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+expand.Env(auth.Token, lookup))
	case "basic":
		req.SetBasicAuth(expand.Env(auth.Username, lookup), expand.Env(auth.Password, lookup))
	case "api_key":
		header := auth.Header
		if header == "" {
			header = "X-API-Key"
		}
		req.Header.Set(header, expand.Env(auth.Key, lookup))
	}
}

func isConnError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "no such host")
}
