// Package kernel holds the kernel-wide error type shared across every
// meta-operation handler.
package kernel

import "fmt"

// Code is one of the seven stable error identifiers returned to MCP clients.
type Code string

const (
	CodeNotFound         Code = "not_found"
	CodeInvalidItem      Code = "invalid_item"
	CodeSignatureInvalid Code = "signature_invalid"
	CodeChainError       Code = "chain_error"
	CodePermissionDenied Code = "permission_denied"
	CodeExecutionFailed  Code = "execution_failed"
	CodeResourceLimit    Code = "resource_limit"
)

// Error is the structured failure every meta-operation returns instead of
// a bare Go error once the call crosses the handler boundary. It carries a
// human-readable message, a stable machine code, an optional remedy
// suggestion, and arbitrary structured data (expected/got hashes, the rule
// that matched, etc).
type Error struct {
	Code       Code
	Message    string
	Suggestion string
	Data       map[string]any
}

func (e *Error) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s: %s (suggestion: %s)", e.Code, e.Message, e.Suggestion)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// New builds an Error with no suggestion or data.
func New(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithSuggestion returns a copy of e with Suggestion set.
func (e *Error) WithSuggestion(s string) *Error {
	cp := *e
	cp.Suggestion = s
	return &cp
}

// WithData returns a copy of e with a data key set.
func (e *Error) WithData(key string, value any) *Error {
	cp := *e
	cp.Data = make(map[string]any, len(e.Data)+1)
	for k, v := range e.Data {
		cp.Data[k] = v
	}
	cp.Data[key] = value
	return &cp
}
