package permission

import (
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rakunlabs/kiwimcp/internal/kernel"
)

// Session is one meta-operation invocation's execution scope: it owns
// permission context, rate-limit counters, loop-detector state, and
// audit identity for every primitive call made during its lifetime.
type Session struct {
	ID      string
	ItemID  string
	ctx     *Context
	limiter *RateLimiter
	loop    *LoopDetector
	audit   *AuditLog
}

// NewSession starts a session scoped to itemID, backed by shared
// rate-limiter, loop-detector, and audit-log instances (these are
// process-wide; only the session id keys their per-session state). id
// is the caller's session identifier, reused across every call the
// caller makes within that session so rate-limit and loop-detector
// state actually accumulates; a blank id mints a one-shot ulid, for
// callers (dry runs, tests) that never repeat.
func NewSession(id, itemID string, ctx *Context, limiter *RateLimiter, loop *LoopDetector, audit *AuditLog) *Session {
	if id == "" {
		id = ulid.Make().String()
	}
	return &Session{
		ID: id, ItemID: itemID,
		ctx: ctx, limiter: limiter, loop: loop, audit: audit,
	}
}

// Authorize checks call against the session's permission context, rate
// limits, and loop detector, in that order, and records an audit entry
// for the outcome. A non-empty loopWarning is returned alongside an
// allowed decision as a non-fatal hint; it never blocks execution.
func (s *Session) Authorize(call Call, toolID string, params map[string]any) (allowed bool, loopWarning string, err error) {
	start := time.Now()

	d := s.ctx.Check(call)
	if !d.Allowed {
		s.recordAudit(call.Kind, params, AuditDenied, d.Rule, time.Since(start))
		return false, "", kernel.New(kernel.CodePermissionDenied, "%s not permitted: %s", call.Kind, d.Rule).
			WithData("rule", d.Rule)
	}

	if s.limiter != nil && !s.limiter.Allow(s.ID, call.Kind) {
		s.recordAudit(call.Kind, params, AuditRateLimited, "rate limit exceeded for "+call.Kind, time.Since(start))
		return false, "", kernel.New(kernel.CodeResourceLimit, "rate limit exceeded for %s", call.Kind)
	}

	if s.loop != nil && toolID != "" {
		if warning := s.loop.Observe(s.ID, toolID, params); warning != "" {
			s.recordAudit(call.Kind, params, AuditLoopDetected, warning, time.Since(start))
			loopWarning = warning
		}
	}

	s.recordAudit(call.Kind, params, AuditAllowed, d.Rule, time.Since(start))
	return true, loopWarning, nil
}

func (s *Session) recordAudit(kind string, params map[string]any, decision AuditDecision, reason string, elapsed time.Duration) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(AuditEntry{
		Session: s.ID, ItemID: s.ItemID, Kind: kind, Params: params,
		Decision: decision, Reason: reason, DurationMs: elapsed.Milliseconds(),
	})
}

// Close discards the session's rate-limit and loop-detector state.
func (s *Session) Close() {
	if s.limiter != nil {
		s.limiter.Reset(s.ID)
	}
	if s.loop != nil {
		s.loop.Reset(s.ID)
	}
}
