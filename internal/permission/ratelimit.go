package permission

import (
	"strings"
	"sync"
)

// RateLimits maps a call-kind pattern to its per-session ceiling.
// Patterns ending in ".*" match any kind sharing that prefix.
type RateLimits map[string]int

// DefaultRateLimits matches the kernel's built-in defaults.
func DefaultRateLimits() RateLimits {
	return RateLimits{
		"filesystem.write": 100,
		"shell.run":        50,
		"mcp.*":            200,
	}
}

func (l RateLimits) limitFor(kind string) (int, bool) {
	if n, ok := l[kind]; ok {
		return n, true
	}
	for pattern, n := range l {
		if strings.HasSuffix(pattern, ".*") {
			prefix := strings.TrimSuffix(pattern, "*")
			if strings.HasPrefix(kind, prefix) {
				return n, true
			}
		}
	}
	return 0, false
}

// RateLimiter enforces per-session call ceilings. Safe for concurrent use.
type RateLimiter struct {
	limits RateLimits

	mu     sync.Mutex
	counts map[string]map[string]int // session -> kind -> count
}

// NewRateLimiter builds a limiter. Pass nil to use DefaultRateLimits.
func NewRateLimiter(limits RateLimits) *RateLimiter {
	if limits == nil {
		limits = DefaultRateLimits()
	}
	return &RateLimiter{limits: limits, counts: make(map[string]map[string]int)}
}

// Allow increments the session's counter for kind and reports whether
// the call stays within the configured ceiling.
func (rl *RateLimiter) Allow(session, kind string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limit, has := rl.limits.limitFor(kind)
	if !has {
		return true
	}

	if rl.counts[session] == nil {
		rl.counts[session] = make(map[string]int)
	}
	rl.counts[session][kind]++
	return rl.counts[session][kind] <= limit
}

// Reset discards a session's counters, called when a session ends.
func (rl *RateLimiter) Reset(session string) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	delete(rl.counts, session)
}
