package permission

import "testing"

func TestRateLimiterAllowsUpToLimitThenBlocksOnLimitPlusOne(t *testing.T) {
	rl := NewRateLimiter(RateLimits{"shell.run": 2})
	if !rl.Allow("s1", "shell.run") {
		t.Fatal("expected call 1 to be allowed")
	}
	if !rl.Allow("s1", "shell.run") {
		t.Fatal("expected call 2 (at the limit) to be allowed")
	}
	if rl.Allow("s1", "shell.run") {
		t.Fatal("expected call 3 (limit + 1) to be blocked")
	}
}

func TestRateLimiterWildcardPattern(t *testing.T) {
	rl := NewRateLimiter(RateLimits{"mcp.*": 1})
	if !rl.Allow("s1", "mcp.call") {
		t.Fatal("expected first mcp.* call to be allowed")
	}
	if rl.Allow("s1", "mcp.call") {
		t.Fatal("expected second mcp.* call to be blocked by the wildcard pattern")
	}
}

func TestRateLimiterCountsPerSessionIndependently(t *testing.T) {
	rl := NewRateLimiter(RateLimits{"shell.run": 1})
	if !rl.Allow("s1", "shell.run") {
		t.Fatal("expected s1's first call to be allowed")
	}
	if !rl.Allow("s2", "shell.run") {
		t.Fatal("expected s2's first call to be allowed independently of s1")
	}
}

func TestRateLimiterUnlimitedKindAlwaysAllowed(t *testing.T) {
	rl := NewRateLimiter(RateLimits{"shell.run": 1})
	for i := 0; i < 5; i++ {
		if !rl.Allow("s1", "filesystem.read") {
			t.Fatal("expected a kind with no configured limit to always be allowed")
		}
	}
}
