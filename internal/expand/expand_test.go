package expand

import "testing"

func lookupMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestEnvPlain(t *testing.T) {
	got := Env("host=${HOST}", lookupMap(map[string]string{"HOST": "example.com"}))
	if got != "host=example.com" {
		t.Fatalf("got %q", got)
	}
}

func TestEnvDefault(t *testing.T) {
	got := Env("${MISSING:-fallback}", lookupMap(nil))
	if got != "fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestEnvDefaultNotUsedWhenSet(t *testing.T) {
	got := Env("${HOST:-fallback}", lookupMap(map[string]string{"HOST": "set"}))
	if got != "set" {
		t.Fatalf("got %q", got)
	}
}

func TestEnvAltOnlyWhenSet(t *testing.T) {
	set := Env("${HOST:+present}", lookupMap(map[string]string{"HOST": "x"}))
	if set != "present" {
		t.Fatalf("got %q", set)
	}
	unset := Env("${HOST:+present}", lookupMap(nil))
	if unset != "" {
		t.Fatalf("got %q", unset)
	}
}

func TestParamsSubstitution(t *testing.T) {
	got := Params("Hello, {name}!", map[string]any{"name": "world"})
	if got != "Hello, world!" {
		t.Fatalf("got %q", got)
	}
}

func TestParamsLeavesUnknownPlaceholder(t *testing.T) {
	got := Params("Hello, {name}!", map[string]any{})
	if got != "Hello, {name}!" {
		t.Fatalf("got %q", got)
	}
}

func TestParamsNonString(t *testing.T) {
	got := Params("count={n}", map[string]any{"n": 3})
	if got != "count=3" {
		t.Fatalf("got %q", got)
	}
}
