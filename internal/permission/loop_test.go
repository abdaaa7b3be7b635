package permission

import "testing"

func TestLoopDetectorFlagsThreeIdenticalCalls(t *testing.T) {
	d := NewLoopDetector(10, 3)
	params := map[string]any{"x": 1}
	if w := d.Observe("s1", "retry", params); w != "" {
		t.Fatalf("expected no warning on call 1, got %q", w)
	}
	if w := d.Observe("s1", "retry", params); w != "" {
		t.Fatalf("expected no warning on call 2, got %q", w)
	}
	w := d.Observe("s1", "retry", params)
	if w == "" {
		t.Fatal("expected a warning on the 3rd identical call")
	}
}

func TestLoopDetectorFlagsABABAlternation(t *testing.T) {
	d := NewLoopDetector(10, 3)
	d.Observe("s1", "a", nil)
	d.Observe("s1", "b", nil)
	d.Observe("s1", "a", nil)
	w := d.Observe("s1", "b", nil)
	if w == "" {
		t.Fatal("expected a warning on the A-B-A-B alternation")
	}
}

func TestLoopDetectorDoesNotFlagDistinctCalls(t *testing.T) {
	d := NewLoopDetector(10, 3)
	for i, tool := range []string{"a", "b", "c", "d"} {
		if w := d.Observe("s1", tool, map[string]any{"i": i}); w != "" {
			t.Fatalf("expected no warning for distinct call %q, got %q", tool, w)
		}
	}
}

func TestLoopDetectorSessionsAreIndependent(t *testing.T) {
	d := NewLoopDetector(10, 3)
	params := map[string]any{"x": 1}
	d.Observe("s1", "retry", params)
	d.Observe("s1", "retry", params)
	d.Observe("s1", "retry", params)

	if w := d.Observe("s2", "retry", params); w != "" {
		t.Fatalf("expected a fresh session to have no history, got %q", w)
	}
}

func TestLoopDetectorResetClearsHistory(t *testing.T) {
	d := NewLoopDetector(10, 3)
	params := map[string]any{"x": 1}
	d.Observe("s1", "retry", params)
	d.Observe("s1", "retry", params)
	d.Reset("s1")
	if w := d.Observe("s1", "retry", params); w != "" {
		t.Fatalf("expected reset to clear history, got %q", w)
	}
}
