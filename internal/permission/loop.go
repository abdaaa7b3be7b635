package permission

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

const (
	defaultWindowSize    = 10
	defaultRepeatCount   = 3
	alternationCallCount = 4
)

// callSignature identifies one (tool_id, params) pair by its stable hash.
func callSignature(toolID string, params map[string]any) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ordered := make(map[string]any, len(params))
	for _, k := range keys {
		ordered[k] = params[k]
	}
	b, _ := json.Marshal(struct {
		Tool   string         `json:"tool"`
		Params map[string]any `json:"params"`
	}{toolID, ordered})
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:8])
}

// LoopDetector watches each session's recent call signatures for
// repetition or A-B-A-B alternation and raises a non-fatal hint.
type LoopDetector struct {
	window       int
	repeatCount  int

	mu      sync.Mutex
	history map[string][]string // session -> recent call signatures, oldest first
}

// NewLoopDetector builds a detector with the spec's default window (10)
// and repeat threshold (3). Pass 0 for either to use the default.
func NewLoopDetector(window, repeatCount int) *LoopDetector {
	if window <= 0 {
		window = defaultWindowSize
	}
	if repeatCount <= 0 {
		repeatCount = defaultRepeatCount
	}
	return &LoopDetector{window: window, repeatCount: repeatCount, history: make(map[string][]string)}
}

// Observe records one call for session and returns a non-empty warning
// string if the resulting history trips the repeat or alternation check.
func (d *LoopDetector) Observe(session, toolID string, params map[string]any) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	sig := callSignature(toolID, params)
	hist := append(d.history[session], sig)
	if len(hist) > d.window {
		hist = hist[len(hist)-d.window:]
	}
	d.history[session] = hist

	if n := d.repeatCount; len(hist) >= n && allEqual(hist[len(hist)-n:]) {
		return fmt.Sprintf("Same call repeated %d times", n)
	}
	if len(hist) >= alternationCallCount && isAlternating(hist[len(hist)-alternationCallCount:]) {
		return "Call pattern alternates A-B-A-B across the last 4 calls"
	}
	return ""
}

// Reset discards a session's call history.
func (d *LoopDetector) Reset(session string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.history, session)
}

func allEqual(sigs []string) bool {
	for _, s := range sigs[1:] {
		if s != sigs[0] {
			return false
		}
	}
	return true
}

func isAlternating(sigs []string) bool {
	if len(sigs) != 4 {
		return false
	}
	return sigs[0] == sigs[2] && sigs[1] == sigs[3] && sigs[0] != sigs[1]
}

