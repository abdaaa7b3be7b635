package permission

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// AuditDecision is the recorded outcome of one intercepted call.
type AuditDecision string

const (
	AuditAllowed      AuditDecision = "allowed"
	AuditDenied       AuditDecision = "denied"
	AuditRateLimited  AuditDecision = "rate_limited"
	AuditLoopDetected AuditDecision = "loop_detected"
)

// AuditEntry is one append-only audit log line.
type AuditEntry struct {
	EntryID    string         `json:"entry_id"`
	Timestamp  time.Time      `json:"timestamp"`
	Session    string         `json:"session"`
	ItemID     string         `json:"item_id"`
	Kind       string         `json:"kind"`
	Params     map[string]any `json:"params,omitempty"`
	Decision   AuditDecision  `json:"decision"`
	Reason     string         `json:"reason,omitempty"`
	DurationMs int64          `json:"duration_ms,omitempty"`
}

// AuditLog writes structured JSON lines, partitioned by date and
// session, serializing writes per file from any number of concurrent
// callers.
type AuditLog struct {
	baseDir string

	mu    sync.Mutex
	files map[string]*os.File
}

// NewAuditLog creates an AuditLog rooted at baseDir. Files are created
// lazily on first write.
func NewAuditLog(baseDir string) *AuditLog {
	return &AuditLog{baseDir: baseDir, files: make(map[string]*os.File)}
}

// Record appends entry to the log partition for its date and session,
// assigning an entry id if one is not already set.
func (a *AuditLog) Record(entry AuditEntry) error {
	if entry.EntryID == "" {
		entry.EntryID = ulid.Make().String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	f, err := a.fileFor(entry.Timestamp, entry.Session)
	if err != nil {
		return fmt.Errorf("opening audit log partition: %w", err)
	}

	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

func (a *AuditLog) fileFor(ts time.Time, session string) (*os.File, error) {
	date := ts.Format("2006-01-02")
	key := date + "/" + session
	if f, ok := a.files[key]; ok {
		return f, nil
	}

	dir := filepath.Join(a.baseDir, date)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, session+".jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	a.files[key] = f
	return f, nil
}

// Close releases every open partition file handle.
func (a *AuditLog) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	var firstErr error
	for key, f := range a.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(a.files, key)
	}
	return firstErr
}
