package permission

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestAuditLogAppendsJSONLines(t *testing.T) {
	dir := t.TempDir()
	log := NewAuditLog(dir)
	defer log.Close()

	if err := log.Record(AuditEntry{Session: "sess1", ItemID: "greet", Kind: "shell.run", Decision: AuditAllowed}); err != nil {
		t.Fatal(err)
	}
	if err := log.Record(AuditEntry{Session: "sess1", ItemID: "greet", Kind: "shell.run", Decision: AuditDenied, Reason: "blocked"}); err != nil {
		t.Fatal(err)
	}

	var path string
	_ = filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() && filepath.Ext(p) == ".jsonl" {
			path = p
		}
		return nil
	})
	if path == "" {
		t.Fatal("expected a partitioned .jsonl file to be created")
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var lines []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("expected valid JSON line, got error %v for %q", err, sc.Text())
		}
		lines = append(lines, e)
	}
	if len(lines) != 2 {
		t.Fatalf("expected 2 audit lines, got %d", len(lines))
	}
	if lines[0].EntryID == "" {
		t.Fatal("expected an auto-assigned entry id")
	}
	if lines[1].Decision != AuditDenied {
		t.Fatalf("expected second entry's decision to be denied, got %q", lines[1].Decision)
	}
}
