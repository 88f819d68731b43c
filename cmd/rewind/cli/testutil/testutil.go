// Package testutil provides shared fixtures for store, transcript, and
// coordinator tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rewindio/cli/cmd/rewind/cli/config"
	"github.com/rewindio/cli/cmd/rewind/cli/store"
)

// NewProject creates a temp project directory with the given files and
// returns its root. Keys are slash-separated relative paths.
func NewProject(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for rel, content := range files {
		WriteFile(t, root, rel, content)
	}
	return root
}

// WriteFile creates a file (and its parents) under root.
func WriteFile(t *testing.T, root, rel, content string) {
	t.Helper()

	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("failed to create dir for %s: %v", rel, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", rel, err)
	}
}

// ReadFile reads a file under root, failing the test on error.
func ReadFile(t *testing.T, root, rel string) string {
	t.Helper()

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("failed to read %s: %v", rel, err)
	}
	return string(data)
}

// NewStore builds a project-local store over root with a test-friendly
// config (no debounce, generous caps).
func NewStore(t *testing.T, root string) *store.Store {
	t.Helper()

	cfg := config.Default()
	cfg.MinIntervalSeconds = 0
	s, err := store.New(root, cfg)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

// TranscriptLine renders one claude-style transcript record.
func TranscriptLine(t *testing.T, uuid, msgType string, content any) string {
	t.Helper()

	record := map[string]any{
		"uuid":      uuid,
		"type":      msgType,
		"timestamp": "2026-08-02T10:00:00Z",
		"sessionId": "session-1",
		"message":   map[string]any{"content": content},
	}
	data, err := json.Marshal(record)
	if err != nil {
		t.Fatalf("failed to marshal transcript line: %v", err)
	}
	return string(data)
}

// WriteTranscript writes a JSONL transcript from the given lines (one record
// per line, trailing newline included).
func WriteTranscript(t *testing.T, dir, name string, lines []string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	content := strings.Join(lines, "\n") + "\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write transcript: %v", err)
	}
	return path
}

// Transcript builds a simple claude-style transcript with alternating
// user/assistant messages m1..mN and writes it to dir.
func Transcript(t *testing.T, dir string, n int) string {
	t.Helper()

	lines := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		msgType := "assistant"
		if i%2 == 1 {
			msgType = "user"
		}
		lines = append(lines, TranscriptLine(t, fmt.Sprintf("m%d", i), msgType, fmt.Sprintf("message %d", i)))
	}
	return WriteTranscript(t, dir, "session-1.jsonl", lines)
}
