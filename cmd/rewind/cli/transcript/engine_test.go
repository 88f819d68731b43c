package transcript

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/rewindio/cli/cmd/rewind/cli/agent"
)

// fourMessages builds a transcript with records m1..m4 and returns its path
// plus the raw content.
func fourMessages(t *testing.T) (string, string) {
	t.Helper()
	content := `{"uuid":"m1","type":"user","message":{"content":"one"}}` + "\n" +
		`{"uuid":"m2","type":"assistant","message":{"content":"two"}}` + "\n" +
		`{"uuid":"m3","type":"user","message":{"content":"three"}}` + "\n" +
		`{"uuid":"m4","type":"assistant","message":{"content":"four"}}` + "\n"
	return writeTranscript(t, content), content
}

func TestFork_NonDestructive(t *testing.T) {
	path, original := fourMessages(t)

	cur, err := BoundaryCursorForID(path, "uuid", "m2")
	if err != nil {
		t.Fatalf("BoundaryCursorForID() error = %v", err)
	}

	result, err := Fork(cur, "", nil)
	if err != nil {
		t.Fatalf("Fork() error = %v", err)
	}
	if !result.UsedFastPath {
		t.Error("expected the fast path for an unchanged transcript")
	}

	// The fork is a sibling *.jsonl containing exactly m1, m2 with a
	// trailing newline.
	if filepath.Dir(result.NewPath) != filepath.Dir(path) {
		t.Error("fork must be a sibling of the original")
	}
	if !strings.HasSuffix(result.NewPath, ".jsonl") {
		t.Errorf("fork name = %q, want *.jsonl", result.NewPath)
	}

	forked, err := os.ReadFile(result.NewPath)
	if err != nil {
		t.Fatalf("reading fork: %v", err)
	}
	wantLines := strings.SplitN(original, "\n", 3)
	want := wantLines[0] + "\n" + wantLines[1] + "\n"
	if string(forked) != want {
		t.Errorf("fork content = %q, want %q", forked, want)
	}

	// The live transcript is bytewise identical.
	live, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading original: %v", err)
	}
	if string(live) != original {
		t.Error("fork modified the live transcript")
	}
}

func TestFork_FallsBackToSnapshot(t *testing.T) {
	path, _ := fourMessages(t)

	cur, err := BoundaryCursorForID(path, "uuid", "m2")
	if err != nil {
		t.Fatalf("BoundaryCursorForID() error = %v", err)
	}

	// Snapshot the prefix, then rewrite the live transcript so the cursor
	// fingerprint no longer matches.
	gzPath := filepath.Join(t.TempDir(), "transcript.jsonl.gz")
	if err := Compress(path, cur.ByteOffsetEnd, gzPath); err != nil {
		t.Fatalf("Compress() error = %v", err)
	}
	rewritten := `{"uuid":"x1","type":"user","message":{"content":"different"}}` + "\n"
	if err := os.WriteFile(path, []byte(rewritten), 0o644); err != nil {
		t.Fatalf("rewriting transcript: %v", err)
	}

	result, err := Fork(cur, gzPath, nil)
	if err != nil {
		t.Fatalf("Fork() error = %v", err)
	}
	if result.UsedFastPath {
		t.Error("fast path must not be used when the prefix diverged")
	}

	forked, err := os.ReadFile(result.NewPath)
	if err != nil {
		t.Fatalf("reading fork: %v", err)
	}
	if !strings.Contains(string(forked), `"uuid":"m2"`) || strings.Contains(string(forked), `"uuid":"m3"`) {
		t.Errorf("fork content = %q", forked)
	}
	if !strings.HasSuffix(string(forked), "\n") {
		t.Error("fork must end with a newline")
	}
}

func TestFork_InconsistentWithoutSnapshot(t *testing.T) {
	path, _ := fourMessages(t)

	cur, err := BoundaryCursorForID(path, "uuid", "m2")
	if err != nil {
		t.Fatalf("BoundaryCursorForID() error = %v", err)
	}
	if err := os.WriteFile(path, []byte("corrupted\n"), 0o644); err != nil {
		t.Fatalf("rewriting transcript: %v", err)
	}

	_, err = Fork(cur, "", nil)
	if !errors.Is(err, ErrTranscriptInconsistent) {
		t.Errorf("Fork() error = %v, want ErrTranscriptInconsistent", err)
	}
}

func TestFork_TitleRewriteGuardedByProfile(t *testing.T) {
	content := `{"uuid":"m1","type":"session","title":"My Session"}` + "\n" +
		`{"uuid":"m2","type":"user","message":{"content":"hi"}}` + "\n"
	path := writeTranscript(t, content)

	cur, err := BoundaryCursorForID(path, "uuid", "m2")
	if err != nil {
		t.Fatalf("BoundaryCursorForID() error = %v", err)
	}

	profile := &agent.Profile{Kind: "titled", IdentifierKey: "uuid", ForkTitlePrefix: true}
	result, err := Fork(cur, "", profile)
	if err != nil {
		t.Fatalf("Fork() error = %v", err)
	}

	forked, _ := os.ReadFile(result.NewPath)
	if !strings.Contains(string(forked), `[Fork] My Session`) {
		t.Errorf("fork title not rewritten: %q", forked)
	}
	if !strings.Contains(string(forked), `"uuid":"m2"`) {
		t.Error("fork lost subsequent records")
	}

	live, _ := os.ReadFile(path)
	if string(live) != content {
		t.Error("title rewrite touched the live transcript")
	}
}

func TestTruncateInPlace_ByIdentifier(t *testing.T) {
	path, original := fourMessages(t)

	result, err := TruncateInPlace(path, TruncateOptions{TargetID: "m2", IDKey: "uuid"})
	if err != nil {
		t.Fatalf("TruncateInPlace() error = %v", err)
	}

	// Backup holds the original bytes, untouched.
	backup, err := os.ReadFile(result.BackupPath)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(backup) != original {
		t.Error("backup differs from the original transcript")
	}

	// The truncated transcript is a strict prefix of the backup.
	truncated, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading truncated transcript: %v", err)
	}
	if string(backup[:len(truncated)]) != string(truncated) {
		t.Error("truncated transcript is not a prefix of the backup")
	}
	if !strings.Contains(string(truncated), `"uuid":"m2"`) || strings.Contains(string(truncated), `"uuid":"m3"`) {
		t.Errorf("truncated content = %q", truncated)
	}
}

func TestTruncateInPlace_TurnsBack(t *testing.T) {
	// User messages on lines 1, 4, 8, 12 (1-based).
	var lines []string
	userLines := map[int]bool{1: true, 4: true, 8: true, 12: true}
	for i := 1; i <= 12; i++ {
		msgType := "assistant"
		if userLines[i] {
			msgType = "user"
		}
		lines = append(lines, `{"uuid":"m`+strconv.Itoa(i)+`","type":"`+msgType+`","message":{"content":"x"}}`)
	}
	original := strings.Join(lines, "\n") + "\n"
	path := writeTranscript(t, original)

	// back 2: keep everything before the 2nd-most-recent user message (line 8).
	result, err := TruncateInPlace(path, TruncateOptions{TurnsBack: 2, IDKey: "uuid"})
	if err != nil {
		t.Fatalf("TruncateInPlace() error = %v", err)
	}

	truncated, _ := os.ReadFile(path)
	want := strings.Join(lines[:7], "\n") + "\n"
	if string(truncated) != want {
		t.Errorf("truncated to %d bytes, want %d", len(truncated), len(want))
	}
	if strings.Contains(string(truncated), `"uuid":"m8"`) {
		t.Error("the boundary user message must be excluded")
	}

	backup, _ := os.ReadFile(result.BackupPath)
	if string(backup) != original {
		t.Error("backup differs from the original")
	}
}

func TestTruncateInPlace_TargetNotFound(t *testing.T) {
	path, original := fourMessages(t)

	_, err := TruncateInPlace(path, TruncateOptions{TargetID: "m999", IDKey: "uuid"})
	if !errors.Is(err, ErrTargetNotFound) {
		t.Fatalf("TruncateInPlace() error = %v, want ErrTargetNotFound", err)
	}

	// The live transcript is unchanged and no backup was left behind.
	live, _ := os.ReadFile(path)
	if string(live) != original {
		t.Error("failed truncation modified the transcript")
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	for _, e := range entries {
		if strings.Contains(e.Name(), ".backup.") {
			t.Errorf("backup %s left behind after TargetNotFound", e.Name())
		}
	}
}

func TestTruncateInPlace_PreservesMalformedLines(t *testing.T) {
	content := `{"uuid":"m1","type":"user","message":{"content":"a"}}` + "\n" +
		"not json\n" +
		"\n" +
		`{"uuid":"m2","type":"assistant","message":{"content":"b"}}` + "\n"
	path := writeTranscript(t, content)

	if _, err := TruncateInPlace(path, TruncateOptions{TargetID: "m2", IDKey: "uuid"}); err != nil {
		t.Fatalf("TruncateInPlace() error = %v", err)
	}

	truncated, _ := os.ReadFile(path)
	if string(truncated) != content {
		t.Error("truncation at the last record must preserve malformed lines verbatim")
	}
}

func TestBoundaryCursorForTurnsBack(t *testing.T) {
	path, _ := fourMessages(t)

	// One turn back: keep everything before m3 (the most recent user
	// message), so the last kept event is m2.
	cur, err := BoundaryCursorForTurnsBack(path, "uuid", 1)
	if err != nil {
		t.Fatalf("BoundaryCursorForTurnsBack() error = %v", err)
	}
	if cur.LastEventID != "m2" {
		t.Errorf("lastEventId = %q, want m2", cur.LastEventID)
	}

	if _, err := BoundaryCursorForTurnsBack(path, "uuid", 9); !errors.Is(err, ErrTargetNotFound) {
		t.Errorf("too many turns error = %v, want ErrTargetNotFound", err)
	}
}
