package transcript

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

const sampleTranscript = `{"uuid":"m1","type":"user","timestamp":"2026-08-02T10:00:00Z","sessionId":"s1","message":{"content":"hello"}}
{"uuid":"m2","type":"assistant","parentUuid":"m1","message":{"content":[{"type":"text","text":"hi there"},{"type":"tool_use","name":"Write"},{"type":"text","text":"done"}]}}

not json at all
{"uuid":"m3","type":"user","message":"plain string message"}
`

func writeTranscript(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "session.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write transcript: %v", err)
	}
	return path
}

func TestParseBytes_SkipsMalformedLines(t *testing.T) {
	messages := ParseBytes([]byte(sampleTranscript), "uuid")
	if len(messages) != 3 {
		t.Fatalf("message count = %d, want 3", len(messages))
	}
	if messages[0].Identifier != "m1" || messages[1].Identifier != "m2" || messages[2].Identifier != "m3" {
		t.Errorf("identifiers = %v", []string{messages[0].Identifier, messages[1].Identifier, messages[2].Identifier})
	}
	if messages[1].ParentIdentifier != "m1" {
		t.Errorf("parent = %q, want m1", messages[1].ParentIdentifier)
	}
}

func TestExtractText_ContentVariants(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"plain string message", `"just text"`, "just text"},
		{"string content", `{"content":"hello"}`, "hello"},
		{"array content", `{"content":[{"type":"text","text":"a"},{"type":"tool_use","name":"Bash"},{"type":"text","text":"b"}]}`, "a\nb"},
		{"no text arms", `{"content":[{"type":"tool_result","tool_use_id":"t1"}]}`, ""},
		{"unknown shape", `{"other":true}`, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractText(json.RawMessage(tt.message)); got != tt.want {
				t.Errorf("ExtractText() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestScanRecords_OffsetsCoverEveryByte(t *testing.T) {
	path := writeTranscript(t, sampleTranscript)

	records, err := ScanRecords(path, "uuid")
	if err != nil {
		t.Fatalf("ScanRecords() error = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("record count = %d, want 5 (including empty and malformed lines)", len(records))
	}

	var prevEnd int64
	for i, rec := range records {
		if rec.Start != prevEnd {
			t.Errorf("record %d start = %d, want %d", i, rec.Start, prevEnd)
		}
		prevEnd = rec.End
	}

	info, _ := os.Stat(path)
	if prevEnd != info.Size() {
		t.Errorf("last end = %d, want file size %d", prevEnd, info.Size())
	}

	if !records[0].IsUser || records[1].IsUser {
		t.Error("user detection wrong")
	}
	if records[2].Valid || records[3].Valid {
		t.Error("empty and malformed lines must be Valid=false")
	}
}

func TestScanRecords_IDKeyFallback(t *testing.T) {
	content := `{"id":"d1","type":"user","message":{"content":"droid style"}}` + "\n"
	path := writeTranscript(t, content)

	records, err := ScanRecords(path, "id")
	if err != nil {
		t.Fatalf("ScanRecords() error = %v", err)
	}
	if records[0].Identifier != "d1" {
		t.Errorf("identifier = %q, want d1", records[0].Identifier)
	}

	// The uuid key degrades to id when uuid is absent.
	records, err = ScanRecords(path, "uuid")
	if err != nil {
		t.Fatalf("ScanRecords() error = %v", err)
	}
	if records[0].Identifier != "d1" {
		t.Errorf("fallback identifier = %q, want d1", records[0].Identifier)
	}
}

func TestLastUserMessage(t *testing.T) {
	path := writeTranscript(t, sampleTranscript)

	msg, ok, err := LastUserMessage(path, "uuid")
	if err != nil {
		t.Fatalf("LastUserMessage() error = %v", err)
	}
	if !ok {
		t.Fatal("expected a user message")
	}
	if msg.Identifier != "m3" {
		t.Errorf("identifier = %q, want m3 (scan from tail)", msg.Identifier)
	}
	if msg.TextContent != "plain string message" {
		t.Errorf("text = %q", msg.TextContent)
	}
}

func TestCaptureCursor_EndsOnRecordBoundary(t *testing.T) {
	// The final line is mid-append (no trailing newline) and must be
	// excluded from the cursor.
	content := `{"uuid":"m1","type":"user","message":{"content":"a"}}` + "\n" +
		`{"uuid":"m2","type":"assistant","message":{"content":"b"}}` + "\n" +
		`{"uuid":"m3","type":"user","message":{"cont`
	path := writeTranscript(t, content)

	cur, err := CaptureCursor(path, "uuid")
	if err != nil {
		t.Fatalf("CaptureCursor() error = %v", err)
	}
	if cur == nil {
		t.Fatal("cursor = nil")
	}
	if cur.LastEventID != "m2" {
		t.Errorf("lastEventId = %q, want m2", cur.LastEventID)
	}

	onNewline, err := cur.EndsOnNewline()
	if err != nil || !onNewline {
		t.Errorf("EndsOnNewline() = %v, %v; want true", onNewline, err)
	}

	ok, err := cur.VerifyPrefix()
	if err != nil || !ok {
		t.Errorf("VerifyPrefix() = %v, %v; want true", ok, err)
	}
}
