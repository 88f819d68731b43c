package hookengine

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/rewindio/cli/cmd/rewind/cli/config"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	cfg := config.Default()
	cfg.MinIntervalSeconds = 60
	return NewEngine(cfg)
}

func TestDecide_StructuralEventsAlwaysCreate(t *testing.T) {
	e := testEngine(t)
	now := time.Now()

	for _, event := range []string{EventSessionStart, EventSessionEnd, EventSubagentStart, EventSubagentStop} {
		p := &Payload{HookEventName: event, SessionID: "s1"}
		// Even inside the debounce window and with an unchanged tree.
		d := e.Decide(p, now, now.Add(-time.Second), "sig", "sig")
		if !d.ShouldCreate || !d.Force {
			t.Errorf("%s: decision = %+v, want create+force", event, d)
		}
		if d.UpdateDebounceTimer {
			t.Errorf("%s: structural events must not update the debounce timer", event)
		}
	}
}

func TestDecide_Debounce(t *testing.T) {
	e := testEngine(t)
	now := time.Now()
	p := &Payload{HookEventName: EventPostToolUse, ToolName: "Write", SessionID: "s1"}

	d := e.Decide(p, now, now.Add(-10*time.Second), "new", "old")
	if d.ShouldCreate {
		t.Error("a checkpoint inside the debounce window must be suppressed")
	}
	if d.Reason != "anti-spam" {
		t.Errorf("reason = %q, want anti-spam", d.Reason)
	}

	d = e.Decide(p, now, now.Add(-120*time.Second), "new", "old")
	if !d.ShouldCreate {
		t.Error("a checkpoint outside the debounce window must pass")
	}
}

func TestDecide_NoChanges(t *testing.T) {
	e := testEngine(t)
	p := &Payload{HookEventName: EventPostToolUse, ToolName: "Write", SessionID: "s1"}

	d := e.Decide(p, time.Now(), time.Time{}, "same", "same")
	if d.ShouldCreate {
		t.Error("an unchanged tree must be suppressed")
	}
	if d.Reason != "no changes" {
		t.Errorf("reason = %q, want 'no changes'", d.Reason)
	}
}

func TestDecide_Significance(t *testing.T) {
	e := testEngine(t)
	now := time.Now()

	// File-modification tools pass unconditionally.
	for _, tool := range []string{"Write", "Edit", "MultiEdit", "NotebookEdit"} {
		p := &Payload{HookEventName: EventPreToolUse, ToolName: tool}
		if d := e.Decide(p, now, time.Time{}, "new", "old"); !d.ShouldCreate {
			t.Errorf("%s should always be significant", tool)
		}
	}

	// Destructive shell commands pass.
	destructive := &Payload{
		HookEventName: EventPreToolUse,
		ToolName:      "Bash",
		ToolInput:     json.RawMessage(`{"command":"rm -rf build/"}`),
	}
	if d := e.Decide(destructive, now, time.Time{}, "new", "old"); !d.ShouldCreate {
		t.Error("a destructive shell command should be significant")
	}

	// Benign shell commands do not.
	benign := &Payload{
		HookEventName: EventPreToolUse,
		ToolName:      "Bash",
		ToolInput:     json.RawMessage(`{"command":"ls -la"}`),
	}
	d := e.Decide(benign, now, time.Time{}, "new", "old")
	if d.ShouldCreate {
		t.Error("a benign shell command should not be significant")
	}
	if d.Reason != "not significant" {
		t.Errorf("reason = %q, want 'not significant'", d.Reason)
	}

	// Other tool kinds pass by default.
	other := &Payload{HookEventName: EventPostToolUse, ToolName: "WebFetch"}
	if d := e.Decide(other, now, time.Time{}, "new", "old"); !d.ShouldCreate {
		t.Error("unknown tool kinds pass by default")
	}
}

func TestDecide_PassUpdatesDebounceTimer(t *testing.T) {
	e := testEngine(t)
	p := &Payload{HookEventName: EventPostToolUse, ToolName: "Edit"}

	d := e.Decide(p, time.Now(), time.Time{}, "new", "old")
	if !d.ShouldCreate || !d.UpdateDebounceTimer {
		t.Errorf("decision = %+v, want create with debounce update", d)
	}
	if d.Force {
		t.Error("non-structural passes are not forced")
	}
}

func TestParsePayload(t *testing.T) {
	input := `{
		"hook_event_name": "post-tool-use",
		"session_id": "abc-123",
		"cwd": "/home/dev/project",
		"transcript_path": "/home/dev/.claude/projects/x/abc.jsonl",
		"tool_name": "Bash",
		"tool_input": {"command": "go test ./..."}
	}`

	p, err := ParsePayload(strings.NewReader(input))
	if err != nil {
		t.Fatalf("ParsePayload() error = %v", err)
	}
	if p.HookEventName != EventPostToolUse || p.SessionID != "abc-123" {
		t.Errorf("payload = %+v", p)
	}
	if p.Command() != "go test ./..." {
		t.Errorf("Command() = %q", p.Command())
	}

	if _, err := ParsePayload(strings.NewReader("")); err == nil {
		t.Error("empty input must error")
	}
	if _, err := ParsePayload(strings.NewReader("{broken")); err == nil {
		t.Error("malformed input must error")
	}
}

func TestDebounceRoundTrip(t *testing.T) {
	dir := t.TempDir()
	at := time.Date(2026, 8, 2, 12, 0, 0, 0, time.UTC)

	if err := WriteDebounce(dir, "claude", "session-1", at); err != nil {
		t.Fatalf("WriteDebounce() error = %v", err)
	}

	got := ReadDebounce(dir, "claude", "session-1")
	if !got.Equal(at) {
		t.Errorf("ReadDebounce() = %v, want %v", got, at)
	}

	// Unknown session yields the zero time.
	if got := ReadDebounce(dir, "claude", "other"); !got.IsZero() {
		t.Errorf("ReadDebounce(miss) = %v, want zero", got)
	}

	// Path-unsafe IDs are rejected.
	if err := WriteDebounce(dir, "claude", "../escape", at); err == nil {
		t.Error("path-unsafe session ID must be rejected")
	}
}

func TestSessionStateRoundTrip(t *testing.T) {
	dir := t.TempDir()

	if LoadSession(dir) != nil {
		t.Error("LoadSession on empty dir must return nil")
	}

	err := SaveSession(dir, SessionState{
		AgentKind:      "claude",
		SessionID:      "abc",
		TranscriptPath: "/tmp/abc.jsonl",
	})
	if err != nil {
		t.Fatalf("SaveSession() error = %v", err)
	}

	state := LoadSession(dir)
	if state == nil {
		t.Fatal("LoadSession() = nil")
	}
	if state.SessionID != "abc" || state.AgentKind != "claude" {
		t.Errorf("state = %+v", state)
	}
	if state.UpdatedAtISO == "" {
		t.Error("UpdatedAtISO must be stamped")
	}
}
