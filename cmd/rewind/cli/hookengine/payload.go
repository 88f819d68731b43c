// Package hookengine decides whether a hook event should produce a new
// checkpoint: structural events always do, everything else passes through
// debounce, change detection, and tool significance.
package hookengine

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// Hook event names as delivered on the payload.
const (
	EventPreToolUse       = "pre-tool-use"
	EventPostToolUse      = "post-tool-use"
	EventUserPromptSubmit = "user-prompt-submit"
	EventSessionStart     = "session-start"
	EventSessionEnd       = "session-end"
	EventStop             = "stop"
	EventSubagentStart    = "subagent-start"
	EventSubagentStop     = "subagent-stop"
	EventPreCompact       = "pre-compact"
	EventNotification     = "notification"
)

// Payload is the JSON hook event read on standard input.
type Payload struct {
	HookEventName  string          `json:"hook_event_name"`
	SessionID      string          `json:"session_id"`
	Cwd            string          `json:"cwd"`
	TranscriptPath string          `json:"transcript_path"`
	ToolName       string          `json:"tool_name"`
	ToolInput      json.RawMessage `json:"tool_input"`
	AgentName      string          `json:"agent_name"`
}

// ParsePayload reads one hook payload from r.
func ParsePayload(r io.Reader) (*Payload, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read input: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}

	var p Payload
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &p, nil
}

// IsStructural reports whether the event marks a session or subagent
// lifecycle boundary. Structural events always produce a checkpoint.
func (p *Payload) IsStructural() bool {
	switch p.HookEventName {
	case EventSessionStart, EventSessionEnd, EventSubagentStart, EventSubagentStop:
		return true
	default:
		return false
	}
}

// toolInputFields is the subset of tool_input the engine inspects.
type toolInputFields struct {
	Command  string `json:"command"`
	FilePath string `json:"file_path"`
}

// Command extracts the shell command from tool_input, if any.
func (p *Payload) Command() string {
	var fields toolInputFields
	if json.Unmarshal(p.ToolInput, &fields) != nil {
		return ""
	}
	return fields.Command
}

// FilePath extracts the target file path from tool_input, if any.
func (p *Payload) FilePath() string {
	var fields toolInputFields
	if json.Unmarshal(p.ToolInput, &fields) != nil {
		return ""
	}
	return fields.FilePath
}

// Description maps a hook event to a human-readable checkpoint description.
func (p *Payload) Description() string {
	switch p.HookEventName {
	case EventSessionStart:
		return "session start"
	case EventSessionEnd:
		return "session end"
	case EventSubagentStart:
		return "subagent start"
	case EventSubagentStop:
		return "subagent stop"
	case EventStop:
		return "agent stop"
	case EventPreCompact:
		return "before compact"
	case EventUserPromptSubmit:
		return "user prompt"
	case EventPreToolUse:
		if p.ToolName != "" {
			return "before " + p.ToolName
		}
		return "before tool"
	case EventPostToolUse:
		if p.ToolName != "" {
			return "after " + p.ToolName
		}
		return "after tool"
	default:
		return "checkpoint"
	}
}
