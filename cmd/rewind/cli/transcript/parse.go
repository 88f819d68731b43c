// Package transcript reads and rewrites the append-only line-delimited JSON
// transcripts kept by host coding agents. The engine never rewrites records:
// it only includes or excludes whole lines, so unknown record shapes survive
// untouched.
package transcript

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
)

// Message is the normalized view of one transcript record.
type Message struct {
	Identifier       string
	Kind             string
	Role             string
	TextContent      string
	Timestamp        string
	SessionID        string
	ParentIdentifier string
}

// Record locates one physical line in a transcript. Offsets are byte
// positions; End points just past the line's terminating newline (or EOF for
// an unterminated final line). Empty and malformed lines appear with
// Valid=false so truncation preserves them verbatim.
type Record struct {
	Identifier string
	IsUser     bool
	Start      int64
	End        int64
	Valid      bool
	Terminated bool
}

// rawRecord covers the identifier vocabularies of the supported agents.
// Claude-style transcripts key records by "uuid", droid-style by "id".
type rawRecord struct {
	UUID       string          `json:"uuid"`
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	Role       string          `json:"role"`
	Timestamp  string          `json:"timestamp"`
	SessionID  string          `json:"sessionId"`
	ParentUUID string          `json:"parentUuid"`
	ParentID   string          `json:"parentId"`
	Message    json.RawMessage `json:"message"`
}

// identifier returns the record's stable identifier for the given key,
// degrading to the other known key when the preferred one is absent.
func (r *rawRecord) identifier(idKey string) string {
	if idKey == "id" {
		if r.ID != "" {
			return r.ID
		}
		return r.UUID
	}
	if r.UUID != "" {
		return r.UUID
	}
	return r.ID
}

// parent returns the record's parent identifier, preferring the field that
// matches idKey.
func (r *rawRecord) parent(idKey string) string {
	if idKey == "id" && r.ParentID != "" {
		return r.ParentID
	}
	if r.ParentUUID != "" {
		return r.ParentUUID
	}
	return r.ParentID
}

// isUser reports whether the record is a user message.
func (r *rawRecord) isUser() bool {
	return r.Type == "user" || (r.Type == "" && r.Role == "user")
}

// readLines streams a transcript line by line, calling fn with each line's
// bytes (newline included when present) and its start offset. bufio.Reader
// handles arbitrarily long lines.
func readLines(rd io.Reader, fn func(line []byte, start int64) error) error {
	reader := bufio.NewReader(rd)
	var offset int64

	for {
		lineBytes, err := reader.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return fmt.Errorf("reading transcript: %w", err)
		}
		if len(lineBytes) > 0 {
			if err := fn(lineBytes, offset); err != nil {
				return err
			}
			offset += int64(len(lineBytes))
		}
		if err == io.EOF {
			return nil
		}
	}
}

// ScanRecords maps every line of the transcript file to a Record with byte
// offsets. Malformed lines are kept with Valid=false; parsing never fails on
// content.
func ScanRecords(path, idKey string) ([]Record, error) {
	f, err := os.Open(path) //nolint:gosec // path is a controlled transcript file path
	if err != nil {
		return nil, fmt.Errorf("opening transcript: %w", err)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	err = readLines(f, func(line []byte, start int64) error {
		rec := Record{
			Start:      start,
			End:        start + int64(len(line)),
			Terminated: line[len(line)-1] == '\n',
		}
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) > 0 {
			var raw rawRecord
			if json.Unmarshal(trimmed, &raw) == nil {
				rec.Valid = true
				rec.Identifier = raw.identifier(idKey)
				rec.IsUser = raw.isUser()
			}
		}
		records = append(records, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ParseBytes parses transcript content into normalized messages.
// Malformed lines are skipped.
func ParseBytes(content []byte, idKey string) []Message {
	var messages []Message
	_ = readLines(bytes.NewReader(content), func(line []byte, _ int64) error {
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			return nil
		}
		var raw rawRecord
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil //nolint:nilerr // malformed lines are skipped by design
		}
		messages = append(messages, Message{
			Identifier:       raw.identifier(idKey),
			Kind:             raw.Type,
			Role:             raw.Role,
			TextContent:      ExtractText(raw.Message),
			Timestamp:        raw.Timestamp,
			SessionID:        raw.SessionID,
			ParentIdentifier: raw.parent(idKey),
		})
		return nil
	})
	return messages
}

// ParseFile parses a transcript file into normalized messages.
func ParseFile(path, idKey string) ([]Message, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is a controlled transcript file path
	if err != nil {
		return nil, fmt.Errorf("reading transcript: %w", err)
	}
	return ParseBytes(data, idKey), nil
}

// messageBody is the loose shape of a record's "message" field: either a
// plain string or an object whose content is a string or a block array.
type messageBody struct {
	Content any `json:"content"`
}

// contentBlock is one tagged variant in an array-valued content field.
// Only Text arms contribute to extracted text.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ExtractText extracts the text content of a record's message field.
// A string message is taken whole; an object's string content likewise; an
// array content concatenates its text-typed blocks. Returns empty for
// anything else.
func ExtractText(message json.RawMessage) string {
	if len(message) == 0 {
		return ""
	}

	// A plain string message.
	var s string
	if err := json.Unmarshal(message, &s); err == nil {
		return s
	}

	var body messageBody
	if err := json.Unmarshal(message, &body); err != nil {
		return ""
	}

	if str, ok := body.Content.(string); ok {
		return str
	}

	arr, ok := body.Content.([]any)
	if !ok {
		return ""
	}
	var texts []string
	for _, item := range arr {
		raw, err := json.Marshal(item)
		if err != nil {
			continue
		}
		var block contentBlock
		if err := json.Unmarshal(raw, &block); err != nil {
			continue
		}
		if block.Type == "text" && block.Text != "" {
			texts = append(texts, block.Text)
		}
	}
	return strings.Join(texts, "\n")
}

// LastUserMessage returns the most recent user message in the transcript,
// scanning from the tail.
func LastUserMessage(path, idKey string) (Message, bool, error) {
	messages, err := ParseFile(path, idKey)
	if err != nil {
		return Message{}, false, err
	}
	for i := len(messages) - 1; i >= 0; i-- {
		m := messages[i]
		if m.Kind == "user" || (m.Kind == "" && m.Role == "user") {
			return m, true, nil
		}
	}
	return Message{}, false, nil
}

// MessageIndex returns the index of the message with the given identifier,
// or -1 when absent.
func MessageIndex(messages []Message, identifier string) int {
	for i, m := range messages {
		if m.Identifier == identifier && identifier != "" {
			return i
		}
	}
	return -1
}
