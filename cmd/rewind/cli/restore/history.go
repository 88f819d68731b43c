package restore

import (
	"context"
	"encoding/json"
	"os"

	"github.com/rewindio/cli/cmd/rewind/cli/jsonutil"
	"github.com/rewindio/cli/cmd/rewind/cli/logging"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
)

// HistoryEntry is one appended record in restore-history.json.
type HistoryEntry struct {
	Checkpoint    string `json:"checkpoint"`
	Mode          string `json:"mode"`
	Emergency     string `json:"emergency,omitempty"`
	NewTranscript string `json:"newTranscript,omitempty"`
	TimestampISO  string `json:"timestampISO"`
}

// appendHistoryEntry records a restore in restore-history.json. Best-effort:
// history is informational and never blocks a restore.
func appendHistoryEntry(storageDir string, entry HistoryEntry) {
	path := paths.RestoreHistoryPath(storageDir)
	var entries []HistoryEntry
	if data, err := os.ReadFile(path); err == nil { //nolint:gosec // path is under the storage dir
		_ = json.Unmarshal(data, &entries)
	}
	entries = append(entries, entry)
	if err := jsonutil.WriteFileAtomic(path, entries); err != nil {
		logging.Debug(context.Background(), "restore history append failed", "error", err.Error())
	}
}

// History returns the recorded restores, oldest first. Missing or corrupt
// history yields nil.
func History(storageDir string) []HistoryEntry {
	data, err := os.ReadFile(paths.RestoreHistoryPath(storageDir)) //nolint:gosec // path is under the storage dir
	if err != nil {
		return nil
	}
	var entries []HistoryEntry
	if json.Unmarshal(data, &entries) != nil {
		return nil
	}
	return entries
}
