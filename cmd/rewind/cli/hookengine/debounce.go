package hookengine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewindio/cli/cmd/rewind/cli/jsonutil"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
	"github.com/rewindio/cli/cmd/rewind/cli/validation"
)

// debounceState is the per-session debounce file. Each hook process writes
// only its own session's file, so concurrent writers never conflict.
type debounceState struct {
	LastCheckpointAt string `json:"lastCheckpointAt"`
}

// ReadDebounce returns the session's last checkpoint time. The zero time is
// returned when no state exists or it is unreadable.
func ReadDebounce(storageDir, agentKind, sessionID string) time.Time {
	if validation.ValidateAgentKind(agentKind) != nil || validation.ValidateSessionID(sessionID) != nil {
		return time.Time{}
	}
	data, err := os.ReadFile(paths.DebounceFile(storageDir, agentKind, sessionID)) //nolint:gosec // components validated above
	if err != nil {
		return time.Time{}
	}
	var state debounceState
	if json.Unmarshal(data, &state) != nil {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339, state.LastCheckpointAt)
	if err != nil {
		return time.Time{}
	}
	return t
}

// WriteDebounce records a checkpoint time for the session.
func WriteDebounce(storageDir, agentKind, sessionID string, at time.Time) error {
	if err := validation.ValidateAgentKind(agentKind); err != nil {
		return err
	}
	if err := validation.ValidateSessionID(sessionID); err != nil {
		return err
	}

	path := paths.DebounceFile(storageDir, agentKind, sessionID)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating session state directory: %w", err)
	}
	return jsonutil.WriteFileAtomic(path, debounceState{
		LastCheckpointAt: at.UTC().Format(time.RFC3339),
	})
}

// SweepDebounce removes debounce files older than maxAge. Returns how many
// were removed. Best-effort.
func SweepDebounce(storageDir string, maxAge time.Duration) int {
	removed := 0
	sessionsDir := filepath.Join(storageDir, paths.SessionsDirName)
	agentDirs, err := os.ReadDir(sessionsDir)
	if err != nil {
		return 0
	}
	cutoff := time.Now().Add(-maxAge)
	for _, agentDir := range agentDirs {
		if !agentDir.IsDir() {
			continue
		}
		files, err := os.ReadDir(filepath.Join(sessionsDir, agentDir.Name()))
		if err != nil {
			continue
		}
		for _, f := range files {
			info, err := f.Info()
			if err != nil || !info.ModTime().Before(cutoff) {
				continue
			}
			if os.Remove(filepath.Join(sessionsDir, agentDir.Name(), f.Name())) == nil {
				removed++
			}
		}
	}
	return removed
}
