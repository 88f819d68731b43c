package hookengine

import (
	"encoding/json"
	"os"
	"time"

	"github.com/rewindio/cli/cmd/rewind/cli/jsonutil"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
)

// SessionState is the last-seen session, written by the hook runner so that
// status and back can operate without a hook payload.
type SessionState struct {
	AgentKind      string `json:"agentKind"`
	SessionID      string `json:"sessionId"`
	TranscriptPath string `json:"transcriptPath,omitempty"`
	UpdatedAtISO   string `json:"updatedAtISO"`
}

// SaveSession records the current session state atomically.
func SaveSession(storageDir string, state SessionState) error {
	state.UpdatedAtISO = time.Now().UTC().Format(time.RFC3339)
	return jsonutil.WriteFileAtomic(paths.SessionFile(storageDir), state)
}

// LoadSession returns the last-seen session state, or nil when none exists.
func LoadSession(storageDir string) *SessionState {
	data, err := os.ReadFile(paths.SessionFile(storageDir)) //nolint:gosec // path is under the storage dir
	if err != nil {
		return nil
	}
	var state SessionState
	if json.Unmarshal(data, &state) != nil {
		return nil
	}
	return &state
}
