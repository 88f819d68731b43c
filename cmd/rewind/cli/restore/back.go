package restore

import (
	"fmt"
	"time"

	"github.com/rewindio/cli/cmd/rewind/cli/agent"
	"github.com/rewindio/cli/cmd/rewind/cli/transcript"
)

// BackOptions configure unwinding the conversation by N user turns.
type BackOptions struct {
	Turns   int
	Both    bool
	InPlace bool
}

// Back rewinds the transcript N user turns: the fork (or truncation) keeps
// everything before the Nth-most-recent user message. With Both set, the
// checkpoint whose cursor ends at the same boundary message is also restored
// as code.
func (c *Coordinator) Back(transcriptPath, agentKind string, opts BackOptions) (*Report, error) {
	if opts.Turns < 1 {
		return nil, fmt.Errorf("back requires a positive number of turns, got %d", opts.Turns)
	}
	if transcriptPath == "" {
		return nil, fmt.Errorf("%w: no current session transcript", transcript.ErrTargetNotFound)
	}

	profile := c.profileFor(nil)
	if p, err := agent.Get(agentKind); err == nil {
		profile = p
	}

	mode := ModeContext
	if opts.Both {
		mode = ModeBoth
	}
	report := &Report{Mode: mode}

	// The boundary cursor identifies the last kept message; with Both it
	// also selects the code checkpoint to pair with.
	cursor, err := transcript.BoundaryCursorForTurnsBack(transcriptPath, profile.IdentifierKey, opts.Turns)
	if err != nil {
		return nil, err
	}

	var codeTarget string
	if opts.Both {
		codeTarget = c.checkpointForEvent(cursor.LastEventID)
		if codeTarget == "" {
			report.Warnings = append(report.Warnings,
				"no checkpoint matches the target message; rewinding conversation only")
		}
	}

	if codeTarget != "" {
		emergency, err := c.Store.CreateEmergency()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrSafetyBackupFailed, err)
		}
		report.EmergencyName = emergency.Name
	}

	if opts.InPlace {
		result, err := transcript.TruncateInPlace(transcriptPath, transcript.TruncateOptions{
			TurnsBack: opts.Turns,
			IDKey:     profile.IdentifierKey,
		})
		if err != nil {
			return report, err
		}
		report.BackupPath = result.BackupPath
		report.Actions = append(report.Actions,
			"Exit the agent, then resume the same session; the last turns have been removed.")
	} else {
		result, err := transcript.Fork(cursor, "", profile)
		if err != nil {
			return report, err
		}
		report.NewTranscriptPath = result.NewPath
		report.Actions = append(report.Actions,
			fmt.Sprintf("Exit the agent and resume with session %s.", sessionIDFromPath(result.NewPath)))
	}

	if codeTarget != "" {
		target, err := c.Store.Get(codeTarget)
		if err == nil {
			err = c.Store.Apply(target)
		}
		if err != nil {
			return report, fmt.Errorf("code restore failed (recover with checkpoint %s): %w", report.EmergencyName, err)
		}
		report.Checkpoint = codeTarget
	}

	appendHistoryEntry(c.Store.Dir, HistoryEntry{
		Checkpoint:    report.Checkpoint,
		Mode:          string(report.Mode),
		Emergency:     report.EmergencyName,
		NewTranscript: report.NewTranscriptPath,
		TimestampISO:  time.Now().UTC().Format(time.RFC3339),
	})
	return report, nil
}

// checkpointForEvent finds the newest checkpoint whose cursor ends at the
// given message identifier.
func (c *Coordinator) checkpointForEvent(eventID string) string {
	if eventID == "" {
		return ""
	}
	manifests, err := c.Store.List()
	if err != nil {
		return ""
	}
	for _, m := range manifests {
		if m.Transcript != nil && m.Transcript.Cursor != nil && m.Transcript.Cursor.LastEventID == eventID {
			return m.Name
		}
	}
	return ""
}
