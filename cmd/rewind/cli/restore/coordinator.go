// Package restore drives consistent code+chat rewinds: safety snapshot
// first, then transcript fork or truncation, then code restore, with
// rollback reporting when the middle step fails.
package restore

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rewindio/cli/cmd/rewind/cli/agent"
	"github.com/rewindio/cli/cmd/rewind/cli/logging"
	"github.com/rewindio/cli/cmd/rewind/cli/metadata"
	"github.com/rewindio/cli/cmd/rewind/cli/store"
	"github.com/rewindio/cli/cmd/rewind/cli/transcript"
)

// Mode selects what a restore touches.
type Mode string

// Supported restore modes.
const (
	ModeCode    Mode = "code"
	ModeContext Mode = "context"
	ModeBoth    Mode = "both"
)

// ErrSafetyBackupFailed means the emergency snapshot could not be created.
// Fatal for restore unless the caller set SkipBackup.
var ErrSafetyBackupFailed = errors.New("safety backup failed")

// Options configure one coordinator run.
type Options struct {
	Mode       Mode
	InPlace    bool
	DryRun     bool
	SkipBackup bool
}

// Report describes what a restore did (or, for dry runs, would do).
type Report struct {
	Checkpoint        string
	Mode              Mode
	EmergencyName     string
	NewTranscriptPath string
	BackupPath        string
	RolledBack        bool
	DryRun            bool
	Warnings          []string
	Actions           []string
	Changes           []FileChange
}

// Coordinator wires the checkpoint store, the context linker, and the
// transcript engine into the restore protocol.
type Coordinator struct {
	Store  *store.Store
	Linker *metadata.Linker
}

// New returns a Coordinator over the given store and its metadata linker.
func New(s *store.Store) *Coordinator {
	return &Coordinator{Store: s, Linker: metadata.NewLinker(s.Dir)}
}

// Run resolves the selector and performs the restore protocol for the
// requested mode.
func (c *Coordinator) Run(selector string, opts Options) (*Report, error) {
	if opts.Mode == "" {
		opts.Mode = ModeCode
	}

	target, err := c.Store.Resolve(selector)
	if err != nil {
		return nil, err
	}

	report := &Report{Checkpoint: target.Name, Mode: opts.Mode, DryRun: opts.DryRun}

	// Step 1: metadata lookup. Absent context downgrades to code with a
	// warning.
	var rec *metadata.Record
	if opts.Mode != ModeCode {
		r, ok, err := c.Linker.Get(target.Name)
		if err != nil {
			return nil, err
		}
		if !ok || target.Transcript == nil || target.Transcript.Cursor == nil {
			if opts.Mode == ModeContext {
				return nil, fmt.Errorf("%w: checkpoint %s has no conversation context", store.ErrTargetNotFound, target.Name)
			}
			report.Warnings = append(report.Warnings, "checkpoint has no conversation context; restoring code only")
			report.Mode = ModeCode
			opts.Mode = ModeCode
		} else {
			rec = &r
		}
	}

	if opts.DryRun {
		return c.dryRun(target, rec, opts, report)
	}

	// Step 2: emergency snapshot.
	emergency, err := c.Store.CreateEmergency()
	switch {
	case err == nil:
		report.EmergencyName = emergency.Name
	case opts.SkipBackup:
		report.Warnings = append(report.Warnings, fmt.Sprintf("continuing without safety backup: %v", err))
	default:
		return nil, fmt.Errorf("%w: %w", ErrSafetyBackupFailed, err)
	}

	// Step 3: transcript fork or truncation.
	codeApplied := false
	if opts.Mode != ModeCode {
		if err := c.applyChat(target, rec, opts, report); err != nil {
			c.rollback(report, codeApplied)
			return report, err
		}
	}

	// Step 4: code restore.
	if opts.Mode != ModeContext {
		if err := c.Store.Apply(target); err != nil {
			if report.EmergencyName != "" {
				return report, fmt.Errorf("code restore failed (recover with checkpoint %s): %w", report.EmergencyName, err)
			}
			return report, err
		}
		codeApplied = true
	}

	c.appendHistory(report)
	return report, nil
}

// applyChat forks (default) or truncates the transcript at the checkpoint's
// cursor, appending the resume directive to the report.
//
// The recorded boundary message must still exist in the live transcript:
// a missing identifier means there is no conversation state to rewind to,
// and both paths fail with TargetNotFound before touching anything.
func (c *Coordinator) applyChat(target *store.Manifest, rec *metadata.Record, opts Options, report *Report) error {
	cur := target.Transcript.Cursor
	profile := c.profileFor(rec)

	if err := verifyBoundaryPresent(cur, profile.IdentifierKey); err != nil {
		return err
	}

	if opts.InPlace {
		result, err := transcript.TruncateInPlace(cur.Path, transcript.TruncateOptions{
			TargetID: cur.LastEventID,
			IDKey:    profile.IdentifierKey,
		})
		if err != nil {
			return err
		}
		report.BackupPath = result.BackupPath
		report.Actions = append(report.Actions,
			"Exit the agent, then resume the same session; its transcript now ends at the checkpoint.")
		return nil
	}

	result, err := transcript.Fork(cur, target.TranscriptSnapshotPath(c.Store.Dir), profile)
	if err != nil {
		return err
	}
	report.NewTranscriptPath = result.NewPath
	if !result.UsedFastPath {
		report.Warnings = append(report.Warnings, "live transcript diverged from checkpoint; fork restored from snapshot")
	}
	report.Actions = append(report.Actions,
		fmt.Sprintf("Exit the agent and resume with session %s.", sessionIDFromPath(result.NewPath)))
	return nil
}

// verifyBoundaryPresent checks that the cursor's last event identifier is
// still a record in the live transcript.
func verifyBoundaryPresent(cur *transcript.Cursor, idKey string) error {
	if cur.LastEventID == "" {
		return nil
	}
	records, err := transcript.ScanRecords(cur.Path, idKey)
	if err != nil {
		return err
	}
	for _, r := range records {
		if r.Valid && r.Identifier == cur.LastEventID {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", transcript.ErrTargetNotFound, cur.LastEventID)
}

// rollback reverts the code restore from the emergency snapshot when the
// chat step failed after code had been applied.
func (c *Coordinator) rollback(report *Report, codeApplied bool) {
	if !codeApplied || report.EmergencyName == "" {
		return
	}
	emergency, err := c.Store.Get(report.EmergencyName)
	if err == nil {
		err = c.Store.Apply(emergency)
	}
	if err != nil {
		logging.Error(context.Background(), "rollback failed",
			"emergency", report.EmergencyName, "error", err.Error())
		report.Warnings = append(report.Warnings,
			fmt.Sprintf("rollback failed; recover manually with checkpoint %s", report.EmergencyName))
		return
	}
	report.RolledBack = true
}

// profileFor resolves the agent profile recorded in metadata, falling back
// to the detection fallback.
func (c *Coordinator) profileFor(rec *metadata.Record) *agent.Profile {
	if rec != nil {
		if p, err := agent.Get(rec.AgentKind); err == nil {
			return p
		}
	}
	p, _ := agent.Get(agent.FallbackKind)
	return p
}

// dryRun computes the plan without writing anything.
func (c *Coordinator) dryRun(target *store.Manifest, rec *metadata.Record, opts Options, report *Report) (*Report, error) {
	report.EmergencyName = store.EmergencyDescription + "_<pending>"

	if opts.Mode != ModeContext {
		changes, err := c.planFileChanges(target)
		if err != nil {
			return nil, err
		}
		report.Changes = changes
	}

	if opts.Mode != ModeCode && rec != nil {
		cur := target.Transcript.Cursor
		if opts.InPlace {
			report.Actions = append(report.Actions,
				fmt.Sprintf("Would truncate %s at message %s (backup kept).", cur.Path, cur.LastEventID))
		} else {
			report.Actions = append(report.Actions,
				fmt.Sprintf("Would fork %s at byte offset %d.", cur.Path, cur.ByteOffsetEnd))
		}
	}
	return report, nil
}

// appendHistory records the completed restore in restore-history.json.
// Best-effort.
func (c *Coordinator) appendHistory(report *Report) {
	appendHistoryEntry(c.Store.Dir, HistoryEntry{
		Checkpoint:    report.Checkpoint,
		Mode:          string(report.Mode),
		Emergency:     report.EmergencyName,
		NewTranscript: report.NewTranscriptPath,
		TimestampISO:  time.Now().UTC().Format(time.RFC3339),
	})
}

// sessionIDFromPath extracts the session identifier from a transcript
// filename.
func sessionIDFromPath(path string) string {
	return strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
}
