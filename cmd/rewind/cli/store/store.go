// Package store produces, lists, prunes, and restores tarball snapshots of a
// project tree, each described by a manifest and optionally coupled to a
// transcript cursor.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rewindio/cli/cmd/rewind/cli/config"
	"github.com/rewindio/cli/cmd/rewind/cli/ignore"
	"github.com/rewindio/cli/cmd/rewind/cli/jsonutil"
	"github.com/rewindio/cli/cmd/rewind/cli/logging"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
	"github.com/rewindio/cli/cmd/rewind/cli/scan"
	"github.com/rewindio/cli/cmd/rewind/cli/transcript"
	"github.com/rewindio/cli/cmd/rewind/cli/validation"
)

// ErrNoChanges is informational: the working tree matches the latest
// checkpoint and no artifact was produced. Not a failure.
var ErrNoChanges = errors.New("no changes since latest checkpoint")

// ErrTargetNotFound is returned when a selector matches no checkpoint.
var ErrTargetNotFound = errors.New("checkpoint not found")

// EmergencyDescription is the reserved description for safety snapshots
// taken immediately before a restore. The underscore survives slugification,
// so emergency checkpoints are named "rewind_backup_<ISO>".
const EmergencyDescription = "rewind_backup"

// Store manages the snapshot area for one project root.
type Store struct {
	Root   string
	Dir    string
	Config *config.Config
}

// New builds a Store for root, resolving the storage dir from the configured
// storage mode.
func New(root string, cfg *config.Config) (*Store, error) {
	dir, err := paths.StorageDir(root, cfg.StorageMode == config.StorageModeGlobal)
	if err != nil {
		return nil, err
	}
	return &Store{Root: root, Dir: dir, Config: cfg}, nil
}

// Matcher builds the ignore matcher from the merged configuration plus the
// host VCS ignore file.
func (s *Store) Matcher() *ignore.Matcher {
	return ignore.New(s.Config.IgnorePatterns, s.Config.ForceInclude, ignore.LoadVCSPatterns(s.Root))
}

// TranscriptAttachment couples a checkpoint to the live transcript.
type TranscriptAttachment struct {
	Path   string
	Cursor *transcript.Cursor
}

// CreateOptions configure one checkpoint creation.
type CreateOptions struct {
	Description string
	Force       bool
	Reason      string
	Transcript  *TranscriptAttachment

	// SkipPrune suppresses the post-create pruning pass. Emergency
	// snapshots set it: they are the newest checkpoint, so pruning after
	// them would delete the oldest — which may be the restore target about
	// to be applied.
	SkipPrune bool
}

// Create scans the tree and produces a new checkpoint unless the tree
// signature equals the latest checkpoint's (and Force is unset), in which
// case ErrNoChanges is returned and no artifact is made.
//
// The snapshot directory is made then filled; the tarball is written before
// the manifest so a crash mid-snapshot leaves an orphan tarball rather than
// a manifest claiming nonexistent data. Pruning runs after a successful
// create.
func (s *Store) Create(opts CreateOptions) (*Manifest, error) {
	entries, err := scan.Scan(s.Root, s.Matcher())
	if err != nil {
		return nil, err
	}
	signature := scan.Signature(entries)

	if !opts.Force {
		if latest, err := s.Latest(); err == nil && latest != nil && latest.Signature == signature {
			return nil, ErrNoChanges
		}
	}

	now := time.Now()
	name := paths.CheckpointName(opts.Description, now)
	snapshotDir, name, err := s.makeSnapshotDir(name)
	if err != nil {
		return nil, err
	}

	manifest := &Manifest{
		Name:          name,
		TimestampISO:  now.UTC().Format(time.RFC3339),
		Description:   opts.Description,
		FileCount:     len(entries),
		Signature:     signature,
		FilesMetadata: entries,
	}
	manifest.Files = make([]string, len(entries))
	for i, e := range entries {
		manifest.Files[i] = e.RelPath
		manifest.TotalBytes += e.Size
	}

	cleanup := func(err error) (*Manifest, error) {
		_ = os.RemoveAll(snapshotDir)
		return nil, err
	}

	if err := packTarball(filepath.Join(snapshotDir, paths.FilesTarballName), s.Root, manifest.Files); err != nil {
		return cleanup(err)
	}

	if t := opts.Transcript; t != nil && t.Cursor != nil {
		gzPath := filepath.Join(snapshotDir, paths.TranscriptSnapshotFileName)
		if err := transcript.Compress(t.Path, t.Cursor.ByteOffsetEnd, gzPath); err != nil {
			// The code snapshot is still good without its transcript copy;
			// the cursor alone covers the fast-path fork.
			logging.Warn(context.Background(), "transcript snapshot failed",
				"checkpoint", name, "error", err.Error())
		}
		manifest.Transcript = &TranscriptInfo{Cursor: t.Cursor}
	}

	if err := writeManifest(snapshotDir, manifest); err != nil {
		return cleanup(err)
	}

	s.appendChangelog(ChangelogEntry{
		Name:         name,
		TimestampISO: manifest.TimestampISO,
		Description:  opts.Description,
		Reason:       opts.Reason,
		FileCount:    manifest.FileCount,
		TotalBytes:   manifest.TotalBytes,
	})

	if !opts.SkipPrune {
		if _, err := s.Prune(); err != nil {
			logging.Warn(context.Background(), "pruning failed", "error", err.Error())
		}
	}

	return manifest, nil
}

// makeSnapshotDir creates the snapshot directory, appending a numeric suffix
// when two creates land on the same timestamped name.
func (s *Store) makeSnapshotDir(name string) (string, string, error) {
	if err := os.MkdirAll(paths.SnapshotsDir(s.Dir), 0o750); err != nil {
		return "", "", fmt.Errorf("creating snapshots directory: %w", err)
	}
	candidate := name
	for i := 2; ; i++ {
		dir := filepath.Join(paths.SnapshotsDir(s.Dir), candidate)
		err := os.Mkdir(dir, 0o750)
		if err == nil {
			return dir, candidate, nil
		}
		if !os.IsExist(err) {
			return "", "", fmt.Errorf("creating snapshot directory: %w", err)
		}
		candidate = name + "-" + strconv.Itoa(i)
	}
}

// List returns all readable manifests sorted by timestamp descending.
// Unreadable manifests are skipped without aborting.
func (s *Store) List() ([]*Manifest, error) {
	dirEntries, err := os.ReadDir(paths.SnapshotsDir(s.Dir))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading snapshots directory: %w", err)
	}

	var manifests []*Manifest
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		m, err := readManifest(filepath.Join(paths.SnapshotsDir(s.Dir), de.Name()))
		if err != nil {
			logging.Warn(context.Background(), "skipping unreadable manifest",
				"checkpoint", de.Name(), "error", err.Error())
			continue
		}
		manifests = append(manifests, m)
	}

	sort.Slice(manifests, func(i, j int) bool {
		ti, tj := manifests[i].Time(), manifests[j].Time()
		if ti.Equal(tj) {
			return manifests[i].Name > manifests[j].Name
		}
		return ti.After(tj)
	})
	return manifests, nil
}

// Latest returns the newest manifest, or nil when the store is empty.
func (s *Store) Latest() (*Manifest, error) {
	manifests, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(manifests) == 0 {
		return nil, nil
	}
	return manifests[0], nil
}

// Resolve maps a CLI selector to a manifest: "last" is the newest, "prev"
// the second newest, a positive integer N the Nth newest (1-based), then an
// exact name, then a substring match.
func (s *Store) Resolve(selector string) (*Manifest, error) {
	manifests, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(manifests) == 0 {
		return nil, fmt.Errorf("%w: no checkpoints exist", ErrTargetNotFound)
	}

	switch selector {
	case "", "last":
		return manifests[0], nil
	case "prev":
		if len(manifests) < 2 {
			return nil, fmt.Errorf("%w: only one checkpoint exists", ErrTargetNotFound)
		}
		return manifests[1], nil
	}

	if n, err := strconv.Atoi(selector); err == nil && n > 0 {
		if n > len(manifests) {
			return nil, fmt.Errorf("%w: only %d checkpoints exist", ErrTargetNotFound, len(manifests))
		}
		return manifests[n-1], nil
	}

	for _, m := range manifests {
		if m.Name == selector {
			return m, nil
		}
	}
	for _, m := range manifests {
		if strings.Contains(m.Name, selector) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, selector)
}

// Get returns the manifest with the exact name.
func (s *Store) Get(name string) (*Manifest, error) {
	if err := validation.ValidateCheckpointName(name); err != nil {
		return nil, err
	}
	m, err := readManifest(filepath.Join(paths.SnapshotsDir(s.Dir), name))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrTargetNotFound, name)
	}
	return m, nil
}

// CreateEmergency takes the forced safety snapshot that precedes a restore.
// Pruning is deferred to the next regular create or cleanup so the restore
// target cannot be pruned out from under the apply that follows.
func (s *Store) CreateEmergency() (*Manifest, error) {
	return s.Create(CreateOptions{
		Description: EmergencyDescription,
		Force:       true,
		Reason:      "pre-restore safety snapshot",
		SkipPrune:   true,
	})
}

// Apply restores the working tree to the target manifest: every current
// path absent from the manifest's file set is deleted, then the tarball is
// extracted over the project root. The caller is responsible for the
// emergency snapshot.
func (s *Store) Apply(m *Manifest) error {
	tarPath := m.TarballPath(s.Dir)
	if _, err := os.Stat(tarPath); err != nil {
		return fmt.Errorf("%w: checkpoint %s has no tarball", ErrArchive, m.Name)
	}

	current, err := scan.Scan(s.Root, s.Matcher())
	if err != nil {
		return err
	}

	keep := make(map[string]bool, len(m.Files))
	for _, f := range m.Files {
		keep[f] = true
	}
	for _, e := range current {
		if keep[e.RelPath] {
			continue
		}
		if err := os.Remove(filepath.Join(s.Root, filepath.FromSlash(e.RelPath))); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing %s: %w", e.RelPath, err)
		}
	}

	if err := extractTarball(tarPath, s.Root); err != nil {
		return err
	}

	// Re-stamp mtimes from the manifest (millisecond precision; tar headers
	// only carry seconds) so a restored tree reproduces the checkpoint's
	// signature exactly.
	for _, e := range m.FilesMetadata {
		mt := time.UnixMilli(e.MtimeMs)
		_ = os.Chtimes(filepath.Join(s.Root, filepath.FromSlash(e.RelPath)), mt, mt)
	}
	return nil
}

// RestoreResult reports a completed restore and the safety snapshot that
// preceded it.
type RestoreResult struct {
	Target        *Manifest
	EmergencyName string
}

// Restore resolves a selector, takes an emergency snapshot, and applies the
// target checkpoint. An apply failure is reported with the emergency
// snapshot name so the caller can recover.
func (s *Store) Restore(selector string) (*RestoreResult, error) {
	target, err := s.Resolve(selector)
	if err != nil {
		return nil, err
	}

	emergency, err := s.CreateEmergency()
	if err != nil {
		return nil, fmt.Errorf("safety snapshot failed: %w", err)
	}

	if err := s.Apply(target); err != nil {
		return &RestoreResult{Target: target, EmergencyName: emergency.Name},
			fmt.Errorf("restore failed (recover with checkpoint %s): %w", emergency.Name, err)
	}
	return &RestoreResult{Target: target, EmergencyName: emergency.Name}, nil
}

// UndoLast restores the newest checkpoint.
func (s *Store) UndoLast() (*RestoreResult, error) {
	return s.Restore("last")
}

// Prune drops checkpoints older than MaxAgeDays (when positive), then keeps
// the newest MaxCheckpoints of the remainder. Deletions are best-effort; a
// failed deletion never aborts.
func (s *Store) Prune() ([]string, error) {
	manifests, err := s.List()
	if err != nil {
		return nil, err
	}

	var dropped []string
	var kept []*Manifest
	if s.Config.MaxAgeDays > 0 {
		cutoff := time.Now().AddDate(0, 0, -s.Config.MaxAgeDays)
		for _, m := range manifests {
			if m.Time().Before(cutoff) {
				dropped = append(dropped, m.Name)
			} else {
				kept = append(kept, m)
			}
		}
	} else {
		kept = manifests
	}

	if s.Config.MaxCheckpoints > 0 && len(kept) > s.Config.MaxCheckpoints {
		for _, m := range kept[s.Config.MaxCheckpoints:] {
			dropped = append(dropped, m.Name)
		}
	}

	for _, name := range dropped {
		if err := s.Delete(name); err != nil {
			logging.Warn(context.Background(), "failed to prune checkpoint",
				"checkpoint", name, "error", err.Error())
		}
	}
	return dropped, nil
}

// Delete removes a checkpoint's snapshot directory.
func (s *Store) Delete(name string) error {
	if err := validation.ValidateCheckpointName(name); err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(paths.SnapshotsDir(s.Dir), name)); err != nil {
		return fmt.Errorf("deleting checkpoint %s: %w", name, err)
	}
	return nil
}

// Names returns the current checkpoint names (for metadata sweeps).
func (s *Store) Names() ([]string, error) {
	manifests, err := s.List()
	if err != nil {
		return nil, err
	}
	names := make([]string, len(manifests))
	for i, m := range manifests {
		names[i] = m.Name
	}
	return names, nil
}

// ChangelogEntry is one appended record of a checkpoint creation.
type ChangelogEntry struct {
	Name         string `json:"name"`
	TimestampISO string `json:"timestampISO"`
	Description  string `json:"description,omitempty"`
	Reason       string `json:"reason,omitempty"`
	FileCount    int    `json:"fileCount"`
	TotalBytes   int64  `json:"totalBytes"`
}

// Changelog returns the recorded checkpoint creations, oldest first.
// Missing or corrupt changelogs yield nil.
func (s *Store) Changelog() []ChangelogEntry {
	data, err := os.ReadFile(paths.ChangelogFile(s.Dir)) //nolint:gosec // path is under the storage dir
	if err != nil {
		return nil
	}
	var entries []ChangelogEntry
	if json.Unmarshal(data, &entries) != nil {
		return nil
	}
	return entries
}

// appendChangelog records a creation in code/changelog.json. Best-effort.
func (s *Store) appendChangelog(entry ChangelogEntry) {
	path := paths.ChangelogFile(s.Dir)
	var entries []ChangelogEntry
	if data, err := os.ReadFile(path); err == nil { //nolint:gosec // path is under the storage dir
		// A corrupt changelog starts fresh; it is informational only.
		_ = json.Unmarshal(data, &entries)
	}
	entries = append(entries, entry)
	if err := jsonutil.WriteFileAtomic(path, entries); err != nil {
		logging.Debug(context.Background(), "changelog append failed", "error", err.Error())
	}
}
