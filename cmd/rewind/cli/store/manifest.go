package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rewindio/cli/cmd/rewind/cli/jsonutil"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
	"github.com/rewindio/cli/cmd/rewind/cli/scan"
	"github.com/rewindio/cli/cmd/rewind/cli/transcript"
)

// Manifest describes one checkpoint. All paths are relative to the project
// root, forward-slash normalized, in scan order.
type Manifest struct {
	Name          string          `json:"name"`
	TimestampISO  string          `json:"timestampISO"`
	Description   string          `json:"description"`
	Files         []string        `json:"files"`
	FileCount     int             `json:"fileCount"`
	TotalBytes    int64           `json:"totalBytes"`
	Signature     string          `json:"signature"`
	FilesMetadata []scan.Entry    `json:"filesMetadata"`
	Transcript    *TranscriptInfo `json:"transcript,omitempty"`
}

// TranscriptInfo carries the transcript coupling for a checkpoint.
type TranscriptInfo struct {
	Cursor *transcript.Cursor `json:"cursor,omitempty"`
}

// Time parses the manifest timestamp. Zero time on parse failure.
func (m *Manifest) Time() time.Time {
	t, err := time.Parse(time.RFC3339, m.TimestampISO)
	if err != nil {
		return time.Time{}
	}
	return t
}

// SnapshotDir returns the checkpoint's directory under the snapshots root.
func (m *Manifest) SnapshotDir(storageDir string) string {
	return filepath.Join(paths.SnapshotsDir(storageDir), m.Name)
}

// TarballPath returns the checkpoint's files tarball path.
func (m *Manifest) TarballPath(storageDir string) string {
	return filepath.Join(m.SnapshotDir(storageDir), paths.FilesTarballName)
}

// TranscriptSnapshotPath returns the checkpoint's compressed transcript path,
// or "" when the checkpoint carries no transcript snapshot.
func (m *Manifest) TranscriptSnapshotPath(storageDir string) string {
	p := filepath.Join(m.SnapshotDir(storageDir), paths.TranscriptSnapshotFileName)
	if _, err := os.Stat(p); err != nil {
		return ""
	}
	return p
}

// readManifest loads a manifest from a snapshot directory.
func readManifest(snapshotDir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(snapshotDir, paths.ManifestFileName)) //nolint:gosec // snapshotDir is under the storage dir
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	return &m, nil
}

// writeManifest persists a manifest into a snapshot directory atomically.
func writeManifest(snapshotDir string, m *Manifest) error {
	return jsonutil.WriteFileAtomic(filepath.Join(snapshotDir, paths.ManifestFileName), m)
}
