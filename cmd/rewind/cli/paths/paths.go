// Package paths provides storage placement and naming helpers for the Rewind CLI.
// This package has minimal dependencies to avoid import cycles.
package paths

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Directory and file names under the storage root.
const (
	RewindDirName      = ".rewind"
	CodeDirName        = "code"
	SnapshotsDirName   = "snapshots"
	SessionsDirName    = "sessions"
	LogsDirName        = "logs"
	ConversationDir    = "conversation"
	ConfigFileName     = "config.json"
	ChangelogFileName  = "changelog.json"
	MetadataFileName   = "metadata.json"
	SessionFileName    = "session.json"
	RestoreHistoryFile = "restore-history.json"

	ManifestFileName           = "manifest.json"
	FilesTarballName           = "files.tar.gz"
	TranscriptSnapshotFileName = "transcript.jsonl.gz"
)

// globalHashLen is the number of hex characters of the project-root hash used
// in global storage directory names.
const globalHashLen = 12

// ProjectRoot resolves the project root directory. If explicit is non-empty it
// is used, otherwise the current working directory. The result is absolute and
// cleaned.
func ProjectRoot(explicit string) (string, error) {
	dir := explicit
	if dir == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting working directory: %w", err)
		}
		dir = cwd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving project root: %w", err)
	}
	return filepath.Clean(abs), nil
}

// IsHomeDir reports whether path is the user's home directory.
func IsHomeDir(path string) bool {
	home, err := os.UserHomeDir()
	if err != nil {
		return false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}
	return filepath.Clean(abs) == filepath.Clean(home)
}

// GlobalStorageName returns the directory name used for a project under the
// global storage root: "<basename>_<first 12 hex of sha256(absolute root)>".
func GlobalStorageName(root string) string {
	sum := sha256.Sum256([]byte(root))
	return filepath.Base(root) + "_" + hex.EncodeToString(sum[:])[:globalHashLen]
}

// StorageDir returns the storage directory for a project root.
// Project-local mode places it at <root>/.rewind; global mode places it at
// <HOME>/.rewind/storage/<basename>_<hash>/.
func StorageDir(root string, global bool) (string, error) {
	if !global {
		return filepath.Join(root, RewindDirName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, RewindDirName, "storage", GlobalStorageName(root)), nil
}

// SnapshotsDir returns the snapshot directory under a storage dir.
func SnapshotsDir(storageDir string) string {
	return filepath.Join(storageDir, CodeDirName, SnapshotsDirName)
}

// ConfigFile returns the project config path under a storage dir.
func ConfigFile(storageDir string) string {
	return filepath.Join(storageDir, CodeDirName, ConfigFileName)
}

// ChangelogFile returns the changelog path under a storage dir.
func ChangelogFile(storageDir string) string {
	return filepath.Join(storageDir, CodeDirName, ChangelogFileName)
}

// MetadataFile returns the conversation metadata path under a storage dir.
func MetadataFile(storageDir string) string {
	return filepath.Join(storageDir, ConversationDir, MetadataFileName)
}

// SessionFile returns the session state path under a storage dir.
func SessionFile(storageDir string) string {
	return filepath.Join(storageDir, SessionFileName)
}

// RestoreHistoryPath returns the restore history path under a storage dir.
func RestoreHistoryPath(storageDir string) string {
	return filepath.Join(storageDir, RestoreHistoryFile)
}

// DebounceFile returns the per-session debounce state file for an agent kind.
func DebounceFile(storageDir, agentKind, sessionID string) string {
	return filepath.Join(storageDir, SessionsDirName, agentKind, sessionID+".json")
}

// UserConfigFile returns the user-level config path (~/.rewind/config.json).
func UserConfigFile() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}
	return filepath.Join(home, RewindDirName, ConfigFileName), nil
}

// Slugify converts a free-form description into a name-safe slug: lowercase,
// with runs of characters outside [a-z0-9_] collapsed to single hyphens.
// Returns "checkpoint" for an empty result.
func Slugify(s string) string {
	var b strings.Builder
	lastHyphen := true // suppress leading hyphen
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
			lastHyphen = false
		default:
			if !lastHyphen {
				b.WriteByte('-')
				lastHyphen = true
			}
		}
	}
	slug := strings.Trim(b.String(), "-")
	if len(slug) > 40 {
		slug = strings.Trim(slug[:40], "-")
	}
	if slug == "" {
		return "checkpoint"
	}
	return slug
}

// FormatTimestamp renders t as an ISO-8601 UTC timestamp with ':' replaced by
// '-' so it is safe inside file names.
func FormatTimestamp(t time.Time) string {
	return strings.ReplaceAll(t.UTC().Format(time.RFC3339), ":", "-")
}

// CheckpointName builds a checkpoint name from a description and timestamp:
// "<slug>_<ISO with ':'->'-'>".
func CheckpointName(description string, t time.Time) string {
	return Slugify(description) + "_" + FormatTimestamp(t)
}

// AppendEnvFile appends KEY=VALUE lines to an agent-provided environment file.
// The file is only ever appended to, never rewritten.
func AppendEnvFile(path string, vars map[string]string) error {
	if path == "" || len(vars) == 0 {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path is supplied by the host agent
	if err != nil {
		return fmt.Errorf("opening env file: %w", err)
	}
	defer func() { _ = f.Close() }()

	keys := make([]string, 0, len(vars))
	for k := range vars {
		keys = append(keys, k)
	}
	// Deterministic order keeps the file diffable across invocations.
	sort.Strings(keys)
	for _, k := range keys {
		if _, err := fmt.Fprintf(f, "%s=%s\n", k, vars[k]); err != nil {
			return fmt.Errorf("appending env file: %w", err)
		}
	}
	return nil
}
