// Package scan walks a project tree into a deterministic file list and
// derives a tree signature used for change detection.
package scan

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/rewindio/cli/cmd/rewind/cli/ignore"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
)

// ErrScanRefused is returned when the project root is the home directory.
// Snapshotting an entire home directory is never what the user wants.
var ErrScanRefused = errors.New("refusing to scan: project root is the home directory")

// gitDir and rewindDir are excluded from scans regardless of configuration.
const (
	gitDir    = ".git"
	rewindDir = paths.RewindDirName
)

// Entry describes one regular file in the scanned tree. Paths are relative to
// the project root and forward-slash normalized.
type Entry struct {
	RelPath string `json:"relPath"`
	Size    int64  `json:"size"`
	MtimeMs int64  `json:"mtimeMs"`
}

// Scan walks the project tree in preorder and returns the snapshottable files
// sorted lexicographically by relative path. Symlinks are not followed.
// A file that fails to stat is recorded with zero size and mtime rather than
// aborting the scan.
func Scan(root string, matcher *ignore.Matcher) ([]Entry, error) {
	if paths.IsHomeDir(root) {
		return nil, ErrScanRefused
	}

	entries := []Entry{}
	if err := scanDir(root, "", matcher, &entries); err != nil {
		return nil, err
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].RelPath < entries[j].RelPath
	})
	return entries, nil
}

// scanDir processes one directory level: filter entries, recurse into
// non-ignored subdirectories, emit non-ignored regular files.
func scanDir(root, rel string, matcher *ignore.Matcher, out *[]Entry) error {
	dirEntries, err := os.ReadDir(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		if rel == "" {
			return fmt.Errorf("reading project root: %w", err)
		}
		// A directory that disappeared mid-scan is skipped.
		return nil
	}

	for _, de := range dirEntries {
		if rel == "" && (de.Name() == gitDir || de.Name() == rewindDir) {
			continue
		}
		childRel := de.Name()
		if rel != "" {
			childRel = rel + "/" + de.Name()
		}

		switch {
		case de.Type()&os.ModeSymlink != 0:
			continue
		case de.IsDir():
			if matcher.Ignored(childRel + "/") {
				continue
			}
			if err := scanDir(root, childRel, matcher, out); err != nil {
				return err
			}
		case de.Type().IsRegular():
			if matcher.Ignored(childRel) {
				continue
			}
			entry := Entry{RelPath: childRel}
			if info, err := de.Info(); err == nil {
				entry.Size = info.Size()
				entry.MtimeMs = info.ModTime().UnixMilli()
			}
			*out = append(*out, entry)
		}
	}
	return nil
}

// Signature derives a SHA-256 fingerprint over (relPath, size, mtimeMs) in
// scan order. It detects change, it does not verify integrity.
func Signature(entries []Entry) string {
	h := sha256.New()
	for _, e := range entries {
		h.Write([]byte(e.RelPath))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(e.Size, 10)))
		h.Write([]byte{0})
		h.Write([]byte(strconv.FormatInt(e.MtimeMs, 10)))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}
