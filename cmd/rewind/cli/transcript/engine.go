package transcript

import (
	"bytes"
	"compress/gzip"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rewindio/cli/cmd/rewind/cli/agent"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
)

// ErrTargetNotFound is returned when the requested message identifier (or
// user-turn count) is not present in the transcript.
var ErrTargetNotFound = errors.New("target message not found in transcript")

// ErrTranscriptInconsistent is returned when the cursor's prefix fingerprint
// disagrees with the live transcript and no compressed snapshot is available
// to fall back to.
var ErrTranscriptInconsistent = errors.New("transcript does not match checkpoint cursor")

// forkTitlePrefix is prepended to the first record's title when the agent
// profile opts into title rewriting.
const forkTitlePrefix = "[Fork] "

// ForkResult reports how a fork was produced.
type ForkResult struct {
	NewPath      string
	UsedFastPath bool
}

// Fork produces a new sibling session file containing the transcript prefix
// the cursor points at. The live transcript is never modified.
//
// Fast path: when the cursor's prefix fingerprint still matches the live
// transcript and the cursor ends on a newline, the prefix bytes are copied
// directly. Otherwise the checkpoint's compressed transcript snapshot is
// inflated instead.
func Fork(cur *Cursor, snapshotGzPath string, profile *agent.Profile) (*ForkResult, error) {
	if cur == nil {
		return nil, errors.New("checkpoint has no transcript cursor")
	}

	newPath := filepath.Join(filepath.Dir(cur.Path), newSessionID()+".jsonl")

	fast, err := fastPathUsable(cur)
	if err != nil && snapshotGzPath == "" {
		return nil, err
	}

	switch {
	case fast:
		if err := copyRange(cur.Path, newPath, cur.ByteOffsetEnd); err != nil {
			return nil, err
		}
	case snapshotGzPath != "":
		if err := inflateTo(snapshotGzPath, newPath); err != nil {
			return nil, err
		}
	default:
		return nil, ErrTranscriptInconsistent
	}

	if err := ensureTrailingNewline(newPath); err != nil {
		_ = os.Remove(newPath)
		return nil, err
	}

	if profile != nil && profile.ForkTitlePrefix {
		if err := rewriteFirstRecordTitle(newPath); err != nil {
			_ = os.Remove(newPath)
			return nil, err
		}
	}

	return &ForkResult{NewPath: newPath, UsedFastPath: fast}, nil
}

// fastPathUsable checks the cursor fingerprint and record-boundary invariant
// against the live transcript.
func fastPathUsable(cur *Cursor) (bool, error) {
	info, err := os.Stat(cur.Path)
	if err != nil || info.Size() < cur.ByteOffsetEnd {
		return false, ErrTranscriptInconsistent
	}
	ok, err := cur.VerifyPrefix()
	if err != nil || !ok {
		return false, ErrTranscriptInconsistent
	}
	onNewline, err := cur.EndsOnNewline()
	if err != nil || !onNewline {
		return false, ErrTranscriptInconsistent
	}
	return true, nil
}

// TruncateOptions selects the truncation boundary: a target identifier
// (inclusive) or a count of user turns to unwind (exclusive).
type TruncateOptions struct {
	TargetID  string
	TurnsBack int
	IDKey     string
}

// TruncateResult reports the outcome of an in-place truncation.
type TruncateResult struct {
	BackupPath     string
	BoundaryOffset int64
}

// TruncateInPlace replaces the transcript with a prefix of itself. A
// timestamped backup is created first and never modified; the prefix is
// written to a temporary file in the same directory and atomically renamed
// over the original.
func TruncateInPlace(path string, opts TruncateOptions) (*TruncateResult, error) {
	records, err := ScanRecords(path, opts.IDKey)
	if err != nil {
		return nil, err
	}

	boundary, err := boundaryOffset(records, opts)
	if err != nil {
		return nil, err
	}

	backupPath := path + ".backup." + paths.FormatTimestamp(time.Now())
	if err := copyRange(path, backupPath, -1); err != nil {
		return nil, fmt.Errorf("creating transcript backup: %w", err)
	}

	tmpPath := path + ".tmp"
	_ = os.Remove(tmpPath) // stale temp from a crashed truncation
	if err := copyRange(path, tmpPath, boundary); err != nil {
		_ = os.Remove(tmpPath)
		return nil, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return nil, fmt.Errorf("replacing transcript: %w", err)
	}

	return &TruncateResult{BackupPath: backupPath, BoundaryOffset: boundary}, nil
}

// boundaryOffset resolves the truncation boundary from the options: the end
// of the line containing TargetID (inclusive), or the start of the
// TurnsBack-th most recent user message (exclusive).
func boundaryOffset(records []Record, opts TruncateOptions) (int64, error) {
	if opts.TargetID != "" {
		for _, rec := range records {
			if rec.Valid && rec.Identifier == opts.TargetID {
				return rec.End, nil
			}
		}
		return 0, fmt.Errorf("%w: %s", ErrTargetNotFound, opts.TargetID)
	}

	if opts.TurnsBack > 0 {
		seen := 0
		for i := len(records) - 1; i >= 0; i-- {
			if records[i].Valid && records[i].IsUser {
				seen++
				if seen == opts.TurnsBack {
					return records[i].Start, nil
				}
			}
		}
		return 0, fmt.Errorf("%w: transcript has fewer than %d user turns", ErrTargetNotFound, opts.TurnsBack)
	}

	return 0, errors.New("no truncation target given")
}

// BoundaryCursorForTurnsBack derives a cursor at the boundary N user turns
// back, for forking instead of truncating.
func BoundaryCursorForTurnsBack(path, idKey string, turnsBack int) (*Cursor, error) {
	records, err := ScanRecords(path, idKey)
	if err != nil {
		return nil, err
	}
	boundary, err := boundaryOffset(records, TruncateOptions{TurnsBack: turnsBack, IDKey: idKey})
	if err != nil {
		return nil, err
	}

	var lastID string
	for _, rec := range records {
		if rec.End > boundary {
			break
		}
		if rec.Valid && rec.Identifier != "" {
			lastID = rec.Identifier
		}
	}

	prefix, err := hashRange(path, 0, minInt64(boundary, fingerprintWindow))
	if err != nil {
		return nil, err
	}
	tail, err := hashRange(path, maxInt64(0, boundary-fingerprintWindow), boundary)
	if err != nil {
		return nil, err
	}
	return &Cursor{
		Path:          path,
		ByteOffsetEnd: boundary,
		PrefixSHA256:  prefix,
		TailSHA256:    tail,
		LastEventID:   lastID,
	}, nil
}

// BoundaryCursorForID derives a cursor just past the record with the given
// identifier (inclusive boundary).
func BoundaryCursorForID(path, idKey, targetID string) (*Cursor, error) {
	records, err := ScanRecords(path, idKey)
	if err != nil {
		return nil, err
	}
	boundary, err := boundaryOffset(records, TruncateOptions{TargetID: targetID, IDKey: idKey})
	if err != nil {
		return nil, err
	}

	prefix, err := hashRange(path, 0, minInt64(boundary, fingerprintWindow))
	if err != nil {
		return nil, err
	}
	tail, err := hashRange(path, maxInt64(0, boundary-fingerprintWindow), boundary)
	if err != nil {
		return nil, err
	}
	return &Cursor{
		Path:          path,
		ByteOffsetEnd: boundary,
		PrefixSHA256:  prefix,
		TailSHA256:    tail,
		LastEventID:   targetID,
	}, nil
}

// Compress gzips the transcript prefix [0, byteOffsetEnd) into dst.
// Used at checkpoint time to snapshot the transcript alongside the code.
func Compress(path string, byteOffsetEnd int64, dst string) error {
	src, err := os.Open(path) //nolint:gosec // path is a controlled transcript file path
	if err != nil {
		return fmt.Errorf("opening transcript: %w", err)
	}
	defer func() { _ = src.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600) //nolint:gosec // dst is under the storage dir
	if err != nil {
		return fmt.Errorf("creating transcript snapshot: %w", err)
	}
	gz := gzip.NewWriter(out)

	var copyErr error
	if byteOffsetEnd < 0 {
		_, copyErr = io.Copy(gz, src)
	} else {
		_, copyErr = io.CopyN(gz, src, byteOffsetEnd)
	}
	if copyErr != nil && copyErr != io.EOF {
		_ = gz.Close()
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("compressing transcript: %w", copyErr)
	}
	if err := gz.Close(); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("finalizing transcript snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing transcript snapshot: %w", err)
	}
	return nil
}

// inflateTo decompresses a gzipped transcript snapshot into dst.
func inflateTo(gzPath, dst string) error {
	in, err := os.Open(gzPath) //nolint:gosec // gzPath is under the storage dir
	if err != nil {
		return fmt.Errorf("opening transcript snapshot: %w", err)
	}
	defer func() { _ = in.Close() }()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("reading transcript snapshot: %w", err)
	}
	defer func() { _ = gz.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // dst carries a fresh session ID
	if err != nil {
		return fmt.Errorf("creating fork file: %w", err)
	}
	if _, err := io.Copy(out, gz); err != nil { //nolint:gosec // snapshot was produced by this engine
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("inflating transcript snapshot: %w", err)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing fork file: %w", err)
	}
	return nil
}

// copyRange copies the first n bytes of src into dst (all of src when n < 0).
func copyRange(src, dst string, n int64) error {
	in, err := os.Open(src) //nolint:gosec // src is a controlled transcript file path
	if err != nil {
		return fmt.Errorf("opening %s: %w", filepath.Base(src), err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600) //nolint:gosec // dst is derived from src
	if err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Base(dst), err)
	}

	var copyErr error
	if n < 0 {
		_, copyErr = io.Copy(out, in)
	} else {
		_, copyErr = io.CopyN(out, in, n)
	}
	if copyErr != nil && copyErr != io.EOF {
		_ = out.Close()
		_ = os.Remove(dst)
		return fmt.Errorf("copying %s: %w", filepath.Base(src), copyErr)
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", filepath.Base(dst), err)
	}
	return nil
}

// ensureTrailingNewline appends a newline to path unless it already ends with
// one.
func ensureTrailingNewline(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat fork file: %w", err)
	}
	if info.Size() == 0 {
		return nil
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0o600) //nolint:gosec // path was created by this engine
	if err != nil {
		return fmt.Errorf("opening fork file: %w", err)
	}
	defer func() { _ = f.Close() }()

	buf := make([]byte, 1)
	if _, err := f.ReadAt(buf, info.Size()-1); err != nil {
		return fmt.Errorf("reading fork file tail: %w", err)
	}
	if buf[0] == '\n' {
		return nil
	}
	if _, err := f.WriteAt([]byte{'\n'}, info.Size()); err != nil {
		return fmt.Errorf("appending newline: %w", err)
	}
	return nil
}

// rewriteFirstRecordTitle prefixes the first record's title with "[Fork] "
// when the record has a title field. Other records are left byte-identical.
func rewriteFirstRecordTitle(path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // path was created by this engine
	if err != nil {
		return fmt.Errorf("reading fork file: %w", err)
	}
	idx := bytes.IndexByte(data, '\n')
	if idx < 0 {
		return nil
	}

	var record map[string]json.RawMessage
	if json.Unmarshal(data[:idx], &record) != nil {
		return nil
	}
	titleRaw, ok := record["title"]
	if !ok {
		return nil
	}
	var title string
	if json.Unmarshal(titleRaw, &title) != nil {
		return nil
	}

	newTitle, err := json.Marshal(forkTitlePrefix + title)
	if err != nil {
		return fmt.Errorf("encoding fork title: %w", err)
	}
	record["title"] = newTitle
	newFirst, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encoding fork record: %w", err)
	}

	var buf bytes.Buffer
	buf.Write(newFirst)
	buf.WriteByte('\n')
	buf.Write(data[idx+1:])
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		return fmt.Errorf("rewriting fork file: %w", err)
	}
	return nil
}

// newSessionID generates a fresh UUIDv4-shaped session identifier for fork
// filenames.
func newSessionID() string {
	b := make([]byte, 16)
	//nolint:errcheck,gosec // crypto/rand.Read is documented to always succeed on supported platforms
	rand.Read(b)
	b[6] = (b[6] & 0x0f) | 0x40
	b[8] = (b[8] & 0x3f) | 0x80
	h := hex.EncodeToString(b)
	return h[:8] + "-" + h[8:12] + "-" + h[12:16] + "-" + h[16:20] + "-" + h[20:]
}
