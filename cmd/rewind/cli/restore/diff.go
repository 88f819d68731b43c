package restore

import (
	"archive/tar"
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/rewindio/cli/cmd/rewind/cli/scan"
	"github.com/rewindio/cli/cmd/rewind/cli/store"
)

// FileChange summarizes what restoring a checkpoint would do to one file.
type FileChange struct {
	Path    string `json:"path"`
	Status  string `json:"status"` // "create", "delete", "modify"
	Added   int    `json:"added"`
	Removed int    `json:"removed"`
}

// maxDiffBytes bounds per-file diff computation for the dry-run report.
// Larger files are reported as modified without line counts.
const maxDiffBytes = 1 << 20

// planFileChanges diffs the target checkpoint's tarball against the current
// working tree without writing anything.
func (c *Coordinator) planFileChanges(target *store.Manifest) ([]FileChange, error) {
	current, err := scan.Scan(c.Store.Root, c.Store.Matcher())
	if err != nil {
		return nil, err
	}
	currentSet := make(map[string]bool, len(current))
	for _, e := range current {
		currentSet[e.RelPath] = true
	}

	inTarget := make(map[string]bool, len(target.Files))
	var changes []FileChange

	err = eachTarballEntry(target.TarballPath(c.Store.Dir), func(rel string, content []byte) {
		inTarget[rel] = true
		abs := filepath.Join(c.Store.Root, filepath.FromSlash(rel))
		existing, readErr := os.ReadFile(abs) //nolint:gosec // abs is inside the project root
		switch {
		case readErr != nil:
			changes = append(changes, FileChange{Path: rel, Status: "create", Added: countLines(content)})
		case string(existing) == string(content):
			// Unchanged.
		case len(existing) > maxDiffBytes || len(content) > maxDiffBytes:
			changes = append(changes, FileChange{Path: rel, Status: "modify"})
		default:
			added, removed := lineDiffStats(string(existing), string(content))
			changes = append(changes, FileChange{Path: rel, Status: "modify", Added: added, Removed: removed})
		}
	})
	if err != nil {
		return nil, err
	}

	for _, e := range current {
		if !inTarget[e.RelPath] {
			changes = append(changes, FileChange{Path: e.RelPath, Status: "delete"})
		}
	}
	return changes, nil
}

// eachTarballEntry streams regular-file entries of a snapshot tarball.
func eachTarballEntry(tarPath string, fn func(rel string, content []byte)) error {
	in, err := os.Open(tarPath) //nolint:gosec // tarPath is under the storage dir
	if err != nil {
		return fmt.Errorf("opening tarball: %w", err)
	}
	defer func() { _ = in.Close() }()

	gz, err := gzip.NewReader(in)
	if err != nil {
		return fmt.Errorf("reading gzip: %w", err)
	}
	defer func() { _ = gz.Close() }()

	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading tar: %w", err)
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		content, err := io.ReadAll(tr) //nolint:gosec // snapshot tarballs are produced by this engine
		if err != nil {
			return fmt.Errorf("reading tar entry %s: %w", hdr.Name, err)
		}
		fn(hdr.Name, content)
	}
}

// lineDiffStats counts added and removed lines between the current content
// and the checkpoint content.
func lineDiffStats(current, target string) (added, removed int) {
	dmp := diffmatchpatch.New()
	a, b, lines := dmp.DiffLinesToChars(current, target)
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), lines)
	for _, d := range diffs {
		n := countLines([]byte(d.Text))
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			added += n
		case diffmatchpatch.DiffDelete:
			removed += n
		case diffmatchpatch.DiffEqual:
		}
	}
	return added, removed
}

func countLines(b []byte) int {
	if len(b) == 0 {
		return 0
	}
	n := 0
	for _, c := range b {
		if c == '\n' {
			n++
		}
	}
	if b[len(b)-1] != '\n' {
		n++
	}
	return n
}
