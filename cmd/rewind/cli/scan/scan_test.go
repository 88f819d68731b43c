package scan

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/rewindio/cli/cmd/rewind/cli/ignore"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	full := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScan_DeterministicOrder(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.txt", "ho")
	writeFile(t, root, "a.txt", "hi")
	writeFile(t, root, "sub/c.txt", "he")

	m := ignore.New(nil, nil, nil)
	first, err := Scan(root, m)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	second, err := Scan(root, m)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	want := []string{"a.txt", "b.txt", "sub/c.txt"}
	if len(first) != len(want) {
		t.Fatalf("got %d entries, want %d", len(first), len(want))
	}
	for i, rel := range want {
		if first[i].RelPath != rel {
			t.Errorf("entry %d = %q, want %q", i, first[i].RelPath, rel)
		}
	}

	if Signature(first) != Signature(second) {
		t.Error("two scans of an unmodified tree must produce equal signatures")
	}
}

func TestScan_SignatureChangesOnModification(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "hi")

	m := ignore.New(nil, nil, nil)
	before, err := Scan(root, m)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	writeFile(t, root, "b.txt", "new")
	after, err := Scan(root, m)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	if Signature(before) == Signature(after) {
		t.Error("signature must change when a file is added")
	}
}

func TestScan_RespectsIgnores(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "src/main.go", "package main")
	writeFile(t, root, "node_modules/x.js", "x")

	m := ignore.New([]string{"node_modules/"}, nil, nil)
	entries, err := Scan(root, m)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}

	for _, e := range entries {
		if e.RelPath == "node_modules/x.js" {
			t.Error("ignored path was emitted")
		}
	}
	if len(entries) != 1 || entries[0].RelPath != "src/main.go" {
		t.Errorf("unexpected entries: %v", entries)
	}
}

func TestScan_SkipsSymlinks(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "real.txt", "data")
	if err := os.Symlink(filepath.Join(root, "real.txt"), filepath.Join(root, "link.txt")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	entries, err := Scan(root, ignore.New(nil, nil, nil))
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	for _, e := range entries {
		if e.RelPath == "link.txt" {
			t.Error("symlink was emitted")
		}
	}
}

func TestScan_RefusesHomeDirectory(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	_, err := Scan(home, ignore.New(nil, nil, nil))
	if !errors.Is(err, ErrScanRefused) {
		t.Fatalf("Scan() of the home directory = %v, want ErrScanRefused", err)
	}
}
