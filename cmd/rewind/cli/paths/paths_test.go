package paths

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestSlugify(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"first", "first"},
		{"with c", "with-c"},
		{"Fix the  Bug!", "fix-the-bug"},
		{"", "checkpoint"},
		{"///", "checkpoint"},
		{"rewind_backup", "rewind_backup"},
	}
	for _, tt := range tests {
		if got := Slugify(tt.in); got != tt.want {
			t.Errorf("Slugify(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestCheckpointName(t *testing.T) {
	ts := time.Date(2026, 8, 2, 10, 30, 0, 0, time.UTC)
	got := CheckpointName("first", ts)
	want := "first_2026-08-02T10-30-00Z"
	if got != want {
		t.Errorf("CheckpointName() = %q, want %q", got, want)
	}
	if strings.ContainsRune(got, ':') {
		t.Error("checkpoint names must not contain ':'")
	}
}

func TestGlobalStorageName(t *testing.T) {
	name := GlobalStorageName("/home/dev/myproject")
	if !strings.HasPrefix(name, "myproject_") {
		t.Errorf("GlobalStorageName() = %q, want myproject_ prefix", name)
	}
	suffix := strings.TrimPrefix(name, "myproject_")
	if len(suffix) != 12 {
		t.Errorf("hash suffix length = %d, want 12", len(suffix))
	}

	// Different roots with the same basename must not collide.
	other := GlobalStorageName("/tmp/other/myproject")
	if other == name {
		t.Error("different roots produced the same storage name")
	}
}

func TestStorageDir_ProjectMode(t *testing.T) {
	dir, err := StorageDir("/p", false)
	if err != nil {
		t.Fatalf("StorageDir() error = %v", err)
	}
	if dir != filepath.Join("/p", RewindDirName) {
		t.Errorf("StorageDir() = %q", dir)
	}
}

func TestIsHomeDir(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	if !IsHomeDir(home) {
		t.Error("IsHomeDir(home) = false")
	}
	if IsHomeDir(filepath.Join(home, "project")) {
		t.Error("IsHomeDir(home/project) = true")
	}
}

func TestAppendEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "agent.env")

	if err := AppendEnvFile(path, map[string]string{"B_KEY": "2", "A_KEY": "1"}); err != nil {
		t.Fatalf("AppendEnvFile() error = %v", err)
	}
	if err := AppendEnvFile(path, map[string]string{"C_KEY": "3"}); err != nil {
		t.Fatalf("AppendEnvFile() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading env file: %v", err)
	}
	want := "A_KEY=1\nB_KEY=2\nC_KEY=3\n"
	if string(data) != want {
		t.Errorf("env file = %q, want %q", string(data), want)
	}
}
