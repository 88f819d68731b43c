package ignore

import (
	"testing"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

func TestIgnored_SingleSegmentMatchesAtAnyDepth(t *testing.T) {
	m := New([]string{"node_modules/"}, nil, nil)

	tests := []struct {
		path string
		want bool
	}{
		{"node_modules/", true},
		{"packages/app/node_modules/", true},
		{"node_modules/x.js", true},
		{"src/main.go", false},
		{"node_modules_backup/", false},
	}
	for _, tt := range tests {
		if got := m.Ignored(tt.path); got != tt.want {
			t.Errorf("Ignored(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestIgnored_DirOnlyPatternRequiresDirectory(t *testing.T) {
	m := New([]string{"build/"}, nil, nil)

	if !m.Ignored("build/") {
		t.Error("build/ directory should be ignored")
	}
	if m.Ignored("build") {
		t.Error("a plain file named build should not match a dirOnly pattern")
	}
	if !m.Ignored("build/output.bin") {
		t.Error("files under an ignored directory should be ignored")
	}
}

func TestIgnored_WildcardMatchesNonSeparatorRun(t *testing.T) {
	m := New([]string{"*.log"}, nil, nil)

	if !m.Ignored("debug.log") {
		t.Error("debug.log should match *.log")
	}
	if !m.Ignored("logs/debug.log") {
		t.Error("*.log should match at any depth")
	}
	if m.Ignored("debug.log.txt") {
		t.Error("debug.log.txt should not match *.log")
	}
}

func TestIgnored_AnchoredPattern(t *testing.T) {
	m := New([]string{"src/gen/"}, nil, nil)

	if !m.Ignored("src/gen/") {
		t.Error("src/gen/ should be ignored")
	}
	if m.Ignored("other/src/gen/") {
		t.Error("patterns containing '/' are anchored to the root")
	}
}

func TestIgnored_ForceIncludeOverrides(t *testing.T) {
	m := New([]string{"node_modules/"}, []string{"node_modules"}, nil)

	if m.Ignored("node_modules/") {
		t.Error("forceInclude should override the ignore pattern")
	}
	if m.Ignored("node_modules/x.js") {
		t.Error("forceInclude of a directory should re-include its contents")
	}
}

func TestIgnored_Monotonicity(t *testing.T) {
	// Adding a pattern never un-ignores a previously ignored path.
	base := New([]string{"dist/"}, nil, nil)
	extended := New([]string{"dist/", "*.tmp"}, nil, nil)

	for _, path := range []string{"dist/", "dist/a.js", "x.tmp", "src/a.go"} {
		if base.Ignored(path) && !extended.Ignored(path) {
			t.Errorf("adding a pattern un-ignored %q", path)
		}
	}
}

func TestIgnored_VCSPatterns(t *testing.T) {
	vcs := []gitignore.Pattern{gitignore.ParsePattern("*.secret", nil)}
	m := New(nil, nil, vcs)

	if !m.Ignored("creds.secret") {
		t.Error("VCS ignore patterns should contribute to matching")
	}
	if m.Ignored("creds.txt") {
		t.Error("unmatched path should not be ignored")
	}

	// forceInclude overrides VCS patterns too.
	m = New(nil, []string{"*.secret"}, vcs)
	if m.Ignored("creds.secret") {
		t.Error("forceInclude should override VCS patterns")
	}
}

func TestIgnored_PureFunction(t *testing.T) {
	m := New([]string{"a/b/*.go"}, nil, nil)
	for i := 0; i < 3; i++ {
		if !m.Ignored("a/b/c.go") {
			t.Fatal("a/b/c.go should match a/b/*.go")
		}
		if m.Ignored("a/b/c/d.go") {
			t.Fatal("a/b/c/d.go should not match a/b/*.go")
		}
	}
}
