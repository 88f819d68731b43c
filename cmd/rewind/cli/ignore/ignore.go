// Package ignore decides whether a relative path is snapshottable.
//
// Patterns use a small glob dialect: '*' matches any run of non-separator
// characters, a trailing '/' marks a directory prefix, patterns containing
// '/' are anchored to the project root, and single-segment patterns match at
// any depth. A path is ignored iff some ignore pattern matches and no
// forceInclude pattern matches.
package ignore

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/go-git/go-git/v5/plumbing/format/gitignore"
)

// Matcher evaluates the merged ignore configuration against relative paths.
// It is built once per scan and reused for every candidate path; evaluation
// is a pure function of the pattern set and the candidate.
type Matcher struct {
	ignore       []pattern
	forceInclude []pattern
	vcs          gitignore.Matcher
}

// pattern is a compiled ignore pattern.
type pattern struct {
	segments []string // glob per path segment
	anchored bool     // contains '/': matched from the root
	dirOnly  bool     // trailing '/': matches the directory and everything beneath
}

// New builds a Matcher from ignore patterns, forceInclude patterns, and
// optional VCS ignore patterns (which participate at the same priority as
// the ignore set).
func New(ignorePatterns, forceIncludePatterns []string, vcsPatterns []gitignore.Pattern) *Matcher {
	m := &Matcher{}
	for _, p := range ignorePatterns {
		if compiled, ok := compile(p); ok {
			m.ignore = append(m.ignore, compiled)
		}
	}
	for _, p := range forceIncludePatterns {
		if compiled, ok := compile(p); ok {
			m.forceInclude = append(m.forceInclude, compiled)
		}
	}
	if len(vcsPatterns) > 0 {
		m.vcs = gitignore.NewMatcher(vcsPatterns)
	}
	return m
}

// Ignored reports whether relPath should be excluded from snapshots.
// Directories are tested with a trailing '/'.
func (m *Matcher) Ignored(relPath string) bool {
	if relPath == "" {
		return false
	}
	if m.forceIncluded(relPath) {
		return false
	}

	for _, p := range m.ignore {
		if p.matches(relPath) {
			return true
		}
	}

	if m.vcs != nil {
		isDir := strings.HasSuffix(relPath, "/")
		trimmed := strings.TrimSuffix(relPath, "/")
		if m.vcs.Match(strings.Split(trimmed, "/"), isDir) {
			return true
		}
	}

	return false
}

// forceIncluded reports whether a forceInclude pattern matches relPath or one
// of its ancestors (so forcing "node_modules" back in also re-includes its
// contents).
func (m *Matcher) forceIncluded(relPath string) bool {
	for _, p := range m.forceInclude {
		if p.matches(relPath) {
			return true
		}
		trimmed := strings.TrimSuffix(relPath, "/")
		segs := strings.Split(trimmed, "/")
		for i := 1; i < len(segs); i++ {
			if p.matches(strings.Join(segs[:i], "/") + "/") {
				return true
			}
		}
	}
	return false
}

// compile parses a raw pattern string. Returns ok=false for empty patterns.
func compile(raw string) (pattern, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return pattern{}, false
	}

	p := pattern{}
	if strings.HasSuffix(raw, "/") {
		p.dirOnly = true
		raw = strings.TrimSuffix(raw, "/")
	}
	raw = strings.Trim(raw, "/")
	if raw == "" {
		return pattern{}, false
	}
	p.anchored = strings.Contains(raw, "/")
	p.segments = strings.Split(raw, "/")
	return p, true
}

// matches tests a compiled pattern against a normalized relative path.
func (p pattern) matches(relPath string) bool {
	isDir := strings.HasSuffix(relPath, "/")
	trimmed := strings.TrimSuffix(relPath, "/")
	segs := strings.Split(trimmed, "/")

	if p.anchored {
		return p.matchWindow(segs, 0, isDir)
	}

	// Unanchored patterns match at any depth.
	for start := 0; start+len(p.segments) <= len(segs); start++ {
		if p.matchWindow(segs, start, isDir) {
			return true
		}
	}
	return false
}

// matchWindow tests the pattern segments against segs[start:]. A window that
// ends before the candidate does names a directory above it, which both plain
// and dirOnly patterns cover; an exact window only matches a directory
// candidate when the pattern is dirOnly.
func (p pattern) matchWindow(segs []string, start int, isDir bool) bool {
	if start+len(p.segments) > len(segs) {
		return false
	}
	for i, ps := range p.segments {
		if !matchGlob(ps, segs[start+i]) {
			return false
		}
	}
	if start+len(p.segments) < len(segs) {
		return true
	}
	return !p.dirOnly || isDir
}

// matchGlob matches a single segment glob where '*' matches any run of
// non-separator characters.
func matchGlob(glob, s string) bool {
	// Fast path: no wildcard.
	if !strings.Contains(glob, "*") {
		return glob == s
	}

	parts := strings.Split(glob, "*")
	if !strings.HasPrefix(s, parts[0]) {
		return false
	}
	s = s[len(parts[0]):]
	for i := 1; i < len(parts)-1; i++ {
		idx := strings.Index(s, parts[i])
		if idx < 0 {
			return false
		}
		s = s[idx+len(parts[i]):]
	}
	return strings.HasSuffix(s, parts[len(parts)-1])
}

// LoadVCSPatterns reads the host VCS ignore file at the project root and
// parses it into patterns. A missing file yields no patterns.
func LoadVCSPatterns(root string) []gitignore.Pattern {
	data, err := os.ReadFile(filepath.Join(root, ".gitignore")) //nolint:gosec // root is the validated project root
	if err != nil {
		return nil
	}

	var patterns []gitignore.Pattern
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		patterns = append(patterns, gitignore.ParsePattern(line, nil))
	}
	return patterns
}
