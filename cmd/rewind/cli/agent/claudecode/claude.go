// Package claudecode registers the agent profile for Claude Code.
package claudecode

import (
	"path/filepath"
	"regexp"

	"github.com/rewindio/cli/cmd/rewind/cli/agent"
)

// Kind is the registry key for Claude Code.
const Kind = "claude"

//nolint:gochecknoinits // Profile self-registration is the intended pattern
func init() {
	agent.Register(Profile())
}

// SanitizePathForClaude converts a path to Claude's project directory format.
// Claude replaces any non-alphanumeric character with a dash.
var nonAlphanumericRegex = regexp.MustCompile(`[^a-zA-Z0-9]`)

func SanitizePathForClaude(path string) string {
	return nonAlphanumericRegex.ReplaceAllString(path, "-")
}

// Profile returns the Claude Code agent profile. Claude keeps one JSONL
// transcript per session under a per-project subtree of the home directory,
// and identifies records by their "uuid" field.
func Profile() *agent.Profile {
	return &agent.Profile{
		Kind:          Kind,
		DisplayName:   "Claude Code",
		IdentifierKey: "uuid",
		SessionDir: func(home, projectRoot string) string {
			return filepath.Join(home, ".claude", "projects", SanitizePathForClaude(projectRoot))
		},
		DirMarkers:          []string{".claude"},
		EnvVars:             []string{"CLAUDECODE", "CLAUDE_PROJECT_DIR"},
		TranscriptPathRegex: regexp.MustCompile(`[/\\]\.claude[/\\]projects[/\\].+\.jsonl$`),
		// Claude transcripts carry no title record to rewrite.
		ForkTitlePrefix: false,
	}
}
