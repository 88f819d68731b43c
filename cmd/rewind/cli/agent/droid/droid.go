// Package droid registers the agent profile for Factory Droid.
package droid

import (
	"path/filepath"
	"regexp"

	"github.com/rewindio/cli/cmd/rewind/cli/agent"
)

// Kind is the registry key for Factory Droid.
const Kind = "droid"

//nolint:gochecknoinits // Profile self-registration is the intended pattern
func init() {
	agent.Register(Profile())
}

// Profile returns the Droid agent profile. Droid keeps all session
// transcripts in one flat directory regardless of project, identifies
// records by their "id" field, and titles each session in its first record.
func Profile() *agent.Profile {
	return &agent.Profile{
		Kind:          Kind,
		DisplayName:   "Droid",
		IdentifierKey: "id",
		SessionDir: func(home, _ string) string {
			return filepath.Join(home, ".factory", "sessions")
		},
		DirMarkers:          []string{".factory"},
		EnvVars:             []string{"FACTORY_DROID", "DROID_SESSION_ID"},
		TranscriptPathRegex: regexp.MustCompile(`[/\\]\.factory[/\\]sessions[/\\].+\.jsonl$`),
		ForkTitlePrefix:     true,
	}
}
