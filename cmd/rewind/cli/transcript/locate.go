package transcript

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rewindio/cli/cmd/rewind/cli/agent"
)

// Locate finds the current session transcript for an agent profile: the
// most-recently-modified *.jsonl file in the profile's session scope.
// Returns "" when no session is present.
func Locate(p *agent.Profile, projectRoot string) (string, error) {
	if p.SessionDir == nil {
		return "", nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	dir := p.SessionDir(home, projectRoot)
	entries, err := os.ReadDir(dir)
	if err != nil {
		// No session directory means no session.
		return "", nil
	}

	var newest string
	var newestMtime int64
	for _, de := range entries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".jsonl") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		if mtime := info.ModTime().UnixMilli(); newest == "" || mtime > newestMtime {
			newest = filepath.Join(dir, de.Name())
			newestMtime = mtime
		}
	}
	return newest, nil
}
