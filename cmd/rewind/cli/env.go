package cli

import (
	"os"

	"github.com/rewindio/cli/cmd/rewind/cli/config"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
	"github.com/rewindio/cli/cmd/rewind/cli/store"

	// Register agent profiles.
	_ "github.com/rewindio/cli/cmd/rewind/cli/agent/claudecode"
	_ "github.com/rewindio/cli/cmd/rewind/cli/agent/droid"
)

// Host-agent environment variables consulted when the payload does not name
// a project directory or session.
const (
	envProjectDir   = "CLAUDE_PROJECT_DIR"
	envSessionID    = "CLAUDE_SESSION_ID"
	envAgentEnvFile = "CLAUDE_ENV_FILE"
)

// cliEnv bundles the resolved project root, merged configuration, and store
// for one command invocation.
type cliEnv struct {
	Root   string
	Config *config.Config
	Store  *store.Store
}

// loadEnv resolves the project root (an explicit --project value, the
// host-agent environment, or the working directory) and opens the store.
func loadEnv(projectFlag string) (*cliEnv, error) {
	explicit := projectFlag
	if explicit == "" {
		explicit = os.Getenv(envProjectDir)
	}
	root, err := paths.ProjectRoot(explicit)
	if err != nil {
		return nil, err
	}

	cfg := config.Load(root)
	s, err := store.New(root, cfg)
	if err != nil {
		return nil, err
	}
	return &cliEnv{Root: root, Config: cfg, Store: s}, nil
}
