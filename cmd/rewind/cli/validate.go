package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rewindio/cli/cmd/rewind/cli/agent"
	"github.com/rewindio/cli/cmd/rewind/cli/config"
	"github.com/rewindio/cli/cmd/rewind/cli/metadata"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the store for inconsistencies",
		Long: `Cross-checks manifests against their tarballs, conversation metadata
against existing checkpoints, cursor fingerprints against live transcripts,
and the storage format version against this build.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			env, err := loadEnv(projectFlag)
			if err != nil {
				return err
			}

			problems := 0
			warn := func(format string, args ...any) {
				problems++
				fmt.Printf("  - "+format+"\n", args...)
			}

			fmt.Printf("Validating %s\n", env.Store.Dir)

			if err := config.CheckFormatVersion(env.Config.FormatVersion); err != nil {
				warn("%v", err)
			}
			if !config.MachineMatches(env.Config) {
				warn("store was initialized on a different machine; snapshots are tied to absolute paths")
			}

			manifests, err := env.Store.List()
			if err != nil {
				return err
			}

			names := make([]string, 0, len(manifests))
			for _, m := range manifests {
				names = append(names, m.Name)

				if _, err := os.Stat(m.TarballPath(env.Store.Dir)); err != nil {
					warn("checkpoint %s has no tarball", m.Name)
				}

				if m.Transcript == nil || m.Transcript.Cursor == nil {
					continue
				}
				cur := m.Transcript.Cursor
				if _, err := os.Stat(cur.Path); err != nil {
					warn("checkpoint %s points at missing transcript %s", m.Name, cur.Path)
					continue
				}
				ok, err := cur.VerifyPrefix()
				if err != nil || !ok {
					if m.TranscriptSnapshotPath(env.Store.Dir) == "" {
						warn("checkpoint %s cursor diverged from %s and has no transcript snapshot", m.Name, cur.Path)
					}
				}
			}

			linker := metadata.NewLinker(env.Store.Dir)
			records, err := linker.List()
			if err != nil {
				warn("conversation metadata unreadable: %v", err)
			} else {
				valid := make(map[string]bool, len(names))
				for _, n := range names {
					valid[n] = true
				}
				orphans := 0
				for name, rec := range records {
					if !valid[name] {
						orphans++
					}
					if _, err := agent.Get(rec.AgentKind); err != nil && rec.AgentKind != agent.FallbackKind {
						warn("metadata for %s names unknown agent kind %q", name, rec.AgentKind)
					}
				}
				if orphans > 0 {
					warn("%d metadata records have no checkpoint (run 'rewind cleanup')", orphans)
				}
			}

			if problems == 0 {
				fmt.Println("  no problems found")
			}
			return nil
		},
	}
}
