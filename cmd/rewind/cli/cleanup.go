package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewindio/cli/cmd/rewind/cli/hookengine"
	"github.com/rewindio/cli/cmd/rewind/cli/metadata"
)

// staleDebounceAge is how old a per-session debounce file must be before
// cleanup removes it.
const staleDebounceAge = 30 * 24 * time.Hour

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Prune old checkpoints and sweep stale metadata",
		RunE: func(_ *cobra.Command, _ []string) error {
			env, err := loadEnv(projectFlag)
			if err != nil {
				return err
			}

			dropped, err := env.Store.Prune()
			if err != nil {
				return err
			}
			fmt.Printf("Pruned %d checkpoints\n", len(dropped))

			names, err := env.Store.Names()
			if err != nil {
				return err
			}
			linker := metadata.NewLinker(env.Store.Dir)
			removed, err := linker.Sweep(names)
			if err != nil {
				return err
			}
			fmt.Printf("Swept %d orphaned metadata records\n", removed)

			stale := hookengine.SweepDebounce(env.Store.Dir, staleDebounceAge)
			fmt.Printf("Removed %d stale session state files\n", stale)
			return nil
		},
	}
}
