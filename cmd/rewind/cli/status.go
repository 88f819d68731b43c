package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rewindio/cli/cmd/rewind/cli/hookengine"
	"github.com/rewindio/cli/cmd/rewind/cli/restore"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show storage, checkpoint, and session status",
		RunE: func(_ *cobra.Command, _ []string) error {
			env, err := loadEnv(projectFlag)
			if err != nil {
				return err
			}

			fmt.Printf("Project: %s\n", env.Root)
			fmt.Printf("Storage: %s (%s mode, tier %s)\n", env.Store.Dir, env.Config.StorageMode, env.Config.Tier)

			manifests, err := env.Store.List()
			if err != nil {
				return err
			}
			var totalBytes int64
			for _, m := range manifests {
				totalBytes += m.TotalBytes
			}
			fmt.Printf("Checkpoints: %d (%s)\n", len(manifests), formatBytes(totalBytes))
			if len(manifests) > 0 {
				latest := manifests[0]
				fmt.Printf("Latest: %s (%s)\n", latest.Name, latest.TimestampISO)
				if log := env.Store.Changelog(); len(log) > 0 && log[len(log)-1].Reason != "" {
					fmt.Printf("Created by: %s\n", log[len(log)-1].Reason)
				}
			}

			if state := hookengine.LoadSession(env.Store.Dir); state != nil {
				fmt.Printf("Session: %s (%s)\n", state.SessionID, state.AgentKind)
				if state.TranscriptPath != "" {
					fmt.Printf("Transcript: %s\n", state.TranscriptPath)
				}
				if last := hookengine.ReadDebounce(env.Store.Dir, state.AgentKind, state.SessionID); !last.IsZero() {
					fmt.Printf("Last hook checkpoint: %s\n", last.Format("2006-01-02 15:04:05"))
				}
			} else {
				fmt.Println("Session: none recorded")
			}

			if history := restore.History(env.Store.Dir); len(history) > 0 {
				last := history[len(history)-1]
				fmt.Printf("Last restore: %s (mode %s) at %s\n", last.Checkpoint, last.Mode, last.TimestampISO)
			}
			return nil
		},
	}
}
