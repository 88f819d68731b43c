package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rewindio/cli/cmd/rewind/cli/config"
	"github.com/rewindio/cli/cmd/rewind/cli/jsonutil"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
)

func newConfigCmd() *cobra.Command {
	var globalFlag bool

	cmd := &cobra.Command{
		Use:   "config <key> <value>",
		Short: "Set a configuration value",
		Long: `Sets a configuration key in the project config (or the user-level
config with --global). Keys: storageMode, tier, minIntervalSeconds,
maxCheckpoints, maxAgeDays, ignorePatterns, forceInclude,
destructivePatterns, logLevel. List values are comma-separated.`,
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			key, value := args[0], args[1]

			env, err := loadEnv(projectFlag)
			if err != nil {
				return err
			}

			if err := config.Set(env.Config, key, value); err != nil {
				return err
			}

			if globalFlag {
				userFile, err := paths.UserConfigFile()
				if err != nil {
					return err
				}
				if err := os.MkdirAll(filepath.Dir(userFile), 0o750); err != nil {
					return fmt.Errorf("creating config directory: %w", err)
				}
				if err := jsonutil.WriteFileAtomic(userFile, env.Config); err != nil {
					return err
				}
				fmt.Printf("Set %s in %s\n", key, userFile)
				return nil
			}

			if err := config.Save(env.Store.Dir, env.Config); err != nil {
				return err
			}
			fmt.Printf("Set %s in %s\n", key, paths.ConfigFile(env.Store.Dir))
			return nil
		},
	}

	cmd.Flags().BoolVar(&globalFlag, "global", false, "Write to the user-level config instead of the project config")
	return cmd
}
