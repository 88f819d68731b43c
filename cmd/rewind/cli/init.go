package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/rewindio/cli/cmd/rewind/cli/config"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
)

func newInitCmd() *cobra.Command {
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize checkpoint storage for this project",
		Long: `Creates the storage layout and writes the project configuration.
Project mode keeps snapshots under <root>/.rewind; global mode keeps them
under ~/.rewind/storage so they never appear in the project tree.

Switching modes later does not migrate existing snapshots.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			if modeFlag != config.StorageModeProject && modeFlag != config.StorageModeGlobal {
				return fmt.Errorf("invalid mode %q (want %q or %q)", modeFlag, config.StorageModeProject, config.StorageModeGlobal)
			}

			root, err := paths.ProjectRoot(projectFlag)
			if err != nil {
				return err
			}
			if paths.IsHomeDir(root) {
				return fmt.Errorf("refusing to initialize: project root is the home directory")
			}

			storageDir, err := paths.StorageDir(root, modeFlag == config.StorageModeGlobal)
			if err != nil {
				return err
			}

			for _, dir := range []string{
				paths.SnapshotsDir(storageDir),
				filepath.Join(storageDir, paths.ConversationDir),
				filepath.Join(storageDir, paths.SessionsDirName),
			} {
				if err := os.MkdirAll(dir, 0o750); err != nil {
					return fmt.Errorf("creating %s: %w", dir, err)
				}
			}

			cfg := config.Load(root)
			cfg.StorageMode = modeFlag
			cfg.FormatVersion = config.CurrentFormatVersion
			config.StampMachineID(cfg)
			if err := config.Save(storageDir, cfg); err != nil {
				return err
			}

			fmt.Printf("Initialized rewind storage at %s (%s mode)\n", storageDir, modeFlag)
			return nil
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", config.StorageModeProject, "Storage placement: project or global")
	return cmd
}
