// Package cli implements the rewind command-line interface: a thin front-end
// over the checkpoint store, the transcript engine, and the restore
// coordinator.
package cli

import (
	"errors"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const gettingStarted = `

Getting Started:
  Run 'rewind init' inside a project to start taking checkpoints, then
  'rewind save' for a first snapshot. Hook-driven checkpoints are created
  automatically once your agent's hooks call 'rewind hooks <event>'.

`

// Version information (can be set at build time)
var (
	Version = "dev"
	Commit  = "unknown"
)

// projectFlag is the persistent --project override, consumed by loadEnv.
var projectFlag string

// NewRootCmd assembles the rewind command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rewind",
		Short: "Checkpoint and rewind AI coding agent sessions",
		Long: "Rewind snapshots your project tree together with your coding agent's\n" +
			"conversation, and restores both to a consistent earlier state." + gettingStarted,
		// Let main.go handle error printing to avoid duplication
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	cmd.PersistentFlags().StringVar(&projectFlag, "project", "", "Project root (defaults to the working directory)")

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		if errors.Is(err, pflag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w\nRun '%s --help' for usage", err, c.CommandPath())
	})

	cmd.AddCommand(newSaveCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newRestoreCmd())
	cmd.AddCommand(newUndoCmd())
	cmd.AddCommand(newBackCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newCleanupCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newHooksCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("Rewind CLI %s (%s)\n", Version, Commit)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
		},
	}
}
