package cli

import (
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/rewindio/cli/cmd/rewind/cli/restore"
)

func newRestoreCmd() *cobra.Command {
	var modeFlag string
	var inPlaceFlag bool
	var dryRunFlag bool
	var skipBackupFlag bool
	var yesFlag bool

	cmd := &cobra.Command{
		Use:   "restore [selector]",
		Short: "Restore a checkpoint (code, conversation, or both)",
		Long: `Restores the project to a checkpoint. Selectors: 'last', 'prev', a
1-based index, an exact checkpoint name, or a name substring. With no
selector on a terminal, an interactive picker is shown.

A safety snapshot is taken first. The conversation is forked into a new
session file by default; --in-place truncates the live transcript instead
(backup kept), and requires exiting the agent first.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			env, err := loadEnv(projectFlag)
			if err != nil {
				return err
			}

			selector := ""
			if len(args) > 0 {
				selector = args[0]
			}
			if selector == "" {
				selector, err = pickCheckpoint(env)
				if err != nil {
					return err
				}
			}

			if inPlaceFlag && !dryRunFlag && !yesFlag {
				confirmed, err := confirmInPlace()
				if err != nil {
					return err
				}
				if !confirmed {
					fmt.Println("Aborted.")
					return nil
				}
			}

			coordinator := restore.New(env.Store)
			report, err := coordinator.Run(selector, restore.Options{
				Mode:       restore.Mode(modeFlag),
				InPlace:    inPlaceFlag,
				DryRun:     dryRunFlag,
				SkipBackup: skipBackupFlag,
			})
			printReport(report)
			return err
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "code", "What to restore: code, context, or both")
	cmd.Flags().BoolVar(&inPlaceFlag, "in-place", false, "Truncate the live transcript instead of forking (backup kept)")
	cmd.Flags().BoolVar(&dryRunFlag, "dry-run", false, "Report the plan without writing anything")
	cmd.Flags().BoolVar(&skipBackupFlag, "skip-backup", false, "Continue even if the safety snapshot fails")
	cmd.Flags().BoolVar(&yesFlag, "yes", false, "Skip the in-place confirmation prompt")

	return cmd
}

func newUndoCmd() *cobra.Command {
	var modeFlag string

	cmd := &cobra.Command{
		Use:   "undo",
		Short: "Restore the newest checkpoint",
		RunE: func(_ *cobra.Command, _ []string) error {
			env, err := loadEnv(projectFlag)
			if err != nil {
				return err
			}

			coordinator := restore.New(env.Store)
			report, err := coordinator.Run("last", restore.Options{Mode: restore.Mode(modeFlag)})
			printReport(report)
			return err
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "code", "What to restore: code, context, or both")
	return cmd
}

// pickCheckpoint shows the interactive checkpoint picker. Off a terminal it
// fails with a usage hint instead.
func pickCheckpoint(env *cliEnv) (string, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return "", fmt.Errorf("no checkpoint selector given (try 'rewind restore last' or 'rewind list')")
	}

	manifests, err := env.Store.List()
	if err != nil {
		return "", err
	}
	if len(manifests) == 0 {
		return "", fmt.Errorf("no checkpoints exist yet")
	}

	options := make([]huh.Option[string], 0, len(manifests))
	for _, m := range manifests {
		label := fmt.Sprintf("%s  (%d files", m.TimestampISO, m.FileCount)
		if m.Transcript != nil && m.Transcript.Cursor != nil {
			label += ", chat"
		}
		label += ")"
		if m.Description != "" {
			label = m.Description + "  " + label
		}
		options = append(options, huh.NewOption(label, m.Name))
	}

	var selected string
	form := huh.NewForm(huh.NewGroup(
		huh.NewSelect[string]().
			Title("Select a checkpoint to restore").
			Options(options...).
			Value(&selected),
	))
	if err := form.Run(); err != nil {
		return "", fmt.Errorf("checkpoint selection canceled: %w", err)
	}
	return selected, nil
}

// confirmInPlace warns that in-place truncation rewrites the live transcript.
func confirmInPlace() (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, fmt.Errorf("--in-place requires --yes when not run from a terminal")
	}

	confirmed := false
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Truncate the live transcript in place?").
			Description("Exit the agent before continuing. A timestamped backup is kept.").
			Value(&confirmed),
	))
	if err := form.Run(); err != nil {
		return false, fmt.Errorf("confirmation canceled: %w", err)
	}
	return confirmed, nil
}

// printReport renders a coordinator report.
func printReport(report *restore.Report) {
	if report == nil {
		return
	}

	if report.DryRun {
		fmt.Printf("Dry run: restore %s (mode %s)\n", report.Checkpoint, report.Mode)
		for _, c := range report.Changes {
			switch c.Status {
			case "modify":
				fmt.Printf("  modify %s (+%d -%d)\n", c.Path, c.Added, c.Removed)
			case "create":
				fmt.Printf("  create %s (+%d)\n", c.Path, c.Added)
			default:
				fmt.Printf("  %s %s\n", c.Status, c.Path)
			}
		}
		if len(report.Changes) == 0 && report.Mode != "context" {
			fmt.Println("  working tree already matches the checkpoint")
		}
	} else if report.Checkpoint != "" {
		fmt.Printf("Restored %s (mode %s)\n", report.Checkpoint, report.Mode)
	}

	if report.EmergencyName != "" {
		fmt.Printf("Safety snapshot: %s\n", report.EmergencyName)
	}
	if report.NewTranscriptPath != "" {
		fmt.Printf("Forked transcript: %s\n", report.NewTranscriptPath)
	}
	if report.BackupPath != "" {
		fmt.Printf("Transcript backup: %s\n", report.BackupPath)
	}
	if report.RolledBack {
		fmt.Println("Code changes were rolled back from the safety snapshot.")
	}
	for _, w := range report.Warnings {
		fmt.Printf("Warning: %s\n", w)
	}
	for _, a := range report.Actions {
		fmt.Printf("Next: %s\n", a)
	}
}
