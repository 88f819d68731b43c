package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/rewindio/cli/cmd/rewind/cli/agent"
	"github.com/rewindio/cli/cmd/rewind/cli/hookengine"
	"github.com/rewindio/cli/cmd/rewind/cli/restore"
	"github.com/rewindio/cli/cmd/rewind/cli/transcript"
)

func newBackCmd() *cobra.Command {
	var bothFlag bool
	var inPlaceFlag bool

	cmd := &cobra.Command{
		Use:   "back <N>",
		Short: "Rewind the conversation N user turns",
		Long: `Rewinds the current session's conversation by N user turns: the result
keeps everything before the Nth-most-recent user message. By default a new
session file is forked; --in-place truncates the live transcript (backup
kept). With --both, the checkpoint taken at that conversation point is also
restored as code.`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			turns, err := strconv.Atoi(args[0])
			if err != nil || turns < 1 {
				return fmt.Errorf("invalid turn count %q: want a positive integer", args[0])
			}

			env, err := loadEnv(projectFlag)
			if err != nil {
				return err
			}

			transcriptPath, agentKind := currentTranscript(env)
			if transcriptPath == "" {
				return fmt.Errorf("no current session transcript found")
			}

			coordinator := restore.New(env.Store)
			report, err := coordinator.Back(transcriptPath, agentKind, restore.BackOptions{
				Turns:   turns,
				Both:    bothFlag,
				InPlace: inPlaceFlag,
			})
			printReport(report)
			return err
		},
	}

	cmd.Flags().BoolVar(&bothFlag, "both", false, "Also restore the code checkpoint at that conversation point")
	cmd.Flags().BoolVar(&inPlaceFlag, "in-place", false, "Truncate the live transcript instead of forking (backup kept)")

	return cmd
}

// currentTranscript resolves the live transcript: the session state written
// by the hook runner when present, otherwise agent detection plus locator.
func currentTranscript(env *cliEnv) (path, agentKind string) {
	if state := hookengine.LoadSession(env.Store.Dir); state != nil && state.TranscriptPath != "" {
		return state.TranscriptPath, state.AgentKind
	}

	profile := agent.Detect(env.Root, "", "")
	located, err := transcript.Locate(profile, env.Root)
	if err != nil {
		return "", profile.Kind
	}
	return located, profile.Kind
}
