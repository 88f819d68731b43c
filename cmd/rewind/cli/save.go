package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewindio/cli/cmd/rewind/cli/agent"
	"github.com/rewindio/cli/cmd/rewind/cli/metadata"
	"github.com/rewindio/cli/cmd/rewind/cli/store"
	"github.com/rewindio/cli/cmd/rewind/cli/transcript"
	"github.com/rewindio/cli/redact"
)

func newSaveCmd() *cobra.Command {
	var nameFlag string
	var forceFlag bool

	cmd := &cobra.Command{
		Use:   "save [description]",
		Short: "Create a checkpoint of the project tree",
		Long: `Scans the project, and unless nothing changed since the latest
checkpoint, packs the tree into a new snapshot. When the current agent
session can be located, the conversation position is captured alongside.`,
		Args: cobra.ArbitraryArgs,
		RunE: func(_ *cobra.Command, args []string) error {
			env, err := loadEnv(projectFlag)
			if err != nil {
				return err
			}

			description := strings.Join(args, " ")
			if nameFlag != "" {
				description = nameFlag
			}

			attach, link := captureContext(env, "", "", "")

			manifest, err := env.Store.Create(store.CreateOptions{
				Description: description,
				Force:       forceFlag,
				Reason:      "manual save",
				Transcript:  attach,
			})
			if errors.Is(err, store.ErrNoChanges) {
				fmt.Println("No changes since latest checkpoint.")
				return nil
			}
			if err != nil {
				return err
			}

			if link != nil {
				link(manifest.Name)
			}

			fmt.Printf("Saved checkpoint %s (%d files, %s)\n",
				manifest.Name, manifest.FileCount, formatBytes(manifest.TotalBytes))
			return nil
		},
	}

	cmd.Flags().StringVar(&nameFlag, "name", "", "Name the checkpoint (overrides the description slug)")
	cmd.Flags().BoolVar(&forceFlag, "force", false, "Create a checkpoint even when nothing changed")

	return cmd
}

// captureContext locates the current session transcript and prepares the
// transcript attachment plus a callback that records the metadata once the
// checkpoint name is known. All failures degrade to a code-only checkpoint.
func captureContext(env *cliEnv, agentHint, sessionID, transcriptPath string) (*store.TranscriptAttachment, func(checkpointName string)) {
	profile := agent.Detect(env.Root, transcriptPath, agentHint)

	if transcriptPath == "" {
		located, err := transcript.Locate(profile, env.Root)
		if err != nil || located == "" {
			return nil, nil
		}
		transcriptPath = located
	}

	cursor, err := transcript.CaptureCursor(transcriptPath, profile.IdentifierKey)
	if err != nil || cursor == nil {
		return nil, nil
	}

	attach := &store.TranscriptAttachment{Path: transcriptPath, Cursor: cursor}

	link := func(checkpointName string) {
		messages, err := transcript.ParseFile(transcriptPath, profile.IdentifierKey)
		if err != nil {
			return
		}
		var prompt string
		if m, ok, err := transcript.LastUserMessage(transcriptPath, profile.IdentifierKey); err == nil && ok {
			prompt = m.TextContent
		}
		if sessionID == "" && len(messages) > 0 {
			sessionID = messages[len(messages)-1].SessionID
		}

		linker := metadata.NewLinker(env.Store.Dir)
		if err := linker.Add(checkpointName, metadata.Record{
			AgentKind:         profile.Kind,
			SessionID:         sessionID,
			TranscriptPath:    transcriptPath,
			MessageIdentifier: cursor.LastEventID,
			MessageIndex:      transcript.MessageIndex(messages, cursor.LastEventID),
			UserPrompt:        redact.String(prompt),
			CapturedAtISO:     time.Now().UTC().Format(time.RFC3339),
		}); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to record conversation context: %v\n", err)
		}
	}

	return attach, link
}

// formatBytes renders a byte count in a human-friendly unit.
func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(n)/float64(div), "KMGTPE"[exp])
}
