package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rewindio/cli/cmd/rewind/cli/agent"
	"github.com/rewindio/cli/cmd/rewind/cli/hookengine"
	"github.com/rewindio/cli/cmd/rewind/cli/logging"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
	"github.com/rewindio/cli/cmd/rewind/cli/scan"
	"github.com/rewindio/cli/cmd/rewind/cli/store"
	"github.com/rewindio/cli/cmd/rewind/cli/transcript"
)

func newHooksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "hooks <event>",
		Short:  "Handle a hook event from the host agent (reads JSON on stdin)",
		Hidden: true,
		Args:   cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// A hook must never bubble an error up to the agent: log to
			// stderr and exit 0 regardless.
			if err := runHook(args[0], cmd.InOrStdin()); err != nil {
				fmt.Fprintf(os.Stderr, "[rewind] hook %s failed: %v\n", args[0], err)
			}
			return nil
		},
	}
	return cmd
}

// runHook is the hook runner: parse the payload, decide, snapshot, link.
func runHook(event string, stdin io.Reader) error {
	start := time.Now()

	payload, err := hookengine.ParsePayload(stdin)
	if err != nil {
		return err
	}
	if payload.HookEventName == "" {
		payload.HookEventName = event
	}
	if payload.SessionID == "" {
		payload.SessionID = os.Getenv(envSessionID)
	}

	env, err := loadEnv(payload.Cwd)
	if err != nil {
		return err
	}

	sessionID := payload.SessionID
	if sessionID == "" {
		sessionID = "unknown"
	}
	logging.SetLogLevelGetter(func() string { return env.Config.LogLevel })
	if err := logging.Init(env.Store.Dir, sessionID); err == nil {
		defer logging.Close()
	}
	ctx := logging.WithComponent(logging.WithSession(context.Background(), sessionID), "hooks")
	defer logging.LogDuration(ctx, slog.LevelInfo, "hook completed", start,
		slog.String("event", payload.HookEventName))

	profile := agent.Detect(env.Root, payload.TranscriptPath, payload.AgentName)
	ctx = logging.WithAgent(ctx, profile.Kind)

	transcriptPath := payload.TranscriptPath
	if transcriptPath == "" {
		transcriptPath, _ = transcript.Locate(profile, env.Root)
	}

	// Current and latest tree signatures feed the change-detection rule.
	entries, err := scan.Scan(env.Root, env.Store.Matcher())
	if err != nil {
		return err
	}
	currentSignature := scan.Signature(entries)
	latestSignature := ""
	if latest, err := env.Store.Latest(); err == nil && latest != nil {
		latestSignature = latest.Signature
	}

	engine := hookengine.NewEngine(env.Config)
	lastCheckpointAt := hookengine.ReadDebounce(env.Store.Dir, profile.Kind, sessionID)
	decision := engine.Decide(payload, time.Now(), lastCheckpointAt, currentSignature, latestSignature)

	logging.Debug(ctx, "hook decision",
		slog.Bool("should_create", decision.ShouldCreate),
		slog.String("reason", decision.Reason),
		slog.Bool("force", decision.Force))

	// Session state and env publication happen even when no checkpoint is
	// made, so status/back always know the current session.
	saveSessionState(env, profile.Kind, payload.SessionID, transcriptPath)
	publishEnv(env, profile.Kind, transcriptPath)

	if !decision.ShouldCreate {
		return nil
	}

	attach, link := captureContext(env, profile.Kind, payload.SessionID, transcriptPath)

	manifest, err := env.Store.Create(store.CreateOptions{
		Description: payload.Description(),
		Force:       decision.Force,
		Reason:      "hook: " + payload.HookEventName,
		Transcript:  attach,
	})
	if errors.Is(err, store.ErrNoChanges) {
		logging.Debug(ctx, "no changes at hook checkpoint")
		return nil
	}
	if err != nil {
		return err
	}

	if link != nil {
		link(manifest.Name)
	}

	if decision.UpdateDebounceTimer {
		if err := hookengine.WriteDebounce(env.Store.Dir, profile.Kind, sessionID, time.Now()); err != nil {
			logging.Warn(ctx, "failed to update debounce state", "error", err.Error())
		}
	}

	logging.Info(ctx, "checkpoint created",
		slog.String("checkpoint", manifest.Name),
		slog.String("reason", decision.Reason),
		slog.Int("files", manifest.FileCount))
	return nil
}

// saveSessionState records the current session for status/back. Best-effort.
func saveSessionState(env *cliEnv, agentKind, sessionID, transcriptPath string) {
	if sessionID == "" {
		return
	}
	_ = hookengine.SaveSession(env.Store.Dir, hookengine.SessionState{
		AgentKind:      agentKind,
		SessionID:      sessionID,
		TranscriptPath: transcriptPath,
	})
}

// publishEnv appends the engine's view of the session to an agent-provided
// environment file, when one is supplied. Append-only by contract.
func publishEnv(env *cliEnv, agentKind, transcriptPath string) {
	envFile := os.Getenv(envAgentEnvFile)
	if envFile == "" {
		return
	}
	vars := map[string]string{
		"AGENT_KIND":   agentKind,
		"PROJECT_ROOT": env.Root,
	}
	if transcriptPath != "" {
		vars["TRANSCRIPT_PATH"] = transcriptPath
	}
	if err := paths.AppendEnvFile(envFile, vars); err != nil {
		logging.Debug(context.Background(), "env file publish failed", "error", err.Error())
	}
}
