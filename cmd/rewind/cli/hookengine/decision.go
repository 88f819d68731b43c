package hookengine

import (
	"regexp"
	"time"

	"github.com/rewindio/cli/cmd/rewind/cli/config"
)

// Decision is the outcome of evaluating a hook event.
type Decision struct {
	ShouldCreate        bool
	Reason              string
	Force               bool
	UpdateDebounceTimer bool
}

// alwaysSignificantTools create or modify files and always warrant a
// checkpoint.
var alwaysSignificantTools = map[string]bool{
	"Write":        true,
	"Edit":         true,
	"MultiEdit":    true,
	"NotebookEdit": true,
}

// shellTools run arbitrary commands; their significance depends on the
// destructive-pattern set.
var shellTools = map[string]bool{
	"Bash":  true,
	"Shell": true,
}

// Engine evaluates hook events against the configured policy.
type Engine struct {
	Config *config.Config

	destructive []*regexp.Regexp
}

// NewEngine compiles the destructive-pattern set from cfg. Invalid patterns
// are skipped.
func NewEngine(cfg *config.Config) *Engine {
	e := &Engine{Config: cfg}
	for _, p := range cfg.DestructivePatterns {
		if re, err := regexp.Compile(p); err == nil {
			e.destructive = append(e.destructive, re)
		}
	}
	return e
}

// Decide evaluates the rules in order:
//
//  1. Structural events always create, forced, without touching the
//     debounce timer.
//  2. Debounce: a checkpoint younger than minIntervalSeconds suppresses.
//  3. Change detection: an unchanged tree signature suppresses.
//  4. Significance: file-modification tools pass unconditionally; shell
//     commands pass only when they match a destructive pattern; any other
//     tool passes by default.
//
// lastCheckpointAt is the zero time when the session has no debounce state.
func (e *Engine) Decide(p *Payload, now, lastCheckpointAt time.Time, currentSignature, latestSignature string) Decision {
	if p.IsStructural() {
		return Decision{ShouldCreate: true, Reason: "structural event", Force: true}
	}

	if !lastCheckpointAt.IsZero() && e.Config.MinIntervalSeconds > 0 {
		if now.Sub(lastCheckpointAt) < time.Duration(e.Config.MinIntervalSeconds)*time.Second {
			return Decision{Reason: "anti-spam"}
		}
	}

	if latestSignature != "" && currentSignature == latestSignature {
		return Decision{Reason: "no changes"}
	}

	if p.ToolName != "" && !alwaysSignificantTools[p.ToolName] && shellTools[p.ToolName] {
		if !e.isDestructive(p.Command()) {
			return Decision{Reason: "not significant"}
		}
	}

	return Decision{ShouldCreate: true, Reason: p.Description(), UpdateDebounceTimer: true}
}

// isDestructive reports whether a shell command matches the configured
// destructive-pattern set.
func (e *Engine) isDestructive(command string) bool {
	if command == "" {
		return false
	}
	for _, re := range e.destructive {
		if re.MatchString(command) {
			return true
		}
	}
	return false
}
