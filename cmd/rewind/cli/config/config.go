// Package config loads and merges the engine configuration from four sources
// in increasing priority: built-in defaults, tier profile, user-level config
// (~/.rewind/config.json), and project-level config (<storage>/code/config.json).
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/denisbrodbeck/machineid"
	"golang.org/x/mod/semver"

	"github.com/rewindio/cli/cmd/rewind/cli/jsonutil"
	"github.com/rewindio/cli/cmd/rewind/cli/logging"
	"github.com/rewindio/cli/cmd/rewind/cli/paths"
)

// ErrConfig indicates a malformed configuration file. The loader falls back
// to defaults and warns rather than failing the operation.
var ErrConfig = errors.New("malformed configuration")

// CurrentFormatVersion is the storage format version written at init and
// checked by validate. Bumped on incompatible layout changes.
const CurrentFormatVersion = "v1.0.0"

// Storage modes.
const (
	StorageModeProject = "project"
	StorageModeGlobal  = "global"
)

// machineIDAppID salts the hashed machine ID so it cannot be correlated with
// other applications' IDs.
const machineIDAppID = "rewind-cli"

// Config is the merged engine configuration.
type Config struct {
	// StorageMode selects snapshot placement: "project" (<root>/.rewind) or
	// "global" (~/.rewind/storage/<basename>_<hash>/).
	StorageMode string `json:"storageMode"`

	// Tier names the active debounce/significance preset.
	Tier string `json:"tier"`

	// MinIntervalSeconds is the per-session debounce window for hook-driven
	// checkpoints. Structural events bypass it.
	MinIntervalSeconds int `json:"minIntervalSeconds"`

	// MaxCheckpoints caps how many checkpoints pruning keeps.
	MaxCheckpoints int `json:"maxCheckpoints"`

	// MaxAgeDays drops checkpoints older than this many days (0 disables).
	MaxAgeDays int `json:"maxAgeDays"`

	// IgnorePatterns excludes paths from snapshots.
	IgnorePatterns []string `json:"ignorePatterns"`

	// ForceInclude overrides ignore matches.
	ForceInclude []string `json:"forceInclude"`

	// DestructivePatterns are regular expressions matched against shell
	// commands to decide tool significance.
	DestructivePatterns []string `json:"destructivePatterns"`

	// LogLevel sets logging verbosity (debug, info, warn, error).
	// Overridden by the REWIND_LOG_LEVEL environment variable.
	LogLevel string `json:"logLevel,omitempty"`

	// MachineID is the hashed ID of the machine that initialized the store.
	// Snapshots are tied to absolute paths; validate warns when this differs
	// from the current machine.
	MachineID string `json:"machineId,omitempty"`

	// FormatVersion is the storage format version of the store.
	FormatVersion string `json:"formatVersion,omitempty"`
}

// Tier is a named preset of debounce/significance parameters.
type Tier struct {
	MinIntervalSeconds int
	MaxCheckpoints     int
	MaxAgeDays         int
}

// Built-in tiers.
var tiers = map[string]Tier{
	"minimal":    {MinIntervalSeconds: 300, MaxCheckpoints: 20, MaxAgeDays: 7},
	"balanced":   {MinIntervalSeconds: 60, MaxCheckpoints: 50, MaxAgeDays: 14},
	"aggressive": {MinIntervalSeconds: 10, MaxCheckpoints: 100, MaxAgeDays: 30},
}

// TierNames returns the built-in tier names in a stable order.
func TierNames() []string {
	return []string{"minimal", "balanced", "aggressive"}
}

// defaultIgnorePatterns are always part of the merged ignore set.
var defaultIgnorePatterns = []string{
	".git/",
	".rewind/",
	"node_modules/",
	"dist/",
	"build/",
	"out/",
	"target/",
	"__pycache__/",
	".venv/",
	"venv/",
	".DS_Store",
	"*.pyc",
	"*.swp",
	"*.tmp",
}

// defaultDestructivePatterns mark shell commands that always warrant a
// checkpoint before they run.
var defaultDestructivePatterns = []string{
	`rm\s+(-\w+\s+)*-\w*[rf]`,
	`git\s+reset\s+--hard`,
	`git\s+clean`,
	`git\s+checkout\s+--?\s`,
	`find\s+.*-delete`,
	`truncate\s`,
	`dd\s+if=`,
}

// Default returns the built-in default configuration (balanced tier).
func Default() *Config {
	cfg := &Config{
		StorageMode:         StorageModeProject,
		Tier:                "balanced",
		IgnorePatterns:      append([]string(nil), defaultIgnorePatterns...),
		ForceInclude:        []string{},
		DestructivePatterns: append([]string(nil), defaultDestructivePatterns...),
		FormatVersion:       CurrentFormatVersion,
	}
	applyTier(cfg, "balanced")
	return cfg
}

// applyTier overlays a tier preset onto cfg. Unknown tiers are left alone.
func applyTier(cfg *Config, name string) {
	t, ok := tiers[name]
	if !ok {
		return
	}
	cfg.Tier = name
	cfg.MinIntervalSeconds = t.MinIntervalSeconds
	cfg.MaxCheckpoints = t.MaxCheckpoints
	cfg.MaxAgeDays = t.MaxAgeDays
}

// Load merges defaults, tier, user config, and project config for root.
// Malformed files degrade to the sources that did parse, with a warning.
func Load(root string) *Config {
	cfg := Default()

	// User-level config first: it may select the tier and the storage mode
	// that decides where the project config lives.
	if userFile, err := paths.UserConfigFile(); err == nil {
		mergeFile(cfg, userFile)
	}

	// Project config: project-local placement wins when present, otherwise
	// the mode selected so far decides where to look.
	localStorage, _ := paths.StorageDir(root, false)
	localFile := paths.ConfigFile(localStorage)
	if _, err := os.Stat(localFile); err == nil {
		mergeFile(cfg, localFile)
		return cfg
	}
	if cfg.StorageMode == StorageModeGlobal {
		if globalStorage, err := paths.StorageDir(root, true); err == nil {
			mergeFile(cfg, paths.ConfigFile(globalStorage))
		}
	}
	return cfg
}

// mergeFile overlays one config file onto cfg. Missing files are fine;
// malformed files warn and are skipped.
func mergeFile(cfg *Config, path string) {
	data, err := os.ReadFile(path) //nolint:gosec // path comes from known storage locations
	if err != nil {
		return
	}
	if err := overlay(cfg, data); err != nil {
		logging.Warn(context.Background(), "ignoring malformed config file",
			"path", path, "error", err.Error())
		fmt.Fprintf(os.Stderr, "[rewind] Warning: ignoring malformed config %s: %v\n", path, err)
	}
}

// overlay applies the fields present in data onto cfg. A "tier" field is
// applied before the explicit numeric fields so they can still override it.
func overlay(cfg *Config, data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("%w: %w", ErrConfig, err)
	}

	if tierRaw, ok := raw["tier"]; ok {
		var name string
		if err := json.Unmarshal(tierRaw, &name); err != nil {
			return fmt.Errorf("%w: tier: %w", ErrConfig, err)
		}
		if name != "" {
			if _, known := tiers[name]; !known {
				return fmt.Errorf("%w: unknown tier %q", ErrConfig, name)
			}
			applyTier(cfg, name)
		}
	}

	setString := func(key string, dst *string) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		var s string
		if err := json.Unmarshal(v, &s); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConfig, key, err)
		}
		if s != "" {
			*dst = s
		}
		return nil
	}
	setInt := func(key string, dst *int) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		var n int
		if err := json.Unmarshal(v, &n); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConfig, key, err)
		}
		*dst = n
		return nil
	}
	setList := func(key string, dst *[]string) error {
		v, ok := raw[key]
		if !ok {
			return nil
		}
		var l []string
		if err := json.Unmarshal(v, &l); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrConfig, key, err)
		}
		*dst = l
		return nil
	}

	if err := setString("storageMode", &cfg.StorageMode); err != nil {
		return err
	}
	if cfg.StorageMode != StorageModeProject && cfg.StorageMode != StorageModeGlobal {
		return fmt.Errorf("%w: unknown storageMode %q", ErrConfig, cfg.StorageMode)
	}
	if err := setInt("minIntervalSeconds", &cfg.MinIntervalSeconds); err != nil {
		return err
	}
	if err := setInt("maxCheckpoints", &cfg.MaxCheckpoints); err != nil {
		return err
	}
	if err := setInt("maxAgeDays", &cfg.MaxAgeDays); err != nil {
		return err
	}
	if err := setList("ignorePatterns", &cfg.IgnorePatterns); err != nil {
		return err
	}
	if err := setList("forceInclude", &cfg.ForceInclude); err != nil {
		return err
	}
	if err := setList("destructivePatterns", &cfg.DestructivePatterns); err != nil {
		return err
	}
	if err := setString("logLevel", &cfg.LogLevel); err != nil {
		return err
	}
	if err := setString("machineId", &cfg.MachineID); err != nil {
		return err
	}
	return setString("formatVersion", &cfg.FormatVersion)
}

// Save writes cfg to the project config file under storageDir.
func Save(storageDir string, cfg *Config) error {
	path := paths.ConfigFile(storageDir)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	return jsonutil.WriteFileAtomic(path, cfg)
}

// Set applies a "key value" pair from the config CLI command. Lists accept
// comma-separated values.
func Set(cfg *Config, key, value string) error {
	switch key {
	case "storageMode", "mode":
		if value != StorageModeProject && value != StorageModeGlobal {
			return fmt.Errorf("invalid storage mode %q (want %q or %q)", value, StorageModeProject, StorageModeGlobal)
		}
		cfg.StorageMode = value
	case "tier":
		if _, ok := tiers[value]; !ok {
			return fmt.Errorf("unknown tier %q (available: %s)", value, strings.Join(TierNames(), ", "))
		}
		applyTier(cfg, value)
	case "minIntervalSeconds", "maxCheckpoints", "maxAgeDays":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("invalid value %q for %s: want a non-negative integer", value, key)
		}
		switch key {
		case "minIntervalSeconds":
			cfg.MinIntervalSeconds = n
		case "maxCheckpoints":
			cfg.MaxCheckpoints = n
		case "maxAgeDays":
			cfg.MaxAgeDays = n
		}
	case "ignorePatterns":
		cfg.IgnorePatterns = splitList(value)
	case "forceInclude":
		cfg.ForceInclude = splitList(value)
	case "destructivePatterns":
		cfg.DestructivePatterns = splitList(value)
	case "logLevel":
		cfg.LogLevel = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// StampMachineID records the current machine's hashed ID in cfg.
// Best-effort: some containers have no readable machine ID.
func StampMachineID(cfg *Config) {
	id, err := machineid.ProtectedID(machineIDAppID)
	if err != nil {
		return
	}
	cfg.MachineID = id
}

// MachineMatches reports whether cfg was stamped on this machine.
// Returns true when no ID was recorded or none can be read here.
func MachineMatches(cfg *Config) bool {
	if cfg.MachineID == "" {
		return true
	}
	id, err := machineid.ProtectedID(machineIDAppID)
	if err != nil {
		return true
	}
	return id == cfg.MachineID
}

// CheckFormatVersion verifies the store's format version is readable by this
// build. Same major version is compatible.
func CheckFormatVersion(v string) error {
	if v == "" {
		return nil
	}
	if !semver.IsValid(v) {
		return fmt.Errorf("invalid storage format version %q", v)
	}
	if semver.Major(v) != semver.Major(CurrentFormatVersion) {
		return fmt.Errorf("storage format %s is incompatible with this build (%s)", v, CurrentFormatVersion)
	}
	return nil
}
