// Package validation provides input validation functions for the Rewind CLI.
// This package has no dependencies to avoid import cycles.
package validation

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// pathSafeRegex matches alphanumeric characters, underscores, and hyphens only.
// Used to validate IDs that will be used in file paths.
var pathSafeRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// checkpointNameRegex additionally allows dots, which appear in ISO timestamps
// embedded in checkpoint names.
var checkpointNameRegex = regexp.MustCompile(`^[a-zA-Z0-9._-]+$`)

// ValidateSessionID validates that a session ID doesn't contain path separators.
// This prevents path traversal attacks when session IDs are used in file paths.
func ValidateSessionID(id string) error {
	if id == "" {
		return errors.New("session ID cannot be empty")
	}
	if strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("invalid session ID %q: contains path separators", id)
	}
	return nil
}

// ValidateCheckpointName validates that a checkpoint name is safe for use as a
// directory name under the snapshot store.
func ValidateCheckpointName(name string) error {
	if name == "" {
		return errors.New("checkpoint name cannot be empty")
	}
	if strings.HasPrefix(name, ".") {
		return fmt.Errorf("invalid checkpoint name %q: cannot start with a dot", name)
	}
	if !checkpointNameRegex.MatchString(name) {
		return fmt.Errorf("invalid checkpoint name %q: must be alphanumeric with dots/underscores/hyphens only", name)
	}
	return nil
}

// ValidateAgentKind validates that an agent kind is safe for use in file paths.
func ValidateAgentKind(kind string) error {
	if kind == "" {
		return errors.New("agent kind cannot be empty")
	}
	if !pathSafeRegex.MatchString(kind) {
		return fmt.Errorf("invalid agent kind %q: must be alphanumeric with underscores/hyphens only", kind)
	}
	return nil
}
