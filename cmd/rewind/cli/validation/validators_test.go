package validation

import "testing"

func TestValidateSessionID(t *testing.T) {
	valid := []string{"abc-123", "f47ac10b-58cc-4372-a567-0e02b2c3d479", "session_1"}
	for _, id := range valid {
		if err := ValidateSessionID(id); err != nil {
			t.Errorf("ValidateSessionID(%q) = %v, want nil", id, err)
		}
	}

	invalid := []string{"", "a/b", `a\b`, "../escape"}
	for _, id := range invalid {
		if err := ValidateSessionID(id); err == nil {
			t.Errorf("ValidateSessionID(%q) = nil, want error", id)
		}
	}
}

func TestValidateCheckpointName(t *testing.T) {
	valid := []string{"first_2026-08-02T10-30-00Z", "rewind_backup_2026-01-01T00-00-00Z", "fix-bug_2026-08-02T10-30-00.5Z"}
	for _, name := range valid {
		if err := ValidateCheckpointName(name); err != nil {
			t.Errorf("ValidateCheckpointName(%q) = %v, want nil", name, err)
		}
	}

	invalid := []string{"", ".hidden", "a/b", "name with spaces"}
	for _, name := range invalid {
		if err := ValidateCheckpointName(name); err == nil {
			t.Errorf("ValidateCheckpointName(%q) = nil, want error", name)
		}
	}
}

func TestValidateAgentKind(t *testing.T) {
	if err := ValidateAgentKind("claude"); err != nil {
		t.Errorf("ValidateAgentKind(claude) = %v", err)
	}
	if err := ValidateAgentKind("../x"); err == nil {
		t.Error("path-unsafe agent kind must be rejected")
	}
	if err := ValidateAgentKind(""); err == nil {
		t.Error("empty agent kind must be rejected")
	}
}
