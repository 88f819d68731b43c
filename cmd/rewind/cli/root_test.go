package cli

import (
	"bytes"
	"testing"
)

func TestNewRootCmd_RegistersCommands(t *testing.T) {
	cmd := NewRootCmd()

	want := []string{"save", "list", "restore", "undo", "back", "status", "validate", "cleanup", "init", "config", "hooks", "version"}
	registered := make(map[string]bool)
	for _, c := range cmd.Commands() {
		registered[c.Name()] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered", name)
		}
	}
}

func TestRootCmd_ShowsHelpByDefault(t *testing.T) {
	cmd := NewRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !bytes.Contains(out.Bytes(), []byte("rewind")) {
		t.Error("help output missing command name")
	}
}
