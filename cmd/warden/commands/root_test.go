package commands

import (
	"errors"
	"fmt"
	"testing"
)

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"plain error", errors.New("boom"), 1},
		{"exit error carries its code", &exitError{code: ExitChanges, message: "changes"}, ExitChanges},
		{"wrapped exit error", fmt.Errorf("plan: %w", &exitError{code: ExitChanges, message: "changes"}), ExitChanges},
		{"exit error with custom code", &exitError{code: 7, message: "seven"}, 7},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRootCommandWiring(t *testing.T) {
	root := newRootCommand("1.2.3", "abc", "today")

	want := map[string]bool{
		"init": false, "validate": false, "plan": false, "apply": false,
		"eval": false, "pipeline": false, "state": false,
	}
	for _, cmd := range root.Commands() {
		if _, ok := want[cmd.Name()]; ok {
			want[cmd.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("subcommand %q is not registered", name)
		}
	}

	if root.Version != "1.2.3 (commit: abc, built: today)" {
		t.Errorf("Version = %q", root.Version)
	}
	if !root.SilenceErrors {
		t.Error("root command should silence cobra's own error reporting")
	}
}
