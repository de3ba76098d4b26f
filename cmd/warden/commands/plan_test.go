package commands

import (
	"testing"

	"github.com/policywarden/warden/pkg/reconcile"
)

func TestRenderValue(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want string
	}{
		{"nil reads as none", nil, "(none)"},
		{"strings are quoted", "eastus", `"eastus"`},
		{"numbers print bare", 3, "3"},
		{"booleans print bare", true, "true"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderValue(tt.in); got != tt.want {
				t.Errorf("renderValue(%v) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestActionSymbols(t *testing.T) {
	for action, want := range map[reconcile.Action]string{
		reconcile.ActionCreate: "+",
		reconcile.ActionUpdate: "~",
		reconcile.ActionDelete: "-",
	} {
		if got := actionSymbols[action]; got != want {
			t.Errorf("symbol for %s = %q, want %q", action, got, want)
		}
	}
}
