package notify

import (
	"strings"
	"testing"
)

func TestEscapeAppleScript(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"hello", "hello"},
		{`say "hello"`, `say \"hello\"`},
		{`path\to\file`, `path\\to\\file`},
		{`"quote" and \backslash`, `\"quote\" and \\backslash`},
		{"", ""},
	}
	for _, tt := range tests {
		got := escapeAppleScript(tt.input)
		if got != tt.want {
			t.Errorf("escapeAppleScript(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestDesktopCommand(t *testing.T) {
	name, args := desktopCommand("darwin", "agentsync", "quota")
	if name != "osascript" || len(args) != 2 || args[0] != "-e" {
		t.Fatalf("darwin command = %s %v", name, args)
	}
	if !strings.Contains(args[1], "display notification") {
		t.Errorf("script = %q", args[1])
	}

	name, args = desktopCommand("linux", "agentsync", "quota")
	if name != "notify-send" || args[len(args)-1] != "quota" {
		t.Errorf("linux command = %s %v", name, args)
	}

	if name, _ := desktopCommand("plan9", "a", "b"); name != "" {
		t.Errorf("plan9 command = %q, want unsupported", name)
	}
}
