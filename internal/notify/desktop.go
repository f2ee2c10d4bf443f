package notify

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// SendTimeout bounds one notification command.
var SendTimeout = 5 * time.Second

// Send shows a desktop notification: osascript on macOS, notify-send elsewhere.
func Send(title, message string) error {
	name, args := desktopCommand(runtime.GOOS, title, message)
	if name == "" {
		return fmt.Errorf("desktop notifications unsupported on %s", runtime.GOOS)
	}
	ctx, cancel := context.WithTimeout(context.Background(), SendTimeout)
	defer cancel()
	cmd := exec.CommandContext(ctx, name, args...)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

func desktopCommand(goos, title, message string) (string, []string) {
	switch goos {
	case "darwin":
		script := fmt.Sprintf(
			`display notification %q with title %q sound name "default"`,
			escapeAppleScript(message), escapeAppleScript(title),
		)
		return "osascript", []string{"-e", script}
	case "linux", "freebsd", "openbsd":
		return "notify-send", []string{"--app-name=agentsync", title, message}
	}
	return "", nil
}

func escapeAppleScript(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
