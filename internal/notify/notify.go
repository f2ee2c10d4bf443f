// Package notify delivers user-visible notifications outside the chat transcript.
package notify

import (
	"errors"

	"github.com/msageha/agentsync/internal/logging"
)

// Notification is one alert surfaced to the user.
type Notification struct {
	TaskID  string
	Level   string
	Title   string
	Message string
}

type Notifier interface {
	Notify(n Notification) error
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger *logging.Logger
}

func NewLogNotifier(logger *logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("notify")}
}

func (l *LogNotifier) Notify(n Notification) error {
	level := logging.LevelWarn
	if n.Level == "error" {
		level = logging.LevelError
	}
	l.logger.Logf(level, "alert task=%s level=%s title=%q message=%q", n.TaskID, n.Level, n.Title, n.Message)
	return nil
}

// Desktop sends notifications through the OS notification center.
type Desktop struct {
	send func(title, message string) error
}

func NewDesktop() *Desktop {
	return &Desktop{send: Send}
}

func (d *Desktop) Notify(n Notification) error {
	return d.send(n.Title, n.Message)
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(n Notification) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Func adapts a function to Notifier.
type Func func(n Notification) error

func (f Func) Notify(n Notification) error { return f(n) }
