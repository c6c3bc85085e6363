package capture

import "github.com/yegors/voicenote/internal/apperrors"

// Level is the severity of a user notification
type Level string

const (
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a user-visible message, typically rendered as a toast
type Notification struct {
	Level   Level
	Title   string
	Message string
	Kind    apperrors.Kind // empty on success
}

// Notifier surfaces notifications to the user
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to Notifier
type NotifierFunc func(n Notification)

// Notify calls f(n)
func (f NotifierFunc) Notify(n Notification) { f(n) }

type nopNotifier struct{}

func (nopNotifier) Notify(Notification) {}
