package dispatch

import (
	"log/slog"
	"time"
)

// BrowserNotification is the payload forwarded to the client-side
// notification surface. Critical alerts require explicit dismissal and are
// exempt from a global mute.
type BrowserNotification struct {
	Title              string         `json:"title"`
	Body               string         `json:"body"`
	Tag                string         `json:"tag"`
	RequireInteraction bool           `json:"require_interaction"`
	MuteExempt         bool           `json:"mute_exempt"`
	AutoCloseAfter     time.Duration  `json:"auto_close_after,omitempty"`
	Data               map[string]any `json:"data,omitempty"`
}

type Notifier interface {
	PermissionGranted() bool
	Send(n BrowserNotification) error
}

// LogNotifier stands in for the device notification surface when the engine
// runs headless; permission mirrors the config flag.
type LogNotifier struct {
	Permission bool
	Logger     *slog.Logger
}

func (n *LogNotifier) PermissionGranted() bool { return n.Permission }

func (n *LogNotifier) Send(notification BrowserNotification) error {
	if n.Logger != nil {
		n.Logger.Info("browser notification",
			"title", notification.Title,
			"tag", notification.Tag,
			"require_interaction", notification.RequireInteraction,
		)
	}
	return nil
}
