package model

import "time"

type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"
)

func (s PresenceStatus) rank() int {
	switch s {
	case PresenceOnline:
		return 2
	case PresenceAway:
		return 1
	default:
		return 0
	}
}

// MaxStatus reduces two connection states under the precedence
// online > away > offline.
func MaxStatus(a, b PresenceStatus) PresenceStatus {
	if b.rank() > a.rank() {
		return b
	}
	return a
}

type UserPresence struct {
	UserID      string         `json:"user_id"`
	Status      PresenceStatus `json:"status"`
	LastSeen    time.Time      `json:"last_seen"`
	CurrentPage string         `json:"current_page,omitempty"`
}
