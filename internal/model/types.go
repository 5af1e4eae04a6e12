package model

import (
	"strings"
	"time"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

func ParseSeverity(s string) Severity {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical
	case "high":
		return SeverityHigh
	case "medium":
		return SeverityMedium
	default:
		return SeverityLow
	}
}

type EventSource string

const (
	SourceChange  EventSource = "db_change"
	SourceAudit   EventSource = "audit"
	SourceRequest EventSource = "request"
	SourceTest    EventSource = "test"
)

type SecurityEvent struct {
	ID          string         `json:"id"`
	EventType   string         `json:"event_type"`
	Severity    Severity       `json:"severity"`
	Source      EventSource    `json:"source"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	IPAddress   string         `json:"ip_address,omitempty"`
	UserAgent   string         `json:"user_agent,omitempty"`
	URL         string         `json:"url,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

func (e SecurityEvent) IsTest() bool {
	if e.Metadata == nil {
		return false
	}
	v, ok := e.Metadata["test"]
	if !ok {
		return false
	}
	b, ok := v.(bool)
	return ok && b
}

type RuleType string

const (
	RuleSecurityEvent RuleType = "security_event"
	RuleRoleChange    RuleType = "role_change"
	RuleCustom        RuleType = "custom"
)

type NotificationMethod string

const (
	MethodToast   NotificationMethod = "toast"
	MethodBrowser NotificationMethod = "browser"
	MethodEmail   NotificationMethod = "email"
)

type AlertRule struct {
	ID                  string               `json:"id"`
	Name                string               `json:"name"`
	Type                RuleType             `json:"type"`
	Severity            Severity             `json:"severity"`
	Enabled             bool                 `json:"enabled"`
	Threshold           uint                 `json:"threshold,omitempty"`
	TimeWindowMinutes   uint                 `json:"time_window_minutes,omitempty"`
	NotificationMethods []NotificationMethod `json:"notification_methods"`
	Conditions          map[string]any       `json:"conditions,omitempty"`
}

func (r AlertRule) HasThreshold() bool {
	return r.Threshold > 0 && r.TimeWindowMinutes > 0
}

func (r AlertRule) Window() time.Duration {
	return time.Duration(r.TimeWindowMinutes) * time.Minute
}

type AlertFired struct {
	Rule    AlertRule     `json:"rule"`
	Event   SecurityEvent `json:"event"`
	FiredAt time.Time     `json:"fired_at"`
}
