package model

import "time"

type ChannelOutcome string

const (
	OutcomeDelivered ChannelOutcome = "delivered"
	OutcomeSkipped   ChannelOutcome = "skipped"
	OutcomeFailed    ChannelOutcome = "failed"
)

type ChannelResult struct {
	Method  NotificationMethod `json:"method"`
	Outcome ChannelOutcome     `json:"outcome"`
	Reason  string             `json:"reason,omitempty"`
}

type DispatchReport struct {
	RuleID  string          `json:"rule_id"`
	EventID string          `json:"event_id"`
	FiredAt time.Time       `json:"fired_at"`
	Results []ChannelResult `json:"results"`
}

func (r DispatchReport) Result(m NotificationMethod) (ChannelResult, bool) {
	for _, res := range r.Results {
		if res.Method == m {
			return res, true
		}
	}
	return ChannelResult{}, false
}

func (r DispatchReport) Delivered(m NotificationMethod) bool {
	res, ok := r.Result(m)
	return ok && res.Outcome == OutcomeDelivered
}

type AlertKind string

const (
	AlertCritical AlertKind = "critical"
	AlertWarning  AlertKind = "warning"
	AlertInfo     AlertKind = "info"
)

type Alert struct {
	ID        string         `json:"id"`
	Kind      AlertKind      `json:"type"`
	Message   string         `json:"message"`
	Timestamp time.Time      `json:"timestamp"`
	Sticky    bool           `json:"sticky"`
	Data      map[string]any `json:"data,omitempty"`
}

type NotificationType string

const (
	NotificationMessage       NotificationType = "message"
	NotificationAdApproved    NotificationType = "ad_approved"
	NotificationAdRejected    NotificationType = "ad_rejected"
	NotificationSecurityAlert NotificationType = "security_alert"
	NotificationSystem        NotificationType = "system"
)

type NotificationData struct {
	ID        string           `json:"id"`
	Type      NotificationType `json:"type"`
	Title     string           `json:"title"`
	Body      string           `json:"body"`
	Data      map[string]any   `json:"data,omitempty"`
	Read      bool             `json:"read"`
	Timestamp time.Time        `json:"timestamp"`
}

type RequestDescriptor struct {
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	UserAgent string            `json:"user_agent,omitempty"`
	IP        string            `json:"ip,omitempty"`
}
