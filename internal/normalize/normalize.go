package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
)

// NormalizationError marks an inbound record the normalizer could not map.
// Callers log it and drop the record; it never crosses the engine boundary.
type NormalizationError struct {
	Source string
	Err    error
}

func (e *NormalizationError) Error() string {
	return fmt.Sprintf("normalize %s: %v", e.Source, e.Err)
}

func (e *NormalizationError) Unwrap() error { return e.Err }

func normErr(source string, format string, args ...any) error {
	return &NormalizationError{Source: source, Err: fmt.Errorf(format, args...)}
}

// ChangeRecord is a row-level change notification as delivered by the
// push subscription: table name, operation, and the new row.
type ChangeRecord struct {
	Table     string         `json:"table"`
	Operation string         `json:"operation"`
	Row       map[string]any `json:"record"`
}

// AuditRecord is an audit-log insert (role grants, moderation actions).
type AuditRecord struct {
	Row map[string]any `json:"record"`
}

var securityTables = map[string]struct{}{
	"security_events": {},
	"security_event":  {},
}

var auditTables = map[string]struct{}{
	"admin_audit_log": {},
	"role_audit_log":  {},
	"audit_log":       {},
	"user_roles":      {},
}

func FromChange(rec ChangeRecord) (model.SecurityEvent, error) {
	table := strings.ToLower(strings.TrimSpace(rec.Table))
	op := strings.ToUpper(strings.TrimSpace(rec.Operation))
	if rec.Row == nil {
		return model.SecurityEvent{}, normErr("change", "missing record payload for table %q", rec.Table)
	}
	if op != "" && op != "INSERT" && op != "UPDATE" {
		return model.SecurityEvent{}, normErr("change", "unsupported operation %q", rec.Operation)
	}
	if _, ok := auditTables[table]; ok {
		return FromAudit(AuditRecord{Row: rec.Row})
	}
	if _, ok := securityTables[table]; !ok && table != "" {
		return model.SecurityEvent{}, normErr("change", "unknown table %q", rec.Table)
	}

	eventType := stringField(rec.Row, "event_type", "eventtype", "type")
	if eventType == "" {
		return model.SecurityEvent{}, normErr("change", "record has no event type")
	}
	ev := model.SecurityEvent{
		ID:          idField(rec.Row),
		EventType:   eventType,
		Severity:    model.ParseSeverity(stringField(rec.Row, "severity")),
		Source:      model.SourceChange,
		Description: stringField(rec.Row, "description", "message", "details"),
		Metadata:    mapField(rec.Row, "metadata", "details_json"),
		IPAddress:   stringField(rec.Row, "ip_address", "ip"),
		UserAgent:   stringField(rec.Row, "user_agent"),
		URL:         stringField(rec.Row, "url", "path"),
		CreatedAt:   timeField(rec.Row, "created_at", "timestamp", "ts"),
	}
	return ev, nil
}

func FromAudit(rec AuditRecord) (model.SecurityEvent, error) {
	if rec.Row == nil {
		return model.SecurityEvent{}, normErr("audit", "missing record payload")
	}
	action := stringField(rec.Row, "action", "event", "operation")
	if action == "" {
		return model.SecurityEvent{}, normErr("audit", "record has no action")
	}
	target := stringField(rec.Row, "target_user_id", "target_id", "user_id")
	actor := stringField(rec.Row, "actor_id", "admin_id", "performed_by")

	severity := model.SeverityMedium
	if strings.Contains(strings.ToLower(action), "role") || strings.Contains(strings.ToLower(action), "grant") {
		severity = model.SeverityHigh
	}
	desc := action
	if target != "" {
		desc = fmt.Sprintf("%s on user %s", action, target)
	}
	meta := mapField(rec.Row, "metadata", "details")
	if meta == nil {
		meta = map[string]any{}
	}
	if actor != "" {
		meta["actor_id"] = actor
	}
	if target != "" {
		meta["target_user_id"] = target
	}
	return model.SecurityEvent{
		ID:          idField(rec.Row),
		EventType:   "role_change",
		Severity:    severity,
		Source:      model.SourceAudit,
		Description: desc,
		Metadata:    meta,
		IPAddress:   stringField(rec.Row, "ip_address", "ip"),
		UserAgent:   stringField(rec.Row, "user_agent"),
		CreatedAt:   timeField(rec.Row, "created_at", "timestamp", "ts"),
	}, nil
}

// FromRequest synthesizes an event from a client request the analyzer
// flagged. Findings come from analyze.Analyze; an empty list is an error
// since clean requests never become events.
func FromRequest(desc model.RequestDescriptor, findings []string) (model.SecurityEvent, error) {
	if len(findings) == 0 {
		return model.SecurityEvent{}, normErr("request", "no findings for %s %s", desc.Method, desc.URL)
	}
	severity := model.SeverityMedium
	for _, f := range findings {
		if f == "sql_injection" || f == "script_injection" {
			severity = model.SeverityHigh
		}
	}
	return model.SecurityEvent{
		ID:          uuid.NewString(),
		EventType:   "suspicious_request",
		Severity:    severity,
		Source:      model.SourceRequest,
		Description: fmt.Sprintf("suspicious %s request: %s", desc.Method, strings.Join(findings, ", ")),
		Metadata: map[string]any{
			"findings": findings,
			"method":   desc.Method,
			"url":      desc.URL,
		},
		IPAddress: desc.IP,
		UserAgent: desc.UserAgent,
		URL:       desc.URL,
		CreatedAt: time.Now().UTC(),
	}, nil
}

func idField(row map[string]any) string {
	if id := stringField(row, "id", "event_id", "uuid"); id != "" {
		return id
	}
	return uuid.NewString()
}

func stringField(row map[string]any, keys ...string) string {
	for _, key := range keys {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			return strconv.Itoa(val)
		case bool:
			return strconv.FormatBool(val)
		}
	}
	return ""
}

func mapField(row map[string]any, keys ...string) map[string]any {
	for _, key := range keys {
		if m, ok := row[key].(map[string]any); ok && len(m) > 0 {
			return m
		}
	}
	return nil
}

func timeField(row map[string]any, keys ...string) time.Time {
	for _, key := range keys {
		v, ok := row[key]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if ts, err := ParseTimestamp(val); err == nil {
				return ts
			}
		case float64:
			return time.Unix(int64(val), 0).UTC()
		}
	}
	return time.Now().UTC()
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.000",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04:05.000",
}

func ParseTimestamp(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, errors.New("empty timestamp")
	}
	if isNumeric(value) {
		if ts, err := parseUnix(value); err == nil {
			return ts, nil
		}
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unsupported timestamp format: %q", value)
}

func isNumeric(value string) bool {
	for _, ch := range value {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return len(value) > 0
}

func parseUnix(value string) (time.Time, error) {
	if len(value) >= 13 {
		ms, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return time.Time{}, err
		}
		return time.Unix(0, ms*int64(time.Millisecond)).UTC(), nil
	}
	sec, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(sec, 0).UTC(), nil
}
