package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeConfig(t, "alertd.yaml", `
log_level: debug
alerts:
  enable_realtime: true
  rules:
    - id: failed-logins
      name: Repeated failed logins
      type: security_event
      severity: high
      enabled: true
      threshold: 5
      time_window_minutes: 1
      notification_methods: [toast, email, sms]
      conditions:
        event_type: failed_login
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level %q", cfg.LogLevel)
	}
	rules := cfg.AlertRules()
	if len(rules) != 1 {
		t.Fatalf("rules: %d", len(rules))
	}
	r := rules[0]
	if r.ID != "failed-logins" || r.Threshold != 5 || r.TimeWindowMinutes != 1 {
		t.Fatalf("rule: %+v", r)
	}
	// Unknown methods are dropped, known ones kept in order.
	if len(r.NotificationMethods) != 2 || r.NotificationMethods[0] != model.MethodToast || r.NotificationMethods[1] != model.MethodEmail {
		t.Fatalf("methods: %v", r.NotificationMethods)
	}
	if r.Severity != model.SeverityHigh {
		t.Fatalf("severity %s", r.Severity)
	}
}

func TestLoadJSON(t *testing.T) {
	path := writeConfig(t, "alertd.json", `{
  "log_level": "warn",
  "alerts": {"enable_realtime": true}
}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("log level %q", cfg.LogLevel)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "alertd.yaml", "log_level: info\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Alerts.AlertBufferLimit != 20 || cfg.Alerts.NotificationLimit != 50 {
		t.Fatalf("limits: %d/%d", cfg.Alerts.AlertBufferLimit, cfg.Alerts.NotificationLimit)
	}
	if cfg.Alerts.CounterMaxIdle != 24*time.Hour {
		t.Fatalf("counter max idle: %s", cfg.Alerts.CounterMaxIdle)
	}
	if cfg.Presence.AwayAfter != 5*time.Minute || cfg.Presence.HeartbeatTimeout != 90*time.Second {
		t.Fatalf("presence defaults: %+v", cfg.Presence)
	}
}

func TestValidateRejectsLoneThreshold(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alerts.Rules = []RuleConfig{{ID: "r1", Enabled: true, Threshold: 5}}
	if err := Validate(cfg); err == nil {
		t.Fatal("threshold without window accepted")
	}
	cfg.Alerts.Rules[0].TimeWindowMinutes = 1
	if err := Validate(cfg); err != nil {
		t.Fatalf("threshold with window rejected: %v", err)
	}
}

func TestValidateEmailRequiresAddress(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Alerts.EnableEmail = true
	if err := Validate(cfg); err == nil {
		t.Fatal("enable_email without address accepted")
	}
	cfg.Alerts.EmailAddress = "ops@example.com"
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid email config rejected: %v", err)
	}
}

func TestValidateKafkaRequiresBrokers(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Ingest.Kafka.Enabled = true
	if err := Validate(cfg); err == nil {
		t.Fatal("kafka without brokers accepted")
	}
	cfg.Ingest.Kafka.Brokers = []string{"localhost:9092"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("valid kafka config rejected: %v", err)
	}
}

func TestRuleConfigDefaultsIDAndType(t *testing.T) {
	r := RuleConfig{Name: "unnamed", Type: "mystery", Enabled: true}.Rule(2)
	if r.ID != "rule-3" {
		t.Fatalf("id %q", r.ID)
	}
	if r.Type != model.RuleSecurityEvent {
		t.Fatalf("type %s", r.Type)
	}
}

func TestManagerReloadPicksUpChanges(t *testing.T) {
	path := writeConfig(t, "alertd.yaml", "log_level: info\n")
	m, err := NewManager(path)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if m.Get().LogLevel != "info" {
		t.Fatalf("log level %q", m.Get().LogLevel)
	}
	if err := os.WriteFile(path, []byte("log_level: debug\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := m.Reload()
	if err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if cfg.LogLevel != "debug" || m.Get().LogLevel != "debug" {
		t.Fatalf("log level after reload: %q", m.Get().LogLevel)
	}
}

func TestStaticManagerServesInMemoryConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogLevel = "debug"
	m := NewStaticManager(cfg)
	if m.Get().LogLevel != "debug" {
		t.Fatalf("log level %q", m.Get().LogLevel)
	}
	if _, err := m.Reload(); err == nil {
		t.Fatal("reload without backing file accepted")
	}
}
