package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
)

type Config struct {
	LogLevel string         `json:"log_level" yaml:"log_level"`
	Alerts   AlertsConfig   `json:"alerts" yaml:"alerts"`
	Presence PresenceConfig `json:"presence" yaml:"presence"`
	Ingest   IngestConfig   `json:"ingest" yaml:"ingest"`
	Analyze  AnalyzeConfig  `json:"analyze" yaml:"analyze"`
	Dispatch DispatchConfig `json:"dispatch" yaml:"dispatch"`
	API      APIConfig      `json:"api" yaml:"api"`
	Storage  StorageConfig  `json:"storage" yaml:"storage"`
}

type AlertsConfig struct {
	EnableRealtime    bool          `json:"enable_realtime" yaml:"enable_realtime"`
	EnableEmail       bool          `json:"enable_email" yaml:"enable_email"`
	EnableBrowser     bool          `json:"enable_browser" yaml:"enable_browser"`
	EmailAddress      string        `json:"email_address" yaml:"email_address"`
	Rules             []RuleConfig  `json:"rules" yaml:"rules"`
	AlertBufferLimit  int           `json:"alert_buffer_limit" yaml:"alert_buffer_limit"`
	NotificationLimit int           `json:"notification_limit" yaml:"notification_limit"`
	CounterMaxIdle    time.Duration `json:"counter_max_idle" yaml:"counter_max_idle"`
	RecheckInterval   time.Duration `json:"recheck_interval" yaml:"recheck_interval"`
	StatsInterval     time.Duration `json:"stats_interval" yaml:"stats_interval"`
}

type RuleConfig struct {
	ID                  string         `json:"id" yaml:"id"`
	Name                string         `json:"name" yaml:"name"`
	Type                string         `json:"type" yaml:"type"`
	Severity            string         `json:"severity" yaml:"severity"`
	Enabled             bool           `json:"enabled" yaml:"enabled"`
	Threshold           uint           `json:"threshold" yaml:"threshold"`
	TimeWindowMinutes   uint           `json:"time_window_minutes" yaml:"time_window_minutes"`
	NotificationMethods []string       `json:"notification_methods" yaml:"notification_methods"`
	Conditions          map[string]any `json:"conditions" yaml:"conditions"`
}

type PresenceConfig struct {
	AwayAfter        time.Duration `json:"away_after" yaml:"away_after"`
	HeartbeatTimeout time.Duration `json:"heartbeat_timeout" yaml:"heartbeat_timeout"`
	SweepInterval    time.Duration `json:"sweep_interval" yaml:"sweep_interval"`
}

type IngestConfig struct {
	ChannelBuffer int         `json:"channel_buffer" yaml:"channel_buffer"`
	Kafka         KafkaConfig `json:"kafka" yaml:"kafka"`
	REST          RESTConfig  `json:"rest" yaml:"rest"`
}

type KafkaConfig struct {
	Enabled     bool     `json:"enabled" yaml:"enabled"`
	Brokers     []string `json:"brokers" yaml:"brokers"`
	EventsTopic string   `json:"events_topic" yaml:"events_topic"`
	AuditTopic  string   `json:"audit_topic" yaml:"audit_topic"`
	GroupID     string   `json:"group_id" yaml:"group_id"`
}

type RESTConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type AnalyzeConfig struct {
	RateThreshold uint          `json:"rate_threshold" yaml:"rate_threshold"`
	RateWindow    time.Duration `json:"rate_window" yaml:"rate_window"`
	MaxBodyBytes  int           `json:"max_body_bytes" yaml:"max_body_bytes"`
}

type DispatchConfig struct {
	EmailOutbox EmailOutboxConfig `json:"email_outbox" yaml:"email_outbox"`
}

type EmailOutboxConfig struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Brokers []string `json:"brokers" yaml:"brokers"`
	Topic   string   `json:"topic" yaml:"topic"`
}

type APIConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Addr    string `json:"addr" yaml:"addr"`
}

type StorageConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Driver  string `json:"driver" yaml:"driver"`
	DSN     string `json:"dsn" yaml:"dsn"`
}

func DefaultConfig() *Config {
	return &Config{
		LogLevel: "info",
		Alerts: AlertsConfig{
			EnableRealtime:    true,
			EnableEmail:       false,
			EnableBrowser:     false,
			AlertBufferLimit:  20,
			NotificationLimit: 50,
			CounterMaxIdle:    24 * time.Hour,
			RecheckInterval:   10 * time.Second,
			StatsInterval:     30 * time.Second,
		},
		Presence: PresenceConfig{
			AwayAfter:        5 * time.Minute,
			HeartbeatTimeout: 90 * time.Second,
			SweepInterval:    15 * time.Second,
		},
		Ingest: IngestConfig{
			ChannelBuffer: 10000,
			Kafka: KafkaConfig{
				Enabled:     false,
				EventsTopic: "security-events",
				AuditTopic:  "audit-log",
				GroupID:     "alertd",
			},
			REST: RESTConfig{Enabled: true, Addr: ":8080"},
		},
		Analyze: AnalyzeConfig{
			RateThreshold: 60,
			RateWindow:    time.Minute,
			MaxBodyBytes:  1 << 20,
		},
		Dispatch: DispatchConfig{
			EmailOutbox: EmailOutboxConfig{Enabled: false, Topic: "email-outbox"},
		},
		API:     APIConfig{Enabled: true, Addr: ":8081"},
		Storage: StorageConfig{Enabled: false, Driver: "sqlite", DSN: "file:alertd.db?_pragma=busy_timeout(5000)"},
	}
}

// AlertRules converts the configured rule set, preserving declaration order.
// Unknown notification methods are dropped per rule; unknown rule types
// default to security_event.
func (c *Config) AlertRules() []model.AlertRule {
	out := make([]model.AlertRule, 0, len(c.Alerts.Rules))
	for i, rc := range c.Alerts.Rules {
		out = append(out, rc.Rule(i))
	}
	return out
}

func (r RuleConfig) Rule(index int) model.AlertRule {
	id := strings.TrimSpace(r.ID)
	if id == "" {
		id = fmt.Sprintf("rule-%d", index+1)
	}
	ruleType := model.RuleSecurityEvent
	switch strings.ToLower(strings.TrimSpace(r.Type)) {
	case "role_change":
		ruleType = model.RuleRoleChange
	case "custom":
		ruleType = model.RuleCustom
	}
	methods := make([]model.NotificationMethod, 0, len(r.NotificationMethods))
	for _, m := range r.NotificationMethods {
		switch strings.ToLower(strings.TrimSpace(m)) {
		case "toast":
			methods = append(methods, model.MethodToast)
		case "browser":
			methods = append(methods, model.MethodBrowser)
		case "email":
			methods = append(methods, model.MethodEmail)
		}
	}
	return model.AlertRule{
		ID:                  id,
		Name:                r.Name,
		Type:                ruleType,
		Severity:            model.ParseSeverity(r.Severity),
		Enabled:             r.Enabled,
		Threshold:           r.Threshold,
		TimeWindowMinutes:   r.TimeWindowMinutes,
		NotificationMethods: methods,
		Conditions:          r.Conditions,
	}
}

func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	cfg := DefaultConfig()

	trimmed := strings.TrimSpace(string(content))
	if len(trimmed) == 0 {
		return nil, errors.New("config file is empty")
	}
	var decodeErr error
	if looksLikeJSON(trimmed) {
		decodeErr = json.Unmarshal([]byte(trimmed), cfg)
	} else {
		decodeErr = yaml.Unmarshal([]byte(trimmed), cfg)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func Save(path string, cfg *Config) error {
	if path == "" || cfg == nil {
		return errors.New("config path or config is empty")
	}
	var data []byte
	var err error
	ext := strings.ToLower(filepath.Ext(path))
	if ext == ".json" {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func looksLikeJSON(s string) bool {
	for _, ch := range s {
		if ch == '{' || ch == '[' {
			return true
		}
		if ch > ' ' {
			return false
		}
	}
	return false
}

func applyDefaults(cfg *Config) {
	if cfg.Alerts.AlertBufferLimit <= 0 {
		cfg.Alerts.AlertBufferLimit = 20
	}
	if cfg.Alerts.NotificationLimit <= 0 {
		cfg.Alerts.NotificationLimit = 50
	}
	if cfg.Alerts.CounterMaxIdle <= 0 {
		cfg.Alerts.CounterMaxIdle = 24 * time.Hour
	}
	if cfg.Alerts.RecheckInterval <= 0 {
		cfg.Alerts.RecheckInterval = 10 * time.Second
	}
	if cfg.Alerts.StatsInterval <= 0 {
		cfg.Alerts.StatsInterval = 30 * time.Second
	}
	if cfg.Presence.AwayAfter <= 0 {
		cfg.Presence.AwayAfter = 5 * time.Minute
	}
	if cfg.Presence.HeartbeatTimeout <= 0 {
		cfg.Presence.HeartbeatTimeout = 90 * time.Second
	}
	if cfg.Presence.SweepInterval <= 0 {
		cfg.Presence.SweepInterval = 15 * time.Second
	}
	if cfg.Ingest.ChannelBuffer <= 0 {
		cfg.Ingest.ChannelBuffer = 10000
	}
	if cfg.Analyze.RateThreshold == 0 {
		cfg.Analyze.RateThreshold = 60
	}
	if cfg.Analyze.RateWindow <= 0 {
		cfg.Analyze.RateWindow = time.Minute
	}
	if cfg.Analyze.MaxBodyBytes <= 0 {
		cfg.Analyze.MaxBodyBytes = 1 << 20
	}
	if cfg.Dispatch.EmailOutbox.Topic == "" {
		cfg.Dispatch.EmailOutbox.Topic = "email-outbox"
	}
}

func Validate(cfg *Config) error {
	if cfg.API.Enabled && cfg.API.Addr == "" {
		return errors.New("api.addr required when api.enabled is true")
	}
	if cfg.Ingest.REST.Enabled && cfg.Ingest.REST.Addr == "" {
		return errors.New("ingest.rest.addr required when ingest.rest.enabled is true")
	}
	if cfg.Ingest.Kafka.Enabled {
		if len(cfg.Ingest.Kafka.Brokers) == 0 || cfg.Ingest.Kafka.GroupID == "" {
			return errors.New("ingest.kafka requires brokers and group_id")
		}
		if cfg.Ingest.Kafka.EventsTopic == "" && cfg.Ingest.Kafka.AuditTopic == "" {
			return errors.New("ingest.kafka requires events_topic or audit_topic")
		}
	}
	if cfg.Dispatch.EmailOutbox.Enabled && len(cfg.Dispatch.EmailOutbox.Brokers) == 0 {
		return errors.New("dispatch.email_outbox requires brokers")
	}
	if cfg.Alerts.EnableEmail && cfg.Alerts.EmailAddress == "" {
		return errors.New("alerts.email_address required when alerts.enable_email is true")
	}
	for i, rc := range cfg.Alerts.Rules {
		if (rc.Threshold > 0) != (rc.TimeWindowMinutes > 0) {
			return fmt.Errorf("alerts.rules[%d]: threshold and time_window_minutes must be set together", i)
		}
	}
	return nil
}

type Manager struct {
	path    string
	cfg     atomic.Value
	modTime time.Time
}

func NewManager(path string) (*Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	m := &Manager{path: path}
	m.cfg.Store(cfg)
	info, err := os.Stat(path)
	if err == nil {
		m.modTime = info.ModTime()
	}
	return m, nil
}

// NewStaticManager wraps an in-memory config with no backing file; Reload and
// Update are not available.
func NewStaticManager(cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	applyDefaults(cfg)
	m := &Manager{}
	m.cfg.Store(cfg)
	return m
}

func (m *Manager) Get() *Config {
	if v := m.cfg.Load(); v != nil {
		return v.(*Config)
	}
	return DefaultConfig()
}

func (m *Manager) Path() string {
	return m.path
}

func (m *Manager) Reload() (*Config, error) {
	if m.path == "" {
		return nil, errors.New("no config file to reload")
	}
	cfg, err := Load(m.path)
	if err != nil {
		return nil, err
	}
	m.cfg.Store(cfg)
	if info, err := os.Stat(m.path); err == nil {
		m.modTime = info.ModTime()
	}
	return cfg, nil
}

func (m *Manager) Update(cfg *Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if m.path != "" {
		if err := Save(m.path, cfg); err != nil {
			return err
		}
	}
	m.cfg.Store(cfg)
	if m.path != "" {
		if info, err := os.Stat(m.path); err == nil {
			m.modTime = info.ModTime()
		}
	}
	return nil
}

func (m *Manager) NeedsReload() (bool, error) {
	if m.path == "" {
		return false, nil
	}
	info, err := os.Stat(m.path)
	if err != nil {
		return false, err
	}
	return info.ModTime().After(m.modTime), nil
}

func (m *Manager) Watch(interval time.Duration, onReload func(*Config), onError func(error), stop <-chan struct{}) {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			needs, err := m.NeedsReload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if !needs {
				continue
			}
			cfg, err := m.Reload()
			if err != nil {
				if onError != nil {
					onError(err)
				}
				continue
			}
			if onReload != nil {
				onReload(cfg)
			}
		case <-stop:
			return
		}
	}
}

func ResolvePath(path string) string {
	if path == "" {
		return path
	}
	if filepath.IsAbs(path) {
		return path
	}
	cwd, err := os.Getwd()
	if err != nil {
		return path
	}
	return filepath.Join(cwd, path)
}
