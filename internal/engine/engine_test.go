package engine

import (
	"context"
	"testing"
	"time"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/alerts"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/config"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/dispatch"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/rules"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/stats"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/window"
)

type testHarness struct {
	engine     *Engine
	counters   *window.Store
	alertStore *alerts.Store
	center     *alerts.Center
	stats      *stats.Store
}

func newHarness(t *testing.T, ruleSet []model.AlertRule, mutate func(*config.Config)) *testHarness {
	t.Helper()
	cfg := config.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	manager := config.NewStaticManager(cfg)

	counters := window.NewStore()
	statsStore := stats.NewStore()
	alertStore := alerts.NewStore(cfg.Alerts.AlertBufferLimit)
	center := alerts.NewCenter(cfg.Alerts.NotificationLimit)
	notifier := &dispatch.LogNotifier{Permission: cfg.Alerts.EnableBrowser}

	ruleEngine := rules.NewEngine(ruleSet, counters, nil)
	dispatcher := dispatch.New(manager, alertStore, center, notifier, nil, nil)
	eng := New(manager, ruleEngine, dispatcher, statsStore, nil, counters, notifier, nil)

	return &testHarness{
		engine:     eng,
		counters:   counters,
		alertStore: alertStore,
		center:     center,
		stats:      statsStore,
	}
}

func toastRule(id string, threshold uint) model.AlertRule {
	r := model.AlertRule{
		ID:                  id,
		Name:                "rule " + id,
		Type:                model.RuleSecurityEvent,
		Severity:            model.SeverityHigh,
		Enabled:             true,
		NotificationMethods: []model.NotificationMethod{model.MethodToast},
		Conditions:          map[string]any{"event_type": "failed_login"},
	}
	if threshold > 0 {
		r.Threshold = threshold
		r.TimeWindowMinutes = 1
	}
	return r
}

func loginEvent() model.SecurityEvent {
	return model.SecurityEvent{
		ID:        "ev-1",
		EventType: "failed_login",
		Severity:  model.SeverityMedium,
		Source:    model.SourceChange,
		CreatedAt: time.Now().UTC(),
	}
}

func TestProcessDispatchesOnThreshold(t *testing.T) {
	h := newHarness(t, []model.AlertRule{toastRule("r1", 3)}, nil)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if reports := h.engine.Process(ctx, loginEvent()); len(reports) != 0 {
			t.Fatalf("event %d produced %d reports", i+1, len(reports))
		}
	}
	reports := h.engine.Process(ctx, loginEvent())
	if len(reports) != 1 {
		t.Fatalf("third event produced %d reports, want 1", len(reports))
	}
	if !reports[0].Delivered(model.MethodToast) {
		t.Fatalf("report: %+v", reports[0])
	}
	if h.alertStore.Len() != 1 {
		t.Fatalf("in-app alerts: %d", h.alertStore.Len())
	}
	if h.center.UnreadCount() != 1 {
		t.Fatalf("unread notifications: %d", h.center.UnreadCount())
	}
	snap := h.stats.Snapshot()
	if snap.EventsTotal != 3 || snap.AlertsTotal != 1 {
		t.Fatalf("stats: events=%d alerts=%d", snap.EventsTotal, snap.AlertsTotal)
	}
}

func TestProcessSkippedWhenRealtimeDisabled(t *testing.T) {
	h := newHarness(t, []model.AlertRule{toastRule("r1", 0)}, func(cfg *config.Config) {
		cfg.Alerts.EnableRealtime = false
	})
	if reports := h.engine.Process(context.Background(), loginEvent()); reports != nil {
		t.Fatalf("reports: %+v", reports)
	}
	if h.stats.Snapshot().EventsTotal != 0 {
		t.Fatal("disabled engine recorded events")
	}
}

func TestTriggerTestAlertRoundTrip(t *testing.T) {
	h := newHarness(t, []model.AlertRule{toastRule("r1", 5)}, nil)

	report, ok := h.engine.TriggerTestAlert(context.Background())
	if !ok {
		t.Fatal("no report")
	}
	if report.RuleID != "r1" {
		t.Fatalf("rule id %q", report.RuleID)
	}
	if !report.Delivered(model.MethodToast) {
		t.Fatalf("report: %+v", report)
	}
	if h.counters.Len() != 0 {
		t.Fatalf("test alert polluted counters: %d entries", h.counters.Len())
	}
	list := h.alertStore.List(0)
	if len(list) != 1 {
		t.Fatalf("alerts: %d", len(list))
	}
	if list[0].Data["event_type"] != "test_alert" {
		t.Fatalf("alert data: %+v", list[0].Data)
	}
}

func TestTriggerTestAlertNeedsEnabledRule(t *testing.T) {
	disabled := toastRule("r1", 0)
	disabled.Enabled = false
	h := newHarness(t, []model.AlertRule{disabled}, nil)
	if _, ok := h.engine.TriggerTestAlert(context.Background()); ok {
		t.Fatal("test alert fired with no enabled rules")
	}
}

func TestUpdateConfigSwapsRuleSet(t *testing.T) {
	h := newHarness(t, []model.AlertRule{toastRule("r1", 0)}, nil)
	if h.engine.ActiveRuleCount() != 1 {
		t.Fatalf("active rules: %d", h.engine.ActiveRuleCount())
	}

	next := config.DefaultConfig()
	next.Alerts.Rules = []config.RuleConfig{
		{ID: "a", Enabled: true, NotificationMethods: []string{"toast"}},
		{ID: "b", Enabled: false},
	}
	h.engine.UpdateConfig(next)

	s := h.engine.Stats()
	if s.TotalRules != 2 || s.ActiveRules != 1 {
		t.Fatalf("stats after update: %+v", s)
	}
}

func TestResetClearsCountersAndStats(t *testing.T) {
	h := newHarness(t, []model.AlertRule{toastRule("r1", 5)}, nil)
	ctx := context.Background()
	h.engine.Process(ctx, loginEvent())
	if h.counters.Len() == 0 {
		t.Fatal("no counters recorded")
	}

	h.engine.Reset()
	if h.counters.Len() != 0 {
		t.Fatalf("counters after reset: %d", h.counters.Len())
	}
	if h.stats.Snapshot().EventsTotal != 0 {
		t.Fatal("stats survived reset")
	}
}
