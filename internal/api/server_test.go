package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/alerts"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/config"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/dispatch"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/engine"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/presence"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/rules"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/stats"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/window"
)

func newTestServer(ruleSet []model.AlertRule) *Server {
	manager := config.NewStaticManager(config.DefaultConfig())
	counters := window.NewStore()
	statsStore := stats.NewStore()
	alertStore := alerts.NewStore(20)
	center := alerts.NewCenter(50)
	notifier := &dispatch.LogNotifier{}
	ruleEngine := rules.NewEngine(ruleSet, counters, nil)
	dispatcher := dispatch.New(manager, alertStore, center, notifier, nil, nil)
	eng := engine.New(manager, ruleEngine, dispatcher, statsStore, nil, counters, notifier, nil)
	return &Server{
		cfg:      manager,
		engine:   eng,
		alerts:   alertStore,
		center:   center,
		presence: presence.NewTracker(config.PresenceConfig{}, nil),
		stats:    statsStore,
		version:  "test",
	}
}

func enabledRule() model.AlertRule {
	return model.AlertRule{
		ID:                  "r1",
		Name:                "Any critical",
		Type:                model.RuleSecurityEvent,
		Severity:            model.SeverityCritical,
		Enabled:             true,
		NotificationMethods: []model.NotificationMethod{model.MethodToast},
	}
}

func TestStatusEndpoint(t *testing.T) {
	srv := newTestServer([]model.AlertRule{enabledRule()})
	rec := httptest.NewRecorder()
	srv.handleStatus(rec, httptest.NewRequest("GET", "/status", nil))
	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	var resp statusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "ok" || resp.Version != "test" {
		t.Fatalf("response: %+v", resp)
	}
	if resp.EngineStats.TotalRules != 1 || resp.EngineStats.ActiveRules != 1 {
		t.Fatalf("engine stats: %+v", resp.EngineStats)
	}
}

func TestTestAlertEndpoint(t *testing.T) {
	srv := newTestServer([]model.AlertRule{enabledRule()})
	rec := httptest.NewRecorder()
	srv.handleTestAlert(rec, httptest.NewRequest("POST", "/test-alert", nil))
	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	var resp struct {
		Report model.DispatchReport `json:"report"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Report.RuleID != "r1" || !resp.Report.Delivered(model.MethodToast) {
		t.Fatalf("report: %+v", resp.Report)
	}
	if srv.alerts.Len() != 1 {
		t.Fatalf("alerts: %d", srv.alerts.Len())
	}
}

func TestTestAlertConflictsWithoutEnabledRules(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	srv.handleTestAlert(rec, httptest.NewRequest("POST", "/test-alert", nil))
	if rec.Code != 409 {
		t.Fatalf("status %d, want 409", rec.Code)
	}
}

func TestAlertDismissEndpoint(t *testing.T) {
	srv := newTestServer(nil)
	srv.alerts.Add(model.Alert{ID: "a1", Kind: model.AlertInfo})

	rec := httptest.NewRecorder()
	srv.handleAlertDismiss(rec, httptest.NewRequest("POST", "/alerts/dismiss", strings.NewReader(`{"id":"a1"}`)))
	if rec.Code != 200 {
		t.Fatalf("status %d", rec.Code)
	}
	if srv.alerts.Len() != 0 {
		t.Fatalf("alerts: %d", srv.alerts.Len())
	}

	rec = httptest.NewRecorder()
	srv.handleAlertDismiss(rec, httptest.NewRequest("POST", "/alerts/dismiss", strings.NewReader(`{"id":"a1"}`)))
	if rec.Code != 404 {
		t.Fatalf("second dismiss status %d, want 404", rec.Code)
	}
}

func TestNotificationReadFlow(t *testing.T) {
	srv := newTestServer(nil)
	srv.center.Push(model.NotificationData{ID: "n1", Type: model.NotificationSecurityAlert})

	rec := httptest.NewRecorder()
	srv.handleNotifications(rec, httptest.NewRequest("GET", "/notifications", nil))
	var listResp struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &listResp); err != nil {
		t.Fatal(err)
	}
	if listResp.UnreadCount != 1 {
		t.Fatalf("unread: %d", listResp.UnreadCount)
	}

	rec = httptest.NewRecorder()
	srv.handleNotificationRead(rec, httptest.NewRequest("POST", "/notifications/read", strings.NewReader(`{"id":"n1"}`)))
	var readResp struct {
		UnreadCount int `json:"unread_count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &readResp); err != nil {
		t.Fatal(err)
	}
	if readResp.UnreadCount != 0 {
		t.Fatalf("unread after read: %d", readResp.UnreadCount)
	}
}

func TestPresenceSignalEndpoints(t *testing.T) {
	srv := newTestServer(nil)

	rec := httptest.NewRecorder()
	body := `{"user_id":"u1","conn_id":"c1","page":"/dashboard"}`
	srv.handlePresenceSignal(rec, httptest.NewRequest("POST", "/presence/connect", strings.NewReader(body)))
	if rec.Code != 200 {
		t.Fatalf("connect status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.handlePresence(rec, httptest.NewRequest("GET", "/presence?user_id=u1", nil))
	if rec.Code != 200 {
		t.Fatalf("presence status %d", rec.Code)
	}
	var p model.UserPresence
	if err := json.Unmarshal(rec.Body.Bytes(), &p); err != nil {
		t.Fatal(err)
	}
	if p.Status != model.PresenceOnline || p.CurrentPage != "/dashboard" {
		t.Fatalf("presence: %+v", p)
	}

	rec = httptest.NewRecorder()
	srv.handlePresenceSignal(rec, httptest.NewRequest("POST", "/presence/disconnect", strings.NewReader(`{"conn_id":"c1"}`)))
	if rec.Code != 200 {
		t.Fatalf("disconnect status %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	srv.handlePresence(rec, httptest.NewRequest("GET", "/presence?user_id=u1", nil))
	if rec.Code != 404 {
		t.Fatalf("presence after disconnect status %d, want 404", rec.Code)
	}
}

func TestPresenceSignalRejectsMissingConnID(t *testing.T) {
	srv := newTestServer(nil)
	rec := httptest.NewRecorder()
	srv.handlePresenceSignal(rec, httptest.NewRequest("POST", "/presence/activity", strings.NewReader(`{"page":"/x"}`)))
	if rec.Code != 400 {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestAdminClearTargets(t *testing.T) {
	srv := newTestServer(nil)
	srv.alerts.Add(model.Alert{ID: "a1"})
	srv.center.Push(model.NotificationData{ID: "n1"})

	rec := httptest.NewRecorder()
	srv.handleClear(rec, httptest.NewRequest("POST", "/admin/clear", strings.NewReader(`{"target":"alerts"}`)))
	if rec.Code != 200 || srv.alerts.Len() != 0 || srv.center.Len() != 1 {
		t.Fatalf("clear alerts: code=%d alerts=%d notifications=%d", rec.Code, srv.alerts.Len(), srv.center.Len())
	}

	rec = httptest.NewRecorder()
	srv.handleClear(rec, httptest.NewRequest("POST", "/admin/clear", strings.NewReader(`{"target":"everything"}`)))
	if rec.Code != 400 {
		t.Fatalf("unknown target status %d, want 400", rec.Code)
	}
}
