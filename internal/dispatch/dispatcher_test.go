package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/alerts"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/config"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
)

type recordingNotifier struct {
	permission bool
	sent       []BrowserNotification
	err        error
}

func (n *recordingNotifier) PermissionGranted() bool { return n.permission }

func (n *recordingNotifier) Send(notification BrowserNotification) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notification)
	return nil
}

type recordingMailer struct {
	sent []EmailRequest
	err  error
}

func (m *recordingMailer) Send(_ context.Context, req EmailRequest) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, req)
	return nil
}

func testManager() *config.Manager {
	cfg := config.DefaultConfig()
	cfg.Alerts.EnableEmail = true
	cfg.Alerts.EnableBrowser = true
	cfg.Alerts.EmailAddress = "ops@example.com"
	return config.NewStaticManager(cfg)
}

func firedAlert(sev model.Severity, methods ...model.NotificationMethod) model.AlertFired {
	return model.AlertFired{
		Rule: model.AlertRule{
			ID:                  "r1",
			Name:                "Suspicious activity",
			Severity:            sev,
			Enabled:             true,
			NotificationMethods: methods,
		},
		Event: model.SecurityEvent{
			ID:          "ev1",
			EventType:   "failed_login",
			Severity:    sev,
			Source:      model.SourceChange,
			Description: "repeated login failures",
			CreatedAt:   time.Now().UTC(),
		},
		FiredAt: time.Now().UTC(),
	}
}

func TestEmailFailureDoesNotBlockToast(t *testing.T) {
	alertStore := alerts.NewStore(20)
	center := alerts.NewCenter(50)
	mailer := &recordingMailer{err: errors.New("smtp unreachable")}
	d := New(testManager(), alertStore, center, &recordingNotifier{permission: true}, mailer, nil)

	report := d.Dispatch(context.Background(), firedAlert(model.SeverityHigh, model.MethodToast, model.MethodEmail))

	if !report.Delivered(model.MethodToast) {
		t.Fatalf("toast not delivered: %+v", report)
	}
	res, ok := report.Result(model.MethodEmail)
	if !ok || res.Outcome != model.OutcomeFailed {
		t.Fatalf("email result: %+v", res)
	}
	if alertStore.Len() != 1 {
		t.Fatalf("in-app alerts: %d, want exactly 1", alertStore.Len())
	}
}

func TestEveryConfiguredMethodGetsOneResult(t *testing.T) {
	d := New(testManager(), alerts.NewStore(20), alerts.NewCenter(50), &recordingNotifier{permission: true}, &recordingMailer{}, nil)
	report := d.Dispatch(context.Background(), firedAlert(model.SeverityMedium, model.MethodToast, model.MethodBrowser, model.MethodEmail))
	if len(report.Results) != 3 {
		t.Fatalf("results: %d, want 3", len(report.Results))
	}
	for _, res := range report.Results {
		if res.Outcome != model.OutcomeDelivered {
			t.Fatalf("method %s: %+v", res.Method, res)
		}
	}
}

func TestBrowserSkippedWithoutPermission(t *testing.T) {
	notifier := &recordingNotifier{permission: false}
	d := New(testManager(), alerts.NewStore(20), alerts.NewCenter(50), notifier, &recordingMailer{}, nil)
	report := d.Dispatch(context.Background(), firedAlert(model.SeverityHigh, model.MethodBrowser))
	res, _ := report.Result(model.MethodBrowser)
	if res.Outcome != model.OutcomeSkipped {
		t.Fatalf("browser result: %+v, want skipped", res)
	}
	if len(notifier.sent) != 0 {
		t.Fatalf("notifier called despite missing permission")
	}
}

func TestCriticalBrowserNotificationRequiresInteraction(t *testing.T) {
	notifier := &recordingNotifier{permission: true}
	d := New(testManager(), alerts.NewStore(20), alerts.NewCenter(50), notifier, nil, nil)
	d.Dispatch(context.Background(), firedAlert(model.SeverityCritical, model.MethodBrowser))
	if len(notifier.sent) != 1 {
		t.Fatalf("sent %d notifications, want 1", len(notifier.sent))
	}
	n := notifier.sent[0]
	if !n.RequireInteraction || !n.MuteExempt {
		t.Fatalf("critical notification: %+v", n)
	}
	if n.AutoCloseAfter != 0 {
		t.Fatalf("critical notification auto-closes after %s", n.AutoCloseAfter)
	}
}

func TestCriticalToastIsSticky(t *testing.T) {
	alertStore := alerts.NewStore(20)
	d := New(testManager(), alertStore, alerts.NewCenter(50), nil, nil, nil)
	d.Dispatch(context.Background(), firedAlert(model.SeverityCritical, model.MethodToast))
	list := alertStore.List(0)
	if len(list) != 1 {
		t.Fatalf("alerts: %d", len(list))
	}
	if !list[0].Sticky || list[0].Kind != model.AlertCritical {
		t.Fatalf("critical alert: %+v", list[0])
	}
}

func TestEmailSkippedWhenNotConfigured(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Alerts.EnableEmail = false
	mailer := &recordingMailer{}
	d := New(config.NewStaticManager(cfg), alerts.NewStore(20), alerts.NewCenter(50), nil, mailer, nil)
	report := d.Dispatch(context.Background(), firedAlert(model.SeverityHigh, model.MethodEmail))
	res, _ := report.Result(model.MethodEmail)
	if res.Outcome != model.OutcomeSkipped {
		t.Fatalf("email result: %+v, want skipped", res)
	}
	if len(mailer.sent) != 0 {
		t.Fatalf("mailer called despite email disabled")
	}
}

func TestEmailCarriesStructuredContent(t *testing.T) {
	mailer := &recordingMailer{}
	d := New(testManager(), alerts.NewStore(20), alerts.NewCenter(50), nil, mailer, nil)
	d.Dispatch(context.Background(), firedAlert(model.SeverityHigh, model.MethodEmail))
	if len(mailer.sent) != 1 {
		t.Fatalf("sent %d emails, want 1", len(mailer.sent))
	}
	req := mailer.sent[0]
	if req.To != "ops@example.com" || req.Rule.ID != "r1" || req.Event.ID != "ev1" {
		t.Fatalf("email request: %+v", req)
	}
}
