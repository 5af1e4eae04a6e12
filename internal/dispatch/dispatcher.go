package dispatch

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/alerts"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/config"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
)

// Dispatcher fans a fired alert out to the rule's configured channels.
// Channels are attempted independently: a failure on one never blocks the
// others, and every configured method gets exactly one result entry.
type Dispatcher struct {
	cfg      *config.Manager
	alerts   *alerts.Store
	center   *alerts.Center
	notifier Notifier
	mailer   Mailer
	logger   *slog.Logger
}

func New(cfg *config.Manager, alertStore *alerts.Store, center *alerts.Center, notifier Notifier, mailer Mailer, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{
		cfg:      cfg,
		alerts:   alertStore,
		center:   center,
		notifier: notifier,
		mailer:   mailer,
		logger:   logger,
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, fired model.AlertFired) model.DispatchReport {
	report := model.DispatchReport{
		RuleID:  fired.Rule.ID,
		EventID: fired.Event.ID,
		FiredAt: fired.FiredAt,
	}
	for _, method := range fired.Rule.NotificationMethods {
		var res model.ChannelResult
		switch method {
		case model.MethodToast:
			res = d.toast(fired)
		case model.MethodBrowser:
			res = d.browser(fired)
		case model.MethodEmail:
			res = d.email(ctx, fired)
		default:
			res = model.ChannelResult{Method: method, Outcome: model.OutcomeFailed, Reason: "unknown method"}
		}
		if res.Outcome == model.OutcomeFailed && d.logger != nil {
			d.logger.Warn("dispatch channel failed",
				"method", method,
				"rule_id", fired.Rule.ID,
				"reason", res.Reason,
			)
		}
		report.Results = append(report.Results, res)
	}
	return report
}

func (d *Dispatcher) toast(fired model.AlertFired) model.ChannelResult {
	alert := model.Alert{
		ID:        uuid.NewString(),
		Kind:      kindFor(fired.Rule.Severity),
		Message:   fired.Rule.Name + ": " + fired.Event.Description,
		Timestamp: fired.FiredAt,
		Sticky:    fired.Rule.Severity == model.SeverityCritical,
		Data: map[string]any{
			"rule_id":    fired.Rule.ID,
			"event_id":   fired.Event.ID,
			"event_type": fired.Event.EventType,
		},
	}
	d.alerts.Add(alert)
	d.center.Push(model.NotificationData{
		ID:        uuid.NewString(),
		Type:      model.NotificationSecurityAlert,
		Title:     fired.Rule.Name,
		Body:      fired.Event.Description,
		Data:      alert.Data,
		Timestamp: fired.FiredAt,
	})
	return model.ChannelResult{Method: model.MethodToast, Outcome: model.OutcomeDelivered}
}

func (d *Dispatcher) browser(fired model.AlertFired) model.ChannelResult {
	if !d.cfg.Get().Alerts.EnableBrowser {
		return model.ChannelResult{Method: model.MethodBrowser, Outcome: model.OutcomeSkipped, Reason: "browser notifications disabled"}
	}
	if d.notifier == nil || !d.notifier.PermissionGranted() {
		if d.logger != nil {
			d.logger.Debug("browser notification skipped", "rule_id", fired.Rule.ID, "reason", "permission not granted")
		}
		return model.ChannelResult{Method: model.MethodBrowser, Outcome: model.OutcomeSkipped, Reason: "permission not granted"}
	}
	critical := fired.Rule.Severity == model.SeverityCritical
	n := BrowserNotification{
		Title:              fired.Rule.Name,
		Body:               fired.Event.Description,
		Tag:                fired.Rule.ID,
		RequireInteraction: critical,
		MuteExempt:         critical,
		Data: map[string]any{
			"event_id": fired.Event.ID,
			"severity": string(fired.Rule.Severity),
		},
	}
	if !critical {
		n.AutoCloseAfter = 5 * time.Second
	}
	if err := d.notifier.Send(n); err != nil {
		return model.ChannelResult{Method: model.MethodBrowser, Outcome: model.OutcomeFailed, Reason: err.Error()}
	}
	return model.ChannelResult{Method: model.MethodBrowser, Outcome: model.OutcomeDelivered}
}

func (d *Dispatcher) email(ctx context.Context, fired model.AlertFired) model.ChannelResult {
	cfg := d.cfg.Get().Alerts
	if !cfg.EnableEmail || cfg.EmailAddress == "" {
		return model.ChannelResult{Method: model.MethodEmail, Outcome: model.OutcomeSkipped, Reason: "email not configured"}
	}
	if d.mailer == nil {
		return model.ChannelResult{Method: model.MethodEmail, Outcome: model.OutcomeSkipped, Reason: "no mail transport"}
	}
	req := EmailRequest{
		To:      cfg.EmailAddress,
		Rule:    fired.Rule,
		Event:   fired.Event,
		FiredAt: fired.FiredAt,
	}
	if err := d.mailer.Send(ctx, req); err != nil {
		return model.ChannelResult{Method: model.MethodEmail, Outcome: model.OutcomeFailed, Reason: err.Error()}
	}
	return model.ChannelResult{Method: model.MethodEmail, Outcome: model.OutcomeDelivered}
}

func kindFor(sev model.Severity) model.AlertKind {
	switch sev {
	case model.SeverityCritical:
		return model.AlertCritical
	case model.SeverityHigh:
		return model.AlertWarning
	default:
		return model.AlertInfo
	}
}
