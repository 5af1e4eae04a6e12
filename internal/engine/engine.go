package engine

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/config"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/dispatch"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/rules"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/stats"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/storage"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/window"
)

// Engine runs one session's event loop: events in, rule evaluation,
// dispatch, persistence. Handlers run to completion in delivery order; the
// periodic tickers share the same goroutine so nothing re-enters.
type Engine struct {
	logger     *slog.Logger
	cfg        *config.Manager
	rules      *rules.Engine
	dispatcher *dispatch.Dispatcher
	stats      *stats.Store
	store      storage.Store
	counters   *window.Store
	notifier   dispatch.Notifier
	listening  atomic.Bool
}

type Stats struct {
	ActiveRules       int  `json:"active_rules"`
	TotalRules        int  `json:"total_rules"`
	Listening         bool `json:"listening"`
	BrowserPermission bool `json:"browser_permission"`
	WindowCounters    int  `json:"window_counters"`
}

func New(cfg *config.Manager, ruleEngine *rules.Engine, dispatcher *dispatch.Dispatcher, statsStore *stats.Store, store storage.Store, counters *window.Store, notifier dispatch.Notifier, logger *slog.Logger) *Engine {
	return &Engine{
		logger:     logger,
		cfg:        cfg,
		rules:      ruleEngine,
		dispatcher: dispatcher,
		stats:      statsStore,
		store:      store,
		counters:   counters,
		notifier:   notifier,
	}
}

func (e *Engine) Start(ctx context.Context, in <-chan model.SecurityEvent) {
	alertsCfg := e.cfg.Get().Alerts
	e.listening.Store(true)
	go func() {
		defer e.listening.Store(false)
		recheck := time.NewTicker(alertsCfg.RecheckInterval)
		statsTick := time.NewTicker(alertsCfg.StatsInterval)
		defer recheck.Stop()
		defer statsTick.Stop()
		for {
			select {
			case ev := <-in:
				e.Process(ctx, ev)
			case <-recheck.C:
				if removed := e.counters.Sweep(alertsCfg.CounterMaxIdle); removed > 0 && e.logger != nil {
					e.logger.Debug("stale threshold counters evicted", "removed", removed)
				}
			case <-statsTick.C:
				if e.logger != nil {
					snap := e.stats.Snapshot()
					e.logger.Info("pipeline stats",
						"events", snap.EventsTotal,
						"alerts", snap.AlertsTotal,
						"drops", snap.NormalizeDrops,
					)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

func (e *Engine) Listening() bool {
	return e.listening.Load()
}

// Process evaluates one event and dispatches whatever fires. Dispatch
// failures surface in the reports, never as errors to the caller.
func (e *Engine) Process(ctx context.Context, ev model.SecurityEvent) []model.DispatchReport {
	if !e.cfg.Get().Alerts.EnableRealtime {
		return nil
	}
	e.stats.RecordEvent(ev.Severity)
	if e.store != nil && !ev.IsTest() {
		if err := e.store.SaveEvent(ctx, ev); err != nil && e.logger != nil {
			e.logger.Warn("event persist failed", "id", ev.ID, "err", err)
		}
	}
	fired := e.rules.Evaluate(ev)
	return e.dispatchAll(ctx, fired)
}

func (e *Engine) dispatchAll(ctx context.Context, fired []model.AlertFired) []model.DispatchReport {
	if len(fired) == 0 {
		return nil
	}
	reports := make([]model.DispatchReport, 0, len(fired))
	for _, f := range fired {
		report := e.dispatcher.Dispatch(ctx, f)
		e.stats.RecordAlert(f.Rule.ID)
		e.stats.RecordDispatch(report)
		if e.store != nil {
			if err := e.store.SaveAlert(ctx, f, report); err != nil && e.logger != nil {
				e.logger.Warn("alert persist failed", "rule_id", f.Rule.ID, "err", err)
			}
		}
		if e.logger != nil {
			e.logger.Warn("alert fired",
				"rule_id", f.Rule.ID,
				"rule_name", f.Rule.Name,
				"severity", f.Rule.Severity,
				"event_type", f.Event.EventType,
			)
		}
		reports = append(reports, report)
	}
	return reports
}

// TriggerTestAlert synthesizes a test_alert event and pushes it through the
// first enabled rule. The dispatch is real; only the counter keyspace is
// left untouched.
func (e *Engine) TriggerTestAlert(ctx context.Context) (model.DispatchReport, bool) {
	rule, ok := e.rules.FirstEnabled()
	if !ok {
		return model.DispatchReport{}, false
	}
	ev := model.SecurityEvent{
		ID:          uuid.NewString(),
		EventType:   "test_alert",
		Severity:    rule.Severity,
		Source:      model.SourceTest,
		Description: "synthetic alert triggered by operator",
		Metadata:    map[string]any{"test": true},
		CreatedAt:   time.Now().UTC(),
	}
	e.stats.RecordEvent(ev.Severity)
	fired := e.rules.TestFire(rule, ev)
	reports := e.dispatchAll(ctx, []model.AlertFired{fired})
	if len(reports) == 0 {
		return model.DispatchReport{}, false
	}
	return reports[0], true
}

func (e *Engine) ActiveRuleCount() int {
	return e.rules.ActiveRuleCount()
}

func (e *Engine) Stats() Stats {
	permission := false
	if e.notifier != nil {
		permission = e.notifier.PermissionGranted()
	}
	return Stats{
		ActiveRules:       e.rules.ActiveRuleCount(),
		TotalRules:        e.rules.RuleCount(),
		Listening:         e.listening.Load(),
		BrowserPermission: permission,
		WindowCounters:    e.counters.Len(),
	}
}

func (e *Engine) UpdateConfig(cfg *config.Config) {
	e.rules.UpdateRules(cfg.AlertRules())
}

func (e *Engine) Reset() {
	e.counters.Clear()
	e.stats.Clear()
}
