package rules

import (
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/window"
)

// RuleConditionError marks a rule whose condition map could not be evaluated
// against an event. The rule is skipped for that event only.
type RuleConditionError struct {
	RuleID string
	Key    string
	Err    error
}

func (e *RuleConditionError) Error() string {
	return fmt.Sprintf("rule %s condition %q: %v", e.RuleID, e.Key, e.Err)
}

func (e *RuleConditionError) Unwrap() error { return e.Err }

type Engine struct {
	logger   *slog.Logger
	counters *window.Store
	rules    atomic.Value // []model.AlertRule
	now      func() time.Time
}

func NewEngine(ruleSet []model.AlertRule, counters *window.Store, logger *slog.Logger) *Engine {
	if counters == nil {
		counters = window.NewStore()
	}
	e := &Engine{
		logger:   logger,
		counters: counters,
		now:      func() time.Time { return time.Now().UTC() },
	}
	e.rules.Store(ruleSet)
	return e
}

func (e *Engine) UpdateRules(ruleSet []model.AlertRule) {
	e.rules.Store(ruleSet)
}

func (e *Engine) ruleSet() []model.AlertRule {
	if v := e.rules.Load(); v != nil {
		return v.([]model.AlertRule)
	}
	return nil
}

func (e *Engine) RuleCount() int {
	return len(e.ruleSet())
}

func (e *Engine) ActiveRuleCount() int {
	n := 0
	for _, r := range e.ruleSet() {
		if r.Enabled {
			n++
		}
	}
	return n
}

func (e *Engine) FirstEnabled() (model.AlertRule, bool) {
	for _, r := range e.ruleSet() {
		if r.Enabled {
			return r, true
		}
	}
	return model.AlertRule{}, false
}

// Evaluate matches one event against the active rule set and returns the
// fired instructions in rule declaration order. A condition error
// disqualifies only that rule.
func (e *Engine) Evaluate(ev model.SecurityEvent) []model.AlertFired {
	var fired []model.AlertFired
	for _, rule := range e.ruleSet() {
		if !rule.Enabled {
			continue
		}
		if !typeMatches(rule.Type, ev) {
			continue
		}
		ok, err := matchConditions(rule, ev)
		if err != nil {
			if e.logger != nil {
				e.logger.Warn("rule skipped", "rule_id", rule.ID, "err", err)
			}
			continue
		}
		if !ok {
			continue
		}
		if rule.HasThreshold() && !ev.IsTest() {
			key := counterKey(rule.ID, ev.EventType)
			count := e.counters.Observe(key, rule.Window())
			if count < rule.Threshold {
				continue
			}
			e.counters.Reset(key)
		}
		fired = append(fired, model.AlertFired{Rule: rule, Event: ev, FiredAt: e.now()})
	}
	return fired
}

// TestFire bypasses conditions and threshold counters: the synthesized test
// event fires through the given rule unconditionally so operators can
// exercise the full dispatch path without touching live burst state.
func (e *Engine) TestFire(rule model.AlertRule, ev model.SecurityEvent) model.AlertFired {
	return model.AlertFired{Rule: rule, Event: ev, FiredAt: e.now()}
}

func counterKey(ruleID, eventType string) string {
	return ruleID + "|" + eventType
}

func typeMatches(t model.RuleType, ev model.SecurityEvent) bool {
	switch t {
	case model.RuleRoleChange:
		return ev.Source == model.SourceAudit
	case model.RuleSecurityEvent:
		return ev.Source != model.SourceAudit
	default:
		return true
	}
}

func matchConditions(rule model.AlertRule, ev model.SecurityEvent) (bool, error) {
	if len(rule.Conditions) == 0 {
		return true, nil
	}
	for key, raw := range rule.Conditions {
		switch strings.ToLower(key) {
		case "severity":
			ok, err := valueMatches(rule.ID, key, raw, string(ev.Severity))
			if err != nil || !ok {
				return false, err
			}
		case "event_type", "eventtype":
			ok, err := valueMatches(rule.ID, key, raw, ev.EventType)
			if err != nil || !ok {
				return false, err
			}
		}
	}
	return true, nil
}

// valueMatches accepts a single string or a list of strings; anything else
// is a condition error.
func valueMatches(ruleID, key string, raw any, got string) (bool, error) {
	got = strings.ToLower(got)
	switch want := raw.(type) {
	case string:
		return strings.ToLower(want) == got, nil
	case []string:
		for _, w := range want {
			if strings.ToLower(w) == got {
				return true, nil
			}
		}
		return false, nil
	case []any:
		for _, item := range want {
			s, ok := item.(string)
			if !ok {
				return false, &RuleConditionError{RuleID: ruleID, Key: key, Err: fmt.Errorf("non-string value %T in list", item)}
			}
			if strings.ToLower(s) == got {
				return true, nil
			}
		}
		return false, nil
	default:
		return false, &RuleConditionError{RuleID: ruleID, Key: key, Err: fmt.Errorf("unsupported value type %T", raw)}
	}
}
