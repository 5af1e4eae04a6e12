package stats

import (
	"sync"
	"time"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
)

type Store struct {
	mu              sync.RWMutex
	eventsBySev     map[model.Severity]uint64
	alertsByRule    map[string]uint64
	dispatchResults map[model.NotificationMethod]map[model.ChannelOutcome]uint64
	drops           uint64
	startedAt       time.Time
	updatedAt       time.Time
}

type Snapshot struct {
	EventsTotal      uint64                       `json:"events_total"`
	EventsBySeverity map[model.Severity]uint64    `json:"events_by_severity"`
	AlertsTotal      uint64                       `json:"alerts_total"`
	AlertsByRule     map[string]uint64            `json:"alerts_by_rule"`
	Dispatch         map[string]map[string]uint64 `json:"dispatch"`
	NormalizeDrops   uint64                       `json:"normalize_drops"`
	StartedAt        time.Time                    `json:"started_at"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

func NewStore() *Store {
	now := time.Now().UTC()
	return &Store{
		eventsBySev:     make(map[model.Severity]uint64),
		alertsByRule:    make(map[string]uint64),
		dispatchResults: make(map[model.NotificationMethod]map[model.ChannelOutcome]uint64),
		startedAt:       now,
		updatedAt:       now,
	}
}

func (s *Store) RecordEvent(sev model.Severity) {
	s.mu.Lock()
	s.eventsBySev[sev]++
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Store) RecordAlert(ruleID string) {
	s.mu.Lock()
	s.alertsByRule[ruleID]++
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Store) RecordDispatch(report model.DispatchReport) {
	s.mu.Lock()
	for _, res := range report.Results {
		byOutcome, ok := s.dispatchResults[res.Method]
		if !ok {
			byOutcome = make(map[model.ChannelOutcome]uint64)
			s.dispatchResults[res.Method] = byOutcome
		}
		byOutcome[res.Outcome]++
	}
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Store) RecordDrop() {
	s.mu.Lock()
	s.drops++
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{
		EventsBySeverity: make(map[model.Severity]uint64, len(s.eventsBySev)),
		AlertsByRule:     make(map[string]uint64, len(s.alertsByRule)),
		Dispatch:         make(map[string]map[string]uint64, len(s.dispatchResults)),
		NormalizeDrops:   s.drops,
		StartedAt:        s.startedAt,
		UpdatedAt:        s.updatedAt,
	}
	for sev, n := range s.eventsBySev {
		snap.EventsBySeverity[sev] = n
		snap.EventsTotal += n
	}
	for rule, n := range s.alertsByRule {
		snap.AlertsByRule[rule] = n
		snap.AlertsTotal += n
	}
	for method, byOutcome := range s.dispatchResults {
		m := make(map[string]uint64, len(byOutcome))
		for outcome, n := range byOutcome {
			m[string(outcome)] = n
		}
		snap.Dispatch[string(method)] = m
	}
	return snap
}

func (s *Store) Clear() {
	s.mu.Lock()
	s.eventsBySev = make(map[model.Severity]uint64)
	s.alertsByRule = make(map[string]uint64)
	s.dispatchResults = make(map[model.NotificationMethod]map[model.ChannelOutcome]uint64)
	s.drops = 0
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
}
