package presence

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/config"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
)

type conn struct {
	id            string
	userID        string
	status        model.PresenceStatus
	page          string
	hidden        bool
	lastActivity  time.Time
	lastHeartbeat time.Time
}

type Stats struct {
	Online int `json:"online"`
	Away   int `json:"away"`
	Total  int `json:"total"`
}

// Tracker keeps one record per client connection and publishes one
// aggregated UserPresence per user. Aggregation is a pure max-reduction
// over connection states (online > away > offline), so observers converge
// regardless of signal arrival order.
type Tracker struct {
	mu               sync.Mutex
	conns            map[string]*conn
	byUser           map[string]map[string]*conn
	subs             map[chan model.UserPresence]struct{}
	awayAfter        time.Duration
	heartbeatTimeout time.Duration
	sweepInterval    time.Duration
	now              func() time.Time
	logger           *slog.Logger
}

func NewTracker(cfg config.PresenceConfig, logger *slog.Logger) *Tracker {
	awayAfter := cfg.AwayAfter
	if awayAfter <= 0 {
		awayAfter = 5 * time.Minute
	}
	heartbeatTimeout := cfg.HeartbeatTimeout
	if heartbeatTimeout <= 0 {
		heartbeatTimeout = 90 * time.Second
	}
	sweepInterval := cfg.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = 15 * time.Second
	}
	return &Tracker{
		conns:            make(map[string]*conn),
		byUser:           make(map[string]map[string]*conn),
		subs:             make(map[chan model.UserPresence]struct{}),
		awayAfter:        awayAfter,
		heartbeatTimeout: heartbeatTimeout,
		sweepInterval:    sweepInterval,
		now:              func() time.Time { return time.Now().UTC() },
		logger:           logger,
	}
}

// Connect registers a connection; a fresh connection always enters online,
// even for a user whose other connections are away.
func (t *Tracker) Connect(userID, connID, page string) {
	if userID == "" || connID == "" {
		return
	}
	now := t.now()
	t.mu.Lock()
	c := &conn{
		id:            connID,
		userID:        userID,
		status:        model.PresenceOnline,
		page:          page,
		lastActivity:  now,
		lastHeartbeat: now,
	}
	t.conns[connID] = c
	byUser, ok := t.byUser[userID]
	if !ok {
		byUser = make(map[string]*conn)
		t.byUser[userID] = byUser
	}
	byUser[connID] = c
	agg := t.aggregateLocked(userID)
	t.mu.Unlock()
	t.broadcast(agg)
}

// Activity records an input signal (pointer, keyboard, scroll, touch) and
// brings an away connection back online.
func (t *Tracker) Activity(connID, page string) {
	now := t.now()
	t.mu.Lock()
	c, ok := t.conns[connID]
	if !ok {
		t.mu.Unlock()
		return
	}
	c.lastActivity = now
	c.lastHeartbeat = now
	if page != "" {
		c.page = page
	}
	changed := c.status != model.PresenceOnline
	c.status = model.PresenceOnline
	c.hidden = false
	agg := t.aggregateLocked(c.userID)
	t.mu.Unlock()
	if changed || page != "" {
		t.broadcast(agg)
	}
}

func (t *Tracker) SetHidden(connID string) {
	t.transition(connID, model.PresenceAway, true)
}

func (t *Tracker) SetVisible(connID string) {
	t.transition(connID, model.PresenceOnline, false)
}

func (t *Tracker) transition(connID string, status model.PresenceStatus, hidden bool) {
	now := t.now()
	t.mu.Lock()
	c, ok := t.conns[connID]
	if !ok {
		t.mu.Unlock()
		return
	}
	c.hidden = hidden
	c.lastHeartbeat = now
	if status == model.PresenceOnline {
		c.lastActivity = now
	}
	changed := c.status != status
	c.status = status
	agg := t.aggregateLocked(c.userID)
	t.mu.Unlock()
	if changed {
		t.broadcast(agg)
	}
}

func (t *Tracker) Heartbeat(connID string) {
	t.mu.Lock()
	if c, ok := t.conns[connID]; ok {
		c.lastHeartbeat = t.now()
	}
	t.mu.Unlock()
}

// Disconnect tears the connection down. Offline is terminal for the
// connection; the user goes offline only once no connections remain.
func (t *Tracker) Disconnect(connID string) {
	t.mu.Lock()
	c, ok := t.conns[connID]
	if !ok {
		t.mu.Unlock()
		return
	}
	t.dropLocked(c)
	agg := t.aggregateLocked(c.userID)
	t.mu.Unlock()
	t.broadcast(agg)
}

func (t *Tracker) dropLocked(c *conn) {
	delete(t.conns, c.id)
	if byUser, ok := t.byUser[c.userID]; ok {
		delete(byUser, c.id)
		if len(byUser) == 0 {
			delete(t.byUser, c.userID)
		}
	}
}

// aggregateLocked reduces a user's connections to one record. currentPage
// comes from the most recently active connection, not an arbitrary one.
func (t *Tracker) aggregateLocked(userID string) model.UserPresence {
	byUser := t.byUser[userID]
	if len(byUser) == 0 {
		return model.UserPresence{UserID: userID, Status: model.PresenceOffline, LastSeen: t.now()}
	}
	agg := model.UserPresence{UserID: userID, Status: model.PresenceOffline}
	var latest time.Time
	for _, c := range byUser {
		agg.Status = model.MaxStatus(agg.Status, c.status)
		if c.lastActivity.After(agg.LastSeen) {
			agg.LastSeen = c.lastActivity
		}
		if c.page != "" && (latest.IsZero() || c.lastActivity.After(latest)) {
			latest = c.lastActivity
			agg.CurrentPage = c.page
		}
	}
	return agg
}

func (t *Tracker) Get(userID string) (model.UserPresence, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.byUser[userID]) == 0 {
		return model.UserPresence{}, false
	}
	return t.aggregateLocked(userID), true
}

func (t *Tracker) Snapshot() []model.UserPresence {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.UserPresence, 0, len(t.byUser))
	for userID := range t.byUser {
		out = append(out, t.aggregateLocked(userID))
	}
	return out
}

func (t *Tracker) Stats() Stats {
	t.mu.Lock()
	defer t.mu.Unlock()
	stats := Stats{}
	for userID := range t.byUser {
		agg := t.aggregateLocked(userID)
		stats.Total++
		switch agg.Status {
		case model.PresenceOnline:
			stats.Online++
		case model.PresenceAway:
			stats.Away++
		}
	}
	return stats
}

func (t *Tracker) Subscribe() chan model.UserPresence {
	ch := make(chan model.UserPresence, 16)
	t.mu.Lock()
	t.subs[ch] = struct{}{}
	t.mu.Unlock()
	return ch
}

func (t *Tracker) Unsubscribe(ch chan model.UserPresence) {
	t.mu.Lock()
	if _, ok := t.subs[ch]; ok {
		delete(t.subs, ch)
		close(ch)
	}
	t.mu.Unlock()
}

// broadcast fans the aggregated record out to every observer; slow
// observers are skipped rather than blocking the tracker.
func (t *Tracker) broadcast(p model.UserPresence) {
	t.mu.Lock()
	subs := make([]chan model.UserPresence, 0, len(t.subs))
	for ch := range t.subs {
		subs = append(subs, ch)
	}
	t.mu.Unlock()
	for _, ch := range subs {
		select {
		case ch <- p:
		default:
			if t.logger != nil {
				t.logger.Debug("presence subscriber lagging, update dropped", "user_id", p.UserID)
			}
		}
	}
}

// Start runs the sweeper: inactivity moves online connections to away,
// lapsed heartbeats tear connections down.
func (t *Tracker) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(t.sweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				t.sweep()
			case <-ctx.Done():
				t.closeSubs()
				return
			}
		}
	}()
}

func (t *Tracker) sweep() {
	now := t.now()
	t.mu.Lock()
	changedUsers := make(map[string]struct{})
	for _, c := range t.conns {
		if now.Sub(c.lastHeartbeat) > t.heartbeatTimeout {
			t.dropLocked(c)
			changedUsers[c.userID] = struct{}{}
			continue
		}
		if c.status == model.PresenceOnline && now.Sub(c.lastActivity) >= t.awayAfter {
			c.status = model.PresenceAway
			changedUsers[c.userID] = struct{}{}
		}
	}
	aggs := make([]model.UserPresence, 0, len(changedUsers))
	for userID := range changedUsers {
		aggs = append(aggs, t.aggregateLocked(userID))
	}
	t.mu.Unlock()
	for _, agg := range aggs {
		t.broadcast(agg)
	}
}

func (t *Tracker) closeSubs() {
	t.mu.Lock()
	for ch := range t.subs {
		close(ch)
	}
	t.subs = make(map[chan model.UserPresence]struct{})
	t.mu.Unlock()
}
