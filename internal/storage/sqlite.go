package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:alertd.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS security_events (
			id TEXT PRIMARY KEY,
			ts TEXT NOT NULL,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			source TEXT NOT NULL,
			description TEXT,
			metadata_json TEXT,
			ip_address TEXT,
			user_agent TEXT,
			url TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_ts ON security_events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_type ON security_events(event_type)`,
		`CREATE TABLE IF NOT EXISTS fired_alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			rule_id TEXT NOT NULL,
			rule_name TEXT NOT NULL,
			severity TEXT NOT NULL,
			event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			report_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fired_alerts_ts ON fired_alerts(ts)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *sqliteStore) SaveEvent(ctx context.Context, ev model.SecurityEvent) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO security_events (id, ts, event_type, severity, source, description, metadata_json, ip_address, user_agent, url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.CreatedAt.UTC(),
		ev.EventType,
		string(ev.Severity),
		string(ev.Source),
		ev.Description,
		encodeJSON(ev.Metadata),
		ev.IPAddress,
		ev.UserAgent,
		ev.URL,
	)
	return err
}

func (s *sqliteStore) SaveAlert(ctx context.Context, fired model.AlertFired, report model.DispatchReport) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fired_alerts (ts, rule_id, rule_name, severity, event_id, event_type, report_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		fired.FiredAt.UTC(),
		fired.Rule.ID,
		fired.Rule.Name,
		string(fired.Rule.Severity),
		fired.Event.ID,
		fired.Event.EventType,
		encodeJSON(report),
	)
	return err
}
