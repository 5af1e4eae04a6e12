package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/alertd?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS security_events (
			id TEXT PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			event_type TEXT NOT NULL,
			severity TEXT NOT NULL,
			source TEXT NOT NULL,
			description TEXT,
			metadata_json JSONB,
			ip_address TEXT,
			user_agent TEXT,
			url TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_ts ON security_events(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_type ON security_events(event_type)`,
		`CREATE TABLE IF NOT EXISTS fired_alerts (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			rule_id TEXT NOT NULL,
			rule_name TEXT NOT NULL,
			severity TEXT NOT NULL,
			event_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			report_json JSONB NOT NULL
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

func (s *postgresStore) SaveEvent(ctx context.Context, ev model.SecurityEvent) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO security_events (id, ts, event_type, severity, source, description, metadata_json, ip_address, user_agent, url)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO NOTHING`,
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

func (s *postgresStore) SaveAlert(ctx context.Context, fired model.AlertFired, report model.DispatchReport) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO fired_alerts (ts, rule_id, rule_name, severity, event_id, event_type, report_json)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
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
