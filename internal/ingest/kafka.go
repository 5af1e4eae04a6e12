package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/config"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/normalize"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/stats"
)

// StartKafka subscribes to the two push streams: security-event inserts and
// audit-log inserts. A dropped subscription is re-established with backoff;
// while it is down the engine's timers keep it degraded to polling rather
// than silent.
func StartKafka(ctx context.Context, cfg *config.Manager, out chan<- model.SecurityEvent, counters *stats.Store, logger *slog.Logger) {
	current := cfg.Get().Ingest.Kafka
	if !current.Enabled {
		if logger != nil {
			logger.Info("kafka ingest disabled")
		}
		return
	}
	if current.EventsTopic != "" {
		go consume(ctx, current, current.EventsTopic, decodeChange, out, counters, logger)
	}
	if current.AuditTopic != "" {
		go consume(ctx, current, current.AuditTopic, decodeAudit, out, counters, logger)
	}
}

type decoder func(value []byte) (model.SecurityEvent, error)

func consume(ctx context.Context, cfg config.KafkaConfig, topic string, decode decoder, out chan<- model.SecurityEvent, counters *stats.Store, logger *slog.Logger) {
	if logger != nil {
		logger.Info("kafka ingest enabled", "brokers", cfg.Brokers, "topic", topic, "group_id", cfg.GroupID)
	}
	for {
		if ctx.Err() != nil {
			return
		}
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    topic,
			GroupID:  cfg.GroupID,
			MinBytes: 1e3,
			MaxBytes: 10e6,
		})
		err := readLoop(ctx, reader, decode, out, counters, logger)
		_ = reader.Close()
		if ctx.Err() != nil {
			return
		}
		if logger != nil {
			logger.Warn("kafka subscription dropped, resubscribing", "topic", topic, "err", err)
		}
		if !BackoffSleep(ctx, 2*time.Second) {
			return
		}
	}
}

func readLoop(ctx context.Context, reader *kafka.Reader, decode decoder, out chan<- model.SecurityEvent, counters *stats.Store, logger *slog.Logger) error {
	consecutive := 0
	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			consecutive++
			if consecutive >= 3 {
				return err
			}
			if logger != nil {
				logger.Warn("kafka read error", "err", err)
			}
			if !BackoffSleep(ctx, 500*time.Millisecond) {
				return ctx.Err()
			}
			continue
		}
		consecutive = 0
		ev, err := decode(m.Value)
		if err != nil {
			var nerr *normalize.NormalizationError
			if errors.As(err, &nerr) && counters != nil {
				counters.RecordDrop()
			}
			if logger != nil {
				logger.Warn("kafka record dropped", "err", err)
			}
			continue
		}
		SendNonBlocking(ctx, out, ev, logger)
	}
}

func decodeChange(value []byte) (model.SecurityEvent, error) {
	var rec normalize.ChangeRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return model.SecurityEvent{}, &normalize.NormalizationError{Source: "kafka", Err: err}
	}
	if rec.Row == nil {
		// Some producers publish the bare row without the change envelope.
		var row map[string]any
		if err := json.Unmarshal(value, &row); err != nil {
			return model.SecurityEvent{}, &normalize.NormalizationError{Source: "kafka", Err: err}
		}
		rec = normalize.ChangeRecord{Table: "security_events", Operation: "INSERT", Row: row}
	}
	return normalize.FromChange(rec)
}

func decodeAudit(value []byte) (model.SecurityEvent, error) {
	var rec normalize.AuditRecord
	if err := json.Unmarshal(value, &rec); err != nil {
		return model.SecurityEvent{}, &normalize.NormalizationError{Source: "kafka", Err: err}
	}
	if rec.Row == nil {
		var row map[string]any
		if err := json.Unmarshal(value, &row); err != nil {
			return model.SecurityEvent{}, &normalize.NormalizationError{Source: "kafka", Err: err}
		}
		rec = normalize.AuditRecord{Row: row}
	}
	return normalize.FromAudit(rec)
}
