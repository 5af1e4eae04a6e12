package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/config"
	"github.com/kdscrypto/yamo-cameroon-rendezvous-hub-sub002/internal/model"
)

// EmailRequest is the structured content handed to the external mail
// service; the engine never renders the wire email itself.
type EmailRequest struct {
	To      string              `json:"to"`
	Rule    model.AlertRule     `json:"rule"`
	Event   model.SecurityEvent `json:"event"`
	FiredAt time.Time           `json:"fired_at"`
}

type Mailer interface {
	Send(ctx context.Context, req EmailRequest) error
}

// OutboxMailer publishes email requests to the outbox topic; the mail
// renderer consumes them downstream. Send only guarantees the handoff.
type OutboxMailer struct {
	writer *kafka.Writer
	logger *slog.Logger
}

func NewOutboxMailer(cfg config.EmailOutboxConfig, logger *slog.Logger) *OutboxMailer {
	return &OutboxMailer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.LeastBytes{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
		logger: logger,
	}
}

func (m *OutboxMailer) Send(ctx context.Context, req EmailRequest) error {
	data, err := json.Marshal(req)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err = m.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(req.To),
		Value: data,
	})
	if err != nil && m.logger != nil {
		m.logger.Warn("email outbox write failed", "to", req.To, "rule_id", req.Rule.ID, "err", err)
	}
	return err
}

func (m *OutboxMailer) Close() error {
	return m.writer.Close()
}
