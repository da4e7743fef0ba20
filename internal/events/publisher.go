// Package events publishes auto-apply history to NATS for other services to consume.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/cuongbtq/autoapply-be/internal/domain"
	"github.com/cuongbtq/autoapply-be/shared/telemetry"
	"github.com/nats-io/nats.go"
	"go.opentelemetry.io/otel/attribute"
)

const (
	HistorySubject = "autoapply.history"
	connectTimeout = 10 * time.Second
)

type Config struct {
	URL     string
	Subject string
	Timeout time.Duration
}

// conn is the part of *nats.Conn the publisher uses
type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

type HistoryEvent struct {
	ID         string               `json:"id"`
	UserID     string               `json:"user_id"`
	JobID      string               `json:"job_id,omitempty"`
	Platform   domain.Platform      `json:"platform,omitempty"`
	ListingID  string               `json:"listing_id,omitempty"`
	Status     domain.HistoryStatus `json:"status"`
	Reason     domain.HistoryReason `json:"reason"`
	Message    string               `json:"message"`
	MatchScore *int                 `json:"match_score,omitempty"`
	CreatedAt  time.Time            `json:"created_at"`
}

type Publisher struct {
	nc      conn
	subject string
	logger  *slog.Logger
}

func NewPublisher(cfg Config, logger *slog.Logger) (*Publisher, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = connectTimeout
	}
	opts := []nats.Option{
		nats.Name("autoapply-be"),
		nats.Timeout(timeout),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("Disconnected from NATS", slog.String("error", err.Error()))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("Reconnected to NATS", slog.String("url", nc.ConnectedUrl()))
		}),
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	logger.Info("Connected to NATS", slog.String("url", cfg.URL))

	return newPublisher(nc, cfg.Subject, logger), nil
}

func newPublisher(nc conn, subject string, logger *slog.Logger) *Publisher {
	if subject == "" {
		subject = HistorySubject
	}
	return &Publisher{nc: nc, subject: subject, logger: logger}
}

// PublishHistory emits one history entry on the history subject
func (p *Publisher) PublishHistory(ctx context.Context, entry *domain.HistoryEntry) error {
	_, span := telemetry.Tracer("events").Start(ctx, "PublishHistory")
	defer span.End()

	data, err := json.Marshal(HistoryEvent{
		ID:         entry.ID,
		UserID:     entry.UserID,
		JobID:      entry.JobID,
		Platform:   entry.Platform,
		ListingID:  entry.ListingID,
		Status:     entry.Status,
		Reason:     entry.Reason,
		Message:    entry.Message,
		MatchScore: entry.MatchScore,
		CreatedAt:  entry.CreatedAt,
	})
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("marshaling history event: %w", err)
	}

	span.SetAttributes(
		attribute.String("nats.subject", p.subject),
		attribute.Int("message.size", len(data)),
	)

	if err := p.nc.Publish(p.subject, data); err != nil {
		span.RecordError(err)
		return fmt.Errorf("publishing to NATS: %w", err)
	}

	p.logger.Debug("Published history event",
		slog.String("entry_id", entry.ID),
		slog.String("subject", p.subject),
	)
	return nil
}

func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}
