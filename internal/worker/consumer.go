package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cuongbtq/autoapply-be/shared/rabbitmq"
)

func (w *Worker) setupConsumer() (<-chan amqp.Delivery, error) {
	// consumer tag is the worker id so broker-side listings map to instances
	deliveries, err := w.broker.Consume(w.workerID, w.prefetchCount)
	if err != nil {
		return nil, fmt.Errorf("failed to start consuming: %w", err)
	}

	w.logger.Info("RabbitMQ consumer started",
		slog.Int("prefetch_count", w.prefetchCount),
	)
	return deliveries, nil
}

// decodeDelivery turns a broker message into a pool message. Malformed bodies
// are poison: redelivering them would never succeed.
func decodeDelivery(d amqp.Delivery) (*JobMessage, error) {
	var body rabbitmq.JobMessage
	if err := json.Unmarshal(d.Body, &body); err != nil {
		return nil, fmt.Errorf("malformed job message: %w", err)
	}
	if _, err := uuid.Parse(body.JobID); err != nil {
		return nil, fmt.Errorf("job id %q is not a UUID", body.JobID)
	}
	return &JobMessage{
		JobID:       body.JobID,
		DeliveryTag: d.DeliveryTag,
		FromBroker:  true,
	}, nil
}

// startMessageDispatcher feeds broker deliveries to the pool until ctx is done,
// Stop is called or the broker closes the channel
func (w *Worker) startMessageDispatcher(ctx context.Context, deliveries <-chan amqp.Delivery) {
	w.logger.Info("Message dispatcher started")
	defer w.logger.Info("Message dispatcher stopped")

	for {
		var d amqp.Delivery
		var ok bool
		select {
		case <-ctx.Done():
			return
		case <-w.stopChan:
			return
		case d, ok = <-deliveries:
			if !ok {
				w.logger.Warn("RabbitMQ delivery channel closed")
				return
			}
		}

		msg, err := decodeDelivery(d)
		if err != nil {
			w.logger.Error("Dropping job message",
				slog.Uint64("delivery_tag", d.DeliveryTag),
				slog.String("error", err.Error()),
			)
			w.nack(d.DeliveryTag, false)
			continue
		}

		select {
		case w.jobsChan <- msg:
			w.logger.Debug("Job dispatched to worker pool",
				slog.String("job_id", msg.JobID),
				slog.Uint64("delivery_tag", msg.DeliveryTag),
			)
		case <-ctx.Done():
			// hand the message back so another instance can take it
			w.nack(d.DeliveryTag, true)
			return
		}
	}
}

func (w *Worker) nack(tag uint64, requeue bool) {
	if err := w.broker.Nack(tag, requeue); err != nil {
		w.logger.Error("Failed to NACK message",
			slog.Uint64("delivery_tag", tag),
			slog.String("error", err.Error()),
		)
	}
}
