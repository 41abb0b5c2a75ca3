// Package notifier publishes booking lifecycle events for downstream
// consumers (messaging, emails, analytics). Delivery is fire-and-forget:
// a booking operation never fails or blocks because an event could not be
// published.
package notifier

import (
	"context"
	"time"

	"wheelshare/pkg/kafka"
	kafka_config "wheelshare/pkg/kafka/config"
	"wheelshare/pkg/logger"
	"wheelshare/pkg/model"
)

// Event types emitted on the booking topic.
const (
	EventBookingRequested = "booking.requested"
	EventBookingAccepted  = "booking.accepted"
	EventBookingRejected  = "booking.rejected"
	EventBookingCancelled = "booking.cancelled"
	EventBookingCompleted = "booking.completed"
)

const publishTimeout = 5 * time.Second

type Notifier interface {
	// Notify publishes the event for the booking. It returns immediately;
	// failures are logged, never surfaced to the caller.
	Notify(ctx context.Context, event string, booking *model.Booking)
	Close() error
}

type kafkaNotifier struct {
	producer *kafka.Producer
	source   string
	log      *logger.Logger
}

// New builds a Kafka-backed notifier, or a no-op one when no brokers are
// configured so the engine runs standalone in development.
func New(cfg *kafka_config.Config, topic, source string, log *logger.Logger) (Notifier, error) {
	if !cfg.Enabled() {
		log.Info("Kafka brokers not configured, booking events disabled")
		return NewNoop(), nil
	}

	producer, err := kafka.NewProducer(cfg, topic)
	if err != nil {
		return nil, err
	}

	return &kafkaNotifier{
		producer: producer,
		source:   source,
		log:      log,
	}, nil
}

func (n *kafkaNotifier) Notify(ctx context.Context, event string, booking *model.Booking) {
	// Keyed by vehicle so all events for one vehicle land on the same
	// partition in order.
	msg := kafka.NewMessage().
		WithKey(booking.VehicleID).
		WithValue(booking).
		WithEventType(event).
		WithSource(n.source).
		Build()

	go func() {
		publishCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()

		if err := n.producer.Publish(publishCtx, msg); err != nil {
			n.log.Error("Failed to publish booking event",
				"event", event,
				"booking_id", booking.ID,
				"vehicle_id", booking.VehicleID,
				"error", err,
			)
		}
	}()
}

func (n *kafkaNotifier) Close() error {
	return n.producer.Close()
}

type noopNotifier struct{}

func NewNoop() Notifier {
	return noopNotifier{}
}

func (noopNotifier) Notify(context.Context, string, *model.Booking) {}

func (noopNotifier) Close() error { return nil }
