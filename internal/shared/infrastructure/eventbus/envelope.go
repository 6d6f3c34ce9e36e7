package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/funnelworks/funnel/internal/shared/domain"
	"github.com/google/uuid"
)

// Envelope is the wire format for a published domain event.
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	RoutingKey    string          `json:"routing_key"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// NewEnvelope wraps a domain event for publishing. The event itself is
// serialized as the payload.
func NewEnvelope(event domain.DomainEvent) (*Envelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		EventID:       event.EventID(),
		AggregateID:   event.AggregateID(),
		AggregateType: event.AggregateType(),
		RoutingKey:    event.RoutingKey(),
		OccurredAt:    event.OccurredAt(),
		Payload:       payload,
	}, nil
}

// PublishEvent serializes a domain event and publishes it on the bus.
func PublishEvent(ctx context.Context, publisher Publisher, event domain.DomainEvent) error {
	envelope, err := NewEnvelope(event)
	if err != nil {
		return err
	}

	body, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	return publisher.Publish(ctx, envelope.RoutingKey, body)
}
