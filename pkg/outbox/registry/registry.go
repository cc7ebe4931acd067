// Package registry maps outbox event types to their Pub/Sub topic and typed
// payload, and decides which stored rows can never be published.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/medstock/medstock-backend/pkg/config"
	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
	"github.com/medstock/medstock-backend/pkg/outbox"
	"github.com/medstock/medstock-backend/pkg/outbox/payloads"
)

type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	newPayload    func() any
}

// ResolvedEvent is a validated outbox row with its decoded payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.Envelope
	Payload    any
}

// NonRetryableError marks a row that will fail the same way on every attempt.
type NonRetryableError struct {
	Err error
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable outbox error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

func payloadOf[T any]() func() any {
	return func() any { return new(T) }
}

// catalog lists every event the publisher knows how to ship.
var catalog = []EventDescriptor{
	{EventType: enums.EventPurchaseRequestApproved, AggregateType: enums.AggregatePurchaseRequest, newPayload: payloadOf[payloads.PurchaseRequestApprovedEvent]()},
	{EventType: enums.EventPurchaseRequestRejected, AggregateType: enums.AggregatePurchaseRequest, newPayload: payloadOf[payloads.PurchaseRequestRejectedEvent]()},
	{EventType: enums.EventSalesReportStatusChanged, AggregateType: enums.AggregateSalesReport, newPayload: payloadOf[payloads.SalesReportStatusChangedEvent]()},
	{EventType: enums.EventSalesReportBuyerRevealed, AggregateType: enums.AggregateSalesReport, newPayload: payloadOf[payloads.SalesReportBuyerRevealedEvent]()},
	{EventType: enums.EventPointsCharged, AggregateType: enums.AggregatePointsAccount, newPayload: payloadOf[payloads.PointsBalanceChangedEvent]()},
	{EventType: enums.EventPointsRefunded, AggregateType: enums.AggregatePointsAccount, newPayload: payloadOf[payloads.PointsBalanceChangedEvent]()},
}

type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry sends every event to the domain topic unless
// cfg.TopicOverrides names another topic for its type.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, errors.New("registry: domain topic is required")
	}
	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(catalog))}
	for _, desc := range catalog {
		desc.Topic = cfg.DomainTopic
		reg.entries[desc.EventType] = desc
	}
	for eventType, topic := range cfg.TopicOverrides {
		desc, ok := reg.entries[enums.OutboxEventType(eventType)]
		if !ok {
			return nil, fmt.Errorf("registry: topic override for unknown event type %q", eventType)
		}
		if topic == "" {
			return nil, fmt.Errorf("registry: empty topic override for %q", eventType)
		}
		desc.Topic = topic
		reg.entries[desc.EventType] = desc
	}
	return reg, nil
}

// Lookup returns the descriptor for eventType.
func (r *EventRegistry) Lookup(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryable("%s belongs to %s, row says %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryable("%s row has no aggregate id", event.EventType)
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, NonRetryableError{Err: fmt.Errorf("%s: %w", event.EventType, err)}
	}
	payload := desc.newPayload()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
