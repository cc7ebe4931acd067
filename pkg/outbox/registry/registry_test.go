package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/medstock/medstock-backend/pkg/config"
	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/enums"
	"github.com/medstock/medstock-backend/pkg/outbox"
	"github.com/medstock/medstock-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveSuccess(t *testing.T) {
	reg := newTestEventRegistry(t)

	reportID := uuid.New()
	payloadBytes := mustMarshal(t, payloads.SalesReportBuyerRevealedEvent{
		ReportID:       reportID,
		SellerID:       uuid.New(),
		BuyerID:        uuid.New(),
		PointsDeducted: decimal.NewFromInt(50),
		BalanceAfter:   decimal.NewFromInt(25),
	})

	event := models.OutboxEvent{
		EventType:     enums.EventSalesReportBuyerRevealed,
		AggregateType: enums.AggregateSalesReport,
		AggregateID:   reportID,
		Payload:       mustEnvelope(t, payloadBytes),
	}

	resolved, err := reg.Resolve(event)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved.Descriptor.Topic != "domain-topic" {
		t.Fatalf("unexpected topic %q", resolved.Descriptor.Topic)
	}
	payload, ok := resolved.Payload.(*payloads.SalesReportBuyerRevealedEvent)
	if !ok {
		t.Fatalf("unexpected payload type %T", resolved.Payload)
	}
	if payload.ReportID != reportID || !payload.PointsDeducted.Equal(decimal.NewFromInt(50)) {
		t.Fatalf("payload mismatch %+v", payload)
	}
	if resolved.Envelope.EventID == "" || resolved.Envelope.OccurredAt.IsZero() {
		t.Fatalf("envelope metadata missing")
	}
}

func TestEventRegistryRejectsInvalidRows(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := []struct {
		name  string
		event models.OutboxEvent
	}{
		{
			name: "unknown event",
			event: models.OutboxEvent{
				EventType:     "order_created",
				AggregateType: enums.AggregatePurchaseRequest,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelope(t, []byte(`{}`)),
			},
		},
		{
			name: "aggregate mismatch",
			event: models.OutboxEvent{
				EventType:     enums.EventPointsCharged,
				AggregateType: enums.AggregateSalesReport,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelope(t, []byte(`{}`)),
			},
		},
		{
			name: "missing aggregate id",
			event: models.OutboxEvent{
				EventType:     enums.EventPurchaseRequestRejected,
				AggregateType: enums.AggregatePurchaseRequest,
				Payload:       mustEnvelope(t, []byte(`{}`)),
			},
		},
		{
			name: "null payload",
			event: models.OutboxEvent{
				EventType:     enums.EventPurchaseRequestApproved,
				AggregateType: enums.AggregatePurchaseRequest,
				AggregateID:   uuid.New(),
				Payload:       mustEnvelope(t, []byte("null")),
			},
		},
		{
			name: "broken envelope",
			event: models.OutboxEvent{
				EventType:     enums.EventPurchaseRequestApproved,
				AggregateType: enums.AggregatePurchaseRequest,
				AggregateID:   uuid.New(),
				Payload:       json.RawMessage(`{"data":`),
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := reg.Resolve(tc.event)
			if err == nil {
				t.Fatalf("expected error")
			}
			var nonRetry NonRetryableError
			if !errors.As(err, &nonRetry) {
				t.Fatalf("expected non-retryable error, got %T", err)
			}
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	if _, err := NewEventRegistry(config.PubSubConfig{}); err == nil {
		t.Fatalf("expected missing topic to fail")
	}
}

func TestTopicOverrides(t *testing.T) {
	reg, err := NewEventRegistry(config.PubSubConfig{
		DomainTopic:    "domain-topic",
		TopicOverrides: map[string]string{string(enums.EventPointsCharged): "points-events"},
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	if desc, _ := reg.Lookup(enums.EventPointsCharged); desc.Topic != "points-events" {
		t.Fatalf("expected override topic, got %q", desc.Topic)
	}
	if desc, _ := reg.Lookup(enums.EventPointsRefunded); desc.Topic != "domain-topic" {
		t.Fatalf("expected domain topic for refunds, got %q", desc.Topic)
	}

	bad := []map[string]string{
		{"points.teleported": "x"},
		{string(enums.EventPointsCharged): ""},
	}
	for _, overrides := range bad {
		if _, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "d", TopicOverrides: overrides}); err == nil {
			t.Fatalf("expected %v to be rejected", overrides)
		}
	}
}

func TestEveryEventTypeIsRegistered(t *testing.T) {
	reg := newTestEventRegistry(t)
	for _, eventType := range enums.OutboxEventTypes() {
		if _, ok := reg.Lookup(eventType); !ok {
			t.Fatalf("event type %s has no descriptor", eventType)
		}
	}
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{DomainTopic: "domain-topic"})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	envelope := outbox.Envelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return data
}
