package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/medstock/medstock-backend/pkg/db/models"
	"github.com/medstock/medstock-backend/pkg/outbox/registry"
)

var errNoPublisher = errors.New("no publisher for topic")

type outcome string

const (
	outcomePublished        outcome = "published"
	outcomeAlreadyDelivered outcome = "already_delivered"
	outcomeRetry            outcome = "retry"
	outcomeParked           outcome = "parked"
)

// processBatch settles one claimed batch. It reports whether any row was
// claimed. An error means a row outcome could not be written and the whole
// batch rolls back.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var claimed int
	tally := map[outcome]int{}
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return fmt.Errorf("claim batch: %w", err)
		}
		claimed = len(events)
		for _, event := range events {
			result, err := s.deliver(ctx, tx, event)
			if err != nil {
				return err
			}
			tally[result]++
		}
		return nil
	})
	if err == nil && claimed > 0 {
		s.logg.Debug(s.logg.WithFields(ctx, map[string]any{
			"claimed":           claimed,
			"published":         tally[outcomePublished],
			"already_delivered": tally[outcomeAlreadyDelivered],
			"retry":             tally[outcomeRetry],
			"parked":            tally[outcomeParked],
		}), "outbox.batch_settled")
	}
	return claimed > 0, err
}

func (s *Service) deliver(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	fields := eventFields(event)
	logCtx := s.logg.WithFields(ctx, fields)

	delivered, err := s.deliveries.Delivered(ctx, event.ID)
	if err != nil {
		return "", fmt.Errorf("delivery ledger %s: %w", event.ID, err)
	}
	if delivered {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return "", fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.logg.Info(logCtx, "outbox.event_already_delivered")
		return outcomeAlreadyDelivered, nil
	}

	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.park(logCtx, tx, event, "unresolvable", err)
	}
	logCtx = s.logg.WithField(logCtx, "topic", resolved.Descriptor.Topic)

	if err := s.publish(ctx, event, resolved); err != nil {
		var nonRetryable registry.NonRetryableError
		if errors.As(err, &nonRetryable) || errors.Is(err, errNoPublisher) {
			return s.park(logCtx, tx, event, "non_retryable", err)
		}
		if event.AttemptCount+1 >= s.maxAttempts {
			return s.park(logCtx, tx, event, "max_attempts", fmt.Errorf("giving up after %d attempts: %w", s.maxAttempts, err))
		}
		s.logg.Warn(s.logg.WithFields(logCtx, map[string]any{
			"attempt": event.AttemptCount + 1,
			"error":   err.Error(),
		}), "outbox.publish_failed")
		if err := s.repo.MarkFailedTx(tx, event.ID, err); err != nil {
			return "", fmt.Errorf("mark failed %s: %w", event.ID, err)
		}
		return outcomeRetry, nil
	}

	if _, err := s.deliveries.Record(ctx, event.ID); err != nil {
		s.logg.Warn(s.logg.WithField(logCtx, "error", err.Error()), "outbox.delivery_not_recorded")
	}
	if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
		return "", fmt.Errorf("mark published %s: %w", event.ID, err)
	}
	s.logg.Info(logCtx, "outbox.event_published")
	return outcomePublished, nil
}

// park stops retrying a row. It stays in outbox_events with its payload and
// last error for manual inspection.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason string, cause error) (outcome, error) {
	s.logg.Warn(s.logg.WithFields(ctx, map[string]any{
		"reason": reason,
		"error":  cause.Error(),
	}), "outbox.event_parked")
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return "", fmt.Errorf("park %s: %w", event.ID, err)
	}
	return outcomeParked, nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publisherFor(topic)
	if pub == nil {
		return fmt.Errorf("%w %q", errNoPublisher, topic)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	_, err := pub.Publish(ctx, &gcppubsub.Message{
		Data:       event.Payload,
		Attributes: messageAttributes(event, resolved),
	}).Get(ctx)
	return err
}

func messageAttributes(event models.OutboxEvent, resolved *registry.ResolvedEvent) map[string]string {
	return map[string]string{
		"event_id":       resolved.Envelope.EventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"occurred_at":    resolved.Envelope.OccurredAt.UTC().Format(time.RFC3339Nano),
	}
}

func eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
