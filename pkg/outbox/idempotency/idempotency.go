// Package idempotency remembers which outbox events a consumer has already
// delivered, so a batch that rolls back after publishing does not publish the
// same event twice.
package idempotency

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
)

// DefaultRetention outlives any realistic redelivery of a parked batch.
const DefaultRetention = 72 * time.Hour

var (
	ErrConsumerRequired = errors.New("idempotency: consumer name required")
	ErrEventIDRequired  = errors.New("idempotency: event id required")
)

type markStore interface {
	Get(context.Context, string) (string, error)
	SetNX(context.Context, string, any, time.Duration) (bool, error)
	IdempotencyKey(scope, id string) string
	Del(context.Context, ...string) error
}

// Ledger records deliveries for one consumer under
// ms:idempotency:delivered:<consumer>:<event id>.
type Ledger struct {
	store     markStore
	scope     string
	retention time.Duration
}

func NewLedger(store markStore, consumer string, retention time.Duration) (*Ledger, error) {
	if store == nil {
		return nil, errors.New("idempotency: store required")
	}
	if consumer == "" {
		return nil, ErrConsumerRequired
	}
	if retention < 0 {
		return nil, errors.New("idempotency: retention must not be negative")
	}
	if retention == 0 {
		retention = DefaultRetention
	}
	return &Ledger{store: store, scope: "delivered:" + consumer, retention: retention}, nil
}

// Delivered reports whether eventID was recorded and has not expired.
func (l *Ledger) Delivered(ctx context.Context, eventID uuid.UUID) (bool, error) {
	key, err := l.key(eventID)
	if err != nil {
		return false, err
	}
	_, err = l.store.Get(ctx, key)
	switch {
	case errors.Is(err, goredis.Nil):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// Record marks eventID delivered. It reports false when another delivery got
// there first.
func (l *Ledger) Record(ctx context.Context, eventID uuid.UUID) (bool, error) {
	key, err := l.key(eventID)
	if err != nil {
		return false, err
	}
	return l.store.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339), l.retention)
}

// Forget drops the mark so an operator can force a redelivery.
func (l *Ledger) Forget(ctx context.Context, eventID uuid.UUID) error {
	key, err := l.key(eventID)
	if err != nil {
		return err
	}
	return l.store.Del(ctx, key)
}

func (l *Ledger) key(eventID uuid.UUID) (string, error) {
	if eventID == uuid.Nil {
		return "", ErrEventIDRequired
	}
	return l.store.IdempotencyKey(l.scope, eventID.String()), nil
}
