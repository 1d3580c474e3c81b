package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

type Claimer interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// EventClaims filters webhook redeliveries. A delivery holds a short
// in-flight lock while it is handled; only a delivery that finished is
// remembered for the long ttl. A handler that dies mid-flight leaves nothing
// but the lock, which expires before the processor retries.
type EventClaims struct {
	claimer Claimer
	lockTTL time.Duration
	doneTTL time.Duration
}

func NewEventClaims(claimer Claimer, lockTTL, doneTTL time.Duration) *EventClaims {
	return &EventClaims{claimer: claimer, lockTTL: lockTTL, doneTTL: doneTTL}
}

// Claim reports false when the event was already handled or another
// delivery of it is in flight.
func (e *EventClaims) Claim(ctx context.Context, eventID string) (bool, error) {
	done, err := e.claimer.Exists(ctx, doneKey(eventID))
	if err != nil {
		return false, errors.Wrap(err, "check handled event")
	}
	if done {
		return false, nil
	}
	return e.claimer.Claim(ctx, lockKey(eventID), e.lockTTL)
}

// Done remembers the event as handled and drops the in-flight lock.
func (e *EventClaims) Done(ctx context.Context, eventID string) error {
	if _, err := e.claimer.Claim(ctx, doneKey(eventID), e.doneTTL); err != nil {
		return errors.Wrap(err, "mark event handled")
	}
	return e.claimer.Release(ctx, lockKey(eventID))
}

func (e *EventClaims) Release(ctx context.Context, eventID string) error {
	return e.claimer.Release(ctx, lockKey(eventID))
}

func lockKey(eventID string) string { return "webhook:lock:" + eventID }
func doneKey(eventID string) string { return "webhook:done:" + eventID }
