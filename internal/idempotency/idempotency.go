package idempotency

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	redisadapter "github.com/robertarktes/hotel-booking-payments/internal/adapters/redis"
)

const (
	minKeyLen = 16
	maxKeyLen = 255

	lockTTL = 30 * time.Second
)

var (
	ErrInvalidKey = errors.New("invalid Idempotency-Key")
	ErrInFlight   = errors.New("request with this Idempotency-Key is in progress")
)

type Store interface {
	Get(ctx context.Context, key string) (*redisadapter.IdempResponse, error)
	Set(ctx context.Context, key string, resp redisadapter.IdempResponse, ttl time.Duration) error
	Lock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, key string) error
}

// Idempotency replays stored responses for requests that carry a key already
// seen within ttl.
type Idempotency struct {
	store Store
	ttl   time.Duration
}

func NewIdempotency(store Store, ttl time.Duration) *Idempotency {
	return &Idempotency{store: store, ttl: ttl}
}

type Response struct {
	Status      int
	ContentType string
	Result      []byte
}

func ValidKey(key string) error {
	if len(key) < minKeyLen || len(key) > maxKeyLen {
		return errors.Wrapf(ErrInvalidKey, "length must be between %d and %d", minKeyLen, maxKeyLen)
	}
	return nil
}

func (i *Idempotency) Get(ctx context.Context, key string) (*Response, error) {
	stored, err := i.store.Get(ctx, key)
	if err != nil || stored == nil {
		return nil, err
	}
	return &Response{Status: stored.Status, ContentType: stored.ContentType, Result: stored.Result}, nil
}

func (i *Idempotency) Set(ctx context.Context, key string, resp Response) error {
	return i.store.Set(ctx, key, redisadapter.IdempResponse{
		Status:      resp.Status,
		ContentType: resp.ContentType,
		Result:      resp.Result,
	}, i.ttl)
}

// Begin reserves key for the current request. It returns ErrInFlight when
// another request holds it.
func (i *Idempotency) Begin(ctx context.Context, key string) error {
	ok, err := i.store.Lock(ctx, key, lockTTL)
	if err != nil {
		return err
	}
	if !ok {
		return ErrInFlight
	}
	return nil
}

func (i *Idempotency) End(ctx context.Context, key string) error {
	return i.store.Unlock(ctx, key)
}
