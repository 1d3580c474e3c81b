package hotels

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
)

type countingSource struct {
	hotels map[string]domain.Hotel
	calls  int
}

func (s *countingSource) GetHotel(ctx context.Context, id string) (domain.Hotel, error) {
	s.calls++
	h, ok := s.hotels[id]
	if !ok {
		return domain.Hotel{}, domain.ErrNotFound
	}
	return h, nil
}

type memCache struct {
	data    map[string][]byte
	failGet bool
}

func (c *memCache) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	if c.failGet {
		return false, errors.New("redis down")
	}
	raw, ok := c.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (c *memCache) SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.data[key] = raw
	return nil
}

func TestDirectory_CachesHotels(t *testing.T) {
	hotel := domain.Hotel{ID: "h1", Name: "Test Hotel", Address: "1 Beach Road"}
	source := &countingSource{hotels: map[string]domain.Hotel{"h1": hotel}}
	dir := NewDirectory(source, &memCache{data: map[string][]byte{}}, time.Hour, observability.NewNopLogger())

	for i := 0; i < 3; i++ {
		got, err := dir.Hotel(context.Background(), "h1")
		if err != nil {
			t.Fatal(err)
		}
		if got != hotel {
			t.Errorf("expected %+v, got %+v", hotel, got)
		}
	}
	if source.calls != 1 {
		t.Errorf("expected 1 source call, got %d", source.calls)
	}
}

func TestDirectory_FallsBackOnCacheFailure(t *testing.T) {
	source := &countingSource{hotels: map[string]domain.Hotel{"h1": {ID: "h1", Name: "Test Hotel"}}}
	dir := NewDirectory(source, &memCache{data: map[string][]byte{}, failGet: true}, time.Hour, observability.NewNopLogger())

	if _, err := dir.Hotel(context.Background(), "h1"); err != nil {
		t.Fatalf("expected source fallback, got %v", err)
	}
	if _, err := dir.Hotel(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected not found, got %v", err)
	}
	if _, err := dir.Hotel(context.Background(), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}
