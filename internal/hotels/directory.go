package hotels

import (
	"context"
	"time"

	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
)

type Source interface {
	GetHotel(ctx context.Context, id string) (domain.Hotel, error)
}

type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

// Directory reads hotel details through a read-through cache. Cache failures
// only cost a trip to the source.
type Directory struct {
	source Source
	cache  Cache
	ttl    time.Duration
	logger observability.Logger
}

func NewDirectory(source Source, cache Cache, ttl time.Duration, logger observability.Logger) *Directory {
	return &Directory{source: source, cache: cache, ttl: ttl, logger: logger}
}

func (d *Directory) Hotel(ctx context.Context, id string) (domain.Hotel, error) {
	if id == "" {
		return domain.Hotel{}, domain.Invalidf("hotel id is required")
	}
	key := "hotel:" + id

	if d.cache != nil {
		var cached domain.Hotel
		found, err := d.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			d.logger.WithField("hotel_id", id).Warn("hotel cache read failed: ", err)
		}
		if found {
			return cached, nil
		}
	}

	hotel, err := d.source.GetHotel(ctx, id)
	if err != nil {
		return domain.Hotel{}, err
	}

	if d.cache != nil {
		if err := d.cache.SetJSON(ctx, key, hotel, d.ttl); err != nil {
			d.logger.WithField("hotel_id", id).Warn("hotel cache write failed: ", err)
		}
	}
	return hotel, nil
}
