package mongo

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type HotelRepository struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewHotelRepository(db *mongo.Database, logger observability.Logger) *HotelRepository {
	return &HotelRepository{
		coll:   db.Collection("hotels"),
		logger: logger,
	}
}

type HotelDoc struct {
	ID            string    `bson:"_id"`
	Name          string    `bson:"name"`
	Address       string    `bson:"address"`
	DestinationID string    `bson:"destination_id"`
	UpdatedAt     time.Time `bson:"updated_at"`
}

func (h *HotelRepository) GetHotel(ctx context.Context, id string) (domain.Hotel, error) {
	var doc HotelDoc
	err := h.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return domain.Hotel{}, errors.Wrapf(domain.ErrNotFound, "hotel %s", id)
	}
	if err != nil {
		h.logger.Error("failed to get hotel", err)
		return domain.Hotel{}, errors.Wrapf(err, "get hotel %s", id)
	}
	return domain.Hotel{
		ID:            doc.ID,
		Name:          doc.Name,
		Address:       doc.Address,
		DestinationID: doc.DestinationID,
	}, nil
}

// UpsertHotel is used by the catalogue sync and by tests to seed hotels.
func (h *HotelRepository) UpsertHotel(ctx context.Context, hotel domain.Hotel) error {
	_, err := h.coll.UpdateOne(
		ctx,
		bson.M{"_id": hotel.ID},
		bson.M{"$set": bson.M{
			"name":           hotel.Name,
			"address":        hotel.Address,
			"destination_id": hotel.DestinationID,
			"updated_at":     time.Now(),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		h.logger.Error("failed to upsert hotel", err)
		return errors.Wrapf(err, "upsert hotel %s", hotel.ID)
	}
	return nil
}
