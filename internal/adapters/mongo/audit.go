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

type AuditLogger struct {
	coll   *mongo.Collection
	logger observability.Logger
}

func NewAuditLogger(db *mongo.Database, logger observability.Logger) *AuditLogger {
	return &AuditLogger{
		coll:   db.Collection("audit_logs"),
		logger: logger,
	}
}

type AuditLog struct {
	ID         string    `bson:"_id"`
	Action     string    `bson:"action"`
	BookingID  string    `bson:"booking_id"`
	CustomerID *string   `bson:"customer_id,omitempty"`
	Timestamp  time.Time `bson:"timestamp"`
	Data       bson.M    `bson:"data"`
}

// LogBookingEvent stores one audit entry per message id. Redelivered
// messages are ignored.
func (a *AuditLogger) LogBookingEvent(ctx context.Context, messageID, action string, ev domain.BookingEvent) error {
	log := AuditLog{
		ID:         messageID,
		Action:     action,
		BookingID:  ev.BookingID.String(),
		CustomerID: ev.CustomerID,
		Timestamp:  ev.OccurredAt,
		Data: bson.M{
			"status":     string(ev.Status),
			"hotel_id":   ev.HotelID,
			"payment_id": ev.PaymentID,
			"payee_id":   ev.PayeeID,
			"price":      ev.Price,
			"currency":   ev.Currency,
		},
	}
	_, err := a.coll.InsertOne(ctx, log)
	if mongo.IsDuplicateKeyError(err) {
		a.logger.WithField("message_id", messageID).Debug("audit entry already stored")
		return nil
	}
	if err != nil {
		a.logger.Error("failed to insert audit log: ", err)
		return errors.Wrap(err, "insert audit log")
	}
	return nil
}

// BookingHistory returns the audit trail of a booking, oldest first.
func (a *AuditLogger) BookingHistory(ctx context.Context, bookingID string) ([]AuditLog, error) {
	cur, err := a.coll.Find(ctx, bson.M{"booking_id": bookingID}, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "find audit logs")
	}
	var logs []AuditLog
	if err := cur.All(ctx, &logs); err != nil {
		return nil, errors.Wrap(err, "decode audit logs")
	}
	return logs, nil
}
