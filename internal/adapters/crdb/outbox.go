package crdb

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
)

const (
	OutboxNew       = "NEW"
	OutboxPublished = "PUBLISHED"
)

// OutboxRecord is one booking event waiting for the broker. DedupeKey is
// stable per booking and status, so a relayed duplicate carries the same
// message id.
type OutboxRecord struct {
	ID            uuid.UUID
	AggregateType string
	AggregateID   uuid.UUID
	EventType     string
	Payload       []byte
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Status        string
	DedupeKey     string
}

func bookingOutboxRecord(b domain.Booking, at time.Time) (OutboxRecord, error) {
	payload, err := json.Marshal(domain.NewBookingEvent(b, at))
	if err != nil {
		return OutboxRecord{}, errors.Wrap(err, "encode booking event")
	}
	routingKey := b.Status.RoutingKey()
	return OutboxRecord{
		ID:            uuid.New(),
		AggregateType: "booking",
		AggregateID:   b.ID,
		EventType:     routingKey,
		Payload:       payload,
		Status:        OutboxNew,
		DedupeKey:     routingKey + ":" + b.ID.String(),
	}, nil
}

// insertBookingEvent must run in the tx that changed the booking.
func (r *Repository) insertBookingEvent(ctx context.Context, tx pgx.Tx, b domain.Booking) error {
	rec, err := bookingOutboxRecord(b, time.Now())
	if err != nil {
		return err
	}
	return r.InsertOutbox(ctx, tx, rec)
}

func (r *Repository) InsertOutbox(ctx context.Context, tx pgx.Tx, rec OutboxRecord) error {
	if _, err := tx.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, status, dedupe_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.ID, rec.AggregateType, rec.AggregateID, rec.EventType, rec.Payload, OutboxNew, rec.DedupeKey); err != nil {
		return errors.Wrapf(err, "insert outbox %s", rec.DedupeKey)
	}
	return nil
}

// GetUnpublishedOutbox returns the oldest unpublished records first.
func (r *Repository) GetUnpublishedOutbox(ctx context.Context, limit int) ([]OutboxRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload_json, created_at, published_at, status, dedupe_key
		FROM outbox WHERE status = $1 ORDER BY created_at ASC LIMIT $2
	`, OutboxNew, limit)
	if err != nil {
		return nil, errors.Wrap(err, "query outbox")
	}
	records, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (OutboxRecord, error) {
		var rec OutboxRecord
		err := row.Scan(&rec.ID, &rec.AggregateType, &rec.AggregateID, &rec.EventType, &rec.Payload,
			&rec.CreatedAt, &rec.PublishedAt, &rec.Status, &rec.DedupeKey)
		return rec, err
	})
	return records, errors.Wrap(err, "scan outbox")
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE outbox SET status = $3, published_at = $2 WHERE id = $1 AND status = $4
	`, id, publishedAt, OutboxPublished, OutboxNew)
	return errors.Wrap(err, "mark outbox published")
}
