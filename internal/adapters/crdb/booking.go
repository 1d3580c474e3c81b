package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/shopspring/decimal"
)

const bookingColumns = `id, status, destination_id, hotel_id, hotel_name, room_key, room_types, customer_id,
	number_of_nights, start_date, end_date, num_adults, num_children, msg_to_hotel, price::TEXT, currency,
	guest_salutation, guest_first_name, guest_last_name, billing_email, payment_id, payee_id, created_at, updated_at`

// InsertBooking stores a new booking and its booking.confirmed outbox event.
// A booking with the same payee id is never inserted twice: the existing id
// is returned with created=false.
func (r *Repository) InsertBooking(ctx context.Context, b domain.Booking) (uuid.UUID, bool, error) {
	newID := uuid.New()
	var id uuid.UUID
	created := false

	err := r.withRetry(ctx, func(tx pgx.Tx) error {
		id = newID
		result, err := tx.Exec(ctx, `
			INSERT INTO bookings (id, status, destination_id, hotel_id, hotel_name, room_key, room_types, customer_id,
				number_of_nights, start_date, end_date, num_adults, num_children, msg_to_hotel, price, currency,
				guest_salutation, guest_first_name, guest_last_name, billing_email, payment_id, payee_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22)
			ON CONFLICT (payee_id) DO NOTHING
		`, id, string(b.Status), b.DestinationID, b.HotelID, b.HotelName, b.RoomKey, b.RoomTypes, b.CustomerID,
			b.NumberOfNights, b.StartDate, b.EndDate, b.NumAdults, b.NumChildren, b.MsgToHotel, b.Price.String(), b.Currency,
			b.GuestSalutation, b.GuestFirstName, b.GuestLastName, b.BillingEmail, b.PaymentID, b.PayeeID)
		if err != nil {
			return err
		}

		if result.RowsAffected() == 0 {
			created = false
			return tx.QueryRow(ctx, `SELECT id FROM bookings WHERE payee_id = $1`, b.PayeeID).Scan(&id)
		}

		created = true
		b.ID = id
		return r.insertBookingEvent(ctx, tx, b)
	})
	if err != nil {
		return uuid.Nil, false, errors.Wrap(err, "insert booking")
	}
	return id, created, nil
}

func (r *Repository) FindByBookingID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "find booking")
	}
	return b, nil
}

func (r *Repository) FindByCustomerID(ctx context.Context, customerID string) ([]domain.Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings WHERE customer_id = $1 ORDER BY created_at ASC
	`, customerID)
	if err != nil {
		return nil, errors.Wrap(err, "find customer bookings")
	}
	defer rows.Close()

	bookings := []domain.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// UpdateStatus moves a booking to status with a single conditional update.
// Re-applying the current status returns the booking unchanged; a missing
// booking yields domain.ErrNotFound.
func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (*domain.Booking, error) {
	if !status.Valid() {
		return nil, domain.Invalidf("unknown booking status %q", status)
	}

	var updated *domain.Booking
	err := r.withRetry(ctx, func(tx pgx.Tx) error {
		if from, ok := domain.TransitionFrom(status); ok {
			b, err := scanBooking(tx.QueryRow(ctx, `
				UPDATE bookings SET status = $2, updated_at = now()
				WHERE id = $1 AND status = $3
				RETURNING `+bookingColumns,
				id, string(status), string(from)))
			if err == nil {
				updated = b
				return r.insertBookingEvent(ctx, tx, *b)
			}
			if !errors.Is(err, pgx.ErrNoRows) {
				return err
			}
		}

		current, err := scanBooking(tx.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		if err != nil {
			return err
		}
		if current.Status != status {
			return errors.Wrapf(domain.ErrInvalidTransition, "%s -> %s", current.Status, status)
		}
		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *Repository) RemoveBooking(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return errors.Wrap(err, "remove booking")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func scanBooking(row pgx.Row) (*domain.Booking, error) {
	var (
		b      domain.Booking
		status string
		price  string
	)
	err := row.Scan(&b.ID, &status, &b.DestinationID, &b.HotelID, &b.HotelName, &b.RoomKey, &b.RoomTypes, &b.CustomerID,
		&b.NumberOfNights, &b.StartDate, &b.EndDate, &b.NumAdults, &b.NumChildren, &b.MsgToHotel, &price, &b.Currency,
		&b.GuestSalutation, &b.GuestFirstName, &b.GuestLastName, &b.BillingEmail, &b.PaymentID, &b.PayeeID,
		&b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Status = domain.Status(status)
	b.Price, err = decimal.NewFromString(price)
	if err != nil {
		return nil, errors.Wrapf(err, "booking %s price", b.ID)
	}
	return &b, nil
}
