package domain

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys of booking events published from the outbox.
const (
	RoutingBookingConfirmed = "booking.confirmed"
	RoutingBookingCancelled = "booking.cancelled"
)

type BookingEvent struct {
	BookingID  uuid.UUID `json:"booking_id"`
	Status     Status    `json:"status"`
	HotelID    string    `json:"hotel_id"`
	CustomerID *string   `json:"customer_id,omitempty"`
	PaymentID  string    `json:"payment_id"`
	PayeeID    string    `json:"payee_id"`
	Price      string    `json:"price"`
	Currency   string    `json:"currency"`
	OccurredAt time.Time `json:"occurred_at"`
}

func NewBookingEvent(b Booking, at time.Time) BookingEvent {
	return BookingEvent{
		BookingID:  b.ID,
		Status:     b.Status,
		HotelID:    b.HotelID,
		CustomerID: b.CustomerID,
		PaymentID:  b.PaymentID,
		PayeeID:    b.PayeeID,
		Price:      b.Price.StringFixed(2),
		Currency:   b.Currency,
		OccurredAt: at.UTC(),
	}
}

// RoutingKey maps a booking status to the event published for it.
func (s Status) RoutingKey() string {
	if s == StatusCancelled {
		return RoutingBookingCancelled
	}
	return RoutingBookingConfirmed
}
