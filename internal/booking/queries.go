package booking

import (
	"context"

	"github.com/google/uuid"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
)

func (s *Service) GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	return s.store.FindByBookingID(ctx, id)
}

func (s *Service) CustomerBookings(ctx context.Context, customerID string) ([]domain.Booking, error) {
	if customerID == "" {
		return nil, domain.Invalidf("customer id is required")
	}
	return s.store.FindByCustomerID(ctx, customerID)
}

// RemoveBooking hard-deletes a booking. Cancellation is preferred; this is
// an operator tool.
func (s *Service) RemoveBooking(ctx context.Context, id uuid.UUID) error {
	if err := s.store.RemoveBooking(ctx, id); err != nil {
		return err
	}
	s.log(ctx).WithField("booking_id", id.String()).Warn("booking removed")
	return nil
}
