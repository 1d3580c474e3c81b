package booking

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CreateCheckoutSession opens a payment session for intent. Nothing is
// persisted: the booking is only created once the payment settles.
func (s *Service) CreateCheckoutSession(ctx context.Context, intent domain.CheckoutIntent) (domain.Session, error) {
	ctx, span := s.tracer.Start(ctx, "booking.CreateCheckoutSession", trace.WithAttributes(
		attribute.String("hotel.id", intent.Get(domain.KeyHotelID)),
	))
	defer span.End()

	if err := intent.Validate(); err != nil {
		return domain.Session{}, err
	}
	price, err := intent.Price()
	if err != nil {
		return domain.Session{}, err
	}

	req := domain.SessionRequest{
		ProductName:   intent.Get(domain.KeyHotelName),
		Currency:      s.cfg.Currency,
		UnitAmount:    domain.MinorUnits(price),
		CustomerEmail: intent.Get(domain.KeyCustomerEmail),
		Metadata:      intent.Clone(),
		SuccessURL:    s.cfg.ClientURL + "/success",
		CancelURL:     s.cfg.ClientURL + "/cancel",
	}
	session, err := s.gateway.CreateCheckoutSession(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "checkout session")
		return domain.Session{}, gatewayError(err, "create checkout session")
	}

	s.log(ctx).WithFields(map[string]interface{}{
		"session_id": session.ID,
		"hotel_id":   intent.Get(domain.KeyHotelID),
		"amount":     req.UnitAmount,
	}).Info("checkout session created")
	return session, nil
}

func gatewayError(err error, msg string) error {
	err = errors.Wrap(err, msg)
	if errors.Is(err, domain.ErrGateway) {
		return err
	}
	return errors.Mark(err, domain.ErrGateway)
}
