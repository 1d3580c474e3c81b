package booking

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// Refund refunds the charge of a booking and cancels it. Once the processor
// reports the refund as succeeded the result is a success: failures of the
// cancellation or the mail after that point are recorded for reconciliation
// and flagged on the result.
func (s *Service) Refund(ctx context.Context, bookingID uuid.UUID, paymentID string) (domain.RefundResult, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Refund", trace.WithAttributes(
		attribute.String("booking.id", bookingID.String()),
		attribute.String("payment.id", paymentID),
	))
	defer span.End()

	log := s.log(ctx).WithFields(map[string]interface{}{
		"booking_id": bookingID.String(),
		"payment_id": paymentID,
	})

	b, err := s.store.FindByBookingID(ctx, bookingID)
	if errors.Is(err, domain.ErrNotFound) {
		return s.refundResult(domain.RefundResult{
			Outcome: domain.RefundBookingNotFound,
			Message: "booking cannot be found",
		}), nil
	}
	if err != nil {
		return domain.RefundResult{}, err
	}
	if b.PaymentID != paymentID {
		return domain.RefundResult{}, domain.Invalidf("payment %s does not belong to booking %s", paymentID, bookingID)
	}
	if b.Status == domain.StatusCancelled {
		return s.refundResult(domain.RefundResult{
			Success: true,
			Outcome: domain.RefundAlreadyDone,
			Message: "booking already cancelled",
		}), nil
	}

	refund, err := s.gateway.CreateRefund(ctx, paymentID)
	if err != nil {
		span.RecordError(err)
		log.Error("refund request failed: ", err)
		return s.refundResult(domain.RefundResult{
			Outcome: domain.RefundFailed,
			Message: "refund failed at payment gateway",
		}), nil
	}
	if refund.Status != domain.RefundStatusSucceeded {
		log.WithField("refund_id", refund.ID).Warn("refund not succeeded: ", refund.Status)
		return s.refundResult(domain.RefundResult{
			Outcome: domain.RefundFailed,
			Message: "refund " + string(refund.Status) + " at payment gateway",
		}), nil
	}
	log.WithField("refund_id", refund.ID).Info("refund succeeded")

	// the money has moved; finish even if the caller goes away
	ctx = context.WithoutCancel(ctx)
	followUp := domain.RefundFollowUp{BookingID: bookingID, PaymentID: paymentID}

	err = s.completeRefund(ctx, bookingID)
	switch {
	case errors.Is(err, domain.ErrNotFound):
		s.recordReconciliation(ctx, domain.ReconcileRefundFollowUp, bookingID.String(), followUp, err)
		return s.refundResult(domain.RefundResult{
			Outcome:             domain.RefundBookingNotFound,
			Message:             "refund issued but booking cannot be found for cancellation",
			NeedsReconciliation: true,
		}), nil
	case err != nil:
		s.recordReconciliation(ctx, domain.ReconcileRefundFollowUp, bookingID.String(), followUp, err)
		return s.refundResult(domain.RefundResult{
			Success:             true,
			Outcome:             domain.RefundSucceeded,
			Message:             "refund issued; cancellation follow-up pending",
			NeedsReconciliation: true,
		}), nil
	}

	return s.refundResult(domain.RefundResult{
		Success: true,
		Outcome: domain.RefundSucceeded,
		Message: "booking cancelled and refunded",
	}), nil
}

func (s *Service) refundResult(res domain.RefundResult) domain.RefundResult {
	observability.Refunds.WithLabelValues(string(res.Outcome)).Inc()
	return res
}

// completeRefund cancels the booking and sends the cancellation mail. It is
// safe to repeat.
func (s *Service) completeRefund(ctx context.Context, bookingID uuid.UUID) error {
	b, err := s.store.UpdateStatus(ctx, bookingID, domain.StatusCancelled)
	if err != nil {
		return err
	}

	var (
		email string
		hotel domain.Hotel
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		email, err = s.billingEmail(gctx, *b)
		return err
	})
	g.Go(func() error {
		hotel = s.hotelFor(gctx, *b)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	return s.notifier.SendCancellation(ctx, domain.Notification{To: email, Booking: *b, Hotel: hotel})
}

// billingEmail recovers the billing address from the payment intent metadata,
// falling back to the address stored on the booking.
func (s *Service) billingEmail(ctx context.Context, b domain.Booking) (string, error) {
	intent, err := s.gateway.GetPaymentIntent(ctx, b.PayeeID)
	if err == nil && intent.Metadata[domain.MetadataBillingEmail] != "" {
		return intent.Metadata[domain.MetadataBillingEmail], nil
	}
	if b.BillingEmail != "" {
		if err != nil {
			s.log(ctx).WithField("payee_id", b.PayeeID).Warn("payment intent lookup failed, using stored billing email: ", err)
		}
		return b.BillingEmail, nil
	}
	if err != nil {
		return "", gatewayError(err, "recover billing email")
	}
	return "", errors.Newf("no billing email for booking %s", b.ID)
}

// CancelBooking marks a booking cancelled without touching the payment. The
// charge is not refunded, and a later Refund for the booking reports it as
// already cancelled, so the money has to be returned out of band.
func (s *Service) CancelBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	current, err := s.store.FindByBookingID(ctx, id)
	if err != nil {
		return nil, err
	}
	if current.Status == domain.StatusCancelled {
		return current, nil
	}
	b, err := s.store.UpdateStatus(ctx, id, domain.StatusCancelled)
	if err != nil {
		return nil, err
	}
	observability.CancellationsWithoutRefund.Inc()
	s.log(ctx).WithFields(map[string]interface{}{
		"booking_id": id.String(),
		"payment_id": b.PaymentID,
	}).Warn("booking cancelled without a refund; the charge must be refunded manually")
	return b, nil
}
