package booking

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// HandleWebhook decodes a processor delivery and handles it. Only a delivery
// that cannot be verified or decoded yields an error; failures while handling
// a decoded event are logged and recorded for reconciliation because the
// payment has already settled.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.gateway.ParseEvent(payload, signature)
	if err != nil {
		observability.WebhookEvents.WithLabelValues("unknown", "rejected").Inc()
		return err
	}
	if err := s.HandleEvent(ctx, event); err != nil {
		s.log(ctx).WithFields(map[string]interface{}{
			"event_id":   event.ID,
			"event_type": event.Type,
		}).Error("webhook event not processed: ", err)
	}
	return nil
}

// HandleEvent drives the booking state machine for one decoded event.
func (s *Service) HandleEvent(ctx context.Context, event domain.PaymentEvent) error {
	ctx, span := s.tracer.Start(ctx, "booking.HandleEvent", trace.WithAttributes(
		attribute.String("event.id", event.ID),
		attribute.String("event.type", event.Type),
	))
	defer span.End()

	log := s.log(ctx).WithFields(map[string]interface{}{
		"event_id":   event.ID,
		"event_type": event.Type,
	})

	handled := false
	if s.guard != nil && event.ID != "" {
		won, err := s.guard.Claim(ctx, event.ID)
		switch {
		case err != nil:
			log.Warn("event claim failed, relying on store dedupe: ", err)
		case !won:
			observability.WebhookEvents.WithLabelValues(event.Type, "duplicate").Inc()
			log.Info("duplicate event ignored")
			return nil
		default:
			// runs on error and on panic too, so an aborted delivery never
			// marks the event handled
			defer s.settleClaim(ctx, log, event.ID, &handled)
		}
	}

	outcome := "handled"
	var err error
	switch event.Type {
	case domain.EventChargeSucceeded:
		log.WithField("payment_intent_id", event.PaymentIntentID).Info("charge succeeded")
	case domain.EventCheckoutSessionCompleted:
		err = s.handleCheckoutCompleted(ctx, event)
	case domain.EventPaymentIntentCreated:
		err = s.handlePaymentIntentCreated(ctx, event)
	case domain.EventRefundCreated:
		log.WithField("payment_intent_id", event.PaymentIntentID).Info("refund created")
	case domain.EventRefundUpdated:
		if event.Refund != nil {
			err = s.refundHook.RefundUpdated(ctx, *event.Refund)
		}
	default:
		outcome = "ignored"
		log.Debug("unhandled event type")
	}

	if err != nil {
		observability.WebhookEvents.WithLabelValues(event.Type, "failed").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "event handling")
		return err
	}
	handled = true
	observability.WebhookEvents.WithLabelValues(event.Type, outcome).Inc()
	return nil
}

func (s *Service) settleClaim(ctx context.Context, log observability.Logger, eventID string, handled *bool) {
	ctx = context.WithoutCancel(ctx)
	if *handled {
		if err := s.guard.Done(ctx, eventID); err != nil {
			log.Warn("failed to mark event handled: ", err)
		}
		return
	}
	if err := s.guard.Release(ctx, eventID); err != nil {
		log.Warn("failed to release event claim: ", err)
	}
}

func (s *Service) handleCheckoutCompleted(ctx context.Context, event domain.PaymentEvent) error {
	completed := event.Checkout
	if completed == nil {
		return domain.Invalidf("event %s carries no checkout session", event.ID)
	}
	if _, err := s.completeCheckout(ctx, *completed); err != nil {
		s.recordReconciliation(ctx, domain.ReconcileCheckoutCompleted, completed.PaymentIntentID, completed, err)
		return err
	}
	return nil
}

// completeCheckout turns a completed checkout session into a booking. It is
// safe to repeat: the booking is keyed on the payment intent.
func (s *Service) completeCheckout(ctx context.Context, completed domain.CompletedCheckout) (uuid.UUID, error) {
	if completed.PaymentIntentID == "" {
		return uuid.Nil, domain.Invalidf("checkout session %s has no payment intent", completed.SessionID)
	}
	log := s.log(ctx).WithField("payment_intent_id", completed.PaymentIntentID)

	if completed.BillingEmail != "" {
		err := s.gateway.UpdatePaymentIntentMetadata(ctx, completed.PaymentIntentID, map[string]string{
			domain.MetadataBillingEmail: completed.BillingEmail,
		})
		if err != nil {
			// the booking keeps its own copy of the address
			log.Warn("failed to attach billing email to payment intent: ", err)
		}
	}

	intent, err := s.gateway.GetPaymentIntent(ctx, completed.PaymentIntentID)
	if err != nil {
		return uuid.Nil, gatewayError(err, "fetch payment intent")
	}
	if intent.LatestChargeID == "" {
		return uuid.Nil, errors.Newf("payment intent %s has no settled charge", intent.ID)
	}

	return s.CreateBooking(ctx, domain.BookingRequest{
		BillingEmail: completed.BillingEmail,
		Intent:       completed.Intent,
		PaymentID:    intent.LatestChargeID,
		PayeeID:      intent.ID,
	})
}

func (s *Service) handlePaymentIntentCreated(ctx context.Context, event domain.PaymentEvent) error {
	if s.cfg.ReceiptEmail == "" || event.PaymentIntentID == "" {
		return nil
	}
	err := s.gateway.UpdatePaymentIntentMetadata(ctx, event.PaymentIntentID, map[string]string{
		domain.MetadataReceiptEmail: s.cfg.ReceiptEmail,
	})
	if err != nil {
		return gatewayError(err, "attach receipt email")
	}
	return nil
}

// CreateBooking persists a confirmed booking for a settled payment and sends
// the confirmation mail. Repeating a request for the same payment intent
// returns the existing booking id and sends nothing.
func (s *Service) CreateBooking(ctx context.Context, req domain.BookingRequest) (uuid.UUID, error) {
	ctx, span := s.tracer.Start(ctx, "booking.CreateBooking", trace.WithAttributes(
		attribute.String("payment.payee_id", req.PayeeID),
	))
	defer span.End()

	b, err := domain.NewBooking(req, s.cfg.Currency)
	if err != nil {
		return uuid.Nil, err
	}
	id, created, err := s.store.InsertBooking(ctx, b)
	if err != nil {
		span.RecordError(err)
		return uuid.Nil, err
	}
	b.ID = id

	log := s.log(ctx).WithFields(map[string]interface{}{
		"booking_id": id.String(),
		"payee_id":   b.PayeeID,
	})
	if !created {
		log.Info("booking already exists for payment")
		return id, nil
	}
	log.Info("booking created")

	hotel := s.hotelFor(ctx, b)
	note := domain.Notification{To: b.BillingEmail, Booking: b, Hotel: hotel, CancelLink: s.cancelLink(b)}
	if err := s.notifier.SendConfirmation(context.WithoutCancel(ctx), note); err != nil {
		log.Error("failed to send booking confirmation: ", err)
	}
	return id, nil
}

// CreateVerifiedBooking creates a booking from client-supplied payment
// references after checking them against the processor.
func (s *Service) CreateVerifiedBooking(ctx context.Context, req domain.BookingRequest) (uuid.UUID, error) {
	if req.PayeeID == "" || req.PaymentID == "" {
		return uuid.Nil, domain.Invalidf("payment references are required")
	}
	intent, err := s.gateway.GetPaymentIntent(ctx, req.PayeeID)
	if errors.Is(err, domain.ErrNotFound) {
		return uuid.Nil, domain.Invalidf("unknown payment intent %s", req.PayeeID)
	}
	if err != nil {
		return uuid.Nil, gatewayError(err, "verify payment intent")
	}
	if intent.Status != domain.PaymentIntentSucceeded {
		return uuid.Nil, domain.Invalidf("payment intent %s is %s", intent.ID, intent.Status)
	}
	if intent.LatestChargeID != req.PaymentID {
		return uuid.Nil, domain.Invalidf("payment %s does not belong to payment intent %s", req.PaymentID, intent.ID)
	}
	if req.BillingEmail == "" {
		req.BillingEmail = intent.Metadata[domain.MetadataBillingEmail]
	}
	return s.CreateBooking(ctx, req)
}

// hotelFor looks up hotel details, falling back to what the booking stores.
func (s *Service) hotelFor(ctx context.Context, b domain.Booking) domain.Hotel {
	hotel, err := s.hotels.Hotel(ctx, b.HotelID)
	if err != nil {
		s.log(ctx).WithField("hotel_id", b.HotelID).Warn("hotel lookup failed: ", err)
		return domain.Hotel{ID: b.HotelID, Name: b.HotelName, DestinationID: b.DestinationID}
	}
	return hotel
}
