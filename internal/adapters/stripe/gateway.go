package stripe

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/client"
	"github.com/stripe/stripe-go/v79/webhook"
)

// Gateway wraps the Stripe API calls used by the booking flow. Every call is
// bounded by the configured timeout and failures are marked domain.ErrGateway.
type Gateway struct {
	api           *client.API
	webhookSecret string
	timeout       time.Duration
}

// NewGateway builds a client for key. backends may be nil to use Stripe's
// default endpoints.
func NewGateway(key, webhookSecret string, timeout time.Duration, backends *stripe.Backends) *Gateway {
	return &Gateway{
		api:           client.New(key, backends),
		webhookSecret: webhookSecret,
		timeout:       timeout,
	}
}

func (g *Gateway) CreateCheckoutSession(ctx context.Context, req domain.SessionRequest) (domain.Session, error) {
	params := &stripe.CheckoutSessionParams{
		Mode: stripe.String(string(stripe.CheckoutSessionModePayment)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency: stripe.String(req.Currency),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(req.ProductName),
				},
				UnitAmount: stripe.Int64(req.UnitAmount),
			},
			Quantity: stripe.Int64(1),
		}},
		SuccessURL: stripe.String(req.SuccessURL),
		CancelURL:  stripe.String(req.CancelURL),
	}
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}

	var session domain.Session
	err := g.call(ctx, "create_checkout_session", func(ctx context.Context) error {
		params.Context = ctx
		s, err := g.api.CheckoutSessions.New(params)
		if err != nil {
			return err
		}
		session = domain.Session{ID: s.ID, URL: s.URL}
		return nil
	})
	return session, err
}

func (g *Gateway) GetPaymentIntent(ctx context.Context, id string) (domain.PaymentIntent, error) {
	var intent domain.PaymentIntent
	err := g.call(ctx, "get_payment_intent", func(ctx context.Context) error {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		pi, err := g.api.PaymentIntents.Get(id, params)
		if err != nil {
			return err
		}
		intent = toPaymentIntent(pi)
		return nil
	})
	return intent, err
}

// UpdatePaymentIntentMetadata merges metadata into the intent's metadata.
func (g *Gateway) UpdatePaymentIntentMetadata(ctx context.Context, id string, metadata map[string]string) error {
	return g.call(ctx, "update_payment_intent", func(ctx context.Context) error {
		params := &stripe.PaymentIntentParams{}
		params.Context = ctx
		for k, v := range metadata {
			params.AddMetadata(k, v)
		}
		_, err := g.api.PaymentIntents.Update(id, params)
		return err
	})
}

// CreateRefund requests a full refund of a charge. A refund the processor
// accepted but did not settle is returned without error; callers inspect
// its status.
func (g *Gateway) CreateRefund(ctx context.Context, chargeID string) (domain.Refund, error) {
	var refund domain.Refund
	err := g.call(ctx, "create_refund", func(ctx context.Context) error {
		params := &stripe.RefundParams{Charge: stripe.String(chargeID)}
		params.Context = ctx
		r, err := g.api.Refunds.New(params)
		if err != nil {
			return err
		}
		refund = toRefund(r)
		return nil
	})
	return refund, err
}

// ParseEvent verifies and decodes a webhook delivery. Signature verification
// is skipped when no webhook secret is configured.
func (g *Gateway) ParseEvent(payload []byte, signature string) (domain.PaymentEvent, error) {
	var event stripe.Event
	if g.webhookSecret != "" {
		var err error
		event, err = webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			return domain.PaymentEvent{}, errors.Mark(errors.Wrap(err, "verify webhook"), domain.ErrInvalidSignature)
		}
	} else if err := json.Unmarshal(payload, &event); err != nil {
		return domain.PaymentEvent{}, domain.Invalidf("decode webhook: %v", err)
	}
	return decodeEvent(event)
}

func decodeEvent(event stripe.Event) (domain.PaymentEvent, error) {
	out := domain.PaymentEvent{ID: event.ID, Type: string(event.Type)}
	if event.Data == nil || len(event.Data.Raw) == 0 {
		return out, domain.Invalidf("event %s has no data object", event.ID)
	}
	raw := event.Data.Raw

	switch out.Type {
	case domain.EventCheckoutSessionCompleted:
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(raw, &cs); err != nil {
			return out, domain.Invalidf("decode checkout session: %v", err)
		}
		completed := &domain.CompletedCheckout{
			SessionID: cs.ID,
			Intent:    domain.CheckoutIntent(cs.Metadata),
		}
		if cs.PaymentIntent != nil {
			completed.PaymentIntentID = cs.PaymentIntent.ID
		}
		if cs.CustomerDetails != nil {
			completed.BillingEmail = cs.CustomerDetails.Email
		}
		if completed.Intent == nil {
			completed.Intent = domain.CheckoutIntent{}
		}
		out.Checkout = completed
		out.PaymentIntentID = completed.PaymentIntentID

	case domain.EventPaymentIntentCreated:
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(raw, &pi); err != nil {
			return out, domain.Invalidf("decode payment intent: %v", err)
		}
		out.PaymentIntentID = pi.ID

	case domain.EventChargeSucceeded:
		var ch stripe.Charge
		if err := json.Unmarshal(raw, &ch); err != nil {
			return out, domain.Invalidf("decode charge: %v", err)
		}
		if ch.PaymentIntent != nil {
			out.PaymentIntentID = ch.PaymentIntent.ID
		}

	case domain.EventRefundCreated, domain.EventRefundUpdated:
		var r stripe.Refund
		if err := json.Unmarshal(raw, &r); err != nil {
			return out, domain.Invalidf("decode refund: %v", err)
		}
		refund := toRefund(&r)
		out.Refund = &refund
		out.PaymentIntentID = refund.PaymentIntentID
	}
	return out, nil
}

func (g *Gateway) call(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	start := time.Now()
	err := fn(ctx)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	observability.GatewayCalls.WithLabelValues(operation, outcome).Observe(time.Since(start).Seconds())
	if err == nil {
		return nil
	}

	err = errors.Mark(errors.Wrapf(err, "stripe %s", operation), domain.ErrGateway)
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) && stripeErr.Code == stripe.ErrorCodeResourceMissing {
		err = errors.Mark(err, domain.ErrNotFound)
	}
	return err
}

func toPaymentIntent(pi *stripe.PaymentIntent) domain.PaymentIntent {
	intent := domain.PaymentIntent{
		ID:       pi.ID,
		Status:   string(pi.Status),
		Metadata: pi.Metadata,
	}
	if pi.LatestCharge != nil {
		intent.LatestChargeID = pi.LatestCharge.ID
	}
	return intent
}

func toRefund(r *stripe.Refund) domain.Refund {
	refund := domain.Refund{
		ID:     r.ID,
		Status: domain.RefundStatus(r.Status),
		Amount: r.Amount,
	}
	if r.Charge != nil {
		refund.ChargeID = r.Charge.ID
	}
	if r.PaymentIntent != nil {
		refund.PaymentIntentID = r.PaymentIntent.ID
	}
	return refund
}
