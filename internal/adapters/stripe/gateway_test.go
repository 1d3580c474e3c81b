package stripe

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/stripe/stripe-go/v79"
	"github.com/stripe/stripe-go/v79/webhook"
)

func newTestGateway(t *testing.T, handler http.HandlerFunc, webhookSecret string) *Gateway {
	t.Helper()
	return newTestGatewayWithTimeout(t, handler, webhookSecret, 5*time.Second)
}

func newTestGatewayWithTimeout(t *testing.T, handler http.HandlerFunc, webhookSecret string, timeout time.Duration) *Gateway {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	backend := stripe.GetBackendWithConfig(stripe.APIBackend, &stripe.BackendConfig{
		URL:               stripe.String(srv.URL),
		MaxNetworkRetries: stripe.Int64(0),
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelNull},
	})
	return NewGateway("sk_test_123", webhookSecret, timeout, &stripe.Backends{
		API:     backend,
		Connect: backend,
		Uploads: backend,
	})
}

func TestGateway_CreateCheckoutSession(t *testing.T) {
	var form map[string]string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/checkout/sessions" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if err := r.ParseForm(); err != nil {
			t.Error(err)
		}
		form = map[string]string{}
		for k := range r.PostForm {
			form[k] = r.PostForm.Get(k)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"cs_test_1","object":"checkout.session","url":"https://checkout.stripe.com/c/pay/cs_test_1"}`))
	}, "")

	session, err := gw.CreateCheckoutSession(context.Background(), domain.SessionRequest{
		ProductName:   "Test Hotel",
		Currency:      "sgd",
		UnitAmount:    10900,
		CustomerEmail: "a@b.com",
		Metadata:      domain.CheckoutIntent{"hotelName": "Test Hotel", "price": "109.00"},
		SuccessURL:    "http://localhost:3000/success",
		CancelURL:     "http://localhost:3000/cancel",
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if session.ID != "cs_test_1" || session.URL == "" {
		t.Errorf("unexpected session %+v", session)
	}

	want := [][2]string{
		{"mode", "payment"},
		{"line_items[0][quantity]", "1"},
		{"line_items[0][price_data][currency]", "sgd"},
		{"line_items[0][price_data][unit_amount]", "10900"},
		{"line_items[0][price_data][product_data][name]", "Test Hotel"},
		{"metadata[hotelName]", "Test Hotel"},
		{"metadata[price]", "109.00"},
		{"customer_email", "a@b.com"},
		{"success_url", "http://localhost:3000/success"},
		{"cancel_url", "http://localhost:3000/cancel"},
	}
	for _, kv := range want {
		if form[kv[0]] != kv[1] {
			t.Errorf("form %s: expected %q, got %q", kv[0], kv[1], form[kv[0]])
		}
	}
}

func TestGateway_CreateCheckoutSessionRejected(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"type":"invalid_request_error","message":"bad amount"}}`))
	}, "")

	_, err := gw.CreateCheckoutSession(context.Background(), domain.SessionRequest{ProductName: "x", Currency: "sgd", UnitAmount: 1})
	if !errors.Is(err, domain.ErrGateway) {
		t.Errorf("expected gateway error, got %v", err)
	}
}

func TestGateway_GetPaymentIntent(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/v1/payment_intents/pi_missing" {
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"error":{"type":"invalid_request_error","code":"resource_missing","message":"No such payment_intent"}}`))
			return
		}
		w.Write([]byte(`{"id":"pi_1","object":"payment_intent","status":"succeeded","latest_charge":"ch_1","metadata":{"billing_email":"a@b.com"}}`))
	}, "")

	pi, err := gw.GetPaymentIntent(context.Background(), "pi_1")
	if err != nil {
		t.Fatal(err)
	}
	if pi.Status != domain.PaymentIntentSucceeded || pi.LatestChargeID != "ch_1" || pi.Metadata[domain.MetadataBillingEmail] != "a@b.com" {
		t.Errorf("unexpected payment intent %+v", pi)
	}

	_, err = gw.GetPaymentIntent(context.Background(), "pi_missing")
	if !errors.Is(err, domain.ErrNotFound) || !errors.Is(err, domain.ErrGateway) {
		t.Errorf("expected not found gateway error, got %v", err)
	}
}

func TestGateway_UpdatePaymentIntentMetadata(t *testing.T) {
	var got string
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		got = r.PostForm.Get("metadata[billing_email]")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"pi_1","object":"payment_intent"}`))
	}, "")

	err := gw.UpdatePaymentIntentMetadata(context.Background(), "pi_1", map[string]string{domain.MetadataBillingEmail: "a@b.com"})
	if err != nil {
		t.Fatal(err)
	}
	if got != "a@b.com" {
		t.Errorf("expected billing email in metadata, got %q", got)
	}
}

func TestGateway_CreateRefund(t *testing.T) {
	gw := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.PostForm.Get("charge") != "ch_1" {
			t.Errorf("expected charge ch_1, got %q", r.PostForm.Get("charge"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"re_1","object":"refund","status":"failed","amount":10900,"charge":"ch_1","payment_intent":"pi_1"}`))
	}, "")

	refund, err := gw.CreateRefund(context.Background(), "ch_1")
	if err != nil {
		t.Fatal(err)
	}
	if refund.Status != domain.RefundStatusFailed || refund.ChargeID != "ch_1" || refund.PaymentIntentID != "pi_1" || refund.Amount != 10900 {
		t.Errorf("unexpected refund %+v", refund)
	}
}

func completedEvent(t *testing.T, intent domain.CheckoutIntent) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":     "evt_1",
		"object": "event",
		"type":   "checkout.session.completed",
		"data": map[string]interface{}{
			"object": map[string]interface{}{
				"id":               "cs_test_1",
				"object":           "checkout.session",
				"payment_intent":   "pi_1",
				"metadata":         intent,
				"customer_details": map[string]interface{}{"email": "a@b.com"},
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	return payload
}

func TestGateway_ParseEventRoundTripsMetadata(t *testing.T) {
	intent := domain.CheckoutIntent{
		"hotelName":   "Test Hotel",
		"price":       "109.00",
		"startDate":   "2024-06-01",
		"endDate":     "2024-06-03",
		"numAdults":   "2",
		"numChildren": "0",
		"msgToHotel":  "  late arrival, \"quiet\" room  ",
	}
	secret := "whsec_test"
	gw := NewGateway("sk_test_123", secret, time.Second, nil)

	payload := completedEvent(t, intent)
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    secret,
		Timestamp: time.Now(),
	})

	event, err := gw.ParseEvent(payload, signed.Header)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if event.Type != domain.EventCheckoutSessionCompleted || event.Checkout == nil {
		t.Fatalf("unexpected event %+v", event)
	}
	if event.Checkout.PaymentIntentID != "pi_1" || event.Checkout.BillingEmail != "a@b.com" {
		t.Errorf("unexpected checkout %+v", event.Checkout)
	}
	if len(event.Checkout.Intent) != len(intent) {
		t.Fatalf("expected %d metadata keys, got %d", len(intent), len(event.Checkout.Intent))
	}
	for k, v := range intent {
		if event.Checkout.Intent[k] != v {
			t.Errorf("metadata %s: expected %q, got %q", k, v, event.Checkout.Intent[k])
		}
	}
}

func TestGateway_ParseEventRejectsBadSignature(t *testing.T) {
	gw := NewGateway("sk_test_123", "whsec_test", time.Second, nil)

	_, err := gw.ParseEvent(completedEvent(t, nil), "t=1,v1=deadbeef")
	if !errors.Is(err, domain.ErrInvalidSignature) {
		t.Errorf("expected invalid signature, got %v", err)
	}
}

func TestGateway_ParseEventWithoutSecret(t *testing.T) {
	gw := NewGateway("sk_test_123", "", time.Second, nil)

	event, err := gw.ParseEvent([]byte(`{"id":"evt_2","type":"refund.updated","data":{"object":{"id":"re_1","object":"refund","status":"succeeded","charge":"ch_1","payment_intent":"pi_1"}}}`), "")
	if err != nil {
		t.Fatal(err)
	}
	if event.Refund == nil || event.Refund.Status != domain.RefundStatusSucceeded || event.PaymentIntentID != "pi_1" {
		t.Errorf("unexpected event %+v", event)
	}

	if _, err := gw.ParseEvent([]byte(`not json`), ""); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected invalid input, got %v", err)
	}
}

// hangingHandler answers only after the client gives up.
func hangingHandler(w http.ResponseWriter, r *http.Request) {
	select {
	case <-r.Context().Done():
	case <-time.After(5 * time.Second):
	}
}

func TestGateway_CallsAreBoundedByTimeout(t *testing.T) {
	gw := newTestGatewayWithTimeout(t, hangingHandler, "", 100*time.Millisecond)
	ctx := context.Background()

	calls := map[string]func() error{
		"create_checkout_session": func() error {
			_, err := gw.CreateCheckoutSession(ctx, domain.SessionRequest{
				ProductName: "Test Hotel", Currency: "sgd", UnitAmount: 10900,
				SuccessURL: "http://localhost:3000/success", CancelURL: "http://localhost:3000/cancel",
			})
			return err
		},
		"get_payment_intent": func() error {
			_, err := gw.GetPaymentIntent(ctx, "pi_1")
			return err
		},
		"update_payment_intent": func() error {
			return gw.UpdatePaymentIntentMetadata(ctx, "pi_1", map[string]string{"billing_email": "a@b.com"})
		},
		"create_refund": func() error {
			_, err := gw.CreateRefund(ctx, "ch_1")
			return err
		},
	}
	for name, call := range calls {
		start := time.Now()
		err := call()
		elapsed := time.Since(start)
		if !errors.Is(err, domain.ErrGateway) {
			t.Errorf("%s: expected gateway error, got %v", name, err)
		}
		if elapsed > 2*time.Second {
			t.Errorf("%s: call took %s, expected it to stop near the timeout", name, elapsed)
		}
	}
}
