package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
	"golang.org/x/sync/errgroup"
)

const maxWebhookBody = 64 << 10

// BookingService is the booking workflow behind the HTTP API.
// *booking.Service implements it.
type BookingService interface {
	CreateCheckoutSession(ctx context.Context, intent domain.CheckoutIntent) (domain.Session, error)
	HandleWebhook(ctx context.Context, payload []byte, signature string) error
	CreateVerifiedBooking(ctx context.Context, req domain.BookingRequest) (uuid.UUID, error)
	Refund(ctx context.Context, bookingID uuid.UUID, paymentID string) (domain.RefundResult, error)
	CancelBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	GetBooking(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	CustomerBookings(ctx context.Context, customerID string) ([]domain.Booking, error)
	RemoveBooking(ctx context.Context, id uuid.UUID) error
}

// Pinger is a dependency checked by the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

type Handlers struct {
	svc    BookingService
	deps   map[string]Pinger
	logger observability.Logger
}

func NewHandlers(svc BookingService, deps map[string]Pinger, logger observability.Logger) *Handlers {
	return &Handlers{svc: svc, deps: deps, logger: logger}
}

func (h *Handlers) log(r *http.Request) observability.Logger {
	return observability.FromContext(r.Context(), h.logger)
}

func (h *Handlers) CreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		BookingInformation map[string]json.RawMessage `json:"bookingInformation"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.Invalidf("malformed request body: %v", err))
		return
	}
	intent, err := domain.FlattenIntent(req.BookingInformation)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	session, err := h.svc.CreateCheckoutSession(r.Context(), intent)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": session.ID, "url": session.URL})
}

// CreateBooking accepts the combined payload: the checkout attributes plus
// billingEmail, paymentId and payeeId at the top level.
func (h *Handlers) CreateBooking(w http.ResponseWriter, r *http.Request) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&raw); err != nil {
		h.writeError(w, r, domain.Invalidf("malformed request body: %v", err))
		return
	}

	var req domain.BookingRequest
	for key, dst := range map[string]*string{
		"billingEmail": &req.BillingEmail,
		"paymentId":    &req.PaymentID,
		"payeeId":      &req.PayeeID,
	} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(v, dst); err != nil {
			h.writeError(w, r, domain.Invalidf("%s must be a string", key))
			return
		}
		delete(raw, key)
	}
	intent, err := domain.FlattenIntent(raw)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	req.Intent = intent

	id, err := h.svc.CreateVerifiedBooking(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"bookingId": id.String()})
}

func (h *Handlers) Webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		h.writeError(w, r, domain.Invalidf("unreadable webhook body: %v", err))
		return
	}
	if err := h.svc.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature")); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *Handlers) Refund(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookingID(w, r)
	if !ok {
		return
	}
	res, err := h.svc.Refund(r.Context(), id, chi.URLParam(r, "paymentId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	status := http.StatusOK
	switch res.Outcome {
	case domain.RefundFailed:
		status = http.StatusBadGateway
	case domain.RefundBookingNotFound:
		status = http.StatusNotFound
	}
	writeJSON(w, status, res)
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookingID(w, r)
	if !ok {
		return
	}
	b, err := h.svc.GetBooking(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBookingResponse(*b))
}

func (h *Handlers) CustomerBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.svc.CustomerBookings(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	out := make([]bookingResponse, 0, len(bookings))
	for _, b := range bookings {
		out = append(out, newBookingResponse(b))
	}
	writeJSON(w, http.StatusOK, out)
}

// CancelBooking only flips the status and does not refund the charge. Refunds
// go through Refund, which treats a booking cancelled here as already done.
func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "bookingId"))
	if err != nil {
		writeText(w, http.StatusNotFound, "Failure: booking cannot be found")
		return
	}
	_, err = h.svc.CancelBooking(r.Context(), id)
	switch {
	case err == nil:
		writeText(w, http.StatusOK, "Success: booking cancelled")
	case errors.Is(err, domain.ErrNotFound):
		writeText(w, http.StatusNotFound, "Failure: booking cannot be found")
	default:
		h.writeError(w, r, err)
	}
}

func (h *Handlers) RemoveBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := h.bookingID(w, r)
	if !ok {
		return
	}
	if err := h.svc.RemoveBooking(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeText(w, http.StatusOK, "OK")
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for name, dep := range h.deps {
		g.Go(func() error {
			return errors.Wrapf(dep.Ping(gctx), "%s", name)
		})
	}
	if err := g.Wait(); err != nil {
		h.log(r).Warn("not ready: ", err)
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
		return
	}
	writeText(w, http.StatusOK, "Ready")
}

func (h *Handlers) bookingID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "bookingId"))
	if err != nil {
		h.writeError(w, r, domain.Invalidf("invalid booking id"))
		return uuid.Nil, false
	}
	return id, true
}
