package booking

import (
	"context"
	"encoding/json"
	"net/url"

	"github.com/google/uuid"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Store persists bookings and the reconciliation records of failed
// asynchronous steps. *crdb.Repository implements it.
type Store interface {
	InsertBooking(ctx context.Context, b domain.Booking) (uuid.UUID, bool, error)
	FindByBookingID(ctx context.Context, id uuid.UUID) (*domain.Booking, error)
	FindByCustomerID(ctx context.Context, customerID string) ([]domain.Booking, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (*domain.Booking, error)
	RemoveBooking(ctx context.Context, id uuid.UUID) error

	RecordReconciliation(ctx context.Context, rec domain.Reconciliation) error
	PendingReconciliations(ctx context.Context, limit int) ([]domain.Reconciliation, error)
	ResolveReconciliation(ctx context.Context, id uuid.UUID) error
	FailReconciliation(ctx context.Context, id uuid.UUID, reason string, maxAttempts int) error
}

// Gateway is the payment processor.
type Gateway interface {
	CreateCheckoutSession(ctx context.Context, req domain.SessionRequest) (domain.Session, error)
	GetPaymentIntent(ctx context.Context, id string) (domain.PaymentIntent, error)
	UpdatePaymentIntentMetadata(ctx context.Context, id string, metadata map[string]string) error
	CreateRefund(ctx context.Context, chargeID string) (domain.Refund, error)
	ParseEvent(payload []byte, signature string) (domain.PaymentEvent, error)
}

type Notifier interface {
	SendConfirmation(ctx context.Context, n domain.Notification) error
	SendCancellation(ctx context.Context, n domain.Notification) error
}

type HotelDirectory interface {
	Hotel(ctx context.Context, id string) (domain.Hotel, error)
}

// EventGuard filters webhook redeliveries before they reach the store. Claim
// takes a short in-flight lock; Done records the event as handled; Release
// drops the lock so a redelivery is handled again.
type EventGuard interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Done(ctx context.Context, eventID string) error
	Release(ctx context.Context, eventID string) error
}

// RefundHook receives refund.updated events.
type RefundHook interface {
	RefundUpdated(ctx context.Context, refund domain.Refund) error
}

type Config struct {
	Currency     string
	ClientURL    string
	ReceiptEmail string
}

type Service struct {
	store      Store
	gateway    Gateway
	notifier   Notifier
	hotels     HotelDirectory
	guard      EventGuard
	refundHook RefundHook
	cfg        Config
	logger     observability.Logger
	tracer     trace.Tracer
}

type Option func(*Service)

func WithEventGuard(g EventGuard) Option {
	return func(s *Service) { s.guard = g }
}

func WithRefundHook(h RefundHook) Option {
	return func(s *Service) { s.refundHook = h }
}

func NewService(store Store, gateway Gateway, notifier Notifier, hotels HotelDirectory, cfg Config, logger observability.Logger, opts ...Option) *Service {
	s := &Service{
		store:    store,
		gateway:  gateway,
		notifier: notifier,
		hotels:   hotels,
		cfg:      cfg,
		logger:   logger,
		tracer:   otel.Tracer("booking"),
	}
	s.refundHook = LogRefundHook{logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LogRefundHook only records refund updates in the log.
type LogRefundHook struct {
	logger observability.Logger
}

func (h LogRefundHook) RefundUpdated(ctx context.Context, refund domain.Refund) error {
	observability.FromContext(ctx, h.logger).WithFields(map[string]interface{}{
		"refund_id":         refund.ID,
		"charge_id":         refund.ChargeID,
		"payment_intent_id": refund.PaymentIntentID,
		"refund_status":     string(refund.Status),
	}).Info("refund updated")
	return nil
}

func (s *Service) log(ctx context.Context) observability.Logger {
	return observability.FromContext(ctx, s.logger)
}

func (s *Service) cancelLink(b domain.Booking) string {
	q := url.Values{}
	q.Set("bookingId", b.ID.String())
	q.Set("paymentId", b.PaymentID)
	return s.cfg.ClientURL + "/cancel-booking?" + q.Encode()
}

// recordReconciliation parks a failed step for the reconcile worker. It runs
// detached from ctx so a cancelled request cannot lose the record.
func (s *Service) recordReconciliation(ctx context.Context, kind, reference string, payload interface{}, cause error) {
	ctx = context.WithoutCancel(ctx)
	log := s.log(ctx).WithFields(map[string]interface{}{
		"reconciliation_kind": kind,
		"reference":           reference,
	})

	raw, err := json.Marshal(payload)
	if err != nil {
		log.Error("failed to encode reconciliation payload: ", err)
		return
	}
	rec := domain.Reconciliation{
		Kind:      kind,
		Reference: reference,
		Payload:   raw,
		LastError: cause.Error(),
	}
	if err := s.store.RecordReconciliation(ctx, rec); err != nil {
		log.Error("failed to record reconciliation: ", err)
		return
	}
	observability.ReconciliationsRecorded.WithLabelValues(kind).Inc()
	log.Warn("recorded for reconciliation: ", cause)
}
