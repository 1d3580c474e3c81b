package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Payment processor event kinds handled by the reconciler.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventChargeSucceeded          = "charge.succeeded"
	EventPaymentIntentCreated     = "payment_intent.created"
	EventRefundCreated            = "refund.created"
	EventRefundUpdated            = "refund.updated"
)

// Payment intent metadata keys written by this service.
const (
	MetadataBillingEmail = "billing_email"
	MetadataReceiptEmail = "receipt_email"
)

// PaymentEvent is a decoded processor webhook. Exactly one of the payload
// fields is populated depending on Type.
type PaymentEvent struct {
	ID              string
	Type            string
	Checkout        *CompletedCheckout
	PaymentIntentID string
	Refund          *Refund
}

// CompletedCheckout is the part of a completed checkout session needed to
// create a booking.
type CompletedCheckout struct {
	SessionID       string         `json:"sessionId"`
	PaymentIntentID string         `json:"paymentIntentId"`
	BillingEmail    string         `json:"billingEmail"`
	Intent          CheckoutIntent `json:"intent"`
}

type PaymentIntent struct {
	ID             string
	Status         string
	LatestChargeID string
	Metadata       map[string]string
}

const PaymentIntentSucceeded = "succeeded"

type RefundStatus string

const (
	RefundStatusSucceeded RefundStatus = "succeeded"
	RefundStatusPending   RefundStatus = "pending"
	RefundStatusFailed    RefundStatus = "failed"
	RefundStatusCanceled  RefundStatus = "canceled"
)

type Refund struct {
	ID              string
	ChargeID        string
	PaymentIntentID string
	Status          RefundStatus
	Amount          int64
}

// RefundOutcome classifies the result of a refund request for operators.
type RefundOutcome string

const (
	RefundSucceeded       RefundOutcome = "refunded"
	RefundAlreadyDone     RefundOutcome = "already_cancelled"
	RefundFailed          RefundOutcome = "refund_failed"
	RefundBookingNotFound RefundOutcome = "booking_not_found"
)

type RefundResult struct {
	Success             bool          `json:"success"`
	Outcome             RefundOutcome `json:"reason,omitempty"`
	Message             string        `json:"message,omitempty"`
	NeedsReconciliation bool          `json:"needsReconciliation,omitempty"`
}

// Reconciliation kinds.
const (
	ReconcileCheckoutCompleted = "checkout.completed"
	ReconcileRefundFollowUp    = "refund.followup"
)

type ReconciliationStatus string

const (
	ReconciliationPending  ReconciliationStatus = "PENDING"
	ReconciliationResolved ReconciliationStatus = "RESOLVED"
	ReconciliationFailed   ReconciliationStatus = "FAILED"
)

// Reconciliation records an asynchronous step that failed after money moved.
type Reconciliation struct {
	ID        uuid.UUID
	Kind      string
	Reference string
	Payload   json.RawMessage
	Attempts  int
	LastError string
	Status    ReconciliationStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}

// RefundFollowUp is the payload of a refund.followup reconciliation.
type RefundFollowUp struct {
	BookingID uuid.UUID `json:"bookingId"`
	PaymentID string    `json:"paymentId"`
}
