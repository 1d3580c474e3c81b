package booking

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
)

type fakeStore struct {
	mu        sync.Mutex
	bookings  map[uuid.UUID]domain.Booking
	byPayee   map[string]uuid.UUID
	recs      map[string]*domain.Reconciliation
	insertErr error
	updateErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		bookings: map[uuid.UUID]domain.Booking{},
		byPayee:  map[string]uuid.UUID{},
		recs:     map[string]*domain.Reconciliation{},
	}
}

func (s *fakeStore) InsertBooking(ctx context.Context, b domain.Booking) (uuid.UUID, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.insertErr != nil {
		return uuid.Nil, false, s.insertErr
	}
	if id, ok := s.byPayee[b.PayeeID]; ok {
		return id, false, nil
	}
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	s.bookings[b.ID] = b
	s.byPayee[b.PayeeID] = b.ID
	return b.ID, true, nil
}

func (s *fakeStore) FindByBookingID(ctx context.Context, id uuid.UUID) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &b, nil
}

func (s *fakeStore) FindByCustomerID(ctx context.Context, customerID string) ([]domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []domain.Booking{}
	for _, b := range s.bookings {
		if b.CustomerID != nil && *b.CustomerID == customerID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.Status) (*domain.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.updateErr != nil {
		return nil, s.updateErr
	}
	b, ok := s.bookings[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	if b.Status != status {
		from, _ := domain.TransitionFrom(status)
		if b.Status != from {
			return nil, domain.ErrInvalidTransition
		}
		b.Status = status
		s.bookings[id] = b
	}
	return &b, nil
}

func (s *fakeStore) RemoveBooking(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(s.bookings, id)
	delete(s.byPayee, b.PayeeID)
	return nil
}

func (s *fakeStore) RecordReconciliation(ctx context.Context, rec domain.Reconciliation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.Kind + "/" + rec.Reference
	if existing, ok := s.recs[key]; ok {
		existing.Payload = rec.Payload
		existing.LastError = rec.LastError
		existing.Status = domain.ReconciliationPending
		existing.Attempts = 0
		return nil
	}
	rec.ID = uuid.New()
	rec.Status = domain.ReconciliationPending
	s.recs[key] = &rec
	return nil
}

func (s *fakeStore) PendingReconciliations(ctx context.Context, limit int) ([]domain.Reconciliation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reconciliation
	for _, rec := range s.recs {
		if rec.Status == domain.ReconciliationPending && len(out) < limit {
			out = append(out, *rec)
		}
	}
	return out, nil
}

func (s *fakeStore) ResolveReconciliation(ctx context.Context, id uuid.UUID) error {
	return s.setReconciliation(id, func(rec *domain.Reconciliation) {
		rec.Attempts++
		rec.Status = domain.ReconciliationResolved
	})
}

func (s *fakeStore) FailReconciliation(ctx context.Context, id uuid.UUID, reason string, maxAttempts int) error {
	return s.setReconciliation(id, func(rec *domain.Reconciliation) {
		rec.Attempts++
		rec.LastError = reason
		if rec.Attempts >= maxAttempts {
			rec.Status = domain.ReconciliationFailed
		}
	})
}

func (s *fakeStore) setReconciliation(id uuid.UUID, fn func(*domain.Reconciliation)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.recs {
		if rec.ID == id {
			fn(rec)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (s *fakeStore) reconciliations(kind string) []domain.Reconciliation {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Reconciliation
	for _, rec := range s.recs {
		if rec.Kind == kind {
			out = append(out, *rec)
		}
	}
	return out
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.bookings)
}

func (s *fakeStore) only() domain.Booking {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		return b
	}
	return domain.Booking{}
}

type fakeGateway struct {
	mu           sync.Mutex
	sessions     []domain.SessionRequest
	sessionErr   error
	intents      map[string]domain.PaymentIntent
	getErr       error
	metadataErr  error
	refundStatus domain.RefundStatus
	refundErr    error
	refunds      []string
	event        domain.PaymentEvent
	parseErr     error
	// panicOnGet makes the next GetPaymentIntent panic once
	panicOnGet bool
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{intents: map[string]domain.PaymentIntent{}, refundStatus: domain.RefundStatusSucceeded}
}

func (g *fakeGateway) CreateCheckoutSession(ctx context.Context, req domain.SessionRequest) (domain.Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessionErr != nil {
		return domain.Session{}, g.sessionErr
	}
	g.sessions = append(g.sessions, req)
	return domain.Session{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

func (g *fakeGateway) GetPaymentIntent(ctx context.Context, id string) (domain.PaymentIntent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.panicOnGet {
		g.panicOnGet = false
		panic("connection reset mid-request")
	}
	if g.getErr != nil {
		return domain.PaymentIntent{}, g.getErr
	}
	pi, ok := g.intents[id]
	if !ok {
		return domain.PaymentIntent{}, errors.Mark(errors.Newf("no such payment intent %s", id), domain.ErrNotFound)
	}
	md := map[string]string{}
	for k, v := range pi.Metadata {
		md[k] = v
	}
	pi.Metadata = md
	return pi, nil
}

func (g *fakeGateway) UpdatePaymentIntentMetadata(ctx context.Context, id string, metadata map[string]string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.metadataErr != nil {
		return g.metadataErr
	}
	pi, ok := g.intents[id]
	if !ok {
		return domain.ErrNotFound
	}
	if pi.Metadata == nil {
		pi.Metadata = map[string]string{}
	}
	for k, v := range metadata {
		pi.Metadata[k] = v
	}
	g.intents[id] = pi
	return nil
}

func (g *fakeGateway) CreateRefund(ctx context.Context, chargeID string) (domain.Refund, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.refunds = append(g.refunds, chargeID)
	if g.refundErr != nil {
		return domain.Refund{}, g.refundErr
	}
	return domain.Refund{ID: "re_1", ChargeID: chargeID, Status: g.refundStatus}, nil
}

func (g *fakeGateway) ParseEvent(payload []byte, signature string) (domain.PaymentEvent, error) {
	if g.parseErr != nil {
		return domain.PaymentEvent{}, g.parseErr
	}
	return g.event, nil
}

func (g *fakeGateway) refundCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.refunds)
}

type fakeNotifier struct {
	mu            sync.Mutex
	confirmations []domain.Notification
	cancellations []domain.Notification
	err           error
}

func (n *fakeNotifier) SendConfirmation(ctx context.Context, note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.confirmations = append(n.confirmations, note)
	return nil
}

func (n *fakeNotifier) SendCancellation(ctx context.Context, note domain.Notification) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.cancellations = append(n.cancellations, note)
	return nil
}

type fakeHotels map[string]domain.Hotel

func (h fakeHotels) Hotel(ctx context.Context, id string) (domain.Hotel, error) {
	hotel, ok := h[id]
	if !ok {
		return domain.Hotel{}, domain.ErrNotFound
	}
	return hotel, nil
}

type fakeGuard struct {
	mu      sync.Mutex
	claimed map[string]bool
	done    map[string]bool
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{claimed: map[string]bool{}, done: map[string]bool{}}
}

func (g *fakeGuard) Claim(ctx context.Context, eventID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.done[eventID] || g.claimed[eventID] {
		return false, nil
	}
	g.claimed[eventID] = true
	return true, nil
}

func (g *fakeGuard) Done(ctx context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.done[eventID] = true
	delete(g.claimed, eventID)
	return nil
}

func (g *fakeGuard) Release(ctx context.Context, eventID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claimed, eventID)
	return nil
}

type recordingHook struct {
	refunds []domain.Refund
}

func (h *recordingHook) RefundUpdated(ctx context.Context, refund domain.Refund) error {
	h.refunds = append(h.refunds, refund)
	return nil
}

type harness struct {
	svc      *Service
	store    *fakeStore
	gateway  *fakeGateway
	notifier *fakeNotifier
}

func newHarness(opts ...Option) *harness {
	h := &harness{
		store:    newFakeStore(),
		gateway:  newFakeGateway(),
		notifier: &fakeNotifier{},
	}
	hotels := fakeHotels{"h1": {ID: "h1", Name: "Test Hotel", Address: "1 Beach Road", DestinationID: "WD0M"}}
	h.svc = NewService(h.store, h.gateway, h.notifier, hotels, Config{
		Currency:     "sgd",
		ClientURL:    "http://localhost:3000",
		ReceiptEmail: "bookings@example.com",
	}, observability.NewNopLogger(), opts...)
	return h
}
