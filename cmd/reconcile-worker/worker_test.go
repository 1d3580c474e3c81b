package main

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
)

type flakyReplayer struct {
	failures int
	calls    int
	limit    int
	max      int
}

func (f *flakyReplayer) RetryPending(ctx context.Context, limit, maxAttempts int) (int, error) {
	f.calls++
	f.limit, f.max = limit, maxAttempts
	if f.calls <= f.failures {
		return 0, errors.New("connection refused")
	}
	return 2, nil
}

func newTestWorker(r Replayer) *ReconcileWorker {
	w := NewReconcileWorker(r, 25, 5, observability.NewNopLogger())
	w.backoff = time.Millisecond
	return w
}

func TestRunWithRetry_RecoversFromTransientFailure(t *testing.T) {
	r := &flakyReplayer{failures: 2}
	resolved, err := newTestWorker(r).runWithRetry(context.Background())
	if err != nil {
		t.Fatalf("expected recovery, got %v", err)
	}
	if resolved != 2 || r.calls != 3 {
		t.Errorf("expected 2 resolved after 3 calls, got %d after %d", resolved, r.calls)
	}
	if r.limit != 25 || r.max != 5 {
		t.Errorf("expected batch settings to be passed through, got %d %d", r.limit, r.max)
	}
}

func TestRunWithRetry_GivesUp(t *testing.T) {
	r := &flakyReplayer{failures: 10}
	if _, err := newTestWorker(r).runWithRetry(context.Background()); err == nil {
		t.Fatal("expected error after retries")
	}
	if r.calls != 3 {
		t.Errorf("expected 3 attempts, got %d", r.calls)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	r := &flakyReplayer{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		newTestWorker(r).Run(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}
