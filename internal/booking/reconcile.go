package booking

import (
	"context"
	"encoding/json"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
	"github.com/robertarktes/hotel-booking-payments/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RetryPending replays up to limit pending reconciliation records. Records
// that keep failing are parked after maxAttempts replays.
func (s *Service) RetryPending(ctx context.Context, limit, maxAttempts int) (int, error) {
	ctx, span := s.tracer.Start(ctx, "booking.RetryPending")
	defer span.End()

	recs, err := s.store.PendingReconciliations(ctx, limit)
	if err != nil {
		return 0, err
	}
	span.SetAttributes(attribute.Int("reconciliation.pending", len(recs)))

	resolved := 0
	for _, rec := range recs {
		if ctx.Err() != nil {
			return resolved, ctx.Err()
		}
		log := s.log(ctx).WithFields(map[string]interface{}{
			"reconciliation_id":   rec.ID.String(),
			"reconciliation_kind": rec.Kind,
			"reference":           rec.Reference,
			"attempts":            rec.Attempts,
		})

		if err := s.replay(ctx, rec); err != nil {
			observability.ReconciliationsResolved.WithLabelValues(rec.Kind, "failed").Inc()
			log.Warn("reconciliation replay failed: ", err)
			if ferr := s.store.FailReconciliation(ctx, rec.ID, err.Error(), maxAttempts); ferr != nil {
				log.Error("failed to update reconciliation: ", ferr)
			}
			continue
		}
		if err := s.store.ResolveReconciliation(ctx, rec.ID); err != nil {
			log.Error("failed to resolve reconciliation: ", err)
			continue
		}
		observability.ReconciliationsResolved.WithLabelValues(rec.Kind, "resolved").Inc()
		log.Info("reconciliation resolved")
		resolved++
	}
	return resolved, nil
}

func (s *Service) replay(ctx context.Context, rec domain.Reconciliation) error {
	ctx, span := s.tracer.Start(ctx, "booking.replay", trace.WithAttributes(
		attribute.String("reconciliation.kind", rec.Kind),
	))
	defer span.End()

	switch rec.Kind {
	case domain.ReconcileCheckoutCompleted:
		var completed domain.CompletedCheckout
		if err := json.Unmarshal(rec.Payload, &completed); err != nil {
			return errors.Wrap(err, "decode checkout payload")
		}
		_, err := s.completeCheckout(ctx, completed)
		return err
	case domain.ReconcileRefundFollowUp:
		var followUp domain.RefundFollowUp
		if err := json.Unmarshal(rec.Payload, &followUp); err != nil {
			return errors.Wrap(err, "decode refund follow-up payload")
		}
		return s.completeRefund(ctx, followUp.BookingID)
	default:
		return errors.Newf("unknown reconciliation kind %q", rec.Kind)
	}
}
