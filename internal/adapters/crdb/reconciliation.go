package crdb

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/hotel-booking-payments/internal/domain"
)

// RecordReconciliation stores a failed asynchronous step. Recording the same
// kind and reference again re-opens the existing record with a fresh attempt
// budget, parked or not.
func (r *Repository) RecordReconciliation(ctx context.Context, rec domain.Reconciliation) error {
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO reconciliations (id, kind, reference, payload, last_error, status)
		VALUES ($1, $2, $3, $4, $5, 'PENDING')
		ON CONFLICT (kind, reference) DO UPDATE
		SET payload = excluded.payload, last_error = excluded.last_error, status = 'PENDING', attempts = 0, updated_at = now()
	`, rec.ID, rec.Kind, rec.Reference, []byte(rec.Payload), rec.LastError)
	return errors.Wrap(err, "record reconciliation")
}

func (r *Repository) PendingReconciliations(ctx context.Context, limit int) ([]domain.Reconciliation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, kind, reference, payload, attempts, last_error, status, created_at, updated_at
		FROM reconciliations WHERE status = 'PENDING' ORDER BY updated_at ASC LIMIT $1
	`, limit)
	if err != nil {
		return nil, errors.Wrap(err, "pending reconciliations")
	}
	defer rows.Close()

	var recs []domain.Reconciliation
	for rows.Next() {
		var (
			rec     domain.Reconciliation
			payload []byte
			status  string
		)
		if err := rows.Scan(&rec.ID, &rec.Kind, &rec.Reference, &payload, &rec.Attempts, &rec.LastError, &status, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Payload = payload
		rec.Status = domain.ReconciliationStatus(status)
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (r *Repository) ResolveReconciliation(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE reconciliations SET status = 'RESOLVED', attempts = attempts + 1, updated_at = now() WHERE id = $1
	`, id)
	if err != nil {
		return errors.Wrap(err, "resolve reconciliation")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// FailReconciliation counts a failed replay. Records that reach maxAttempts
// are parked as FAILED for an operator.
func (r *Repository) FailReconciliation(ctx context.Context, id uuid.UUID, reason string, maxAttempts int) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE reconciliations
		SET attempts = attempts + 1,
			last_error = $2,
			status = CASE WHEN attempts + 1 >= $3 THEN 'FAILED' ELSE 'PENDING' END,
			updated_at = now()
		WHERE id = $1
	`, id, reason, maxAttempts)
	if err != nil {
		return errors.Wrap(err, "fail reconciliation")
	}
	if result.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
