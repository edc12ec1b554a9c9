package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/tallyhq/tally/internal/queue"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Enqueue(ctx context.Context, d *queue.Delivery) error {
	query := `
		INSERT INTO webhook_deliveries (provider, ordering_key, payload, status, attempts, next_attempt_at, created_at)
		VALUES ($1, $2, $3, 'pending', 0, NOW(), NOW())
		RETURNING id, created_at
	`

	err := s.db.QueryRowContext(ctx, query, d.Provider, d.OrderingKey, d.Payload).
		Scan(&d.ID, &d.CreatedAt)
	if err != nil {
		return fmt.Errorf("enqueueing delivery: %w", err)
	}

	d.Status = queue.StatusPending

	return nil
}

const selectDeliveryColumns = `
	id, provider, ordering_key, payload, status, attempts, next_attempt_at,
	COALESCE(last_error, ''), created_at, updated_at
`

func scanDelivery(rows *sql.Rows) (*queue.Delivery, error) {
	var d queue.Delivery

	var statusStr string

	if err := rows.Scan(
		&d.ID, &d.Provider, &d.OrderingKey, &d.Payload, &statusStr, &d.Attempts,
		&d.NextAttemptAt, &d.LastError, &d.CreatedAt, &d.UpdatedAt,
	); err != nil {
		return nil, err
	}

	d.Status = queue.Status(statusStr)

	return &d, nil
}

// ClaimDue claims due pending deliveries with SKIP LOCKED so concurrent
// consumers never double-claim. A delivery is held back while an earlier
// delivery for the same ordering key is still pending or processing; that is
// what keeps per-account processing ordered.
func (s *Store) ClaimDue(ctx context.Context, limit int) ([]*queue.Delivery, error) {
	query := `
		UPDATE webhook_deliveries
		SET status = 'processing', updated_at = NOW()
		WHERE id IN (
			SELECT d.id
			FROM webhook_deliveries d
			WHERE d.status = 'pending' AND d.next_attempt_at <= NOW()
			  AND NOT EXISTS (
				SELECT 1 FROM webhook_deliveries prior
				WHERE prior.ordering_key = d.ordering_key
				  AND prior.id < d.id
				  AND prior.status IN ('pending', 'processing')
			  )
			ORDER BY d.id ASC
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING ` + selectDeliveryColumns

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("claiming deliveries: %w", err)
	}
	defer rows.Close()

	var ds []*queue.Delivery

	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}

		ds = append(ds, d)
	}

	return ds, rows.Err()
}

func (s *Store) MarkDone(ctx context.Context, id int64) error {
	query := `UPDATE webhook_deliveries SET status = 'done', updated_at = NOW() WHERE id = $1`

	if _, err := s.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("marking delivery done: %w", err)
	}

	return nil
}

func (s *Store) Retry(ctx context.Context, id int64, attempts int, nextAttempt time.Time, lastError string) error {
	query := `
		UPDATE webhook_deliveries
		SET status = 'pending', attempts = $1, next_attempt_at = $2, last_error = $3, updated_at = NOW()
		WHERE id = $4
	`

	if _, err := s.db.ExecContext(ctx, query, attempts, nextAttempt, lastError, id); err != nil {
		return fmt.Errorf("scheduling retry: %w", err)
	}

	return nil
}

func (s *Store) MarkDead(ctx context.Context, id int64, lastError string) error {
	query := `
		UPDATE webhook_deliveries
		SET status = 'dead', last_error = $1, updated_at = NOW()
		WHERE id = $2
	`

	if _, err := s.db.ExecContext(ctx, query, lastError, id); err != nil {
		return fmt.Errorf("marking delivery dead: %w", err)
	}

	return nil
}

func (s *Store) RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	query := `
		UPDATE webhook_deliveries
		SET status = 'pending', next_attempt_at = NOW(), updated_at = NOW()
		WHERE status = 'processing' AND updated_at < $1
	`

	res, err := s.db.ExecContext(ctx, query, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("requeueing stale deliveries: %w", err)
	}

	return res.RowsAffected()
}

func (s *Store) ListDead(ctx context.Context, limit int) ([]*queue.Delivery, error) {
	query := `SELECT ` + selectDeliveryColumns + `
		FROM webhook_deliveries
		WHERE status = 'dead'
		ORDER BY updated_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listing dead deliveries: %w", err)
	}
	defer rows.Close()

	var ds []*queue.Delivery

	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning delivery: %w", err)
		}

		ds = append(ds, d)
	}

	return ds, rows.Err()
}
