// Package queue is the durable retry queue between webhook ingress and the
// ledger pipeline. Deliveries are acknowledged to the provider immediately
// and processed asynchronously with bounded retries, exponential backoff and
// a dead-letter state.
package queue

import (
	"context"
	"errors"
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusDone       Status = "done"
	// StatusDead holds deliveries that exhausted their retries or failed
	// permanently. Surfaced for operator attention, never dropped.
	StatusDead Status = "dead"
)

// Delivery is one admitted provider callback awaiting processing.
// OrderingKey groups deliveries that must be processed in arrival order
// (everything targeting the same provider account).
type Delivery struct {
	ID            int64
	Provider      string
	OrderingKey   string
	Payload       []byte
	Status        Status
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}

type Store interface {
	Enqueue(ctx context.Context, d *Delivery) error
	// ClaimDue atomically claims due pending deliveries, skipping any whose
	// ordering key still has an earlier unfinished delivery.
	ClaimDue(ctx context.Context, limit int) ([]*Delivery, error)
	MarkDone(ctx context.Context, id int64) error
	Retry(ctx context.Context, id int64, attempts int, nextAttempt time.Time, lastError string) error
	MarkDead(ctx context.Context, id int64, lastError string) error
	// RequeueStale returns processing deliveries abandoned by a crashed
	// consumer to pending.
	RequeueStale(ctx context.Context, olderThan time.Duration) (int64, error)
	ListDead(ctx context.Context, limit int) ([]*Delivery, error)
}

// permanentError marks failures that must not be retried (bad payloads).
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps an error so the consumer dead-letters the delivery
// immediately instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}

	return &permanentError{err: err}
}

func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Backoff returns the delay before the given retry attempt: base doubled per
// attempt, capped at max.
func Backoff(base, max time.Duration, attempt int) time.Duration {
	d := base
	for i := 0; i < attempt; i++ {
		d *= 2
		if d >= max {
			return max
		}
	}

	return d
}
