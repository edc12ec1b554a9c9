package queue

import (
	"context"
	"hash/fnv"
	"log/slog"
	"sync"
	"time"
)

// Processor runs the normalize + apply pipeline for one delivery.
type Processor interface {
	Process(ctx context.Context, d *Delivery) error
}

type ConsumerConfig struct {
	Workers      int
	BatchSize    int
	PollInterval time.Duration
	BackoffBase  time.Duration
	BackoffMax   time.Duration
	MaxAttempts  int
	StaleAfter   time.Duration
}

// Consumer drains the delivery queue with bounded parallelism. Deliveries
// are routed to a fixed worker by hashing their ordering key, so two events
// for the same account are never in flight at once, while different accounts
// proceed concurrently.
type Consumer struct {
	store     Store
	processor Processor
	cfg       ConsumerConfig
}

func NewConsumer(store Store, processor Processor, cfg ConsumerConfig) *Consumer {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 5 * time.Second
	}

	if cfg.BackoffMax <= 0 {
		cfg.BackoffMax = 10 * time.Minute
	}

	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 8
	}

	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = 5 * time.Minute
	}

	return &Consumer{store: store, processor: processor, cfg: cfg}
}

func workerIndex(key string, workers int) int {
	h := fnv.New32a()
	h.Write([]byte(key))

	return int(h.Sum32() % uint32(workers))
}

// Run blocks until ctx is cancelled, polling for due deliveries and fanning
// them out to the worker pool.
func (c *Consumer) Run(ctx context.Context) {
	channels := make([]chan *Delivery, c.cfg.Workers)

	var wg sync.WaitGroup

	for i := range channels {
		channels[i] = make(chan *Delivery)

		wg.Add(1)

		go func(ch chan *Delivery) {
			defer wg.Done()

			for d := range ch {
				c.handle(ctx, d)
			}
		}(channels[i])
	}

	if n, err := c.store.RequeueStale(ctx, c.cfg.StaleAfter); err != nil {
		slog.Error("requeueing stale deliveries", "error", err)
	} else if n > 0 {
		slog.Info("requeued stale deliveries", "count", n)
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			for _, ch := range channels {
				close(ch)
			}

			wg.Wait()

			return
		case <-ticker.C:
			c.drain(ctx, channels)
		}
	}
}

func (c *Consumer) drain(ctx context.Context, channels []chan *Delivery) {
	for {
		batch, err := c.store.ClaimDue(ctx, c.cfg.BatchSize)
		if err != nil {
			slog.Error("claiming deliveries", "error", err)
			return
		}

		if len(batch) == 0 {
			return
		}

		// Per-key routing keeps same-account deliveries ordered; the claim
		// query already refuses to hand out a delivery while an earlier one
		// for the same key is unfinished.
		var wg sync.WaitGroup

		pending := make([][]*Delivery, len(channels))
		for _, d := range batch {
			i := workerIndex(d.OrderingKey, len(channels))
			pending[i] = append(pending[i], d)
		}

		for i, ds := range pending {
			if len(ds) == 0 {
				continue
			}

			wg.Add(1)

			go func(ch chan *Delivery, ds []*Delivery) {
				defer wg.Done()

				for _, d := range ds {
					select {
					case <-ctx.Done():
						return
					case ch <- d:
					}
				}
			}(channels[i], ds)
		}

		wg.Wait()

		if len(batch) < c.cfg.BatchSize {
			return
		}
	}
}

func (c *Consumer) handle(ctx context.Context, d *Delivery) {
	err := c.processor.Process(ctx, d)
	if err == nil {
		if err := c.store.MarkDone(ctx, d.ID); err != nil {
			slog.Error("marking delivery done", "delivery", d.ID, "error", err)
		}

		return
	}

	if IsPermanent(err) {
		slog.Warn("dead-lettering delivery", "delivery", d.ID, "provider", d.Provider, "error", err)

		if err := c.store.MarkDead(ctx, d.ID, err.Error()); err != nil {
			slog.Error("marking delivery dead", "delivery", d.ID, "error", err)
		}

		return
	}

	attempts := d.Attempts + 1
	if attempts >= c.cfg.MaxAttempts {
		slog.Warn("delivery exhausted retries", "delivery", d.ID, "provider", d.Provider, "error", err)

		if err := c.store.MarkDead(ctx, d.ID, err.Error()); err != nil {
			slog.Error("marking delivery dead", "delivery", d.ID, "error", err)
		}

		return
	}

	// Backoff counts prior attempts, so the first retry waits the base
	// delay and each later one doubles it.
	next := time.Now().Add(Backoff(c.cfg.BackoffBase, c.cfg.BackoffMax, d.Attempts))

	slog.Info("retrying delivery", "delivery", d.ID, "attempt", attempts, "next", next, "error", err)

	if err := c.store.Retry(ctx, d.ID, attempts, next, err.Error()); err != nil {
		slog.Error("scheduling retry", "delivery", d.ID, "error", err)
	}
}
