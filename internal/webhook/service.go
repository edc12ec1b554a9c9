package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/tallyhq/tally/internal/queue"
)

type QueueStore interface {
	Enqueue(ctx context.Context, d *queue.Delivery) error
}

// Service is the webhook ingress: verify authenticity, persist the delivery,
// acknowledge. Processing happens asynchronously off the queue so slow or
// failing handlers never make the provider retry and storm us with
// duplicates.
type Service struct {
	verifier *Verifier
	store    QueueStore
}

func NewService(verifier *Verifier, store QueueStore) *Service {
	return &Service{verifier: verifier, store: store}
}

// orderingRef pulls the fields that identify which account a payload touches,
// without normalizing it. Used only to derive the queue ordering key.
type orderingRef struct {
	Account   string `json:"account"`
	Reference string `json:"reference"`
}

func orderingKey(provider string, body []byte) string {
	var ref orderingRef
	_ = json.Unmarshal(body, &ref)

	switch {
	case ref.Account != "":
		return provider + ":" + ref.Account
	case ref.Reference != "":
		return provider + ":" + ref.Reference
	default:
		return provider
	}
}

// Accept verifies the signature over the raw body and enqueues the delivery.
// An invalid signature is a security event: rejected, logged, not retried.
func (s *Service) Accept(ctx context.Context, provider string, body []byte, signature string) (*queue.Delivery, error) {
	if err := s.verifier.Verify(provider, body, signature); err != nil {
		slog.Warn("rejected webhook", "provider", provider, "error", err)
		return nil, err
	}

	d := &queue.Delivery{
		Provider:    provider,
		OrderingKey: orderingKey(provider, body),
		Payload:     body,
	}

	if err := s.store.Enqueue(ctx, d); err != nil {
		return nil, fmt.Errorf("enqueueing webhook: %w", err)
	}

	slog.Info("accepted webhook", "provider", provider, "delivery", d.ID)

	return d, nil
}
