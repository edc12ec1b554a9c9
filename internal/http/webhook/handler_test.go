package webhook_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	webhookHandler "github.com/tallyhq/tally/internal/http/webhook"
	"github.com/tallyhq/tally/internal/queue"
	"github.com/tallyhq/tally/internal/webhook"
)

type captureStore struct {
	enqueued []*queue.Delivery
}

func (s *captureStore) Enqueue(_ context.Context, d *queue.Delivery) error {
	s.enqueued = append(s.enqueued, d)
	return nil
}

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandler_Receive(t *testing.T) {
	store := &captureStore{}
	svc := webhook.NewService(webhook.NewVerifier(map[string]string{"payments": "s3cret"}), store)

	router := chi.NewRouter()
	router.Route("/webhooks", webhookHandler.NewHandler(svc).Routes)

	body := []byte(`{"event_type":"charge.completed","reference":"ch-1","account":"acc-9"}`)

	post := func(provider string, body []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/"+provider, bytes.NewReader(body))
		req.Header.Set(webhookHandler.SignatureHeader, signature)

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		return rec
	}

	t.Run("ValidCallbackAccepted", func(t *testing.T) {
		store.enqueued = nil

		rec := post("payments", body, sign("s3cret", body))

		assert.Equal(t, http.StatusAccepted, rec.Code)
		require.Len(t, store.enqueued, 1)
		assert.Equal(t, body, store.enqueued[0].Payload)
	})

	t.Run("TamperedBodyRejected", func(t *testing.T) {
		store.enqueued = nil

		tampered := []byte(`{"event_type":"charge.completed","reference":"ch-2","account":"acc-9"}`)
		rec := post("payments", tampered, sign("s3cret", body))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, store.enqueued)
	})

	t.Run("UnknownProvider", func(t *testing.T) {
		rec := post("stripe", body, sign("s3cret", body))

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
