package webhook_test

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tallyhq/tally/internal/webhook"
)

func sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifier_Verify(t *testing.T) {
	v := webhook.NewVerifier(map[string]string{"payments": "s3cret"})

	body := []byte(`{"event_type":"charge.completed","reference":"ch-1"}`)

	t.Run("ValidSignature", func(t *testing.T) {
		assert.NoError(t, v.Verify("payments", body, sign("s3cret", body)))
	})

	t.Run("TamperedBody", func(t *testing.T) {
		signature := sign("s3cret", body)

		tampered := []byte(`{"event_type":"charge.completed","reference":"ch-2"}`)

		assert.ErrorIs(t, v.Verify("payments", tampered, signature), webhook.ErrInvalidSignature)
	})

	t.Run("WrongSecret", func(t *testing.T) {
		assert.ErrorIs(t, v.Verify("payments", body, sign("other", body)), webhook.ErrInvalidSignature)
	})

	t.Run("MissingSignature", func(t *testing.T) {
		assert.ErrorIs(t, v.Verify("payments", body, ""), webhook.ErrInvalidSignature)
	})

	t.Run("UnknownProvider", func(t *testing.T) {
		assert.ErrorIs(t, v.Verify("bank", body, sign("s3cret", body)), webhook.ErrUnknownProvider)
	})
}
