// Package webhook authenticates inbound provider callbacks and hands them
// to the durable processing queue.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

var (
	// ErrInvalidSignature is a security event: the body does not match the
	// signature header. Rejected, logged, never retried.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrUnknownProvider means no signing secret is configured for the
	// provider tag in the callback URL.
	ErrUnknownProvider = errors.New("unknown webhook provider")
)

// Verifier checks provider signatures. Secrets are keyed by provider tag.
type Verifier struct {
	secrets map[string]string
}

func NewVerifier(secrets map[string]string) *Verifier {
	return &Verifier{secrets: secrets}
}

// Verify computes the expected HMAC-SHA256 over the exact raw body bytes and
// compares it to the signature header in constant time. The raw bytes matter:
// re-serializing a parsed payload can change byte layout and break the check.
func (v *Verifier) Verify(provider string, body []byte, signature string) error {
	secret, ok := v.secrets[provider]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, provider)
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)

	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return ErrInvalidSignature
	}

	return nil
}
