package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/go-faster/errors"
)

// ErrInvalidSignature is returned when a webhook body does not match its
// signature.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks signature against body in constant time. The signature may
// carry a "sha256=" prefix.
func Verify(secret, body []byte, signature string) error {
	got, err := hex.DecodeString(strings.TrimPrefix(signature, "sha256="))
	if err != nil || len(got) == 0 {
		return ErrInvalidSignature
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrInvalidSignature
	}
	return nil
}
