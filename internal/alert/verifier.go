package alert

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var ErrBadSignature = errors.New("alert: signature mismatch")

// Verifier checks HMAC-SHA256 signatures over raw webhook bodies.
type Verifier struct {
	secret []byte
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Enabled is false when no secret is configured; Verify then accepts everything.
func (v *Verifier) Enabled() bool {
	return len(v.secret) > 0
}

// Sign returns the lowercase hex digest of payload.
func (v *Verifier) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify compares signature with the expected digest in constant time. A
// "sha256=" prefix is tolerated.
func (v *Verifier) Verify(payload []byte, signature string) error {
	if !v.Enabled() {
		return nil
	}
	signature = strings.TrimPrefix(strings.TrimSpace(signature), "sha256=")
	got, err := hex.DecodeString(strings.ToLower(signature))
	if err != nil {
		return ErrBadSignature
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write(payload)
	if !hmac.Equal(mac.Sum(nil), got) {
		return ErrBadSignature
	}
	return nil
}
