// Package security validates the hidden option fields of comment
// submission forms. The digest binds the offered options and the target
// reference to the rendered form, so a tampered submission can be
// rejected before anything is written.
package security

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

type Hasher struct {
	secret []byte
}

func NewHasher(secret []byte) *Hasher {
	return &Hasher{secret: secret}
}

// Compute returns the hex digest over the ordered concatenation of the
// given option strings (comma-separated codes such as "pa,ra") and the
// target reference (something like "events.event:5157"). The secret
// never leaves the process.
func (h *Hasher) Compute(options, photoOptions, ratingOptions, target string) string {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(options))
	mac.Write([]byte(photoOptions))
	mac.Write([]byte(ratingOptions))
	mac.Write([]byte(target))

	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the digest and compares it to the claimed one in
// constant time. Any mismatch returns false.
func (h *Hasher) Verify(claimed, options, photoOptions, ratingOptions, target string) bool {
	expected := h.Compute(options, photoOptions, ratingOptions, target)

	return hmac.Equal([]byte(claimed), []byte(expected))
}
