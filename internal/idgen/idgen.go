// Package idgen mints the service's identifiers: crypto/rand bytes hex
// encoded behind a short type prefix (dsp_, msg_, evd_, aud_).
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// idEntropy is the number of random bytes behind a prefixed id.
const idEntropy = 12

// WithPrefix returns prefix followed by 24 hex characters of entropy.
func WithPrefix(prefix string) string {
	return prefix + Hex(idEntropy)
}

// Hex returns numBytes of crypto/rand entropy, hex encoded.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		// Entropy exhaustion is not a recoverable application error.
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}
