// Package fingerprint derives deterministic, URL-safe identifiers for aggregator offers.
//
// A fingerprint is the BLAKE2b-256 digest of the JSON-serialised canonical tuple,
// base32-encoded without padding and truncated to Length characters (160 bits).
// At that length the birthday bound is around 2^80 offers, far above what one session
// or one cache can hold, but it is not a uniqueness guarantee: the offer cache still
// rejects a second, different payload stored under an existing fingerprint.
package fingerprint

import (
	"encoding/base32"
	"encoding/json"
	"fmt"

	"github.com/skyroute/booking-backend/internal/models"
	"golang.org/x/crypto/blake2b"
)

// Length is the number of characters in a fingerprint
const Length = 32

var encoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// EncodingError is returned when a value cannot be serialised for hashing
type EncodingError struct {
	Err error
}

func (e *EncodingError) Error() string {
	return fmt.Sprintf("fingerprint encoding failed: %v", e.Err)
}

func (e *EncodingError) Unwrap() error {
	return e.Err
}

// Generate hashes a canonical projection into a fingerprint
func Generate(c Canonical) (string, error) {
	return Digest(c.Tuple(), Length)
}

// FromOffer canonicalizes and fingerprints an offer in one step
func FromOffer(offer models.Offer) (string, error) {
	c, err := Canonicalize(offer)
	if err != nil {
		return "", err
	}
	return Generate(c)
}

// Digest serialises v as JSON and returns the first n base32 characters of its BLAKE2b-256 digest.
// n is capped at the full encoded digest length (52).
func Digest(v interface{}, n int) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", &EncodingError{Err: err}
	}
	sum := blake2b.Sum256(payload)
	encoded := encoding.EncodeToString(sum[:])
	if n <= 0 || n > len(encoded) {
		n = len(encoded)
	}
	return encoded[:n], nil
}
