// Package cache holds full aggregator offers for a browsing session while the
// passenger form is being filled.
package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/skyroute/booking-backend/internal/models"
)

const (
	// DefaultTTL is how long an offer stays bookable after it is stored
	DefaultTTL = 45 * time.Minute

	// DefaultGrace is how long an expired entry is remembered so reads can report it as expired
	DefaultGrace = 2 * time.Hour

	keyPrefix = "offer"
)

var (
	// ErrOfferNotFound means no entry exists for the session and fingerprint
	ErrOfferNotFound = errors.New("offer not found")

	// ErrOfferExpired means the entry existed but its TTL has passed. It matches ErrOfferNotFound.
	ErrOfferExpired = fmt.Errorf("%w: offer expired", ErrOfferNotFound)

	// ErrFingerprintConflict means a different payload is already stored under the fingerprint
	ErrFingerprintConflict = errors.New("fingerprint already holds a different offer")

	// ErrInvalidKey means the session id or fingerprint is empty
	ErrInvalidKey = errors.New("session id and fingerprint are required")

	// ErrInvalidPayload means the payload is not a JSON offer object
	ErrInvalidPayload = errors.New("offer payload must be a JSON object")
)

// OfferCache stores offers keyed by (session, fingerprint)
type OfferCache interface {
	// Put stores raw under the fingerprint. Storing an identical payload again is a no-op
	// that keeps the original expiry.
	Put(ctx context.Context, sessionID, fingerprint string, raw json.RawMessage) (*models.CachedOffer, error)
	Get(ctx context.Context, sessionID, fingerprint string) (*models.CachedOffer, error)
	Delete(ctx context.Context, sessionID, fingerprint string) error
}

// Options configures TTL and tombstone grace
type Options struct {
	TTL   time.Duration
	Grace time.Duration
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Grace < 0 {
		o.Grace = 0
	}
	return o
}

// Key returns the storage key for a session and fingerprint
func Key(sessionID, fingerprint string) string {
	return keyPrefix + ":" + sessionID + ":" + fingerprint
}

// entry is the stored form of a cached offer
type entry struct {
	Raw       json.RawMessage `json:"raw"`
	StoredAt  time.Time       `json:"stored_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

func (e *entry) expired(now time.Time) bool {
	return !now.Before(e.ExpiresAt)
}

func (e *entry) toCachedOffer(sessionID, fingerprint string) (*models.CachedOffer, error) {
	offer, err := models.ParseOffer(e.Raw)
	if err != nil {
		return nil, fmt.Errorf("decode cached offer: %w", err)
	}
	return &models.CachedOffer{
		SessionID:   sessionID,
		Fingerprint: fingerprint,
		Raw:         e.Raw,
		Offer:       *offer,
		StoredAt:    e.StoredAt,
		ExpiresAt:   e.ExpiresAt,
	}, nil
}

func checkKey(sessionID, fingerprint string) error {
	if strings.TrimSpace(sessionID) == "" || strings.TrimSpace(fingerprint) == "" {
		return ErrInvalidKey
	}
	return nil
}

// compactPayload validates raw is a JSON object and strips insignificant whitespace
func compactPayload(raw json.RawMessage) (json.RawMessage, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, ErrInvalidPayload
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, trimmed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if _, err := models.ParseOffer(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return json.RawMessage(buf.Bytes()), nil
}

// SamePayload reports whether two JSON documents are semantically equal (key order and
// whitespace ignored)
func SamePayload(a, b json.RawMessage) bool {
	if bytes.Equal(a, b) {
		return true
	}
	var va, vb interface{}
	if err := json.Unmarshal(a, &va); err != nil {
		return false
	}
	if err := json.Unmarshal(b, &vb); err != nil {
		return false
	}
	return reflect.DeepEqual(va, vb)
}
