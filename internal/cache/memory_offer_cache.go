package cache

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/models"
)

// MemoryOfferCache is a process-local OfferCache. Expired entries are dropped by PurgeExpired
// once the grace period has passed.
type MemoryOfferCache struct {
	mu      sync.RWMutex
	entries map[string]*entry
	opts    Options
	logger  *logrus.Logger
	now     func() time.Time
}

// NewMemoryOfferCache creates an in-memory offer cache
func NewMemoryOfferCache(opts Options, logger *logrus.Logger) *MemoryOfferCache {
	return &MemoryOfferCache{
		entries: make(map[string]*entry),
		opts:    opts.withDefaults(),
		logger:  logger,
		now:     time.Now,
	}
}

// Put stores an offer write-once
func (c *MemoryOfferCache) Put(ctx context.Context, sessionID, fingerprint string, raw json.RawMessage) (*models.CachedOffer, error) {
	if err := checkKey(sessionID, fingerprint); err != nil {
		return nil, err
	}
	payload, err := compactPayload(raw)
	if err != nil {
		return nil, err
	}

	key := Key(sessionID, fingerprint)
	now := c.now().UTC()

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, ok := c.entries[key]; ok && !existing.expired(now) {
		if !SamePayload(existing.Raw, payload) {
			c.logger.WithFields(logrus.Fields{
				"session_id":  sessionID,
				"fingerprint": fingerprint,
			}).Debug("Fingerprint conflict: different offer payload for existing fingerprint")
			return nil, ErrFingerprintConflict
		}
		return existing.toCachedOffer(sessionID, fingerprint)
	}

	e := &entry{
		Raw:       payload,
		StoredAt:  now,
		ExpiresAt: now.Add(c.opts.TTL),
	}
	c.entries[key] = e
	return e.toCachedOffer(sessionID, fingerprint)
}

// Get returns the live entry, ErrOfferExpired during the grace period, ErrOfferNotFound otherwise
func (c *MemoryOfferCache) Get(ctx context.Context, sessionID, fingerprint string) (*models.CachedOffer, error) {
	if err := checkKey(sessionID, fingerprint); err != nil {
		return nil, err
	}

	c.mu.RLock()
	e, ok := c.entries[Key(sessionID, fingerprint)]
	c.mu.RUnlock()

	if !ok {
		return nil, ErrOfferNotFound
	}
	now := c.now()
	if e.expired(now) {
		if now.Before(e.ExpiresAt.Add(c.opts.Grace)) {
			return nil, ErrOfferExpired
		}
		return nil, ErrOfferNotFound
	}
	return e.toCachedOffer(sessionID, fingerprint)
}

// Delete removes an entry; deleting a missing entry is not an error
func (c *MemoryOfferCache) Delete(ctx context.Context, sessionID, fingerprint string) error {
	if err := checkKey(sessionID, fingerprint); err != nil {
		return err
	}
	c.mu.Lock()
	delete(c.entries, Key(sessionID, fingerprint))
	c.mu.Unlock()
	return nil
}

// PurgeExpired drops entries whose grace period has ended and returns how many were removed
func (c *MemoryOfferCache) PurgeExpired() int {
	now := c.now()

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.ExpiresAt.Add(c.opts.Grace)) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries held, tombstones included
func (c *MemoryOfferCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
