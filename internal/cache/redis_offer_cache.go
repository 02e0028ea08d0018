package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/skyroute/booking-backend/internal/models"
)

const maxReplaceAttempts = 3

// RedisOfferCache stores offers in Redis. The Redis key lives for TTL plus grace so an
// expired entry can still be told apart from one that never existed.
type RedisOfferCache struct {
	client *redis.Client
	opts   Options
	logger *logrus.Logger
	now    func() time.Time
}

// NewRedisOfferCache creates a Redis-backed offer cache
func NewRedisOfferCache(client *redis.Client, opts Options, logger *logrus.Logger) *RedisOfferCache {
	return &RedisOfferCache{
		client: client,
		opts:   opts.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// Put stores an offer with SET NX. An existing live entry is compared against the payload;
// an expired one is replaced.
func (c *RedisOfferCache) Put(ctx context.Context, sessionID, fingerprint string, raw json.RawMessage) (*models.CachedOffer, error) {
	if err := checkKey(sessionID, fingerprint); err != nil {
		return nil, err
	}
	payload, err := compactPayload(raw)
	if err != nil {
		return nil, err
	}

	key := Key(sessionID, fingerprint)
	now := c.now().UTC()
	fresh := &entry{
		Raw:       payload,
		StoredAt:  now,
		ExpiresAt: now.Add(c.opts.TTL),
	}
	encoded, err := json.Marshal(fresh)
	if err != nil {
		return nil, fmt.Errorf("encode cache entry: %w", err)
	}

	stored, err := c.client.SetNX(ctx, key, encoded, c.opts.TTL+c.opts.Grace).Result()
	if err != nil {
		return nil, fmt.Errorf("redis set offer: %w", err)
	}
	if stored {
		return fresh.toCachedOffer(sessionID, fingerprint)
	}

	for attempt := 0; attempt < maxReplaceAttempts; attempt++ {
		var result *entry
		err = c.client.Watch(ctx, func(tx *redis.Tx) error {
			existing, err := readEntry(ctx, tx, key)
			if err != nil && !errors.Is(err, ErrOfferNotFound) {
				return err
			}
			if existing != nil && !existing.expired(now) {
				if !SamePayload(existing.Raw, payload) {
					return ErrFingerprintConflict
				}
				result = existing
				return nil
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Set(ctx, key, encoded, c.opts.TTL+c.opts.Grace)
				return nil
			})
			result = fresh
			return err
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrFingerprintConflict) {
			c.logger.WithFields(logrus.Fields{
				"session_id":  sessionID,
				"fingerprint": fingerprint,
			}).Debug("Fingerprint conflict: different offer payload for existing fingerprint")
			return nil, err
		}
		if err != nil {
			return nil, fmt.Errorf("redis replace offer: %w", err)
		}
		return result.toCachedOffer(sessionID, fingerprint)
	}

	return nil, fmt.Errorf("redis replace offer: %w", redis.TxFailedErr)
}

// Get returns the live entry, ErrOfferExpired during the grace period, ErrOfferNotFound otherwise
func (c *RedisOfferCache) Get(ctx context.Context, sessionID, fingerprint string) (*models.CachedOffer, error) {
	if err := checkKey(sessionID, fingerprint); err != nil {
		return nil, err
	}

	e, err := readEntry(ctx, c.client, Key(sessionID, fingerprint))
	if err != nil {
		return nil, err
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

// Delete removes an entry
func (c *RedisOfferCache) Delete(ctx context.Context, sessionID, fingerprint string) error {
	if err := checkKey(sessionID, fingerprint); err != nil {
		return err
	}
	if err := c.client.Del(ctx, Key(sessionID, fingerprint)).Err(); err != nil {
		return fmt.Errorf("redis delete offer: %w", err)
	}
	return nil
}

// stringGetter is satisfied by both *redis.Client and *redis.Tx
type stringGetter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func readEntry(ctx context.Context, cmd stringGetter, key string) (*entry, error) {
	data, err := cmd.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrOfferNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get offer: %w", err)
	}

	var e entry
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("decode cache entry: %w", err)
	}
	return &e, nil
}
