package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/drg911/htb-pro-card/pkg/profile"
)

const keyPrefix = "htb_v4_"

// Key is the storage key for an identifier.
func Key(id string) string {
	return keyPrefix + id
}

// Entry is a stored profile. It is valid while now < StoredAt + TTL.
type Entry struct {
	Key      string          `json:"key"`
	Profile  profile.Profile `json:"profile"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`
}

func (e Entry) Fresh(now time.Time) bool {
	return now.Before(e.StoredAt.Add(e.TTL))
}

// Store is a TTL backend. Get may return expired entries; Cache filters them.
type Store interface {
	Get(ctx context.Context, key string) (Entry, bool, error)
	Put(ctx context.Context, e Entry) error
	Delete(ctx context.Context, key string) error
}

// FallbackStore keeps the most recent successful profile per key with no
// expiry. Saves older than the stored one are ignored.
type FallbackStore interface {
	SaveLastKnownGood(ctx context.Context, key string, p profile.Profile, at time.Time) error
	LastKnownGood(ctx context.Context, key string) (profile.Profile, bool, error)
}

// Cache combines a TTL store with an optional last-known-good store.
type Cache struct {
	store    Store
	fallback FallbackStore
	now      func() time.Time
}

type Option func(*Cache)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithFallback enables the last-known-good slot.
func WithFallback(f FallbackStore) Option {
	return func(c *Cache) { c.fallback = f }
}

func New(store Store, opts ...Option) *Cache {
	c := &Cache{store: store, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the entry for key only if it has not expired.
func (c *Cache) Get(ctx context.Context, key string) (Entry, bool, error) {
	e, ok, err := c.store.Get(ctx, key)
	if err != nil {
		return Entry{}, false, fmt.Errorf("cache get %s: %w", key, err)
	}
	if !ok || !e.Fresh(c.now()) {
		return Entry{}, false, nil
	}
	return e, true, nil
}

func (c *Cache) Put(ctx context.Context, key string, p profile.Profile, ttl time.Duration) error {
	now := c.now()
	if err := c.store.Put(ctx, Entry{Key: key, Profile: p, StoredAt: now, TTL: ttl}); err != nil {
		return fmt.Errorf("cache put %s: %w", key, err)
	}
	if c.fallback != nil {
		if err := c.fallback.SaveLastKnownGood(ctx, key, p, now); err != nil {
			return fmt.Errorf("last-known-good save %s: %w", key, err)
		}
	}
	return nil
}

// Invalidate drops the TTL entry. The last-known-good slot is kept.
func (c *Cache) Invalidate(ctx context.Context, key string) error {
	if err := c.store.Delete(ctx, key); err != nil {
		return fmt.Errorf("cache invalidate %s: %w", key, err)
	}
	return nil
}

func (c *Cache) LastKnownGood(ctx context.Context, key string) (profile.Profile, bool, error) {
	if c.fallback == nil {
		return profile.Profile{}, false, nil
	}
	return c.fallback.LastKnownGood(ctx, key)
}

// HasFallback reports whether a last-known-good store is configured.
func (c *Cache) HasFallback() bool {
	return c.fallback != nil
}
