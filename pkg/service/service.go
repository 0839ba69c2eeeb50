package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/drg911/htb-pro-card/pkg/cache"
	"github.com/drg911/htb-pro-card/pkg/identifier"
	"github.com/drg911/htb-pro-card/pkg/profile"
	"github.com/drg911/htb-pro-card/pkg/source"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTTL = 43200 * time.Second
	MinTTL     = 60 * time.Second
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Debugf(string, ...interface{}) {}

// ProfileError is returned when no profile could be produced for a request.
type ProfileError struct {
	Identifier string
	// Source is "labs" or "json".
	Source string
	Err    error
}

func (e *ProfileError) Error() string {
	if e.Identifier == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%v (id %s via %s)", e.Err, e.Identifier, e.Source)
}

func (e *ProfileError) Unwrap() error { return e.Err }

// Service resolves profiles through the cache and the configured source.
type Service struct {
	fetcher source.Fetcher
	cache   *cache.Cache
	log     Logger
	flight  singleflight.Group
}

// New builds a Service. log may be nil.
func New(fetcher source.Fetcher, c *cache.Cache, log Logger) *Service {
	if log == nil {
		log = nopLogger{}
	}
	return &Service{fetcher: fetcher, cache: c, log: log}
}

// EffectiveTTL applies the default for unset values and the 60s floor.
func EffectiveTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if ttl < MinTTL {
		return MinTTL
	}
	return ttl
}

// GetProfile returns the profile for id. Relay documents are fetched on
// every call. Labs profiles are served from cache while fresh; on a fetch
// failure the last-known-good profile is returned when one is stored.
func (s *Service) GetProfile(ctx context.Context, id string, cfg source.Config, ttl time.Duration) (profile.Profile, error) {
	if cfg == nil {
		return profile.Profile{}, errors.New("no profile source configured")
	}
	if _, ok := cfg.(source.StaticJSON); ok {
		raw, err := s.fetcher.Fetch(ctx, id, cfg)
		if err != nil {
			return profile.Profile{}, &ProfileError{Identifier: id, Source: cfg.Name(), Err: err}
		}
		return profile.Normalize(string(raw)), nil
	}

	if id == "" {
		return profile.Profile{}, &ProfileError{Source: cfg.Name(), Err: identifier.ErrMissingIdentifier}
	}
	key := cache.Key(id)
	if p, ok := s.cached(ctx, key); ok {
		return p, nil
	}

	// The flight outlives any single caller; each caller only stops waiting
	// when its own context ends. Fetch timeouts still come from the source.
	fctx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan(key, func() (interface{}, error) {
		// A concurrent caller may have filled the entry meanwhile.
		if p, ok := s.cached(fctx, key); ok {
			return p, nil
		}
		return s.fetchAndStore(fctx, id, key, cfg, ttl, true)
	})
	return s.wait(ctx, id, cfg, ch)
}

func (s *Service) wait(ctx context.Context, id string, cfg source.Config, ch <-chan singleflight.Result) (profile.Profile, error) {
	select {
	case <-ctx.Done():
		return profile.Profile{}, &ProfileError{Identifier: id, Source: cfg.Name(), Err: ctx.Err()}
	case r := <-ch:
		if r.Shared {
			s.log.Debugf("coalesced fetch for %s", id)
		}
		if r.Err != nil {
			return profile.Profile{}, r.Err
		}
		return r.Val.(profile.Profile), nil
	}
}

// Refresh fetches id ignoring any cached entry and writes the result back.
// Failures are reported, never masked by the last-known-good slot.
func (s *Service) Refresh(ctx context.Context, id string, cfg source.Config, ttl time.Duration) (profile.Profile, error) {
	if cfg == nil {
		return profile.Profile{}, errors.New("no profile source configured")
	}
	if _, ok := cfg.(source.StaticJSON); ok {
		return s.GetProfile(ctx, id, cfg, ttl)
	}
	if id == "" {
		return profile.Profile{}, &ProfileError{Source: cfg.Name(), Err: identifier.ErrMissingIdentifier}
	}
	key := cache.Key(id)
	fctx := context.WithoutCancel(ctx)
	ch := s.flight.DoChan("refresh:"+key, func() (interface{}, error) {
		return s.fetchAndStore(fctx, id, key, cfg, ttl, false)
	})
	return s.wait(ctx, id, cfg, ch)
}

// Invalidate drops the cached entry for id.
func (s *Service) Invalidate(ctx context.Context, id string) error {
	if id == "" {
		return identifier.ErrMissingIdentifier
	}
	return s.cache.Invalidate(ctx, cache.Key(id))
}

func (s *Service) cached(ctx context.Context, key string) (profile.Profile, bool) {
	e, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		s.log.Warnf("cache read failed, treating as miss: %v", err)
		return profile.Profile{}, false
	}
	return e.Profile, ok
}

func (s *Service) fetchAndStore(ctx context.Context, id, key string, cfg source.Config, ttl time.Duration, allowStale bool) (profile.Profile, error) {
	raw, err := s.fetcher.Fetch(ctx, id, cfg)
	if err != nil {
		if allowStale {
			if p, ok := s.lastKnownGood(ctx, key); ok {
				s.log.Warnf("serving last-known-good profile for %s: %v", id, err)
				return p, nil
			}
		}
		return profile.Profile{}, &ProfileError{Identifier: id, Source: cfg.Name(), Err: err}
	}

	p := profile.Normalize(string(raw))
	if err := s.cache.Put(ctx, key, p, EffectiveTTL(ttl)); err != nil {
		s.log.Warnf("cache write failed for %s: %v", id, err)
	}
	return p, nil
}

func (s *Service) lastKnownGood(ctx context.Context, key string) (profile.Profile, bool) {
	p, ok, err := s.cache.LastKnownGood(ctx, key)
	if err != nil {
		s.log.Errorf("last-known-good read failed for %s: %v", key, err)
		return profile.Profile{}, false
	}
	return p, ok
}
