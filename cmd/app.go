package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/drg911/htb-pro-card/internal/server"
	"github.com/drg911/htb-pro-card/internal/utils"
	"github.com/drg911/htb-pro-card/pkg/cache"
	"github.com/drg911/htb-pro-card/pkg/profile"
	"github.com/drg911/htb-pro-card/pkg/service"
	"github.com/drg911/htb-pro-card/pkg/source"
	"github.com/drg911/htb-pro-card/pkg/storage"
	"github.com/drg911/htb-pro-card/pkg/whttp"
	"github.com/spf13/viper"
)

// app holds the wired service and everything that must be closed with it.
type app struct {
	svc     *service.Service
	server  server.Config
	backend string
	db      *storage.DB
	lock    *utils.DBLock
	closers []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			utils.Log.Warnf("closing: %v", err)
		}
	}
}

func labsConfig() source.RemoteAPI {
	return source.RemoteAPI{
		BaseURL: viper.GetString("labs.base_url"),
		Token:   viper.GetString("labs.token"),
		Timeout: viper.GetDuration("labs.timeout"),
	}
}

func globalDefaults() service.GlobalDefaults {
	return service.GlobalDefaults{
		Identifier: viper.GetString("defaults.id"),
		TTL:        time.Duration(viper.GetInt("defaults.ttl")) * time.Second,
		ShowBadge:  viper.GetBool("defaults.badge"),
		JSONURL:    viper.GetString("defaults.json_url"),
	}
}

// openSQLite opens the last-known-good database, creating its directory.
func openSQLite() (*storage.DB, error) {
	path, err := utils.EnsureDBDir(viper.GetString("cache.sqlite_path"))
	if err != nil {
		return nil, err
	}
	db, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	utils.Log.Debugf("using sqlite store at %s", path)
	return db, nil
}

// persistentCache fails for the memory backend, which lives only as long as
// this process.
func (a *app) persistentCache() error {
	if a.backend == "" || a.backend == "memory" {
		return fmt.Errorf("cache.backend=memory is private to each process; set cache.backend=redis to manage a shared cache")
	}
	return nil
}

// lockedFallback takes the database file lock around last-known-good writes,
// which may come from serve, cache warm and cache clear at the same time.
type lockedFallback struct {
	db   *storage.DB
	lock *utils.DBLock
}

func (f lockedFallback) SaveLastKnownGood(ctx context.Context, key string, p profile.Profile, at time.Time) error {
	return f.lock.WithLock(func() error {
		return f.db.SaveLastKnownGood(ctx, key, p, at)
	})
}

func (f lockedFallback) LastKnownGood(ctx context.Context, key string) (profile.Profile, bool, error) {
	return f.db.LastKnownGood(ctx, key)
}

func newApp(ctx context.Context) (*app, error) {
	a := &app{}

	hc, err := whttp.NewClient(whttp.ClientOptions{
		RetryMax: viper.GetInt("http.retries"),
		Proxy:    viper.GetString("http.proxy"),
	})
	if err != nil {
		return nil, err
	}

	var store cache.Store
	a.backend = strings.ToLower(viper.GetString("cache.backend"))
	switch backend := a.backend; backend {
	case "", "memory":
		store = cache.NewMemory()
	case "redis":
		r, err := cache.NewRedis(ctx, cache.RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, r.Close)
		store = r
	default:
		return nil, fmt.Errorf("unknown cache backend %q (memory, redis)", backend)
	}

	var opts []cache.Option
	switch fallback := strings.ToLower(viper.GetString("cache.fallback")); fallback {
	case "", "none":
	case "memory":
		opts = append(opts, cache.WithFallback(cache.NewMemoryFallback()))
	case "sqlite":
		db, err := openSQLite()
		if err != nil {
			a.Close()
			return nil, err
		}
		lock, err := utils.NewDBLock(viper.GetString("cache.sqlite_path"))
		if err != nil {
			db.Close()
			a.Close()
			return nil, err
		}
		a.db, a.lock = db, lock
		a.closers = append(a.closers, db.Close)
		opts = append(opts, cache.WithFallback(lockedFallback{db: db, lock: lock}))
	default:
		a.Close()
		return nil, fmt.Errorf("unknown cache fallback %q (none, memory, sqlite)", fallback)
	}

	a.svc = service.New(source.NewClient(hc), cache.New(store, opts...), utils.Log)
	a.server = server.Config{
		Defaults:     globalDefaults(),
		Labs:         labsConfig(),
		RelayTimeout: viper.GetDuration("relay.timeout"),
		Relay:        source.RelayPolicy{Domains: viper.GetStringSlice("relay.allowed_domains")},
		Username:     viper.GetString("server.username"),
		Password:     viper.GetString("server.password"),
	}
	return a, nil
}
