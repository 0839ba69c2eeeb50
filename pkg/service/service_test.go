package service

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/drg911/htb-pro-card/pkg/cache"
	"github.com/drg911/htb-pro-card/pkg/identifier"
	"github.com/drg911/htb-pro-card/pkg/source"
	"github.com/drg911/htb-pro-card/pkg/whttp"
)

const labsBody = `{"profile":{"name":"drg","rank":"Pro Hacker","points":1200,"user_owns":30,"system_owns":12}}`

type fakeFetcher struct {
	mu    sync.Mutex
	calls int
	raw   source.Raw
	err   error
	delay time.Duration
}

func (f *fakeFetcher) Fetch(ctx context.Context, id string, cfg source.Config) (source.Raw, error) {
	f.mu.Lock()
	f.calls++
	raw, err, delay := f.raw, f.err, f.delay
	f.mu.Unlock()
	if delay > 0 {
		time.Sleep(delay)
	}
	return raw, err
}

func (f *fakeFetcher) set(raw source.Raw, err error) {
	f.mu.Lock()
	f.raw, f.err = raw, err
	f.mu.Unlock()
}

func (f *fakeFetcher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

var labs = source.RemoteAPI{Token: "t"}

func newService(f source.Fetcher, opts ...cache.Option) (*Service, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]cache.Option{cache.WithClock(clock.Now)}, opts...)
	return New(f, cache.New(cache.NewMemory(), opts...), nil), clock
}

func TestGetProfileServesFromCache(t *testing.T) {
	f := &fakeFetcher{raw: labsBody}
	s, _ := newService(f)
	ctx := context.Background()

	first, err := s.GetProfile(ctx, "2651542", labs, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.GetProfile(ctx, "2651542", labs, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if first.Name != "drg" || second.Name != "drg" || first.RootOwns != 12 {
		t.Fatalf("profiles = %+v / %+v", first, second)
	}
	if f.count() != 1 {
		t.Fatalf("expected one upstream fetch, got %d", f.count())
	}
}

func TestGetProfileRefetchesAfterExpiry(t *testing.T) {
	f := &fakeFetcher{raw: labsBody}
	s, clock := newService(f)
	ctx := context.Background()

	if _, err := s.GetProfile(ctx, "1", labs, 120*time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(119 * time.Second)
	if _, err := s.GetProfile(ctx, "1", labs, 120*time.Second); err != nil {
		t.Fatal(err)
	}
	if f.count() != 1 {
		t.Fatalf("fresh entry refetched: %d", f.count())
	}
	clock.Advance(2 * time.Second)
	if _, err := s.GetProfile(ctx, "1", labs, 120*time.Second); err != nil {
		t.Fatal(err)
	}
	if f.count() != 2 {
		t.Fatalf("expired entry not refetched: %d", f.count())
	}
}

func TestGetProfileTTLFloor(t *testing.T) {
	f := &fakeFetcher{raw: labsBody}
	s, clock := newService(f)
	ctx := context.Background()

	if _, err := s.GetProfile(ctx, "1", labs, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	clock.Advance(30 * time.Second)
	if _, err := s.GetProfile(ctx, "1", labs, 5*time.Second); err != nil {
		t.Fatal(err)
	}
	if f.count() != 1 {
		t.Fatalf("ttl below 60s must be raised to the floor, fetches=%d", f.count())
	}
}

func TestGetProfileStaleFallback(t *testing.T) {
	f := &fakeFetcher{raw: labsBody}
	s, clock := newService(f, cache.WithFallback(cache.NewMemoryFallback()))
	ctx := context.Background()

	if _, err := s.GetProfile(ctx, "1", labs, time.Minute); err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	f.set("", &source.UpstreamError{StatusCode: http.StatusBadGateway})

	p, err := s.GetProfile(ctx, "1", labs, time.Minute)
	if err != nil {
		t.Fatalf("expected last-known-good, got %v", err)
	}
	if p.Name != "drg" {
		t.Fatalf("profile = %+v", p)
	}

	// Refresh reports the failure instead.
	if _, err := s.Refresh(ctx, "1", labs, time.Minute); err == nil {
		t.Fatal("refresh must surface the upstream error")
	}
}

func TestGetProfileErrorWithoutFallback(t *testing.T) {
	f := &fakeFetcher{err: source.ErrMissingCredential}
	s, _ := newService(f)

	_, err := s.GetProfile(context.Background(), "1", labs, time.Minute)
	var pe *ProfileError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ProfileError, got %T %v", err, err)
	}
	if pe.Identifier != "1" || pe.Source != "labs" || !errors.Is(err, source.ErrMissingCredential) {
		t.Fatalf("unexpected error %+v", pe)
	}
}

func TestGetProfileStaticJSONBypassesCache(t *testing.T) {
	f := &fakeFetcher{raw: `{"username":"relay"}`}
	s, _ := newService(f)
	ctx := context.Background()
	cfg := source.StaticJSON{URL: "http://relay.invalid/p.json"}

	for i := 0; i < 3; i++ {
		p, err := s.GetProfile(ctx, "", cfg, time.Hour)
		if err != nil || p.Name != "relay" {
			t.Fatalf("p=%+v err=%v", p, err)
		}
	}
	if f.count() != 3 {
		t.Fatalf("relay must be fetched every call, got %d", f.count())
	}
	if _, ok, _ := s.cache.Get(ctx, cache.Key("")); ok {
		t.Fatal("relay result written to cache")
	}
}

func TestGetProfileUnreachableRelay(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	hc, err := whttp.NewClient(whttp.ClientOptions{})
	if err != nil {
		t.Fatal(err)
	}
	s, _ := newService(source.NewClient(hc))
	_, err = s.GetProfile(context.Background(), "", source.StaticJSON{URL: addr + "/p.json", Timeout: time.Second}, 0)
	var pe *ProfileError
	if !errors.As(err, &pe) || pe.Source != "json" {
		t.Fatalf("expected ProfileError from relay, got %v", err)
	}
	if !errors.Is(err, source.ErrTransport) {
		t.Fatalf("expected transport cause, got %v", err)
	}
}

func TestGetProfileMissingIdentifier(t *testing.T) {
	f := &fakeFetcher{raw: labsBody}
	s, _ := newService(f)
	_, err := s.GetProfile(context.Background(), "", labs, time.Hour)
	if !errors.Is(err, identifier.ErrMissingIdentifier) {
		t.Fatalf("expected missing identifier, got %v", err)
	}
	if f.count() != 0 {
		t.Fatal("fetch must not run without identifier")
	}
}

func TestGetProfileCoalescesConcurrentMisses(t *testing.T) {
	f := &fakeFetcher{raw: labsBody, delay: 50 * time.Millisecond}
	s, _ := newService(f)

	var wg sync.WaitGroup
	var failures int32
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.GetProfile(context.Background(), "9", labs, time.Hour); err != nil {
				atomic.AddInt32(&failures, 1)
			}
		}()
	}
	wg.Wait()
	if failures != 0 {
		t.Fatalf("%d lookups failed", failures)
	}
	if f.count() != 1 {
		t.Fatalf("expected one coalesced fetch, got %d", f.count())
	}
}

func TestRefreshAndInvalidate(t *testing.T) {
	f := &fakeFetcher{raw: labsBody}
	s, _ := newService(f)
	ctx := context.Background()

	if _, err := s.GetProfile(ctx, "1", labs, time.Hour); err != nil {
		t.Fatal(err)
	}
	f.set(`{"name":"renamed"}`, nil)
	p, err := s.Refresh(ctx, "1", labs, time.Hour)
	if err != nil || p.Name != "renamed" {
		t.Fatalf("refresh: %+v %v", p, err)
	}
	if p, _ := s.GetProfile(ctx, "1", labs, time.Hour); p.Name != "renamed" {
		t.Fatalf("refresh did not write cache: %+v", p)
	}
	if f.count() != 2 {
		t.Fatalf("fetches = %d", f.count())
	}

	if err := s.Invalidate(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.GetProfile(ctx, "1", labs, time.Hour); err != nil {
		t.Fatal(err)
	}
	if f.count() != 3 {
		t.Fatalf("invalidate did not force a fetch: %d", f.count())
	}
	if err := s.Invalidate(ctx, ""); !errors.Is(err, identifier.ErrMissingIdentifier) {
		t.Fatalf("invalidate without id: %v", err)
	}
}

func TestTestConnection(t *testing.T) {
	f := &fakeFetcher{raw: labsBody}
	s, _ := newService(f)
	ctx := context.Background()

	d := s.TestConnection(ctx, "1", labs)
	if !d.OK || d.Source != "labs" || d.Data != labsBody || d.Profile == nil || d.Profile.Name != "drg" {
		t.Fatalf("diagnostic = %+v", d)
	}

	f.set("", source.ErrMalformedResponse)
	d = s.TestConnection(ctx, "", source.StaticJSON{URL: "http://x"})
	if d.OK || d.Source != "json" || d.Error == "" {
		t.Fatalf("diagnostic = %+v", d)
	}
	if _, ok, _ := s.cache.Get(ctx, cache.Key("1")); ok {
		t.Fatal("connection test must not write the cache")
	}
}

func TestWarmAll(t *testing.T) {
	f := &fakeFetcher{raw: labsBody}
	s, _ := newService(f)
	ctx := context.Background()

	var done int32
	results := s.WarmAll(ctx, []string{"1", "2", "3", "4"}, labs, time.Hour, 2, func(WarmResult) {
		atomic.AddInt32(&done, 1)
	})
	if len(results) != 4 || done != 4 {
		t.Fatalf("results=%d callbacks=%d", len(results), done)
	}
	for _, r := range results {
		if r.Err != nil {
			t.Fatalf("%s: %v", r.Identifier, r.Err)
		}
		if _, ok, _ := s.cache.Get(ctx, cache.Key(r.Identifier)); !ok {
			t.Fatalf("%s not cached", r.Identifier)
		}
	}
	if s.WarmAll(ctx, nil, labs, time.Hour, 2, nil) != nil {
		t.Fatal("empty input should return nil")
	}
}

// gatedFetcher blocks every fetch until release is closed and records
// whether the fetch context was cancelled while waiting.
type gatedFetcher struct {
	started   chan struct{}
	release   chan struct{}
	once      sync.Once
	cancelled int32
}

func (f *gatedFetcher) Fetch(ctx context.Context, id string, cfg source.Config) (source.Raw, error) {
	f.once.Do(func() { close(f.started) })
	select {
	case <-f.release:
	case <-ctx.Done():
		atomic.StoreInt32(&f.cancelled, 1)
		return "", ctx.Err()
	}
	return labsBody, nil
}

func TestGetProfileSurvivesFirstCallerCancel(t *testing.T) {
	f := &gatedFetcher{started: make(chan struct{}), release: make(chan struct{})}
	s, _ := newService(f)

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := s.GetProfile(ctxA, "3", labs, time.Hour)
		errA <- err
	}()
	<-f.started

	type result struct {
		name string
		err  error
	}
	resB := make(chan result, 1)
	go func() {
		p, err := s.GetProfile(context.Background(), "3", labs, time.Hour)
		resB <- result{p.Name, err}
	}()

	cancelA()
	select {
	case err := <-errA:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("first caller: expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("first caller did not return after cancel")
	}

	close(f.release)
	select {
	case r := <-resB:
		if r.err != nil || r.name != "drg" {
			t.Fatalf("second caller: %q, %v", r.name, r.err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("second caller did not return")
	}
	if atomic.LoadInt32(&f.cancelled) != 0 {
		t.Fatal("shared fetch was cancelled with the first caller")
	}

	// The shared result was cached.
	if p, err := s.GetProfile(context.Background(), "3", labs, time.Hour); err != nil || p.Name != "drg" {
		t.Fatalf("cached lookup: %q, %v", p.Name, err)
	}
}
