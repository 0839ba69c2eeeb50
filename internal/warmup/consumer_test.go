package warmup

import (
	"context"
	"errors"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/drg911/htb-pro-card/pkg/profile"
	"github.com/drg911/htb-pro-card/pkg/source"
	"github.com/sirupsen/logrus"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{in: `2651542`, want: []string{"2651542"}},
		{in: `https://app.hackthebox.com/profile/2651542`, want: []string{"2651542"}},
		{in: `"https://app.hackthebox.com/profile/77"`, want: []string{"77"}},
		{in: `{"id":2651542}`, want: []string{"2651542"}},
		{in: `{"profile_url":"https://app.hackthebox.com/profile/5"}`, want: []string{"5"}},
		{in: `{"ids":["1","https://app.hackthebox.com/profile/2",1," "]}`, want: []string{"1", "2"}},
		{in: `["9","10"]`, want: []string{"9", "10"}},
		{in: `{"other":true}`, want: []string{}},
		{in: `   `, want: []string{}},
	}
	for _, tc := range tests {
		got := ParseMessage([]byte(tc.in))
		if !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("ParseMessage(%s) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

type fakeRefresher struct {
	mu  sync.Mutex
	ids []string
	cfg source.Config
	ttl time.Duration
}

func (f *fakeRefresher) Refresh(ctx context.Context, id string, cfg source.Config, ttl time.Duration) (profile.Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = append(f.ids, id)
	f.cfg, f.ttl = cfg, ttl
	if id == "500" {
		return profile.Profile{}, errors.New("boom")
	}
	return profile.Empty(), nil
}

func (f *fakeRefresher) seen() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.ids...)
}

type fakeSession struct {
	ctx    context.Context
	mu     sync.Mutex
	marked []int64
}

func (s *fakeSession) Claims() map[string][]int32 { return nil }
func (s *fakeSession) MemberID() string { return "m" }
func (s *fakeSession) GenerationID() int32 { return 1 }
func (s *fakeSession) MarkOffset(string, int32, int64, string) {}
func (s *fakeSession) Commit() {}
func (s *fakeSession) ResetOffset(string, int32, int64, string) {}
func (s *fakeSession) Context() context.Context { return s.ctx }
func (s *fakeSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	s.mu.Lock()
	s.marked = append(s.marked, msg.Offset)
	s.mu.Unlock()
}

type fakeClaim struct {
	msgs chan *sarama.ConsumerMessage
}

func (c *fakeClaim) Topic() string { return "htbcard-warmup" }
func (c *fakeClaim) Partition() int32 { return 0 }
func (c *fakeClaim) InitialOffset() int64 { return 0 }
func (c *fakeClaim) HighWaterMarkOffset() int64 { return 0 }
func (c *fakeClaim) Messages() <-chan *sarama.ConsumerMessage { return c.msgs }

// fakeGroup runs a single session over the queued messages.
type fakeGroup struct {
	claim  *fakeClaim
	errs   chan error
	closed bool
}

func (g *fakeGroup) Consume(ctx context.Context, _ []string, handler sarama.ConsumerGroupHandler) error {
	sess := &fakeSession{ctx: ctx}
	if err := handler.Setup(sess); err != nil {
		return err
	}
	err := handler.ConsumeClaim(sess, g.claim)
	handler.Cleanup(sess)
	<-ctx.Done()
	return err
}

func (g *fakeGroup) Errors() <-chan error { return g.errs }
func (g *fakeGroup) Close() error { g.closed = true; return nil }
func (g *fakeGroup) Pause(map[string][]int32) {}
func (g *fakeGroup) Resume(map[string][]int32) {}
func (g *fakeGroup) PauseAll() {}
func (g *fakeGroup) ResumeAll() {}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestConsumeClaimRefreshesAndMarks(t *testing.T) {
	ref := &fakeRefresher{}
	cfg := Config{TTL: time.Hour, Labs: source.RemoteAPI{Token: "t"}}
	cfg.applyDefaults()
	c := newConsumer(cfg, ref, quietLogger(), nil)

	msgs := make(chan *sarama.ConsumerMessage, 4)
	msgs <- &sarama.ConsumerMessage{Offset: 1, Value: []byte(`{"id":"1"}`)}
	msgs <- &sarama.ConsumerMessage{Offset: 2, Value: []byte(`not an id`)}
	msgs <- &sarama.ConsumerMessage{Offset: 3, Value: []byte(`{"ids":["500","2"]}`)}
	close(msgs)

	sess := &fakeSession{ctx: context.Background()}
	h := &groupHandler{consumer: c}
	if err := h.ConsumeClaim(sess, &fakeClaim{msgs: msgs}); err != nil {
		t.Fatal(err)
	}

	if got := ref.seen(); !reflect.DeepEqual(got, []string{"1", "500", "2"}) {
		t.Fatalf("refreshed %q", got)
	}
	if !reflect.DeepEqual(sess.marked, []int64{1, 2, 3}) {
		t.Fatalf("marked %v", sess.marked)
	}
	if ref.ttl != time.Hour || ref.cfg != source.Config(cfg.Labs) {
		t.Fatalf("refresh args: %v %#v", ref.ttl, ref.cfg)
	}
}

func TestStartStop(t *testing.T) {
	ref := &fakeRefresher{}
	msgs := make(chan *sarama.ConsumerMessage, 1)
	msgs <- &sarama.ConsumerMessage{Value: []byte(`42`)}
	close(msgs)
	group := &fakeGroup{claim: &fakeClaim{msgs: msgs}, errs: make(chan error)}

	cfg := Config{}
	cfg.applyDefaults()
	c := newConsumer(cfg, ref, quietLogger(), group)
	if err := c.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for len(ref.seen()) == 0 {
		select {
		case <-deadline:
			t.Fatal("message not consumed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	if !group.closed {
		t.Fatal("consumer group not closed")
	}
	if got := ref.seen(); !reflect.DeepEqual(got, []string{"42"}) {
		t.Fatalf("refreshed %q", got)
	}
}

// flakyGroup fails the first Consume before any session is set up, then
// behaves like a healthy group.
type flakyGroup struct {
	fakeGroup
	mu    sync.Mutex
	calls int
}

func (g *flakyGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	g.mu.Lock()
	g.calls++
	n := g.calls
	g.mu.Unlock()
	if n == 1 {
		return errors.New("kafka: client has run out of available brokers")
	}
	return g.fakeGroup.Consume(ctx, topics, handler)
}

func TestStartRecoversFromFailedFirstSession(t *testing.T) {
	ref := &fakeRefresher{}
	msgs := make(chan *sarama.ConsumerMessage)
	group := &flakyGroup{fakeGroup: fakeGroup{claim: &fakeClaim{msgs: msgs}, errs: make(chan error)}}

	cfg := Config{RetryBackoff: 10 * time.Millisecond}
	cfg.applyDefaults()
	c := newConsumer(cfg, ref, quietLogger(), group)

	done := make(chan error, 1)
	go func() { done <- c.Start(context.Background()) }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start still blocked after the second session was set up")
	}
	close(msgs)
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
	group.mu.Lock()
	defer group.mu.Unlock()
	if group.calls < 2 {
		t.Fatalf("Consume called %d times", group.calls)
	}
}

func TestStartReturnsWhenContextEnds(t *testing.T) {
	failing := &alwaysFailing{fakeGroup{errs: make(chan error)}}

	cfg := Config{RetryBackoff: 10 * time.Millisecond}
	cfg.applyDefaults()
	c := newConsumer(cfg, &fakeRefresher{}, quietLogger(), failing)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := c.Start(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Start = %v, want deadline exceeded", err)
	}
	if err := c.Stop(); err != nil {
		t.Fatal(err)
	}
}

// alwaysFailing never gets as far as a session.
type alwaysFailing struct{ fakeGroup }

func (g *alwaysFailing) Consume(context.Context, []string, sarama.ConsumerGroupHandler) error {
	return errors.New("kafka: client has run out of available brokers")
}
