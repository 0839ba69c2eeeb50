// Package warmup refreshes cached profiles on request from a Kafka topic.
package warmup

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/drg911/htb-pro-card/pkg/identifier"
	"github.com/drg911/htb-pro-card/pkg/profile"
	"github.com/drg911/htb-pro-card/pkg/source"
	"github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

type Config struct {
	Brokers []string
	Topic   string
	GroupID string
	// Timeout bounds the refresh triggered by one message.
	Timeout time.Duration
	// RetryBackoff is the first wait after a failed session; it doubles up
	// to a minute.
	RetryBackoff time.Duration
	TTL          time.Duration
	Labs         source.RemoteAPI
}

func (c *Config) applyDefaults() {
	if len(c.Brokers) == 0 {
		c.Brokers = []string{"localhost:9092"}
	}
	if c.Topic == "" {
		c.Topic = "htbcard-warmup"
	}
	if c.GroupID == "" {
		c.GroupID = "htbcard"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
}

const maxRetryBackoff = time.Minute

// Refresher is implemented by service.Service.
type Refresher interface {
	Refresh(ctx context.Context, id string, cfg source.Config, ttl time.Duration) (profile.Profile, error)
}

// Consumer reads warm-up requests and refreshes each named profile.
type Consumer struct {
	cfg           Config
	refresher     Refresher
	log           *logrus.Logger
	consumerGroup sarama.ConsumerGroup
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	ready         chan struct{}
	readyOnce     sync.Once
}

func NewConsumer(cfg Config, refresher Refresher, log *logrus.Logger) (*Consumer, error) {
	cfg.applyDefaults()

	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_0_0_0
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true

	consumerGroup, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, saramaConfig)
	if err != nil {
		return nil, err
	}
	return newConsumer(cfg, refresher, log, consumerGroup), nil
}

func newConsumer(cfg Config, refresher Refresher, log *logrus.Logger, group sarama.ConsumerGroup) *Consumer {
	if log == nil {
		log = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Consumer{
		cfg:           cfg,
		refresher:     refresher,
		log:           log,
		consumerGroup: group,
		ctx:           ctx,
		cancel:        cancel,
		ready:         make(chan struct{}),
	}
}

func (c *Consumer) markReady() {
	c.readyOnce.Do(func() { close(c.ready) })
}

// Start joins the consumer group and returns once the first session is set
// up, or with ctx's error when ctx ends first. Stop must be called in both
// cases.
func (c *Consumer) Start(ctx context.Context) error {
	c.cancel()
	c.ctx, c.cancel = context.WithCancel(ctx)
	c.log.WithFields(logrus.Fields{
		"brokers":  c.cfg.Brokers,
		"topic":    c.cfg.Topic,
		"group_id": c.cfg.GroupID,
	}).Info("starting warm-up consumer")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		backoff := c.cfg.RetryBackoff
		for {
			err := c.consumerGroup.Consume(c.ctx, []string{c.cfg.Topic}, &groupHandler{consumer: c})
			if errors.Is(err, sarama.ErrClosedConsumerGroup) || c.ctx.Err() != nil {
				return
			}
			if err == nil {
				// Rebalance; rejoin straight away.
				backoff = c.cfg.RetryBackoff
				continue
			}
			c.log.Errorf("warm-up consumer: %v, retrying in %s", err, backoff)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > maxRetryBackoff {
				backoff = maxRetryBackoff
			}
		}
	}()

	select {
	case <-c.ready:
	case <-c.ctx.Done():
		return c.ctx.Err()
	}
	c.log.Info("warm-up consumer ready")

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			select {
			case <-c.ctx.Done():
				return
			case err, ok := <-c.consumerGroup.Errors():
				if !ok {
					return
				}
				c.log.Errorf("warm-up consumer group: %v", err)
			}
		}
	}()
	return nil
}

func (c *Consumer) Stop() error {
	c.log.Info("stopping warm-up consumer")
	c.cancel()
	c.wg.Wait()
	return c.consumerGroup.Close()
}

// ParseMessage extracts identifiers from a message value. Accepted shapes:
// a bare id or profile URL, {"id": ...}, {"profile_url": ...} and
// {"ids": [...]}. Entries that do not resolve to a numeric id are dropped.
func ParseMessage(value []byte) []string {
	doc := gjson.ParseBytes(value)
	var raw []string
	switch {
	case doc.IsObject():
		for _, key := range []string{"id", "profile_url", "url"} {
			if v := doc.Get(key); v.Exists() {
				raw = append(raw, v.String())
			}
		}
		doc.Get("ids").ForEach(func(_, v gjson.Result) bool {
			raw = append(raw, v.String())
			return true
		})
	case doc.IsArray():
		doc.ForEach(func(_, v gjson.Result) bool {
			raw = append(raw, v.String())
			return true
		})
	case doc.Type == gjson.String || doc.Type == gjson.Number:
		raw = append(raw, doc.String())
	default:
		raw = append(raw, string(value))
	}

	seen := make(map[string]bool, len(raw))
	ids := make([]string, 0, len(raw))
	for _, r := range raw {
		id := identifier.Resolve(r, "")
		if !numeric(id) || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

func numeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func (c *Consumer) handle(msg *sarama.ConsumerMessage) {
	ids := ParseMessage(msg.Value)
	if len(ids) == 0 {
		c.log.WithFields(logrus.Fields{"offset": msg.Offset, "partition": msg.Partition}).Warn("warm-up message without identifier")
		return
	}
	for _, id := range ids {
		ctx, cancel := context.WithTimeout(c.ctx, c.cfg.Timeout)
		_, err := c.refresher.Refresh(ctx, id, c.cfg.Labs, c.cfg.TTL)
		cancel()
		if err != nil {
			c.log.Warnf("warm-up refresh %s: %v", id, err)
			continue
		}
		c.log.Debugf("warmed %s", id)
	}
}

// groupHandler implements sarama.ConsumerGroupHandler.
type groupHandler struct {
	consumer *Consumer
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.consumer.markReady()
	return nil
}

func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case <-session.Context().Done():
			return nil
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			h.consumer.handle(msg)
			session.MarkMessage(msg, "")
		}
	}
}
