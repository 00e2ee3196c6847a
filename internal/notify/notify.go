package notify

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"abquant/internal/bus"
	"abquant/internal/event"
	"abquant/internal/model"
	"abquant/internal/model/enum"
	"abquant/pkg/exception"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
)

const (
	defaultChannel   = "abquant.alert"
	defaultQueueSize = 256
	defaultTimeout   = 3 * time.Second
)

// Config holds the redis connection and the alert channel.
type Config struct {
	Addr      string        `mapstructure:"addr"`
	Password  string        `mapstructure:"password"`
	DB        int           `mapstructure:"db"`
	Channel   string        `mapstructure:"channel"`
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

func (c Config) withDefaults() Config {
	if c.Channel == "" {
		c.Channel = defaultChannel
	}
	if c.QueueSize <= 0 {
		c.QueueSize = defaultQueueSize
	}
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	return c
}

func NewRedisClient(cfg Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

// Publisher is the part of *redis.Client the notifier uses.
type Publisher interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

// Message is the JSON body published for every alert.
type Message struct {
	Kind    string    `json:"kind"`
	Level   string    `json:"level"`
	Source  string    `json:"source,omitempty"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier forwards warning and error logs and exception events to a redis
// channel. Publishing runs on its own goroutine so the dispatcher never
// waits on the network.
type Notifier struct {
	cfg Config
	pub Publisher
	ch  chan Message
	wg  sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	started atomic.Bool
	sent    atomic.Uint64
	dropped atomic.Uint64
}

func New(cfg Config, pub Publisher) (*Notifier, error) {
	if pub == nil {
		return nil, exception.ErrNilInstance
	}
	cfg = cfg.withDefaults()
	return &Notifier{
		cfg: cfg,
		pub: pub,
		ch:  make(chan Message, cfg.QueueSize),
	}, nil
}

// Register subscribes the notifier to log and exception events.
func (n *Notifier) Register(d *bus.Dispatcher) {
	d.Register(event.KindLog, n)
	d.Register(event.KindException, n)
}

func (n *Notifier) HandleEvent(e event.Event) error {
	msg, ok := toMessage(e)
	if !ok {
		return nil
	}

	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return nil
	}
	select {
	case n.ch <- msg:
	default:
		n.dropped.Add(1)
	}
	return nil
}

func toMessage(e event.Event) (Message, bool) {
	switch p := e.Payload.(type) {
	case model.Log:
		if p.Level < enum.LogLevelWarning {
			return Message{}, false
		}
		return Message{Kind: "log", Level: p.Level.String(), Source: p.GatewayName, Message: p.Msg, Time: p.Time}, true
	case event.Exception:
		msg := "unknown"
		if p.Err != nil {
			msg = p.Err.Error()
		}
		return Message{Kind: "exception", Level: enum.LogLevelError.String(), Source: p.Source, Message: msg, Time: p.Time}, true
	case event.Congestion:
		return Message{
			Kind:    "congestion",
			Level:   enum.LogLevelWarning.String(),
			Message: fmt.Sprintf("queue depth %d over threshold %d", p.Depth, p.Threshold),
			Time:    p.Time,
		}, true
	default:
		return Message{}, false
	}
}

// Start runs the publish loop until ctx is done or Close is called.
func (n *Notifier) Start(ctx context.Context) {
	if n.started.Swap(true) {
		return
	}
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-n.ch:
				if !ok {
					return
				}
				if err := n.publish(ctx, msg); err != nil {
					logs.Errorf("publish alert, err: %+v", err)
				}
			}
		}
	}()
}

func (n *Notifier) publish(ctx context.Context, msg Message) error {
	payload, err := sonic.ConfigFastest.Marshal(msg)
	if err != nil {
		return errors.Wrap(err, "marshal alert")
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()
	if err := n.pub.Publish(ctx, n.cfg.Channel, payload).Err(); err != nil {
		return errors.Wrap(err, "redis publish").With("channel", n.cfg.Channel)
	}
	n.sent.Add(1)
	return nil
}

// Close stops accepting alerts and waits for queued ones to be published.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if !n.closed {
		n.closed = true
		close(n.ch)
	}
	n.mu.Unlock()

	n.wg.Wait()
	if d := n.dropped.Load(); d > 0 {
		logs.Warnf("notifier dropped %d alerts", d)
	}
	return nil
}

func (n *Notifier) Sent() uint64    { return n.sent.Load() }
func (n *Notifier) Dropped() uint64 { return n.dropped.Load() }
