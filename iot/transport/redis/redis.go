// Package redis carries IoT messages over Redis pub/sub, one channel per IoT topic
package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/logger"
	"github.com/relabs-tech/iotf/iot/transport"
)

// Config is the connection configuration
type Config struct {
	Address  string
	Password string
	DB       int
	// DialTimeout defaults to the go-redis default
	DialTimeout time.Duration
}

// Transport is the Redis transport
type Transport struct {
	client *redis.Client
	log    *logrus.Entry

	mu     sync.Mutex
	closed bool
	done   chan struct{}
	wg     sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// NewClient connects to Redis and checks the connection
func NewClient(conf Config) (*redis.Client, error) {
	opts := redis.Options{
		Addr:     conf.Address,
		Password: conf.Password,
		DB:       conf.DB,
	}
	if conf.DialTimeout > 0 {
		opts.DialTimeout = conf.DialTimeout
	}
	client := redis.NewClient(&opts)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*3)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		client.Close()
		return nil, fmt.Errorf("init redis connection error: %w", err)
	}
	return client, nil
}

// New returns a transport on client. Close closes the client.
func New(client *redis.Client, log *logrus.Entry) *Transport {
	if log == nil {
		log = logger.Default()
	}
	return &Transport{
		client: client,
		log:    log.WithField("component", "redis"),
		done:   make(chan struct{}),
	}
}

// Publish publishes payload on the channel named topic
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	if t.isClosed() {
		return transport.ErrClosed
	}
	if err := t.client.Publish(ctx, topic, payload).Err(); err != nil {
		return fmt.Errorf("cannot publish on %s: %w", topic, err)
	}
	return nil
}

// Subscribe pattern-subscribes to the channels matching filter. It returns once the
// subscription is confirmed by the server.
func (t *Transport) Subscribe(ctx context.Context, filter string, handler transport.Handler) error {
	if !transport.ValidFilter(filter) {
		return fmt.Errorf("invalid filter %q", filter)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}

	pubsub := t.client.PSubscribe(ctx, Glob(filter))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return fmt.Errorf("cannot subscribe to %s: %w", filter, err)
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if !transport.Match(filter, msg.Channel) {
					continue
				}
				handler(ctx, codec.RawMessage{Topic: msg.Channel, Payload: []byte(msg.Payload), ReceivedAt: time.Now().UTC()})
			case <-ctx.Done():
				return
			case <-t.done:
				return
			}
		}
	}()
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// Close ends all subscriptions and closes the client
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.closed = true
	close(t.done)
	t.mu.Unlock()
	t.wg.Wait()
	return t.client.Close()
}

var globEscaper = strings.NewReplacer(`\`, `\\`, `*`, `\*`, `?`, `\?`, `[`, `\[`, `]`, `\]`)

// Glob translates an MQTT filter into a Redis channel pattern. The pattern may match
// more channels than the filter, received messages are checked with transport.Match.
func Glob(filter string) string {
	parts := strings.Split(filter, "/")
	for i, p := range parts {
		switch p {
		case "+", "#":
			parts[i] = "*"
		default:
			parts[i] = globEscaper.Replace(p)
		}
	}
	glob := strings.Join(parts, "/")
	if strings.HasSuffix(glob, "/*") && strings.HasSuffix(filter, "#") {
		glob = strings.TrimSuffix(glob, "/*") + "*"
	}
	return glob
}
