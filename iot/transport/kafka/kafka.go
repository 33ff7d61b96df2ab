// Package kafka carries IoT messages over a single Kafka topic
//
// The IoT topic travels as message key and in the "iot-topic" header, so all messages of
// one device topic land in the same partition. Every subscription runs its own reader.
package kafka

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/logger"
	"github.com/relabs-tech/iotf/iot/transport"
)

// HeaderTopic is the message header holding the IoT topic
const HeaderTopic = "iot-topic"

// Builder is a builder helper for the Transport
type Builder struct {
	// Brokers are the Kafka bootstrap servers. This is mandatory.
	Brokers []string
	// Topic is the Kafka topic, defaults to "iotf"
	Topic string
	// GroupID is the consumer group prefix. Without a group, subscriptions read
	// partition 0 starting at the newest message.
	GroupID string
	// Logger defaults to logger.Default()
	Logger *logrus.Entry
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Transport is the Kafka transport
type Transport struct {
	writer    messageWriter
	newReader func(filter string) messageReader
	log       *logrus.Entry

	mu      sync.Mutex
	closed  bool
	readers map[messageReader]struct{}
	wg      sync.WaitGroup
}

var _ transport.Transport = (*Transport)(nil)

// New returns a new Kafka transport
func New(bb *Builder) (*Transport, error) {
	if len(bb.Brokers) == 0 {
		return nil, errors.New("kafka brokers missing")
	}
	topic := bb.Topic
	if topic == "" {
		topic = "iotf"
	}
	log := bb.Logger
	if log == nil {
		log = logger.Default()
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(bb.Brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	newReader := func(filter string) messageReader {
		config := kafka.ReaderConfig{
			Brokers:  bb.Brokers,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6,
		}
		if bb.GroupID != "" {
			config.GroupID = bb.GroupID + "/" + filter
		} else {
			config.StartOffset = kafka.LastOffset
		}
		return kafka.NewReader(config)
	}
	return newTransport(writer, newReader, log.WithField("component", "kafka")), nil
}

func newTransport(writer messageWriter, newReader func(filter string) messageReader, log *logrus.Entry) *Transport {
	return &Transport{
		writer:    writer,
		newReader: newReader,
		log:       log,
		readers:   make(map[messageReader]struct{}),
	}
}

// Publish writes payload with topic as key
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return transport.ErrClosed
	}
	err := t.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(topic),
		Value:   payload,
		Headers: []kafka.Header{{Key: HeaderTopic, Value: []byte(topic)}},
	})
	if err != nil {
		return fmt.Errorf("cannot publish on %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts a reader delivering messages matching filter until ctx is done or
// the transport is closed
func (t *Transport) Subscribe(ctx context.Context, filter string, handler transport.Handler) error {
	if !transport.ValidFilter(filter) {
		return fmt.Errorf("invalid filter %q", filter)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}
	reader := t.newReader(filter)
	t.readers[reader] = struct{}{}
	t.wg.Add(1)
	go t.read(ctx, reader, filter, handler)
	return nil
}

func (t *Transport) read(ctx context.Context, reader messageReader, filter string, handler transport.Handler) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		_, open := t.readers[reader]
		delete(t.readers, reader)
		t.mu.Unlock()
		if open {
			reader.Close()
		}
	}()

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) {
				t.log.WithError(err).Errorln("reader for", filter, "stopped")
			}
			return
		}
		topic := messageTopic(m)
		if !transport.Match(filter, topic) {
			continue
		}
		receivedAt := m.Time
		if receivedAt.IsZero() {
			receivedAt = time.Now()
		}
		handler(ctx, codec.RawMessage{Topic: topic, Payload: m.Value, ReceivedAt: receivedAt.UTC()})
	}
}

// messageTopic returns the IoT topic of m
func messageTopic(m kafka.Message) string {
	for _, h := range m.Headers {
		if h.Key == HeaderTopic {
			return string(h.Value)
		}
	}
	return string(m.Key)
}

// Close closes the writer and all readers and waits for the readers to finish
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.closed = true
	readers := t.readers
	t.readers = make(map[messageReader]struct{})
	t.mu.Unlock()

	for r := range readers {
		r.Close()
	}
	t.wg.Wait()
	return t.writer.Close()
}
