// Package sqs carries IoT messages over one AWS SQS queue
//
// The IoT topic travels in the "topic" message attribute. A single receive loop long-polls
// the queue, hands each message to the matching subscriptions and deletes it afterwards.
// When the queue triggers a Lambda function instead, pass HandleSQSEvent to lambda.Start.
package sqs

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"

	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/logger"
	"github.com/relabs-tech/iotf/iot/transport"
)

const (
	// AttributeTopic is the message attribute holding the IoT topic
	AttributeTopic = "topic"
	// AttributeEncoding is set to "base64" for payloads which are not valid UTF-8
	AttributeEncoding = "encoding"
)

// API is the part of the SQS client the transport needs
type API interface {
	SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, params *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, params *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// Configuration contains the configuration for the SQS transport
type Configuration struct {
	QueueURL  string
	AWSRegion string
	// AccessID and AccessKey are optional, the default credential chain is used without them
	AccessID  string
	AccessKey string
}

// Transport is the SQS transport
type Transport struct {
	api      API
	queueURL string
	log      *logrus.Entry
	// WaitTime is the long polling duration of the receive loop
	WaitTime time.Duration
	// DisablePolling keeps Subscribe from starting the receive loop. Set it when the
	// queue triggers a Lambda function which calls HandleSQSEvent.
	DisablePolling bool

	mu            sync.RWMutex
	subscriptions map[int]subscription
	next          int
	polling       bool
	closed        bool
	done          chan struct{}
	wg            sync.WaitGroup
}

type subscription struct {
	ctx     context.Context
	filter  string
	handler transport.Handler
}

var _ transport.Transport = (*Transport)(nil)

// NewClient returns an SQS client for the given configuration
func NewClient(ctx context.Context, conf Configuration) (*sqs.Client, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(conf.AWSRegion)}
	if conf.AccessID != "" {
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(conf.AccessID, conf.AccessKey, "")))
	}
	cfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, err
	}
	return sqs.NewFromConfig(cfg), nil
}

// New returns a transport on the queue queueURL
func New(api API, queueURL string, log *logrus.Entry) (*Transport, error) {
	if queueURL == "" {
		return nil, errors.New("queue URL missing")
	}
	if log == nil {
		log = logger.Default()
	}
	return &Transport{
		api:           api,
		queueURL:      queueURL,
		log:           log.WithField("component", "sqs"),
		WaitTime:      20 * time.Second,
		subscriptions: make(map[int]subscription),
		done:          make(chan struct{}),
	}, nil
}

// Publish sends payload with topic as message attribute
func (t *Transport) Publish(ctx context.Context, topic string, payload []byte) error {
	if t.isClosed() {
		return transport.ErrClosed
	}
	attributes := map[string]types.MessageAttributeValue{
		AttributeTopic: {DataType: aws.String("String"), StringValue: aws.String(topic)},
	}
	body := string(payload)
	if !utf8.ValidString(body) {
		body = base64.StdEncoding.EncodeToString(payload)
		attributes[AttributeEncoding] = types.MessageAttributeValue{DataType: aws.String("String"), StringValue: aws.String("base64")}
	}
	_, err := t.api.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:          aws.String(t.queueURL),
		MessageBody:       aws.String(body),
		MessageAttributes: attributes,
	})
	if err != nil {
		return fmt.Errorf("cannot publish on %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers handler for filter until ctx is done or the transport is closed.
// The first subscription starts the receive loop.
func (t *Transport) Subscribe(ctx context.Context, filter string, handler transport.Handler) error {
	if !transport.ValidFilter(filter) {
		return fmt.Errorf("invalid filter %q", filter)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return transport.ErrClosed
	}
	id := t.next
	t.next++
	t.subscriptions[id] = subscription{ctx: ctx, filter: filter, handler: handler}
	go func() {
		select {
		case <-ctx.Done():
			t.mu.Lock()
			delete(t.subscriptions, id)
			t.mu.Unlock()
		case <-t.done:
		}
	}()
	if !t.polling && !t.DisablePolling {
		t.polling = true
		t.wg.Add(1)
		go t.poll()
	}
	return nil
}

func (t *Transport) poll() {
	defer t.wg.Done()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		<-t.done
		cancel()
	}()

	for ctx.Err() == nil {
		out, err := t.api.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
			QueueUrl:              aws.String(t.queueURL),
			MaxNumberOfMessages:   10,
			WaitTimeSeconds:       int32(t.WaitTime / time.Second),
			MessageAttributeNames: []string{"All"},
			AttributeNames:        []types.QueueAttributeName{"SentTimestamp"},
		})
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			t.log.WithError(err).Errorln("receive failed")
			select {
			case <-time.After(time.Second):
			case <-ctx.Done():
				return
			}
			continue
		}
		for _, m := range out.Messages {
			msg, err := fromMessage(m.MessageAttributes, aws.ToString(m.Body), m.Attributes)
			if err != nil {
				t.log.WithError(err).Warnln("dropping message", aws.ToString(m.MessageId))
			} else {
				t.dispatch(msg)
			}
			_, err = t.api.DeleteMessage(ctx, &sqs.DeleteMessageInput{
				QueueUrl:      aws.String(t.queueURL),
				ReceiptHandle: m.ReceiptHandle,
			})
			if err != nil && ctx.Err() == nil {
				t.log.WithError(err).Errorln("cannot delete message", aws.ToString(m.MessageId))
			}
		}
	}
}

func fromMessage(attributes map[string]types.MessageAttributeValue, body string, system map[string]string) (codec.RawMessage, error) {
	topic := aws.ToString(attributes[AttributeTopic].StringValue)
	encoding := aws.ToString(attributes[AttributeEncoding].StringValue)
	return rawMessage(topic, encoding, body, system)
}

func rawMessage(topic, encoding, body string, system map[string]string) (codec.RawMessage, error) {
	if topic == "" {
		return codec.RawMessage{}, errors.New("message without topic")
	}
	payload := []byte(body)
	if encoding == "base64" {
		var err error
		payload, err = base64.StdEncoding.DecodeString(body)
		if err != nil {
			return codec.RawMessage{}, err
		}
	}
	receivedAt := time.Now()
	if millis, err := cast.ToInt64E(system["SentTimestamp"]); err == nil && millis > 0 {
		receivedAt = time.UnixMilli(millis)
	}
	return codec.RawMessage{Topic: topic, Payload: payload, ReceivedAt: receivedAt.UTC()}, nil
}

// dispatch hands msg to all matching subscriptions, each with its own payload copy
func (t *Transport) dispatch(msg codec.RawMessage) {
	t.mu.RLock()
	var matching []subscription
	for _, s := range t.subscriptions {
		if transport.Match(s.filter, msg.Topic) {
			matching = append(matching, s)
		}
	}
	t.mu.RUnlock()
	for _, s := range matching {
		m := msg
		m.Payload = append([]byte(nil), msg.Payload...)
		s.handler(s.ctx, m)
	}
}

// HandleSQSEvent dispatches the records of a Lambda SQS event to the subscriptions.
// Records without topic are skipped.
func (t *Transport) HandleSQSEvent(ctx context.Context, event events.SQSEvent) error {
	if t.isClosed() {
		return transport.ErrClosed
	}
	for _, record := range event.Records {
		var topic, encoding string
		if a, ok := record.MessageAttributes[AttributeTopic]; ok {
			topic = aws.ToString(a.StringValue)
		}
		if a, ok := record.MessageAttributes[AttributeEncoding]; ok {
			encoding = aws.ToString(a.StringValue)
		}
		msg, err := rawMessage(topic, encoding, record.Body, record.Attributes)
		if err != nil {
			logger.FromContext(ctx).WithError(err).Warnln("skipping record", record.MessageId)
			continue
		}
		t.dispatch(msg)
	}
	return nil
}

func (t *Transport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// Close stops the receive loop and drops all subscriptions
func (t *Transport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return transport.ErrClosed
	}
	t.closed = true
	t.subscriptions = make(map[int]subscription)
	close(t.done)
	t.mu.Unlock()
	t.wg.Wait()
	return nil
}
