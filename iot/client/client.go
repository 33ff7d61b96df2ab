package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"
	"github.com/sirupsen/logrus"

	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/config"
	"github.com/relabs-tech/iotf/core/logger"
	"github.com/relabs-tech/iotf/iot"
	"github.com/relabs-tech/iotf/iot/transport"
)

var (
	// ErrClosed is returned by all operations after Close
	ErrClosed = errors.New("client closed")
	// ErrNotDevice is returned when an application calls a device operation
	ErrNotDevice = errors.New("client is not a device")
	// ErrNotApplication is returned when a device calls an application operation
	ErrNotApplication = errors.New("client is not an application")
)

// DefaultWorkers is the default number of concurrently running handlers
const DefaultWorkers = 16

// EventHandler receives decoded device events
type EventHandler func(ctx context.Context, event *iot.Event)

// CommandHandler receives decoded commands
type CommandHandler func(ctx context.Context, command *iot.Command)

// StatusHandler receives device status messages
type StatusHandler func(ctx context.Context, status *iot.Status)

// ErrorHandler receives messages which could not be decoded. err matches
// codec.ErrInvalidEvent, codec.ErrMissingCodec or iot.ErrInvalidTopic.
type ErrorHandler func(ctx context.Context, raw codec.RawMessage, err error)

// Builder is a builder helper for the Client
type Builder struct {
	// Options identify the device or application. This is mandatory.
	Options config.Options
	// Transport moves the messages. This is mandatory.
	Transport transport.Transport
	// Codecs defaults to codec.Default()
	Codecs *codec.Registry
	// Workers is the number of concurrently running handlers, defaults to DefaultWorkers
	Workers int
	// ErrorHandler defaults to logging the error
	ErrorHandler ErrorHandler
	// Logger defaults to logger.Default()
	Logger *logrus.Entry
	// SharedTransport keeps Transport open on Close. Set it when several clients use the
	// same transport and close the transport yourself.
	SharedTransport bool
}

// Client is a device or application client. Handlers are registered with the Subscribe
// functions and run on a bounded worker pool.
type Client struct {
	options      config.Options
	transport    transport.Transport
	codecs       *codec.Registry
	pool         *ants.Pool
	errorHandler ErrorHandler
	log          *logrus.Entry
	shared       bool

	// active counts subscriptions whose context is not done yet
	active atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

// New returns a new client. Options are validated.
func New(bb *Builder) (*Client, error) {
	if bb.Transport == nil {
		return nil, errors.New("transport is missing")
	}
	if err := bb.Options.Validate(); err != nil {
		return nil, err
	}

	log := bb.Logger
	if log == nil {
		log = logger.Default()
	}
	if bb.Options.IsDevice() {
		log = log.WithFields(logrus.Fields{"deviceType": bb.Options.Type, "deviceID": bb.Options.ID})
	} else {
		log = log.WithField("appID", bb.Options.ID)
	}

	workers := bb.Workers
	if workers <= 0 {
		workers = DefaultWorkers
	}
	pool, err := ants.NewPool(workers,
		ants.WithPanicHandler(func(p interface{}) {
			log.Errorln("handler panic:", p)
		}),
		ants.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}

	c := &Client{
		options:      bb.Options,
		transport:    bb.Transport,
		codecs:       bb.Codecs,
		pool:         pool,
		errorHandler: bb.ErrorHandler,
		log:          log,
		shared:       bb.SharedTransport,
	}
	if c.codecs == nil {
		c.codecs = codec.Default()
	}
	if c.errorHandler == nil {
		c.errorHandler = func(ctx context.Context, raw codec.RawMessage, err error) {
			logger.FromContext(ctx).WithError(err).Errorln("cannot decode message")
		}
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c, nil
}

// Options returns the options of the client
func (c *Client) Options() config.Options {
	return c.options
}

// Codecs returns the codec registry of the client
func (c *Client) Codecs() *codec.Registry {
	return c.codecs
}

func (c *Client) check(device bool) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrClosed
	}
	if device && !c.options.IsDevice() {
		return ErrNotDevice
	}
	if !device && c.options.IsDevice() {
		return ErrNotApplication
	}
	return nil
}

// PublishEvent publishes data as event of this device, encoded with the codec for format
func (c *Client) PublishEvent(ctx context.Context, event, format string, data any) error {
	if err := c.check(true); err != nil {
		return err
	}
	raw, err := iot.EncodeEvent(c.codecs, c.options.Type, c.options.ID, event, format, data)
	if err != nil {
		return err
	}
	return c.publish(ctx, raw)
}

// PublishCommand sends a command to a device, encoded with the codec for format
func (c *Client) PublishCommand(ctx context.Context, deviceType, deviceID, command, format string, data any) error {
	if err := c.check(false); err != nil {
		return err
	}
	raw, err := iot.EncodeCommand(c.codecs, deviceType, deviceID, command, format, data)
	if err != nil {
		return err
	}
	return c.publish(ctx, raw)
}

func (c *Client) publish(ctx context.Context, raw codec.RawMessage) error {
	if err := c.transport.Publish(ctx, raw.Topic, raw.Payload); err != nil {
		if errors.Is(err, transport.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("cannot publish on %s: %w", raw.Topic, err)
	}
	return nil
}

// SubscribeToCommands subscribes this device to command, or all commands if command is
// empty. The subscription ends when ctx is done or the client is closed.
func (c *Client) SubscribeToCommands(ctx context.Context, command string, handler CommandHandler) error {
	if err := c.check(true); err != nil {
		return err
	}
	filter := iot.CommandTopic(c.options.Type, c.options.ID, command, "")
	return c.subscribe(ctx, filter, func(ctx context.Context, raw codec.RawMessage) error {
		cmd, err := iot.DecodeCommand(c.codecs, raw)
		if err != nil {
			return err
		}
		handler(ctx, cmd)
		return nil
	})
}

// SubscribeToDeviceEvents subscribes to events. Empty arguments match all device types,
// devices or events.
func (c *Client) SubscribeToDeviceEvents(ctx context.Context, deviceType, deviceID, event string, handler EventHandler) error {
	if err := c.check(false); err != nil {
		return err
	}
	filter := iot.EventTopic(deviceType, deviceID, event, "")
	return c.subscribe(ctx, filter, func(ctx context.Context, raw codec.RawMessage) error {
		e, err := iot.DecodeEvent(c.codecs, raw)
		if err != nil {
			return err
		}
		handler(ctx, e)
		return nil
	})
}

// SubscribeToDeviceStatus subscribes to device status messages. Empty arguments match
// all device types or devices.
func (c *Client) SubscribeToDeviceStatus(ctx context.Context, deviceType, deviceID string, handler StatusHandler) error {
	if err := c.check(false); err != nil {
		return err
	}
	filter := iot.DeviceStatusTopic(deviceType, deviceID)
	return c.subscribe(ctx, filter, func(ctx context.Context, raw codec.RawMessage) error {
		s, err := iot.DecodeStatus(raw)
		if err != nil {
			return err
		}
		handler(ctx, s)
		return nil
	})
}

// subscribe decodes and handles matching messages on the worker pool
func (c *Client) subscribe(ctx context.Context, filter string, handle func(ctx context.Context, raw codec.RawMessage) error) error {
	subCtx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(c.ctx, cancel)
	c.active.Add(1)
	context.AfterFunc(subCtx, func() {
		stop()
		c.active.Add(-1)
	})

	err := c.transport.Subscribe(subCtx, filter, func(ctx context.Context, raw codec.RawMessage) {
		task := func() {
			msgCtx, rlog := logger.ContextWithMessage(subCtx, c.log, raw.Topic)
			rlog.Debugln("received", len(raw.Payload), "bytes")
			if err := handle(msgCtx, raw); err != nil {
				c.errorHandler(msgCtx, raw, err)
			}
		}
		if err := c.pool.Submit(task); err != nil {
			c.log.WithError(err).Warnln("dropping message on", raw.Topic)
		}
	})
	if err != nil {
		cancel()
		if errors.Is(err, transport.ErrClosed) {
			return ErrClosed
		}
		return fmt.Errorf("cannot subscribe to %s: %w", filter, err)
	}
	c.log.Debugln("subscribed to", filter)
	return nil
}

// Close ends all subscriptions, waits up to timeout for running handlers and closes the
// transport unless it is shared. A transport belongs to one client otherwise.
func (c *Client) Close(timeout time.Duration) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	poolErr := c.pool.ReleaseTimeout(timeout)
	if c.shared {
		return poolErr
	}
	if err := c.transport.Close(); err != nil && !errors.Is(err, transport.ErrClosed) {
		return err
	}
	return poolErr
}
