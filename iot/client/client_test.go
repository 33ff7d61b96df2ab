package client

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/config"
	"github.com/relabs-tech/iotf/core/logger"
	"github.com/relabs-tech/iotf/iot"
	"github.com/relabs-tech/iotf/iot/transport"
)

var (
	deviceOptions = config.Options{Org: config.Quickstart, Type: "sensor", ID: "d1"}
	appOptions    = config.Options{Org: config.Quickstart, ID: "app1"}
)

func newPair(t *testing.T) (device *Client, app *Client, tr *transport.Memory) {
	tr = transport.NewMemory()
	var err error
	device, err = New(&Builder{Options: deviceOptions, Transport: tr})
	require.NoError(t, err)
	app, err = New(&Builder{Options: appOptions, Transport: tr})
	require.NoError(t, err)
	return device, app, tr
}

func TestNewValidatesOptions(t *testing.T) {
	_, err := New(&Builder{Options: config.Options{Org: "acme", Type: "t", ID: "d"}, Transport: transport.NewMemory()})
	assert.True(t, config.Error.Has(err))

	_, err = New(&Builder{Options: deviceOptions})
	assert.Error(t, err)
}

func TestEventFromDeviceToApplication(t *testing.T) {
	device, app, _ := newPair(t)
	defer device.Close(time.Second)

	events := make(chan *iot.Event, 1)
	require.NoError(t, app.SubscribeToDeviceEvents(context.Background(), "sensor", "", "", func(ctx context.Context, e *iot.Event) {
		assert.NotEmpty(t, logger.MessageIDFromContext(ctx))
		events <- e
	}))

	require.NoError(t, device.PublishEvent(context.Background(), "psutil", codec.FormatJSON, map[string]any{"cpu": 12.5}))

	select {
	case e := <-events:
		assert.Equal(t, "sensor", e.DeviceType)
		assert.Equal(t, "d1", e.DeviceID)
		assert.Equal(t, "psutil", e.Event)
		cpu, ok := e.Data.Get("cpu")
		require.True(t, ok)
		f, _ := cpu.AsFloat()
		assert.Equal(t, 12.5, f)
	case <-time.After(time.Second):
		t.Fatal("no event")
	}
	require.NoError(t, app.Close(time.Second))
}

func TestCommandFromApplicationToDevice(t *testing.T) {
	device, app, _ := newPair(t)
	defer app.Close(time.Second)
	defer device.Close(time.Second)

	var _ iot.CommandPublisher = app

	commands := make(chan *iot.Command, 2)
	require.NoError(t, device.SubscribeToCommands(context.Background(), "setInterval", func(ctx context.Context, c *iot.Command) {
		commands <- c
	}))

	require.NoError(t, app.PublishCommand(context.Background(), "sensor", "d1", "print", codec.FormatJSON, map[string]any{}))
	require.NoError(t, app.PublishCommand(context.Background(), "sensor", "d2", "setInterval", codec.FormatJSON, map[string]any{"interval": 1}))
	require.NoError(t, app.PublishCommand(context.Background(), "sensor", "d1", "setInterval", codec.FormatJSON, map[string]any{"interval": 5}))

	select {
	case c := <-commands:
		assert.Equal(t, "setInterval", c.Command)
		assert.Equal(t, "d1", c.DeviceID)
		interval, _ := c.Data.Get("interval")
		i, _ := interval.AsInt()
		assert.Equal(t, int64(5), i)
	case <-time.After(time.Second):
		t.Fatal("no command")
	}
	select {
	case c := <-commands:
		t.Fatalf("unexpected command %s", c.Topic)
	case <-time.After(20 * time.Millisecond):
	}
}

func TestRoles(t *testing.T) {
	device, app, _ := newPair(t)
	defer device.Close(time.Second)
	defer app.Close(time.Second)
	ctx := context.Background()

	assert.ErrorIs(t, app.PublishEvent(ctx, "e", "json", nil), ErrNotDevice)
	assert.ErrorIs(t, app.SubscribeToCommands(ctx, "", func(context.Context, *iot.Command) {}), ErrNotDevice)
	assert.ErrorIs(t, device.PublishCommand(ctx, "t", "d", "c", "json", nil), ErrNotApplication)
	assert.ErrorIs(t, device.SubscribeToDeviceEvents(ctx, "", "", "", func(context.Context, *iot.Event) {}), ErrNotApplication)
	assert.ErrorIs(t, device.SubscribeToDeviceStatus(ctx, "", "", func(context.Context, *iot.Status) {}), ErrNotApplication)
}

func TestPublishErrors(t *testing.T) {
	device, _, _ := newPair(t)
	defer device.Close(time.Second)
	ctx := context.Background()

	err := device.PublishEvent(ctx, "e", "xml", map[string]any{})
	assert.ErrorIs(t, err, codec.ErrMissingCodec)

	err = device.PublishEvent(ctx, "e", codec.FormatJSON, map[string]any{"f": func() {}})
	assert.ErrorIs(t, err, codec.ErrUnsupportedValue)

	err = device.PublishEvent(ctx, "a/b", codec.FormatJSON, nil)
	assert.ErrorIs(t, err, iot.ErrInvalidTopic)
}

func TestInvalidPayloadGoesToErrorHandler(t *testing.T) {
	tr := transport.NewMemory()
	errs := make(chan error, 1)
	app, err := New(&Builder{
		Options:   appOptions,
		Transport: tr,
		ErrorHandler: func(ctx context.Context, raw codec.RawMessage, err error) {
			errs <- err
		},
	})
	require.NoError(t, err)
	defer app.Close(time.Second)

	require.NoError(t, app.SubscribeToDeviceEvents(context.Background(), "", "", "", func(ctx context.Context, e *iot.Event) {
		t.Error("handler called for invalid payload")
	}))
	require.NoError(t, tr.Publish(context.Background(), iot.EventTopic("t", "d", "e", "json"), []byte(`{"broken"`)))

	select {
	case err := <-errs:
		assert.ErrorIs(t, err, codec.ErrInvalidEvent)
		var invalid *codec.InvalidEventError
		require.True(t, errors.As(err, &invalid))
	case <-time.After(time.Second):
		t.Fatal("no error")
	}
}

func TestDeviceStatus(t *testing.T) {
	_, app, tr := newPair(t)
	defer app.Close(time.Second)

	statuses := make(chan *iot.Status, 1)
	require.NoError(t, app.SubscribeToDeviceStatus(context.Background(), "sensor", "", func(ctx context.Context, s *iot.Status) {
		statuses <- s
	}))

	raw, err := iot.EncodeStatus(&iot.Status{DeviceType: "sensor", DeviceID: "d1", Action: iot.StatusConnect, ClientID: "d:quickstart:sensor:d1"})
	require.NoError(t, err)
	require.NoError(t, tr.Publish(context.Background(), raw.Topic, raw.Payload))

	select {
	case s := <-statuses:
		assert.Equal(t, iot.StatusConnect, s.Action)
		assert.Equal(t, "d1", s.DeviceID)
	case <-time.After(time.Second):
		t.Fatal("no status")
	}
}

func TestSubscriptionEndsWithContext(t *testing.T) {
	_, app, tr := newPair(t)
	defer app.Close(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, app.SubscribeToDeviceEvents(ctx, "", "", "", func(context.Context, *iot.Event) {}))
	assert.Equal(t, 1, tr.Subscriptions())
	cancel()
	assert.Eventually(t, func() bool { return tr.Subscriptions() == 0 }, time.Second, time.Millisecond)
}

func TestCloseWaitsForHandlers(t *testing.T) {
	device, app, _ := newPair(t)

	var handled atomic.Int32
	require.NoError(t, app.SubscribeToDeviceEvents(context.Background(), "", "", "", func(context.Context, *iot.Event) {
		time.Sleep(20 * time.Millisecond)
		handled.Add(1)
	}))
	for i := 0; i < 3; i++ {
		require.NoError(t, device.PublishEvent(context.Background(), "e", codec.FormatJSON, i))
	}

	require.NoError(t, app.Close(time.Second))
	assert.Equal(t, int32(3), handled.Load())
	assert.ErrorIs(t, app.Close(time.Second), ErrClosed)
	assert.ErrorIs(t, device.PublishEvent(context.Background(), "e", codec.FormatJSON, 1), ErrClosed,
		"the shared transport is closed")
	assert.ErrorIs(t, app.PublishCommand(context.Background(), "t", "d", "c", codec.FormatJSON, nil), ErrClosed)
}

func TestHandlerPanicIsRecovered(t *testing.T) {
	device, app, _ := newPair(t)
	defer app.Close(time.Second)

	done := make(chan struct{})
	var calls atomic.Int32
	require.NoError(t, app.SubscribeToDeviceEvents(context.Background(), "", "", "", func(context.Context, *iot.Event) {
		if calls.Add(1) == 1 {
			panic("boom")
		}
		close(done)
	}))
	require.NoError(t, device.PublishEvent(context.Background(), "e", codec.FormatJSON, 1))
	require.NoError(t, device.PublishEvent(context.Background(), "e", codec.FormatJSON, 2))

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("pool did not survive the panic")
	}
}

func TestEndedSubscriptionIsReleased(t *testing.T) {
	_, app, _ := newPair(t)
	defer app.Close(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, app.SubscribeToDeviceEvents(ctx, "", "", "", func(ctx context.Context, e *iot.Event) {}))
	require.NoError(t, app.SubscribeToDeviceStatus(context.Background(), "", "", func(ctx context.Context, s *iot.Status) {}))
	assert.Equal(t, int64(2), app.active.Load())

	cancel()
	assert.Eventually(t, func() bool { return app.active.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, app.Close(time.Second))
	assert.Eventually(t, func() bool { return app.active.Load() == 0 }, time.Second, time.Millisecond)
}

func TestSharedTransport(t *testing.T) {
	tr := transport.NewMemory()
	device, err := New(&Builder{Options: deviceOptions, Transport: tr, SharedTransport: true})
	require.NoError(t, err)
	app, err := New(&Builder{Options: appOptions, Transport: tr, SharedTransport: true})
	require.NoError(t, err)
	defer app.Close(time.Second)

	events := make(chan *iot.Event, 1)
	require.NoError(t, app.SubscribeToDeviceEvents(context.Background(), "", "", "", func(ctx context.Context, e *iot.Event) {
		events <- e
	}))
	require.NoError(t, device.Close(time.Second))

	require.NoError(t, tr.Publish(context.Background(), iot.EventTopic("sensor", "d1", "psutil", "json"), []byte(`1`)))
	select {
	case <-events:
	case <-time.After(time.Second):
		t.Fatal("closing the device closed the shared transport")
	}
	require.NoError(t, app.Close(time.Second))
	assert.NoError(t, tr.Close(), "transport is still open")
}
