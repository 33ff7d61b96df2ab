package main

import (
	"context"
	"errors"

	"github.com/relabs-tech/iotf/core/archive"
	"github.com/relabs-tech/iotf/core/codec"
	"github.com/relabs-tech/iotf/core/logger"
	"github.com/relabs-tech/iotf/iot"
	"github.com/relabs-tech/iotf/iot/client"
	"github.com/relabs-tech/iotf/iot/transport"
)

// recorder writes device events to the last event store and archives their raw payloads
type recorder struct {
	writer  iot.EventWriter
	archive archive.Archiver
	codecs  *codec.Registry
}

// write is the client event handler
func (r *recorder) write(ctx context.Context, e *iot.Event) {
	if err := r.writer.Write(ctx, e); err != nil {
		logger.FromContext(ctx).WithError(err).Errorln("cannot record event")
	}
}

// record decodes and writes a raw event synchronously
func (r *recorder) record(ctx context.Context, raw codec.RawMessage) {
	ctx, rlog := logger.ContextWithMessage(ctx, nil, raw.Topic)
	e, err := iot.DecodeEvent(r.codecs, raw)
	if err != nil {
		rlog.WithError(err).Warnln("cannot decode event")
		return
	}
	r.write(ctx, e)
}

// subscribe records all device events through the client and archives them with a
// transport subscription
func (r *recorder) subscribe(ctx context.Context, c *client.Client, tr transport.Transport) error {
	if err := c.SubscribeToDeviceEvents(ctx, "", "", "", r.write); err != nil {
		return err
	}
	if r.archive == nil {
		return nil
	}
	return tr.Subscribe(ctx, iot.EventTopic("", "", "", ""), archive.Handler(r.archive, nil))
}

// subscribeSync records and archives every event before the transport handler returns.
// Lambda functions need this, their invocation ends with the handler.
func (r *recorder) subscribeSync(ctx context.Context, tr transport.Transport) error {
	if r.writer == nil {
		return errors.New("no event writer")
	}
	handler := transport.Handler(r.record)
	if r.archive != nil {
		handler = archive.Handler(r.archive, handler)
	}
	return tr.Subscribe(ctx, iot.EventTopic("", "", "", ""), handler)
}
