package iot

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/iotf/core/codec"
)

func TestEventRoundTrip(t *testing.T) {
	raw, err := EncodeEvent(nil, "sensor", "s1", "psutil", "json", map[string]interface{}{
		"cpu":     12.5,
		"mem":     40,
		"network": map[string]float64{"up": 1.25, "down": 0.5},
	})
	require.NoError(t, err)
	assert.Equal(t, "iot-2/type/sensor/id/s1/evt/psutil/fmt/json", raw.Topic)

	raw.ReceivedAt = time.Date(2021, 1, 2, 3, 4, 5, 0, time.UTC)
	event, err := DecodeEvent(nil, raw)
	require.NoError(t, err)
	assert.Equal(t, "sensor", event.DeviceType)
	assert.Equal(t, "s1", event.DeviceID)
	assert.Equal(t, "psutil", event.Event)
	assert.Equal(t, "json", event.Format)
	assert.Equal(t, raw.ReceivedAt, event.Timestamp)
	assert.Equal(t, raw.Payload, event.Payload)

	mem, ok := event.Data.Get("mem")
	require.True(t, ok)
	assert.Equal(t, codec.KindInt, mem.Kind())
	up, _ := event.Data.Get("network", "up")
	f, _ := up.AsFloat()
	assert.Equal(t, 1.25, f)
}

func TestDecodeEventErrors(t *testing.T) {
	_, err := DecodeEvent(nil, codec.RawMessage{Topic: "iot-2/type/t/id/d/cmd/c/fmt/json", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrInvalidTopic)

	_, err = DecodeEvent(nil, codec.RawMessage{Topic: EventTopic("t", "d", "e", "xml"), Payload: []byte(`<a/>`)})
	assert.ErrorIs(t, err, codec.ErrMissingCodec)

	event, err := DecodeEvent(nil, codec.RawMessage{Topic: EventTopic("t", "d", "e", "json"), Payload: []byte(`{sss,eee}`)})
	assert.Nil(t, event)
	assert.ErrorIs(t, err, codec.ErrInvalidEvent)
}

type csvCodec struct{}

func (csvCodec) Format() string { return "csv" }

func (csvCodec) Decode(msg codec.RawMessage) (*codec.Message, error) {
	fields := strings.Split(string(msg.Payload), ",")
	items := make([]codec.Value, len(fields))
	for i, f := range fields {
		items[i] = codec.String(f)
	}
	return &codec.Message{Topic: msg.Topic, Data: codec.Array(items...), Timestamp: msg.ReceivedAt}, nil
}

func (csvCodec) Encode(data any) ([]byte, error) {
	fields, ok := data.([]string)
	if !ok {
		return nil, &codec.EncodeError{Reason: "not a []string"}
	}
	return []byte(strings.Join(fields, ",")), nil
}

func TestCommandWithCustomCodec(t *testing.T) {
	reg := codec.NewRegistry(csvCodec{})
	raw, err := EncodeCommand(reg, "sensor", "s1", "print", "csv", []string{"hello", "world"})
	require.NoError(t, err)
	assert.Equal(t, "hello,world", string(raw.Payload))

	cmd, err := DecodeCommand(reg, raw)
	require.NoError(t, err)
	assert.Equal(t, "print", cmd.Command)
	assert.Equal(t, "csv", cmd.Format)
	assert.True(t, codec.Array(codec.String("hello"), codec.String("world")).Equal(cmd.Data))

	_, err = EncodeCommand(reg, "sensor", "s1", "print", "csv", 42)
	assert.ErrorIs(t, err, codec.ErrUnsupportedValue)
	_, err = EncodeCommand(nil, "sensor", "s1", "print", "csv", "x")
	assert.ErrorIs(t, err, codec.ErrMissingCodec)
}

func TestEncodeNeedsConcreteTopic(t *testing.T) {
	for _, segments := range [][4]string{
		{"", "d", "e", "json"},
		{"t", "+", "e", "json"},
		{"t", "d", "a/b", "json"},
		{"t", "d", "e", "#"},
	} {
		_, err := EncodeEvent(nil, segments[0], segments[1], segments[2], segments[3], 1)
		assert.ErrorIs(t, err, ErrInvalidTopic, "%v", segments)
	}
}

func TestStatus(t *testing.T) {
	at := time.Date(2014, 7, 7, 6, 37, 56, 0, time.UTC)
	raw, err := EncodeStatus(&Status{
		DeviceType: "sensor",
		DeviceID:   "s1",
		Action:     StatusDisconnect,
		Time:       at,
		ClientAddr: "10.0.0.1",
		ClientID:   "d:o:sensor:s1",
		Reason:     "The connection has completed normally.",
	})
	require.NoError(t, err)
	assert.Equal(t, "iot-2/type/sensor/id/s1/mon", raw.Topic)

	status, err := DecodeStatus(raw)
	require.NoError(t, err)
	assert.Equal(t, "sensor:s1", status.Device())
	assert.True(t, at.Equal(status.Time))
	assert.Equal(t, "Disconnect 10.0.0.1 (The connection has completed normally.)", status.Summary())

	status.Action = StatusConnect
	assert.Equal(t, "Connect 10.0.0.1", status.Summary())
}

func TestAppStatus(t *testing.T) {
	raw := codec.RawMessage{Topic: AppStatusTopic("dashboard"), Payload: []byte(`{"Action":"Connect","ClientAddr":"::1","ClientID":"a:o:dashboard"}`)}
	status, err := DecodeStatus(raw)
	require.NoError(t, err)
	assert.Equal(t, "dashboard", status.Device())
	assert.Equal(t, "a:o:dashboard", status.ClientID)
}

func TestDecodeStatusErrors(t *testing.T) {
	_, err := DecodeStatus(codec.RawMessage{Topic: EventTopic("t", "d", "e", "json"), Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, ErrInvalidTopic)

	_, err = DecodeStatus(codec.RawMessage{Topic: DeviceStatusTopic("t", "d"), Payload: []byte(`{sss,eee}`)})
	assert.ErrorIs(t, err, codec.ErrInvalidEvent)

	_, err = DecodeStatus(codec.RawMessage{Topic: DeviceStatusTopic("t", "d"), Payload: []byte(`{"Action": 3}`)})
	assert.ErrorIs(t, err, codec.ErrInvalidEvent)
}
