package iot

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTopics(t *testing.T) {
	assert.Equal(t, "iot-2/type/sensor/id/s1/evt/psutil/fmt/json", EventTopic("sensor", "s1", "psutil", "json"))
	assert.Equal(t, "iot-2/type/+/id/+/evt/+/fmt/+", EventTopic("", "", "", ""))
	assert.Equal(t, "iot-2/type/sensor/id/s1/cmd/setInterval/fmt/json", CommandTopic("sensor", "s1", "setInterval", "json"))
	assert.Equal(t, "iot-2/type/sensor/id/+/mon", DeviceStatusTopic("sensor", ""))
	assert.Equal(t, "iot-2/app/dashboard/mon", AppStatusTopic("dashboard"))
}

func TestParseTopicRoundTrip(t *testing.T) {
	topics := []Topic{
		{Kind: TopicEvent, DeviceType: "sensor", DeviceID: "s1", Name: "psutil", Format: "json"},
		{Kind: TopicCommand, DeviceType: "sensor", DeviceID: "s1", Name: "print", Format: "custom"},
		{Kind: TopicDeviceStatus, DeviceType: "sensor", DeviceID: "s1"},
		{Kind: TopicAppStatus, AppID: "dashboard"},
	}
	for _, topic := range topics {
		parsed, err := ParseTopic(topic.String())
		require.NoError(t, err, topic.String())
		assert.Equal(t, topic, parsed)
	}
}

func TestParseInvalidTopics(t *testing.T) {
	topics := []string{
		"",
		"iot-2",
		"iot-3/type/t/id/d/evt/e/fmt/json",
		"iot-2/type/t/id/d/evt/e/fmt",
		"iot-2/type/t/id/d/xyz/e/fmt/json",
		"iot-2/type/t/id/d/evt/e/fmt/json/extra",
		"iot-2/type/+/id/d/evt/e/fmt/json",
		"iot-2/type/t/id/d/evt/#",
		"iot-2/type//id/d/mon",
		"iot-2/app/a/b/mon",
	}
	for _, topic := range topics {
		_, err := ParseTopic(topic)
		assert.True(t, errors.Is(err, ErrInvalidTopic), "%q: %v", topic, err)
	}
}

func TestParseTopicOfKind(t *testing.T) {
	_, err := ParseEventTopic(CommandTopic("t", "d", "c", "json"))
	assert.ErrorIs(t, err, ErrInvalidTopic)
	_, err = ParseCommandTopic(EventTopic("t", "d", "e", "json"))
	assert.ErrorIs(t, err, ErrInvalidTopic)
	topic, err := ParseDeviceStatusTopic(DeviceStatusTopic("t", "d"))
	require.NoError(t, err)
	assert.Equal(t, "d", topic.DeviceID)
	assert.Equal(t, "device status", topic.Kind.String())
}

func TestClientID(t *testing.T) {
	device, err := ParseClientID("d:myorg:sensor:s1")
	require.NoError(t, err)
	assert.True(t, device.IsDevice())
	assert.Equal(t, DeviceClientID("myorg", "sensor", "s1"), device)
	assert.Equal(t, "d:myorg:sensor:s1", device.String())

	app, err := ParseClientID("a:myorg:dashboard")
	require.NoError(t, err)
	assert.False(t, app.IsDevice())
	assert.Equal(t, "a:myorg:dashboard", app.String())

	for _, s := range []string{"", "x:myorg:dashboard", "d:myorg:sensor", "a::dashboard", "d:o:t:d:extra"} {
		_, err := ParseClientID(s)
		assert.Error(t, err, s)
	}
}

func TestClientIDPolicy(t *testing.T) {
	device := DeviceClientID("o", "sensor", "s1")
	assert.True(t, device.MayPublish(EventTopic("sensor", "s1", "psutil", "json")))
	assert.False(t, device.MayPublish(EventTopic("sensor", "s2", "psutil", "json")))
	assert.False(t, device.MayPublish(CommandTopic("sensor", "s1", "print", "json")))
	assert.False(t, device.MayPublish("somewhere/else"))

	assert.True(t, device.MaySubscribe(CommandTopic("sensor", "s1", "", "")))
	assert.True(t, device.MaySubscribe("iot-2/type/sensor/id/s1/cmd/#"))
	assert.False(t, device.MaySubscribe(CommandTopic("sensor", "", "", "")))
	assert.False(t, device.MaySubscribe(EventTopic("sensor", "s1", "", "")))

	app := AppClientID("o", "dashboard")
	assert.True(t, app.MayPublish(CommandTopic("sensor", "s1", "print", "json")))
	assert.True(t, app.MayPublish(AppStatusTopic("dashboard")))
	assert.False(t, app.MayPublish(AppStatusTopic("other")))
	assert.False(t, app.MayPublish(EventTopic("sensor", "s1", "psutil", "json")))
	assert.True(t, app.MaySubscribe(EventTopic("", "", "", "")))
	assert.True(t, app.MaySubscribe("iot-2/#"))
	assert.False(t, app.MaySubscribe("$SYS/#"))
}
