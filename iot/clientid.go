package iot

import (
	"fmt"
	"strings"
)

// ClientID identifies an MQTT client. Devices are "d:{org}:{device_type}:{device_id}",
// applications "a:{org}:{app_id}".
type ClientID struct {
	Org        string
	DeviceType string
	DeviceID   string
	AppID      string
}

// DeviceClientID returns the client id of a device
func DeviceClientID(org, deviceType, deviceID string) ClientID {
	return ClientID{Org: org, DeviceType: deviceType, DeviceID: deviceID}
}

// AppClientID returns the client id of an application
func AppClientID(org, appID string) ClientID {
	return ClientID{Org: org, AppID: appID}
}

// IsDevice returns true for device client ids
func (c ClientID) IsDevice() bool { return c.AppID == "" }

func (c ClientID) String() string {
	if c.IsDevice() {
		return "d:" + c.Org + ":" + c.DeviceType + ":" + c.DeviceID
	}
	return "a:" + c.Org + ":" + c.AppID
}

// ParseClientID parses a device or application client id
func ParseClientID(s string) (ClientID, error) {
	parts := strings.Split(s, ":")
	for _, p := range parts {
		if p == "" {
			return ClientID{}, fmt.Errorf("invalid client id %q", s)
		}
	}
	switch {
	case len(parts) == 4 && parts[0] == "d":
		return DeviceClientID(parts[1], parts[2], parts[3]), nil
	case len(parts) == 3 && parts[0] == "a":
		return AppClientID(parts[1], parts[2]), nil
	}
	return ClientID{}, fmt.Errorf("invalid client id %q", s)
}

// MayPublish tells whether the client may publish on topic. Devices publish their own
// events and status, applications anything but device events.
func (c ClientID) MayPublish(topic string) bool {
	t, err := ParseTopic(topic)
	if err != nil {
		return false
	}
	if !c.IsDevice() {
		return t.Kind != TopicEvent && (t.Kind != TopicAppStatus || t.AppID == c.AppID)
	}
	return (t.Kind == TopicEvent || t.Kind == TopicDeviceStatus) &&
		t.DeviceType == c.DeviceType && t.DeviceID == c.DeviceID
}

// MaySubscribe tells whether the client may subscribe to filter. Devices subscribe to
// their own commands, applications to anything in the namespace.
func (c ClientID) MaySubscribe(filter string) bool {
	if !c.IsDevice() {
		return filter == TopicPrefix+"/#" || strings.HasPrefix(filter, TopicPrefix+"/")
	}
	prefix := TopicPrefix + "/type/" + c.DeviceType + "/id/" + c.DeviceID + "/cmd/"
	if !strings.HasPrefix(filter, prefix) {
		return false
	}
	rest := strings.Split(strings.TrimPrefix(filter, prefix), "/")
	return len(rest) == 1 && rest[0] == "#" ||
		len(rest) == 3 && rest[1] == "fmt" && rest[0] != "" && rest[2] != ""
}
