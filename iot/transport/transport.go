// Package transport binds the publish/subscribe collaborator which moves raw messages
// between devices and applications.
//
// A Transport publishes payloads on concrete topics and delivers messages matching
// subscription filters to handlers. Filters use the MQTT wildcards, "+" for one topic
// segment and a trailing "#" for any number of segments. Implementations live in the
// sub packages; Memory is the in-process implementation for tests and single-process
// setups.
package transport

import (
	"context"
	"errors"
	"strings"

	"github.com/relabs-tech/iotf/core/codec"
)

// ErrClosed is returned when operating on a closed transport
var ErrClosed = errors.New("transport closed")

// Handler receives messages. The payload belongs to the handler. ReceivedAt is set.
type Handler func(ctx context.Context, msg codec.RawMessage)

// Transport abstracts the underlying message delivery
type Transport interface {
	// Publish sends payload to topic
	Publish(ctx context.Context, topic string, payload []byte) error
	// Subscribe registers handler for all topics matching filter. The subscription
	// ends when ctx is done or the transport is closed.
	Subscribe(ctx context.Context, filter string, handler Handler) error
	// Close shuts down the transport
	Close() error
}

// Match tells whether topic matches the subscription filter
func Match(filter, topic string) bool {
	f := strings.Split(filter, "/")
	t := strings.Split(topic, "/")
	for i, part := range f {
		if part == "#" {
			return i == len(f)-1
		}
		if i >= len(t) {
			return false
		}
		if part != "+" && part != t[i] {
			return false
		}
	}
	return len(f) == len(t)
}

// ValidFilter checks the placement of wildcards in filter
func ValidFilter(filter string) bool {
	if filter == "" {
		return false
	}
	f := strings.Split(filter, "/")
	for i, part := range f {
		if strings.Contains(part, "#") && (part != "#" || i != len(f)-1) {
			return false
		}
		if strings.Contains(part, "+") && part != "+" {
			return false
		}
	}
	return true
}
