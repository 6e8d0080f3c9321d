// Package mqtt provides the transport gateway to the message bus, with
// abstraction for testing. The real implementation connects to an MQTT
// broker; the fake records traffic for assertions.
package mqtt

import "time"

// MessageHandler receives messages for a subscribed topic.
type MessageHandler func(topic, payload string)

// Transport publishes and receives bus messages. Publish failures are
// reported but must never stop the callers' state machines.
type Transport interface {
	// Publish sends a payload. Retained messages are kept by the broker
	// for late subscribers.
	Publish(topic, payload string, retained bool) error

	// Subscribe registers a handler for a topic filter.
	Subscribe(topic string, handler MessageHandler) error

	// RestoreRetained waits for the broker's retained message on the
	// topic. Returns ok=false on timeout or when no message is retained.
	RestoreRetained(topic string, timeout time.Duration) (payload string, ok bool)

	// IsConnected reports whether the transport currently reaches the
	// broker.
	IsConnected() bool

	// Close publishes the offline status and disconnects.
	Close() error
}

// Topic layout under the base topic: <base>/status for availability,
// <base>/<entity>/state and <base>/<entity>/set per entity.

// StateTopic returns the retained state topic for an entity.
func StateTopic(base, entity string) string {
	return base + "/" + entity + "/state"
}

// CommandTopic returns the command topic for an entity.
func CommandTopic(base, entity string) string {
	return base + "/" + entity + "/set"
}

// AvailabilityTopic returns the service availability topic.
func AvailabilityTopic(base string) string {
	return base + "/status"
}

// Availability payloads.
const (
	PayloadOnline  = "online"
	PayloadOffline = "offline"
)
