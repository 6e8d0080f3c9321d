package mqtt

import (
	"strings"
	"sync"
	"time"
)

// Message is a recorded publish.
type Message struct {
	Topic    string
	Payload  string
	Retained bool
}

// FakeTransport records publishes and lets tests inject inbound messages.
type FakeTransport struct {
	mu       sync.Mutex
	messages []Message
	retained map[string]string
	handlers map[string]MessageHandler

	// Connected is reported by IsConnected. Defaults to true.
	Connected bool

	// PublishError, when set, is returned from every Publish.
	PublishError error
}

// NewFakeTransport returns a connected fake with no retained messages.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{
		retained:  make(map[string]string),
		handlers:  make(map[string]MessageHandler),
		Connected: true,
	}
}

// Publish records the message.
func (f *FakeTransport) Publish(topic, payload string, retained bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.PublishError != nil {
		return f.PublishError
	}
	f.messages = append(f.messages, Message{Topic: topic, Payload: payload, Retained: retained})
	if retained {
		f.retained[topic] = payload
	}
	return nil
}

// Subscribe registers the handler for exact-topic injection.
func (f *FakeTransport) Subscribe(topic string, handler MessageHandler) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.handlers[topic] = handler
	return nil
}

// RestoreRetained returns the payload seeded via SetRetained, ignoring the
// timeout.
func (f *FakeTransport) RestoreRetained(topic string, _ time.Duration) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	payload, ok := f.retained[topic]
	return payload, ok
}

func (f *FakeTransport) IsConnected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Connected
}

func (f *FakeTransport) Close() error { return nil }

// SetRetained seeds a retained message for RestoreRetained.
func (f *FakeTransport) SetRetained(topic, payload string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.retained[topic] = payload
}

// Inject delivers an inbound message to the matching subscription handler.
// Returns false when no handler matches the topic.
func (f *FakeTransport) Inject(topic, payload string) bool {
	f.mu.Lock()
	var handler MessageHandler
	for filter, h := range f.handlers {
		if topicMatches(filter, topic) {
			handler = h
			break
		}
	}
	f.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(topic, payload)
	return true
}

// Messages returns a copy of all recorded publishes.
func (f *FakeTransport) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Message, len(f.messages))
	copy(out, f.messages)
	return out
}

// MessagesFor returns the payloads published to one topic, in order.
func (f *FakeTransport) MessagesFor(topic string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, m := range f.messages {
		if m.Topic == topic {
			out = append(out, m.Payload)
		}
	}
	return out
}

// LastPayload returns the most recent payload on a topic.
func (f *FakeTransport) LastPayload(topic string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.messages) - 1; i >= 0; i-- {
		if f.messages[i].Topic == topic {
			return f.messages[i].Payload, true
		}
	}
	return "", false
}

// Reset clears all recorded publishes.
func (f *FakeTransport) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.messages = nil
}

// topicMatches supports single-level (+) and multi-level (#) wildcards.
func topicMatches(filter, topic string) bool {
	if filter == topic {
		return true
	}
	fp := strings.Split(filter, "/")
	tp := strings.Split(topic, "/")
	for i, part := range fp {
		if part == "#" {
			return true
		}
		if i >= len(tp) {
			return false
		}
		if part != "+" && part != tp[i] {
			return false
		}
	}
	return len(fp) == len(tp)
}
