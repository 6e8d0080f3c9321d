package mqtt

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// offlineBufferCapacity bounds how many messages are held while the broker
// is unreachable.
const offlineBufferCapacity = 256

// publishTimeout bounds how long a single publish may block.
const publishTimeout = 5 * time.Second

// Options configures the broker connection.
type Options struct {
	// Broker is the server URL, e.g. "tcp://192.168.1.200:1883".
	Broker string

	// ClientID identifies this client to the broker.
	ClientID string

	// BaseTopic roots the availability (last-will) topic.
	BaseTopic string

	Username string
	Password string

	// ConnectTimeout bounds the initial connection attempt.
	ConnectTimeout time.Duration
}

// Broker is the paho-backed Transport. While disconnected, publishes are
// buffered and replayed on reconnect; the callers never block on broker
// availability.
type Broker struct {
	client paho.Client
	base   string
	log    *slog.Logger

	mu      sync.Mutex
	pending *ringBuffer
	subs    map[string]MessageHandler
}

// NewBroker connects to the broker, sets the availability last-will, and
// publishes the online status.
func NewBroker(opts Options, log *slog.Logger) (*Broker, error) {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ClientID == "" {
		opts.ClientID = "gpiobridge"
	}

	b := &Broker{
		base:    opts.BaseTopic,
		log:     log,
		pending: newRingBuffer(offlineBufferCapacity),
		subs:    make(map[string]MessageHandler),
	}

	clientOpts := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(AvailabilityTopic(opts.BaseTopic), PayloadOffline, 1, true).
		SetOnConnectHandler(b.onConnect).
		SetConnectionLostHandler(b.onConnectionLost)
	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username).SetPassword(opts.Password)
	}

	b.client = paho.NewClient(clientOpts)
	token := b.client.Connect()
	if !token.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("connect to %s: timeout", opts.Broker)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", opts.Broker, err)
	}

	return b, nil
}

// onConnect republishes availability, restores subscriptions, and drains
// messages buffered while disconnected.
func (b *Broker) onConnect(client paho.Client) {
	b.log.Info("mqtt connected")

	token := client.Publish(AvailabilityTopic(b.base), 1, true, PayloadOnline)
	token.WaitTimeout(publishTimeout)

	b.mu.Lock()
	subs := make(map[string]MessageHandler, len(b.subs))
	for topic, handler := range b.subs {
		subs[topic] = handler
	}
	drained := b.pending.drainAll()
	b.mu.Unlock()

	for topic, handler := range subs {
		b.subscribe(topic, handler)
	}

	if len(drained) > 0 {
		b.log.Info("replaying buffered messages", "count", len(drained))
		for _, msg := range drained {
			t := client.Publish(msg.topic, 1, msg.retained, msg.payload)
			t.WaitTimeout(publishTimeout)
		}
	}
}

func (b *Broker) onConnectionLost(_ paho.Client, err error) {
	b.log.Warn("mqtt connection lost", "err", err)
}

// Publish sends a payload at QoS 1. While disconnected the message is
// buffered for replay instead of blocking or failing the caller.
func (b *Broker) Publish(topic, payload string, retained bool) error {
	if !b.client.IsConnected() {
		b.mu.Lock()
		dropped := b.pending.push(bufferedMsg{topic: topic, payload: payload, retained: retained})
		n := b.pending.len()
		b.mu.Unlock()
		if dropped {
			b.log.Warn("offline buffer full, dropped oldest message", "buffered", n)
		} else {
			b.log.Debug("broker unreachable, buffered message", "topic", topic, "buffered", n)
		}
		return nil
	}

	token := b.client.Publish(topic, 1, retained, payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe registers a handler. Subscriptions are remembered and restored
// after reconnects.
func (b *Broker) Subscribe(topic string, handler MessageHandler) error {
	b.mu.Lock()
	b.subs[topic] = handler
	b.mu.Unlock()
	return b.subscribe(topic, handler)
}

func (b *Broker) subscribe(topic string, handler MessageHandler) error {
	token := b.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), string(msg.Payload()))
	})
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("subscribe %s: timeout", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// RestoreRetained waits for the retained message on the topic via a
// transient subscription.
func (b *Broker) RestoreRetained(topic string, timeout time.Duration) (string, bool) {
	ch := make(chan string, 1)
	token := b.client.Subscribe(topic, 1, func(_ paho.Client, msg paho.Message) {
		select {
		case ch <- string(msg.Payload()):
		default:
		}
	})
	if !token.WaitTimeout(timeout) || token.Error() != nil {
		return "", false
	}
	defer b.client.Unsubscribe(topic)

	select {
	case payload := <-ch:
		return payload, true
	case <-time.After(timeout):
		return "", false
	}
}

// IsConnected reports broker reachability.
func (b *Broker) IsConnected() bool {
	return b.client.IsConnected()
}

// Close publishes the offline status and disconnects.
func (b *Broker) Close() error {
	if b.client.IsConnected() {
		token := b.client.Publish(AvailabilityTopic(b.base), 1, true, PayloadOffline)
		token.WaitTimeout(publishTimeout)
	}
	b.client.Disconnect(1000) // milliseconds
	return nil
}
