// Package status provides a thread-safe snapshot of the bridge state for
// the HTTP status page.
package status

import (
	"sync"
	"time"
)

// Config contains bridge configuration for display.
type Config struct {
	Broker    string
	BaseTopic string
	HTTPAddr  string
	Driver    string
}

// Entity is one bus-visible entity and its last published state.
type Entity struct {
	ID    string
	Kind  string // sensor, switch, button, lock, cover
	State string
}

// Snapshot is a point-in-time view of the bridge state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Entities      []Entity
	StartTime     time.Time
	Now           time.Time
	MQTTConnected bool
	Config        Config
}

// Uptime returns the duration since the bridge started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable bridge state behind an RWMutex.
type Tracker struct {
	mu        sync.RWMutex
	entities  map[string]int // id -> index into order
	order     []Entity
	startTime time.Time
	connected bool
	cfg       Config
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		entities:  make(map[string]int),
		startTime: startTime,
		cfg:       cfg,
	}
}

// Register declares an entity and its kind. Display order follows
// registration order.
func (t *Tracker) Register(id, kind string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entities[id]; ok {
		return
	}
	t.entities[id] = len(t.order)
	t.order = append(t.order, Entity{ID: id, Kind: kind})
}

// SetEntity records the entity's last published state. Unregistered ids
// are added with an empty kind.
func (t *Tracker) SetEntity(id, state string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	idx, ok := t.entities[id]
	if !ok {
		idx = len(t.order)
		t.entities[id] = idx
		t.order = append(t.order, Entity{ID: id})
	}
	t.order[idx].State = state
}

// SetMQTTConnected sets the broker connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.connected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the bridge state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	entities := make([]Entity, len(t.order))
	copy(entities, t.order)
	s := Snapshot{
		Entities:      entities,
		StartTime:     t.startTime,
		MQTTConnected: t.connected,
		Config:        t.cfg,
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
