// Package control wires sensors, actors, and covers to the message bus. It
// routes confirmed sensor changes out as state publishes and inbound
// commands to the owning entity.
package control

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"gpiobridge/internal/config"
	"gpiobridge/internal/device"
	"gpiobridge/internal/gpio"
	"gpiobridge/internal/mqtt"
)

// StatusRecorder receives entity state updates for the local status page.
type StatusRecorder interface {
	SetEntity(id, state string)
}

// coverLink ties a cover to the ids of its two position sensors.
type coverLink struct {
	cover        *device.Cover
	sensorOpen   string
	sensorClosed string
}

// Controller owns every configured entity and mediates between the GPIO
// devices and the transport.
type Controller struct {
	cfg       *config.Config
	transport mqtt.Transport
	log       *slog.Logger
	recorder  StatusRecorder

	sensors map[string]*device.Sensor
	actors  map[string]*device.Actor
	covers  map[string]*coverLink

	// sensorCovers indexes covers by the sensors feeding them.
	sensorCovers map[string][]string

	// internalActors are referenced by a cover and not exposed on the bus.
	internalActors map[string]bool
}

// New builds all configured entities on the chip. The configuration must
// already be validated.
func New(cfg *config.Config, chip gpio.Chip, transport mqtt.Transport, recorder StatusRecorder, log *slog.Logger) (*Controller, error) {
	c := &Controller{
		cfg:            cfg,
		transport:      transport,
		log:            log,
		recorder:       recorder,
		sensors:        make(map[string]*device.Sensor),
		actors:         make(map[string]*device.Actor),
		covers:         make(map[string]*coverLink),
		sensorCovers:   make(map[string][]string),
		internalActors: make(map[string]bool),
	}

	for id, sc := range cfg.Sensors {
		pin := device.NewPin(chip, sc.Pin, sc.Inverted)
		if _, err := pin.Read(); err != nil {
			return nil, fmt.Errorf("sensor %q: %w", id, err)
		}
		devCfg := device.DefaultSensorConfig()
		if sc.PollInterval > 0 {
			devCfg.PollInterval = sc.PollInterval.Std()
		}
		if sc.DebounceTime > 0 {
			devCfg.DebounceWindow = sc.DebounceTime.Std()
		}
		if sc.StableReadings > 0 {
			devCfg.StableReadings = sc.StableReadings
		}
		c.sensors[id] = device.NewSensor(pin, devCfg, log.With("sensor", id))
	}

	for id, ac := range cfg.Actors {
		pin := device.NewPin(chip, ac.Pin, ac.Inverted)
		var delay time.Duration
		if ac.AutoReset {
			delay = ac.ResetDelay.Std()
		}
		if ac.EntityType == config.EntityButton && delay == 0 {
			delay = 500 * time.Millisecond
		}
		c.actors[id] = device.NewActor(pin, delay, log.With("actor", id))
	}

	for id, cc := range cfg.Covers {
		devCfg := device.DefaultCoverConfig()
		if cc.MovementTimeout > 0 {
			devCfg.MovementTimeout = cc.MovementTimeout.Std()
		}
		if cc.VerificationCount > 0 {
			devCfg.VerificationCount = cc.VerificationCount
		}
		if cc.StabilizationDelay > 0 {
			devCfg.StabilizationDelay = cc.StabilizationDelay.Std()
		}
		cover := device.NewCover(c.actors[cc.Actor], devCfg, log.With("cover", id))
		c.covers[id] = &coverLink{cover: cover, sensorOpen: cc.SensorOpen, sensorClosed: cc.SensorClosed}
		c.sensorCovers[cc.SensorOpen] = append(c.sensorCovers[cc.SensorOpen], id)
		c.sensorCovers[cc.SensorClosed] = append(c.sensorCovers[cc.SensorClosed], id)
		c.internalActors[cc.Actor] = true
	}

	c.wireCallbacks()
	return c, nil
}

// wireCallbacks connects device change notifications to the bus. Callbacks
// fire from the devices with their locks released, so publishing here is
// safe.
func (c *Controller) wireCallbacks() {
	for id, s := range c.sensors {
		id := id
		s.OnChange(func(value bool) {
			c.publishSensor(id, value)
			for _, coverID := range c.sensorCovers[id] {
				c.updateCover(coverID)
			}
		})
	}

	for id, link := range c.covers {
		id := id
		link.cover.OnChange(func(state device.CoverState) {
			c.publishState(id, string(state))
		})
	}

	for id, a := range c.actors {
		if c.internalActors[id] {
			continue
		}
		id, a := id, a
		switch c.cfg.Actors[id].EntityType {
		case config.EntityButton:
			// Buttons publish nothing, the reset is silent too.
		default:
			a.OnReset(func() {
				a.Set(false)
				c.publishActor(id)
			})
		}
	}
}

// updateCover feeds the confirmed readings of both position sensors into
// the cover state machine.
func (c *Controller) updateCover(coverID string) {
	link := c.covers[coverID]
	open := c.sensors[link.sensorOpen].Confirmed()
	closed := c.sensors[link.sensorClosed].Confirmed()
	link.cover.UpdateSensorReading(open, closed)
}

// Start applies startup states, announces discovery, publishes the initial
// snapshot, subscribes to commands, and starts the sensor poll loops.
func (c *Controller) Start() error {
	c.applyStartupStates()

	if err := c.publishDiscovery(); err != nil {
		c.log.Warn("discovery publish failed", "err", err)
	}

	// Seed confirmed states before anything can observe them. Sensor
	// callbacks publish and feed the covers; the covers are then forced
	// to a definite state from the seeded pair.
	for _, id := range sortedKeys(c.sensors) {
		c.sensors[id].ForceUpdate()
	}
	// Sensors whose startup reading equals the zero value fire no change
	// callback, so the snapshot is published explicitly.
	for _, id := range sortedKeys(c.sensors) {
		c.publishSensor(id, c.sensors[id].Confirmed())
	}
	for _, id := range sortedKeys(c.covers) {
		link := c.covers[id]
		open := c.sensors[link.sensorOpen].Confirmed()
		closed := c.sensors[link.sensorClosed].Confirmed()
		state := link.cover.ForceUpdate(open, closed)
		c.publishState(id, string(state))
	}
	for _, id := range sortedKeys(c.actors) {
		if c.internalActors[id] {
			continue
		}
		if c.cfg.Actors[id].EntityType == config.EntityButton {
			continue
		}
		c.publishActor(id)
	}

	if err := c.subscribeCommands(); err != nil {
		return err
	}

	for _, s := range c.sensors {
		s.Start()
	}
	return nil
}

// subscribeCommands registers one command topic per bus-visible entity.
func (c *Controller) subscribeCommands() error {
	subscribe := func(entity string) error {
		topic := mqtt.CommandTopic(c.cfg.MQTT.BaseTopic, entity)
		return c.transport.Subscribe(topic, func(_, payload string) {
			c.handleCommand(entity, payload)
		})
	}

	for _, id := range sortedKeys(c.actors) {
		if c.internalActors[id] {
			continue
		}
		if err := subscribe(id); err != nil {
			return fmt.Errorf("subscribe %s: %w", id, err)
		}
	}
	for _, id := range sortedKeys(c.covers) {
		if err := subscribe(id); err != nil {
			return fmt.Errorf("subscribe %s: %w", id, err)
		}
	}
	return nil
}

// Shutdown stops the poll loops and releases timers. The availability
// topic is handled by the transport on Close.
func (c *Controller) Shutdown() {
	for _, s := range c.sensors {
		s.Stop()
	}
	for _, link := range c.covers {
		link.cover.Shutdown()
	}
	for _, a := range c.actors {
		a.Close()
	}
}

// publishState publishes a retained entity state and records it for the
// status page.
func (c *Controller) publishState(entity, state string) {
	if c.recorder != nil {
		c.recorder.SetEntity(entity, state)
	}
	topic := mqtt.StateTopic(c.cfg.MQTT.BaseTopic, entity)
	if err := c.transport.Publish(topic, state, true); err != nil {
		c.log.Warn("state publish failed", "entity", entity, "err", err)
	}
}

func (c *Controller) publishSensor(id string, value bool) {
	payload := mqtt.PayloadOff
	if value {
		payload = mqtt.PayloadOn
	}
	c.publishState(id, payload)
}

// publishActor publishes the actor's current state in its entity
// vocabulary. Locks report LOCKED when the output is engaged.
func (c *Controller) publishActor(id string) {
	a := c.actors[id]
	var payload string
	switch c.cfg.Actors[id].EntityType {
	case config.EntityLock:
		if a.State() {
			payload = mqtt.PayloadLocked
		} else {
			payload = mqtt.PayloadUnlocked
		}
	default:
		if a.State() {
			payload = mqtt.PayloadOn
		} else {
			payload = mqtt.PayloadOff
		}
	}
	c.publishState(id, payload)
}

func sortedKeys[M ~map[string]V, V any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
