package control

import (
	"strings"

	"gpiobridge/internal/config"
	"gpiobridge/internal/mqtt"
)

// handleCommand dispatches an inbound bus command to the owning entity.
// Unknown entities and verbs are logged and dropped, never fatal.
func (c *Controller) handleCommand(entity, payload string) {
	verb := strings.ToUpper(strings.TrimSpace(payload))

	if link, ok := c.covers[entity]; ok {
		switch verb {
		case mqtt.PayloadOpen:
			link.cover.Open()
		case mqtt.PayloadClose:
			link.cover.Close()
		case mqtt.PayloadStop:
			link.cover.Stop()
		case mqtt.PayloadToggle:
			link.cover.Toggle()
		default:
			c.log.Warn("unknown cover command", "entity", entity, "payload", payload)
		}
		return
	}

	a, ok := c.actors[entity]
	if !ok || c.internalActors[entity] {
		c.log.Warn("command for unknown entity", "entity", entity, "payload", payload)
		return
	}

	switch c.cfg.Actors[entity].EntityType {
	case config.EntityButton:
		switch verb {
		case mqtt.PayloadPress, mqtt.PayloadOn:
			a.Set(true)
		default:
			c.log.Warn("unknown button command", "entity", entity, "payload", payload)
		}

	case config.EntityLock:
		// Internally true means the lock output is engaged, i.e. locked.
		var want bool
		switch verb {
		case mqtt.PayloadLock:
			want = true
		case mqtt.PayloadUnlock:
			want = false
		default:
			c.log.Warn("unknown lock command", "entity", entity, "payload", payload)
			return
		}
		if a.State() == want {
			c.log.Debug("lock already in requested state", "entity", entity, "payload", verb)
			return
		}
		a.Set(want)
		c.publishActor(entity)

	default: // switch
		var want bool
		switch verb {
		case mqtt.PayloadOn:
			want = true
		case mqtt.PayloadOff:
			want = false
		default:
			c.log.Warn("unknown switch command", "entity", entity, "payload", payload)
			return
		}
		if a.State() == want {
			c.log.Debug("switch already in requested state", "entity", entity, "payload", verb)
			return
		}
		a.Set(want)
		c.publishActor(entity)
	}
}

// applyStartupStates drives every output to its configured startup state.
// The restore policy reads the entity's retained state topic and falls
// back to the safe default when nothing is retained.
func (c *Controller) applyStartupStates() {
	for _, id := range sortedKeys(c.actors) {
		a := c.actors[id]
		ac := c.cfg.Actors[id]

		if c.internalActors[id] || ac.EntityType == config.EntityButton {
			a.Set(false)
			continue
		}

		var want bool
		switch ac.StartupState {
		case "on", "locked":
			want = true
		case "off", "unlocked":
			want = false
		case "restore":
			want = c.restoreState(id, ac.EntityType)
		}
		a.Set(want)
	}
}

// restoreState reads the retained state topic. Absent or unparseable
// payloads fall back to off for switches and locked for locks.
func (c *Controller) restoreState(id string, entityType config.EntityType) bool {
	fallback := entityType == config.EntityLock

	topic := mqtt.StateTopic(c.cfg.MQTT.BaseTopic, id)
	payload, ok := c.transport.RestoreRetained(topic, c.cfg.MQTT.RestoreTimeout.Std())
	if !ok {
		c.log.Info("no retained state to restore", "entity", id)
		return fallback
	}

	switch strings.ToUpper(strings.TrimSpace(payload)) {
	case mqtt.PayloadOn, mqtt.PayloadLocked:
		return true
	case mqtt.PayloadOff, mqtt.PayloadUnlocked:
		return false
	default:
		c.log.Warn("unparseable retained state", "entity", id, "payload", payload)
		return fallback
	}
}

// publishDiscovery announces every bus-visible entity for Home Assistant
// auto-discovery. The configs are retained so a restarted broker keeps
// them.
func (c *Controller) publishDiscovery() error {
	d := &mqtt.Discovery{
		Prefix:    c.cfg.MQTT.DiscoveryPrefix,
		NodeID:    c.cfg.MQTT.NodeID,
		BaseTopic: c.cfg.MQTT.BaseTopic,
		Device: mqtt.DiscoveryDevice{
			Identifiers: []string{c.cfg.MQTT.NodeID},
			Name:        c.cfg.MQTT.DeviceName,
			Model:       "gpiobridge",
		},
	}

	announce := func(topic, payload string, err error) error {
		if err != nil {
			return err
		}
		return c.transport.Publish(topic, payload, true)
	}

	for _, id := range sortedKeys(c.sensors) {
		sc := c.cfg.Sensors[id]
		if err := announce(d.BinarySensor(id, sc.Description, sc.DeviceClass)); err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(c.actors) {
		if c.internalActors[id] {
			continue
		}
		ac := c.cfg.Actors[id]
		var err error
		switch ac.EntityType {
		case config.EntityLock:
			err = announce(d.Lock(id, ac.Description))
		case config.EntityButton:
			err = announce(d.Button(id, ac.Description, ac.DeviceClass))
		default:
			err = announce(d.Switch(id, ac.Description, ac.DeviceClass))
		}
		if err != nil {
			return err
		}
	}
	for _, id := range sortedKeys(c.covers) {
		cc := c.cfg.Covers[id]
		if err := announce(d.Cover(id, cc.Description, cc.DeviceClass)); err != nil {
			return err
		}
	}
	return nil
}
