package mqtt

import (
	"encoding/json"
	"fmt"
)

// Command and state payloads for the entity vocabulary.
const (
	PayloadOn       = "ON"
	PayloadOff      = "OFF"
	PayloadLock     = "LOCK"
	PayloadUnlock   = "UNLOCK"
	PayloadLocked   = "LOCKED"
	PayloadUnlocked = "UNLOCKED"
	PayloadOpen     = "OPEN"
	PayloadClose    = "CLOSE"
	PayloadStop     = "STOP"
	PayloadToggle   = "TOGGLE"
	PayloadPress    = "PRESS"
)

// DiscoveryDevice groups all entities under one device in Home Assistant.
type DiscoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model,omitempty"`
	Manufacturer string   `json:"manufacturer,omitempty"`
}

// discoveryConfig is the auto-discovery payload. Field presence depends on
// the component type, hence the omitempty tags.
type discoveryConfig struct {
	Name              string           `json:"name"`
	UniqueID          string           `json:"unique_id"`
	StateTopic        string           `json:"state_topic,omitempty"`
	CommandTopic      string           `json:"command_topic,omitempty"`
	AvailabilityTopic string           `json:"availability_topic"`
	PayloadAvailable  string           `json:"payload_available"`
	PayloadNotAvail   string           `json:"payload_not_available"`
	PayloadOn         string           `json:"payload_on,omitempty"`
	PayloadOff        string           `json:"payload_off,omitempty"`
	PayloadLock       string           `json:"payload_lock,omitempty"`
	PayloadUnlock     string           `json:"payload_unlock,omitempty"`
	StateLocked       string           `json:"state_locked,omitempty"`
	StateUnlocked     string           `json:"state_unlocked,omitempty"`
	PayloadPress      string           `json:"payload_press,omitempty"`
	PayloadOpen       string           `json:"payload_open,omitempty"`
	PayloadClose      string           `json:"payload_close,omitempty"`
	PayloadStop       string           `json:"payload_stop,omitempty"`
	StateOpen         string           `json:"state_open,omitempty"`
	StateOpening      string           `json:"state_opening,omitempty"`
	StateClosed       string           `json:"state_closed,omitempty"`
	StateClosing      string           `json:"state_closing,omitempty"`
	DeviceClass       string           `json:"device_class,omitempty"`
	Device            *DiscoveryDevice `json:"device,omitempty"`
}

// Discovery builds Home Assistant auto-discovery announcements.
type Discovery struct {
	Prefix    string
	NodeID    string
	BaseTopic string
	Device    DiscoveryDevice
}

// ConfigTopic returns the retained discovery topic for an entity.
func (d *Discovery) ConfigTopic(component, entity string) string {
	return fmt.Sprintf("%s/%s/%s/%s/config", d.Prefix, component, d.NodeID, entity)
}

func (d *Discovery) base(entity, name, deviceClass string) discoveryConfig {
	if name == "" {
		name = entity
	}
	return discoveryConfig{
		Name:              name,
		UniqueID:          d.NodeID + "_" + entity,
		AvailabilityTopic: AvailabilityTopic(d.BaseTopic),
		PayloadAvailable:  PayloadOnline,
		PayloadNotAvail:   PayloadOffline,
		DeviceClass:       deviceClass,
		Device:            &d.Device,
	}
}

// BinarySensor announces a read-only input entity.
func (d *Discovery) BinarySensor(entity, name, deviceClass string) (topic, payload string, err error) {
	cfg := d.base(entity, name, deviceClass)
	cfg.StateTopic = StateTopic(d.BaseTopic, entity)
	cfg.PayloadOn = PayloadOn
	cfg.PayloadOff = PayloadOff
	return d.marshal("binary_sensor", entity, cfg)
}

// Switch announces a stateful output entity.
func (d *Discovery) Switch(entity, name, deviceClass string) (topic, payload string, err error) {
	cfg := d.base(entity, name, deviceClass)
	cfg.StateTopic = StateTopic(d.BaseTopic, entity)
	cfg.CommandTopic = CommandTopic(d.BaseTopic, entity)
	cfg.PayloadOn = PayloadOn
	cfg.PayloadOff = PayloadOff
	return d.marshal("switch", entity, cfg)
}

// Lock announces a lock entity. The published states are LOCKED and
// UNLOCKED, the commands LOCK and UNLOCK.
func (d *Discovery) Lock(entity, name string) (topic, payload string, err error) {
	cfg := d.base(entity, name, "")
	cfg.StateTopic = StateTopic(d.BaseTopic, entity)
	cfg.CommandTopic = CommandTopic(d.BaseTopic, entity)
	cfg.PayloadLock = PayloadLock
	cfg.PayloadUnlock = PayloadUnlock
	cfg.StateLocked = PayloadLocked
	cfg.StateUnlocked = PayloadUnlocked
	return d.marshal("lock", entity, cfg)
}

// Button announces a momentary output entity. Buttons have no state topic.
func (d *Discovery) Button(entity, name, deviceClass string) (topic, payload string, err error) {
	cfg := d.base(entity, name, deviceClass)
	cfg.CommandTopic = CommandTopic(d.BaseTopic, entity)
	cfg.PayloadPress = PayloadPress
	return d.marshal("button", entity, cfg)
}

// Cover announces a cover entity with position-less open/close semantics.
func (d *Discovery) Cover(entity, name, deviceClass string) (topic, payload string, err error) {
	cfg := d.base(entity, name, deviceClass)
	cfg.StateTopic = StateTopic(d.BaseTopic, entity)
	cfg.CommandTopic = CommandTopic(d.BaseTopic, entity)
	cfg.PayloadOpen = PayloadOpen
	cfg.PayloadClose = PayloadClose
	cfg.PayloadStop = PayloadStop
	cfg.StateOpen = "open"
	cfg.StateOpening = "opening"
	cfg.StateClosed = "closed"
	cfg.StateClosing = "closing"
	return d.marshal("cover", entity, cfg)
}

func (d *Discovery) marshal(component, entity string, cfg discoveryConfig) (string, string, error) {
	data, err := json.Marshal(cfg)
	if err != nil {
		return "", "", fmt.Errorf("marshal discovery config for %s: %w", entity, err)
	}
	return d.ConfigTopic(component, entity), string(data), nil
}
