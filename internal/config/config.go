// Package config loads and validates the YAML configuration binding pins
// to sensors, actors, and covers.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// EntityType classifies an actor on the bus.
type EntityType string

const (
	EntitySwitch EntityType = "switch"
	EntityButton EntityType = "button"
	EntityLock   EntityType = "lock"
)

// Duration wraps time.Duration for YAML values like "500ms" or "60s".
type Duration time.Duration

// UnmarshalYAML parses a duration string.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// MQTT holds broker settings.
type MQTT struct {
	Broker          string   `yaml:"broker"`
	Username        string   `yaml:"username"`
	Password        string   `yaml:"password"`
	BaseTopic       string   `yaml:"base_topic"`
	DiscoveryPrefix string   `yaml:"discovery_prefix"`
	NodeID          string   `yaml:"node_id"`
	DeviceName      string   `yaml:"device_name"`
	ConnectTimeout  Duration `yaml:"connect_timeout"`
	RestoreTimeout  Duration `yaml:"restore_timeout"`
}

// Hardware selects the GPIO backend.
type Hardware struct {
	Driver string `yaml:"driver"`
	Chip   string `yaml:"chip"`
}

// Sensor configures one debounced input.
type Sensor struct {
	Pin            string   `yaml:"pin"`
	Inverted       bool     `yaml:"inverted"`
	PollInterval   Duration `yaml:"poll_interval"`
	DebounceTime   Duration `yaml:"debounce_time"`
	StableReadings int      `yaml:"stable_readings"`
	DeviceClass    string   `yaml:"device_class"`
	Description    string   `yaml:"description"`
}

// Actor configures one output.
type Actor struct {
	Pin          string     `yaml:"pin"`
	Inverted     bool       `yaml:"inverted"`
	EntityType   EntityType `yaml:"entity_type"`
	AutoReset    bool       `yaml:"auto_reset"`
	ResetDelay   Duration   `yaml:"reset_delay"`
	StartupState string     `yaml:"startup_state"`
	DeviceClass  string     `yaml:"device_class"`
	Description  string     `yaml:"description"`
}

// Cover binds an actor and two sensors into a cover entity.
type Cover struct {
	Actor              string   `yaml:"actor"`
	SensorOpen         string   `yaml:"sensor_open"`
	SensorClosed       string   `yaml:"sensor_closed"`
	MovementTimeout    Duration `yaml:"movement_timeout"`
	VerificationCount  int      `yaml:"verification_count"`
	StabilizationDelay Duration `yaml:"stabilization_delay"`
	DeviceClass        string   `yaml:"device_class"`
	Description        string   `yaml:"description"`
}

// Web configures the local HTTP status page.
type Web struct {
	Addr string `yaml:"addr"`
}

// Config is the root configuration.
type Config struct {
	MQTT     MQTT              `yaml:"mqtt"`
	Hardware Hardware          `yaml:"hardware"`
	Sensors  map[string]Sensor `yaml:"sensors"`
	Actors   map[string]Actor  `yaml:"actors"`
	Covers   map[string]Cover  `yaml:"covers"`
	Web      Web               `yaml:"web"`
}

// Load reads, parses, and validates the configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse parses and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.MQTT.BaseTopic == "" {
		c.MQTT.BaseTopic = "gpiobridge"
	}
	if c.MQTT.DiscoveryPrefix == "" {
		c.MQTT.DiscoveryPrefix = "homeassistant"
	}
	if c.MQTT.NodeID == "" {
		c.MQTT.NodeID = "gpiobridge"
	}
	if c.MQTT.DeviceName == "" {
		c.MQTT.DeviceName = "GPIO Bridge"
	}
	if c.MQTT.ConnectTimeout == 0 {
		c.MQTT.ConnectTimeout = Duration(10 * time.Second)
	}
	if c.MQTT.RestoreTimeout == 0 {
		c.MQTT.RestoreTimeout = Duration(3 * time.Second)
	}

	for id, a := range c.Actors {
		if a.EntityType == "" {
			a.EntityType = EntitySwitch
		}
		if a.StartupState == "" {
			switch a.EntityType {
			case EntityLock:
				a.StartupState = "locked"
			default:
				a.StartupState = "off"
			}
		}
		c.Actors[id] = a
	}
}

// Validate checks enumerations and cross-references. Failures here are
// fatal at startup; nothing else in the system may abort the process.
func (c *Config) Validate() error {
	if len(c.Actors) == 0 && len(c.Sensors) == 0 {
		return fmt.Errorf("config defines no sensors and no actors")
	}

	ids := make(map[string]string)
	claim := func(id, kind string) error {
		if prev, ok := ids[id]; ok {
			return fmt.Errorf("entity id %q used by both %s and %s", id, prev, kind)
		}
		ids[id] = kind
		return nil
	}

	for id, s := range c.Sensors {
		if s.Pin == "" {
			return fmt.Errorf("sensor %q: missing pin", id)
		}
		if err := claim(id, "sensor"); err != nil {
			return err
		}
	}

	for id, a := range c.Actors {
		if a.Pin == "" {
			return fmt.Errorf("actor %q: missing pin", id)
		}
		switch a.EntityType {
		case EntitySwitch, EntityButton, EntityLock:
		default:
			return fmt.Errorf("actor %q: unknown entity_type %q", id, a.EntityType)
		}
		switch a.StartupState {
		case "on", "off", "locked", "unlocked", "restore":
		default:
			return fmt.Errorf("actor %q: unknown startup_state %q", id, a.StartupState)
		}
		if a.AutoReset && a.ResetDelay <= 0 {
			return fmt.Errorf("actor %q: auto_reset requires reset_delay > 0", id)
		}
		if err := claim(id, "actor"); err != nil {
			return err
		}
	}

	for id, cov := range c.Covers {
		if _, ok := c.Actors[cov.Actor]; !ok {
			return fmt.Errorf("cover %q: unknown actor %q", id, cov.Actor)
		}
		if _, ok := c.Sensors[cov.SensorOpen]; !ok {
			return fmt.Errorf("cover %q: unknown sensor_open %q", id, cov.SensorOpen)
		}
		if _, ok := c.Sensors[cov.SensorClosed]; !ok {
			return fmt.Errorf("cover %q: unknown sensor_closed %q", id, cov.SensorClosed)
		}
		if cov.SensorOpen == cov.SensorClosed {
			return fmt.Errorf("cover %q: sensor_open and sensor_closed are the same sensor", id)
		}
		if err := claim(id, "cover"); err != nil {
			return err
		}
	}

	return nil
}
