package device

import (
	"log/slog"
	"sync"
	"time"
)

// SensorConfig holds the debounce parameters for a Sensor.
type SensorConfig struct {
	// PollInterval is the sleep between pin reads in the poll loop.
	PollInterval time.Duration

	// DebounceWindow is how long a candidate level must hold before
	// stable readings start counting.
	DebounceWindow time.Duration

	// StableReadings is the number of consecutive identical readings
	// required to confirm a state change.
	StableReadings int
}

// DefaultSensorConfig mirrors the hardware defaults: 100ms polls, 50ms
// debounce, 3 stable readings.
func DefaultSensorConfig() SensorConfig {
	return SensorConfig{
		PollInterval:   100 * time.Millisecond,
		DebounceWindow: 50 * time.Millisecond,
		StableReadings: 3,
	}
}

// Sensor is a debounced digital input. Its confirmed state changes only
// after the configured number of consecutive stable readings, and the
// registered callback fires exactly once per confirmed change.
type Sensor struct {
	mu  sync.Mutex
	pin Pin
	cfg SensorConfig
	log *slog.Logger

	now      func() time.Time
	onChange func(bool)

	seeded       bool
	lastRaw      bool
	lastDebounce time.Time
	stableCount  int
	confirmed    bool

	stop chan struct{}
	done chan struct{}
}

// NewSensor creates a Sensor. The poll loop does not run until Start.
func NewSensor(pin Pin, cfg SensorConfig, log *slog.Logger) *Sensor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultSensorConfig().PollInterval
	}
	if cfg.StableReadings < 1 {
		cfg.StableReadings = 1
	}
	return &Sensor{
		pin: pin,
		cfg: cfg,
		log: log,
		now: time.Now,
	}
}

// OnChange registers the confirmed-state callback. Must be called before
// Start.
func (s *Sensor) OnChange(fn func(bool)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = fn
}

// Confirmed returns the current confirmed (debounced) state.
func (s *Sensor) Confirmed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.confirmed
}

// Poll reads the pin once and runs the debounce logic. Read failures are
// logged and the last confirmed state is kept.
func (s *Sensor) Poll() {
	value, err := s.pin.Read()
	if err != nil {
		s.log.Warn("sensor read failed, keeping last state",
			"pin", s.pin.ID(), "err", err)
		return
	}
	s.observe(value, s.now())
}

// observe applies one logical reading at the given time.
func (s *Sensor) observe(value bool, now time.Time) {
	s.mu.Lock()

	switch {
	case !s.seeded:
		s.seeded = true
		s.lastRaw = value
		s.lastDebounce = now
		s.stableCount = 1
	case value != s.lastRaw:
		// Flicker restarts the stability count.
		s.lastRaw = value
		s.lastDebounce = now
		s.stableCount = 1
	case now.Sub(s.lastDebounce) >= s.cfg.DebounceWindow:
		s.stableCount++
	}

	var fire func(bool)
	if s.stableCount >= s.cfg.StableReadings && value != s.confirmed {
		s.confirmed = value
		fire = s.onChange
		s.log.Info("sensor state confirmed", "pin", s.pin.ID(), "state", value)
	}
	s.mu.Unlock()

	if fire != nil {
		fire(value)
	}
}

// ForceUpdate bypasses debouncing: it reads the pin once, accepts the value
// immediately, and fires the callback if the confirmed state changed. Used
// at startup and after diagnostics, never from the poll loop.
func (s *Sensor) ForceUpdate() {
	value, err := s.pin.Read()
	if err != nil {
		s.log.Warn("sensor force-update read failed", "pin", s.pin.ID(), "err", err)
		return
	}

	s.mu.Lock()
	s.seeded = true
	s.lastRaw = value
	s.lastDebounce = s.now()
	s.stableCount = s.cfg.StableReadings
	changed := value != s.confirmed
	s.confirmed = value
	fire := s.onChange
	s.mu.Unlock()

	if changed && fire != nil {
		fire(value)
	}
}

// Start launches the poll loop.
func (s *Sensor) Start() {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		ticker := time.NewTicker(s.cfg.PollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				s.Poll()
			}
		}
	}()
}

// Stop signals the poll loop and waits for it to exit.
func (s *Sensor) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return
	}
	close(stop)
	<-done
}
