package device

import (
	"log/slog"
	"sync"
	"time"
)

// CoverState is the derived position of a cover.
type CoverState string

const (
	CoverOpen    CoverState = "open"
	CoverClosed  CoverState = "closed"
	CoverOpening CoverState = "opening"
	CoverClosing CoverState = "closing"
	CoverUnknown CoverState = "unknown"
	CoverError   CoverState = "error"
)

// moving reports whether the state is a movement state.
func (s CoverState) moving() bool {
	return s == CoverOpening || s == CoverClosing
}

// DetermineState derives a cover state from the verified sensor pair and
// the previous state. It is a pure function; the previous state only
// disambiguates the both-sensors-inactive case.
func DetermineState(open, closed bool, previous CoverState) CoverState {
	switch {
	case closed && !open:
		return CoverClosed
	case open && !closed:
		return CoverOpen
	case open && closed:
		return CoverError
	default:
		switch previous {
		case CoverOpen, CoverOpening:
			return CoverClosing
		case CoverClosed, CoverClosing:
			return CoverOpening
		default:
			return CoverUnknown
		}
	}
}

// CoverConfig holds the stabilization and supervision parameters.
type CoverConfig struct {
	// MovementTimeout bounds how long the cover may report opening or
	// closing before the watchdog forces it to unknown.
	MovementTimeout time.Duration

	// VerificationCount is how many identical sensor pairs are required
	// before a reading is accepted.
	VerificationCount int

	// StabilizationDelay discards readings arriving this soon after
	// construction, while the sensors settle.
	StabilizationDelay time.Duration
}

// DefaultCoverConfig returns the hardware defaults: 60s movement timeout,
// 2 verifications, 500ms stabilization.
func DefaultCoverConfig() CoverConfig {
	return CoverConfig{
		MovementTimeout:    60 * time.Second,
		VerificationCount:  2,
		StabilizationDelay: 500 * time.Millisecond,
	}
}

// reading is one (open, closed) sensor pair.
type reading struct {
	open   bool
	closed bool
}

// Cover derives the state of a two-sensor cover (garage door, shutter) and
// drives its pulse actor. Sensor readings pass a pairwise verification
// filter before they can change the state; a movement watchdog forces the
// state to unknown when neither sensor resolves a movement in time.
type Cover struct {
	mu    sync.Mutex
	actor *Actor
	cfg   CoverConfig
	log   *slog.Logger
	now   func() time.Time

	state        CoverState
	sensorOpen   bool
	sensorClosed bool

	minVerification   int
	verificationCount int
	unstableReadings  int
	lastVerified      *reading
	lastUnverified    *reading

	createdAt  time.Time
	stabilized bool

	// watchdogGen invalidates timeout callbacks from superseded watchdogs:
	// an expired timer's callback can be waiting on mu while the deadline
	// is replaced or cleared, and Stop reports that too late to help.
	watchdog    *time.Timer
	watchdogGen uint64

	onChange func(CoverState)
}

// NewCover creates a Cover in the unknown state.
func NewCover(actor *Actor, cfg CoverConfig, log *slog.Logger) *Cover {
	if cfg.MovementTimeout <= 0 {
		cfg.MovementTimeout = DefaultCoverConfig().MovementTimeout
	}
	if cfg.VerificationCount < 1 {
		cfg.VerificationCount = DefaultCoverConfig().VerificationCount
	}
	c := &Cover{
		actor:           actor,
		cfg:             cfg,
		log:             log,
		now:             time.Now,
		state:           CoverUnknown,
		minVerification: cfg.VerificationCount,
	}
	c.createdAt = c.now()
	return c
}

// OnChange registers the state-changed callback. It fires exactly once per
// transition, from whichever goroutine caused it.
func (c *Cover) OnChange(fn func(CoverState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// State returns the current cover state.
func (c *Cover) State() CoverState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SensorStates returns the last verified sensor pair.
func (c *Cover) SensorStates() (open, closed bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sensorOpen, c.sensorClosed
}

// UpdateSensorReading feeds one (open, closed) sensor pair through the
// stabilization and verification filters and, on acceptance, recomputes
// the cover state.
func (c *Cover) UpdateSensorReading(open, closed bool) {
	c.mu.Lock()

	if !c.stabilized {
		if c.now().Sub(c.createdAt) < c.cfg.StabilizationDelay {
			c.mu.Unlock()
			return
		}
		c.stabilized = true
	}

	current := reading{open: open, closed: closed}
	if c.lastVerified == nil || current != *c.lastVerified {
		if c.lastUnverified == nil || current != *c.lastUnverified {
			// First occurrence of a new pair. Oscillating pairs ratchet
			// the verification threshold up toward 3.
			c.verificationCount = 1
			c.lastUnverified = &current
			c.unstableReadings++
			if c.unstableReadings > 5 && c.minVerification < 3 {
				c.log.Warn("unstable cover sensor readings, raising verification threshold",
					"from", c.minVerification, "to", 3)
				c.minVerification = 3
			}
		} else {
			c.verificationCount++
		}
		if c.verificationCount < c.minVerification {
			c.mu.Unlock()
			return
		}
		c.lastVerified = &current
		c.verificationCount = 0
		c.unstableReadings = 0
	}

	c.sensorOpen = open
	c.sensorClosed = closed
	fire := c.applyStateLocked(DetermineState(open, closed, c.state))
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// ForceUpdate skips verification: the given sensor pair is accepted as
// already verified and the state recomputed immediately. Used once at
// startup after the sensors have been force-updated, and after sensor
// tests.
func (c *Cover) ForceUpdate(open, closed bool) CoverState {
	c.mu.Lock()
	c.stabilized = true
	c.resetVerificationLocked(reading{open: open, closed: closed})
	c.sensorOpen = open
	c.sensorClosed = closed
	fire := c.applyStateLocked(DetermineState(open, closed, c.state))
	state := c.state
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
	return state
}

// Open pulses the actor and, when the cover is known closed, optimistically
// predicts the opening movement.
func (c *Cover) Open() {
	c.log.Info("cover command", "command", "open")
	c.actor.Set(true)

	c.mu.Lock()
	var fire func()
	if c.state == CoverClosed {
		c.resetVerificationLocked(reading{open: c.sensorOpen, closed: false})
		fire = c.applyStateLocked(CoverOpening)
	}
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// Close pulses the actor and, when the cover is known open, optimistically
// predicts the closing movement.
func (c *Cover) Close() {
	c.log.Info("cover command", "command", "close")
	c.actor.Set(true)

	c.mu.Lock()
	var fire func()
	if c.state == CoverOpen {
		c.resetVerificationLocked(reading{open: false, closed: c.sensorClosed})
		fire = c.applyStateLocked(CoverClosing)
	}
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// Stop pulses the actor and, when the cover is moving, forces the state to
// unknown.
func (c *Cover) Stop() {
	c.log.Info("cover command", "command", "stop")
	c.actor.Set(true)

	c.mu.Lock()
	var fire func()
	if c.state.moving() {
		fire = c.applyStateLocked(CoverUnknown)
	}
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// Toggle always pulses the actor (garage relays are momentary regardless of
// position) and predicts the opposite movement from the current state.
func (c *Cover) Toggle() {
	c.log.Info("cover command", "command", "toggle")
	c.actor.Set(true)

	c.mu.Lock()
	var next CoverState
	switch {
	case c.state == CoverClosed:
		c.resetVerificationLocked(reading{open: c.sensorOpen, closed: false})
		next = CoverOpening
	case c.state == CoverOpen:
		c.resetVerificationLocked(reading{open: false, closed: c.sensorClosed})
		next = CoverClosing
	case c.state.moving():
		next = CoverUnknown
	default:
		next = CoverOpening
	}
	fire := c.applyStateLocked(next)
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
}

// Shutdown cancels the movement watchdog.
func (c *Cover) Shutdown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopWatchdogLocked()
}

// armWatchdogLocked replaces any pending movement deadline with a fresh one.
func (c *Cover) armWatchdogLocked() {
	if c.watchdog != nil {
		c.watchdog.Stop()
	}
	c.watchdogGen++
	gen := c.watchdogGen
	c.watchdog = time.AfterFunc(c.cfg.MovementTimeout, func() { c.movementTimeout(gen) })
}

func (c *Cover) stopWatchdogLocked() {
	if c.watchdog == nil {
		return
	}
	c.watchdog.Stop()
	c.watchdog = nil
	c.watchdogGen++
}

// resetVerificationLocked clears the verification counters and marks the
// given pair as the verified baseline, so the next sensor pair is accepted
// without delay. Direct commands re-baseline this way; the ratcheted
// threshold also returns to its configured minimum here.
func (c *Cover) resetVerificationLocked(verified reading) {
	c.verificationCount = 0
	c.unstableReadings = 0
	c.minVerification = c.cfg.VerificationCount
	v := verified
	c.lastVerified = &v
	c.lastUnverified = nil
}

// applyStateLocked transitions to next, manages the movement watchdog, and
// returns the callback invocation to run after the lock is released. Returns
// nil when the state did not change.
func (c *Cover) applyStateLocked(next CoverState) func() {
	if next == c.state {
		return nil
	}
	prev := c.state
	c.state = next
	c.log.Info("cover state changed", "from", prev, "to", next)

	if next.moving() {
		c.armWatchdogLocked()
	} else {
		c.stopWatchdogLocked()
	}

	fn := c.onChange
	if fn == nil {
		return nil
	}
	return func() { fn(next) }
}

// movementTimeout runs on the watchdog goroutine when a movement never
// resolved. The state falls back to unknown and the watchdog stops itself.
// A callback from a superseded deadline returns without acting.
func (c *Cover) movementTimeout(gen uint64) {
	c.mu.Lock()
	if gen != c.watchdogGen {
		c.mu.Unlock()
		return
	}
	c.watchdog = nil
	var fire func()
	if c.state.moving() {
		c.log.Warn("cover movement timeout", "state", c.state,
			"timeout", c.cfg.MovementTimeout)
		fire = c.applyStateLocked(CoverUnknown)
	}
	c.mu.Unlock()

	if fire != nil {
		fire()
	}
}
