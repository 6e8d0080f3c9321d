package device

import (
	"log/slog"
	"sync"
	"time"
)

// Actor drives a digital output. With a reset delay it behaves as a pulse
// output (momentary relay): asserting it schedules an automatic de-assert,
// and repeated asserts restart the timer. A zero delay makes it a plain
// latch.
type Actor struct {
	mu  sync.Mutex
	pin Pin
	log *slog.Logger

	state      bool
	resetDelay time.Duration
	resetTimer *time.Timer
	onReset    func()
}

// NewActor creates an Actor. resetDelay == 0 disables the auto-reset.
func NewActor(pin Pin, resetDelay time.Duration, log *slog.Logger) *Actor {
	return &Actor{pin: pin, resetDelay: resetDelay, log: log}
}

// OnReset replaces the default auto-reset action (Set(false)). The handler
// runs on the timer goroutine once the reset delay elapses.
func (a *Actor) OnReset(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onReset = fn
}

// State returns the current logical output state.
func (a *Actor) State() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Set writes the pin and updates the state. Asserting with a configured
// reset delay cancels any pending reset timer and arms a fresh one;
// de-asserting cancels the timer.
func (a *Actor) Set(value bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.pin.Write(value); err != nil {
		a.log.Error("actor write failed", "pin", a.pin.ID(), "value", value, "err", err)
		return
	}
	a.state = value
	a.log.Debug("actor set", "pin", a.pin.ID(), "state", value)

	if a.resetTimer != nil {
		a.resetTimer.Stop()
		a.resetTimer = nil
	}
	if value && a.resetDelay > 0 {
		a.resetTimer = time.AfterFunc(a.resetDelay, a.fireReset)
	}
}

// Toggle inverts the current state.
func (a *Actor) Toggle() {
	a.Set(!a.State())
}

// Close cancels any pending reset timer.
func (a *Actor) Close() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.resetTimer != nil {
		a.resetTimer.Stop()
		a.resetTimer = nil
	}
}

func (a *Actor) fireReset() {
	a.mu.Lock()
	a.resetTimer = nil
	fn := a.onReset
	a.mu.Unlock()

	a.log.Debug("actor auto-reset", "pin", a.pin.ID(), "delay", a.resetDelay)
	if fn != nil {
		fn()
		return
	}
	a.Set(false)
}
