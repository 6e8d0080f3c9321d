package gpio

import (
	"fmt"
	"sync"
)

// FakeChip is a test double with settable input levels and recorded writes.
type FakeChip struct {
	mu sync.Mutex

	// levels holds the current raw level per pin id.
	levels map[string]bool

	// Writes records every WritePin call in order.
	Writes []Write

	// ReadError, if set, is returned by ReadPin for pins in FailingPins
	// (or for all pins when FailingPins is empty).
	ReadError error

	// FailingPins limits ReadError to specific pin ids.
	FailingPins map[string]bool

	// Closed tracks if Close was called.
	Closed bool
}

// Write records a single pin write.
type Write struct {
	Pin   string
	Value bool
}

// NewFakeChip creates a FakeChip with all pins low.
func NewFakeChip() *FakeChip {
	return &FakeChip{levels: make(map[string]bool)}
}

// SetPin sets the raw level returned by subsequent reads of the pin.
func (f *FakeChip) SetPin(id string, value bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels[id] = value
}

// ReadPin returns the scripted level of the pin.
func (f *FakeChip) ReadPin(id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil && (len(f.FailingPins) == 0 || f.FailingPins[id]) {
		return false, f.ReadError
	}
	return f.levels[id], nil
}

// WritePin records the write and updates the pin level so that reads
// observe it (loopback, useful for actor tests).
func (f *FakeChip) WritePin(id string, value bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Writes = append(f.Writes, Write{Pin: id, Value: value})
	f.levels[id] = value
	return nil
}

// WriteCount returns the number of writes recorded for the pin.
func (f *FakeChip) WriteCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, w := range f.Writes {
		if w.Pin == id {
			n++
		}
	}
	return n
}

// WritesFor returns the values written to the pin, in order.
func (f *FakeChip) WritesFor(id string) []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []bool
	for _, w := range f.Writes {
		if w.Pin == id {
			out = append(out, w.Value)
		}
	}
	return out
}

// LastWrite returns the most recent write for the pin.
func (f *FakeChip) LastWrite(id string) (Write, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.Writes) - 1; i >= 0; i-- {
		if f.Writes[i].Pin == id {
			return f.Writes[i], nil
		}
	}
	return Write{}, fmt.Errorf("no writes recorded for pin %s", id)
}

// Close marks the chip as closed.
func (f *FakeChip) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Closed = true
	return nil
}

// Reset clears recorded writes and levels.
func (f *FakeChip) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.levels = make(map[string]bool)
	f.Writes = nil
	f.ReadError = nil
	f.FailingPins = nil
	f.Closed = false
}
