//go:build linux

package gpio

import (
	"fmt"
	"strings"
	"sync"

	pgpio "periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"
)

// PeriphChip accesses pins through periph.io host drivers. Useful on boards
// where the character device is unavailable or pins are registered under
// board-specific names.
type PeriphChip struct {
	mu   sync.Mutex
	pins map[string]pgpio.PinIO
}

// NewPeriphChip initialises periph host state once.
func NewPeriphChip() (*PeriphChip, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("periph host init: %w", err)
	}
	return &PeriphChip{pins: make(map[string]pgpio.PinIO)}, nil
}

func (c *PeriphChip) pin(id string) (pgpio.PinIO, error) {
	if p, ok := c.pins[id]; ok {
		return p, nil
	}
	name := id
	if !strings.HasPrefix(strings.ToUpper(name), "GPIO") {
		name = "GPIO" + name
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("unknown pin %q", id)
	}
	c.pins[id] = p
	return p, nil
}

// ReadPin returns the raw level of the pin, configuring it as an input
// with pull-down on first use.
func (c *PeriphChip) ReadPin(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.pin(id)
	if err != nil {
		return false, err
	}
	if err := p.In(pgpio.PullDown, pgpio.NoEdge); err != nil {
		return false, fmt.Errorf("configure input %s: %w", id, err)
	}
	return p.Read() == pgpio.High, nil
}

// WritePin drives the pin.
func (c *PeriphChip) WritePin(id string, value bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, err := c.pin(id)
	if err != nil {
		return err
	}
	level := pgpio.Low
	if value {
		level = pgpio.High
	}
	if err := p.Out(level); err != nil {
		return fmt.Errorf("write pin %s: %w", id, err)
	}
	return nil
}

// Close releases pin references. periph pins need no explicit teardown.
func (c *PeriphChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pins = make(map[string]pgpio.PinIO)
	return nil
}
