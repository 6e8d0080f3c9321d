// Package device contains the logical entities bridged onto the bus:
// debounced sensors, pulse actors, and two-sensor covers. Entities own
// their state, synchronize their public methods, and report confirmed
// changes through registered callbacks.
package device

import "gpiobridge/internal/gpio"

// Pin is a logical view of a digital pin: the logical level is the raw
// level XOR inverted, in both directions.
type Pin struct {
	chip     gpio.Chip
	id       string
	inverted bool
}

// NewPin creates a logical pin over the chip.
func NewPin(chip gpio.Chip, id string, inverted bool) Pin {
	return Pin{chip: chip, id: id, inverted: inverted}
}

// ID returns the pin id.
func (p Pin) ID() string { return p.id }

// Read returns the logical level of the pin.
func (p Pin) Read() (bool, error) {
	raw, err := p.chip.ReadPin(p.id)
	if err != nil {
		return false, err
	}
	return raw != p.inverted, nil
}

// Write drives the pin to the given logical level.
func (p Pin) Write(value bool) error {
	return p.chip.WritePin(p.id, value != p.inverted)
}
