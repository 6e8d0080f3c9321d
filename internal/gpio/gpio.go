// Package gpio provides digital pin access with hardware abstraction.
// The real implementations use the Linux GPIO character device or periph.io.
// The fake implementation allows testing without hardware.
package gpio

import (
	"fmt"
	"strconv"
	"strings"
)

// Chip reads and writes digital pins addressed by id.
type Chip interface {
	// ReadPin returns the raw (uninverted) level of the pin.
	ReadPin(id string) (bool, error)

	// WritePin drives the pin to the given raw level.
	WritePin(id string, value bool) error

	// Close releases all requested lines.
	Close() error
}

// Driver selects a Chip implementation.
type Driver string

const (
	// DriverCdev uses the Linux GPIO character device (default).
	DriverCdev Driver = "cdev"
	// DriverPeriph uses periph.io host drivers.
	DriverPeriph Driver = "periph"
)

// DefaultChipName is the GPIO character device used when none is configured.
const DefaultChipName = "gpiochip0"

// Open constructs the Chip for the given driver.
func Open(driver Driver, chipName string) (Chip, error) {
	if chipName == "" {
		chipName = DefaultChipName
	}
	switch driver {
	case "", DriverCdev:
		return NewCdevChip(chipName)
	case DriverPeriph:
		return NewPeriphChip()
	default:
		return nil, fmt.Errorf("unknown gpio driver %q", driver)
	}
}

// pinOffset parses pin ids of the form "GPIO7" or "7" into a BCM offset.
func pinOffset(id string) (int, error) {
	s := strings.TrimPrefix(strings.ToUpper(id), "GPIO")
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid pin id %q", id)
	}
	return n, nil
}
