//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// CdevChip accesses pins through the Linux GPIO character device.
// Lines are requested lazily: the first read requests the line as input
// with pull-down, the first write requests it as a low output.
type CdevChip struct {
	mu      sync.Mutex
	chip    *gpiocdev.Chip
	inputs  map[string]*gpiocdev.Line
	outputs map[string]*gpiocdev.Line
}

// NewCdevChip opens the named GPIO character device (e.g. "gpiochip0").
func NewCdevChip(name string) (*CdevChip, error) {
	chip, err := gpiocdev.NewChip(name)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", name, err)
	}
	return &CdevChip{
		chip:    chip,
		inputs:  make(map[string]*gpiocdev.Line),
		outputs: make(map[string]*gpiocdev.Line),
	}, nil
}

// ReadPin returns the raw level of the pin, requesting it as an input
// with pull-down on first use to match Pi boot defaults.
func (c *CdevChip) ReadPin(id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, ok := c.inputs[id]
	if !ok {
		if _, claimed := c.outputs[id]; claimed {
			return false, fmt.Errorf("pin %s already requested as output", id)
		}
		offset, err := pinOffset(id)
		if err != nil {
			return false, err
		}
		line, err = c.chip.RequestLine(offset, gpiocdev.AsInput, gpiocdev.WithPullDown)
		if err != nil {
			return false, fmt.Errorf("request input %s: %w", id, err)
		}
		c.inputs[id] = line
	}

	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read pin %s: %w", id, err)
	}
	return v != 0, nil
}

// WritePin drives the pin, requesting it as a low output on first use.
func (c *CdevChip) WritePin(id string, value bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	line, ok := c.outputs[id]
	if !ok {
		if _, claimed := c.inputs[id]; claimed {
			return fmt.Errorf("pin %s already requested as input", id)
		}
		offset, err := pinOffset(id)
		if err != nil {
			return err
		}
		line, err = c.chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			return fmt.Errorf("request output %s: %w", id, err)
		}
		c.outputs[id] = line
	}

	level := 0
	if value {
		level = 1
	}
	if err := line.SetValue(level); err != nil {
		return fmt.Errorf("write pin %s: %w", id, err)
	}
	return nil
}

// Close releases all lines and the chip. Lines are reconfigured to input
// with pull-down first, matching Raspberry Pi boot defaults so external
// hardware is not left driven across a restart.
func (c *CdevChip) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var errs []error
	for id, line := range c.outputs {
		if err := line.Reconfigure(gpiocdev.AsInput, gpiocdev.WithPullDown); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s: %w", id, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	for id, line := range c.inputs {
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", id, err))
		}
	}
	if err := c.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close chip: %w", err))
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
