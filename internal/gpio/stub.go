//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// CdevChip is not available on non-Linux platforms.
type CdevChip struct{}

// NewCdevChip returns an error on non-Linux platforms.
func NewCdevChip(name string) (*CdevChip, error) { return nil, errUnsupported }

// ReadPin is not implemented on non-Linux platforms.
func (c *CdevChip) ReadPin(id string) (bool, error) { return false, errUnsupported }

// WritePin is not implemented on non-Linux platforms.
func (c *CdevChip) WritePin(id string, value bool) error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (c *CdevChip) Close() error { return nil }

// PeriphChip is not available on non-Linux platforms.
type PeriphChip struct{}

// NewPeriphChip returns an error on non-Linux platforms.
func NewPeriphChip() (*PeriphChip, error) { return nil, errUnsupported }

// ReadPin is not implemented on non-Linux platforms.
func (c *PeriphChip) ReadPin(id string) (bool, error) { return false, errUnsupported }

// WritePin is not implemented on non-Linux platforms.
func (c *PeriphChip) WritePin(id string, value bool) error { return errUnsupported }

// Close is not implemented on non-Linux platforms.
func (c *PeriphChip) Close() error { return nil }
