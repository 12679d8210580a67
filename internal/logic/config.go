package logic

import (
	"errors"
	"fmt"
	"time"
)

// ErrConfigInvalid is returned when a Config violates its invariants.
var ErrConfigInvalid = errors.New("invalid config")

// Config holds the control parameters. It is never mutated after a Machine
// is created from it.
type Config struct {
	// ThresholdC is the dew point above which the fan turns on.
	ThresholdC float64
	// HysteresisC is the dead band below ThresholdC. The fan turns off once
	// the dew point drops below ThresholdC - HysteresisC.
	HysteresisC float64
	// MinRuntime is the minimum continuous on time.
	MinRuntime time.Duration
	// MaxRuntime is the maximum continuous on time.
	MaxRuntime time.Duration
	// SampleInterval is the tick period.
	SampleInterval time.Duration
	// MaxConsecutiveFailures forces the fan off after this many ticks in a
	// row without a valid dew point. 0 disables the rule.
	MaxConsecutiveFailures int
}

// OffThresholdC returns the dew point below which a running fan may stop.
func (c Config) OffThresholdC() float64 {
	return c.ThresholdC - c.HysteresisC
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	switch {
	case c.HysteresisC < 0:
		return fmt.Errorf("%w: hysteresis must be >= 0, got %v", ErrConfigInvalid, c.HysteresisC)
	case c.MinRuntime < 0:
		return fmt.Errorf("%w: min runtime must be >= 0, got %v", ErrConfigInvalid, c.MinRuntime)
	case c.MaxRuntime < 0:
		return fmt.Errorf("%w: max runtime must be >= 0, got %v", ErrConfigInvalid, c.MaxRuntime)
	case c.MinRuntime > c.MaxRuntime:
		return fmt.Errorf("%w: min runtime %v exceeds max runtime %v", ErrConfigInvalid, c.MinRuntime, c.MaxRuntime)
	case c.SampleInterval <= 0:
		return fmt.Errorf("%w: sample interval must be > 0, got %v", ErrConfigInvalid, c.SampleInterval)
	case c.MaxConsecutiveFailures < 0:
		return fmt.Errorf("%w: max consecutive failures must be >= 0, got %d", ErrConfigInvalid, c.MaxConsecutiveFailures)
	}
	return nil
}
