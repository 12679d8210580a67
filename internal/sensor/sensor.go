// Package sensor provides temperature/humidity sampling with hardware abstraction.
// The real implementation talks to an AHT10 over I2C.
// The fake implementation allows testing without hardware.
package sensor

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Reader produces temperature/humidity samples.
type Reader interface {
	// Read performs one measurement. Failures are returned as *Error.
	// A read in progress is bounded by the driver's own timeout.
	Read(ctx context.Context) (Sample, error)

	// Close releases the bus.
	Close() error
}

// Sample is a single reading. It is never modified after Read returns it.
type Sample struct {
	TemperatureC float64
	HumidityPct  float64
}

// Validate rejects samples carrying non-finite values.
// Humidity range is enforced by the dew point calculation.
func (s Sample) Validate() error {
	if math.IsNaN(s.TemperatureC) || math.IsInf(s.TemperatureC, 0) {
		return &Error{Kind: KindInvalidSample, Err: fmt.Errorf("temperature %v", s.TemperatureC)}
	}
	if math.IsNaN(s.HumidityPct) || math.IsInf(s.HumidityPct, 0) {
		return &Error{Kind: KindInvalidSample, Err: fmt.Errorf("humidity %v", s.HumidityPct)}
	}
	return nil
}

// ErrSensorFailure matches every error returned by a Reader.
var ErrSensorFailure = errors.New("sensor failure")

// Kind classifies sensor failures.
type Kind string

const (
	KindNotReady      Kind = "not_ready"
	KindTimeout       Kind = "timeout"
	KindBusFault      Kind = "bus_fault"
	KindInvalidSample Kind = "invalid_sample"
)

// Error is a classified sensor failure.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("sensor %s", e.Kind)
	}
	return fmt.Sprintf("sensor %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports ErrSensorFailure for any classified failure.
func (e *Error) Is(target error) bool {
	return target == ErrSensorFailure
}

// KindOf returns the failure kind of err, or "" when err is not a sensor error.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return ""
}
