// Package control runs the vent fan: one Controller evaluates a tick, the
// Loop drives it on an interval and owns startup and shutdown.
package control

import (
	"errors"
	"time"

	"github.com/sweeney/vent-controller/internal/dewpoint"
	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/sweeney/vent-controller/internal/sensor"
)

// Failure classifies why a tick produced no dew point.
type Failure string

const (
	FailureNone            Failure = ""
	FailureNotReady        Failure = Failure(sensor.KindNotReady)
	FailureTimeout         Failure = Failure(sensor.KindTimeout)
	FailureBusFault        Failure = Failure(sensor.KindBusFault)
	FailureInvalidSample   Failure = Failure(sensor.KindInvalidSample)
	FailureSensor          Failure = "sensor"
	FailureInvalidInput    Failure = "invalid_input"
	FailureDegenerateInput Failure = "degenerate_input"
)

// Record is the observable outcome of one tick.
type Record struct {
	Timestamp time.Time

	// HasSample is set when the sensor returned a sample.
	HasSample    bool
	TemperatureC float64
	HumidityPct  float64

	// Valid is set when a dew point was derived.
	Valid             bool
	DewPointC         float64
	OutOfTypicalRange bool

	// FanState is the logical state after the tick.
	FanState   logic.FanState
	Transition logic.Transition
	Reason     logic.Reason

	Failure Failure
	Err     error

	// ActuatorErr is set when a relay command was not applied.
	ActuatorErr error
	// Synced reports whether the relay is known to match FanState.
	Synced bool

	// Duration is the wall time the tick took. Zero for the final record.
	Duration time.Duration

	// Final marks the record of the shutdown OFF command rather than a tick.
	Final bool
}

// System event names.
const (
	EventStartup   = "STARTUP"
	EventHeartbeat = "HEARTBEAT"
	EventShutdown  = "SHUTDOWN"
)

// SystemEvent is a lifecycle event emitted by the Loop.
type SystemEvent struct {
	Timestamp time.Time
	Event     string
	Reason    string
	Heartbeat *logic.HeartbeatData
}

// Observer receives every tick record.
type Observer interface {
	Observe(rec Record)
}

// SystemObserver is implemented by observers that also want lifecycle events.
type SystemObserver interface {
	System(ev SystemEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(rec Record)

func (f ObserverFunc) Observe(rec Record) { f(rec) }

func classify(err error) Failure {
	if k := sensor.KindOf(err); k != "" {
		return Failure(k)
	}
	switch {
	case errors.Is(err, dewpoint.ErrDegenerateInput):
		return FailureDegenerateInput
	case errors.Is(err, dewpoint.ErrInvalidInput):
		return FailureInvalidInput
	}
	return FailureSensor
}
