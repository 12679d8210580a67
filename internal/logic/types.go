// Package logic contains the pure fan control policy for the vent controller.
// This package has NO external dependencies (no GPIO, MQTT, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import "time"

// FanState represents the logical state of the fan.
type FanState string

const (
	FanOff FanState = "OFF"
	FanOn  FanState = "ON"
)

// Transition describes what a tick did to the fan.
type Transition string

const (
	TransitionNone Transition = "none"
	TransitionOn   Transition = "on"
	TransitionOff  Transition = "off"
)

// Reason explains why a transition was decided.
type Reason string

const (
	ReasonNone           Reason = ""
	ReasonDewPointHigh   Reason = "dew_point_high"
	ReasonDewPointLow    Reason = "dew_point_low"
	ReasonMaxRuntime     Reason = "max_runtime"
	ReasonSensorFailsafe Reason = "sensor_failsafe"
	ReasonShutdown       Reason = "shutdown"
)

// Input is a single tick's observation.
type Input struct {
	Time time.Time
	// DewPointC is only meaningful when Valid is true.
	DewPointC float64
	// Valid is false when the sample could not be read or no dew point
	// could be derived from it.
	Valid bool
}

// Decision is the outcome of evaluating one Input.
type Decision struct {
	Transition Transition
	Reason     Reason
}

// Target returns the fan state the decision leads to, given the current state.
func (d Decision) Target(current FanState) FanState {
	switch d.Transition {
	case TransitionOn:
		return FanOn
	case TransitionOff:
		return FanOff
	}
	return current
}

// TransitionCounts tracks the number of committed transitions since startup.
type TransitionCounts struct {
	On             int
	OffDewPoint    int
	OffMaxRuntime  int
	OffFailsafe    int
	OffShutdown    int
	FailedReadings int
}

// Off returns the total number of ON->OFF transitions.
func (c TransitionCounts) Off() int {
	return c.OffDewPoint + c.OffMaxRuntime + c.OffFailsafe + c.OffShutdown
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    TransitionCounts
}
