// Package relay drives the fan relay with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package relay

import (
	"errors"

	"github.com/sweeney/vent-controller/internal/logic"
)

// Actuator switches the fan.
type Actuator interface {
	// Set drives the relay to the given state. Setting the current state
	// again is a no-op. Failures wrap ErrActuatorFailure.
	Set(state logic.FanState) error

	// Current returns the last state successfully applied.
	Current() logic.FanState

	// Close drives the relay OFF and releases the pin.
	Close() error
}

// ErrActuatorFailure matches every failed relay command.
var ErrActuatorFailure = errors.New("actuator failure")

// DefaultPin is the BCM pin the relay module is wired to (header pin 8).
const DefaultPin = 14

// bcmToPhysical maps BCM GPIO numbers to 40-pin header positions.
var bcmToPhysical = map[int]int{
	2: 3, 3: 5, 4: 7, 14: 8, 15: 10, 17: 11, 18: 12, 27: 13, 22: 15,
	23: 16, 24: 18, 10: 19, 9: 21, 25: 22, 11: 23, 8: 24, 7: 26, 5: 29,
	6: 31, 12: 32, 13: 33, 19: 35, 16: 36, 20: 38, 21: 40,
}

// PhysicalPin returns the header pin for a BCM pin number.
func PhysicalPin(bcm int) (int, bool) {
	p, ok := bcmToPhysical[bcm]
	return p, ok
}

// lineValue returns the raw line level for a logical state.
func lineValue(state logic.FanState, activeHigh bool) int {
	on := state == logic.FanOn
	if on == activeHigh {
		return 1
	}
	return 0
}
