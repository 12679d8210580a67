//go:build !linux

package relay

import (
	"errors"

	"github.com/sweeney/vent-controller/internal/logic"
)

// RealRelay is not available on non-Linux platforms.
type RealRelay struct{}

// NewRealRelay returns an error on non-Linux platforms.
func NewRealRelay(pin int, activeHigh bool) (*RealRelay, error) {
	return nil, errors.New("relay: not supported on this platform (requires Linux)")
}

// Set is not implemented on non-Linux platforms.
func (r *RealRelay) Set(state logic.FanState) error {
	return ErrActuatorFailure
}

// Current always reports OFF on non-Linux platforms.
func (r *RealRelay) Current() logic.FanState {
	return logic.FanOff
}

// Close is not implemented on non-Linux platforms.
func (r *RealRelay) Close() error {
	return nil
}
