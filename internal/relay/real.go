//go:build linux

package relay

import (
	"fmt"

	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/warthog618/go-gpiocdev"
)

// RealRelay drives a relay module from a single GPIO output line. It is the
// only owner of that line; Close releases it exactly once.
type RealRelay struct {
	chip       *gpiocdev.Chip
	line       *gpiocdev.Line
	pin        int
	activeHigh bool
	state      logic.FanState
}

// NewRealRelay requests pin on gpiochip0 as an output, initially OFF.
func NewRealRelay(pin int, activeHigh bool) (*RealRelay, error) {
	if pin <= 0 {
		return nil, fmt.Errorf("invalid relay pin %d", pin)
	}

	chip, err := gpiocdev.NewChip("gpiochip0")
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	line, err := chip.RequestLine(pin,
		gpiocdev.AsOutput(lineValue(logic.FanOff, activeHigh)),
		gpiocdev.WithConsumer("vent-controller"))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request relay pin %d: %w", pin, err)
	}

	return &RealRelay{
		chip:       chip,
		line:       line,
		pin:        pin,
		activeHigh: activeHigh,
		state:      logic.FanOff,
	}, nil
}

// Set drives the relay. Repeating the current state does not touch the line.
func (r *RealRelay) Set(state logic.FanState) error {
	if r.line == nil {
		return fmt.Errorf("%w: relay pin %d closed", ErrActuatorFailure, r.pin)
	}
	if state == r.state {
		return nil
	}
	if err := r.line.SetValue(lineValue(state, r.activeHigh)); err != nil {
		return fmt.Errorf("%w: set pin %d %s: %v", ErrActuatorFailure, r.pin, state, err)
	}
	r.state = state
	return nil
}

// Current returns the last state successfully applied.
func (r *RealRelay) Current() logic.FanState {
	return r.state
}

// Close drives the relay OFF if needed and releases the line and chip.
func (r *RealRelay) Close() error {
	var errs []error

	if r.line != nil {
		if err := r.Set(logic.FanOff); err != nil {
			errs = append(errs, fmt.Errorf("drive relay off: %w", err))
		}
		if err := r.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close relay pin: %w", err))
		}
		r.line = nil
	}
	if r.chip != nil {
		if err := r.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
		r.chip = nil
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
