package relay

import (
	"fmt"

	"github.com/sweeney/vent-controller/internal/logic"
)

// FakeRelay records relay commands for test assertions.
type FakeRelay struct {
	// Commands contains every state passed to Set, including failed ones.
	Commands []logic.FanState

	// SetError, if set, will be returned by Set and the state is left unchanged.
	SetError error

	// FailNext, if > 0, fails that many Set calls and then clears itself.
	FailNext int

	// Closed tracks if Close was called.
	Closed bool

	// CloseCount counts Close calls.
	CloseCount int

	state logic.FanState
}

// NewFakeRelay creates a FakeRelay in the OFF state.
func NewFakeRelay() *FakeRelay {
	return &FakeRelay{state: logic.FanOff}
}

// Set records the command and applies it.
func (f *FakeRelay) Set(state logic.FanState) error {
	f.Commands = append(f.Commands, state)
	if f.SetError != nil {
		return fmt.Errorf("%w: %v", ErrActuatorFailure, f.SetError)
	}
	if f.FailNext > 0 {
		f.FailNext--
		return fmt.Errorf("%w: scripted failure", ErrActuatorFailure)
	}
	f.state = state
	return nil
}

// Current returns the last applied state.
func (f *FakeRelay) Current() logic.FanState {
	return f.state
}

// Close drives the fake OFF and marks it closed.
func (f *FakeRelay) Close() error {
	f.state = logic.FanOff
	f.Closed = true
	f.CloseCount++
	return nil
}

// Count returns how many times state was commanded.
func (f *FakeRelay) Count(state logic.FanState) int {
	n := 0
	for _, c := range f.Commands {
		if c == state {
			n++
		}
	}
	return n
}

// Reset clears recorded commands.
func (f *FakeRelay) Reset() {
	f.Commands = nil
	f.SetError = nil
	f.FailNext = 0
	f.Closed = false
	f.CloseCount = 0
	f.state = logic.FanOff
}
