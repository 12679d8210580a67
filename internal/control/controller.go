package control

import (
	"context"
	"fmt"
	"time"

	"github.com/sweeney/vent-controller/internal/dewpoint"
	"github.com/sweeney/vent-controller/internal/logger"
	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/sweeney/vent-controller/internal/relay"
	"github.com/sweeney/vent-controller/internal/sensor"
)

// Controller performs one control tick at a time: read the sensor, derive the
// dew point, evaluate the state machine and command the relay on transitions.
// It is not safe for concurrent use; the Loop is its only caller.
type Controller struct {
	sensor   sensor.Reader
	actuator relay.Actuator
	machine  *logic.Machine
	log      logger.Logger
	now      func() time.Time

	// pending is the command the relay last rejected. Until it is cleared
	// the relay state is unknown.
	pending *pendingCommand
}

type pendingCommand struct {
	decision logic.Decision
	target   logic.FanState
}

// NewController validates cfg and forces the relay OFF, whatever its prior
// state. A relay that rejects that first command is a startup error.
func NewController(cfg logic.Config, s sensor.Reader, a relay.Actuator, log logger.Logger, now func() time.Time) (*Controller, error) {
	if now == nil {
		now = time.Now
	}
	if log == nil {
		log = logger.Nop()
	}
	m, err := logic.NewMachine(cfg, now())
	if err != nil {
		return nil, err
	}
	if err := a.Set(logic.FanOff); err != nil {
		return nil, fmt.Errorf("force relay off: %w", err)
	}
	return &Controller{
		sensor:   s,
		actuator: a,
		machine:  m,
		log:      log,
		now:      now,
	}, nil
}

// Tick runs one control step. Sensor and derivation failures never change
// the fan state; they are reported in the returned Record.
func (c *Controller) Tick(ctx context.Context) Record {
	now := c.now()
	rec := Record{Timestamp: now}
	in := c.observe(ctx, &rec)
	in.Time = now

	d, target, send := c.command(in.Valid, c.machine.Evaluate(in))
	if send {
		if err := c.actuator.Set(target); err != nil {
			c.pending = &pendingCommand{decision: d, target: target}
			rec.ActuatorErr = err
		} else {
			if c.pending != nil {
				c.log.Infow("relay resynchronized", "state", target)
			}
			c.pending = nil
			c.machine.Commit(d, now)
			rec.Transition = d.Transition
			rec.Reason = d.Reason
		}
	}

	if rec.Transition == "" {
		rec.Transition = logic.TransitionNone
	}
	rec.FanState = c.machine.State()
	rec.Synced = c.pending == nil
	return rec
}

// command picks the relay command for a tick. A fresh transition always
// wins. Otherwise, while a rejected command is pending, a valid sample
// re-sends the logical state and a missing sample only retries a pending
// OFF; the relay is never switched ON without a dew point.
func (c *Controller) command(valid bool, d logic.Decision) (logic.Decision, logic.FanState, bool) {
	state := c.machine.State()
	switch {
	case d.Transition != logic.TransitionNone:
		return d, d.Target(state), true
	case c.pending == nil:
		return d, state, false
	case valid:
		return d, state, true
	case c.pending.target == logic.FanOff:
		return c.pending.decision, logic.FanOff, true
	}
	return d, state, false
}

// observe reads the sensor and derives the dew point, filling rec.
func (c *Controller) observe(ctx context.Context, rec *Record) logic.Input {
	s, err := c.sensor.Read(ctx)
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		rec.Failure = classify(err)
		rec.Err = err
		return logic.Input{}
	}
	rec.HasSample = true
	rec.TemperatureC = s.TemperatureC
	rec.HumidityPct = s.HumidityPct

	res, err := dewpoint.Calculate(s.TemperatureC, s.HumidityPct)
	if err != nil {
		rec.Failure = classify(err)
		rec.Err = err
		return logic.Input{}
	}
	rec.Valid = true
	rec.DewPointC = res.DewPointC
	rec.OutOfTypicalRange = res.OutOfTypicalRange
	return logic.Input{DewPointC: res.DewPointC, Valid: true}
}

// ForceOff commands the relay OFF regardless of the logical state and
// records a shutdown transition if the fan was running.
func (c *Controller) ForceOff() Record {
	now := c.now()
	rec := Record{Timestamp: now, Transition: logic.TransitionNone, Final: true}
	wasOn := c.machine.State() == logic.FanOn

	d := logic.Decision{Transition: logic.TransitionOff, Reason: logic.ReasonShutdown}
	if err := c.actuator.Set(logic.FanOff); err != nil {
		c.pending = &pendingCommand{decision: d, target: logic.FanOff}
		rec.ActuatorErr = err
	} else {
		c.pending = nil
	}
	// The process is exiting; the logical state follows the command even if
	// the relay reported a failure.
	c.machine.Commit(d, now)
	if wasOn {
		rec.Transition = d.Transition
		rec.Reason = d.Reason
	}
	rec.FanState = c.machine.State()
	rec.Synced = c.pending == nil
	return rec
}

// State returns the logical fan state.
func (c *Controller) State() logic.FanState {
	return c.machine.State()
}

// Synced reports whether the relay is known to match the logical state.
func (c *Controller) Synced() bool {
	return c.pending == nil
}

// Machine exposes the state machine for counters and heartbeats.
func (c *Controller) Machine() *logic.Machine {
	return c.machine
}
