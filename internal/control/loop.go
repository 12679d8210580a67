package control

import (
	"context"
	"errors"
	"time"

	"github.com/sweeney/vent-controller/internal/logger"
	"github.com/sweeney/vent-controller/internal/logic"
)

// Loop drives a Controller until its context is cancelled.
type Loop struct {
	ctrl      *Controller
	observers []Observer
	log       logger.Logger
	heartbeat time.Duration

	stopped bool
}

// NewLoop creates a loop. heartbeat <= 0 disables HEARTBEAT events.
func NewLoop(ctrl *Controller, log logger.Logger, heartbeat time.Duration, observers ...Observer) *Loop {
	if log == nil {
		log = logger.Nop()
	}
	return &Loop{
		ctrl:      ctrl,
		observers: observers,
		log:       log,
		heartbeat: heartbeat,
	}
}

// Run ticks once immediately and then on every value from tick, until ctx is
// cancelled. Cancellation is checked before each tick and while waiting for
// the next one; a tick in progress always completes.
//
// However Run exits, including by panic, the relay is forced OFF exactly once
// and a SHUTDOWN event is emitted. The shutdown reason is the cancellation
// cause of ctx when one was given.
func (l *Loop) Run(ctx context.Context, tick <-chan time.Time) (err error) {
	// Only a panic leaves the loop without setting a reason.
	reason := "panic"
	defer func() {
		err = l.shutdown(reason)
	}()

	l.system(SystemEvent{Timestamp: l.ctrl.now(), Event: EventStartup})

	for {
		if ctx.Err() != nil {
			reason = stopReason(ctx)
			return nil
		}

		start := time.Now()
		rec := l.ctrl.Tick(ctx)
		rec.Duration = time.Since(start)
		l.logRecord(rec)
		l.observe(rec)

		if hb := l.ctrl.Machine().CheckHeartbeat(rec.Timestamp, l.heartbeat); hb != nil {
			l.log.Infow("heartbeat",
				"uptime", hb.Uptime,
				"on", hb.Counts.On,
				"off", hb.Counts.Off(),
				"failed_readings", hb.Counts.FailedReadings)
			l.system(SystemEvent{Timestamp: hb.Timestamp, Event: EventHeartbeat, Heartbeat: hb})
		}

		select {
		case <-ctx.Done():
			reason = stopReason(ctx)
			return nil
		case <-tick:
		}
	}
}

// shutdown forces the relay OFF. It is a no-op after the first call.
func (l *Loop) shutdown(reason string) error {
	if l.stopped {
		return nil
	}
	l.stopped = true

	l.log.Infow("shutting down, forcing fan off", "reason", reason)
	rec := l.ctrl.ForceOff()
	l.observe(rec)
	l.system(SystemEvent{Timestamp: rec.Timestamp, Event: EventShutdown, Reason: reason})

	if rec.ActuatorErr != nil {
		l.log.Errorw("final relay off failed", "error", rec.ActuatorErr)
		return rec.ActuatorErr
	}
	return nil
}

func (l *Loop) observe(rec Record) {
	for _, o := range l.observers {
		o.Observe(rec)
	}
}

func (l *Loop) system(ev SystemEvent) {
	for _, o := range l.observers {
		if so, ok := o.(SystemObserver); ok {
			so.System(ev)
		}
	}
}

func (l *Loop) logRecord(rec Record) {
	fields := []interface{}{
		"fan", rec.FanState,
		"transition", rec.Transition,
		"took", rec.Duration,
	}
	if rec.HasSample {
		fields = append(fields, "temperature_c", rec.TemperatureC, "humidity_pct", rec.HumidityPct)
	}
	if rec.Valid {
		fields = append(fields, "dew_point_c", rec.DewPointC)
	}
	if rec.Reason != "" {
		fields = append(fields, "reason", rec.Reason)
	}

	switch {
	case rec.ActuatorErr != nil:
		l.log.Errorw("relay command failed", append(fields, "error", rec.ActuatorErr)...)
	case rec.Transition != logic.TransitionNone:
		if rec.Err != nil {
			fields = append(fields, "failure", rec.Failure, "error", rec.Err)
		}
		l.log.Infow("fan "+string(rec.Transition), fields...)
	case rec.Err != nil:
		l.log.Warnw("no valid dew point, keeping fan state", append(fields, "failure", rec.Failure, "error", rec.Err)...)
	default:
		if rec.OutOfTypicalRange {
			l.log.Warnw("temperature outside typical range for dew point approximation", fields...)
			return
		}
		l.log.Debugw("tick", fields...)
	}
}

// stopReason returns the cancellation cause of ctx, or "stopped" for a plain
// cancel.
func stopReason(ctx context.Context) string {
	cause := context.Cause(ctx)
	if cause == nil || errors.Is(cause, context.Canceled) {
		return "stopped"
	}
	if errors.Is(cause, context.DeadlineExceeded) {
		return "deadline"
	}
	return cause.Error()
}
