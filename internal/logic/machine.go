package logic

import "time"

// Machine is the fan hysteresis/runtime state machine.
//
// Deciding and committing are separate steps: Evaluate returns what should
// happen, Commit records that it did. The caller commits only after the
// actuator has accepted the command.
type Machine struct {
	cfg     Config
	state   FanState
	onSince time.Time // zero iff state == FanOff

	failures int // consecutive ticks without a valid dew point

	startTime     time.Time
	lastHeartbeat time.Time
	counts        TransitionCounts
}

// NewMachine validates cfg and returns a Machine in the OFF state.
// The startTime is used for calculating uptime in heartbeat events.
func NewMachine(cfg Config, startTime time.Time) (*Machine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Machine{
		cfg:           cfg,
		state:         FanOff,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}, nil
}

// Evaluate returns the decision for one tick. It tracks consecutive failed
// readings but never changes the fan state; see Commit.
//
// Rules for a running fan are checked in a fixed order: the minimum runtime
// floor, then the maximum runtime ceiling, then the hysteresis band.
func (m *Machine) Evaluate(in Input) Decision {
	if !in.Valid {
		m.failures++
		m.counts.FailedReadings++
		if m.state == FanOn && m.cfg.MaxConsecutiveFailures > 0 && m.failures >= m.cfg.MaxConsecutiveFailures {
			return Decision{Transition: TransitionOff, Reason: ReasonSensorFailsafe}
		}
		return Decision{Transition: TransitionNone}
	}
	m.failures = 0

	if m.state == FanOff {
		if in.DewPointC > m.cfg.ThresholdC {
			return Decision{Transition: TransitionOn, Reason: ReasonDewPointHigh}
		}
		return Decision{Transition: TransitionNone}
	}

	elapsed := in.Time.Sub(m.onSince)
	switch {
	case elapsed < m.cfg.MinRuntime:
		return Decision{Transition: TransitionNone}
	case elapsed > m.cfg.MaxRuntime:
		return Decision{Transition: TransitionOff, Reason: ReasonMaxRuntime}
	case in.DewPointC < m.cfg.OffThresholdC():
		return Decision{Transition: TransitionOff, Reason: ReasonDewPointLow}
	}
	return Decision{Transition: TransitionNone}
}

// Commit applies a decision at time now. Decisions that would not change the
// state are ignored.
func (m *Machine) Commit(d Decision, now time.Time) {
	switch d.Transition {
	case TransitionOn:
		if m.state == FanOn {
			return
		}
		m.state = FanOn
		m.onSince = now
		m.counts.On++
	case TransitionOff:
		if m.state == FanOff {
			return
		}
		m.state = FanOff
		m.onSince = time.Time{}
		switch d.Reason {
		case ReasonMaxRuntime:
			m.counts.OffMaxRuntime++
		case ReasonSensorFailsafe:
			m.counts.OffFailsafe++
		case ReasonShutdown:
			m.counts.OffShutdown++
		default:
			m.counts.OffDewPoint++
		}
	}
}

// State returns the logical fan state.
func (m *Machine) State() FanState {
	return m.state
}

// OnSince returns when the fan was last turned on. ok is false when the fan
// is off.
func (m *Machine) OnSince() (t time.Time, ok bool) {
	return m.onSince, m.state == FanOn
}

// ConsecutiveFailures returns the number of ticks in a row without a valid
// dew point.
func (m *Machine) ConsecutiveFailures() int {
	return m.failures
}

// Config returns the machine's configuration.
func (m *Machine) Config() Config {
	return m.cfg
}

// Counts returns a copy of the transition counters.
func (m *Machine) Counts() TransitionCounts {
	return m.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (m *Machine) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}

	if now.Sub(m.lastHeartbeat) < interval {
		return nil
	}

	m.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(m.startTime),
		Counts:    m.counts,
	}
}
