// Package status provides a thread-safe status tracker for the vent-controller daemon.
// It is read by the HTTP handlers and used to build MQTT system event payloads.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/logic"
)

// NetworkInfo contains network state. This is a local copy to avoid
// importing internal/mqtt from status.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display.
type Config struct {
	RunID        string
	IntervalMs   int64
	ThresholdC   float64
	HysteresisC  float64
	MinRuntimeS  int64
	MaxRuntimeS  int64
	MaxFailures  int
	HeartbeatMs  int64
	RelayPin     int
	RelayPhysPin int // 0 if unknown
	ActiveLow    bool
	I2CBus       string
	Broker       string
	HTTPPort     string
	WSBroker     string // Websocket broker URL for browser MQTT (empty = disabled)
}

// Reading is the last tick's sensor outcome.
type Reading struct {
	Timestamp    time.Time
	HasSample    bool
	TemperatureC float64
	HumidityPct  float64
	Valid        bool
	DewPointC    float64
	Failure      string
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type: safe to use after the lock is released.
type Snapshot struct {
	Fan            logic.FanState
	OnSince        time.Time // zero when the fan is off
	LastReason     logic.Reason
	Last           *Reading
	Ticks          int
	Counts         logic.TransitionCounts
	ActuatorErrors int
	RelaySynced    bool
	StartTime      time.Time
	Now            time.Time
	MQTTConnected  bool
	Network        *NetworkInfo
	Config         Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// FanRuntime returns how long the fan has been on, or zero when it is off.
func (s Snapshot) FanRuntime() time.Duration {
	if s.Fan != logic.FanOn || s.OnSince.IsZero() {
		return 0
	}
	return s.Now.Sub(s.OnSince)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Fan:         logic.FanOff,
			RelaySynced: true,
			StartTime:   startTime,
			Config:      cfg,
		},
		now: time.Now,
	}
}

// Observe mirrors one tick record. Counters are accumulated from the
// records themselves.
func (t *Tracker) Observe(rec control.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s := &t.snap
	if !rec.Final {
		s.Ticks++
		s.Last = &Reading{
			Timestamp:    rec.Timestamp,
			HasSample:    rec.HasSample,
			TemperatureC: rec.TemperatureC,
			HumidityPct:  rec.HumidityPct,
			Valid:        rec.Valid,
			DewPointC:    rec.DewPointC,
			Failure:      string(rec.Failure),
		}
		if !rec.Valid {
			s.Counts.FailedReadings++
		}
	}

	if rec.ActuatorErr != nil {
		s.ActuatorErrors++
	}
	s.RelaySynced = rec.Synced

	switch rec.Transition {
	case logic.TransitionOn:
		s.Counts.On++
		s.OnSince = rec.Timestamp
		s.LastReason = rec.Reason
	case logic.TransitionOff:
		switch rec.Reason {
		case logic.ReasonMaxRuntime:
			s.Counts.OffMaxRuntime++
		case logic.ReasonSensorFailsafe:
			s.Counts.OffFailsafe++
		case logic.ReasonShutdown:
			s.Counts.OffShutdown++
		default:
			s.Counts.OffDewPoint++
		}
		s.OnSince = time.Time{}
		s.LastReason = rec.Reason
	}
	s.Fan = rec.FanState
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	if s.Last != nil {
		last := *s.Last
		s.Last = &last
	}
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
