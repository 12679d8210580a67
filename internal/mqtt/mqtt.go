// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/logic"
)

// Topic is the MQTT topic for per-tick readings.
const Topic = "home/vent/sensor/readings"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "home/vent/sensor/system"

// ErrPublisherClosed is returned when publishing after Close.
var ErrPublisherClosed = errors.New("mqtt: publisher closed")

// Publisher publishes readings and lifecycle events to MQTT.
type Publisher interface {
	// Publish sends a tick record to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(rec control.Record) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "SIGINT" (shutdown only)
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Reading ReadingPayload `json:"reading"`
}

// ReadingPayload contains one tick's outcome. Measurements are omitted when
// the tick did not produce them.
type ReadingPayload struct {
	Timestamp    string   `json:"timestamp"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	HumidityPct  *float64 `json:"humidity_pct,omitempty"`
	DewPointC    *float64 `json:"dew_point_c,omitempty"`
	Valid        bool     `json:"valid"`
	Fan          string   `json:"fan"`
	Transition   string   `json:"transition"`
	Reason       string   `json:"reason,omitempty"`
	Failure      string   `json:"failure,omitempty"`
	Error        string   `json:"error,omitempty"`
	RelayError   string   `json:"relay_error,omitempty"`
	Final        bool     `json:"final,omitempty"`
}

// FormatPayload creates the JSON payload for a tick record.
func FormatPayload(rec control.Record) ([]byte, error) {
	transition := rec.Transition
	if transition == "" {
		transition = logic.TransitionNone
	}
	r := ReadingPayload{
		Timestamp:  rec.Timestamp.UTC().Format(time.RFC3339),
		Valid:      rec.Valid,
		Fan:        string(rec.FanState),
		Transition: string(transition),
		Reason:     string(rec.Reason),
		Failure:    string(rec.Failure),
		Final:      rec.Final,
	}
	if rec.HasSample {
		t, h := rec.TemperatureC, rec.HumidityPct
		r.TemperatureC = &t
		r.HumidityPct = &h
	}
	if rec.Valid {
		dp := rec.DewPointC
		r.DewPointC = &dp
	}
	if rec.Err != nil {
		r.Error = rec.Err.Error()
	}
	if rec.ActuatorErr != nil {
		r.RelayError = rec.ActuatorErr.Error()
	}
	return json.Marshal(Payload{Reading: r})
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp,omitempty"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	}
	return json.Marshal(payload)
}

// WillPayload is the retained last-will message the broker publishes on
// TopicSystem if the daemon disappears without a clean disconnect.
func WillPayload(runID string) []byte {
	data, _ := json.Marshal(SystemPayload{
		System: SystemPayloadInner{Event: "OFFLINE", RunID: runID},
	})
	return data
}
