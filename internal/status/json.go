package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event             string       `json:"event,omitempty"`
	Reason            string       `json:"reason,omitempty"`
	RunID             string       `json:"run_id,omitempty"`
	Fan               string       `json:"fan"`
	FanRuntimeSeconds int64        `json:"fan_runtime_seconds"`
	LastReason        string       `json:"last_reason,omitempty"`
	RelaySynced       bool         `json:"relay_synced"`
	Reading           *ReadingJSON `json:"reading,omitempty"`
	Ticks             int          `json:"ticks"`
	UptimeSeconds     int64        `json:"uptime_seconds"`
	StartTime         string       `json:"start_time"`
	Timestamp         string       `json:"timestamp"`
	MQTT              MQTTStatus   `json:"mqtt"`
	Counts            CountsJSON   `json:"counts"`
	Network           *NetworkJSON `json:"network,omitempty"`
	Config            ConfigJSON   `json:"config"`
}

// ReadingJSON is the last tick's sensor outcome.
type ReadingJSON struct {
	Timestamp    string   `json:"timestamp"`
	TemperatureC *float64 `json:"temperature_c,omitempty"`
	HumidityPct  *float64 `json:"humidity_pct,omitempty"`
	DewPointC    *float64 `json:"dew_point_c,omitempty"`
	Valid        bool     `json:"valid"`
	Failure      string   `json:"failure,omitempty"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of transition counts.
type CountsJSON struct {
	On             int `json:"on"`
	OffDewPoint    int `json:"off_dew_point"`
	OffMaxRuntime  int `json:"off_max_runtime"`
	OffFailsafe    int `json:"off_failsafe"`
	OffShutdown    int `json:"off_shutdown"`
	FailedReadings int `json:"failed_readings"`
	ActuatorErrors int `json:"actuator_errors"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	IntervalMs   int64   `json:"interval_ms"`
	ThresholdC   float64 `json:"threshold_c"`
	HysteresisC  float64 `json:"hysteresis_c"`
	MinRuntimeS  int64   `json:"min_runtime_s"`
	MaxRuntimeS  int64   `json:"max_runtime_s"`
	MaxFailures  int     `json:"max_consecutive_failures"`
	HeartbeatMs  int64   `json:"heartbeat_ms"`
	RelayPin     int     `json:"relay_pin"`
	RelayPhysPin int     `json:"relay_physical_pin,omitempty"`
	ActiveLow    bool    `json:"active_low"`
	I2CBus       string  `json:"i2c_bus,omitempty"`
	Broker       string  `json:"broker"`
	HTTPPort     string  `json:"http_port"`
	WSBroker     string  `json:"ws_broker,omitempty"`
}

func buildInner(snap Snapshot) StatusInner {
	fan := string(snap.Fan)
	if fan == "" {
		fan = "UNKNOWN"
	}

	inner := StatusInner{
		RunID:             snap.Config.RunID,
		Fan:               fan,
		FanRuntimeSeconds: int64(snap.FanRuntime().Truncate(time.Second).Seconds()),
		LastReason:        string(snap.LastReason),
		RelaySynced:       snap.RelaySynced,
		Ticks:             snap.Ticks,
		UptimeSeconds:     int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:         snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:         snap.Now.UTC().Format(time.RFC3339),
		MQTT:              MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			On:             snap.Counts.On,
			OffDewPoint:    snap.Counts.OffDewPoint,
			OffMaxRuntime:  snap.Counts.OffMaxRuntime,
			OffFailsafe:    snap.Counts.OffFailsafe,
			OffShutdown:    snap.Counts.OffShutdown,
			FailedReadings: snap.Counts.FailedReadings,
			ActuatorErrors: snap.ActuatorErrors,
		},
		Config: ConfigJSON{
			IntervalMs:   snap.Config.IntervalMs,
			ThresholdC:   snap.Config.ThresholdC,
			HysteresisC:  snap.Config.HysteresisC,
			MinRuntimeS:  snap.Config.MinRuntimeS,
			MaxRuntimeS:  snap.Config.MaxRuntimeS,
			MaxFailures:  snap.Config.MaxFailures,
			HeartbeatMs:  snap.Config.HeartbeatMs,
			RelayPin:     snap.Config.RelayPin,
			RelayPhysPin: snap.Config.RelayPhysPin,
			ActiveLow:    snap.Config.ActiveLow,
			I2CBus:       snap.Config.I2CBus,
			Broker:       snap.Config.Broker,
			HTTPPort:     snap.Config.HTTPPort,
			WSBroker:     snap.Config.WSBroker,
		},
	}

	if r := snap.Last; r != nil {
		rj := &ReadingJSON{
			Timestamp: r.Timestamp.UTC().Format(time.RFC3339),
			Valid:     r.Valid,
			Failure:   r.Failure,
		}
		if r.HasSample {
			t, h := r.TemperatureC, r.HumidityPct
			rj.TemperatureC = &t
			rj.HumidityPct = &h
		}
		if r.Valid {
			dp := r.DewPointC
			rj.DewPointC = &dp
		}
		inner.Reading = rj
	}
	return inner
}

func buildNetwork(snap Snapshot, inner *StatusInner) {
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	inner := buildInner(snap)
	buildNetwork(snap, &inner)

	data, _ := json.MarshalIndent(StatusJSON{Status: inner}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	buildNetwork(snap, &inner)

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
