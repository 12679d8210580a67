package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sweeney/vent-controller/internal/logic"
)

func writeTempConfig(t *testing.T, contents string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "vent.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}
	return path
}

func requireConfigInvalid(t *testing.T, err error, contains string) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected error containing %q, got nil", contains)
	}
	if !errors.Is(err, logic.ErrConfigInvalid) {
		t.Fatalf("error=%v, want ErrConfigInvalid", err)
	}
	if !strings.Contains(err.Error(), contains) {
		t.Fatalf("error=%q want substring %q", err.Error(), contains)
	}
}

func TestLoad_EmptyPathReturnsDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.Control.DewPointThresholdC != 19 || cfg.Control.HysteresisC != 2 {
		t.Fatalf("threshold/hysteresis=%v/%v want 19/2", cfg.Control.DewPointThresholdC, cfg.Control.HysteresisC)
	}
	if cfg.Control.MinRuntime != 5*time.Minute || cfg.Control.MaxRuntime != time.Hour {
		t.Fatalf("runtime=%s..%s want 5m..1h", cfg.Control.MinRuntime, cfg.Control.MaxRuntime)
	}
	if cfg.Control.SampleInterval != 10*time.Second {
		t.Fatalf("interval=%s want 10s", cfg.Control.SampleInterval)
	}
	if cfg.Relay.Pin != 14 || cfg.Relay.ActiveLow {
		t.Fatalf("relay=%+v want pin 14 active high", cfg.Relay)
	}
	if cfg.Sensor.Address != 0x38 {
		t.Fatalf("address=0x%X want 0x38", cfg.Sensor.Address)
	}
	if cfg.Sensor.I2CBus != "1" {
		t.Fatalf("i2c_bus=%q want 1", cfg.Sensor.I2CBus)
	}
}

func TestLoad_OverridesOnlyGivenFields(t *testing.T) {
	path := writeTempConfig(t, `
log_level: debug
control:
  dew_point_threshold_c: 16.5
  min_runtime: 2m
sensor:
  i2c_bus: "0"
relay:
  pin: 17
  active_low: true
mqtt:
  broker: ""
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log_level=%q want debug", cfg.LogLevel)
	}
	if cfg.Control.DewPointThresholdC != 16.5 {
		t.Fatalf("threshold=%v want 16.5", cfg.Control.DewPointThresholdC)
	}
	if cfg.Control.MinRuntime != 2*time.Minute {
		t.Fatalf("min_runtime=%s want 2m", cfg.Control.MinRuntime)
	}
	if cfg.Control.HysteresisC != 2 {
		t.Fatalf("hysteresis default lost: %v", cfg.Control.HysteresisC)
	}
	if cfg.Sensor.I2CBus != "0" || cfg.Relay.Pin != 17 || !cfg.Relay.ActiveLow {
		t.Fatalf("unexpected hardware config: %+v %+v", cfg.Sensor, cfg.Relay)
	}
	if cfg.MQTT.Broker != "" {
		t.Fatalf("broker=%q want disabled", cfg.MQTT.Broker)
	}
}

func TestLoad_Validation(t *testing.T) {
	cases := []struct {
		name string
		yaml string
		want string
	}{
		{"negative hysteresis", "control:\n  hysteresis_c: -1\n", "hysteresis"},
		{"min above max", "control:\n  min_runtime: 2h\n  max_runtime: 1h\n", "exceeds max runtime"},
		{"zero interval", "control:\n  sample_interval: 0s\n", "sample interval"},
		{"bad pin", "relay:\n  pin: 0\n", "relay.pin"},
		{"bad address", "sensor:\n  address: 0x80\n", "sensor.address"},
		{"negative heartbeat", "heartbeat: -1m\n", "heartbeat"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeTempConfig(t, tc.yaml))
			requireConfigInvalid(t, err, tc.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("error=%v want not exist", err)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeTempConfig(t, "control: [not, a, map]\n"))
	if err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLogic(t *testing.T) {
	lc := Default().Logic()
	if lc.ThresholdC != 19 || lc.OffThresholdC() != 17 {
		t.Fatalf("logic config=%+v", lc)
	}
	if lc.MaxConsecutiveFailures != 30 {
		t.Fatalf("max failures=%d want 30", lc.MaxConsecutiveFailures)
	}
}
