package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/logic"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rr.Code)
	body, err := io.ReadAll(rr.Body)
	require.NoError(t, err)
	return string(body)
}

func TestObserveValidTick(t *testing.T) {
	m := New()
	m.Observe(control.Record{
		HasSample:    true,
		TemperatureC: 22.5,
		HumidityPct:  80,
		Valid:        true,
		DewPointC:    18.9,
		FanState:     logic.FanOn,
		Transition:   logic.TransitionOn,
		Reason:       logic.ReasonDewPointHigh,
		Duration:     30 * time.Millisecond,
	})

	out := scrape(t, m)
	assert.Contains(t, out, "vent_temperature_celsius 22.5")
	assert.Contains(t, out, "vent_relative_humidity_percent 80")
	assert.Contains(t, out, "vent_dew_point_celsius 18.9")
	assert.Contains(t, out, "vent_fan_on 1")
	assert.Contains(t, out, `vent_fan_transitions_total{reason="dew_point_high",transition="on"} 1`)
	assert.Contains(t, out, "vent_tick_duration_seconds_count 1")
}

func TestObserveFailures(t *testing.T) {
	m := New()
	m.Observe(control.Record{
		Failure:    control.FailureTimeout,
		Err:        errors.New("timeout"),
		FanState:   logic.FanOff,
		Transition: logic.TransitionNone,
	})
	m.Observe(control.Record{
		Failure:     control.FailureTimeout,
		Err:         errors.New("timeout"),
		FanState:    logic.FanOff,
		Transition:  logic.TransitionNone,
		ActuatorErr: errors.New("relay"),
	})

	out := scrape(t, m)
	assert.Contains(t, out, `vent_invalid_readings_total{kind="timeout"} 2`)
	assert.Contains(t, out, "vent_actuator_failures_total 1")
	assert.Contains(t, out, "vent_fan_on 0")
	assert.NotContains(t, out, "vent_fan_transitions_total{")
}

func TestRegistryIncludesRuntimeCollectors(t *testing.T) {
	out := scrape(t, New())
	assert.Contains(t, out, "go_goroutines")
}
