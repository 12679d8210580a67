// Package metrics exposes controller readings and transitions to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/logic"
)

const namespace = "vent"

// Metrics holds the controller's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	TemperatureC   prometheus.Gauge
	HumidityPct    prometheus.Gauge
	DewPointC      prometheus.Gauge
	FanOn          prometheus.Gauge
	Transitions    *prometheus.CounterVec
	SensorFailures *prometheus.CounterVec
	ActuatorErrors prometheus.Counter
	TickDuration   prometheus.Histogram
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		TemperatureC: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last valid ambient temperature.",
		}),
		HumidityPct: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relative_humidity_percent",
			Help:      "Last valid relative humidity.",
		}),
		DewPointC: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dew_point_celsius",
			Help:      "Last derived dew point.",
		}),
		FanOn: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "fan_on",
			Help:      "1 when the fan is logically ON.",
		}),
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fan_transitions_total",
			Help:      "Committed fan transitions by direction and reason.",
		}, []string{"transition", "reason"}),
		SensorFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invalid_readings_total",
			Help:      "Ticks without a valid dew point, by cause.",
		}, []string{"kind"}),
		ActuatorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actuator_failures_total",
			Help:      "Relay commands that were not applied.",
		}),
		TickDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "tick_duration_seconds",
			Help:      "Time spent in one control tick, sensor read included.",
			Buckets:   []float64{.01, .025, .05, .1, .25, .5, 1, 2.5},
		}),
	}

	m.registry.MustRegister(
		m.TemperatureC,
		m.HumidityPct,
		m.DewPointC,
		m.FanOn,
		m.Transitions,
		m.SensorFailures,
		m.ActuatorErrors,
		m.TickDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry the collectors live on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Observe updates the collectors from one tick record.
func (m *Metrics) Observe(rec control.Record) {
	if rec.HasSample {
		m.TemperatureC.Set(rec.TemperatureC)
		m.HumidityPct.Set(rec.HumidityPct)
	}
	if rec.Valid {
		m.DewPointC.Set(rec.DewPointC)
	}
	if rec.Failure != control.FailureNone {
		m.SensorFailures.WithLabelValues(string(rec.Failure)).Inc()
	}
	if rec.ActuatorErr != nil {
		m.ActuatorErrors.Inc()
	}
	if rec.Transition != logic.TransitionNone && rec.Transition != "" {
		m.Transitions.WithLabelValues(string(rec.Transition), string(rec.Reason)).Inc()
	}
	if rec.FanState == logic.FanOn {
		m.FanOn.Set(1)
	} else {
		m.FanOn.Set(0)
	}
	if rec.Duration > 0 {
		m.TickDuration.Observe(rec.Duration.Seconds())
	}
}
