// Package config loads the daemon configuration from YAML.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/vent-controller/internal/logic"
	"github.com/sweeney/vent-controller/internal/relay"
	"github.com/sweeney/vent-controller/internal/sensor"
)

type Config struct {
	LogLevel  string        `yaml:"log_level"`
	Heartbeat time.Duration `yaml:"heartbeat"`

	Control ControlConfig `yaml:"control"`
	Sensor  SensorConfig  `yaml:"sensor"`
	Relay   RelayConfig   `yaml:"relay"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	HTTP    HTTPConfig    `yaml:"http"`
}

type ControlConfig struct {
	DewPointThresholdC     float64       `yaml:"dew_point_threshold_c"`
	HysteresisC            float64       `yaml:"hysteresis_c"`
	MinRuntime             time.Duration `yaml:"min_runtime"`
	MaxRuntime             time.Duration `yaml:"max_runtime"`
	SampleInterval         time.Duration `yaml:"sample_interval"`
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
}

type SensorConfig struct {
	// I2CBus is the periph bus name; empty selects the first bus found.
	I2CBus         string        `yaml:"i2c_bus"`
	Address        uint16        `yaml:"address"`
	MeasureTimeout time.Duration `yaml:"measure_timeout"`
}

type RelayConfig struct {
	// Pin is BCM GPIO numbering.
	Pin       int  `yaml:"pin"`
	ActiveLow bool `yaml:"active_low"`
}

type MQTTConfig struct {
	// Broker is the broker URL; empty disables publishing.
	Broker string `yaml:"broker"`
	// WSBroker is the websocket URL the status page uses for live updates.
	// "=broker" derives it from Broker, "off" disables it.
	WSBroker string `yaml:"ws_broker"`
}

type HTTPConfig struct {
	// Addr is the status server listen address; empty disables it.
	Addr string `yaml:"addr"`
}

// Default returns the configuration of the reference installation.
func Default() Config {
	return Config{
		LogLevel:  "info",
		Heartbeat: 15 * time.Minute,
		Control: ControlConfig{
			DewPointThresholdC:     19,
			HysteresisC:            2,
			MinRuntime:             5 * time.Minute,
			MaxRuntime:             60 * time.Minute,
			SampleInterval:         10 * time.Second,
			MaxConsecutiveFailures: 30,
		},
		Sensor: SensorConfig{
			I2CBus:         "1",
			Address:        sensor.DefaultAddress,
			MeasureTimeout: 500 * time.Millisecond,
		},
		Relay: RelayConfig{
			Pin: relay.DefaultPin,
		},
		MQTT: MQTTConfig{
			Broker:   "tcp://localhost:1883",
			WSBroker: "=broker",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
	}
}

// Load reads path over the defaults and validates the result. An empty path
// returns the validated defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Logic returns the control parameters for the fan state machine.
func (c Config) Logic() logic.Config {
	return logic.Config{
		ThresholdC:             c.Control.DewPointThresholdC,
		HysteresisC:            c.Control.HysteresisC,
		MinRuntime:             c.Control.MinRuntime,
		MaxRuntime:             c.Control.MaxRuntime,
		SampleInterval:         c.Control.SampleInterval,
		MaxConsecutiveFailures: c.Control.MaxConsecutiveFailures,
	}
}

// Validate checks every section. Errors wrap logic.ErrConfigInvalid.
func (c Config) Validate() error {
	if err := c.Logic().Validate(); err != nil {
		return fmt.Errorf("control: %w", err)
	}
	if c.Relay.Pin <= 0 {
		return fmt.Errorf("%w: relay.pin must be > 0, got %d", logic.ErrConfigInvalid, c.Relay.Pin)
	}
	if c.Sensor.Address == 0 || c.Sensor.Address > 0x7F {
		return fmt.Errorf("%w: sensor.address must be a 7-bit address, got 0x%X", logic.ErrConfigInvalid, c.Sensor.Address)
	}
	if c.Sensor.MeasureTimeout <= 0 {
		return fmt.Errorf("%w: sensor.measure_timeout must be > 0", logic.ErrConfigInvalid)
	}
	if c.Heartbeat < 0 {
		return fmt.Errorf("%w: heartbeat must be >= 0", logic.ErrConfigInvalid)
	}
	return nil
}
