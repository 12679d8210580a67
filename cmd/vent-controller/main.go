// Command vent-controller reads an AHT10 sensor, derives the dew point and
// drives a relay-controlled vent fan to keep a room free of condensation.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/sweeney/vent-controller/internal/config"
	"github.com/sweeney/vent-controller/internal/control"
	"github.com/sweeney/vent-controller/internal/dewpoint"
	"github.com/sweeney/vent-controller/internal/logger"
	"github.com/sweeney/vent-controller/internal/metrics"
	"github.com/sweeney/vent-controller/internal/mqtt"
	"github.com/sweeney/vent-controller/internal/relay"
	"github.com/sweeney/vent-controller/internal/sensor"
	"github.com/sweeney/vent-controller/internal/status"
	"github.com/sweeney/vent-controller/internal/web"
)

type cliFlags struct {
	configPath string
	printState bool

	interval    time.Duration
	threshold   float64
	hysteresis  float64
	minRuntime  time.Duration
	maxRuntime  time.Duration
	maxFailures int
	pin         int
	activeLow   bool
	i2cBus      string
	broker      string
	wsBroker    string
	httpAddr    string
	heartbeat   time.Duration
	logLevel    string
}

func newFlagSet() (*pflag.FlagSet, *cliFlags) {
	d := config.Default()
	f := &cliFlags{}
	fs := pflag.NewFlagSet("vent-controller", pflag.ContinueOnError)

	fs.StringVarP(&f.configPath, "config", "c", "", "YAML config file")
	fs.BoolVar(&f.printState, "print-state", false, "Read the sensor once, print the dew point and exit")
	fs.DurationVar(&f.interval, "interval", d.Control.SampleInterval, "Sample interval")
	fs.Float64Var(&f.threshold, "threshold", d.Control.DewPointThresholdC, "Dew point (°C) above which the fan turns on")
	fs.Float64Var(&f.hysteresis, "hysteresis", d.Control.HysteresisC, "Band (°C) below the threshold before the fan turns off")
	fs.DurationVar(&f.minRuntime, "min-runtime", d.Control.MinRuntime, "Minimum fan runtime")
	fs.DurationVar(&f.maxRuntime, "max-runtime", d.Control.MaxRuntime, "Maximum fan runtime")
	fs.IntVar(&f.maxFailures, "max-failures", d.Control.MaxConsecutiveFailures, "Consecutive failed readings before a running fan is stopped (0 disables)")
	fs.IntVar(&f.pin, "pin", d.Relay.Pin, "BCM pin number of the relay")
	fs.BoolVar(&f.activeLow, "active-low", d.Relay.ActiveLow, "Relay energizes on a low line")
	fs.StringVar(&f.i2cBus, "i2c-bus", d.Sensor.I2CBus, "I2C bus name (empty for the first bus)")
	fs.StringVar(&f.broker, "broker", d.MQTT.Broker, "MQTT broker address (empty to disable)")
	fs.StringVar(&f.wsBroker, "ws-broker", d.MQTT.WSBroker, `MQTT websocket URL for live UI ("=broker" derives from --broker, "off" disables)`)
	fs.StringVar(&f.httpAddr, "http", d.HTTP.Addr, "HTTP status address (empty to disable)")
	fs.DurationVar(&f.heartbeat, "heartbeat", d.Heartbeat, "Heartbeat interval (0 to disable)")
	fs.StringVar(&f.logLevel, "log-level", d.LogLevel, "Log level (debug, info, warn, error)")
	return fs, f
}

// loadConfig reads the config file and applies the flags the user set
// explicitly on top of it.
func loadConfig(fs *pflag.FlagSet, f *cliFlags) (config.Config, error) {
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return config.Config{}, err
	}

	set := func(name string, apply func()) {
		if fs.Changed(name) {
			apply()
		}
	}
	set("interval", func() { cfg.Control.SampleInterval = f.interval })
	set("threshold", func() { cfg.Control.DewPointThresholdC = f.threshold })
	set("hysteresis", func() { cfg.Control.HysteresisC = f.hysteresis })
	set("min-runtime", func() { cfg.Control.MinRuntime = f.minRuntime })
	set("max-runtime", func() { cfg.Control.MaxRuntime = f.maxRuntime })
	set("max-failures", func() { cfg.Control.MaxConsecutiveFailures = f.maxFailures })
	set("pin", func() { cfg.Relay.Pin = f.pin })
	set("active-low", func() { cfg.Relay.ActiveLow = f.activeLow })
	set("i2c-bus", func() { cfg.Sensor.I2CBus = f.i2cBus })
	set("broker", func() { cfg.MQTT.Broker = f.broker })
	set("ws-broker", func() { cfg.MQTT.WSBroker = f.wsBroker })
	set("http", func() { cfg.HTTP.Addr = f.httpAddr })
	set("heartbeat", func() { cfg.Heartbeat = f.heartbeat })
	set("log-level", func() { cfg.LogLevel = f.logLevel })

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func main() {
	fs, f := newFlagSet()
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		log.Fatalf("fatal: %v", err)
	}

	cfg, err := loadConfig(fs, f)
	if err != nil {
		log.Fatalf("fatal: config: %v", err)
	}

	lg, sync, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("fatal: logger: %v", err)
	}
	defer sync()

	if err := run(cfg, f.printState, lg); err != nil {
		lg.Errorw("fatal", "error", err)
		sync()
		os.Exit(1)
	}
}

func run(cfg config.Config, printState bool, lg logger.Logger) error {
	// Initialize sensor
	aht, err := sensor.OpenAHT10(cfg.Sensor.I2CBus, cfg.Sensor.Address, sensor.AHT10Config{
		MeasureTimeout: cfg.Sensor.MeasureTimeout,
	})
	if err != nil {
		return fmt.Errorf("init sensor: %w", err)
	}
	defer aht.Close()

	// Print state mode
	if printState {
		return printReading(context.Background(), aht, os.Stdout)
	}

	// Initialize relay; forced OFF on open and on close
	rl, err := relay.NewRealRelay(cfg.Relay.Pin, !cfg.Relay.ActiveLow)
	if err != nil {
		return fmt.Errorf("init relay: %w", err)
	}
	defer func() {
		if err := rl.Close(); err != nil {
			lg.Errorw("relay close failed", "error", err)
		}
	}()

	runID := uuid.NewString()
	ws := resolveWSBroker(cfg.MQTT.WSBroker, cfg.MQTT.Broker, lg)
	tracker := status.NewTracker(time.Now(), statusConfig(cfg, runID, ws))
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}
	m := metrics.New()

	// Initialize MQTT
	var publisher *mqtt.RealPublisher
	if cfg.MQTT.Broker != "" {
		publisher = mqtt.NewRealPublisher(cfg.MQTT.Broker, runID, lg)
		defer publisher.Close()
	}

	// Start HTTP status server
	if cfg.HTTP.Addr != "" {
		srv := web.New(cfg.HTTP.Addr, tracker, m.Handler())
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				lg.Errorw("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		lg.Infow("http status server listening", "addr", cfg.HTTP.Addr)
	}

	pin, _ := relay.PhysicalPin(cfg.Relay.Pin)
	lg.Infow("started",
		"run_id", runID,
		"threshold_c", cfg.Control.DewPointThresholdC,
		"off_below_c", cfg.Logic().OffThresholdC(),
		"min_runtime", cfg.Control.MinRuntime,
		"max_runtime", cfg.Control.MaxRuntime,
		"interval", cfg.Control.SampleInterval,
		"relay_bcm", cfg.Relay.Pin,
		"relay_header_pin", pin,
		"active_low", cfg.Relay.ActiveLow,
		"broker", cfg.MQTT.Broker,
		"heartbeat", cfg.Heartbeat)

	ctx, cancel := context.WithCancelCause(context.Background())
	defer cancel(nil)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go watchSignals(ctx, cancel, sigCh, lg)

	ticker := time.NewTicker(cfg.Control.SampleInterval)
	defer ticker.Stop()

	d := daemon{
		cfg:     cfg,
		sensor:  aht,
		relay:   rl,
		tracker: tracker,
		metrics: m,
		log:     lg,
		now:     time.Now,
		tick:    ticker.C,
	}
	if publisher != nil {
		d.publisher = publisher
		d.mqttStatus = publisher
		defer func() {
			if n := publisher.Dropped(); n > 0 {
				lg.Warnw("readings lost while broker was unreachable", "dropped", n)
			}
		}()
	}
	return d.run(ctx)
}

// daemon holds the collaborators of one control run. The publisher,
// mqttStatus and metrics may be nil.
type daemon struct {
	cfg        config.Config
	sensor     sensor.Reader
	relay      relay.Actuator
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus
	tracker    *status.Tracker
	metrics    *metrics.Metrics
	log        logger.Logger
	now        func() time.Time
	tick       <-chan time.Time
}

func (d daemon) run(ctx context.Context) error {
	ctrl, err := control.NewController(d.cfg.Logic(), d.sensor, d.relay, d.log, d.now)
	if err != nil {
		return fmt.Errorf("init controller: %w", err)
	}

	// The tracker observes first so system events see the current tick.
	observers := []control.Observer{d.tracker}
	if d.metrics != nil {
		observers = append(observers, d.metrics)
	}
	if d.mqttStatus != nil {
		observers = append(observers, control.ObserverFunc(func(control.Record) {
			d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
		}))
	}
	if d.publisher != nil {
		observers = append(observers, mqtt.NewSink(d.publisher, d.statusPayload, d.log))
	}

	loop := control.NewLoop(ctrl, d.log, d.cfg.Heartbeat, observers...)
	return loop.Run(ctx, d.tick)
}

// statusPayload refreshes connection and network details and renders the
// status snapshot for a system event.
func (d daemon) statusPayload(event, reason string) []byte {
	if d.mqttStatus != nil {
		d.tracker.SetMQTTConnected(d.mqttStatus.IsConnected())
	}
	if event == control.EventHeartbeat {
		if net := readNetworkInfo(); net != nil {
			d.tracker.SetNetwork(net)
		}
	}
	return status.FormatStatusEvent(d.tracker.Snapshot(), event, reason)
}

func watchSignals(ctx context.Context, cancel context.CancelCauseFunc, sig <-chan os.Signal, lg logger.Logger) {
	select {
	case s := <-sig:
		name := signalName(s)
		lg.Infow("received signal, shutting down", "signal", name)
		cancel(errors.New(name))
	case <-ctx.Done():
	}
}

func signalName(s os.Signal) string {
	switch s {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}

func printReading(ctx context.Context, r sensor.Reader, w io.Writer) error {
	s, err := r.Read(ctx)
	if err == nil {
		err = s.Validate()
	}
	if err != nil {
		return fmt.Errorf("read sensor: %w", err)
	}
	fmt.Fprintln(w, formatReading(s))
	return nil
}

func formatReading(s sensor.Sample) string {
	line := fmt.Sprintf("T: %.1f °C, RH: %.1f %%", s.TemperatureC, s.HumidityPct)
	res, err := dewpoint.Calculate(s.TemperatureC, s.HumidityPct)
	if err != nil {
		return line + fmt.Sprintf(", dew point: n/a (%v)", err)
	}
	line += fmt.Sprintf(", dew point: %.1f °C", res.DewPointC)
	if res.OutOfTypicalRange {
		line += " (outside typical range)"
	}
	return line
}

func statusConfig(cfg config.Config, runID, wsBroker string) status.Config {
	phys, _ := relay.PhysicalPin(cfg.Relay.Pin)
	return status.Config{
		RunID:        runID,
		IntervalMs:   cfg.Control.SampleInterval.Milliseconds(),
		ThresholdC:   cfg.Control.DewPointThresholdC,
		HysteresisC:  cfg.Control.HysteresisC,
		MinRuntimeS:  int64(cfg.Control.MinRuntime.Seconds()),
		MaxRuntimeS:  int64(cfg.Control.MaxRuntime.Seconds()),
		MaxFailures:  cfg.Control.MaxConsecutiveFailures,
		HeartbeatMs:  cfg.Heartbeat.Milliseconds(),
		RelayPin:     cfg.Relay.Pin,
		RelayPhysPin: phys,
		ActiveLow:    cfg.Relay.ActiveLow,
		I2CBus:       cfg.Sensor.I2CBus,
		Broker:       cfg.MQTT.Broker,
		HTTPPort:     cfg.HTTP.Addr,
		WSBroker:     wsBroker,
	}
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

// resolveWSBroker converts the ws-broker setting into a concrete URL.
// "=broker" derives ws://host:9001 from the TCP broker address; "off" or an
// empty broker disables it.
func resolveWSBroker(ws, broker string, lg logger.Logger) string {
	if ws == "off" || ws == "" {
		return ""
	}
	if ws != "=broker" {
		return ws
	}
	if broker == "" {
		return ""
	}
	u, err := url.Parse(broker)
	if err != nil {
		lg.Warnw("ws-broker: cannot parse broker", "broker", broker, "error", err)
		return ""
	}
	u.Scheme = "ws"
	u.Host = u.Hostname() + ":9001"
	return u.String()
}
