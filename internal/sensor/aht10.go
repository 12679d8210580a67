package sensor

import (
	"context"
	"fmt"
	"io"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// DefaultAddress is the fixed I2C address of the AHT10.
const DefaultAddress = 0x38

const (
	cmdInitialize = 0xBE
	cmdMeasure    = 0xAC
	regStatus     = 0x71

	statusBusy       = 0x80
	statusCalibrated = 0x08

	frameLen  = 6
	fullScale = 1 << 20
)

var sleep = time.Sleep

// Tx is the subset of an I2C device the driver needs. When both w and r are
// set the transfer must be a write followed by a repeated-start read.
type Tx interface {
	Tx(w, r []byte) error
}

// AHT10Config controls driver timing. Zero fields take defaults.
type AHT10Config struct {
	// PollInterval is the wait between busy checks. Default 10ms.
	PollInterval time.Duration
	// MeasureTimeout bounds the wait for a conversion. Default 500ms.
	MeasureTimeout time.Duration
}

func (c AHT10Config) withDefaults() AHT10Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 10 * time.Millisecond
	}
	if c.MeasureTimeout <= 0 {
		c.MeasureTimeout = 500 * time.Millisecond
	}
	return c
}

// AHT10 reads an AHT10 temperature/humidity sensor.
type AHT10 struct {
	dev Tx
	cfg AHT10Config
	bus io.Closer // nil when the caller owns the bus
	now func() time.Time
}

// OpenAHT10 initializes the host drivers, opens the named I2C bus ("" selects
// the first available) and calibrates the sensor at addr.
func OpenAHT10(busName string, addr uint16, cfg AHT10Config) (*AHT10, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init host drivers: %w", err)
	}
	bus, err := i2creg.Open(busName)
	if err != nil {
		return nil, fmt.Errorf("open i2c bus %q: %w", busName, err)
	}

	s, err := NewAHT10(&i2c.Dev{Bus: bus, Addr: addr}, cfg)
	if err != nil {
		bus.Close()
		return nil, err
	}
	s.bus = bus
	return s, nil
}

// NewAHT10 wraps an already opened device and runs the calibration handshake.
func NewAHT10(dev Tx, cfg AHT10Config) (*AHT10, error) {
	s := &AHT10{dev: dev, cfg: cfg.withDefaults(), now: time.Now}
	if err := s.calibrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AHT10) calibrate() error {
	st, err := s.status()
	if err != nil {
		return &Error{Kind: KindBusFault, Err: fmt.Errorf("read status: %w", err)}
	}
	if st&statusCalibrated != 0 {
		return nil
	}

	if err := s.dev.Tx([]byte{cmdInitialize, 0x08, 0x00}, nil); err != nil {
		return &Error{Kind: KindBusFault, Err: fmt.Errorf("initialize: %w", err)}
	}
	sleep(10 * time.Millisecond)

	st, err = s.status()
	if err != nil {
		return &Error{Kind: KindBusFault, Err: fmt.Errorf("read status: %w", err)}
	}
	if st&statusCalibrated == 0 {
		return &Error{Kind: KindNotReady, Err: fmt.Errorf("calibration bit not set (status 0x%02X)", st)}
	}
	return nil
}

func (s *AHT10) status() (byte, error) {
	var b [1]byte
	if err := s.dev.Tx([]byte{regStatus}, b[:]); err != nil {
		return 0, err
	}
	return b[0], nil
}

// Read triggers a measurement and waits for it to complete. The wait is
// bounded by MeasureTimeout; ctx is only checked before the measurement
// starts.
func (s *AHT10) Read(ctx context.Context) (Sample, error) {
	if err := ctx.Err(); err != nil {
		return Sample{}, &Error{Kind: KindNotReady, Err: err}
	}

	if err := s.dev.Tx([]byte{cmdMeasure, 0x33, 0x00}, nil); err != nil {
		return Sample{}, &Error{Kind: KindBusFault, Err: fmt.Errorf("trigger measurement: %w", err)}
	}

	deadline := s.now().Add(s.cfg.MeasureTimeout)
	for {
		st, err := s.status()
		if err != nil {
			return Sample{}, &Error{Kind: KindBusFault, Err: fmt.Errorf("read status: %w", err)}
		}
		if st&statusBusy == 0 {
			break
		}
		if s.now().After(deadline) {
			return Sample{}, &Error{Kind: KindTimeout, Err: fmt.Errorf("measurement not complete after %v", s.cfg.MeasureTimeout)}
		}
		sleep(s.cfg.PollInterval)
	}

	var frame [frameLen]byte
	if err := s.dev.Tx(nil, frame[:]); err != nil {
		return Sample{}, &Error{Kind: KindBusFault, Err: fmt.Errorf("read data: %w", err)}
	}
	if frame[0]&statusBusy != 0 {
		return Sample{}, &Error{Kind: KindNotReady, Err: fmt.Errorf("busy bit set in data frame")}
	}
	return decodeFrame(frame), nil
}

// Close releases the I2C bus if this driver opened it.
func (s *AHT10) Close() error {
	if s.bus == nil {
		return nil
	}
	err := s.bus.Close()
	s.bus = nil
	return err
}

// decodeFrame converts the 20-bit raw humidity and temperature fields.
// Byte 3 is split: upper nibble ends humidity, lower nibble starts temperature.
func decodeFrame(f [frameLen]byte) Sample {
	rawRH := (uint32(f[1])<<16 | uint32(f[2])<<8 | uint32(f[3])) >> 4
	rawT := uint32(f[3]&0x0F)<<16 | uint32(f[4])<<8 | uint32(f[5])

	return Sample{
		HumidityPct:  float64(rawRH) / fullScale * 100,
		TemperatureC: float64(rawT)/fullScale*200 - 50,
	}
}
