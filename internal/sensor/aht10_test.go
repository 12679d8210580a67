package sensor

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBus scripts AHT10 responses. Status reads consume statuses in order
// and repeat the last one.
type fakeBus struct {
	statuses []byte
	frame    []byte
	writes   [][]byte

	txErr     error
	failWrite []byte // Tx fails only when this exact write is sent
}

func (b *fakeBus) Tx(w, r []byte) error {
	if b.txErr != nil && (b.failWrite == nil || bytes.Equal(w, b.failWrite)) {
		return b.txErr
	}
	if len(w) > 0 {
		b.writes = append(b.writes, append([]byte(nil), w...))
	}
	switch {
	case len(w) == 1 && w[0] == regStatus && len(r) == 1:
		r[0] = b.statuses[0]
		if len(b.statuses) > 1 {
			b.statuses = b.statuses[1:]
		}
	case len(w) == 0 && len(r) == frameLen:
		copy(r, b.frame)
	}
	return nil
}

func (b *fakeBus) wrote(cmd []byte) bool {
	for _, w := range b.writes {
		if bytes.Equal(w, cmd) {
			return true
		}
	}
	return false
}

func noSleep(t *testing.T) {
	t.Helper()
	orig := sleep
	sleep = func(time.Duration) {}
	t.Cleanup(func() { sleep = orig })
}

// 50 %RH, 25 °C, calibrated and idle.
var frame50RH25C = []byte{statusCalibrated, 0x80, 0x00, 0x06, 0x00, 0x00}

func TestNewAHT10AlreadyCalibrated(t *testing.T) {
	noSleep(t)
	bus := &fakeBus{statuses: []byte{statusCalibrated}}

	_, err := NewAHT10(bus, AHT10Config{})
	require.NoError(t, err)
	assert.False(t, bus.wrote([]byte{cmdInitialize, 0x08, 0x00}), "should not send init when calibrated")
}

func TestNewAHT10CalibrationHandshake(t *testing.T) {
	noSleep(t)
	bus := &fakeBus{statuses: []byte{0x00, statusCalibrated}}

	_, err := NewAHT10(bus, AHT10Config{})
	require.NoError(t, err)
	assert.True(t, bus.wrote([]byte{cmdInitialize, 0x08, 0x00}))
}

func TestNewAHT10CalibrationFails(t *testing.T) {
	noSleep(t)
	bus := &fakeBus{statuses: []byte{0x00}}

	_, err := NewAHT10(bus, AHT10Config{})
	require.Error(t, err)
	assert.Equal(t, KindNotReady, KindOf(err))
}

func TestNewAHT10BusFault(t *testing.T) {
	bus := &fakeBus{statuses: []byte{0}, txErr: errors.New("remote I/O error")}

	_, err := NewAHT10(bus, AHT10Config{})
	require.Error(t, err)
	assert.Equal(t, KindBusFault, KindOf(err))
	assert.ErrorIs(t, err, ErrSensorFailure)
}

func TestAHT10Read(t *testing.T) {
	noSleep(t)
	bus := &fakeBus{
		statuses: []byte{statusCalibrated, statusCalibrated | statusBusy, statusCalibrated},
		frame:    frame50RH25C,
	}
	s, err := NewAHT10(bus, AHT10Config{})
	require.NoError(t, err)

	got, err := s.Read(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 50.0, got.HumidityPct, 1e-9)
	assert.InDelta(t, 25.0, got.TemperatureC, 1e-9)
	assert.True(t, bus.wrote([]byte{cmdMeasure, 0x33, 0x00}))
	assert.NoError(t, got.Validate())
}

func TestAHT10ReadTimeout(t *testing.T) {
	noSleep(t)
	bus := &fakeBus{statuses: []byte{statusCalibrated, statusCalibrated | statusBusy}}
	s, err := NewAHT10(bus, AHT10Config{MeasureTimeout: 500 * time.Millisecond})
	require.NoError(t, err)

	// Each clock read advances 100ms so the deadline passes after a few polls.
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		now = now.Add(100 * time.Millisecond)
		return now
	}

	_, err = s.Read(context.Background())
	require.Error(t, err)
	assert.Equal(t, KindTimeout, KindOf(err))
	assert.ErrorIs(t, err, ErrSensorFailure)
}

func TestAHT10ReadBusyFrame(t *testing.T) {
	noSleep(t)
	frame := append([]byte(nil), frame50RH25C...)
	frame[0] |= statusBusy
	bus := &fakeBus{statuses: []byte{statusCalibrated}, frame: frame}
	s, err := NewAHT10(bus, AHT10Config{})
	require.NoError(t, err)

	_, err = s.Read(context.Background())
	assert.Equal(t, KindNotReady, KindOf(err))
}

func TestAHT10ReadTriggerFault(t *testing.T) {
	noSleep(t)
	bus := &fakeBus{statuses: []byte{statusCalibrated}}
	s, err := NewAHT10(bus, AHT10Config{})
	require.NoError(t, err)

	bus.txErr = errors.New("nack")
	bus.failWrite = []byte{cmdMeasure, 0x33, 0x00}

	_, err = s.Read(context.Background())
	assert.Equal(t, KindBusFault, KindOf(err))
}

func TestAHT10ReadCancelledContext(t *testing.T) {
	noSleep(t)
	bus := &fakeBus{statuses: []byte{statusCalibrated}, frame: frame50RH25C}
	s, err := NewAHT10(bus, AHT10Config{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Read(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, err, ErrSensorFailure)
	assert.Equal(t, KindNotReady, KindOf(err))
	assert.False(t, bus.wrote([]byte{cmdMeasure, 0x33, 0x00}))
}

func TestAHT10CloseWithoutOwnedBus(t *testing.T) {
	noSleep(t)
	s, err := NewAHT10(&fakeBus{statuses: []byte{statusCalibrated}}, AHT10Config{})
	require.NoError(t, err)
	assert.NoError(t, s.Close())
}

func TestDecodeFrameExtremes(t *testing.T) {
	var zero [frameLen]byte
	s := decodeFrame(zero)
	assert.Equal(t, 0.0, s.HumidityPct)
	assert.Equal(t, -50.0, s.TemperatureC)

	full := [frameLen]byte{0, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	s = decodeFrame(full)
	assert.Less(t, s.HumidityPct, 100.0)
	assert.Less(t, s.TemperatureC, 150.0)
	assert.Greater(t, s.TemperatureC, 149.9)
}

func TestSampleValidate(t *testing.T) {
	assert.NoError(t, Sample{TemperatureC: 21, HumidityPct: 40}.Validate())

	err := Sample{TemperatureC: math.NaN(), HumidityPct: 40}.Validate()
	assert.Equal(t, KindInvalidSample, KindOf(err))

	err = Sample{TemperatureC: 20, HumidityPct: math.Inf(1)}.Validate()
	assert.Equal(t, KindInvalidSample, KindOf(err))
	assert.ErrorIs(t, err, ErrSensorFailure)
}

func TestErrorMessage(t *testing.T) {
	err := &Error{Kind: KindTimeout, Err: errors.New("after 500ms")}
	assert.Equal(t, "sensor timeout: after 500ms", err.Error())
	assert.Equal(t, "sensor bus_fault", (&Error{Kind: KindBusFault}).Error())
	assert.Equal(t, Kind(""), KindOf(errors.New("plain")))
}
