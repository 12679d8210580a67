package sensor

import (
	"context"
	"errors"
)

// FakeReader is a test double that returns scripted readings.
type FakeReader struct {
	// Readings contains scripted results to return.
	// Each call to Read() consumes the next reading.
	Readings []Reading

	// index tracks current position in Readings
	index int

	// Calls counts Read invocations.
	Calls int

	// Closed tracks if Close was called
	Closed bool

	// ReadError, if set, will be returned by Read()
	ReadError error
}

// Reading is a scripted Read result.
type Reading struct {
	Sample Sample
	Err    error
}

// NewFakeReader creates a FakeReader with the given readings.
func NewFakeReader(readings ...Reading) *FakeReader {
	return &FakeReader{Readings: readings}
}

// Ok is shorthand for a successful reading.
func Ok(tempC, rhPct float64) Reading {
	return Reading{Sample: Sample{TemperatureC: tempC, HumidityPct: rhPct}}
}

// Fail is shorthand for a failed reading of the given kind.
func Fail(kind Kind) Reading {
	return Reading{Err: &Error{Kind: kind, Err: errors.New("scripted failure")}}
}

// Read returns the next scripted reading.
// If readings are exhausted, returns the last reading repeatedly.
func (f *FakeReader) Read(ctx context.Context) (Sample, error) {
	f.Calls++
	if f.ReadError != nil {
		return Sample{}, f.ReadError
	}

	if len(f.Readings) == 0 {
		return Sample{}, &Error{Kind: KindNotReady, Err: errors.New("no readings configured")}
	}

	r := f.Readings[f.index]
	if f.index < len(f.Readings)-1 {
		f.index++
	}

	return r.Sample, r.Err
}

// Close marks the reader as closed.
func (f *FakeReader) Close() error {
	f.Closed = true
	return nil
}

// Reset resets the reader to the beginning of readings.
func (f *FakeReader) Reset() {
	f.index = 0
	f.Calls = 0
	f.Closed = false
}
