// Package dewpoint derives the dew point from temperature and relative humidity
// using the Magnus approximation. It has no dependencies and no side effects.
package dewpoint

import (
	"errors"
	"fmt"
	"math"
)

// Magnus coefficients.
const (
	A = 17.27
	B = 237.7 // °C

	// saturationBase is the saturation vapor pressure at 0 °C, in hPa.
	saturationBase = 6.112
)

// Range in which the approximation is considered typical. Values outside are
// still computed but flagged.
const (
	TypicalMinC = -50.0
	TypicalMaxC = 50.0
)

var (
	// ErrInvalidInput is the class of all rejected inputs.
	ErrInvalidInput = errors.New("dewpoint: invalid input")

	// ErrInvalidHumidity is returned when humidity is outside [0, 100].
	ErrInvalidHumidity = fmt.Errorf("%w: relative humidity out of range", ErrInvalidInput)

	// ErrDegenerateInput is returned when the vapor pressure is not positive
	// (RH = 0), so no dew point can be derived.
	ErrDegenerateInput = errors.New("dewpoint: degenerate input")
)

// Result is a computed dew point.
type Result struct {
	DewPointC float64
	// OutOfTypicalRange is set when the temperature lies outside
	// [TypicalMinC, TypicalMaxC]. The value is best-effort only.
	OutOfTypicalRange bool
}

// Calculate returns the dew point for tempC (°C) and rhPct (0-100 %).
func Calculate(tempC, rhPct float64) (Result, error) {
	if math.IsNaN(rhPct) || rhPct < 0 || rhPct > 100 {
		return Result{}, fmt.Errorf("%w: %v%%", ErrInvalidHumidity, rhPct)
	}
	if math.IsNaN(tempC) || math.IsInf(tempC, 0) {
		return Result{}, fmt.Errorf("%w: temperature %v", ErrInvalidInput, tempC)
	}

	res := Result{OutOfTypicalRange: tempC < TypicalMinC || tempC > TypicalMaxC}

	es := saturationBase * math.Exp(A*tempC/(B+tempC))
	e := rhPct / 100 * es
	if e <= 0 || math.IsNaN(e) {
		return Result{}, fmt.Errorf("%w: vapor pressure %v hPa", ErrDegenerateInput, e)
	}

	gamma := math.Log(e / saturationBase)
	res.DewPointC = B * gamma / (A - gamma)
	return res, nil
}
