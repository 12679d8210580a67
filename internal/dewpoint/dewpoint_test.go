package dewpoint

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCalculateKnownValues(t *testing.T) {
	tests := []struct {
		name string
		t    float64
		rh   float64
		want float64
	}{
		{"saturated air equals ambient", 20, 100, 20},
		{"bathroom after shower", 24, 85, 21.32},
		{"typical room", 20, 50, 9.25},
		{"cold and dry", 5, 30, -11.13},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Calculate(tt.t, tt.rh)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, res.DewPointC, 0.05)
			assert.False(t, res.OutOfTypicalRange)
		})
	}
}

func TestCalculateNeverExceedsAmbient(t *testing.T) {
	for temp := -50.0; temp <= 50; temp += 2.5 {
		for rh := 0.5; rh <= 100; rh += 0.5 {
			res, err := Calculate(temp, rh)
			require.NoError(t, err, "T=%v RH=%v", temp, rh)
			// Tolerance covers float rounding at RH=100 where Td == T.
			assert.LessOrEqual(t, res.DewPointC, temp+1e-9, "T=%v RH=%v", temp, rh)
		}
	}
}

func TestCalculateMonotonicInHumidity(t *testing.T) {
	for temp := -50.0; temp <= 50; temp += 5 {
		prev := math.Inf(-1)
		for rh := 0.25; rh <= 100; rh += 0.25 {
			res, err := Calculate(temp, rh)
			require.NoError(t, err)
			if res.DewPointC < prev {
				t.Fatalf("T=%v: dew point decreased from %v to %v at RH=%v", temp, prev, res.DewPointC, rh)
			}
			prev = res.DewPointC
		}
	}
}

func TestCalculateZeroHumidityIsDegenerate(t *testing.T) {
	res, err := Calculate(20, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDegenerateInput))
	assert.False(t, errors.Is(err, ErrInvalidInput))
	assert.False(t, math.IsNaN(res.DewPointC))
}

func TestCalculateHumidityOutOfRange(t *testing.T) {
	for _, rh := range []float64{-0.1, -50, 100.01, 250, math.NaN()} {
		_, err := Calculate(20, rh)
		require.Error(t, err, "RH=%v", rh)
		assert.ErrorIs(t, err, ErrInvalidHumidity)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestCalculateBoundaryHumidityAccepted(t *testing.T) {
	_, err := Calculate(20, 100)
	assert.NoError(t, err)
}

func TestCalculateOutOfTypicalRange(t *testing.T) {
	for _, temp := range []float64{-60, -50.5, 50.5, 70} {
		res, err := Calculate(temp, 50)
		require.NoError(t, err, "T=%v", temp)
		assert.True(t, res.OutOfTypicalRange, "T=%v", temp)
		assert.False(t, math.IsNaN(res.DewPointC))
	}

	for _, temp := range []float64{-50, 0, 50} {
		res, err := Calculate(temp, 50)
		require.NoError(t, err)
		assert.False(t, res.OutOfTypicalRange, "T=%v", temp)
	}
}

func TestCalculateRejectsNonFiniteTemperature(t *testing.T) {
	for _, temp := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err := Calculate(temp, 50)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestCalculateDeterministic(t *testing.T) {
	a, errA := Calculate(22.3, 67.8)
	b, errB := Calculate(22.3, 67.8)
	require.NoError(t, errA)
	require.NoError(t, errB)
	assert.Equal(t, a, b)
}
