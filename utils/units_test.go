package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHoursMinutesRoundTrip(t *testing.T) {
	assert.Equal(t, 90.0, HoursToMinutes(1.5))
	assert.Equal(t, 1.5, MinutesToHours(90))
	assert.Equal(t, 0.0, HoursToMinutes(0))
}

func TestMilesKmConversion(t *testing.T) {
	assert.InDelta(t, 1.60934, MilesToKm(1), 1e-9)
	assert.InDelta(t, 0.621371, KmToMiles(1), 1e-9)
}

func TestDistanceRoundTripWithinTolerance(t *testing.T) {
	for _, x := range []float64{0, 0.1, 1, 5, 42.195, 1000} {
		assert.InDelta(t, x, MilesToKm(KmToMiles(x)), x*1e-4+1e-9, "round trip for %v", x)
	}
}
