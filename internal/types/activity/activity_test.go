package activity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"fitChallengeAPI/internal/types/challenge"
)

func TestCanonicalizeKnownTypes(t *testing.T) {
	for _, name := range []string{
		TypeWorkout, TypeSteps, TypeSleep, TypeScreenTime,
		TypeNoSugars, TypeHighIntensity, TypeYoga, TypeCount,
	} {
		canonical, notes := Canonicalize(name)
		assert.Equal(t, name, canonical)
		assert.Empty(t, notes)
	}
}

func TestCanonicalizeUnknownTypeBecomesCustom(t *testing.T) {
	canonical, notes := Canonicalize("Underwater Basket Weaving")
	assert.Equal(t, TypeCustom, canonical)
	assert.Equal(t, "CustomName: Underwater Basket Weaving", notes)
}

func TestCanonicalizeIsCaseSensitive(t *testing.T) {
	canonical, notes := Canonicalize("yoga")
	assert.Equal(t, TypeCustom, canonical)
	assert.Contains(t, notes, "yoga")
}

func TestValueSelectsAuthoritativeField(t *testing.T) {
	act := &Activity{
		Metric:          challenge.MetricSteps,
		Steps:           5000,
		DurationMinutes: 12, // stale artifact, must be ignored
	}
	assert.Equal(t, 5000.0, act.Value())

	act.Metric = challenge.MetricTime
	assert.Equal(t, 12.0, act.Value())

	act.Metric = challenge.MetricDistanceMiles
	act.DistanceKm = 8.0467
	assert.Equal(t, 8.0467, act.Value())
}
