package activity

import (
	"time"

	"github.com/google/uuid"

	"fitChallengeAPI/internal/types/challenge"
)

// Fixed activity vocabulary. Challenge rules and the points UI are keyed to
// these names; anything else a user types in is stored as TypeCustom with the
// original name preserved in the notes field.
const (
	TypeWorkout       = "Workout"
	TypeSteps         = "Steps"
	TypeSleep         = "Sleep"
	TypeScreenTime    = "Screen Time"
	TypeNoSugars      = "No Sugars"
	TypeHighIntensity = "High Intensity"
	TypeYoga          = "Yoga"
	TypeCount         = "Count"
	TypeCustom        = "Custom"
)

var knownTypes = map[string]bool{
	TypeWorkout:       true,
	TypeSteps:         true,
	TypeSleep:         true,
	TypeScreenTime:    true,
	TypeNoSugars:      true,
	TypeHighIntensity: true,
	TypeYoga:          true,
	TypeCount:         true,
}

// CustomNotePrefix marks the notes entry that carries the user's original
// activity name after canonicalization.
const CustomNotePrefix = "CustomName: "

// Canonicalize maps a user-entered activity type onto the fixed vocabulary.
// Unknown names become TypeCustom and the returned notes value keeps the
// original so it can still be displayed.
func Canonicalize(activityType string) (canonical string, notes string) {
	if knownTypes[activityType] {
		return activityType, ""
	}
	return TypeCustom, CustomNotePrefix + activityType
}

type Source string

const (
	SourceManual    Source = "manual"
	SourceHealthKit Source = "healthkit"
)

// Activity is one recorded measurement. Exactly one value field is
// authoritative, named by Metric; the others stay zero.
type Activity struct {
	ID              uuid.UUID        `json:"id" db:"id"`
	UserID          uuid.UUID        `json:"userId" db:"user_id"`
	ActivityType    string           `json:"activityType" db:"activity_type"`
	Metric          challenge.Metric `json:"metric" db:"metric"`
	DurationMinutes float64          `json:"durationMinutes" db:"duration_minutes"`
	DistanceKm      float64          `json:"distanceKm" db:"distance_km"`
	Calories        float64          `json:"calories" db:"calories"`
	Steps           float64          `json:"steps" db:"steps"`
	CountValue      float64          `json:"countValue" db:"count_value"`
	Notes           string           `json:"notes,omitempty" db:"notes"`
	Source          Source           `json:"source" db:"source"`
	CreatedAt       time.Time        `json:"createdAt" db:"created_at"`
}

// Value returns the measurement named by the metric tag. Stored units are
// canonical: minutes for time, kilometers for distance.
func (a *Activity) Value() float64 {
	switch a.Metric {
	case challenge.MetricTime:
		return a.DurationMinutes
	case challenge.MetricDistanceKm, challenge.MetricDistanceMiles:
		return a.DistanceKm
	case challenge.MetricCalories:
		return a.Calories
	case challenge.MetricSteps:
		return a.Steps
	case challenge.MetricCount:
		return a.CountValue
	}
	return 0
}

// LogActivityRequest is one user action. Each supplied metric value produces
// its own stored Activity row.
type LogActivityRequest struct {
	ActivityType string        `json:"activityType"`
	Source       Source        `json:"source"`
	Values       []MetricValue `json:"values"`
}

// MetricValue carries one measurement in the user's input units: hours for
// time, km or miles for distance depending on the metric.
type MetricValue struct {
	Metric challenge.Metric `json:"metric"`
	Value  float64          `json:"value"`
}
