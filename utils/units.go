package utils

// Conversion factors between display units and the canonical storage units
// (kilometers for distance, minutes for time).
const (
	KmPerMile   = 1.60934
	MilesPerKm  = 0.621371
	MinutesHour = 60.0
)

func KmToMiles(km float64) float64 {
	return km * MilesPerKm
}

func MilesToKm(miles float64) float64 {
	return miles * KmPerMile
}

func MinutesToHours(minutes float64) float64 {
	return minutes / MinutesHour
}

func HoursToMinutes(hours float64) float64 {
	return hours * MinutesHour
}
