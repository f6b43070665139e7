package telemetry

import (
	"math"
	"time"
)

// Irradiance model constants, in W/m².
const (
	PeakIrradiance         = 1200.0
	DailyAverageIrradiance = 780.0
	irradianceEfficiency   = 0.8
)

// Irradiance is a simulated solar irradiance estimate.
type Irradiance struct {
	Current      float64   `json:"current_irradiation"`
	Peak         float64   `json:"peak_irradiation"`
	DailyAverage float64   `json:"daily_average"`
	Unit         string    `json:"unit"`
	Timestamp    time.Time `json:"timestamp"`
}

// EstimateIrradiance estimates irradiance from the sun's elevation in
// degrees. Angles at or below the horizon yield zero.
func EstimateIrradiance(sunAngle float64, at time.Time) Irradiance {
	current := math.Max(0, PeakIrradiance*(sunAngle/90)*irradianceEfficiency)
	return Irradiance{
		Current:      math.Round(current*10) / 10,
		Peak:         PeakIrradiance,
		DailyAverage: DailyAverageIrradiance,
		Unit:         "W/m²",
		Timestamp:    at,
	}
}
