package telemetry

import "github.com/nerrad567/solar-gateway/internal/device"

// statisticsWindow is how many recent samples statistics are computed over.
const statisticsWindow = 100

// Statistics summarises recent tracking performance.
type Statistics struct {
	AverageTrackingError float64        `json:"average_tracking_error"`
	MaximumTrackingError float64        `json:"maximum_tracking_error"`
	AverageMotorPower    float64        `json:"average_motor_power"`
	ModeDistribution     map[string]int `json:"mode_distribution"`
	DataPointsCollected  int            `json:"data_points_collected"`
	CollectionRunning    bool           `json:"collection_running"`
}

// ComputeStatistics summarises samples. total is the full history length
// and running reports whether the aggregator loop is active.
func ComputeStatistics(samples []TrackingSample, total int, running bool) Statistics {
	stats := Statistics{
		ModeDistribution:    make(map[string]int),
		DataPointsCollected: total,
		CollectionRunning:   running,
	}
	if len(samples) == 0 {
		return stats
	}

	var sumErr, maxErr, sumPower float64
	for _, s := range samples {
		sumErr += s.Error
		if s.Error > maxErr {
			maxErr = s.Error
		}
		sumPower += s.MotorPower
		stats.ModeDistribution[string(s.Mode)]++
	}

	n := float64(len(samples))
	stats.AverageTrackingError = device.Round(sumErr/n, 2)
	stats.MaximumTrackingError = device.Round(maxErr, 2)
	stats.AverageMotorPower = device.Round(sumPower/n, 1)
	return stats
}
