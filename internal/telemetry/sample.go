// Package telemetry defines the per-tick health metric sample and the
// bounded synthetic fallback used when a peripheral exposes no readable
// metric characteristics.
package telemetry

import "time"

// Metric names used as keys in Sample.Metrics.
const (
	MetricHeartRate         = "heartRate"
	MetricSteps             = "steps"
	MetricCalories          = "caloriesBurned"
	MetricDistanceKm        = "distanceKm"
	MetricOxygenSaturation  = "oxygenSaturation"
	MetricSystolicPressure  = "bloodPressureSystolic"
	MetricDiastolicPressure = "bloodPressureDiastolic"
	MetricSleepHours        = "sleepHours"
	MetricBatteryLevel      = "batteryLevel"
)

// Sample is one telemetry reading, produced once per sampling tick and
// handed straight to the backend sync client. It is not retained beyond
// the tick; history storage is the backend's job.
type Sample struct {
	Timestamp  time.Time          `json:"timestamp"`
	DeviceID   string             `json:"device_id"`
	DeviceType string             `json:"device_type"`
	Metrics    map[string]float64 `json:"data"`

	// SourceIsDevice is true when the metrics were read from the live
	// transport, false when they were synthesized. Downstream consumers
	// depend on the flag to distinguish the two paths; they are never
	// silently merged.
	SourceIsDevice bool `json:"source_is_device"`
}
