package telemetry

import (
	"math/rand"

	"github.com/xevox/wearlink/internal/classify"
)

// metricRange bounds one synthesized metric. Values are drawn uniformly
// from [Min, Max); integral metrics are rounded down.
type metricRange struct {
	Min, Max float64
	Integral bool
}

// Bounds loosely resemble resting human values. They intentionally match
// what the shipped product generated so downstream dashboards see the same
// shape of data.
var metricRanges = map[string]metricRange{
	MetricHeartRate:         {60, 90, true},
	MetricSteps:             {5000, 8000, true},
	MetricCalories:          {1200, 1700, true},
	MetricDistanceKm:        {2, 5, false},
	MetricOxygenSaturation:  {95, 100, true},
	MetricSystolicPressure:  {110, 130, true},
	MetricDiastolicPressure: {70, 85, true},
	MetricSleepHours:        {6, 8, false},
	MetricBatteryLevel:      {20, 100, true},
}

// typeMetrics lists which metrics each device family reports. Families not
// listed fall back to the fitness_tracker set.
var typeMetrics = map[string][]string{
	classify.TypeET475: {
		MetricHeartRate, MetricSteps, MetricCalories, MetricDistanceKm,
		MetricOxygenSaturation, MetricSystolicPressure, MetricDiastolicPressure,
		MetricSleepHours, MetricBatteryLevel,
	},
	classify.TypeVeePoo: {
		MetricHeartRate, MetricSteps, MetricCalories, MetricDistanceKm,
		MetricOxygenSaturation, MetricSystolicPressure, MetricDiastolicPressure,
		MetricSleepHours, MetricBatteryLevel,
	},
	classify.TypeHBand: {
		MetricHeartRate, MetricSteps, MetricCalories, MetricDistanceKm,
		MetricOxygenSaturation, MetricSleepHours, MetricBatteryLevel,
	},
	classify.TypeSmartwatch: {
		MetricHeartRate, MetricSteps, MetricCalories, MetricDistanceKm,
		MetricSleepHours, MetricBatteryLevel,
	},
	classify.TypeMiBand: {
		MetricHeartRate, MetricSteps, MetricCalories, MetricDistanceKm, MetricSleepHours,
	},
	classify.TypeAmazfit: {
		MetricHeartRate, MetricSteps, MetricCalories, MetricDistanceKm, MetricSleepHours,
	},
	classify.TypeFitnessTracker: {
		MetricHeartRate, MetricSteps, MetricCalories, MetricDistanceKm, MetricSleepHours,
	},
}

// Synthesize draws each metric for the given device type independently
// from its bounded range. This is an explicit stand-in for real sensor
// decoding: most tracker families use proprietary protocols this client
// does not decode, and downstream consumers require some value to always
// be present once a device is connected.
func Synthesize(deviceType string, rng *rand.Rand) map[string]float64 {
	names, ok := typeMetrics[deviceType]
	if !ok {
		names = typeMetrics[classify.TypeFitnessTracker]
	}

	metrics := make(map[string]float64, len(names))
	for _, name := range names {
		r := metricRanges[name]
		v := r.Min + rng.Float64()*(r.Max-r.Min)
		if r.Integral {
			v = float64(int(v))
		}
		metrics[name] = v
	}
	return metrics
}

// MetricNames returns the metric set a device family reports.
func MetricNames(deviceType string) []string {
	names, ok := typeMetrics[deviceType]
	if !ok {
		names = typeMetrics[classify.TypeFitnessTracker]
	}
	out := make([]string, len(names))
	copy(out, names)
	return out
}
