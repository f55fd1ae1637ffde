package models

// SensorStateAbsent is the Redfish Status.State of a sensor that is not fitted.
const SensorStateAbsent = "Absent"

// ThermalReading is a single temperature sensor value.
type ThermalReading struct {
	Name    string
	Celsius float64 // 0 when the sensor is absent
	Present bool
	State   string
}

// TemperatureStats aggregates the present readings of one query.
type TemperatureStats struct {
	Min   float64
	Max   float64
	Mean  float64
	Count int
}

// TemperatureResult holds the result of a thermal query.
type TemperatureResult struct {
	Readings []ThermalReading
	Stats    *TemperatureStats // nil if no sensor is present
	Error    error
}

// Celsius returns the raw readings in controller order, absent placeholders included.
func (r *TemperatureResult) Celsius() []float64 {
	if r == nil {
		return nil
	}

	values := make([]float64, len(r.Readings))
	for i, reading := range r.Readings {
		values[i] = reading.Celsius
	}
	return values
}

// Available reports whether the query produced data. An empty result means
// the data is unavailable, not that the chassis has zero sensors.
func (r *TemperatureResult) Available() bool {
	return r != nil && r.Error == nil && len(r.Readings) > 0
}

// ComputeTemperatureStats returns min, max and mean over present readings.
// Absent sensors report 0 and would otherwise drag the minimum down.
func ComputeTemperatureStats(readings []ThermalReading) *TemperatureStats {
	var stats *TemperatureStats
	var sum float64

	for _, reading := range readings {
		if !reading.Present {
			continue
		}

		if stats == nil {
			stats = &TemperatureStats{Min: reading.Celsius, Max: reading.Celsius}
		}
		if reading.Celsius < stats.Min {
			stats.Min = reading.Celsius
		}
		if reading.Celsius > stats.Max {
			stats.Max = reading.Celsius
		}
		sum += reading.Celsius
		stats.Count++
	}

	if stats != nil {
		stats.Mean = sum / float64(stats.Count)
	}
	return stats
}
