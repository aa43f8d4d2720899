package automation

import "maps"

// DeviceRef binds a logical device name to its vendor identifier.
type DeviceRef struct {
	// Name is the logical name used by actions ("aircon", "light").
	Name string
	// ID is the vendor device or appliance identifier.
	ID string
	// Sensor marks devices polled for sensor readings every tick.
	Sensor bool
	// Defaults are the aircon settings merged under set_aircon params.
	Defaults AirconSettings
}

// Devices is the immutable device map keyed by logical name.
type Devices map[string]DeviceRef

// Lookup returns the device with the given logical name.
func (d Devices) Lookup(name string) (DeviceRef, bool) {
	ref, ok := d[name]

	return ref, ok
}

// Metric names of a SensorReading.
const (
	MetricTemperature = "temperature"
	MetricHumidity    = "humidity"
	MetricIlluminance = "illuminance"
	MetricMotion      = "motion"
)

// SensorReading maps a metric name to its value for a single tick.
type SensorReading map[string]float64

// Value returns the metric value and whether it was present.
func (r SensorReading) Value(metric string) (float64, bool) {
	value, ok := r[metric]

	return value, ok
}

// Clone returns a copy of the reading.
func (r SensorReading) Clone() SensorReading {
	return maps.Clone(r)
}
