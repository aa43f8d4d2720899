package config

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/oshokin/remo-automation/internal/domain/automation"
)

// Automation is the immutable rule and device set built from a Config.
type Automation struct {
	// Devices are the devices with a vendor identifier.
	Devices automation.Devices
	// Thresholds are evaluated against every sensor reading, in this order.
	Thresholds []automation.ThresholdRule
	// Schedule lists the time rules in declaration order.
	Schedule []automation.TimeRule
	// Location is the timezone schedule times are interpreted in.
	Location *time.Location
	// Skipped collects rules and devices left out of the automation.
	// They are reported as warnings rather than failing startup.
	Skipped []error
}

// SensorDevices returns the polled devices sorted by logical name.
func (a *Automation) SensorDevices() []automation.DeviceRef {
	sensors := make([]automation.DeviceRef, 0, len(a.Devices))

	for _, device := range a.Devices {
		if device.Sensor {
			sensors = append(sensors, device)
		}
	}

	slices.SortFunc(sensors, func(x, y automation.DeviceRef) int {
		switch {
		case x.Name < y.Name:
			return -1
		case x.Name > y.Name:
			return 1
		default:
			return 0
		}
	})

	return sensors
}

// errDeviceWithoutID is reported for configured devices that have no vendor identifier.
var errDeviceWithoutID = errors.New("device has no id")

// Compile resolves action names, parses times and comparators, and checks that
// threshold bounds do not overlap. Actions with unknown names or incomplete
// aircon settings are skipped and reported in Automation.Skipped. Any other
// problem is an ErrInvalidConfig.
func (c *Config) Compile() (*Automation, error) {
	location, err := c.Location()
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %w", ErrInvalidConfig, c.Timezone, err)
	}

	result := &Automation{
		Devices:  make(automation.Devices, len(c.Devices)),
		Location: location,
	}

	for name, device := range c.Devices {
		if device.ID == "" {
			result.Skipped = append(result.Skipped, fmt.Errorf("%s: %w", name, errDeviceWithoutID))

			continue
		}

		result.Devices[name] = automation.DeviceRef{
			Name:     name,
			ID:       device.ID,
			Sensor:   device.Sensor == nil || *device.Sensor,
			Defaults: device.Settings.Clone(),
		}
	}

	for _, candidate := range c.thresholdCandidates() {
		comparator, err := automation.ParseComparator(candidate.Comparator)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
		}

		action, err := c.resolve(candidate.Action)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Errorf("rule %s%s%v: %w",
				candidate.Metric, candidate.Comparator, candidate.Threshold, err))

			continue
		}

		result.Thresholds = append(result.Thresholds, automation.ThresholdRule{
			Metric:     candidate.Metric,
			Comparator: comparator,
			Threshold:  candidate.Threshold,
			Action:     action,
		})
	}

	if err = automation.ValidateThresholds(result.Thresholds); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	seen := make(map[string]int, len(c.Schedule))

	for i, entry := range c.Schedule {
		at, err := automation.ParseTimeOfDay(entry.Time)
		if err != nil {
			return nil, fmt.Errorf("%w: schedule[%d]: %w", ErrInvalidConfig, i, err)
		}

		action, err := c.resolve(entry.ActionConfig)
		if err != nil {
			result.Skipped = append(result.Skipped, fmt.Errorf("schedule %s: %w", entry.Time, err))

			continue
		}

		key := automation.TimeRule{At: at, Action: action}.ID()

		result.Schedule = append(result.Schedule, automation.TimeRule{At: at, Action: action, Seq: seen[key]})
		seen[key]++
	}

	return result, nil
}

// thresholdCandidates lists the built-in rules followed by the free-form ones.
// Built-in rules with a nil threshold are disabled.
func (c *Config) thresholdCandidates() []ThresholdConfig {
	var candidates []ThresholdConfig

	temperature := c.Automation.Temperature
	if temperature.HighThreshold != nil {
		candidates = append(candidates, ThresholdConfig{
			Metric:     automation.MetricTemperature,
			Comparator: string(automation.Above),
			Threshold:  *temperature.HighThreshold,
			Action:     temperature.ActionHigh,
		})
	}

	if temperature.LowThreshold != nil {
		candidates = append(candidates, ThresholdConfig{
			Metric:     automation.MetricTemperature,
			Comparator: string(automation.Below),
			Threshold:  *temperature.LowThreshold,
			Action:     temperature.ActionLow,
		})
	}

	humidity := c.Automation.Humidity
	if humidity.HighThreshold != nil {
		candidates = append(candidates, ThresholdConfig{
			Metric:     automation.MetricHumidity,
			Comparator: string(automation.Above),
			Threshold:  *humidity.HighThreshold,
			Action:     humidity.Action,
		})
	}

	return append(candidates, c.Automation.Rules...)
}

// resolve turns an action descriptor into a typed action using the device defaults.
func (c *Config) resolve(descriptor ActionConfig) (automation.Action, error) {
	params := make(map[string]string, len(descriptor.Params))
	for key, value := range descriptor.Params {
		params[key] = fmt.Sprint(value)
	}

	defaults := c.Devices[descriptor.Device].Settings

	return automation.ResolveAction(descriptor.Device, descriptor.Action, params, defaults)
}
