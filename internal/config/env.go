package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment variables recognised by applyEnvOverrides.
const (
	EnvAPIToken        = "NATURE_REMO_API_TOKEN"
	EnvBaseURL         = "NATURE_REMO_BASE_URL"
	EnvAirconID        = "NATURE_REMO_AIRCON_ID"
	EnvLightID         = "NATURE_REMO_LIGHT_ID"
	EnvSensorDevices   = "NATURE_REMO_SENSOR_DEVICES"
	EnvAirconMode      = "DEFAULT_AIRCON_MODE"
	EnvAirconTemp      = "DEFAULT_AIRCON_TEMP"
	EnvAirconFan       = "DEFAULT_AIRCON_FAN"
	EnvTempHigh        = "TEMP_HIGH_THRESHOLD"
	EnvTempLow         = "TEMP_LOW_THRESHOLD"
	EnvHumidityHigh    = "HUMIDITY_HIGH_THRESHOLD"
	EnvSchedule        = "SCHEDULE_CONFIG"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFile         = "LOG_FILE"
	EnvLogFormat       = "LOG_FORMAT"
	EnvPollInterval    = "POLL_INTERVAL"
	EnvTimezone        = "TIMEZONE"
	EnvStateFile       = "STATE_FILE"
	EnvMQTTBroker      = "MQTT_BROKER"
	EnvMQTTUsername    = "MQTT_USERNAME"
	EnvMQTTPassword    = "MQTT_PASSWORD"
	EnvMQTTTopicPrefix = "MQTT_TOPIC_PREFIX"
)

// lookupFunc resolves an environment variable.
type lookupFunc func(key string) (string, bool)

// envLookup returns a lookup that prefers the process environment and falls
// back to the dotenv file. The process environment is never modified.
func envLookup(envFile string, processEnv lookupFunc) (lookupFunc, error) {
	optional := envFile == ""
	if optional {
		envFile = DefaultEnvFilename
	}

	fileEnv, err := godotenv.Read(filepath.Clean(envFile))
	if err != nil {
		if !optional || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read env file: %w", err)
		}

		fileEnv = nil
	}

	return func(key string) (string, bool) {
		if value, ok := processEnv(key); ok {
			return value, true
		}

		value, ok := fileEnv[key]

		return value, ok
	}, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Empty variables are ignored. Malformed numbers, durations and JSON are errors.
//
//nolint:cyclop,funlen // Flat list of independent overrides.
func applyEnvOverrides(cfg *Config, lookup lookupFunc) error {
	get := func(key string) (string, bool) {
		value, ok := lookup(key)
		value = strings.TrimSpace(value)

		return value, ok && value != ""
	}

	var errs []error

	parseFloat := func(key string, dst **float64) {
		value, ok := get(key)
		if !ok {
			return
		}

		number, err := strconv.ParseFloat(value, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, key, err))

			return
		}

		*dst = &number
	}

	// API.
	if v, ok := get(EnvAPIToken); ok {
		cfg.API.Token = v
	}

	if v, ok := get(EnvBaseURL); ok {
		cfg.API.BaseURL = v
	}

	// Devices.
	if cfg.Devices == nil {
		cfg.Devices = make(map[string]DeviceConfig)
	}

	if v, ok := get(EnvAirconID); ok {
		device := cfg.Devices[DeviceAircon]
		device.ID = v
		cfg.Devices[DeviceAircon] = device
	}

	if v, ok := get(EnvLightID); ok {
		device := cfg.Devices[DeviceLight]
		device.ID = v
		cfg.Devices[DeviceLight] = device
	}

	aircon := cfg.Devices[DeviceAircon]

	if v, ok := get(EnvAirconMode); ok {
		aircon.Settings.Mode = v
	}

	if v, ok := get(EnvAirconTemp); ok {
		aircon.Settings.Temp = v
	}

	if v, ok := get(EnvAirconFan); ok {
		aircon.Settings.Fan = v
	}

	if _, exists := cfg.Devices[DeviceAircon]; exists || aircon.Settings.Mode != "" {
		cfg.Devices[DeviceAircon] = aircon
	}

	if v, ok := get(EnvSensorDevices); ok {
		sensors := make(map[string]bool)
		for _, name := range strings.Split(v, ",") {
			sensors[strings.TrimSpace(name)] = true
		}

		for name, device := range cfg.Devices {
			device.Sensor = ptr(sensors[name])
			cfg.Devices[name] = device
		}
	}

	// Thresholds.
	parseFloat(EnvTempHigh, &cfg.Automation.Temperature.HighThreshold)
	parseFloat(EnvTempLow, &cfg.Automation.Temperature.LowThreshold)
	parseFloat(EnvHumidityHigh, &cfg.Automation.Humidity.HighThreshold)

	// Schedule.
	if v, ok := get(EnvSchedule); ok {
		var entries []ScheduleEntry
		if err := json.Unmarshal([]byte(v), &entries); err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvSchedule, err))
		} else {
			cfg.Schedule = entries
		}
	}

	// Loop.
	if v, ok := get(EnvPollInterval); ok {
		interval, err := parseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, EnvPollInterval, err))
		} else {
			cfg.PollInterval = interval
		}
	}

	if v, ok := get(EnvTimezone); ok {
		cfg.Timezone = v
	}

	if v, ok := get(EnvStateFile); ok {
		cfg.StateFile = v
	}

	// Logging.
	if v, ok := get(EnvLogLevel); ok {
		cfg.Logging.Level = v
	}

	if v, ok := get(EnvLogFile); ok {
		cfg.Logging.Output = v
	}

	// Older deployments used LOG_FORMAT for a message template; only format names apply.
	if v, ok := get(EnvLogFormat); ok {
		switch strings.ToLower(v) {
		case "console", "json":
			cfg.Logging.Format = v
		default:
			cfg.ignored = append(cfg.ignored,
				fmt.Sprintf("%s=%q is not console or json, keeping %q", EnvLogFormat, v, cfg.Logging.Format))
		}
	}

	// MQTT.
	if v, ok := get(EnvMQTTBroker); ok {
		cfg.MQTT.Broker = v
		cfg.MQTT.Enabled = true
	}

	if v, ok := get(EnvMQTTUsername); ok {
		cfg.MQTT.Username = v
	}

	if v, ok := get(EnvMQTTPassword); ok {
		cfg.MQTT.Password = v
	}

	if v, ok := get(EnvMQTTTopicPrefix); ok {
		cfg.MQTT.TopicPrefix = v
	}

	return errors.Join(errs...)
}

// parseDuration accepts Go durations ("90s") and plain seconds ("60").
func parseDuration(s string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(s); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	return time.ParseDuration(s)
}
