package config

import (
	"errors"
	"fmt"
	"maps"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/oshokin/remo-automation/internal/domain/automation"
)

// Config is the root configuration of the automation process.
type Config struct {
	// API holds the vendor API credentials and endpoint.
	API APIConfig `yaml:"api"`
	// Devices maps logical device names to vendor identifiers.
	Devices map[string]DeviceConfig `yaml:"devices"`
	// Automation holds the threshold rules.
	Automation AutomationConfig `yaml:"automation"`
	// Schedule lists time-based actions.
	Schedule []ScheduleEntry `yaml:"schedule"`
	// PollInterval is the tick period of the scheduler loop.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Timezone is the IANA zone schedule times are interpreted in ("Local" by default).
	Timezone string `yaml:"timezone"`
	// StateFile stores when time rules last fired. Empty disables persistence.
	StateFile string `yaml:"state_file"`
	// Logging configures the logger.
	Logging LoggingConfig `yaml:"logging"`
	// MQTT configures the optional event publisher.
	MQTT MQTTConfig `yaml:"mqtt"`

	// ignored lists environment values that were recognized but not applied.
	ignored []string
}

// Ignored describes the environment values Load left unapplied, for logging.
func (c *Config) Ignored() []string {
	return c.ignored
}

// APIConfig contains vendor API settings.
type APIConfig struct {
	Token   string        `yaml:"token"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DeviceConfig binds a logical device to its vendor identifier.
type DeviceConfig struct {
	// ID is the vendor device or appliance identifier.
	ID string `yaml:"id"`
	// Sensor marks the device as polled for readings. Nil means polled.
	Sensor *bool `yaml:"sensor,omitempty"`
	// Settings are default aircon settings merged under set_aircon params.
	Settings automation.AirconSettings `yaml:"settings,omitempty"`
}

// ActionConfig is an action descriptor as written in the configuration.
type ActionConfig struct {
	Device string         `json:"device" yaml:"device"`
	Action string         `json:"action" yaml:"action"`
	Params map[string]any `json:"params" yaml:"params,omitempty"`
}

// ScheduleEntry is a time-of-day action.
type ScheduleEntry struct {
	// Time is "HH:MM" in the configured timezone.
	Time string `json:"time" yaml:"time"`

	ActionConfig `yaml:",inline"`
}

// AutomationConfig contains threshold rules.
type AutomationConfig struct {
	Temperature TemperatureConfig `yaml:"temperature"`
	Humidity    HumidityConfig    `yaml:"humidity"`
	// Rules are additional threshold rules evaluated after the built-in ones.
	Rules []ThresholdConfig `yaml:"rules,omitempty"`
}

// TemperatureConfig contains the high and low temperature rules.
// A nil threshold disables the corresponding rule.
type TemperatureConfig struct {
	HighThreshold *float64     `yaml:"high_threshold"`
	LowThreshold  *float64     `yaml:"low_threshold"`
	ActionHigh    ActionConfig `yaml:"action_high"`
	ActionLow     ActionConfig `yaml:"action_low"`
}

// HumidityConfig contains the high humidity rule.
type HumidityConfig struct {
	HighThreshold *float64     `yaml:"high_threshold"`
	Action        ActionConfig `yaml:"action"`
}

// ThresholdConfig is a free-form threshold rule.
type ThresholdConfig struct {
	Metric     string       `yaml:"metric"`
	Comparator string       `yaml:"comparator"`
	Threshold  float64      `yaml:"threshold"`
	Action     ActionConfig `yaml:"action"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`
	// Format is console or json.
	Format string `yaml:"format"`
	// Output is stdout, stderr or a file path.
	Output string `yaml:"output"`
}

// MQTTConfig contains the optional event publisher settings.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
	TopicPrefix string `yaml:"topic_prefix"`
	QoS         int    `yaml:"qos"`
}

const (
	// DefaultConfigFilename is the default filename for settings.
	DefaultConfigFilename = "remo-automation.yaml"

	// DefaultEnvFilename is the dotenv file read when no other is given.
	DefaultEnvFilename = ".env"

	// DefaultStateFilename is the default filename for the schedule state.
	DefaultStateFilename = "remo-automation-state.yaml"

	// DefaultBaseURL is the Nature Remo cloud API root.
	DefaultBaseURL = "https://api.nature.global/1/"

	// DefaultTimeout is the default duration of a single API call.
	DefaultTimeout = 10 * time.Second

	// DefaultPollInterval is the default tick period.
	DefaultPollInterval = 60 * time.Second

	// DefaultFilePermissions is the default file permission for config files.
	DefaultFilePermissions = 0o600

	// Logical names of the built-in devices.
	DeviceAircon = "aircon"
	DeviceLight  = "light"
)

var (
	// ErrInvalidConfig is the ConfigError: the configuration cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrTokenRequired is returned when the API token is missing.
	ErrTokenRequired = fmt.Errorf("%w: api token is required (set NATURE_REMO_API_TOKEN)", ErrInvalidConfig)
	// errConfigIsNotSet is returned when a nil configuration is provided.
	errConfigIsNotSet = errors.New("configuration is not set")
)

// Default returns the configuration used when nothing else is provided.
// It reproduces the aircon/light setup with temperature and humidity rules.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout,
		},
		Devices: map[string]DeviceConfig{
			DeviceAircon: {
				Settings: automation.AirconSettings{
					Mode: "cool",
					Temp: "26",
					Fan:  "auto",
				},
			},
			DeviceLight: {},
		},
		Automation: AutomationConfig{
			Temperature: TemperatureConfig{
				HighThreshold: ptr(28.0),
				LowThreshold:  ptr(20.0),
				ActionHigh: ActionConfig{
					Device: DeviceAircon,
					Action: "set_aircon",
				},
				ActionLow: ActionConfig{
					Device: DeviceAircon,
					Action: "turn_off_aircon",
				},
			},
			Humidity: HumidityConfig{
				HighThreshold: ptr(70.0),
				Action: ActionConfig{
					Device: DeviceAircon,
					Action: "set_aircon",
					Params: map[string]any{
						automation.ParamMode: "dry",
						automation.ParamFan:  "auto",
					},
				},
			},
		},
		PollInterval: DefaultPollInterval,
		Timezone:     "Local",
		StateFile:    DefaultStateFilename,
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stdout",
		},
		MQTT: MQTTConfig{
			ClientID:    "remo-automation",
			TopicPrefix: "remo",
			QoS:         1,
		},
	}
}

// LoadOptions selects the configuration sources.
type LoadOptions struct {
	// Path is the YAML file. Empty means DefaultConfigFilename, which may be absent.
	Path string
	// EnvFile is the dotenv file. Empty means DefaultEnvFilename, which may be absent.
	EnvFile string
}

// Load builds the configuration from defaults, the YAML file, the dotenv file
// and the process environment (later sources win), then validates it.
func Load(opts LoadOptions) (*Config, error) {
	lookup, err := envLookup(opts.EnvFile, os.LookupEnv)
	if err != nil {
		return nil, err
	}

	return load(opts.Path, lookup)
}

// load is Load with an injectable environment.
func load(path string, lookup lookupFunc) (*Config, error) {
	cfg := Default()

	if err := readFile(path, cfg); err != nil {
		return nil, err
	}

	if err := applyEnvOverrides(cfg, lookup); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// readFile merges the YAML file at path into cfg.
func readFile(path string, cfg *Config) error {
	optional := path == ""
	if optional {
		path = DefaultConfigFilename
	}

	contents, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if optional && errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("read settings: %w", err)
	}

	// yaml.v3 decodes every map value from scratch, so device entries are
	// laid over the values they replace afterwards.
	base := maps.Clone(cfg.Devices)

	if err = yaml.Unmarshal(contents, cfg); err != nil {
		return fmt.Errorf("unmarshal settings: %w", err)
	}

	for name, device := range cfg.Devices {
		if previous, ok := base[name]; ok {
			cfg.Devices[name] = previous.overlay(device)
		}
	}

	return nil
}

// overlay returns d with every field set in override taking precedence.
func (d DeviceConfig) overlay(override DeviceConfig) DeviceConfig {
	result := DeviceConfig{
		ID:       d.ID,
		Sensor:   d.Sensor,
		Settings: d.Settings.Overlay(override.Settings),
	}

	if override.ID != "" {
		result.ID = override.ID
	}

	if override.Sensor != nil {
		result.Sensor = override.Sensor
	}

	return result
}

// Save writes the configuration to the provided path.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	if path == "" {
		path = DefaultConfigFilename
	}

	if err := Validate(cfg); err != nil {
		return err
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	// Restrict permissions: the file holds the API token.
	if err := os.WriteFile(filepath.Clean(path), data, DefaultFilePermissions); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}

	return nil
}

// Validate checks required fields and formats, filling in defaults for zero values.
// All problems are reported at once.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errConfigIsNotSet
	}

	var errs []error

	problem := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...)))
	}

	if cfg.API.Token == "" {
		errs = append(errs, ErrTokenRequired)
	}

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = DefaultBaseURL
	}

	if u, err := url.ParseRequestURI(cfg.API.BaseURL); err != nil || u.Host == "" {
		problem("api.base_url %q is not an absolute URL", cfg.API.BaseURL)
	}

	if cfg.API.Timeout <= 0 {
		cfg.API.Timeout = DefaultTimeout
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}

	if _, err := cfg.Location(); err != nil {
		problem("timezone %q: %v", cfg.Timezone, err)
	}

	for i, entry := range cfg.Schedule {
		if _, err := automation.ParseTimeOfDay(entry.Time); err != nil {
			problem("schedule[%d].time: %v", i, err)
		}

		if entry.Device == "" || entry.Action == "" {
			problem("schedule[%d]: device and action are required", i)
		}
	}

	for i, rule := range cfg.Automation.Rules {
		if rule.Metric == "" {
			problem("automation.rules[%d].metric is required", i)
		}

		if _, err := automation.ParseComparator(rule.Comparator); err != nil {
			problem("automation.rules[%d].comparator: %v", i, err)
		}

		if rule.Action.Device == "" || rule.Action.Action == "" {
			problem("automation.rules[%d].action: device and action are required", i)
		}
	}

	switch strings.ToLower(cfg.Logging.Format) {
	case "", "console", "json":
	default:
		problem("logging.format must be console or json, got %q", cfg.Logging.Format)
	}

	if cfg.MQTT.Enabled {
		if cfg.MQTT.Broker == "" {
			problem("mqtt.broker is required when mqtt is enabled")
		}

		if cfg.MQTT.QoS < 0 || cfg.MQTT.QoS > 2 {
			problem("mqtt.qos must be 0, 1, or 2")
		}
	}

	return errors.Join(errs...)
}

// Location resolves the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local":
		return time.Local, nil
	default:
		return time.LoadLocation(c.Timezone)
	}
}

// ptr returns a pointer to v.
func ptr[T any](v T) *T {
	return &v
}
