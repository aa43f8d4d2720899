package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oshokin/remo-automation/internal/config"
	"github.com/oshokin/remo-automation/internal/domain/automation"
	"github.com/oshokin/remo-automation/internal/logger"
	"github.com/oshokin/remo-automation/internal/notify"
	"github.com/oshokin/remo-automation/internal/remo"
	"github.com/oshokin/remo-automation/internal/repository/schedule"
	"github.com/oshokin/remo-automation/internal/service/executor"
	"github.com/oshokin/remo-automation/internal/service/instance"
	"github.com/oshokin/remo-automation/internal/version"
)

// Options controls the automation process.
type Options struct {
	// ConfigPath specifies the path to the settings YAML file.
	ConfigPath string
	// EnvFile specifies the dotenv file.
	EnvFile string
	// PollInterval overrides the configured tick period.
	PollInterval time.Duration
	// LogLevel overrides the configured log level.
	LogLevel string
	// AllowMultiple skips the single-instance check.
	AllowMultiple bool
}

// DeviceLister is the part of the vendor API used by the startup probe.
type DeviceLister interface {
	Devices(ctx context.Context) ([]remo.Device, error)
}

// Run loads the configuration, wires the components and runs the loop until ctx is canceled.
// Configuration problems are returned before the first tick.
//
//nolint:cyclop,funlen // Straight-line wiring; splitting would reduce clarity.
func Run(ctx context.Context, opts *Options) (err error) {
	cfg, err := config.Load(config.LoadOptions{
		Path:    opts.ConfigPath,
		EnvFile: opts.EnvFile,
	})
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	// Command line arguments override the configuration.
	if opts.PollInterval > 0 {
		cfg.PollInterval = opts.PollInterval
	}

	if opts.LogLevel != "" {
		cfg.Logging.Level = opts.LogLevel
	}

	log, closeLog, err := logger.New(logger.Options{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}

	defer func() {
		err = errors.Join(err, closeLog())
	}()

	ctx = logger.WithName(logger.ToContext(ctx, log), "remo-automation")

	for _, ignored := range cfg.Ignored() {
		logger.WarnKV(ctx, "Environment value ignored", "reason", ignored)
	}

	if !opts.AllowMultiple {
		if err = instance.EnsureSingle(); err != nil {
			return err
		}
	}

	auto, err := cfg.Compile()
	if err != nil {
		return fmt.Errorf("compile configuration: %w", err)
	}

	for _, skipped := range auto.Skipped {
		logger.WarnKV(ctx, "Configuration entry skipped", "error", skipped)
	}

	client, err := remo.NewClient(cfg.API.BaseURL, cfg.API.Token,
		remo.WithCallTimeout(cfg.API.Timeout),
		remo.WithLogger(log.Named("remo")),
	)
	if err != nil {
		return fmt.Errorf("create api client: %w", err)
	}

	Probe(ctx, client, auto.Devices)

	var publisher notify.Publisher = notify.Nop{}

	if cfg.MQTT.Enabled {
		mqttPublisher, connErr := notify.Connect(cfg.MQTT)
		if connErr != nil {
			logger.ErrorKV(ctx, "MQTT disabled", "broker", cfg.MQTT.Broker, "error", connErr)
		} else {
			defer mqttPublisher.Close()

			publisher = mqttPublisher

			logger.InfoKV(ctx, "Publishing events", "topic", notify.FiredTopic(cfg.MQTT.TopicPrefix))
		}
	}

	schedulerOpts := []Option{
		WithInterval(cfg.PollInterval),
		WithPublisher(publisher),
	}

	// Events still go out without a source when the host cannot be described.
	actor, err := instance.DetectActor()
	if err != nil {
		logger.WarnKV(ctx, "Detect actor failed", "error", err)
	} else {
		schedulerOpts = append(schedulerOpts, WithSource(actor.String()))
	}

	if cfg.StateFile != "" {
		schedulerOpts = append(schedulerOpts, WithStateRepository(schedule.NewFileRepository(cfg.StateFile)))
	}

	exec := executor.New(client, auto.Devices, executor.WithLogger(log.Named("executor")))

	s, err := New(client, exec, auto, schedulerOpts...)
	if err != nil {
		return fmt.Errorf("create scheduler: %w", err)
	}

	logger.InfoKV(ctx, "Automation started", append(version.Fields(),
		"interval", cfg.PollInterval.String(),
		"timezone", auto.Location.String(),
		"threshold_rules", len(auto.Thresholds),
		"time_rules", len(auto.Schedule),
		"sensor_devices", len(s.devices),
	)...)

	s.Run(ctx)

	return nil
}

// Probe lists the devices visible to the token and warns about polled devices
// that are missing from the list. Failures are logged only.
func Probe(ctx context.Context, api DeviceLister, devices automation.Devices) {
	listed, err := api.Devices(ctx)
	if err != nil {
		logger.WarnKV(ctx, "Device probe failed", "error", err)
		return
	}

	logger.InfoKV(ctx, "Devices visible to the token", "count", len(listed))

	known := make(map[string]struct{}, len(listed))
	for _, device := range listed {
		known[device.ID] = struct{}{}
	}

	for _, device := range devices {
		if !device.Sensor {
			continue
		}

		if _, ok := known[device.ID]; !ok {
			logger.WarnKV(ctx, "Polled device not found", "device", device.Name, "device_id", device.ID)
		}
	}
}
