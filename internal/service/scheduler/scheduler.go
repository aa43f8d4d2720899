package scheduler

import (
	"context"
	"errors"
	"maps"
	"time"

	"github.com/oshokin/remo-automation/internal/config"
	"github.com/oshokin/remo-automation/internal/domain/automation"
	"github.com/oshokin/remo-automation/internal/logger"
	"github.com/oshokin/remo-automation/internal/notify"
	"github.com/oshokin/remo-automation/internal/remo"
	"github.com/oshokin/remo-automation/internal/repository/schedule"
	"github.com/oshokin/remo-automation/internal/service/rules"
)

// minTimeWindow is the shortest period a time rule stays due after its occurrence.
const minTimeWindow = time.Minute

// tickGrace absorbs ticker jitter so a time rule is not missed between two ticks.
const tickGrace = 5 * time.Second

// SensorSource fetches fresh readings for a device.
type SensorSource interface {
	SensorReading(ctx context.Context, deviceID string) (automation.SensorReading, error)
}

// ActionExecutor runs a single action.
type ActionExecutor interface {
	Execute(ctx context.Context, action automation.Action) error
}

// Scheduler runs time rules and threshold rules once per tick.
// It is not safe for concurrent use: ticks never overlap.
type Scheduler struct {
	// sensors provides readings of the polled devices.
	sensors SensorSource
	// executor sends actions to devices.
	executor ActionExecutor
	// evaluator decides which threshold actions fire.
	evaluator *rules.Evaluator
	// devices are the polled devices in a stable order.
	devices []automation.DeviceRef
	// timeRules are the daily actions in declaration order.
	timeRules []automation.TimeRule
	// location is the timezone time rules are interpreted in.
	location *time.Location
	// interval is the tick period.
	interval time.Duration
	// state persists lastFired between restarts. Nil disables persistence.
	state schedule.Repository
	// publisher receives one event per executed action.
	publisher notify.Publisher
	// source is stamped on every published event.
	source string
	// now returns the current time.
	now func() time.Time
	// lastFired maps a time rule ID to the occurrence it last fired for.
	lastFired map[string]time.Time
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithInterval sets the tick period.
func WithInterval(interval time.Duration) Option {
	return func(s *Scheduler) {
		if interval > 0 {
			s.interval = interval
		}
	}
}

// WithStateRepository persists time rule firing state.
func WithStateRepository(repo schedule.Repository) Option {
	return func(s *Scheduler) {
		s.state = repo
	}
}

// WithPublisher sets the event publisher.
func WithPublisher(publisher notify.Publisher) Option {
	return func(s *Scheduler) {
		if publisher != nil {
			s.publisher = publisher
		}
	}
}

// WithSource sets the origin reported in published events.
func WithSource(source string) Option {
	return func(s *Scheduler) {
		s.source = source
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// New creates a scheduler for a compiled automation.
func New(sensors SensorSource, executor ActionExecutor, auto *config.Automation, opts ...Option) (*Scheduler, error) {
	evaluator, err := rules.NewEvaluator(auto.Thresholds)
	if err != nil {
		return nil, err
	}

	location := auto.Location
	if location == nil {
		location = time.Local
	}

	s := &Scheduler{
		sensors:   sensors,
		executor:  executor,
		evaluator: evaluator,
		devices:   auto.SensorDevices(),
		timeRules: append([]automation.TimeRule(nil), auto.Schedule...),
		location:  location,
		interval:  config.DefaultPollInterval,
		publisher: notify.Nop{},
		now:       time.Now,
		lastFired: make(map[string]time.Time, len(auto.Schedule)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s, nil
}

// Restore loads lastFired from the state repository.
// Entries of rules that are no longer configured are dropped.
func (s *Scheduler) Restore(ctx context.Context) error {
	if s.state == nil {
		return nil
	}

	stored, err := s.state.Load(ctx)
	if err != nil {
		if errors.Is(err, schedule.ErrNotFound) {
			return nil
		}

		return err
	}

	for _, rule := range s.timeRules {
		if firedAt, ok := stored[rule.ID()]; ok {
			s.lastFired[rule.ID()] = firedAt
		}
	}

	return nil
}

// Run ticks immediately and then every interval until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	if err := s.Restore(ctx); err != nil {
		logger.WarnKV(ctx, "Schedule state not restored", "error", err)
	}

	s.Tick(ctx, s.now())

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info(ctx, "Context canceled, exiting")
			return
		case <-ticker.C:
			s.Tick(ctx, s.now())
		}
	}
}

// Tick fires due time rules, then polls every sensor device and executes the
// matching threshold actions. Failures are logged and never abort the tick.
// Once ctx is canceled, the action in flight completes and the rest is skipped.
func (s *Scheduler) Tick(ctx context.Context, now time.Time) {
	s.fireTimeRules(ctx, now)

	for _, device := range s.devices {
		if ctx.Err() != nil {
			logger.Info(ctx, "Tick interrupted, skipping remaining devices")
			return
		}

		deviceCtx := logger.WithKV(ctx, "sensor", device.Name)

		reading, err := s.sensors.SensorReading(deviceCtx, device.ID)
		if err != nil {
			logger.ErrorKV(deviceCtx, "Sensor fetch failed", failureFields(err, "device_id", device.ID)...)
			continue
		}

		logger.DebugKV(deviceCtx, "Sensor reading", "reading", map[string]float64(reading))

		for _, rule := range s.evaluator.Evaluate(reading) {
			if ctx.Err() != nil {
				logger.Info(ctx, "Tick interrupted, skipping remaining actions")
				return
			}

			s.execute(deviceCtx, notify.Event{
				Rule:    rule.ID(),
				Trigger: notify.TriggerThreshold,
				Reading: reading.Clone(),
			}, rule.Action)
		}
	}
}

// fireTimeRules executes every time rule whose latest occurrence is due and
// has not fired yet.
func (s *Scheduler) fireTimeRules(ctx context.Context, now time.Time) {
	if len(s.timeRules) == 0 {
		return
	}

	local := now.In(s.location)
	window := max(s.interval, minTimeWindow) + tickGrace
	fired := false

	for _, rule := range s.timeRules {
		if ctx.Err() != nil {
			break
		}

		occurrence := rule.At.LatestOccurrence(local)
		if local.Sub(occurrence) >= window {
			continue
		}

		id := rule.ID()
		if last, ok := s.lastFired[id]; ok && !last.Before(occurrence) {
			continue
		}

		// Recorded before executing: a failed attempt is not retried.
		s.lastFired[id] = occurrence
		fired = true

		s.execute(ctx, notify.Event{
			Rule:    id,
			Trigger: notify.TriggerTime,
		}, rule.Action)
	}

	if fired && s.state != nil {
		if err := s.state.Save(context.WithoutCancel(ctx), maps.Clone(s.lastFired)); err != nil {
			logger.WarnKV(ctx, "Schedule state not saved", "error", err)
		}
	}
}

// execute runs one action detached from cancellation, logs the outcome and
// publishes an event.
func (s *Scheduler) execute(ctx context.Context, event notify.Event, action automation.Action) {
	err := s.executor.Execute(context.WithoutCancel(ctx), action)

	switch {
	case err == nil:
		logger.InfoKV(ctx, "Rule fired", "rule", event.Rule, "device", action.Device, "action", action.Name)
	case errors.Is(err, automation.ErrUnknownAction):
		logger.WarnKV(ctx, "Action skipped", "rule", event.Rule, "device", action.Device, "action", action.Name, "error", err)
	default:
		logger.ErrorKV(ctx, "Action failed",
			failureFields(err, "rule", event.Rule, "device", action.Device, "action", action.Name)...)
	}

	event.Device = action.Device
	event.Action = action.Name
	event.Source = s.source
	event.FiredAt = s.now()

	if err != nil {
		event.Error = err.Error()
	}

	if pubErr := s.publisher.Publish(context.WithoutCancel(ctx), event); pubErr != nil {
		logger.WarnKV(ctx, "Event not published", "rule", event.Rule, "error", pubErr)
	}
}

// failureFields appends the error, and the HTTP status of vendor API errors, to kvs.
func failureFields(err error, kvs ...any) []any {
	kvs = append(kvs, "error", err)

	if apiErr, ok := remo.IsAPIError(err); ok && apiErr.StatusCode != 0 {
		kvs = append(kvs, "status", apiErr.StatusCode)
	}

	return kvs
}
