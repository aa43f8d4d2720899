package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/oshokin/remo-automation/internal/config"
	"github.com/oshokin/remo-automation/internal/domain/automation"
	"github.com/oshokin/remo-automation/internal/logger"
	"github.com/oshokin/remo-automation/internal/notify"
	"github.com/oshokin/remo-automation/internal/remo"
	"github.com/oshokin/remo-automation/internal/repository/schedule"
)

var errTestFetch = errors.New("sensor offline")

// fakeSensors serves canned readings and records fetched device IDs.
type fakeSensors struct {
	readings map[string]automation.SensorReading
	errs     map[string]error
	fetched  []string
	onFetch  func()
}

func (f *fakeSensors) SensorReading(_ context.Context, deviceID string) (automation.SensorReading, error) {
	f.fetched = append(f.fetched, deviceID)

	if f.onFetch != nil {
		f.onFetch()
	}

	if err := f.errs[deviceID]; err != nil {
		return nil, err
	}

	return f.readings[deviceID].Clone(), nil
}

// fakeExecutor records executed actions and fails the ones listed in errs.
type fakeExecutor struct {
	executed  []automation.Action
	errs      map[string]error
	onExecute func(ctx context.Context)
}

func (f *fakeExecutor) Execute(ctx context.Context, action automation.Action) error {
	if f.onExecute != nil {
		f.onExecute(ctx)
	}

	f.executed = append(f.executed, action)

	return f.errs[action.Name]
}

// names returns the names of the executed actions.
func (f *fakeExecutor) names() []string {
	names := make([]string, 0, len(f.executed))
	for _, action := range f.executed {
		names = append(names, action.Name)
	}

	return names
}

// fakePublisher records events.
type fakePublisher struct {
	events []notify.Event
}

func (f *fakePublisher) Publish(_ context.Context, event notify.Event) error {
	f.events = append(f.events, event)

	return nil
}

// memoryState is an in-memory schedule.Repository.
type memoryState struct {
	mu        sync.Mutex
	lastFired map[string]time.Time
	saves     int
}

func (m *memoryState) Load(context.Context) (map[string]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.lastFired == nil {
		return nil, schedule.ErrNotFound
	}

	return maps.Clone(m.lastFired), nil
}

func (m *memoryState) Save(_ context.Context, lastFired map[string]time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lastFired = maps.Clone(lastFired)
	m.saves++

	return nil
}

// fakeLister returns a fixed device list.
type fakeLister struct {
	devices []remo.Device
	err     error
}

func (f fakeLister) Devices(context.Context) ([]remo.Device, error) {
	return f.devices, f.err
}

// observedContext returns a context carrying a logger that records every entry.
func observedContext() (context.Context, *observer.ObservedLogs) {
	core, logs := observer.New(zapcore.DebugLevel)

	return logger.ToContext(context.Background(), zap.New(core).Sugar()), logs
}

// action builds a resolved action for tests.
func action(device, name string) automation.Action {
	kind := automation.KindLightOn

	switch name {
	case "turn_off_aircon":
		kind = automation.KindLightOff
	case "set_aircon", "dry_aircon":
		kind = automation.KindSetAircon
	}

	return automation.Action{Device: device, Name: name, Kind: kind}
}

// testAutomation returns two sensor devices, the default threshold rules and one time rule at 07:00 UTC.
func testAutomation() *config.Automation {
	return &config.Automation{
		Devices: automation.Devices{
			"aircon":  {Name: "aircon", ID: "aircon_id", Sensor: true},
			"bedroom": {Name: "bedroom", ID: "bedroom_id", Sensor: true},
			"light":   {Name: "light", ID: "light_id"},
		},
		Thresholds: []automation.ThresholdRule{
			{Metric: "temperature", Comparator: automation.Above, Threshold: 28, Action: action("aircon", "set_aircon")},
			{Metric: "temperature", Comparator: automation.Below, Threshold: 20, Action: action("aircon", "turn_off_aircon")},
			{Metric: "humidity", Comparator: automation.Above, Threshold: 70, Action: action("aircon", "dry_aircon")},
		},
		Schedule: []automation.TimeRule{
			{At: automation.TimeOfDay{Hour: 7}, Action: action("light", "turn_on_light")},
		},
		Location: time.UTC,
	}
}

// at returns a UTC instant on 2026-10-19.
func at(hour, minute, second int) time.Time {
	return time.Date(2026, 10, 19, hour, minute, second, 0, time.UTC)
}

// TestTick_ThresholdRules executes the matching actions of every polled device in order.
func TestTick_ThresholdRules(t *testing.T) {
	t.Parallel()

	sensors := &fakeSensors{readings: map[string]automation.SensorReading{
		"aircon_id":  {"temperature": 29, "humidity": 50},
		"bedroom_id": {"temperature": 19, "humidity": 75},
	}}
	exec := new(fakeExecutor)
	publisher := new(fakePublisher)

	s, err := New(sensors, exec, testAutomation(),
		WithPublisher(publisher),
		WithSource("pi@home"),
		WithClock(func() time.Time { return at(12, 0, 0) }),
	)
	require.NoError(t, err)

	ctx, _ := observedContext()
	s.Tick(ctx, at(12, 0, 0))

	require.Equal(t, []string{"aircon_id", "bedroom_id"}, sensors.fetched)
	require.Equal(t, []string{"set_aircon", "turn_off_aircon", "dry_aircon"}, exec.names())

	require.Len(t, publisher.events, 3)
	require.Equal(t, "temperature>28", publisher.events[0].Rule)
	require.Equal(t, notify.TriggerThreshold, publisher.events[0].Trigger)
	require.InDelta(t, 29.0, publisher.events[0].Reading["temperature"], 0)
	require.Equal(t, at(12, 0, 0), publisher.events[0].FiredAt)
	require.Equal(t, "pi@home", publisher.events[0].Source)
}

// TestTick_FailingFetchDoesNotStopNextDevice isolates sensor failures.
func TestTick_FailingFetchDoesNotStopNextDevice(t *testing.T) {
	t.Parallel()

	sensors := &fakeSensors{
		readings: map[string]automation.SensorReading{"bedroom_id": {"temperature": 19}},
		errs:     map[string]error{"aircon_id": errTestFetch},
	}
	exec := new(fakeExecutor)

	s, err := New(sensors, exec, testAutomation())
	require.NoError(t, err)

	ctx, logs := observedContext()
	s.Tick(ctx, at(12, 0, 0))

	require.Equal(t, []string{"aircon_id", "bedroom_id"}, sensors.fetched)
	require.Equal(t, []string{"turn_off_aircon"}, exec.names())

	failed := logs.FilterMessage("Sensor fetch failed").All()
	require.Len(t, failed, 1)
	require.Equal(t, zapcore.ErrorLevel, failed[0].Level)
	require.Equal(t, "aircon", failed[0].ContextMap()["sensor"])
}

// TestTick_ActionFailureIsolated keeps executing after a failed action and reports it.
func TestTick_ActionFailureIsolated(t *testing.T) {
	t.Parallel()

	sensors := &fakeSensors{readings: map[string]automation.SensorReading{
		"aircon_id": {"temperature": 29, "humidity": 80},
	}}
	exec := &fakeExecutor{errs: map[string]error{
		"set_aircon": fmt.Errorf("execute set_aircon@aircon: %w", &remo.APIError{
			Method:     http.MethodPost,
			Path:       "appliances/aircon_id/aircon_settings",
			StatusCode: http.StatusBadRequest,
			Body:       "appliance rejected",
		}),
		"dry_aircon": fmt.Errorf("%w: %q", automation.ErrUnknownAction, "dry_aircon"),
	}}
	publisher := new(fakePublisher)

	s, err := New(sensors, exec, testAutomation(), WithPublisher(publisher))
	require.NoError(t, err)

	ctx, logs := observedContext()
	s.Tick(ctx, at(12, 0, 0))

	require.Equal(t, []string{"set_aircon", "dry_aircon"}, exec.names())
	require.Len(t, publisher.events, 2)
	require.Contains(t, publisher.events[0].Error, "appliance rejected")

	failed := logs.FilterMessage("Action failed").FilterLevelExact(zapcore.ErrorLevel).All()
	require.Len(t, failed, 1)
	require.Equal(t, int64(http.StatusBadRequest), failed[0].ContextMap()["status"])
	require.Equal(t, "aircon", failed[0].ContextMap()["sensor"])

	skipped := logs.FilterMessage("Action skipped").FilterLevelExact(zapcore.WarnLevel).All()
	require.Len(t, skipped, 1)
	require.NotContains(t, skipped[0].ContextMap(), "status")
}

// TestTick_TimeRuleFiresOncePerOccurrence re-checks within the window without re-firing.
func TestTick_TimeRuleFiresOncePerOccurrence(t *testing.T) {
	t.Parallel()

	auto := testAutomation()
	auto.Devices = automation.Devices{"light": {Name: "light", ID: "light_id"}}

	exec := new(fakeExecutor)
	state := new(memoryState)
	publisher := new(fakePublisher)

	s, err := New(new(fakeSensors), exec, auto,
		WithInterval(30*time.Second),
		WithStateRepository(state),
		WithPublisher(publisher),
	)
	require.NoError(t, err)

	ctx, _ := observedContext()

	s.Tick(ctx, at(6, 59, 30))
	require.Empty(t, exec.executed)

	s.Tick(ctx, at(7, 0, 10))
	require.Equal(t, []string{"turn_on_light"}, exec.names())

	s.Tick(ctx, at(7, 0, 40))
	s.Tick(ctx, at(7, 1, 10))
	require.Len(t, exec.executed, 1)

	// Next day.
	s.Tick(ctx, at(7, 0, 5).AddDate(0, 0, 1))
	require.Len(t, exec.executed, 2)

	require.Equal(t, 2, state.saves)
	require.Equal(t, at(7, 0, 0).AddDate(0, 0, 1), state.lastFired["07:00/turn_on_light@light"])
	require.Equal(t, notify.TriggerTime, publisher.events[0].Trigger)
}

// TestTick_RepeatedTimeRulesFireSeparately runs two entries that share time and action.
func TestTick_RepeatedTimeRulesFireSeparately(t *testing.T) {
	t.Parallel()

	first := action("aircon", "set_aircon")
	first.Aircon = automation.AirconSettings{Mode: "cool", Temp: "24", Fan: "auto"}
	second := action("aircon", "set_aircon")
	second.Aircon = automation.AirconSettings{Mode: "cool", Temp: "24", Fan: "3"}

	auto := testAutomation()
	auto.Devices = automation.Devices{"aircon": {Name: "aircon", ID: "aircon_id"}}
	auto.Schedule = []automation.TimeRule{
		{At: automation.TimeOfDay{Hour: 7}, Action: first},
		{At: automation.TimeOfDay{Hour: 7}, Action: second, Seq: 1},
	}

	exec := new(fakeExecutor)
	state := new(memoryState)

	s, err := New(new(fakeSensors), exec, auto, WithStateRepository(state))
	require.NoError(t, err)

	ctx, _ := observedContext()
	s.Tick(ctx, at(7, 0, 10))
	s.Tick(ctx, at(7, 0, 40))

	require.Len(t, exec.executed, 2)
	require.Equal(t, "auto", exec.executed[0].Aircon.Fan)
	require.Equal(t, "3", exec.executed[1].Aircon.Fan)
	require.Len(t, state.lastFired, 2)
	require.Contains(t, state.lastFired, "07:00/set_aircon@aircon#1")
}

// TestTick_TimeRuleMissedWindow does not fire occurrences older than the window.
func TestTick_TimeRuleMissedWindow(t *testing.T) {
	t.Parallel()

	exec := new(fakeExecutor)

	s, err := New(new(fakeSensors), exec, testAutomation(), WithInterval(time.Minute))
	require.NoError(t, err)

	ctx, _ := observedContext()
	s.Tick(ctx, at(7, 5, 0))

	require.NotContains(t, exec.names(), "turn_on_light")
}

// TestRestore skips occurrences that already fired before a restart.
func TestRestore(t *testing.T) {
	t.Parallel()

	state := &memoryState{lastFired: map[string]time.Time{
		"07:00/turn_on_light@light": at(7, 0, 0),
		"06:00/removed@light":       at(6, 0, 0),
	}}
	exec := new(fakeExecutor)

	s, err := New(new(fakeSensors), exec, testAutomation(), WithStateRepository(state))
	require.NoError(t, err)

	ctx, _ := observedContext()
	require.NoError(t, s.Restore(ctx))
	require.Len(t, s.lastFired, 1)

	s.Tick(ctx, at(7, 0, 30))
	require.NotContains(t, exec.names(), "turn_on_light")

	// Missing state is not an error.
	s, err = New(new(fakeSensors), exec, testAutomation(), WithStateRepository(new(memoryState)))
	require.NoError(t, err)
	require.NoError(t, s.Restore(ctx))
}

// TestTick_Interrupted completes the action in flight and skips the rest.
func TestTick_Interrupted(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	observed, _ := observedContext()
	ctx = logger.ToContext(ctx, logger.FromContext(observed))

	var actionErr error

	sensors := &fakeSensors{readings: map[string]automation.SensorReading{
		"aircon_id":  {"temperature": 29, "humidity": 80},
		"bedroom_id": {"temperature": 19},
	}}
	exec := &fakeExecutor{onExecute: func(actionCtx context.Context) {
		cancel()
		actionErr = actionCtx.Err()
	}}

	s, err := New(sensors, exec, testAutomation())
	require.NoError(t, err)

	s.Tick(ctx, at(12, 0, 0))

	require.NoError(t, actionErr)
	require.Equal(t, []string{"set_aircon"}, exec.names())
	require.Equal(t, []string{"aircon_id"}, sensors.fetched)

	// A canceled context does nothing at all.
	s.Tick(ctx, at(7, 0, 0))
	require.Len(t, exec.executed, 1)
}

// TestRun ticks immediately and stops once the context is canceled.
func TestRun(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sensors := &fakeSensors{
		readings: map[string]automation.SensorReading{"aircon_id": {"temperature": 25}},
		onFetch:  cancel,
	}

	auto := testAutomation()
	auto.Devices = automation.Devices{"aircon": {Name: "aircon", ID: "aircon_id", Sensor: true}}
	auto.Schedule = nil

	s, err := New(sensors, new(fakeExecutor), auto, WithInterval(time.Hour))
	require.NoError(t, err)

	done := make(chan struct{})

	go func() {
		defer close(done)

		s.Run(ctx)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}

	require.Equal(t, []string{"aircon_id"}, sensors.fetched)
}

// TestNew_RejectsOverlappingThresholds validates the rule set.
func TestNew_RejectsOverlappingThresholds(t *testing.T) {
	t.Parallel()

	auto := testAutomation()
	auto.Thresholds[1].Threshold = 30

	_, err := New(new(fakeSensors), new(fakeExecutor), auto)
	require.ErrorIs(t, err, automation.ErrOverlappingThresholds)
}

// TestProbe warns about polled devices the token cannot see.
func TestProbe(t *testing.T) {
	t.Parallel()

	devices := testAutomation().Devices

	ctx, logs := observedContext()
	Probe(ctx, fakeLister{devices: []remo.Device{{ID: "aircon_id"}}}, devices)

	missing := logs.FilterMessage("Polled device not found").All()
	require.Len(t, missing, 1)
	require.Equal(t, "bedroom", missing[0].ContextMap()["device"])

	ctx, logs = observedContext()
	Probe(ctx, fakeLister{err: errTestFetch}, devices)
	require.Equal(t, 1, logs.FilterMessage("Device probe failed").Len())
}
