// Package executor turns typed automation actions into vendor API calls.
package executor

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/oshokin/remo-automation/internal/domain/automation"
	"github.com/oshokin/remo-automation/internal/logger"
)

// Commander is the part of the vendor API client the executor needs.
type Commander interface {
	SetAircon(ctx context.Context, applianceID string, params map[string]string) error
	SetLight(ctx context.Context, applianceID string, on bool) error
}

// Executor dispatches actions to the configured devices.
type Executor struct {
	// api sends the commands.
	api Commander
	// devices maps logical names to vendor identifiers.
	devices automation.Devices
	// log records every dispatched action.
	log *zap.SugaredLogger
}

// Option configures the executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// New creates an executor over a read-only device map.
func New(api Commander, devices automation.Devices, opts ...Option) *Executor {
	e := &Executor{
		api:     api,
		devices: devices,
		log:     logger.NewNop(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Execute sends the command described by action.
// It returns automation.ErrUnknownDevice without calling the API when the
// device is not configured and automation.ErrUnknownAction for unknown kinds.
func (e *Executor) Execute(ctx context.Context, action automation.Action) error {
	device, ok := e.devices.Lookup(action.Device)
	if !ok {
		return fmt.Errorf("%w: %q", automation.ErrUnknownDevice, action.Device)
	}

	var err error

	switch action.Kind {
	case automation.KindLightOn:
		err = e.api.SetLight(ctx, device.ID, true)
	case automation.KindLightOff:
		err = e.api.SetLight(ctx, device.ID, false)
	case automation.KindSetAircon:
		err = e.api.SetAircon(ctx, device.ID, action.Aircon.Params())
	default:
		return fmt.Errorf("%w: %q (kind %q)", automation.ErrUnknownAction, action.Name, action.Kind)
	}

	if err != nil {
		return fmt.Errorf("execute %s: %w", action, err)
	}

	e.log.Infow("Action executed", "action", action.Name, "device", action.Device, "device_id", device.ID)

	return nil
}
