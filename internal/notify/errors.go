package notify

import "errors"

// Domain errors for the notify package.
var (
	// ErrDisabled is returned by Connect when MQTT publishing is disabled.
	ErrDisabled = errors.New("notify: mqtt disabled")
	// ErrConnectionFailed is returned when the broker cannot be reached.
	ErrConnectionFailed = errors.New("notify: connection failed")
	// ErrPublishFailed is returned when a message could not be delivered to the broker.
	ErrPublishFailed = errors.New("notify: publish failed")
	// ErrInvalidQoS is returned for QoS values outside 0..2.
	ErrInvalidQoS = errors.New("notify: invalid qos")
)
