package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/oshokin/remo-automation/internal/config"
)

// Timeouts for broker operations.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	disconnectQuiesceMS   = 250
	maxQoS                = 2
)

// firedTopicSuffix is appended to the configured topic prefix.
const firedTopicSuffix = "automation/fired"

// Trigger sources reported in events.
const (
	TriggerTime      = "time"
	TriggerThreshold = "threshold"
)

// Event describes one executed action.
type Event struct {
	// Rule is the ID of the rule that produced the action.
	Rule string `json:"rule"`
	// Trigger is TriggerTime or TriggerThreshold.
	Trigger string `json:"trigger"`
	// Device is the logical device name.
	Device string `json:"device"`
	// Action is the configured action name.
	Action string `json:"action"`
	// Reading holds the sensor values that triggered a threshold rule.
	Reading map[string]float64 `json:"reading,omitempty"`
	// Error is set when the action failed.
	Error string `json:"error,omitempty"`
	// Source is the user@host running the automation loop.
	Source string `json:"source,omitempty"`
	// FiredAt is when the action was executed.
	FiredAt time.Time `json:"fired_at"`
}

// Publisher sends events somewhere.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop is a Publisher that drops every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) error {
	return nil
}

// MQTTPublisher publishes events to an MQTT broker.
type MQTTPublisher struct {
	// client is the underlying paho client.
	client pahomqtt.Client
	// topic is the full topic events are published to.
	topic string
	// qos is the delivery guarantee used for events.
	qos byte
}

// Connect dials the broker described by cfg.
func Connect(cfg config.MQTTConfig) (*MQTTPublisher, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	if cfg.QoS < 0 || cfg.QoS > maxQoS {
		return nil, fmt.Errorf("%w: %d", ErrInvalidQoS, cfg.QoS)
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetConnectTimeout(defaultConnectTimeout).
		SetAutoReconnect(true).
		SetCleanSession(true)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)

	token := client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return nil, fmt.Errorf("%w: timeout after %v", ErrConnectionFailed, defaultConnectTimeout)
	}

	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	return newMQTTPublisher(client, cfg), nil
}

// newMQTTPublisher wraps an already connected client.
func newMQTTPublisher(client pahomqtt.Client, cfg config.MQTTConfig) *MQTTPublisher {
	return &MQTTPublisher{
		client: client,
		topic:  FiredTopic(cfg.TopicPrefix),
		//nolint:gosec // QoS is validated to 0..2 by Connect and config validation.
		qos: byte(cfg.QoS),
	}
}

// FiredTopic builds the event topic for a prefix.
func FiredTopic(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return firedTopicSuffix
	}

	return prefix + "/" + firedTopicSuffix
}

// Publish encodes the event as JSON and waits for the broker to accept it.
func (p *MQTTPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	token := p.client.Publish(p.topic, p.qos, false, payload)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	case <-time.After(defaultPublishTimeout):
		return fmt.Errorf("%w: timeout after %v", ErrPublishFailed, defaultPublishTimeout)
	}

	if err = token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}

	return nil
}

// Close disconnects from the broker.
func (p *MQTTPublisher) Close() {
	if p == nil || p.client == nil {
		return
	}

	p.client.Disconnect(disconnectQuiesceMS)
}
