package remo

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"

	"github.com/oshokin/remo-automation/internal/domain/automation"
)

// sensorAliases maps the short event keys used by Remo devices to metric names.
//
//nolint:gochecknoglobals // Read-only lookup table.
var sensorAliases = map[string]string{
	"te": automation.MetricTemperature,
	"hu": automation.MetricHumidity,
	"il": automation.MetricIlluminance,
	"mo": automation.MetricMotion,
}

// sensorEvent is the {"val": ..., "created_at": ...} shape of newest_events.
type sensorEvent struct {
	Val json.RawMessage `json:"val"`
}

// decodeSensorValues turns a raw JSON object into a SensorReading.
// Values may be numbers, numeric strings or {"val": n} objects; anything else is skipped.
// A metric sent under both its name and its short alias keeps the named value.
func decodeSensorValues(raw map[string]json.RawMessage) automation.SensorReading {
	reading := make(automation.SensorReading, len(raw))
	aliased := make(automation.SensorReading)

	for key, value := range raw {
		number, ok := decodeSensorValue(value)
		if !ok {
			continue
		}

		metric := strings.ToLower(key)
		if alias, found := sensorAliases[metric]; found {
			aliased[alias] = number
			continue
		}

		reading[metric] = number
	}

	for metric, number := range aliased {
		if _, named := reading[metric]; !named {
			reading[metric] = number
		}
	}

	return reading
}

// decodeSensorValue reads a plain value or the val field of an event object.
func decodeSensorValue(value json.RawMessage) (float64, bool) {
	if number, ok := decodeNumber(value); ok {
		return number, true
	}

	var event sensorEvent
	if err := json.Unmarshal(value, &event); err != nil || event.Val == nil {
		return 0, false
	}

	return decodeNumber(event.Val)
}

// decodeNumber accepts a JSON number or a string holding one.
func decodeNumber(value json.RawMessage) (float64, bool) {
	if trimmed := bytes.TrimSpace(value); len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return 0, false
	}

	var number float64
	if err := json.Unmarshal(value, &number); err == nil {
		return number, true
	}

	var text string
	if err := json.Unmarshal(value, &text); err != nil {
		return 0, false
	}

	number, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return 0, false
	}

	return number, true
}
