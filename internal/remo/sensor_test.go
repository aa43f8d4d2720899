package remo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/oshokin/remo-automation/internal/domain/automation"
)

// TestDecodeSensorValues_NamedKeyWins resolves a metric sent under both keys the same way every time.
func TestDecodeSensorValues_NamedKeyWins(t *testing.T) {
	t.Parallel()

	var raw map[string]json.RawMessage

	require.NoError(t, json.Unmarshal([]byte(`{
		"te": {"val": 18.5},
		"temperature": 27,
		"hu": 40,
		"Humidity": null,
		"il": 10,
		"illuminance": "bright"
	}`), &raw))

	// Map iteration order changes between runs, so decode repeatedly.
	for i := 0; i < 50; i++ {
		require.Equal(t, automation.SensorReading{
			"temperature": 27,
			"humidity":    40,
			"illuminance": 10,
		}, decodeSensorValues(raw))
	}
}
