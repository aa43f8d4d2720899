package automation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestThresholdRule_StrictBoundary verifies that a reading equal to the threshold never matches.
func TestThresholdRule_StrictBoundary(t *testing.T) {
	t.Parallel()

	above := ThresholdRule{Metric: "temperature", Comparator: Above, Threshold: 28}
	require.False(t, above.Matches(SensorReading{"temperature": 28}))
	require.True(t, above.Matches(SensorReading{"temperature": 28.01}))
	require.False(t, above.Matches(SensorReading{"humidity": 99}))

	below := ThresholdRule{Metric: "temperature", Comparator: Below, Threshold: 20}
	require.False(t, below.Matches(SensorReading{"temperature": 20}))
	require.True(t, below.Matches(SensorReading{"temperature": 19.99}))
}

// TestParseComparator accepts only strict comparators.
func TestParseComparator(t *testing.T) {
	t.Parallel()

	c, err := ParseComparator(" > ")
	require.NoError(t, err)
	require.Equal(t, Above, c)

	_, err = ParseComparator(">=")
	require.ErrorIs(t, err, ErrInvalidComparator)
}

// TestValidateThresholds checks overlap detection between low and high bounds.
func TestValidateThresholds(t *testing.T) {
	t.Parallel()

	ok := []ThresholdRule{
		{Metric: "temperature", Comparator: Above, Threshold: 28},
		{Metric: "temperature", Comparator: Below, Threshold: 20},
		{Metric: "humidity", Comparator: Above, Threshold: 70},
		{Metric: "humidity", Comparator: Below, Threshold: 70},
	}
	require.NoError(t, ValidateThresholds(ok))

	overlapping := []ThresholdRule{
		{Metric: "temperature", Comparator: Above, Threshold: 20},
		{Metric: "temperature", Comparator: Below, Threshold: 28},
	}
	require.ErrorIs(t, ValidateThresholds(overlapping), ErrOverlappingThresholds)
}

// TestParseTimeOfDay covers valid and invalid schedule times.
func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	tod, err := ParseTimeOfDay("07:05")
	require.NoError(t, err)
	require.Equal(t, TimeOfDay{Hour: 7, Minute: 5}, tod)
	require.Equal(t, "07:05", tod.String())

	for _, bad := range []string{"", "7", "25:00", "07:60", "noon"} {
		_, err = ParseTimeOfDay(bad)
		require.ErrorIs(t, err, ErrInvalidTimeOfDay, bad)
	}
}

// TestTimeOfDay_LatestOccurrence checks same-day and previous-day occurrences.
func TestTimeOfDay_LatestOccurrence(t *testing.T) {
	t.Parallel()

	tod := TimeOfDay{Hour: 23, Minute: 59}
	now := time.Date(2026, 3, 1, 0, 0, 30, 0, time.UTC)
	require.Equal(t, time.Date(2026, 2, 28, 23, 59, 0, 0, time.UTC), tod.LatestOccurrence(now))

	tod = TimeOfDay{Hour: 7}
	now = time.Date(2026, 3, 1, 7, 0, 0, 0, time.UTC)
	require.Equal(t, now, tod.LatestOccurrence(now))
}

// TestTimeRule_ID keeps the plain form for the first rule and numbers repeats.
func TestTimeRule_ID(t *testing.T) {
	t.Parallel()

	rule := TimeRule{
		At:     TimeOfDay{Hour: 7, Minute: 5},
		Action: Action{Device: "light", Name: "turn_on_light", Kind: KindLightOn},
	}
	require.Equal(t, "07:05/turn_on_light@light", rule.ID())

	rule.Seq = 2
	require.Equal(t, "07:05/turn_on_light@light#2", rule.ID())
}
