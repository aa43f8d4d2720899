package automation

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Comparator is a strict comparison between a reading and a threshold.
type Comparator string

const (
	// Above matches values strictly greater than the threshold.
	Above Comparator = ">"
	// Below matches values strictly lower than the threshold.
	Below Comparator = "<"
)

// ParseComparator validates a comparator string.
func ParseComparator(s string) (Comparator, error) {
	switch c := Comparator(strings.TrimSpace(s)); c {
	case Above, Below:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidComparator, s)
	}
}

// Match reports whether value satisfies the comparator against threshold.
// A value equal to the threshold never matches.
func (c Comparator) Match(value, threshold float64) bool {
	switch c {
	case Above:
		return value > threshold
	case Below:
		return value < threshold
	default:
		return false
	}
}

// ThresholdRule fires its action when a metric crosses a bound.
type ThresholdRule struct {
	// Metric is the sensor metric name ("temperature", "humidity").
	Metric string
	// Comparator is either Above or Below.
	Comparator Comparator
	// Threshold is the bound compared against the reading.
	Threshold float64
	// Action is executed when the rule matches.
	Action Action
}

// ID identifies the rule in logs and events.
func (r ThresholdRule) ID() string {
	return fmt.Sprintf("%s%s%s", r.Metric, r.Comparator, strconv.FormatFloat(r.Threshold, 'f', -1, 64))
}

// Matches reports whether the reading satisfies the rule. Missing metrics never match.
func (r ThresholdRule) Matches(reading SensorReading) bool {
	value, ok := reading.Value(r.Metric)
	if !ok {
		return false
	}

	return r.Comparator.Match(value, r.Threshold)
}

// ValidateThresholds checks that Above and Below bounds of each metric are disjoint,
// so that no single value can satisfy both a low and a high rule.
func ValidateThresholds(rules []ThresholdRule) error {
	type bounds struct {
		minAbove, maxBelow float64
		hasAbove, hasBelow bool
	}

	perMetric := make(map[string]*bounds)

	for _, rule := range rules {
		b, ok := perMetric[rule.Metric]
		if !ok {
			b = new(bounds)
			perMetric[rule.Metric] = b
		}

		switch rule.Comparator {
		case Above:
			if !b.hasAbove || rule.Threshold < b.minAbove {
				b.minAbove = rule.Threshold
			}

			b.hasAbove = true
		case Below:
			if !b.hasBelow || rule.Threshold > b.maxBelow {
				b.maxBelow = rule.Threshold
			}

			b.hasBelow = true
		default:
			return fmt.Errorf("rule %s: %w", rule.ID(), ErrInvalidComparator)
		}
	}

	var errs []error

	for metric, b := range perMetric {
		if b.hasAbove && b.hasBelow && b.maxBelow > b.minAbove {
			errs = append(errs, fmt.Errorf(
				"%w: %s below %v overlaps above %v",
				ErrOverlappingThresholds, metric, b.maxBelow, b.minAbove,
			))
		}
	}

	return errors.Join(errs...)
}

// TimeOfDay is a wall-clock time with minute resolution.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM" (24-hour clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(s))
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}

	return TimeOfDay{
		Hour:   parsed.Hour(),
		Minute: parsed.Minute(),
	}, nil
}

// String renders the time as "HH:MM".
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// LatestOccurrence returns the most recent instant at or before now when the
// wall clock in now's location showed t. It is either today or yesterday.
func (t TimeOfDay) LatestOccurrence(now time.Time) time.Time {
	year, month, day := now.Date()
	occurrence := time.Date(year, month, day, t.Hour, t.Minute, 0, 0, now.Location())

	if occurrence.After(now) {
		occurrence = time.Date(year, month, day-1, t.Hour, t.Minute, 0, 0, now.Location())
	}

	return occurrence
}

// TimeRule fires its action once per day at a wall-clock time.
type TimeRule struct {
	// At is the time of day the rule fires.
	At TimeOfDay
	// Action is executed when the rule is due.
	Action Action
	// Seq numbers the rules sharing At and Action, in declaration order.
	Seq int
}

// ID identifies the rule in logs, events and the schedule state file.
// The first rule of a kind keeps the plain "HH:MM/name@device" form.
func (r TimeRule) ID() string {
	if r.Seq > 0 {
		return fmt.Sprintf("%s/%s#%d", r.At, r.Action, r.Seq)
	}

	return fmt.Sprintf("%s/%s", r.At, r.Action)
}
