package automation

import "errors"

// Domain errors for the automation package.
var (
	// ErrUnknownDevice is returned when an action targets a device that is not configured.
	ErrUnknownDevice = errors.New("automation: unknown device")
	// ErrUnknownAction is returned when an action name cannot be mapped to a command.
	ErrUnknownAction = errors.New("automation: unknown action")
	// ErrIncompleteAircon is returned when an aircon command lacks mode, temp or fan.
	ErrIncompleteAircon = errors.New("automation: incomplete aircon settings")
	// ErrInvalidComparator is returned for comparators other than ">" and "<".
	ErrInvalidComparator = errors.New("automation: invalid comparator")
	// ErrInvalidTimeOfDay is returned when a schedule time is not in HH:MM form.
	ErrInvalidTimeOfDay = errors.New("automation: invalid time of day")
	// ErrOverlappingThresholds is returned when low and high bounds of one metric can match the same value.
	ErrOverlappingThresholds = errors.New("automation: overlapping thresholds")
)
