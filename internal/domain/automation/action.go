package automation

import (
	"fmt"
	"maps"
	"strings"
)

// Kind enumerates the commands an action can send to a device.
type Kind string

const (
	// KindLightOn switches a light on.
	KindLightOn Kind = "light_on"
	// KindLightOff switches a light off.
	KindLightOff Kind = "light_off"
	// KindSetAircon pushes air conditioner settings.
	KindSetAircon Kind = "set_aircon"
)

// Action names understood by ResolveAction.
const (
	turnOnPrefix    = "turn_on"
	turnOffPrefix   = "turn_off"
	setAirconAction = "set_aircon"
)

// Aircon setting keys sent to the vendor API.
const (
	ParamMode = "mode"
	ParamTemp = "temp"
	ParamFan  = "fan"
)

// AirconSettings holds the parameters of an air conditioner command.
type AirconSettings struct {
	// Mode is the operation mode (cool, warm, dry, auto...).
	Mode string `yaml:"mode"`
	// Temp is the target temperature as the vendor expects it.
	Temp string `yaml:"temp"`
	// Fan is the air volume (auto, 1..5).
	Fan string `yaml:"fan"`
	// Extra carries any other vendor parameter verbatim.
	Extra map[string]string `yaml:"extra,omitempty"`
}

// AirconSettingsFromParams splits a flat parameter map into known and extra keys.
func AirconSettingsFromParams(params map[string]string) AirconSettings {
	var settings AirconSettings

	for key, value := range params {
		switch key {
		case ParamMode:
			settings.Mode = value
		case ParamTemp:
			settings.Temp = value
		case ParamFan:
			settings.Fan = value
		default:
			if settings.Extra == nil {
				settings.Extra = make(map[string]string)
			}

			settings.Extra[key] = value
		}
	}

	return settings
}

// Overlay returns a copy of s where every non-empty field of override wins.
func (s AirconSettings) Overlay(override AirconSettings) AirconSettings {
	result := s.Clone()

	if override.Mode != "" {
		result.Mode = override.Mode
	}

	if override.Temp != "" {
		result.Temp = override.Temp
	}

	if override.Fan != "" {
		result.Fan = override.Fan
	}

	for key, value := range override.Extra {
		if result.Extra == nil {
			result.Extra = make(map[string]string, len(override.Extra))
		}

		result.Extra[key] = value
	}

	return result
}

// Params flattens the settings into the form fields sent to the vendor API.
// Empty fields are omitted.
func (s AirconSettings) Params() map[string]string {
	params := make(map[string]string, len(s.Extra)+3)
	maps.Copy(params, s.Extra)

	if s.Mode != "" {
		params[ParamMode] = s.Mode
	}

	if s.Temp != "" {
		params[ParamTemp] = s.Temp
	}

	if s.Fan != "" {
		params[ParamFan] = s.Fan
	}

	return params
}

// Missing lists the required keys that are empty.
func (s AirconSettings) Missing() []string {
	var missing []string

	if s.Mode == "" {
		missing = append(missing, ParamMode)
	}

	if s.Temp == "" {
		missing = append(missing, ParamTemp)
	}

	if s.Fan == "" {
		missing = append(missing, ParamFan)
	}

	return missing
}

// Clone returns a deep copy of the settings.
func (s AirconSettings) Clone() AirconSettings {
	cloned := s
	cloned.Extra = maps.Clone(s.Extra)

	return cloned
}

// Action is a device-targeted command value.
type Action struct {
	// Device is the logical device name (key of the device map).
	Device string
	// Name is the action name as written in the configuration, kept for logs.
	Name string
	// Kind selects the command.
	Kind Kind
	// Aircon is only meaningful for KindSetAircon.
	Aircon AirconSettings
}

// String renders the action for logs.
func (a Action) String() string {
	return fmt.Sprintf("%s@%s", a.Name, a.Device)
}

// ResolveAction maps a configured action name onto a typed Action.
// Names starting with "turn_on" and "turn_off" become light commands and
// "set_aircon" becomes an aircon command built from defaults overlaid by params;
// it fails with ErrIncompleteAircon unless mode, temp and fan all end up set.
func ResolveAction(device, name string, params map[string]string, defaults AirconSettings) (Action, error) {
	action := Action{
		Device: device,
		Name:   name,
	}

	switch {
	case strings.HasPrefix(name, turnOnPrefix):
		action.Kind = KindLightOn
	case strings.HasPrefix(name, turnOffPrefix):
		action.Kind = KindLightOff
	case name == setAirconAction:
		action.Kind = KindSetAircon
		action.Aircon = defaults.Overlay(AirconSettingsFromParams(params))

		if missing := action.Aircon.Missing(); len(missing) > 0 {
			return Action{}, fmt.Errorf("%w: %s missing %s", ErrIncompleteAircon, device, strings.Join(missing, ", "))
		}
	default:
		return Action{}, fmt.Errorf("%w: %q", ErrUnknownAction, name)
	}

	return action, nil
}
