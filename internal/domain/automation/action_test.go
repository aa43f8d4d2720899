package automation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestResolveAction verifies that action names map onto typed commands.
func TestResolveAction(t *testing.T) {
	t.Parallel()

	defaults := AirconSettings{
		Mode: "cool",
		Temp: "26",
		Fan:  "auto",
	}

	cases := map[string]Kind{
		"turn_on_light":   KindLightOn,
		"turn_on":         KindLightOn,
		"turn_off_light":  KindLightOff,
		"turn_off_aircon": KindLightOff,
		"set_aircon":      KindSetAircon,
	}

	for name, kind := range cases {
		action, err := ResolveAction("aircon", name, nil, defaults)
		require.NoError(t, err, name)
		require.Equal(t, kind, action.Kind, name)
		require.Equal(t, "aircon", action.Device)
		require.Equal(t, name, action.Name)
	}

	_, err := ResolveAction("light", "blink", nil, defaults)
	require.ErrorIs(t, err, ErrUnknownAction)
}

// TestResolveAction_AirconOverlay checks that params override device defaults.
func TestResolveAction_AirconOverlay(t *testing.T) {
	t.Parallel()

	defaults := AirconSettings{
		Mode: "cool",
		Temp: "26",
		Fan:  "auto",
	}

	action, err := ResolveAction("aircon", "set_aircon", map[string]string{
		"mode":          "dry",
		"air_direction": "swing",
	}, defaults)
	require.NoError(t, err)

	require.Equal(t, map[string]string{
		"mode":          "dry",
		"temp":          "26",
		"fan":           "auto",
		"air_direction": "swing",
	}, action.Aircon.Params())

	// Defaults are left untouched.
	require.Equal(t, "cool", defaults.Mode)
	require.Nil(t, defaults.Extra)
}

// TestResolveAction_IncompleteAircon refuses aircon commands the API would reject.
func TestResolveAction_IncompleteAircon(t *testing.T) {
	t.Parallel()

	_, err := ResolveAction("aircon", "set_aircon", map[string]string{"mode": "dry"}, AirconSettings{Fan: "auto"})
	require.ErrorIs(t, err, ErrIncompleteAircon)
	require.ErrorContains(t, err, "missing temp")

	require.Equal(t, []string{ParamMode, ParamTemp, ParamFan}, AirconSettings{}.Missing())
	require.Empty(t, AirconSettings{Mode: "cool", Temp: "26", Fan: "1"}.Missing())

	// Light commands never need aircon settings.
	_, err = ResolveAction("aircon", "turn_off_aircon", nil, AirconSettings{})
	require.NoError(t, err)
}

// TestAirconSettings_Clone ensures extra parameters are deep-copied.
func TestAirconSettings_Clone(t *testing.T) {
	t.Parallel()

	s := AirconSettings{Extra: map[string]string{"button": "power-off"}}
	c := s.Clone()
	c.Extra["button"] = "on"

	require.Equal(t, "power-off", s.Extra["button"])
}
