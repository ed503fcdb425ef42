package model

// ControlKind identifies a user-controllable aspect of a fan. The string
// value doubles as the wire key in command payloads.
type ControlKind string

func (ck ControlKind) String() string {
	return string(ck)
}

const (
	ControlPower           ControlKind = "power"           // bool
	ControlLed             ControlKind = "led"             // bool
	ControlSpeed           ControlKind = "speed"           // int 0..6
	ControlSpeedDelta      ControlKind = "speedDelta"      // int -5..5
	ControlSleep           ControlKind = "sleep"           // bool
	ControlTimer           ControlKind = "timer"           // int hours, 0 = off
	ControlBrightness      ControlKind = "brightness"      // int 10..100
	ControlBrightnessDelta ControlKind = "brightnessDelta" // int -90..90
	ControlLightMode       ControlKind = "light_mode"      // warm/cool/daylight
)

type LightMode string

func (lm LightMode) String() string {
	return string(lm)
}

const (
	LightModeWarm     LightMode = "warm"
	LightModeCool     LightMode = "cool"
	LightModeDaylight LightMode = "daylight"
)

// DeriveLightMode maps the two colour bits of the wire format to a mode.
// Neither bit set means the device has no light; the empty mode is returned.
func DeriveLightMode(cool, warm bool) LightMode {
	switch {
	case cool && warm:
		return LightModeDaylight
	case cool:
		return LightModeCool
	case warm:
		return LightModeWarm
	}
	return ""
}
