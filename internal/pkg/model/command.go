package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

var ErrBadCommandValue = errors.New("command value out of range")

// Command is a user intent for a single control of a single device. Exactly
// one of the value fields is meaningful, selected by Kind.
type Command struct {
	DeviceID string
	Kind     ControlKind

	Bool bool
	Int  int
	Mode LightMode
}

func PowerCommand(deviceID string, on bool) Command {
	return Command{DeviceID: deviceID, Kind: ControlPower, Bool: on}
}

func LedCommand(deviceID string, on bool) Command {
	return Command{DeviceID: deviceID, Kind: ControlLed, Bool: on}
}

func SpeedCommand(deviceID string, speed int) Command {
	return Command{DeviceID: deviceID, Kind: ControlSpeed, Int: speed}
}

func SpeedDeltaCommand(deviceID string, delta int) Command {
	return Command{DeviceID: deviceID, Kind: ControlSpeedDelta, Int: delta}
}

func SleepCommand(deviceID string, on bool) Command {
	return Command{DeviceID: deviceID, Kind: ControlSleep, Bool: on}
}

func TimerCommand(deviceID string, hours int) Command {
	return Command{DeviceID: deviceID, Kind: ControlTimer, Int: hours}
}

func BrightnessCommand(deviceID string, brightness int) Command {
	return Command{DeviceID: deviceID, Kind: ControlBrightness, Int: brightness}
}

func BrightnessDeltaCommand(deviceID string, delta int) Command {
	return Command{DeviceID: deviceID, Kind: ControlBrightnessDelta, Int: delta}
}

func LightModeCommand(deviceID string, mode LightMode) Command {
	return Command{DeviceID: deviceID, Kind: ControlLightMode, Mode: mode}
}

// commandBody is the wire shape of /v1/send_command. Pointer fields so that
// zero values (timer 0 = off, speed 0) still serialize.
type commandBody struct {
	DeviceID string         `json:"device_id"`
	Command  commandPayload `json:"command"`
}

type commandPayload struct {
	Power           *bool      `json:"power,omitempty"`
	Led             *bool      `json:"led,omitempty"`
	Speed           *int       `json:"speed,omitempty"`
	SpeedDelta      *int       `json:"speedDelta,omitempty"`
	Sleep           *bool      `json:"sleep,omitempty"`
	Timer           *int       `json:"timer,omitempty"`
	Brightness      *int       `json:"brightness,omitempty"`
	BrightnessDelta *int       `json:"brightnessDelta,omitempty"`
	LightMode       *LightMode `json:"light_mode,omitempty"`
}

// Validate checks the value against the range the device firmware accepts.
func (c Command) Validate() error {
	switch c.Kind {
	case ControlPower, ControlLed, ControlSleep:
		return nil
	case ControlSpeed:
		if c.Int < 0 || c.Int > 6 {
			return fmt.Errorf("%w: speed %d not in 0..6", ErrBadCommandValue, c.Int)
		}
	case ControlSpeedDelta:
		if c.Int < -5 || c.Int > 5 {
			return fmt.Errorf("%w: speed delta %d not in -5..5", ErrBadCommandValue, c.Int)
		}
	case ControlTimer:
		if c.Int < 0 || c.Int > 4 {
			return fmt.Errorf("%w: timer %d not in 0..4 hours", ErrBadCommandValue, c.Int)
		}
	case ControlBrightness:
		if c.Int < 10 || c.Int > 100 {
			return fmt.Errorf("%w: brightness %d not in 10..100", ErrBadCommandValue, c.Int)
		}
	case ControlBrightnessDelta:
		if c.Int < -90 || c.Int > 90 {
			return fmt.Errorf("%w: brightness delta %d not in -90..90", ErrBadCommandValue, c.Int)
		}
	case ControlLightMode:
		switch c.Mode {
		case LightModeWarm, LightModeCool, LightModeDaylight:
		default:
			return fmt.Errorf("%w: light mode %q", ErrBadCommandValue, c.Mode)
		}
	default:
		return fmt.Errorf("%w: unknown control kind %q", ErrBadCommandValue, c.Kind)
	}
	return nil
}

// Encode validates the command and serializes the send_command body.
func (c Command) Encode() ([]byte, error) {
	if c.DeviceID == "" {
		return nil, fmt.Errorf("%w: empty device id", ErrBadCommandValue)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	body := commandBody{DeviceID: c.DeviceID}
	switch c.Kind {
	case ControlPower:
		body.Command.Power = &c.Bool
	case ControlLed:
		body.Command.Led = &c.Bool
	case ControlSpeed:
		body.Command.Speed = &c.Int
	case ControlSpeedDelta:
		body.Command.SpeedDelta = &c.Int
	case ControlSleep:
		body.Command.Sleep = &c.Bool
	case ControlTimer:
		body.Command.Timer = &c.Int
	case ControlBrightness:
		body.Command.Brightness = &c.Int
	case ControlBrightnessDelta:
		body.Command.BrightnessDelta = &c.Int
	case ControlLightMode:
		body.Command.LightMode = &c.Mode
	}
	return json.Marshal(body)
}
