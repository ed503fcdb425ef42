package model

import (
	"encoding/json"
	"fmt"
)

// CommandRequest is an inbound control request as received from the feed or
// the relay. Value's JSON type depends on Control: bool for switches, number
// for levels, string for the light mode.
type CommandRequest struct {
	DeviceID string          `json:"device_id"`
	Control  ControlKind     `json:"control"`
	Value    json.RawMessage `json:"value"`
}

// Command converts the raw request into a typed Command. Range validation is
// left to Command.Validate.
func (r CommandRequest) Command() (Command, error) {
	if r.DeviceID == "" {
		return Command{}, fmt.Errorf("%w: empty device id", ErrBadCommandValue)
	}

	switch r.Control {
	case ControlPower, ControlLed, ControlSleep:
		var on bool
		if err := json.Unmarshal(r.Value, &on); err != nil {
			return Command{}, fmt.Errorf("%w: %s wants a boolean: %v", ErrBadCommandValue, r.Control, err)
		}
		return Command{DeviceID: r.DeviceID, Kind: r.Control, Bool: on}, nil
	case ControlSpeed, ControlSpeedDelta, ControlTimer, ControlBrightness, ControlBrightnessDelta:
		var level int
		if err := json.Unmarshal(r.Value, &level); err != nil {
			return Command{}, fmt.Errorf("%w: %s wants a number: %v", ErrBadCommandValue, r.Control, err)
		}
		return Command{DeviceID: r.DeviceID, Kind: r.Control, Int: level}, nil
	case ControlLightMode:
		var mode LightMode
		if err := json.Unmarshal(r.Value, &mode); err != nil {
			return Command{}, fmt.Errorf("%w: %s wants a string: %v", ErrBadCommandValue, r.Control, err)
		}
		return Command{DeviceID: r.DeviceID, Kind: r.Control, Mode: mode}, nil
	default:
		return Command{}, fmt.Errorf("%w: unknown control %q", ErrBadCommandValue, r.Control)
	}
}
