package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommand_EncodeWireShape(t *testing.T) {
	tests := map[string]struct {
		cmd  Command
		want string
	}{
		"power on":         {cmd: PowerCommand("fan-1", true), want: `{"device_id":"fan-1","command":{"power":true}}`},
		"power off":        {cmd: PowerCommand("fan-1", false), want: `{"device_id":"fan-1","command":{"power":false}}`},
		"led":              {cmd: LedCommand("fan-1", true), want: `{"device_id":"fan-1","command":{"led":true}}`},
		"speed zero kept":  {cmd: SpeedCommand("fan-1", 0), want: `{"device_id":"fan-1","command":{"speed":0}}`},
		"speed":            {cmd: SpeedCommand("fan-1", 5), want: `{"device_id":"fan-1","command":{"speed":5}}`},
		"speed delta":      {cmd: SpeedDeltaCommand("fan-1", -2), want: `{"device_id":"fan-1","command":{"speedDelta":-2}}`},
		"sleep":            {cmd: SleepCommand("fan-1", true), want: `{"device_id":"fan-1","command":{"sleep":true}}`},
		"timer off kept":   {cmd: TimerCommand("fan-1", 0), want: `{"device_id":"fan-1","command":{"timer":0}}`},
		"timer":            {cmd: TimerCommand("fan-1", 3), want: `{"device_id":"fan-1","command":{"timer":3}}`},
		"brightness":       {cmd: BrightnessCommand("fan-1", 60), want: `{"device_id":"fan-1","command":{"brightness":60}}`},
		"brightness delta": {cmd: BrightnessDeltaCommand("fan-1", -30), want: `{"device_id":"fan-1","command":{"brightnessDelta":-30}}`},
		"light mode":       {cmd: LightModeCommand("fan-1", LightModeWarm), want: `{"device_id":"fan-1","command":{"light_mode":"warm"}}`},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			body, err := tt.cmd.Encode()
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(body))
		})
	}
}

func TestCommand_ValidateRejectsOutOfRange(t *testing.T) {
	tests := map[string]Command{
		"speed above 6":         SpeedCommand("fan-1", 7),
		"speed below 0":         SpeedCommand("fan-1", -1),
		"speed delta too large": SpeedDeltaCommand("fan-1", 6),
		"timer above 4":         TimerCommand("fan-1", 5),
		"brightness below 10":   BrightnessCommand("fan-1", 5),
		"brightness above 100":  BrightnessCommand("fan-1", 101),
		"brightness delta":      BrightnessDeltaCommand("fan-1", 95),
		"bogus light mode":      LightModeCommand("fan-1", LightMode("neon")),
		"unknown kind":          {DeviceID: "fan-1", Kind: ControlKind("volume")},
	}
	for name, cmd := range tests {
		t.Run(name, func(t *testing.T) {
			assert.ErrorIs(t, cmd.Validate(), ErrBadCommandValue)
		})
	}
}

func TestCommand_EncodeRequiresDeviceID(t *testing.T) {
	_, err := PowerCommand("", true).Encode()
	assert.ErrorIs(t, err, ErrBadCommandValue)
}

func TestCommandRequest_Command(t *testing.T) {
	tests := map[string]struct {
		raw  string
		want Command
	}{
		"power":      {raw: `{"device_id":"fan-1","control":"power","value":true}`, want: PowerCommand("fan-1", true)},
		"speed":      {raw: `{"device_id":"fan-1","control":"speed","value":4}`, want: SpeedCommand("fan-1", 4)},
		"timer":      {raw: `{"device_id":"fan-1","control":"timer","value":2}`, want: TimerCommand("fan-1", 2)},
		"light mode": {raw: `{"device_id":"fan-1","control":"light_mode","value":"cool"}`, want: LightModeCommand("fan-1", LightModeCool)},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			var req CommandRequest
			require.NoError(t, json.Unmarshal([]byte(tt.raw), &req))
			cmd, err := req.Command()
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd)
		})
	}
}

func TestCommandRequest_CommandRejectsMismatchedValue(t *testing.T) {
	tests := map[string]string{
		"bool for speed":    `{"device_id":"fan-1","control":"speed","value":true}`,
		"number for power":  `{"device_id":"fan-1","control":"power","value":3}`,
		"unknown control":   `{"device_id":"fan-1","control":"volume","value":1}`,
		"missing device id": `{"control":"power","value":true}`,
	}
	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			var req CommandRequest
			require.NoError(t, json.Unmarshal([]byte(raw), &req))
			_, err := req.Command()
			assert.ErrorIs(t, err, ErrBadCommandValue)
		})
	}
}
