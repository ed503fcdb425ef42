// Package codec decodes the broadcast status datagrams the fans emit on the
// local network. A datagram is an ASCII-hex encoding of a small JSON envelope;
// the envelope's state_string packs the whole device state into one uint32.
package codec

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/fabex3d/fanbridge/internal/pkg/model"
)

var (
	ErrMalformedPayload  = errors.New("payload is not hex-encoded ASCII")
	ErrMalformedEnvelope = errors.New("malformed status envelope")
	ErrInvalidStateField = errors.New("invalid state field")
)

// Bit layout of the packed state integer, LSB-first.
const (
	maskSpeed      = 0x07       // bits 0-2, 0..6
	maskCool       = 0x08       // bit 3
	maskPower      = 0x10       // bit 4
	maskLed        = 0x20       // bit 5
	maskSleep      = 0x80       // bit 7
	maskBrightness = 0x7F00     // bits 8-14, 0..100
	maskWarm       = 0x8000     // bit 15
	maskTimerHours = 0x0F0000   // bits 16-19
	maskElapsed    = 0xFF000000 // bits 24-31, in 4-minute ticks
)

// Decode converts a raw UDP payload into a FanState. It never panics; every
// malformed input maps to one of the package's sentinel errors.
func Decode(payload []byte) (model.FanState, error) {
	envelope, err := decodeEnvelope(payload)
	if err != nil {
		return model.FanState{}, err
	}
	if envelope.StateString == "" {
		return model.FanState{}, fmt.Errorf("%w: missing state_string", ErrMalformedEnvelope)
	}

	field, _, _ := strings.Cut(envelope.StateString, ",")
	value, err := strconv.ParseUint(strings.TrimSpace(field), 10, 32)
	if err != nil {
		return model.FanState{}, fmt.Errorf("%w: %q", ErrInvalidStateField, field)
	}

	return decodeState(envelope.DeviceID, uint32(value)), nil
}

func decodeEnvelope(payload []byte) (*model.StatusEnvelope, error) {
	raw := string(payload)
	if len(raw)%2 != 0 {
		raw = "0" + raw
	}
	ascii, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}

	envelope := &model.StatusEnvelope{}
	if err := json.Unmarshal(ascii, envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	return envelope, nil
}

// decodeState performs the arithmetic in uint32 unconditionally so the top
// byte (elapsed ticks) is representable on every target.
func decodeState(deviceID string, value uint32) model.FanState {
	cool := value&maskCool != 0
	warm := value&maskWarm != 0

	timerHours := int(value & maskTimerHours >> 16)
	elapsedMins := int(value&maskElapsed>>24) * 4

	// Remaining time; deliberately unclamped so a just-expired timer shows
	// as negative minutes to the caller.
	remaining := timerHours*60 - elapsedMins

	return model.FanState{
		DeviceID:      deviceID,
		IsPoweredOn:   value&maskPower != 0,
		IsLedOn:       value&maskLed != 0,
		IsSleepModeOn: value&maskSleep != 0,
		Speed:         int(value & maskSpeed),
		TimerHours:    remaining / 60,
		TimerMins:     remaining % 60,
		Brightness:    int(value & maskBrightness >> 8),
		Cool:          cool,
		Warm:          warm,
		LightMode:     model.DeriveLightMode(cool, warm),
	}
}
