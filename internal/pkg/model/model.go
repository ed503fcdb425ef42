package model

// ################################
// Cloud device list

// Device is a fan unit: stable identity from the cloud device list plus the
// last known status, if any. Equality is by DeviceID.
type Device struct {
	Metadata Metadata `json:"metadata"`
	DeviceID string   `json:"device_id"`
	Color    string   `json:"color"`
	Series   string   `json:"series"`
	Model    string   `json:"model"`
	Room     string   `json:"room"`
	Name     string   `json:"name"`

	State *DeviceStatus `json:"state,omitempty"`
}

type Metadata struct {
	SSID string `json:"ssid"`
}

// WithState returns a copy of the device carrying the given status.
func (d Device) WithState(state *DeviceStatus) Device {
	d.State = state
	return d
}

type DeviceListResponse struct {
	Status  string `json:"status"`
	Message struct {
		DevicesList []Device `json:"devices_list"`
	} `json:"message"`
}

// ################################
// Cloud device state

// DeviceStatus is the mutable operational snapshot of a device, latest-wins
// per DeviceID. Brightness and Color are nil on devices without a light.
type DeviceStatus struct {
	DeviceID         string  `json:"device_id"`
	IsPoweredOn      bool    `json:"power"`
	Speed            int     `json:"last_recorded_speed"`
	IsSleepModeOn    bool    `json:"sleep_mode"`
	IsLedOn          bool    `json:"led"`
	IsOnline         bool    `json:"is_online"`
	TimerHours       int     `json:"timer_hours"`
	TimerElapsedMins int     `json:"timer_time_elapsed_mins"`
	EpochSeconds     int64   `json:"ts_epoch_seconds"`
	Brightness       *int    `json:"last_recorded_brightness,omitempty"`
	Color            *string `json:"last_recorded_color,omitempty"`
}

type DeviceStateResponse struct {
	Status  string `json:"status"`
	Message struct {
		DeviceState []DeviceStatus `json:"device_state"`
	} `json:"message"`
}

// ################################
// Token refresh

type AccessTokenResponse struct {
	Status  string `json:"status"`
	Message struct {
		AccessToken string `json:"access_token"`
	} `json:"message"`
}

// ################################
// Send command ack. The ack reports acceptance only, never new device state.

type CommandResponse struct {
	Status       string `json:"status,omitempty"`
	Message      string `json:"message,omitempty"`
	ErrorType    string `json:"errorType,omitempty"`
	ErrorMessage string `json:"errorMessage,omitempty"`
}

// ################################
// UDP broadcast

// StatusEnvelope is the JSON carried inside a hex-ASCII UDP datagram.
type StatusEnvelope struct {
	DeviceID    string `json:"device_id"`
	MessageID   string `json:"message_id,omitempty"`
	StateString string `json:"state_string,omitempty"`
}

// FanState is the bit-field decode of a UDP state string. Timer fields are
// remaining time, already adjusted for elapsed minutes; TimerMins may be
// negative when the timer has just expired.
type FanState struct {
	DeviceID      string
	IsPoweredOn   bool
	IsLedOn       bool
	IsSleepModeOn bool
	Speed         int
	TimerHours    int
	TimerMins     int
	Brightness    int
	Cool          bool
	Warm          bool
	LightMode     LightMode
}

// Status converts a UDP decode into the cloud status shape. UDP payloads do
// not carry online/offline, so the caller supplies the prior online flag.
func (f FanState) Status(wasOnline bool) *DeviceStatus {
	status := &DeviceStatus{
		DeviceID:         f.DeviceID,
		IsPoweredOn:      f.IsPoweredOn,
		Speed:            f.Speed,
		IsSleepModeOn:    f.IsSleepModeOn,
		IsLedOn:          f.IsLedOn,
		IsOnline:         wasOnline,
		TimerHours:       f.TimerHours,
		TimerElapsedMins: f.TimerMins,
	}
	if f.Cool || f.Warm {
		brightness := f.Brightness
		mode := string(f.LightMode)
		status.Brightness = &brightness
		status.Color = &mode
	}
	return status
}
