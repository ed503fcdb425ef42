package cloud

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fabex3d/fanbridge/internal/pkg/config"
	"github.com/fabex3d/fanbridge/internal/pkg/model"
	"github.com/fabex3d/fanbridge/internal/pkg/secrets"
)

type mapStore map[string]string

func (m mapStore) Get(_ context.Context, key string) (string, error) {
	value, ok := m[key]
	if !ok {
		return "", secrets.ErrNotFound
	}
	return value, nil
}

func testStore() mapStore {
	return mapStore{
		secrets.KeyAPIKey:       "api-key-1",
		secrets.KeyAuthToken:    "auth-token-1",
		secrets.KeyRefreshToken: "access-token-1",
	}
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(&config.CloudConfig{Host: srv.URL, Timeout: 5 * time.Second}, testStore())
}

func TestDeviceList_AttachesAccessHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/get_list_of_devices", r.URL.Path)
		assert.Equal(t, "api-key-1", r.Header.Get("x-api-key"))
		assert.Equal(t, "Bearer access-token-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":"success","message":{"devices_list":[{"device_id":"fan-1","name":"Bedroom","room":"Bedroom","metadata":{"ssid":"home"}}]}}`))
	})

	devices, err := c.DeviceList(context.Background())
	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "fan-1", devices[0].DeviceID)
	assert.Equal(t, "Bedroom", devices[0].Name)
	assert.Nil(t, devices[0].State)
}

func TestRefreshAccessToken_AttachesAuthHeaders(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/get_access_token", r.URL.Path)
		assert.Equal(t, "Bearer auth-token-1", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"status":"success","message":{"access_token":"fresh-token"}}`))
	})

	token, err := c.RefreshAccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "fresh-token", token)
}

func TestDeviceState_DefaultsToAllSentinel(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all", r.URL.Query().Get("device_id"))
		_, _ = w.Write([]byte(`{"status":"success","message":{"device_state":[{"device_id":"fan-1","power":true,"last_recorded_speed":3,"is_online":true}]}}`))
	})

	states, err := c.DeviceState(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, states, 1)
	assert.True(t, states[0].IsPoweredOn)
	assert.Equal(t, 3, states[0].Speed)
}

func TestSendCommand_PostsEncodedBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/send_command", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `"fan-1"`, string(body["device_id"]))
		assert.JSONEq(t, `{"speed":4}`, string(body["command"]))

		_, _ = w.Write([]byte(`{"status":"success"}`))
	})

	ack, err := c.SendCommand(context.Background(), model.SpeedCommand("fan-1", 4))
	require.NoError(t, err)
	assert.Equal(t, "success", ack.Status)
}

func TestSendCommand_RejectsBadValueWithoutNetwork(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	_, err := c.SendCommand(context.Background(), model.SpeedCommand("fan-1", 9))
	assert.ErrorIs(t, err, model.ErrBadCommandValue)
	assert.False(t, called)
}

func TestExecute_StatusClassification(t *testing.T) {
	tests := map[string]struct {
		code    int
		wantErr error
	}{
		"401 unauthorized":      {code: http.StatusUnauthorized, wantErr: ErrUnauthorized},
		"403 forbidden":         {code: http.StatusForbidden, wantErr: ErrForbidden},
		"404 not found":         {code: http.StatusNotFound, wantErr: ErrNotFound},
		"429 rate limited":      {code: http.StatusTooManyRequests, wantErr: ErrRateLimited},
		"418 parsing surrogate": {code: http.StatusTeapot, wantErr: ErrDataParsing},
		"500 parsing surrogate": {code: http.StatusInternalServerError, wantErr: ErrDataParsing},
		"201 generic failure":   {code: http.StatusCreated, wantErr: ErrAPIFailure},
		"502 generic failure":   {code: http.StatusBadGateway, wantErr: ErrAPIFailure},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
			})
			_, err := c.DeviceList(context.Background())
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestExecute_GarbageBodySurfacesDistinctly(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	})

	_, err := c.DeviceList(context.Background())
	assert.ErrorIs(t, err, ErrBadPayload)
	assert.NotErrorIs(t, err, ErrDataParsing)
}

func TestExecute_MissingCredentialSurfaces(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	t.Cleanup(srv.Close)
	c := New(&config.CloudConfig{Host: srv.URL, Timeout: time.Second}, mapStore{})

	_, err := c.DeviceList(context.Background())
	assert.ErrorIs(t, err, secrets.ErrNotFound)
}
