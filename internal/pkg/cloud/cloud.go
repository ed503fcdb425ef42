// Package cloud is the typed client for the fan vendor's REST API: device
// list, device state, access-token refresh and command send.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fabex3d/fanbridge/internal/pkg/config"
	"github.com/fabex3d/fanbridge/internal/pkg/model"
	"github.com/fabex3d/fanbridge/internal/pkg/secrets"
)

// DeviceAll is the device_id sentinel the state endpoint accepts for "every
// device on the account".
const DeviceAll = "all"

const (
	headerAPIKey  = "x-api-key"
	headerAuth    = "Authorization"
	retryInterval = 2 * time.Second
)

type secretStore interface {
	Get(ctx context.Context, key string) (string, error)
}

type Client struct {
	cfg        *config.CloudConfig
	httpClient *http.Client
	store      secretStore
	logger     *zap.Logger
}

func New(cfg *config.CloudConfig, store secretStore) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		store:  store,
		logger: zap.L(),
	}
}

// headerProfile selects which bearer credential a request carries. Token
// refresh authenticates with the long-lived auth token; everything else with
// the refreshed access token.
type headerProfile int

const (
	authProfile headerProfile = iota
	accessProfile
)

type request struct {
	method  string
	path    string
	query   url.Values
	body    []byte
	profile headerProfile
}

func (c *Client) DeviceList(ctx context.Context) ([]model.Device, error) {
	res, err := execute[model.DeviceListResponse](ctx, c, request{
		method:  http.MethodGet,
		path:    "/v1/get_list_of_devices",
		profile: accessProfile,
	})
	if err != nil {
		return nil, err
	}
	return res.Message.DevicesList, nil
}

func (c *Client) DeviceState(ctx context.Context, deviceID string) ([]model.DeviceStatus, error) {
	if deviceID == "" {
		deviceID = DeviceAll
	}
	res, err := execute[model.DeviceStateResponse](ctx, c, request{
		method:  http.MethodGet,
		path:    "/v1/get_device_state",
		query:   url.Values{"device_id": []string{deviceID}},
		profile: accessProfile,
	})
	if err != nil {
		return nil, err
	}
	return res.Message.DeviceState, nil
}

func (c *Client) RefreshAccessToken(ctx context.Context) (string, error) {
	res, err := execute[model.AccessTokenResponse](ctx, c, request{
		method:  http.MethodGet,
		path:    "/v1/get_access_token",
		profile: authProfile,
	})
	if err != nil {
		return "", err
	}
	return res.Message.AccessToken, nil
}

func (c *Client) SendCommand(ctx context.Context, cmd model.Command) (*model.CommandResponse, error) {
	body, err := cmd.Encode()
	if err != nil {
		return nil, err
	}
	return execute[model.CommandResponse](ctx, c, request{
		method:  http.MethodPost,
		path:    "/v1/send_command",
		body:    body,
		profile: accessProfile,
	})
}

func (c *Client) headers(ctx context.Context, profile headerProfile) (http.Header, error) {
	apiKey, err := c.store.Get(ctx, secrets.KeyAPIKey)
	if err != nil {
		return nil, fmt.Errorf("read api key: %w", err)
	}

	// The access token lives under the refresh-token key: the refresh
	// endpoint's response is itself the bearer for authenticated calls.
	tokenKey := secrets.KeyAuthToken
	if profile == accessProfile {
		tokenKey = secrets.KeyRefreshToken
	}
	token, err := c.store.Get(ctx, tokenKey)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", tokenKey, err)
	}

	h := http.Header{}
	h.Set(headerAPIKey, apiKey)
	h.Set(headerAuth, "Bearer "+token)
	return h, nil
}

// execute runs one declarative request and decodes the response into T.
// Transient connect failures are retried until the configured timeout
// elapses; the client waits for connectivity rather than failing fast.
func execute[T any](ctx context.Context, c *Client, req request) (*T, error) {
	// Host may carry an explicit scheme (dev setups, tests); default https.
	base := c.cfg.Host
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	parsed, err := url.Parse(base)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, cause: err}
	}
	u := url.URL{
		Scheme:   parsed.Scheme,
		Host:     parsed.Host,
		Path:     req.path,
		RawQuery: req.query.Encode(),
	}

	headers, err := c.headers(ctx, req.profile)
	if err != nil {
		return nil, err
	}

	started := time.Now()
	var res *http.Response
	for {
		httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), bytes.NewReader(req.body))
		if err != nil {
			return nil, &Error{Kind: KindUnknown, cause: err}
		}
		httpReq.Header = headers.Clone()
		if len(req.body) > 0 {
			httpReq.Header.Set("Content-Type", "application/json")
		}

		res, err = c.httpClient.Do(httpReq)
		if err == nil {
			break
		}
		if terr := classifyTransport(err); terr != nil {
			return nil, terr
		}
		// Connectivity not there yet; retry inside the request budget.
		if time.Since(started)+retryInterval > c.cfg.Timeout {
			return nil, &Error{Kind: KindTimeout, cause: err}
		}
		c.logger.Debug("cloud unreachable, retrying", zap.String("path", req.path), zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, &Error{Kind: KindUnknown, cause: ctx.Err()}
		case <-time.After(retryInterval):
		}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &Error{Kind: KindUnknown, cause: err}
	}
	if err := classifyStatus(res.StatusCode); err != nil {
		return nil, err
	}

	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		return nil, &Error{Kind: KindBadPayload, StatusCode: res.StatusCode, cause: err}
	}
	return out, nil
}

func classifyStatus(code int) error {
	switch {
	case code == http.StatusOK:
		return nil
	case code == http.StatusUnauthorized:
		return &Error{Kind: KindUnauthorized, StatusCode: code}
	case code == http.StatusForbidden:
		return &Error{Kind: KindForbidden, StatusCode: code}
	case code == http.StatusNotFound:
		return &Error{Kind: KindNotFound, StatusCode: code}
	case code == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, StatusCode: code}
	case code >= 202 && code <= 500:
		return &Error{Kind: KindDataParsing, StatusCode: code}
	default:
		return &Error{Kind: KindAPIFailure, StatusCode: code}
	}
}

// classifyTransport returns a terminal error for timeouts, nil for transport
// failures worth retrying.
func classifyTransport(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: KindTimeout, cause: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, cause: err}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return nil // dial/route failure: wait for connectivity
	}
	return &Error{Kind: KindUnknown, cause: err}
}
