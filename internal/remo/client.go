package remo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/oshokin/remo-automation/internal/config"
	"github.com/oshokin/remo-automation/internal/domain/automation"
	"github.com/oshokin/remo-automation/internal/logger"
	"github.com/oshokin/remo-automation/internal/version"
)

// maxErrorBody caps how much of an error response is kept.
const maxErrorBody = 4 << 10

// Light button values.
const (
	buttonOn  = "on"
	buttonOff = "off"
)

// Device is an entry of the GET /devices response.
type Device struct {
	// ID is the vendor device identifier.
	ID string `json:"id"`
	// Name is the user-facing device name.
	Name string `json:"name"`
	// FirmwareVersion is reported by the device.
	FirmwareVersion string `json:"firmware_version,omitempty"`
}

// Client calls the Nature Remo API.
type Client struct {
	// baseURL is the API root every path is resolved against.
	baseURL *url.URL
	// token is the bearer token sent with every request.
	token string
	// httpClient performs the requests.
	httpClient *http.Client
	// callTimeout is the default timeout for individual calls.
	callTimeout time.Duration
	// log receives one entry per call.
	log *zap.SugaredLogger
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for API calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithLogger sets the logger used for call logging.
func WithLogger(l *zap.SugaredLogger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// NewClient builds a client for the API rooted at baseURL.
func NewClient(baseURL, token string, opts ...Option) (*Client, error) {
	if token == "" {
		return nil, errTokenRequired
	}

	if baseURL == "" {
		return nil, errBaseURLRequired
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}

	client := &Client{
		baseURL:     parsed,
		token:       token,
		httpClient:  http.DefaultClient,
		callTimeout: config.DefaultTimeout,
		log:         logger.NewNop(),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Devices lists the devices visible to the token.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	var devices []Device
	if err := c.getJSON(ctx, "devices", &devices); err != nil {
		return nil, err
	}

	return devices, nil
}

// SensorReading fetches the current sensor values of a device.
func (c *Client) SensorReading(ctx context.Context, deviceID string) (automation.SensorReading, error) {
	if deviceID == "" {
		return nil, ErrIDRequired
	}

	path := "devices/" + url.PathEscape(deviceID) + "/sensor_values"

	var raw map[string]json.RawMessage
	if err := c.getJSON(ctx, path, &raw); err != nil {
		return nil, err
	}

	return decodeSensorValues(raw), nil
}

// SetAircon pushes aircon settings. Params must carry mode, temp and fan.
func (c *Client) SetAircon(ctx context.Context, applianceID string, params map[string]string) error {
	if applianceID == "" {
		return ErrIDRequired
	}

	var missing []string

	for _, key := range []string{automation.ParamMode, automation.ParamTemp, automation.ParamFan} {
		if params[key] == "" {
			missing = append(missing, key)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidParams, strings.Join(missing, ", "))
	}

	form := make(url.Values, len(params))
	for key, value := range params {
		form.Set(key, value)
	}

	return c.postForm(ctx, "appliances/"+url.PathEscape(applianceID)+"/aircon_settings", form)
}

// SetLight switches a light appliance on or off.
func (c *Client) SetLight(ctx context.Context, applianceID string, on bool) error {
	if applianceID == "" {
		return ErrIDRequired
	}

	button := buttonOff
	if on {
		button = buttonOn
	}

	return c.postForm(ctx, "appliances/"+url.PathEscape(applianceID)+"/light", url.Values{"button": {button}})
}

// getJSON performs an authenticated GET and decodes the JSON body into out.
func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}

	if err = json.Unmarshal(body, out); err != nil {
		apiErr := &APIError{
			Method:     http.MethodGet,
			Path:       path,
			StatusCode: http.StatusOK,
			Body:       truncate(body),
			Err:        fmt.Errorf("decode response: %w", err),
		}

		c.log.Errorw("Remo API response decoding failed", "method", http.MethodGet, "path", path, "error", err)

		return apiErr
	}

	return nil
}

// postForm performs an authenticated form-encoded POST.
func (c *Client) postForm(ctx context.Context, path string, form url.Values) error {
	_, err := c.do(ctx, http.MethodPost, path, form)

	return err
}

// do sends the request, logs the outcome and maps failures to *APIError.
func (c *Client) do(ctx context.Context, method, path string, form url.Values) ([]byte, error) {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	var payload io.Reader
	if form != nil {
		payload = strings.NewReader(form.Encode())
	}

	endpoint := c.baseURL.JoinPath(path).String()

	req, err := http.NewRequestWithContext(callCtx, method, endpoint, payload)
	if err != nil {
		return nil, &APIError{Method: method, Path: path, Err: err}
	}

	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", version.UserAgent())

	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	started := time.Now()

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.Errorw("Remo API call failed", "method", method, "path", path, "params", form, "error", err)

		return nil, &APIError{Method: method, Path: path, Err: err}
	}

	defer func() {
		_ = resp.Body.Close()
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		c.log.Errorw("Remo API read failed", "method", method, "path", path, "status", resp.StatusCode, "error", err)

		return nil, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		c.log.Errorw("Remo API call rejected",
			"method", method,
			"path", path,
			"params", form,
			"status", resp.StatusCode,
			"body", truncate(body),
		)

		return nil, &APIError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: truncate(body)}
	}

	c.log.Debugw("Remo API call succeeded",
		"method", method,
		"path", path,
		"params", form,
		"status", resp.StatusCode,
		"elapsed", time.Since(started),
	)

	return body, nil
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}

// truncate keeps error bodies readable in logs.
func truncate(body []byte) string {
	if len(body) <= maxErrorBody {
		return string(body)
	}

	return string(body[:maxErrorBody]) + "..."
}

// IsAPIError reports whether err is an *APIError and returns it.
func IsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}

	return nil, false
}
