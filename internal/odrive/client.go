// Package odrive talks to the device backend that owns the USB connection
// to the motor controller.
package odrive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

var (
	ErrNotConnected = errors.New("device not connected")
	// ErrDevice wraps an {error} reply of the backend.
	ErrDevice = errors.New("device error")
)

const maxBody = 8 << 20

// DeviceInfo is one scan result.
type DeviceInfo struct {
	Path      string `json:"path"`
	Serial    string `json:"serial"`
	FWVersion string `json:"fw_version,omitempty"`
	HWVersion string `json:"hw_version,omitempty"`
	Index     int    `json:"index"`
}

// Status is the backend's view of the connection.
type Status struct {
	Connected            bool   `json:"connected"`
	ConnectionLost       bool   `json:"connection_lost"`
	DeviceSerial         string `json:"device_serial,omitempty"`
	IsRebooting          bool   `json:"is_rebooting"`
	ReconnectionAttempts int    `json:"reconnection_attempts"`
}

// Client is the HTTP transport to the device backend. Property and command
// calls fail fast with ErrNotConnected while disconnected.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger

	mu        sync.RWMutex
	connected bool
	device    *DeviceInfo
	status    Status
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Device returns the device passed to the last successful Connect.
func (c *Client) Device() *DeviceInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.device == nil {
		return nil
	}
	d := *c.device
	return &d
}

// LastStatus returns the result of the last Status call.
func (c *Client) LastStatus() Status {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// ReadProperty returns the raw reply body for a single device path.
func (c *Client) ReadProperty(ctx context.Context, devicePath string) ([]byte, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	return c.post(ctx, "/api/odrive/property", map[string]any{"path": devicePath})
}

// ReadProperties returns the raw reply body of a batched read. The body may
// contain bare Infinity tokens and is decoded by the caller.
func (c *Client) ReadProperties(ctx context.Context, devicePaths []string) ([]byte, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	return c.post(ctx, "/api/odrive/property", map[string]any{"paths": devicePaths})
}

// ReadCharts reads chart paths through the backend's charts endpoint.
func (c *Client) ReadCharts(ctx context.Context, devicePaths []string) ([]byte, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	return c.post(ctx, "/api/charts/data", map[string]any{"paths": devicePaths})
}

func (c *Client) WriteProperty(ctx context.Context, devicePath string, value any) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	_, err := c.post(ctx, "/api/odrive/set_property", map[string]any{"path": devicePath, "value": value})
	return err
}

// ExecuteCommand runs a command in the device grammar, e.g.
// "odrv0.axis0.requested_state = 8".
func (c *Client) ExecuteCommand(ctx context.Context, command string) (string, error) {
	if !c.IsConnected() {
		return "", ErrNotConnected
	}
	body, err := c.post(ctx, "/api/odrive/command", map[string]any{"command": command})
	if err != nil {
		return "", err
	}

	var reply struct {
		Result any `json:"result"`
	}
	if err := json.Unmarshal(body, &reply); err != nil {
		return "", fmt.Errorf("invalid command reply: %w", err)
	}
	if s, ok := reply.Result.(string); ok {
		return s, nil
	}
	if reply.Result == nil {
		return "", nil
	}
	return fmt.Sprint(reply.Result), nil
}

func (c *Client) Connect(ctx context.Context, device DeviceInfo) error {
	if _, err := c.post(ctx, "/api/odrive/connect", map[string]any{"device": device}); err != nil {
		return fmt.Errorf("connect %s: %w", device.Serial, err)
	}

	c.mu.Lock()
	c.connected = true
	c.device = &device
	c.mu.Unlock()

	c.logger.Info("Device connected",
		zap.String("serial", device.Serial),
		zap.String("path", device.Path))
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	_, err := c.post(ctx, "/api/odrive/disconnect", map[string]any{})

	// local state is dropped either way
	c.mu.Lock()
	c.connected = false
	c.device = nil
	c.mu.Unlock()

	if err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	c.logger.Info("Device disconnected")
	return nil
}

// Status asks the backend for the connection state and updates the local
// connected flag.
func (c *Client) Status(ctx context.Context) (Status, error) {
	body, err := c.get(ctx, "/api/odrive/connection_status")
	if err != nil {
		return Status{}, err
	}

	var st Status
	if err := json.Unmarshal(body, &st); err != nil {
		return Status{}, fmt.Errorf("invalid status reply: %w", err)
	}

	c.mu.Lock()
	c.connected = st.Connected
	c.status = st
	c.mu.Unlock()

	return st, nil
}

func (c *Client) Scan(ctx context.Context) ([]DeviceInfo, error) {
	body, err := c.get(ctx, "/api/odrive/scan")
	if err != nil {
		return nil, err
	}

	var devices []DeviceInfo
	if err := json.Unmarshal(body, &devices); err != nil {
		return nil, fmt.Errorf("invalid scan reply: %w", err)
	}
	return devices, nil
}

func (c *Client) post(ctx context.Context, path string, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	return c.do(req)
}

func (c *Client) do(req *http.Request) ([]byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s failed: %w", req.URL.Path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s reply: %w", req.URL.Path, err)
	}

	if msg := errorMessage(body); msg != "" {
		return nil, fmt.Errorf("%w: %s", ErrDevice, msg)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%s: unexpected status %d", req.URL.Path, resp.StatusCode)
	}
	return body, nil
}

// errorMessage extracts {"error": "..."} from a reply.
func errorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' || !bytes.Contains(trimmed, []byte(`"error"`)) {
		return ""
	}
	var reply struct {
		Error any `json:"error"`
	}
	// bodies with Infinity tokens are not valid JSON, they never carry errors
	if err := json.Unmarshal(trimmed, &reply); err != nil || reply.Error == nil {
		return ""
	}
	if s, ok := reply.Error.(string); ok {
		return s
	}
	return fmt.Sprint(reply.Error)
}
