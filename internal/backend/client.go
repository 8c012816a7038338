// Package backend is the client for the product backend's device and
// health-data endpoints. The request/response contracts are fixed by the
// backend; this client only validates payloads and moves JSON.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/xevox/wearlink/internal/classify"
	"github.com/xevox/wearlink/internal/telemetry"
)

// Client talks to the product backend over JSON/HTTP with bearer-token
// auth. All methods are safe for concurrent use.
type Client struct {
	baseURL    string
	authToken  string
	userID     string
	httpClient *http.Client
	logger     *logrus.Logger
}

// Options configures a backend client.
type Options struct {
	BaseURL        string
	AuthToken      string
	UserID         string
	RequestTimeout time.Duration
}

// NewClient creates a backend client.
func NewClient(opts Options, logger *logrus.Logger) *Client {
	if logger == nil {
		logger = logrus.New()
	}
	timeout := opts.RequestTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:   opts.BaseURL,
		authToken: opts.AuthToken,
		userID:    opts.UserID,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

// DeviceRegistration is the device registration request body.
type DeviceRegistration struct {
	DeviceName    string `json:"device_name"`
	DeviceAddress string `json:"device_address"`
	DeviceType    string `json:"device_type"`
	Manufacturer  string `json:"manufacturer"`
	IsRealDevice  bool   `json:"is_real_device"`
	ValidatedAt   string `json:"validated_at"`
}

// TelemetryUpload is the health-data sync request body.
type TelemetryUpload struct {
	UploadID       string             `json:"upload_id"`
	UserID         string             `json:"user_id"`
	DeviceType     string             `json:"device_type"`
	DeviceID       string             `json:"device_id"`
	Timestamp      string             `json:"timestamp"`
	Data           map[string]float64 `json:"data"`
	SourceIsDevice bool               `json:"source_is_device"`
}

// RegisterDevice announces a newly connected device to the backend. The
// payload is validated locally first; the backend rejects devices outside
// the supported families anyway, failing early gives a clearer error.
func (c *Client) RegisterDevice(ctx context.Context, dev *classify.ClassifiedDevice) error {
	if err := validateDevice(dev); err != nil {
		return fmt.Errorf("register device: %w", err)
	}

	reg := DeviceRegistration{
		DeviceName:    dev.Name,
		DeviceAddress: dev.Address,
		DeviceType:    dev.DeviceType,
		Manufacturer:  dev.Manufacturer,
		IsRealDevice:  true,
		ValidatedAt:   time.Now().UTC().Format(time.RFC3339),
	}

	if err := c.post(ctx, "/api/connect-smartwatch", reg, nil); err != nil {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"device": dev.Name,
		"type":   dev.DeviceType,
	}).Info("Device registered with backend")
	return nil
}

// UnregisterDevice tells the backend the device was disconnected.
func (c *Client) UnregisterDevice(ctx context.Context) error {
	return c.post(ctx, "/api/disconnect-smartwatch", struct{}{}, nil)
}

// UploadTelemetry forwards one sample. Failures are non-fatal to the
// sampling loop; the caller logs and carries on with the next tick.
func (c *Client) UploadTelemetry(ctx context.Context, sample *telemetry.Sample) error {
	if sample == nil || len(sample.Metrics) == 0 {
		return fmt.Errorf("upload telemetry: empty sample")
	}
	if !classify.KnownDeviceType(sample.DeviceType) {
		return fmt.Errorf("upload telemetry: unknown device type %q", sample.DeviceType)
	}

	upload := TelemetryUpload{
		UploadID:       uuid.NewString(),
		UserID:         c.userID,
		DeviceType:     sample.DeviceType,
		DeviceID:       sample.DeviceID,
		Timestamp:      sample.Timestamp.UTC().Format(time.RFC3339),
		Data:           sample.Metrics,
		SourceIsDevice: sample.SourceIsDevice,
	}

	return c.post(ctx, "/api/sync-health-data", upload, nil)
}

// DefaultTimeframe is the health-data window the backend assumes when the
// caller passes none.
const DefaultTimeframe = "day"

// GetHealthData reads stored health samples back from the backend for the
// given timeframe ("day", "week", ...). An empty timeframe uses
// DefaultTimeframe.
func (c *Client) GetHealthData(ctx context.Context, timeframe string) (map[string]any, error) {
	if timeframe == "" {
		timeframe = DefaultTimeframe
	}

	var out map[string]any
	if err := c.get(ctx, "/api/get-health-data?timeframe="+url.QueryEscape(timeframe), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ChatReply is the assistant's response to one chat message.
type ChatReply struct {
	Success           bool   `json:"success"`
	UserMessage       string `json:"user_message"`
	AssistantResponse string `json:"assistant_response"`
	HealthContextUsed bool   `json:"health_context_used"`
}

// SendChatMessage proxies one message to the backend health assistant. The
// endpoint takes a multipart form, not JSON.
func (c *Client) SendChatMessage(ctx context.Context, message string) (*ChatReply, error) {
	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	if err := form.WriteField("message", message); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var reply ChatReply
	if err := c.do(req, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Recommendations is the health-recommendations response body.
type Recommendations struct {
	Recommendations string `json:"recommendations"`
}

// GetRecommendations reads current health recommendations.
func (c *Client) GetRecommendations(ctx context.Context) (*Recommendations, error) {
	var out Recommendations
	if err := c.get(ctx, "/api/get-recommendations", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// validateDevice mirrors the checks the backend applies to registration
// payloads: a non-empty name, a plausible address, a known device family.
func validateDevice(dev *classify.ClassifiedDevice) error {
	if dev == nil {
		return fmt.Errorf("device is nil")
	}
	if dev.Name == "" {
		return fmt.Errorf("device name is required")
	}
	if len(dev.Address) < 6 {
		return fmt.Errorf("device address %q is too short", dev.Address)
	}
	if !classify.KnownDeviceType(dev.DeviceType) {
		return fmt.Errorf("device type %q is not supported", dev.DeviceType)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: backend returned %d: %s",
			req.Method, req.URL.Path, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
