// Package detector talks to the external inference service. The engine
// consumes it as a black box that returns detections per frame; model
// loading, inference and any input/output rescaling live on the other side
// of this API.
package detector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Danvdl/SecureStudio/server/engine"
	"github.com/Danvdl/SecureStudio/server/geometry"
)

// Detector is what the processing loop depends on; Client is the production
// implementation, tests substitute fakes.
type Detector interface {
	Detect(ctx context.Context, frame []byte, timestamp int64) ([]engine.Detection, error)
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
	config     *ClientConfig
	stopCh     chan struct{}
}

type ClientConfig struct {
	Timeout             time.Duration
	MaxRetries          int
	RetryDelay          time.Duration
	HealthCheckInterval time.Duration
	ConfidenceThreshold float64
}

func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		Timeout:             2 * time.Second,
		MaxRetries:          1,
		RetryDelay:          100 * time.Millisecond,
		HealthCheckInterval: 30 * time.Second,
		ConfidenceThreshold: 0.3,
	}
}

type detectRequest struct {
	ImageData  []byte  `json:"image_data"`
	Timestamp  int64   `json:"timestamp"`
	Confidence float64 `json:"confidence_threshold"`
}

type wireDetection struct {
	Box        wireBox `json:"box"`
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	TrackID    *int64  `json:"track_id,omitempty"`
}

type wireBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

type detectResponse struct {
	Detections     []wireDetection `json:"detections"`
	ModelVersion   string          `json:"model_version"`
	ProcessingTime float64         `json:"processing_time"`
}

func NewClient(baseURL string, config *ClientConfig, logger *zap.Logger) *Client {
	if config == nil {
		config = DefaultClientConfig()
	}

	client := &Client{
		baseURL: baseURL,
		logger:  logger,
		config:  config,
		stopCh:  make(chan struct{}),
		httpClient: &http.Client{
			Timeout: config.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:       10,
				IdleConnTimeout:    30 * time.Second,
				DisableCompression: true,
			},
		},
	}

	if err := client.HealthCheck(); err != nil {
		logger.Warn("detector service not available at startup", zap.Error(err))
	}

	go client.healthChecker()

	return client
}

// Detect sends one frame to the inference service and returns its detections
// in output-frame coordinates. An empty result is not an error; a transport
// or service failure is, and the caller treats it as "no detections this
// cycle" without clearing tracks.
func (c *Client) Detect(ctx context.Context, frame []byte, timestamp int64) ([]engine.Detection, error) {
	request := &detectRequest{
		ImageData:  frame,
		Timestamp:  timestamp,
		Confidence: c.config.ConfidenceThreshold,
	}

	var lastErr error
	for attempt := 0; attempt <= c.config.MaxRetries; attempt++ {
		if attempt > 0 {
			c.logger.Warn("retrying detector request",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))
			select {
			case <-time.After(c.config.RetryDelay * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		result, err := c.executeDetect(ctx, request)
		if err == nil {
			return result, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("detection failed after %d attempts: %w", c.config.MaxRetries+1, lastErr)
}

func (c *Client) executeDetect(ctx context.Context, request *detectRequest) ([]engine.Detection, error) {
	requestData, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/detect", c.baseURL)
	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(requestData))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpRequest.Header.Set("Content-Type", "application/json")
	httpRequest.Header.Set("User-Agent", "securestudio/1.0")

	response, err := c.httpClient.Do(httpRequest)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(response.Body)
		return nil, fmt.Errorf("detector service error (status %d): %s",
			response.StatusCode, string(bodyBytes))
	}

	var wire detectResponse
	if err := json.NewDecoder(response.Body).Decode(&wire); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return convertDetections(wire.Detections), nil
}

func convertDetections(wire []wireDetection) []engine.Detection {
	out := make([]engine.Detection, 0, len(wire))
	for _, d := range wire {
		out = append(out, engine.Detection{
			Box:     geometry.NewBox(d.Box.X1, d.Box.Y1, d.Box.X2, d.Box.Y2),
			Label:   d.Label,
			TrackID: d.TrackID,
		})
	}
	return out
}

func (c *Client) HealthCheck() error {
	url := fmt.Sprintf("%s/health", c.baseURL)

	response, err := c.httpClient.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return fmt.Errorf("detector service unhealthy (status %d)", response.StatusCode)
	}

	return nil
}

func (c *Client) healthChecker() {
	ticker := time.NewTicker(c.config.HealthCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := c.HealthCheck(); err != nil {
				c.logger.Error("detector health check failed", zap.Error(err))
			} else {
				c.logger.Debug("detector health check passed")
			}
		case <-c.stopCh:
			return
		}
	}
}

// Close stops the background health checker.
func (c *Client) Close() {
	close(c.stopCh)
}
