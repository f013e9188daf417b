package detector

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testClient(t *testing.T, url string) *Client {
	t.Helper()
	cfg := DefaultClientConfig()
	cfg.MaxRetries = 0
	cfg.RetryDelay = time.Millisecond
	c := NewClient(url, cfg, zap.NewNop())
	t.Cleanup(c.Close)
	return c
}

func TestDetect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/detect":
			var req detectRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, []byte("jpegdata"), req.ImageData)

			id := int64(12)
			json.NewEncoder(w).Encode(detectResponse{
				Detections: []wireDetection{
					{
						Box:        wireBox{X1: 100, Y1: 100, X2: 200, Y2: 200},
						Label:      "cell phone",
						Confidence: 0.87,
						TrackID:    &id,
					},
					{
						Box:        wireBox{X1: 300, Y1: 50, X2: 360, Y2: 120},
						Label:      "credit card",
						Confidence: 0.55,
					},
				},
				ModelVersion: "yolov8s-worldv2",
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	dets, err := c.Detect(context.Background(), []byte("jpegdata"), 1234)
	require.NoError(t, err)
	require.Len(t, dets, 2)

	assert.Equal(t, "cell phone", dets[0].Label)
	require.NotNil(t, dets[0].TrackID)
	assert.Equal(t, int64(12), *dets[0].TrackID)
	assert.Equal(t, 100.0, dets[0].Box.X1)

	assert.Equal(t, "credit card", dets[1].Label)
	assert.Nil(t, dets[1].TrackID)
}

func TestDetectEmptyResultIsNotAnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(detectResponse{})
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	dets, err := c.Detect(context.Background(), []byte("frame"), 0)
	require.NoError(t, err)
	assert.Empty(t, dets)
}

func TestDetectServiceError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/detect" {
			http.Error(w, "model not loaded", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := testClient(t, srv.URL)
	_, err := c.Detect(context.Background(), []byte("frame"), 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
}

func TestDetectRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/detect" {
			w.WriteHeader(http.StatusOK)
			return
		}
		if calls.Add(1) == 1 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(detectResponse{
			Detections: []wireDetection{{Box: wireBox{X1: 0, Y1: 0, X2: 10, Y2: 10}, Label: "face"}},
		})
	}))
	defer srv.Close()

	cfg := DefaultClientConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = time.Millisecond
	c := NewClient(srv.URL, cfg, zap.NewNop())
	defer c.Close()

	dets, err := c.Detect(context.Background(), []byte("frame"), 0)
	require.NoError(t, err)
	require.Len(t, dets, 1)
	assert.Equal(t, int32(2), calls.Load())
}

func TestHealthCheck(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer healthy.Close()
	assert.NoError(t, testClient(t, healthy.URL).HealthCheck())

	unhealthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer unhealthy.Close()
	assert.Error(t, testClient(t, unhealthy.URL).HealthCheck())
}
