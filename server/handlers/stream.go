package handlers

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/Danvdl/SecureStudio/server/models"
	"github.com/Danvdl/SecureStudio/server/pipeline"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// HealthChecker reports whether the upstream detector is reachable.
type HealthChecker interface {
	HealthCheck() error
}

type StreamHandler struct {
	processor *pipeline.Processor
	health    HealthChecker
	logger    *zap.Logger
	stats     *SystemStats
	mutex     sync.Mutex
}

type SystemStats struct {
	TotalFrames    int64     `json:"total_frames"`
	ProcessedOK    int64     `json:"processed_ok"`
	ProcessedError int64     `json:"processed_error"`
	AvgProcessTime float64   `json:"avg_process_time_ms"`
	LastUpdated    time.Time `json:"last_updated"`
}

type FrameUploadRequest struct {
	ImageData string `json:"image_data" binding:"required"`
	Timestamp int64  `json:"timestamp"`
	Debug     bool   `json:"debug"`
}

func NewStreamHandler(processor *pipeline.Processor, health HealthChecker, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		processor: processor,
		health:    health,
		logger:    logger,
		stats: &SystemStats{
			LastUpdated: time.Now(),
		},
	}
}

func (h *StreamHandler) ProcessFrame(c *gin.Context) {
	startTime := time.Now()

	var request FrameUploadRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request format"})
		h.recordError()
		return
	}

	imageData, err := extractImageData(request.ImageData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid image data"})
		h.recordError()
		return
	}

	img, err := decodeFrame(imageData)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported frame encoding"})
		h.recordError()
		return
	}

	frame := &pipeline.Frame{
		Image:   img,
		Encoded: imageData,
	}
	if request.Timestamp > 0 {
		frame.Timestamp = time.UnixMilli(request.Timestamp)
	}

	result, err := h.processor.ProcessFrame(c.Request.Context(), frame)
	if err != nil {
		h.logger.Error("frame processing failed",
			zap.Error(err),
			zap.String("client_ip", c.ClientIP()))
		status := http.StatusInternalServerError
		if errors.Is(err, pipeline.ErrQueueFull) {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{"error": "processing failed"})
		h.recordError()
		return
	}

	response, err := buildRedactionResult(result, request.Debug)
	if err != nil {
		h.logger.Error("failed to encode redacted frame", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "encoding failed"})
		h.recordError()
		return
	}

	h.recordSuccess(time.Since(startTime))
	c.JSON(http.StatusOK, response)
}

func (h *StreamHandler) GetStats(c *gin.Context) {
	h.mutex.Lock()
	system := *h.stats
	system.LastUpdated = time.Now()
	h.mutex.Unlock()

	processorStats := h.processor.GetStats()

	var successRate float64
	if system.TotalFrames > 0 {
		successRate = float64(system.ProcessedOK) / float64(system.TotalFrames) * 100
	}

	c.JSON(http.StatusOK, gin.H{
		"system":   system,
		"pipeline": processorStats,
		"metrics": gin.H{
			"success_rate":   successRate,
			"uptime_seconds": time.Since(processorStats.StartTime).Seconds(),
		},
	})
}

func (h *StreamHandler) GetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, h.processor.EngineConfig())
}

func (h *StreamHandler) UpdateConfig(c *gin.Context) {
	var update models.ConfigUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid configuration format"})
		return
	}

	next := update.Apply(h.processor.EngineConfig())
	if err := h.processor.UpdateConfig(next); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.logger.Info("engine config updated", zap.String("client_ip", c.ClientIP()))
	c.JSON(http.StatusOK, next)
}

func (h *StreamHandler) Reset(c *gin.Context) {
	h.processor.Reset()
	c.JSON(http.StatusOK, gin.H{"status": "reset"})
}

func (h *StreamHandler) Health(c *gin.Context) {
	detectorStatus := "ok"
	overall := "healthy"
	status := http.StatusOK

	if h.health != nil {
		if err := h.health.HealthCheck(); err != nil {
			detectorStatus = err.Error()
			overall = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, gin.H{
		"status":    overall,
		"detector":  detectorStatus,
		"timestamp": time.Now().Unix(),
	})
}

func (h *StreamHandler) recordSuccess(duration time.Duration) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.stats.TotalFrames++
	h.stats.ProcessedOK++

	currentTime := float64(duration.Microseconds()) / 1000.0
	if h.stats.AvgProcessTime == 0 {
		h.stats.AvgProcessTime = currentTime
	} else {
		alpha := 0.1
		h.stats.AvgProcessTime = alpha*currentTime + (1-alpha)*h.stats.AvgProcessTime
	}
}

func (h *StreamHandler) recordError() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.stats.TotalFrames++
	h.stats.ProcessedError++
}

func buildRedactionResult(result *pipeline.Result, includeDebug bool) (*models.RedactionResult, error) {
	encoded, err := encodeFrame(result.Output)
	if err != nil {
		return nil, err
	}

	response := &models.RedactionResult{
		Frame:          encoded,
		Tracks:         models.SnapshotTracks(result.Tracks),
		Cycle:          result.Cycle.String(),
		ProcessingTime: float64(result.Elapsed.Microseconds()) / 1000.0,
		Timestamp:      time.Now().UnixMilli(),
	}

	if includeDebug {
		debug, err := encodeFrame(result.Debug)
		if err != nil {
			return nil, err
		}
		response.Debug = debug
	}

	return response, nil
}
