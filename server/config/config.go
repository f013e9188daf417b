package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Danvdl/SecureStudio/server/engine"
	"github.com/Danvdl/SecureStudio/server/render"
	"go.uber.org/zap"
)

type Config struct {
	Server   ServerConfig   `json:"server"`
	Detector DetectorConfig `json:"detector"`
	Tracking TrackingConfig `json:"tracking"`
	Cache    CacheConfig    `json:"cache"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

type ServerConfig struct {
	Host         string        `json:"host"`
	Port         int           `json:"port"`
	ReadTimeout  time.Duration `json:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout"`
	Environment  string        `json:"environment"`
	QueueSize    int           `json:"queue_size"`
	FrameTimeout time.Duration `json:"frame_timeout"`
}

type DetectorConfig struct {
	BaseURL             string        `json:"base_url"`
	Timeout             time.Duration `json:"timeout"`
	MaxRetries          int           `json:"max_retries"`
	RetryDelay          time.Duration `json:"retry_delay"`
	HealthCheckInterval time.Duration `json:"health_check_interval"`
	ConfidenceThreshold float64       `json:"confidence_threshold"`
}

// TrackingConfig carries the per-cycle tunables for the consolidation
// engine. Values map 1:1 onto engine.Config; see EngineConfig.
type TrackingConfig struct {
	SmoothFactor           float64       `json:"smooth_factor"`
	PersistenceDuration    time.Duration `json:"persistence_duration"`
	IoUMatchThreshold      float64       `json:"iou_match_threshold"`
	DetectionInterval      int           `json:"detection_interval"`
	PaddingRatio           float64       `json:"padding_ratio"`
	BlurStyle              string        `json:"blur_style"`
	FastMotionThreshold    float64       `json:"fast_motion_threshold"`
	FastMotionSmoothDelta  float64       `json:"fast_motion_smooth_delta"`
	MinSmoothFactor        float64       `json:"min_smooth_factor"`
	SizeStabilityThreshold float64       `json:"size_stability_threshold"`
}

type CacheConfig struct {
	MaxSize int           `json:"max_size"`
	TTL     time.Duration `json:"ttl"`
}

type SecurityConfig struct {
	AllowedOrigins []string      `json:"allowed_origins"`
	RateLimitRPS   int           `json:"rate_limit_rps"`
	RateLimitBurst int           `json:"rate_limit_burst"`
	MaxRequestSize int64         `json:"max_request_size"`
	RequestTimeout time.Duration `json:"request_timeout"`
	AdminToken     string        `json:"admin_token"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

func LoadConfig() *Config {
	defaults := engine.DefaultConfig()

	config := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvAsInt("SERVER_PORT", 8080),
			ReadTimeout:  getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout: getEnvAsDuration("SERVER_WRITE_TIMEOUT", 15*time.Second),
			IdleTimeout:  getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			Environment:  getEnv("ENVIRONMENT", "development"),
			QueueSize:    getEnvAsInt("FRAME_QUEUE_SIZE", 8),
			FrameTimeout: getEnvAsDuration("FRAME_TIMEOUT", 5*time.Second),
		},
		Detector: DetectorConfig{
			BaseURL:             getEnv("DETECTOR_BASE_URL", "http://localhost:5000"),
			Timeout:             getEnvAsDuration("DETECTOR_TIMEOUT", 2*time.Second),
			MaxRetries:          getEnvAsInt("DETECTOR_MAX_RETRIES", 1),
			RetryDelay:          getEnvAsDuration("DETECTOR_RETRY_DELAY", 100*time.Millisecond),
			HealthCheckInterval: getEnvAsDuration("DETECTOR_HEALTH_CHECK_INTERVAL", 30*time.Second),
			ConfidenceThreshold: getEnvAsFloat("DETECTOR_CONFIDENCE_THRESHOLD", 0.3),
		},
		Tracking: TrackingConfig{
			SmoothFactor:           getEnvAsFloat("TRACK_SMOOTH_FACTOR", defaults.SmoothFactor),
			PersistenceDuration:    getEnvAsDuration("TRACK_PERSISTENCE_DURATION", defaults.PersistenceDuration),
			IoUMatchThreshold:      getEnvAsFloat("TRACK_IOU_MATCH_THRESHOLD", defaults.IoUMatchThreshold),
			DetectionInterval:      getEnvAsInt("TRACK_DETECTION_INTERVAL", defaults.DetectionInterval),
			PaddingRatio:           getEnvAsFloat("REDACT_PADDING_RATIO", defaults.PaddingRatio),
			BlurStyle:              getEnv("REDACT_BLUR_STYLE", string(defaults.BlurStyle)),
			FastMotionThreshold:    getEnvAsFloat("TRACK_FAST_MOTION_THRESHOLD", defaults.FastMotionThreshold),
			FastMotionSmoothDelta:  getEnvAsFloat("TRACK_FAST_MOTION_SMOOTH_DELTA", defaults.FastMotionSmoothDelta),
			MinSmoothFactor:        getEnvAsFloat("TRACK_MIN_SMOOTH_FACTOR", defaults.MinSmoothFactor),
			SizeStabilityThreshold: getEnvAsFloat("TRACK_SIZE_STABILITY_THRESHOLD", defaults.SizeStabilityThreshold),
		},
		Cache: CacheConfig{
			MaxSize: getEnvAsInt("CACHE_MAX_SIZE", 1000),
			TTL:     getEnvAsDuration("CACHE_TTL", 5*time.Minute),
		},
		Security: SecurityConfig{
			AllowedOrigins: getEnvAsStringSlice("ALLOWED_ORIGINS", []string{"*"}),
			RateLimitRPS:   getEnvAsInt("RATE_LIMIT_RPS", 100),
			RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 200),
			MaxRequestSize: getEnvAsInt64("MAX_REQUEST_SIZE", 10*1024*1024), // 10MB
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 30*time.Second),
			AdminToken:     getEnv("ADMIN_TOKEN", ""),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config
}

// EngineConfig builds the engine configuration from the tracking section.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		SmoothFactor:           c.Tracking.SmoothFactor,
		PersistenceDuration:    c.Tracking.PersistenceDuration,
		IoUMatchThreshold:      c.Tracking.IoUMatchThreshold,
		DetectionInterval:      c.Tracking.DetectionInterval,
		PaddingRatio:           c.Tracking.PaddingRatio,
		BlurStyle:              render.Style(c.Tracking.BlurStyle),
		FastMotionThreshold:    c.Tracking.FastMotionThreshold,
		FastMotionSmoothDelta:  c.Tracking.FastMotionSmoothDelta,
		MinSmoothFactor:        c.Tracking.MinSmoothFactor,
		SizeStabilityThreshold: c.Tracking.SizeStabilityThreshold,
	}
}

func (c *Config) ValidateConfig(logger *zap.Logger) error {
	var errors []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errors = append(errors, "server port must be between 1 and 65535")
	}

	if c.Server.QueueSize < 1 {
		errors = append(errors, "frame queue size must be positive")
	}

	if c.Detector.BaseURL == "" {
		errors = append(errors, "detector base URL is required")
	}

	if c.Detector.ConfidenceThreshold < 0 || c.Detector.ConfidenceThreshold > 1 {
		errors = append(errors, "detector confidence threshold must be in [0, 1]")
	}

	if err := c.EngineConfig().Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	if c.Cache.MaxSize < 1 {
		errors = append(errors, "cache max size must be positive")
	}

	if c.Security.MaxRequestSize <= 0 {
		errors = append(errors, "max request size must be positive")
	}

	if c.Security.AdminToken == "" {
		logger.Warn("Admin token not set, admin endpoints disabled")
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, ", "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvAsStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}
