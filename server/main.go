package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Danvdl/SecureStudio/server/cache"
	"github.com/Danvdl/SecureStudio/server/config"
	"github.com/Danvdl/SecureStudio/server/detector"
	"github.com/Danvdl/SecureStudio/server/engine"
	"github.com/Danvdl/SecureStudio/server/handlers"
	"github.com/Danvdl/SecureStudio/server/middleware"
	"github.com/Danvdl/SecureStudio/server/pipeline"
	"github.com/Danvdl/SecureStudio/server/timeutil"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type Server struct {
	router      *gin.Engine
	logger      *zap.Logger
	processor   *pipeline.Processor
	detector    *detector.Client
	cache       cache.DetectionCache
	rateLimiter *middleware.RateLimiter
	config      *config.Config
}

func main() {
	cfg := config.LoadConfig()

	var logger *zap.Logger
	var err error

	if cfg.Logging.Format == "json" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}

	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	if err := cfg.ValidateConfig(logger); err != nil {
		logger.Fatal("Configuration validation failed", zap.Error(err))
	}

	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to create server", zap.Error(err))
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      server.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("Starting server",
			zap.String("addr", addr),
			zap.String("environment", cfg.Server.Environment),
			zap.String("detector", cfg.Detector.BaseURL))

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.processor.Shutdown(); err != nil {
		logger.Error("Failed to shut down pipeline", zap.Error(err))
	}

	server.detector.Close()

	if server.rateLimiter != nil {
		server.rateLimiter.Shutdown()
	}

	if server.cache != nil {
		if err := server.cache.Close(); err != nil {
			logger.Error("Failed to close cache", zap.Error(err))
		}
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func NewServer(cfg *config.Config, logger *zap.Logger) (*Server, error) {
	detectionCache := cache.NewMemoryCache(cfg.Cache.MaxSize, cfg.Cache.TTL, logger)

	detectorClient := detector.NewClient(cfg.Detector.BaseURL, &detector.ClientConfig{
		Timeout:             cfg.Detector.Timeout,
		MaxRetries:          cfg.Detector.MaxRetries,
		RetryDelay:          cfg.Detector.RetryDelay,
		HealthCheckInterval: cfg.Detector.HealthCheckInterval,
		ConfidenceThreshold: cfg.Detector.ConfidenceThreshold,
	}, logger)

	eng, err := engine.New(cfg.EngineConfig(), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	processor := pipeline.NewProcessor(eng, detectorClient, detectionCache, timeutil.RealClock{}, pipeline.Config{
		QueueSize:    cfg.Server.QueueSize,
		FrameTimeout: cfg.Server.FrameTimeout,
	}, logger)

	rateLimiter := middleware.NewRateLimiter(
		cfg.Security.RateLimitRPS,
		cfg.Security.RateLimitBurst,
		logger,
	)

	authMiddleware := middleware.NewAuthMiddleware(cfg.Security.AdminToken, logger)

	router := gin.New()

	router.Use(middleware.RequestLogger(logger))
	router.Use(gin.Recovery())
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.CORS(cfg.Security.AllowedOrigins))
	router.Use(middleware.RequestSizeLimit(cfg.Security.MaxRequestSize))
	router.Use(middleware.TimeoutHandler(cfg.Security.RequestTimeout))

	wsHandler := handlers.NewWebSocketHandler(processor, logger)
	streamHandler := handlers.NewStreamHandler(processor, detectorClient, logger)

	setupRoutes(router, wsHandler, streamHandler, authMiddleware, rateLimiter)

	return &Server{
		router:      router,
		logger:      logger,
		processor:   processor,
		detector:    detectorClient,
		cache:       detectionCache,
		rateLimiter: rateLimiter,
		config:      cfg,
	}, nil
}

func setupRoutes(router *gin.Engine, wsHandler *handlers.WebSocketHandler, streamHandler *handlers.StreamHandler, auth *middleware.AuthMiddleware, rateLimiter *middleware.RateLimiter) {
	router.GET("/health", streamHandler.Health)

	router.GET("/ws", rateLimiter.RateLimit(), wsHandler.HandleWebSocket)

	api := router.Group("/api/v1")
	{
		api.GET("/health", streamHandler.Health)

		protected := api.Group("/")
		protected.Use(rateLimiter.RateLimit())
		protected.Use(middleware.InputValidation())
		{
			protected.POST("/redact-frame", streamHandler.ProcessFrame)
			protected.GET("/stats", streamHandler.GetStats)
			protected.GET("/config", streamHandler.GetConfig)
		}

		admin := api.Group("/admin")
		admin.Use(auth.RequireAuth())
		{
			admin.PUT("/config", streamHandler.UpdateConfig)
			admin.POST("/reset", streamHandler.Reset)
			admin.GET("/stats", streamHandler.GetStats)
		}
	}
}
