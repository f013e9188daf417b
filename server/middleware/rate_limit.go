package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// RateLimiter applies a per-client-IP token bucket.
type RateLimiter struct {
	clients map[string]*clientBucket
	mutex   sync.Mutex
	cleanup *time.Ticker
	logger  *zap.Logger
	rps     int
	burst   int
}

type clientBucket struct {
	tokens     float64
	lastUpdate time.Time
}

func NewRateLimiter(rps, burst int, logger *zap.Logger) *RateLimiter {
	rl := &RateLimiter{
		clients: make(map[string]*clientBucket),
		rps:     rps,
		burst:   burst,
		logger:  logger,
	}

	rl.cleanup = time.NewTicker(5 * time.Minute)
	go rl.cleanupExpiredClients()

	return rl
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		if !rl.allowRequest(clientIP) {
			rl.logger.Warn("Rate limit exceeded",
				zap.String("client_ip", clientIP),
				zap.String("path", c.Request.URL.Path))

			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Rate limit exceeded",
				"retry_after": 60,
			})
			c.Abort()
			return
		}

		c.Next()
	}
}

func (rl *RateLimiter) allowRequest(clientIP string) bool {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := time.Now()
	bucket, exists := rl.clients[clientIP]
	if !exists {
		bucket = &clientBucket{
			tokens:     float64(rl.burst),
			lastUpdate: now,
		}
		rl.clients[clientIP] = bucket
	}

	elapsed := now.Sub(bucket.lastUpdate)
	bucket.tokens += elapsed.Seconds() * float64(rl.rps)
	if bucket.tokens > float64(rl.burst) {
		bucket.tokens = float64(rl.burst)
	}
	bucket.lastUpdate = now

	if bucket.tokens >= 1 {
		bucket.tokens--
		return true
	}

	return false
}

func (rl *RateLimiter) ActiveClients() int {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()
	return len(rl.clients)
}

func (rl *RateLimiter) cleanupExpiredClients() {
	for range rl.cleanup.C {
		rl.mutex.Lock()
		now := time.Now()
		for ip, bucket := range rl.clients {
			if now.Sub(bucket.lastUpdate) > 10*time.Minute {
				delete(rl.clients, ip)
			}
		}
		rl.mutex.Unlock()
	}
}

func (rl *RateLimiter) Shutdown() {
	if rl.cleanup != nil {
		rl.cleanup.Stop()
	}
}
