package cache

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/Danvdl/SecureStudio/server/engine"
)

type MemoryCache struct {
	items   map[string]*cacheItem
	mutex   sync.RWMutex
	maxSize int
	ttl     time.Duration
	logger  *zap.Logger
	cleanup *time.Ticker
	stopCh  chan struct{}
	hits    int64
	misses  int64
}

type cacheItem struct {
	detections []engine.Detection
	expiresAt  time.Time
	lastUsed   time.Time
}

func NewMemoryCache(maxSize int, ttl time.Duration, logger *zap.Logger) *MemoryCache {
	cache := &MemoryCache{
		items:   make(map[string]*cacheItem),
		maxSize: maxSize,
		ttl:     ttl,
		logger:  logger,
		stopCh:  make(chan struct{}),
	}

	cache.cleanup = time.NewTicker(1 * time.Minute)
	go cache.cleanupExpired()

	return cache
}

func (c *MemoryCache) Get(ctx context.Context, key string) ([]engine.Detection, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	item, exists := c.items[key]
	if !exists || time.Now().After(item.expiresAt) {
		if exists {
			delete(c.items, key)
		}
		c.misses++
		return nil, ErrCacheMiss
	}

	item.lastUsed = time.Now()
	c.hits++

	dets := make([]engine.Detection, len(item.detections))
	copy(dets, item.detections)
	return dets, nil
}

func (c *MemoryCache) Set(ctx context.Context, key string, dets []engine.Detection) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if len(c.items) >= c.maxSize {
		c.evictLRU()
	}

	stored := make([]engine.Detection, len(dets))
	copy(stored, dets)

	c.items[key] = &cacheItem{
		detections: stored,
		expiresAt:  time.Now().Add(c.ttl),
		lastUsed:   time.Now(),
	}

	return nil
}

func (c *MemoryCache) GetStats(ctx context.Context) (*Stats, error) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return &Stats{
		Items:  len(c.items),
		Hits:   c.hits,
		Misses: c.misses,
	}, nil
}

func (c *MemoryCache) Close() error {
	if c.cleanup != nil {
		c.cleanup.Stop()
	}
	close(c.stopCh)
	return nil
}

func (c *MemoryCache) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for key, item := range c.items {
		if oldestKey == "" || item.lastUsed.Before(oldestTime) {
			oldestKey = key
			oldestTime = item.lastUsed
		}
	}

	if oldestKey != "" {
		delete(c.items, oldestKey)
	}
}

func (c *MemoryCache) cleanupExpired() {
	for {
		select {
		case <-c.cleanup.C:
			c.mutex.Lock()
			now := time.Now()
			for key, item := range c.items {
				if now.After(item.expiresAt) {
					delete(c.items, key)
				}
			}
			c.mutex.Unlock()
		case <-c.stopCh:
			return
		}
	}
}
