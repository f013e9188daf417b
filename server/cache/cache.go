// Package cache short-circuits detector calls for byte-identical frames.
// Static scenes (a paused camera, a covered lens) produce long runs of
// identical frames; replaying the cached detections avoids burning inference
// latency on them.
package cache

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"

	"github.com/Danvdl/SecureStudio/server/engine"
)

var ErrCacheMiss = errors.New("cache miss")

// DetectionCache stores detector output keyed by frame content hash.
type DetectionCache interface {
	Get(ctx context.Context, key string) ([]engine.Detection, error)
	Set(ctx context.Context, key string, dets []engine.Detection) error
	GetStats(ctx context.Context) (*Stats, error)
	Close() error
}

type Stats struct {
	Items  int   `json:"items"`
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
}

// FrameKey hashes frame bytes into a cache key.
func FrameKey(frame []byte) string {
	return fmt.Sprintf("%x", md5.Sum(frame))
}
