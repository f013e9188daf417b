// Package engine turns noisy per-frame detections into temporally stable
// redaction regions: it associates detections with persistent tracks, smooths
// and predicts their motion, expires them, and renders the redaction plus a
// debug overlay onto the frame buffers.
package engine

import (
	"fmt"
	"image"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/Danvdl/SecureStudio/server/render"
)

// Engine is invoked exactly once per captured frame by the processing loop.
// It is single-threaded by design: the loop exclusively owns the track store,
// so no locking happens on the per-frame path. Only SetConfig may be called
// from other goroutines; a replaced config applies from the next cycle.
type Engine struct {
	store  *TrackStore
	cfg    atomic.Pointer[Config]
	logger *zap.Logger
}

func New(cfg Config, logger *zap.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}

	e := &Engine{
		store:  NewTrackStore(),
		logger: logger,
	}
	e.cfg.Store(&cfg)
	return e, nil
}

// Config returns the configuration the next cycle will run with.
func (e *Engine) Config() Config {
	return *e.cfg.Load()
}

// SetConfig atomically replaces the configuration for subsequent cycles.
// An in-flight cycle completes against the configuration it started with.
func (e *Engine) SetConfig(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid engine config: %w", err)
	}
	e.cfg.Store(&cfg)
	e.logger.Info("engine configuration replaced",
		zap.Float64("smooth_factor", cfg.SmoothFactor),
		zap.Duration("persistence", cfg.PersistenceDuration),
		zap.Int("detection_interval", cfg.DetectionInterval),
		zap.String("blur_style", string(cfg.BlurStyle)))
	return nil
}

// Reset clears all tracked state. Called when the processing loop restarts.
func (e *Engine) Reset() {
	e.store = NewTrackStore()
}

// TrackCount reports the number of live tracks.
func (e *Engine) TrackCount() int {
	return e.store.Len()
}

// Snapshot returns copies of the live tracks in deterministic order.
func (e *Engine) Snapshot() []TrackState {
	tracks := e.store.Tracks()
	out := make([]TrackState, len(tracks))
	for i, tr := range tracks {
		out[i] = *tr
	}
	return out
}

// Process runs one cycle. A nil batch is a skip cycle (detector not invoked,
// stable tracks extrapolate); a non-nil batch with no detections means the
// detector ran and saw nothing. Both frame buffers are mutated in place: the
// output frame gets the redactions, the debug frame gets the overlay.
func (e *Engine) Process(now time.Time, batch *Batch, frame, debug *image.RGBA) {
	cfg := *e.cfg.Load()
	bounds := frame.Bounds()

	if batch != nil {
		e.detectCycle(now, batch.Detections, cfg, bounds)
	} else {
		e.predictCycle(now, cfg)
	}

	overlay := render.NewOverlay(debug)
	for _, tr := range e.store.Tracks() {
		rect, ok := render.PaddedRegion(tr.Box, cfg.PaddingRatio, bounds)
		if !ok {
			continue
		}
		render.Redact(frame, rect, cfg.BlurStyle)
		overlay.Mark(rect, tr.Label)
	}
}

// detectCycle matches the batch against the store, applies the motion model
// to every matched track and prunes the rest. The result replaces the store
// in a single commit.
func (e *Engine) detectCycle(now time.Time, dets []Detection, cfg Config, bounds image.Rectangle) {
	dets = sanitize(dets, bounds)

	assignments, unmatched := associate(dets, e.store.tracks, cfg.IoUMatchThreshold, e.store.nextEphemeralKey)

	next := make(map[TrackKey]*TrackState, len(assignments)+len(unmatched))
	for _, a := range assignments {
		if a.prev == nil {
			next[a.key] = newTrack(a.key, a.det, now)
			e.logger.Debug("track created",
				zap.Stringer("key", a.key),
				zap.String("label", a.det.Label))
		} else {
			next[a.key] = updateTrack(a.prev, a.det, cfg, now)
		}
	}

	for key, tr := range unmatched {
		// Ephemeral identities never survive a missed detection cycle;
		// stable ones persist until the window runs out.
		if key.Kind == KeyEphemeral {
			e.logger.Debug("ephemeral track dropped", zap.Stringer("key", key))
			continue
		}
		if now.Sub(tr.LastSeen) > cfg.PersistenceDuration {
			e.logger.Debug("track expired", zap.Stringer("key", key))
			continue
		}
		next[key] = tr
	}

	e.store.commit(next)
}

// predictCycle advances stable tracks along their velocity on frames where
// the detector is not invoked. Ephemeral tracks are carried as-is and
// LastSeen never advances, so the persistence window keeps counting down.
func (e *Engine) predictCycle(now time.Time, cfg Config) {
	next := make(map[TrackKey]*TrackState, e.store.Len())
	for key, tr := range e.store.tracks {
		if now.Sub(tr.LastSeen) > cfg.PersistenceDuration {
			e.logger.Debug("track expired", zap.Stringer("key", key))
			continue
		}
		if key.Kind == KeyStable {
			next[key] = predictTrack(tr)
		} else {
			next[key] = tr
		}
	}
	e.store.commit(next)
}

// sanitize clamps detection boxes to the frame and discards anything still
// degenerate, so malformed detector output never reaches association.
func sanitize(dets []Detection, bounds image.Rectangle) []Detection {
	out := make([]Detection, 0, len(dets))
	for _, det := range dets {
		det.Box = det.Box.Clamp(float64(bounds.Dx()), float64(bounds.Dy()))
		if det.Box.Degenerate() {
			continue
		}
		out = append(out, det)
	}
	return out
}
