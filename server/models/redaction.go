package models

import (
	"time"

	"github.com/Danvdl/SecureStudio/server/engine"
	"github.com/Danvdl/SecureStudio/server/render"
)

type FrameRequest struct {
	ImageData []byte `json:"image_data"`
	Timestamp int64  `json:"timestamp"`
	ClientID  string `json:"client_id"`
}

// RedactionResult is the per-frame response returned to clients. Frame
// carries the redacted image re-encoded as a base64 data URL; Debug is
// only populated when the client asked for the annotated overlay.
type RedactionResult struct {
	Frame          string          `json:"frame"`
	Debug          string          `json:"debug,omitempty"`
	Tracks         []TrackSnapshot `json:"tracks"`
	Cycle          string          `json:"cycle"`
	ProcessingTime float64         `json:"processing_time_ms"`
	Timestamp      int64           `json:"timestamp"`
}

type TrackSnapshot struct {
	Key      string      `json:"key"`
	Kind     string      `json:"kind"`
	Label    string      `json:"label"`
	Box      BoxSnapshot `json:"box"`
	Velocity [4]float64  `json:"velocity"`
	LastSeen int64       `json:"last_seen_ms"`
}

type BoxSnapshot struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

func SnapshotTracks(tracks []engine.TrackState) []TrackSnapshot {
	out := make([]TrackSnapshot, 0, len(tracks))
	for _, t := range tracks {
		out = append(out, TrackSnapshot{
			Key:   t.Key.String(),
			Kind:  t.Key.Kind.String(),
			Label: t.Label,
			Box: BoxSnapshot{
				X1: t.Box.X1,
				Y1: t.Box.Y1,
				X2: t.Box.X2,
				Y2: t.Box.Y2,
			},
			Velocity: t.Velocity,
			LastSeen: t.LastSeen.UnixMilli(),
		})
	}
	return out
}

// ConfigUpdate is a partial engine configuration; nil fields keep the
// current value. PersistenceMs is expressed in milliseconds so clients
// do not have to deal with Go duration encoding.
type ConfigUpdate struct {
	SmoothFactor           *float64 `json:"smooth_factor,omitempty"`
	PersistenceMs          *int64   `json:"persistence_ms,omitempty"`
	IoUMatchThreshold      *float64 `json:"iou_match_threshold,omitempty"`
	DetectionInterval      *int     `json:"detection_interval,omitempty"`
	PaddingRatio           *float64 `json:"padding_ratio,omitempty"`
	BlurStyle              *string  `json:"blur_style,omitempty"`
	FastMotionThreshold    *float64 `json:"fast_motion_threshold,omitempty"`
	FastMotionSmoothDelta  *float64 `json:"fast_motion_smooth_delta,omitempty"`
	MinSmoothFactor        *float64 `json:"min_smooth_factor,omitempty"`
	SizeStabilityThreshold *float64 `json:"size_stability_threshold,omitempty"`
}

// Apply overlays the update onto an existing configuration. The result
// still has to pass engine validation before it is installed.
func (u *ConfigUpdate) Apply(cfg engine.Config) engine.Config {
	if u.SmoothFactor != nil {
		cfg.SmoothFactor = *u.SmoothFactor
	}
	if u.PersistenceMs != nil {
		cfg.PersistenceDuration = time.Duration(*u.PersistenceMs) * time.Millisecond
	}
	if u.IoUMatchThreshold != nil {
		cfg.IoUMatchThreshold = *u.IoUMatchThreshold
	}
	if u.DetectionInterval != nil {
		cfg.DetectionInterval = *u.DetectionInterval
	}
	if u.PaddingRatio != nil {
		cfg.PaddingRatio = *u.PaddingRatio
	}
	if u.BlurStyle != nil {
		cfg.BlurStyle = render.Style(*u.BlurStyle)
	}
	if u.FastMotionThreshold != nil {
		cfg.FastMotionThreshold = *u.FastMotionThreshold
	}
	if u.FastMotionSmoothDelta != nil {
		cfg.FastMotionSmoothDelta = *u.FastMotionSmoothDelta
	}
	if u.MinSmoothFactor != nil {
		cfg.MinSmoothFactor = *u.MinSmoothFactor
	}
	if u.SizeStabilityThreshold != nil {
		cfg.SizeStabilityThreshold = *u.SizeStabilityThreshold
	}
	return cfg
}
