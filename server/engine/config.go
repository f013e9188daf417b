package engine

import (
	"fmt"
	"time"

	"github.com/Danvdl/SecureStudio/server/render"
)

// Config holds every engine tunable. The engine never mutates it; replacing
// it via SetConfig takes effect on the next cycle.
type Config struct {
	// SmoothFactor weighs the previous box against the new detection,
	// 0 = no smoothing, values near 1 = heavy smoothing.
	SmoothFactor float64 `json:"smooth_factor"`

	// PersistenceDuration keeps a stable-id track alive after its last
	// confirmed detection.
	PersistenceDuration time.Duration `json:"persistence_duration"`

	// IoUMatchThreshold is the minimum overlap for an unidentified
	// detection to claim an existing track.
	IoUMatchThreshold float64 `json:"iou_match_threshold"`

	// DetectionInterval is the number of frames between detector
	// invocations; intermediate frames extrapolate.
	DetectionInterval int `json:"detection_interval"`

	// PaddingRatio grows each redacted region by this fraction per side.
	PaddingRatio float64 `json:"padding_ratio"`

	BlurStyle render.Style `json:"blur_style"`

	// FastMotionThreshold is the mean per-coordinate speed (pixels per
	// detection cycle) above which smoothing is reduced.
	FastMotionThreshold   float64 `json:"fast_motion_threshold"`
	FastMotionSmoothDelta float64 `json:"fast_motion_smooth_delta"`
	MinSmoothFactor       float64 `json:"min_smooth_factor"`

	// SizeStabilityThreshold is the fractional size change below which the
	// previous box dimensions are kept to suppress sub-pixel breathing.
	SizeStabilityThreshold float64 `json:"size_stability_threshold"`
}

func DefaultConfig() Config {
	return Config{
		SmoothFactor:           0.5,
		PersistenceDuration:    500 * time.Millisecond,
		IoUMatchThreshold:      0.3,
		DetectionInterval:      2,
		PaddingRatio:           0.15,
		BlurStyle:              render.StylePixelate,
		FastMotionThreshold:    20,
		FastMotionSmoothDelta:  0.3,
		MinSmoothFactor:        0.1,
		SizeStabilityThreshold: 0.05,
	}
}

func (c Config) Validate() error {
	if c.SmoothFactor < 0 || c.SmoothFactor > 1 {
		return fmt.Errorf("smooth factor must be in [0,1], got %v", c.SmoothFactor)
	}
	if c.PersistenceDuration < 0 {
		return fmt.Errorf("persistence duration must not be negative, got %v", c.PersistenceDuration)
	}
	if c.IoUMatchThreshold < 0 || c.IoUMatchThreshold > 1 {
		return fmt.Errorf("iou match threshold must be in [0,1], got %v", c.IoUMatchThreshold)
	}
	if c.DetectionInterval < 1 {
		return fmt.Errorf("detection interval must be at least 1, got %d", c.DetectionInterval)
	}
	if c.PaddingRatio < 0 {
		return fmt.Errorf("padding ratio must not be negative, got %v", c.PaddingRatio)
	}
	if !c.BlurStyle.Valid() {
		return fmt.Errorf("unknown blur style %q", c.BlurStyle)
	}
	if c.MinSmoothFactor < 0 || c.MinSmoothFactor > 1 {
		return fmt.Errorf("min smooth factor must be in [0,1], got %v", c.MinSmoothFactor)
	}
	return nil
}
