package engine

import (
	"math"
	"time"

	"github.com/Danvdl/SecureStudio/server/geometry"
)

// newTrack creates the state for a track seen for the first time.
func newTrack(key TrackKey, det Detection, now time.Time) *TrackState {
	return &TrackState{
		Key:      key,
		Box:      det.Box,
		Label:    det.Label,
		LastSeen: now,
	}
}

// updateTrack advances an existing track with a fresh detection. The box is
// exponentially smoothed toward the detection, with less smoothing under fast
// motion so the region does not lag the object, and with per-axis size
// stabilization so near-identical detector estimates do not make the box
// breathe. Velocity is smoothed 50/50 for stable extrapolation.
func updateTrack(prev *TrackState, det Detection, cfg Config, now time.Time) *TrackState {
	oldBox := prev.Box
	newBox := det.Box

	rawVelocity := [4]float64{
		newBox.X1 - oldBox.X1,
		newBox.Y1 - oldBox.Y1,
		newBox.X2 - oldBox.X2,
		newBox.Y2 - oldBox.Y2,
	}

	speed := (math.Abs(rawVelocity[0]) + math.Abs(rawVelocity[1]) +
		math.Abs(rawVelocity[2]) + math.Abs(rawVelocity[3])) / 4

	smooth := cfg.SmoothFactor
	if speed > cfg.FastMotionThreshold {
		smooth = math.Max(cfg.MinSmoothFactor, cfg.SmoothFactor-cfg.FastMotionSmoothDelta)
	}

	smoothed := geometry.Box{
		X1: oldBox.X1*smooth + newBox.X1*(1-smooth),
		Y1: oldBox.Y1*smooth + newBox.Y1*(1-smooth),
		X2: oldBox.X2*smooth + newBox.X2*(1-smooth),
		Y2: oldBox.Y2*smooth + newBox.Y2*(1-smooth),
	}
	smoothed = stabilizeSize(oldBox, smoothed, cfg.SizeStabilityThreshold)

	return &TrackState{
		Key: prev.Key,
		Box: smoothed,
		Velocity: [4]float64{
			0.5*prev.Velocity[0] + 0.5*rawVelocity[0],
			0.5*prev.Velocity[1] + 0.5*rawVelocity[1],
			0.5*prev.Velocity[2] + 0.5*rawVelocity[2],
			0.5*prev.Velocity[3] + 0.5*rawVelocity[3],
		},
		Label:    det.Label,
		LastSeen: now,
	}
}

// stabilizeSize keeps the old width/height when the smoothed size barely
// changed, re-centering on the new center. Each axis is handled independently.
func stabilizeSize(oldBox, smoothed geometry.Box, threshold float64) geometry.Box {
	oldW := oldBox.Width()
	newW := smoothed.Width()
	if math.Abs(newW-oldW)/math.Max(oldW, 1) < threshold {
		cx := smoothed.CenterX()
		smoothed.X1 = cx - oldW/2
		smoothed.X2 = cx + oldW/2
	}

	oldH := oldBox.Height()
	newH := smoothed.Height()
	if math.Abs(newH-oldH)/math.Max(oldH, 1) < threshold {
		cy := smoothed.CenterY()
		smoothed.Y1 = cy - oldH/2
		smoothed.Y2 = cy + oldH/2
	}
	return smoothed
}

// predictTrack extrapolates a track one cycle forward along its velocity.
// LastSeen is deliberately untouched: prediction is not a sighting, so the
// persistence window keeps counting down from the last real detection.
func predictTrack(prev *TrackState) *TrackState {
	next := prev.clone()
	next.Box = geometry.Box{
		X1: prev.Box.X1 + prev.Velocity[0],
		Y1: prev.Box.Y1 + prev.Velocity[1],
		X2: prev.Box.X2 + prev.Velocity[2],
		Y2: prev.Box.Y2 + prev.Velocity[3],
	}
	return next
}
