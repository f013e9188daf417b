package models

import (
	"testing"
	"time"

	"github.com/Danvdl/SecureStudio/server/engine"
	"github.com/Danvdl/SecureStudio/server/geometry"
	"github.com/Danvdl/SecureStudio/server/render"
	"github.com/stretchr/testify/assert"
)

func TestConfigUpdateApply(t *testing.T) {
	base := engine.DefaultConfig()

	smooth := 0.9
	persistence := int64(900)
	style := "solid"
	update := &ConfigUpdate{
		SmoothFactor:  &smooth,
		PersistenceMs: &persistence,
		BlurStyle:     &style,
	}

	got := update.Apply(base)

	assert.Equal(t, 0.9, got.SmoothFactor)
	assert.Equal(t, 900*time.Millisecond, got.PersistenceDuration)
	assert.Equal(t, render.StyleSolid, got.BlurStyle)

	// Untouched fields keep their current values.
	assert.Equal(t, base.DetectionInterval, got.DetectionInterval)
	assert.Equal(t, base.IoUMatchThreshold, got.IoUMatchThreshold)
}

func TestSnapshotTracks(t *testing.T) {
	seen := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	tracks := []engine.TrackState{
		{
			Key:      engine.StableKey(12),
			Box:      geometry.Box{X1: 1, Y1: 2, X2: 3, Y2: 4},
			Velocity: [4]float64{0.5, 0.5, 0.5, 0.5},
			Label:    "face",
			LastSeen: seen,
		},
	}

	snaps := SnapshotTracks(tracks)
	assert.Len(t, snaps, 1)
	assert.Equal(t, "stable/12", snaps[0].Key)
	assert.Equal(t, "stable", snaps[0].Kind)
	assert.Equal(t, BoxSnapshot{X1: 1, Y1: 2, X2: 3, Y2: 4}, snaps[0].Box)
	assert.Equal(t, seen.UnixMilli(), snaps[0].LastSeen)

	assert.Empty(t, SnapshotTracks(nil))
}
