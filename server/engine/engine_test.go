package engine

import (
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Danvdl/SecureStudio/server/geometry"
)

func newTestEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := New(cfg, zap.NewNop())
	require.NoError(t, err)
	return e
}

func testFrames() (*image.RGBA, *image.RGBA) {
	return image.NewRGBA(image.Rect(0, 0, 640, 480)), image.NewRGBA(image.Rect(0, 0, 640, 480))
}

func TestProcessRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SmoothFactor = 1.5
	_, err := New(cfg, zap.NewNop())
	assert.Error(t, err)

	e := newTestEngine(t, DefaultConfig())
	cfg.SmoothFactor = -0.1
	assert.Error(t, e.SetConfig(cfg))
}

func TestEndToEndSyntheticTrackSmoothing(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	frame, debug := testFrames()
	t0 := time.Unix(3000, 0)

	e.Process(t0, &Batch{Detections: []Detection{
		{Box: geometry.NewBox(100, 100, 200, 200), Label: "phone"},
	}}, frame, debug)

	require.Equal(t, 1, e.TrackCount())
	first := e.Snapshot()[0]
	assert.Equal(t, KeyEphemeral, first.Key.Kind)
	assert.Equal(t, geometry.NewBox(100, 100, 200, 200), first.Box)

	// Next detection-bearing cycle 66ms later, shifted 10px right; IoU
	// well above threshold, so the same track absorbs it.
	e.Process(t0.Add(66*time.Millisecond), &Batch{Detections: []Detection{
		{Box: geometry.NewBox(110, 100, 210, 200), Label: "phone"},
	}}, frame, debug)

	require.Equal(t, 1, e.TrackCount())
	second := e.Snapshot()[0]
	assert.Equal(t, first.Key, second.Key, "synthetic key must survive the match")
	assert.InDelta(t, 105, second.Box.X1, 1e-9)
	assert.InDelta(t, 205, second.Box.X2, 1e-9)
	assert.InDelta(t, 100, second.Box.Y1, 1e-9)
	assert.InDelta(t, 200, second.Box.Y2, 1e-9)
}

func TestEndToEndSkipCyclePrediction(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	frame, debug := testFrames()
	t0 := time.Unix(3000, 0)

	e.store.tracks[StableKey(5)] = &TrackState{
		Key:      StableKey(5),
		Box:      geometry.NewBox(0, 0, 50, 50),
		Velocity: [4]float64{2, 2, 2, 2},
		Label:    "phone",
		LastSeen: t0,
	}

	e.Process(t0.Add(33*time.Millisecond), nil, frame, debug)

	require.Equal(t, 1, e.TrackCount())
	tr := e.Snapshot()[0]
	assert.Equal(t, geometry.NewBox(2, 2, 52, 52), tr.Box)
	assert.Equal(t, t0, tr.LastSeen, "skip cycle must not refresh LastSeen")
}

func TestSkipCycleLeavesEphemeralTracksInPlace(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	frame, debug := testFrames()
	t0 := time.Unix(3000, 0)

	key := TrackKey{Kind: KeyEphemeral, ID: -1}
	e.store.tracks[key] = &TrackState{
		Key:      key,
		Box:      geometry.NewBox(10, 10, 60, 60),
		Velocity: [4]float64{5, 5, 5, 5},
		LastSeen: t0,
	}

	e.Process(t0.Add(33*time.Millisecond), nil, frame, debug)

	require.Equal(t, 1, e.TrackCount())
	// Ephemeral tracks are never extrapolated.
	assert.Equal(t, geometry.NewBox(10, 10, 60, 60), e.Snapshot()[0].Box)
}

func TestStableTrackExpiry(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEngine(t, cfg)
	frame, debug := testFrames()
	t0 := time.Unix(3000, 0)
	id := int64(9)

	e.Process(t0, &Batch{Detections: []Detection{
		{Box: geometry.NewBox(100, 100, 200, 200), TrackID: &id},
	}}, frame, debug)
	require.Equal(t, 1, e.TrackCount())

	eps := 10 * time.Millisecond

	// Within the persistence window the unmatched track is carried.
	e.Process(t0.Add(cfg.PersistenceDuration-eps), &Batch{}, frame, debug)
	assert.Equal(t, 1, e.TrackCount(), "still inside the persistence window")

	// Past the window it is pruned.
	e.Process(t0.Add(cfg.PersistenceDuration+eps), &Batch{}, frame, debug)
	assert.Equal(t, 0, e.TrackCount(), "persistence window elapsed")
}

func TestExpiryAppliesOnSkipCycles(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEngine(t, cfg)
	frame, debug := testFrames()
	t0 := time.Unix(3000, 0)
	id := int64(2)

	e.Process(t0, &Batch{Detections: []Detection{
		{Box: geometry.NewBox(100, 100, 200, 200), TrackID: &id},
	}}, frame, debug)

	e.Process(t0.Add(cfg.PersistenceDuration+time.Millisecond), nil, frame, debug)
	assert.Equal(t, 0, e.TrackCount())
}

func TestEphemeralTrackNeverSurvivesAMiss(t *testing.T) {
	cfg := DefaultConfig()
	e := newTestEngine(t, cfg)
	frame, debug := testFrames()
	t0 := time.Unix(3000, 0)

	e.Process(t0, &Batch{Detections: []Detection{
		{Box: geometry.NewBox(100, 100, 200, 200)},
	}}, frame, debug)
	require.Equal(t, 1, e.TrackCount())

	// The very next detection-bearing cycle misses it; the persistence
	// window has not elapsed, but ephemeral identities do not get one.
	e.Process(t0.Add(66*time.Millisecond), &Batch{}, frame, debug)
	assert.Equal(t, 0, e.TrackCount())
}

func TestEphemeralSerialsNeverReused(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	frame, debug := testFrames()
	t0 := time.Unix(3000, 0)

	e.Process(t0, &Batch{Detections: []Detection{
		{Box: geometry.NewBox(100, 100, 200, 200)},
	}}, frame, debug)
	firstKey := e.Snapshot()[0].Key

	// Miss, then a detection in the same place: a brand new identity.
	e.Process(t0.Add(66*time.Millisecond), &Batch{}, frame, debug)
	e.Process(t0.Add(132*time.Millisecond), &Batch{Detections: []Detection{
		{Box: geometry.NewBox(100, 100, 200, 200)},
	}}, frame, debug)

	require.Equal(t, 1, e.TrackCount())
	assert.NotEqual(t, firstKey, e.Snapshot()[0].Key)
}

func TestDegenerateDetectionsDiscarded(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	frame, debug := testFrames()
	t0 := time.Unix(3000, 0)

	e.Process(t0, &Batch{Detections: []Detection{
		{Box: geometry.NewBox(50, 50, 50, 120)},    // zero width
		{Box: geometry.NewBox(200, 100, 100, 200)}, // inverted
		{Box: geometry.NewBox(700, 500, 800, 600)}, // fully outside, degenerate after clamp
		{Box: geometry.NewBox(-50, -50, 100, 100)}, // clamps to a valid box
	}}, frame, debug)

	require.Equal(t, 1, e.TrackCount())
	assert.Equal(t, geometry.NewBox(0, 0, 100, 100), e.Snapshot()[0].Box)
}

func TestDuplicateStableIDKeepsOneTrack(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	frame, debug := testFrames()
	t0 := time.Unix(3000, 0)
	id := int64(4)

	e.Process(t0, &Batch{Detections: []Detection{
		{Box: geometry.NewBox(10, 10, 50, 50), TrackID: &id},
		{Box: geometry.NewBox(300, 300, 400, 400), TrackID: &id},
	}}, frame, debug)

	assert.Equal(t, 1, e.TrackCount(), "one key, one track")
}

func TestConfigReloadAppliesNextCycle(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	frame, debug := testFrames()
	t0 := time.Unix(3000, 0)

	e.Process(t0, &Batch{Detections: []Detection{
		{Box: geometry.NewBox(100, 100, 200, 200)},
	}}, frame, debug)

	cfg := DefaultConfig()
	cfg.SmoothFactor = 0
	cfg.SizeStabilityThreshold = 0
	require.NoError(t, e.SetConfig(cfg))

	// With smoothing off the track snaps straight to the new detection.
	e.Process(t0.Add(66*time.Millisecond), &Batch{Detections: []Detection{
		{Box: geometry.NewBox(120, 100, 220, 200)},
	}}, frame, debug)
	assert.InDelta(t, 120, e.Snapshot()[0].Box.X1, 1e-9)
}

func TestResetClearsTracks(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	frame, debug := testFrames()

	e.Process(time.Unix(3000, 0), &Batch{Detections: []Detection{
		{Box: geometry.NewBox(100, 100, 200, 200)},
	}}, frame, debug)
	require.Equal(t, 1, e.TrackCount())

	e.Reset()
	assert.Equal(t, 0, e.TrackCount())
}

func TestProcessRedactsFrame(t *testing.T) {
	e := newTestEngine(t, DefaultConfig())
	frame, debug := testFrames()

	// Paint a recognizable gradient so pixelation visibly changes pixels.
	for y := 0; y < 480; y++ {
		for x := 0; x < 640; x++ {
			frame.Pix[frame.PixOffset(x, y)] = uint8(x % 256)
			frame.Pix[frame.PixOffset(x, y)+1] = uint8(y % 256)
			frame.Pix[frame.PixOffset(x, y)+3] = 255
		}
	}
	before := append([]uint8(nil), frame.Pix...)

	e.Process(time.Unix(3000, 0), &Batch{Detections: []Detection{
		{Box: geometry.NewBox(100, 100, 200, 200), Label: "phone"},
	}}, frame, debug)

	assert.NotEqual(t, before, frame.Pix, "redaction must mutate the output frame")

	empty := image.NewRGBA(image.Rect(0, 0, 640, 480))
	assert.NotEqual(t, empty.Pix, debug.Pix, "overlay must mutate the debug frame")
}
