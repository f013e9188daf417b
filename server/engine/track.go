package engine

import (
	"fmt"
	"time"

	"github.com/Danvdl/SecureStudio/server/geometry"
)

// KeyKind distinguishes tracks carrying a detector-assigned stable identity
// from tracks identified only by frame-to-frame geometry matching. The two
// kinds expire under different rules: stable tracks survive detector dropouts
// up to the persistence window, ephemeral tracks never survive a missed
// detection cycle.
type KeyKind int

const (
	KeyStable KeyKind = iota
	KeyEphemeral
)

func (k KeyKind) String() string {
	switch k {
	case KeyStable:
		return "stable"
	case KeyEphemeral:
		return "ephemeral"
	default:
		return "unknown"
	}
}

// TrackKey identifies a track within the store. Stable keys carry the
// detector's track id; ephemeral keys carry a synthetic negative serial that
// is never reused.
type TrackKey struct {
	Kind KeyKind `json:"kind"`
	ID   int64   `json:"id"`
}

func StableKey(id int64) TrackKey {
	return TrackKey{Kind: KeyStable, ID: id}
}

func (k TrackKey) String() string {
	return fmt.Sprintf("%s/%d", k.Kind, k.ID)
}

// keyLess orders keys deterministically: stable before ephemeral, then by id.
// Association uses it to break exact IoU ties.
func keyLess(a, b TrackKey) bool {
	if a.Kind != b.Kind {
		return a.Kind < b.Kind
	}
	return a.ID < b.ID
}

// Detection is one region reported by the detector for the current frame.
// TrackID is non-nil when the detector supplies a stable identity.
type Detection struct {
	Box     geometry.Box `json:"box"`
	Label   string       `json:"label"`
	TrackID *int64       `json:"track_id,omitempty"`
}

// Batch is the detector output for one detection-bearing cycle. An empty
// Detections slice means the detector ran and saw nothing; a nil *Batch
// passed to the engine means the detector was not invoked this frame.
type Batch struct {
	Detections []Detection
}

// TrackState is a persistent tracked region. Velocity is the per-coordinate
// delta (x1, y1, x2, y2) per detection cycle.
type TrackState struct {
	Key      TrackKey
	Box      geometry.Box
	Velocity [4]float64
	Label    string
	LastSeen time.Time
}

func (t *TrackState) clone() *TrackState {
	cp := *t
	return &cp
}
