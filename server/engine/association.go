package engine

import "github.com/Danvdl/SecureStudio/server/geometry"

// assignment pairs one detection with the track key it will update.
// prev is nil when the detection starts a new track.
type assignment struct {
	det  Detection
	key  TrackKey
	prev *TrackState
}

// associate matches a batch of detections against a snapshot of the track
// store. Detections carrying a stable id claim their track directly; the rest
// are matched greedily in input order against the highest-IoU unclaimed track,
// falling back to a fresh ephemeral key allocated via newEphemeral. The store
// snapshot is not mutated.
//
// Returns the per-detection assignments plus the tracks left unmatched this
// cycle.
func associate(dets []Detection, tracks map[TrackKey]*TrackState, iouThreshold float64, newEphemeral func() TrackKey) ([]assignment, map[TrackKey]*TrackState) {
	unmatched := make(map[TrackKey]*TrackState, len(tracks))
	for key, tr := range tracks {
		unmatched[key] = tr
	}

	assignments := make([]assignment, 0, len(dets))
	for _, det := range dets {
		if det.TrackID != nil {
			key := StableKey(*det.TrackID)
			prev := tracks[key]
			if _, stillFree := unmatched[key]; !stillFree {
				// The detector reported the same id twice this cycle;
				// the later detection restarts the track rather than
				// double-updating it.
				prev = nil
			}
			delete(unmatched, key)
			assignments = append(assignments, assignment{det: det, key: key, prev: prev})
			continue
		}

		key, prev := bestOverlap(det.Box, unmatched, iouThreshold)
		if prev == nil {
			key = newEphemeral()
		} else {
			delete(unmatched, key)
		}
		assignments = append(assignments, assignment{det: det, key: key, prev: prev})
	}

	return assignments, unmatched
}

// bestOverlap finds the unclaimed track with the highest IoU against box,
// provided it exceeds the threshold. Exact ties resolve by key order so the
// result does not depend on map iteration.
func bestOverlap(box geometry.Box, pool map[TrackKey]*TrackState, threshold float64) (TrackKey, *TrackState) {
	var bestKey TrackKey
	var best *TrackState
	bestIoU := threshold

	for key, tr := range pool {
		iou := geometry.IoU(box, tr.Box)
		if iou > bestIoU || (iou == bestIoU && best != nil && keyLess(key, bestKey)) {
			bestIoU = iou
			bestKey = key
			best = tr
		}
	}
	return bestKey, best
}
