package engine

import (
	"sort"
)

// TrackStore owns every live TrackState. Each cycle builds a fresh map and
// commits it wholesale, so the previous cycle's state is never aliased by
// in-progress matching.
type TrackStore struct {
	tracks        map[TrackKey]*TrackState
	lastEphemeral int64
}

func NewTrackStore() *TrackStore {
	return &TrackStore{
		tracks: make(map[TrackKey]*TrackState),
	}
}

// nextEphemeralKey allocates a synthetic key from the negative serial range.
// Serials are never reused, even after the track is pruned.
func (s *TrackStore) nextEphemeralKey() TrackKey {
	s.lastEphemeral--
	return TrackKey{Kind: KeyEphemeral, ID: s.lastEphemeral}
}

// commit replaces the live track set with the result of a completed cycle.
func (s *TrackStore) commit(next map[TrackKey]*TrackState) {
	s.tracks = next
}

func (s *TrackStore) Len() int {
	return len(s.tracks)
}

func (s *TrackStore) Get(key TrackKey) (*TrackState, bool) {
	tr, ok := s.tracks[key]
	return tr, ok
}

// Tracks returns the live tracks in deterministic key order.
func (s *TrackStore) Tracks() []*TrackState {
	out := make([]*TrackState, 0, len(s.tracks))
	for _, tr := range s.tracks {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool {
		return keyLess(out[i].Key, out[j].Key)
	})
	return out
}
