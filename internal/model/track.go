package model

import "time"

// Track is a library entry. Genres is usually empty in raw source data and
// gets filled in by the classifier.
type Track struct {
	ID        string   `json:"id"`
	Name      string   `json:"name,omitempty"`
	ArtistIDs []string `json:"artistIds,omitempty"`
	Genres    []string `json:"genres,omitempty"`
}

// Clone returns a deep copy of the track.
func (t Track) Clone() Track {
	out := t
	out.ArtistIDs = append([]string(nil), t.ArtistIDs...)
	out.Genres = append([]string(nil), t.Genres...)
	return out
}

// SourceSnapshot is the immutable set of tracks captured for a job.
type SourceSnapshot struct {
	JobID      JobID     `json:"jobId"`
	Tracks     []Track   `json:"tracks"`
	CapturedAt time.Time `json:"capturedAt"`
}

// NewSourceSnapshot copies tracks so later changes by the caller cannot leak in.
func NewSourceSnapshot(id JobID, tracks []Track, now time.Time) *SourceSnapshot {
	copied := make([]Track, len(tracks))
	for i, t := range tracks {
		copied[i] = t.Clone()
	}
	return &SourceSnapshot{JobID: id, Tracks: copied, CapturedAt: now}
}

// Clone returns a deep copy of the snapshot.
func (s *SourceSnapshot) Clone() *SourceSnapshot {
	if s == nil {
		return nil
	}
	return NewSourceSnapshot(s.JobID, s.Tracks, s.CapturedAt)
}

// SnapshotResponse is returned after fetching or resuming a library snapshot
type SnapshotResponse struct {
	JobID      JobID     `json:"jobId"`
	TrackCount int       `json:"trackCount"`
	Reused     bool      `json:"reused"`
	FetchedAt  time.Time `json:"fetchedAt"`
}
