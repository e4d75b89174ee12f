package model

import "sort"

// MaxTracksPerAdd is the provider limit on tracks added in one request.
const MaxTracksPerAdd = 100

// PlaylistCreationReport partitions the requested genres into created and
// failed. The two sets are disjoint and together equal the request.
type PlaylistCreationReport struct {
	JobID         JobID             `json:"jobId"`
	CreatedGenres []string          `json:"createdGenres"`
	FailedGenres  []string          `json:"failedGenres"`
	Failures      map[string]string `json:"failures,omitempty"`
	Playlists     map[string]string `json:"playlists,omitempty"`
}

// NewPlaylistCreationReport returns an empty report for a job.
func NewPlaylistCreationReport(id JobID) *PlaylistCreationReport {
	return &PlaylistCreationReport{
		JobID:         id,
		CreatedGenres: []string{},
		FailedGenres:  []string{},
		Failures:      make(map[string]string),
		Playlists:     make(map[string]string),
	}
}

// Created records a successful genre.
func (r *PlaylistCreationReport) Created(genre, playlistID string) {
	r.CreatedGenres = append(r.CreatedGenres, genre)
	r.Playlists[genre] = playlistID
}

// Failed records a failed genre with the reason.
func (r *PlaylistCreationReport) Failed(genre string, reason string) {
	r.FailedGenres = append(r.FailedGenres, genre)
	r.Failures[genre] = reason
}

// Sort orders both genre lists for stable output.
func (r *PlaylistCreationReport) Sort() {
	sort.Strings(r.CreatedGenres)
	sort.Strings(r.FailedGenres)
}

// Clone returns a deep copy.
func (r *PlaylistCreationReport) Clone() *PlaylistCreationReport {
	if r == nil {
		return nil
	}
	out := NewPlaylistCreationReport(r.JobID)
	out.CreatedGenres = append(out.CreatedGenres, r.CreatedGenres...)
	out.FailedGenres = append(out.FailedGenres, r.FailedGenres...)
	for k, v := range r.Failures {
		out.Failures[k] = v
	}
	for k, v := range r.Playlists {
		out.Playlists[k] = v
	}
	return out
}

// CreatePlaylistsRequest asks for one playlist per genre of a completed job
type CreatePlaylistsRequest struct {
	JobID  string   `json:"jobId" validate:"required,uuid"`
	Genres []string `json:"genres" validate:"required,min=1,max=500,dive,required,max=200"`
}

// CreatePlaylistsResponse reports the outcome of a batch. Retry only FailedGenres:
// repeating a whole batch creates duplicate playlists.
type CreatePlaylistsResponse struct {
	*PlaylistCreationReport
	Message string `json:"message"`
}

// PlaylistSummary is a playlist owned by the current user
type PlaylistSummary struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	TrackCount int    `json:"trackCount"`
}

// PlaylistsResponse is a page of the user's playlists
type PlaylistsResponse struct {
	Playlists []PlaylistSummary `json:"playlists"`
	Offset    int               `json:"offset"`
	Total     int               `json:"total"`
}
