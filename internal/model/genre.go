package model

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// GenreGroup lists the tracks carrying one genre label.
type GenreGroup struct {
	Count    int      `json:"count"`
	TrackIDs []string `json:"trackIds"`
}

// GroupedTracks maps a genre label (case preserved) to its member tracks.
// A track may appear under several genres.
type GroupedTracks map[string]GenreGroup

// NewGroupedTracks groups labelled tracks by genre. Membership keeps snapshot
// order; duplicate labels and duplicate track ids are collapsed.
func NewGroupedTracks(tracks []Track) GroupedTracks {
	grouped := make(GroupedTracks)
	seen := make(map[string]map[string]struct{})

	for _, t := range tracks {
		if t.ID == "" {
			continue
		}
		for _, genre := range NormalizeLabels(t.Genres) {
			members, ok := seen[genre]
			if !ok {
				members = make(map[string]struct{})
				seen[genre] = members
			}
			if _, dup := members[t.ID]; dup {
				continue
			}
			members[t.ID] = struct{}{}

			group := grouped[genre]
			group.TrackIDs = append(group.TrackIDs, t.ID)
			group.Count = len(group.TrackIDs)
			grouped[genre] = group
		}
	}

	return grouped
}

// Genres returns the genre labels in sorted order.
func (g GroupedTracks) Genres() []string {
	genres := make([]string, 0, len(g))
	for genre := range g {
		genres = append(genres, genre)
	}
	sort.Strings(genres)
	return genres
}

// Has reports whether genre is a key of the result.
func (g GroupedTracks) Has(genre string) bool {
	_, ok := g[genre]
	return ok
}

// Validate checks that every count matches its member list.
func (g GroupedTracks) Validate() error {
	for genre, group := range g {
		if group.Count != len(group.TrackIDs) {
			return fmt.Errorf("genre %q: count %d does not match %d members", genre, group.Count, len(group.TrackIDs))
		}
	}
	return nil
}

// Clone returns a deep copy.
func (g GroupedTracks) Clone() GroupedTracks {
	if g == nil {
		return nil
	}
	out := make(GroupedTracks, len(g))
	for genre, group := range g {
		out[genre] = GenreGroup{
			Count:    group.Count,
			TrackIDs: append([]string(nil), group.TrackIDs...),
		}
	}
	return out
}

// NormalizeLabels trims labels and drops blanks and exact duplicates,
// keeping first-seen order.
func NormalizeLabels(labels []string) []string {
	if len(labels) == 0 {
		return nil
	}
	out := make([]string, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			continue
		}
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// DisplayName renders a genre label for people, e.g. "indie rock" -> "Indie Rock".
// Existing capitals are kept so "EDM" stays "EDM".
func DisplayName(genre string) string {
	// Casers carry state and must not be shared between goroutines.
	return cases.Title(language.English, cases.NoLower).String(genre)
}

// GenresResponse carries two mappings keyed by the same genre labels.
type GenresResponse struct {
	JobID  JobID             `json:"jobId"`
	Genres map[string]string `json:"genres"`
	Count  map[string]int    `json:"count"`
}

// NewGenresResponse builds the aligned label->display and label->count maps.
func NewGenresResponse(id JobID, g GroupedTracks) *GenresResponse {
	resp := &GenresResponse{
		JobID:  id,
		Genres: make(map[string]string, len(g)),
		Count:  make(map[string]int, len(g)),
	}
	for genre, group := range g {
		resp.Genres[genre] = DisplayName(genre)
		resp.Count[genre] = group.Count
	}
	return resp
}
