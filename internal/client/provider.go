// Package client talks to the music provider on behalf of users.
package client

import (
	"context"

	"github.com/genresorter/api/internal/model"
)

// Library reads a user's saved tracks.
type Library interface {
	SavedTracks(ctx context.Context) ([]model.Track, error)
}

// GenreResolver maps artist ids to their genre labels. Unknown artists are
// simply absent from the result.
type GenreResolver interface {
	ArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error)
}

// PlaylistWriter creates playlists in a user's account.
type PlaylistWriter interface {
	CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error)
	AddTracks(ctx context.Context, playlistID string, trackIDs []string) error
}

// PlaylistReader lists playlists owned by the user.
type PlaylistReader interface {
	OwnPlaylists(ctx context.Context, offset, limit int) ([]model.PlaylistSummary, int, error)
}

// Session is a provider connection acting for one user.
type Session interface {
	Library
	PlaylistWriter
	PlaylistReader
}

// Provider opens user sessions and resolves genres with app credentials.
type Provider interface {
	Name() string
	IsConfigured() bool
	Connect(ctx context.Context, token string) (Session, error)
	Resolver() GenreResolver
}
