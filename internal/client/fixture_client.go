package client

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/genresorter/api/internal/model"
)

const fixtureDefaultUser = "fixture-user"

// Fixture is the on-disk format of a development library.
type Fixture struct {
	Tracks  []model.Track       `json:"tracks"`
	Artists map[string][]string `json:"artists"`
}

// FixturePlaylist is a playlist created against the fixture provider.
type FixturePlaylist struct {
	ID          string
	Owner       string
	Name        string
	Description string
	Public      bool
	TrackIDs    []string
}

// FixtureProvider serves a static library and keeps created playlists in
// memory. It stands in for the real provider in development and tests.
type FixtureProvider struct {
	fixture Fixture

	mu        sync.Mutex
	playlists []*FixturePlaylist
	nextID    int

	// FailCreate, when set, is consulted before each playlist is created.
	FailCreate func(name string) error
	// FailResolve, when set, replaces every ArtistGenres result.
	FailResolve error
	// ResolveGate, when set, holds every ArtistGenres call until it is closed.
	ResolveGate chan struct{}
}

var (
	_ Provider      = (*FixtureProvider)(nil)
	_ GenreResolver = (*FixtureProvider)(nil)
)

// LoadFixture reads a fixture file.
func LoadFixture(path string) (*FixtureProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fixture: %w", err)
	}
	var f Fixture
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse fixture %s: %w", path, err)
	}
	return NewFixtureProvider(f), nil
}

func NewFixtureProvider(f Fixture) *FixtureProvider {
	if f.Artists == nil {
		f.Artists = map[string][]string{}
	}
	return &FixtureProvider{fixture: f}
}

func (p *FixtureProvider) Name() string {
	return "fixture"
}

func (p *FixtureProvider) IsConfigured() bool {
	return true
}

// Connect accepts any token. The token, if any, names the playlist owner.
func (p *FixtureProvider) Connect(ctx context.Context, token string) (Session, error) {
	owner := token
	if owner == "" {
		owner = fixtureDefaultUser
	}
	return &fixtureSession{provider: p, owner: owner}, nil
}

func (p *FixtureProvider) Resolver() GenreResolver {
	return p
}

func (p *FixtureProvider) ArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	if p.ResolveGate != nil {
		select {
		case <-p.ResolveGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if p.FailResolve != nil {
		return nil, p.FailResolve
	}
	out := make(map[string][]string, len(artistIDs))
	for _, id := range artistIDs {
		if genres, ok := p.fixture.Artists[id]; ok {
			out[id] = append([]string(nil), genres...)
		}
	}
	return out, nil
}

// Playlists returns copies of every playlist created so far.
func (p *FixtureProvider) Playlists() []FixturePlaylist {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]FixturePlaylist, 0, len(p.playlists))
	for _, pl := range p.playlists {
		c := *pl
		c.TrackIDs = append([]string(nil), pl.TrackIDs...)
		out = append(out, c)
	}
	return out
}

type fixtureSession struct {
	provider *FixtureProvider
	owner    string
}

func (s *fixtureSession) SavedTracks(ctx context.Context) ([]model.Track, error) {
	tracks := make([]model.Track, len(s.provider.fixture.Tracks))
	for i, t := range s.provider.fixture.Tracks {
		tracks[i] = t.Clone()
	}
	return tracks, nil
}

func (s *fixtureSession) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	p := s.provider
	if p.FailCreate != nil {
		if err := p.FailCreate(name); err != nil {
			return "", fmt.Errorf("%w: %v", model.ErrProviderFailure, err)
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.nextID++
	pl := &FixturePlaylist{
		ID:          fmt.Sprintf("fixture-playlist-%d", p.nextID),
		Owner:       s.owner,
		Name:        name,
		Description: description,
		Public:      public,
	}
	p.playlists = append(p.playlists, pl)
	return pl.ID, nil
}

func (s *fixtureSession) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	if len(trackIDs) > model.MaxTracksPerAdd {
		return fmt.Errorf("%w: %d tracks exceeds the per-request limit", model.ErrProviderFailure, len(trackIDs))
	}
	p := s.provider
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pl := range p.playlists {
		if pl.ID == playlistID && pl.Owner == s.owner {
			pl.TrackIDs = append(pl.TrackIDs, trackIDs...)
			return nil
		}
	}
	return fmt.Errorf("%w: playlist %s not found", model.ErrProviderFailure, playlistID)
}

func (s *fixtureSession) OwnPlaylists(ctx context.Context, offset, limit int) ([]model.PlaylistSummary, int, error) {
	p := s.provider
	p.mu.Lock()
	defer p.mu.Unlock()

	own := []model.PlaylistSummary{}
	for _, pl := range p.playlists {
		if pl.Owner != s.owner {
			continue
		}
		own = append(own, model.PlaylistSummary{
			ID:         pl.ID,
			Name:       pl.Name,
			URL:        "fixture://playlists/" + pl.ID,
			TrackCount: len(pl.TrackIDs),
		})
	}

	total := len(own)
	if offset < 0 || offset > total {
		offset = total
	}
	end := total
	if limit > 0 && offset+limit < total {
		end = offset + limit
	}
	return own[offset:end], total, nil
}
