package service

import (
	"context"
	"fmt"

	"github.com/go-logr/logr"

	"github.com/genresorter/api/internal/client"
	"github.com/genresorter/api/internal/model"
	"github.com/genresorter/api/internal/session"
)

// LibraryService captures library snapshots and lists the user's playlists.
type LibraryService struct {
	provider client.Provider
	cache    *session.Cache
	log      logr.Logger
}

func NewLibraryService(provider client.Provider, cache *session.Cache, log logr.Logger) *LibraryService {
	return &LibraryService{
		provider: provider,
		cache:    cache,
		log:      log.WithName("library"),
	}
}

// Snapshot returns the session's current snapshot, fetching the library
// from the provider when there is no fresh one or refresh is set.
func (s *LibraryService) Snapshot(ctx context.Context, sessionKey, token string, refresh bool) (*model.SnapshotResponse, error) {
	fetch := func(ctx context.Context) ([]model.Track, error) {
		sess, err := s.provider.Connect(ctx, token)
		if err != nil {
			return nil, err
		}
		return sess.SavedTracks(ctx)
	}

	entry, reused, err := s.cache.ResolveOrCreate(ctx, sessionKey, refresh, fetch)
	if err != nil {
		return nil, err
	}

	return &model.SnapshotResponse{
		JobID:      entry.JobID,
		TrackCount: entry.TrackCount,
		Reused:     reused,
		FetchedAt:  entry.FetchedAt,
	}, nil
}

// ClearSession forgets the session's snapshot. Jobs stay in the store.
func (s *LibraryService) ClearSession(sessionKey string) {
	if s.cache.Forget(sessionKey) {
		s.log.V(1).Info("session cleared")
	}
}

// Playlists lists playlists the user owns.
func (s *LibraryService) Playlists(ctx context.Context, token string, offset, limit int) (*model.PlaylistsResponse, error) {
	sess, err := s.provider.Connect(ctx, token)
	if err != nil {
		return nil, err
	}
	playlists, total, err := sess.OwnPlaylists(ctx, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}
	return &model.PlaylistsResponse{Playlists: playlists, Offset: offset, Total: total}, nil
}
