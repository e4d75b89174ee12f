package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/go-logr/logr"
	"golang.org/x/sync/errgroup"

	"github.com/genresorter/api/internal/client"
	"github.com/genresorter/api/internal/model"
	"github.com/genresorter/api/internal/session"
)

const reasonUnknownGenre = "unknown genre"

// PlaylistOptions controls how playlists are named and created.
type PlaylistOptions struct {
	Concurrency int
	NameSuffix  string
	Description string
	Public      bool
}

// PlaylistService creates one playlist per selected genre of a finished job.
type PlaylistService struct {
	jobs  *JobService
	cache *session.Cache
	opts  PlaylistOptions
	log   logr.Logger
}

func NewPlaylistService(jobs *JobService, cache *session.Cache, opts PlaylistOptions, log logr.Logger) *PlaylistService {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &PlaylistService{
		jobs:  jobs,
		cache: cache,
		opts:  opts,
		log:   log.WithName("playlists"),
	}
}

// PlaylistName returns the playlist title used for genre. The label is used
// as stored in the result.
func (s *PlaylistService) PlaylistName(genre string) string {
	return genre + s.opts.NameSuffix
}

// CreatePlaylists creates a playlist for every requested genre. Genres are
// independent: a failure is recorded in the report and never stops the
// others, and nothing is rolled back. Only a missing or unfinished job is
// returned as an error.
//
// Requested names are matched byte for byte against the result keys, so every
// distinct requested name ends up in exactly one of the report's lists.
func (s *PlaylistService) CreatePlaylists(ctx context.Context, sessionKey string, writer client.PlaylistWriter, jobID model.JobID, genres []string) (*model.PlaylistCreationReport, error) {
	grouped, err := s.jobs.Result(ctx, jobID)
	if err != nil {
		return nil, err
	}

	report := model.NewPlaylistCreationReport(jobID)
	var mu sync.Mutex

	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)

	seen := make(map[string]struct{}, len(genres))
	for _, genre := range genres {
		if _, dup := seen[genre]; dup {
			continue
		}
		seen[genre] = struct{}{}

		if !grouped.Has(genre) {
			mu.Lock()
			report.Failed(genre, reasonUnknownGenre)
			mu.Unlock()
			continue
		}

		genre := genre
		trackIDs := grouped[genre].TrackIDs
		g.Go(func() error {
			playlistID, err := s.createOne(ctx, writer, genre, trackIDs)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.log.Info("playlist creation failed", "jobId", jobID, "genre", genre, "error", err.Error())
				report.Failed(genre, err.Error())
				return nil
			}
			report.Created(genre, playlistID)
			return nil
		})
	}
	_ = g.Wait()

	report.Sort()
	if sessionKey != "" {
		s.cache.SetReport(sessionKey, report)
	}
	s.log.Info("playlist batch finished", "jobId", jobID, "created", len(report.CreatedGenres), "failed", len(report.FailedGenres))
	return report, nil
}

func (s *PlaylistService) createOne(ctx context.Context, writer client.PlaylistWriter, genre string, trackIDs []string) (id string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: panic: %v", model.ErrProviderFailure, r)
		}
	}()

	id, err = writer.CreatePlaylist(ctx, s.PlaylistName(genre), s.opts.Description, s.opts.Public)
	if err != nil {
		return "", err
	}
	for start := 0; start < len(trackIDs); start += model.MaxTracksPerAdd {
		end := min(start+model.MaxTracksPerAdd, len(trackIDs))
		if err := writer.AddTracks(ctx, id, trackIDs[start:end]); err != nil {
			return "", err
		}
	}
	return id, nil
}
