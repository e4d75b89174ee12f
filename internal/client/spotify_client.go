package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"

	"github.com/genresorter/api/internal/config"
	"github.com/genresorter/api/internal/model"
)

const (
	spotifyPageLimit    = 50
	spotifyArtistsBatch = 50
	maxRateLimitRetries = 3
	maxRetryAfter       = 30 * time.Second
)

// APIError is a non-2xx response from the Spotify Web API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("spotify API error: status %d", e.Status)
	}
	return fmt.Sprintf("spotify API error: status %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return model.ErrProviderFailure }

type spotifyErrorBody struct {
	Error struct {
		Status  int    `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

type spotifyArtistRef struct {
	ID string `json:"id"`
}

type spotifyTrack struct {
	ID      *string            `json:"id"`
	Name    string             `json:"name"`
	Artists []spotifyArtistRef `json:"artists"`
}

type spotifySavedTracks struct {
	Items []struct {
		Track *spotifyTrack `json:"track"`
	} `json:"items"`
	Total int     `json:"total"`
	Next  *string `json:"next"`
}

type spotifyArtists struct {
	Artists []*struct {
		ID     string   `json:"id"`
		Genres []string `json:"genres"`
	} `json:"artists"`
}

type spotifyUser struct {
	ID string `json:"id"`
}

type spotifyPlaylist struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	ExternalURLs struct {
		Spotify string `json:"spotify"`
	} `json:"external_urls"`
	Owner  spotifyUser `json:"owner"`
	Tracks struct {
		Total int `json:"total"`
	} `json:"tracks"`
}

type spotifyPlaylists struct {
	Items []spotifyPlaylist `json:"items"`
	Total int               `json:"total"`
}

// SpotifyProvider opens Spotify sessions from user access tokens and
// resolves artist genres with the app's client credentials.
type SpotifyProvider struct {
	cfg      config.SpotifyConfig
	base     *http.Client
	limiter  *rate.Limiter
	resolver *SpotifyClient
}

var _ Provider = (*SpotifyProvider)(nil)

// NewSpotifyProvider creates a provider. All sessions share one request
// limiter so the app stays under the provider's quota.
func NewSpotifyProvider(cfg config.ProviderConfig) *SpotifyProvider {
	base := &http.Client{Timeout: cfg.Timeout}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	p := &SpotifyProvider{
		cfg:     cfg.Spotify,
		base:    base,
		limiter: rate.NewLimiter(limit, burst),
	}

	cc := &clientcredentials.Config{
		ClientID:     cfg.Spotify.ClientID,
		ClientSecret: cfg.Spotify.ClientSecret,
		TokenURL:     cfg.Spotify.TokenURL,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	p.resolver = p.newClient(cc.Client(ctx))
	return p
}

func (p *SpotifyProvider) Name() string {
	return "spotify"
}

// IsConfigured returns true if app credentials are present
func (p *SpotifyProvider) IsConfigured() bool {
	return p.cfg.ClientID != "" && p.cfg.ClientSecret != ""
}

func (p *SpotifyProvider) Connect(ctx context.Context, token string) (Session, error) {
	if token == "" {
		return nil, model.ErrMissingProviderToken
	}
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.base)
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	return p.newClient(oauth2.NewClient(ctx, src)), nil
}

// Resolver returns the app-credential client. Without credentials every
// lookup fails with ErrProviderNotConfigured.
func (p *SpotifyProvider) Resolver() GenreResolver {
	if !p.IsConfigured() {
		return unconfiguredResolver{}
	}
	return p.resolver
}

type unconfiguredResolver struct{}

func (unconfiguredResolver) ArtistGenres(context.Context, []string) (map[string][]string, error) {
	return nil, model.ErrProviderNotConfigured
}

func (p *SpotifyProvider) newClient(httpClient *http.Client) *SpotifyClient {
	return &SpotifyClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(p.cfg.BaseURL, "/"),
		limiter:    p.limiter,
	}
}

// SpotifyClient performs Web API calls with one set of credentials.
type SpotifyClient struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter

	mu     sync.Mutex
	userID string
}

var (
	_ Session       = (*SpotifyClient)(nil)
	_ GenreResolver = (*SpotifyClient)(nil)
)

// SavedTracks pages through the user's library. Local files without a
// Spotify id are skipped.
func (c *SpotifyClient) SavedTracks(ctx context.Context) ([]model.Track, error) {
	var tracks []model.Track
	for offset := 0; ; offset += spotifyPageLimit {
		var page spotifySavedTracks
		endpoint := fmt.Sprintf("/me/tracks?limit=%d&offset=%d", spotifyPageLimit, offset)
		if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
			return nil, fmt.Errorf("failed to fetch saved tracks: %w", err)
		}

		for _, item := range page.Items {
			if item.Track == nil || item.Track.ID == nil || *item.Track.ID == "" {
				continue
			}
			t := model.Track{ID: *item.Track.ID, Name: item.Track.Name}
			for _, a := range item.Track.Artists {
				if a.ID != "" {
					t.ArtistIDs = append(t.ArtistIDs, a.ID)
				}
			}
			tracks = append(tracks, t)
		}

		if page.Next == nil || len(page.Items) == 0 {
			return tracks, nil
		}
	}
}

// ArtistGenres looks artists up in batches of 50.
func (c *SpotifyClient) ArtistGenres(ctx context.Context, artistIDs []string) (map[string][]string, error) {
	out := make(map[string][]string, len(artistIDs))
	for start := 0; start < len(artistIDs); start += spotifyArtistsBatch {
		end := min(start+spotifyArtistsBatch, len(artistIDs))

		var resp spotifyArtists
		endpoint := "/artists?ids=" + url.QueryEscape(strings.Join(artistIDs[start:end], ","))
		if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
			return nil, fmt.Errorf("failed to fetch artists: %w", err)
		}
		for _, a := range resp.Artists {
			if a == nil {
				continue
			}
			out[a.ID] = a.Genres
		}
	}
	return out, nil
}

// CreatePlaylist creates an empty playlist and returns its id.
func (c *SpotifyClient) CreatePlaylist(ctx context.Context, name, description string, public bool) (string, error) {
	userID, err := c.currentUser(ctx)
	if err != nil {
		return "", err
	}

	body := map[string]interface{}{
		"name":        name,
		"description": description,
		"public":      public,
	}
	var created spotifyPlaylist
	endpoint := fmt.Sprintf("/users/%s/playlists", url.PathEscape(userID))
	if err := c.doRequest(ctx, http.MethodPost, endpoint, body, &created); err != nil {
		return "", fmt.Errorf("failed to create playlist %q: %w", name, err)
	}
	return created.ID, nil
}

// AddTracks appends tracks in chunks of model.MaxTracksPerAdd.
func (c *SpotifyClient) AddTracks(ctx context.Context, playlistID string, trackIDs []string) error {
	for start := 0; start < len(trackIDs); start += model.MaxTracksPerAdd {
		end := min(start+model.MaxTracksPerAdd, len(trackIDs))
		uris := make([]string, 0, end-start)
		for _, id := range trackIDs[start:end] {
			uris = append(uris, "spotify:track:"+id)
		}

		endpoint := fmt.Sprintf("/playlists/%s/tracks", url.PathEscape(playlistID))
		if err := c.doRequest(ctx, http.MethodPost, endpoint, map[string][]string{"uris": uris}, nil); err != nil {
			return fmt.Errorf("failed to add tracks to playlist %s: %w", playlistID, err)
		}
	}
	return nil
}

// OwnPlaylists returns one page of the user's playlists, keeping only those
// the user owns. total counts every playlist on the provider side.
func (c *SpotifyClient) OwnPlaylists(ctx context.Context, offset, limit int) ([]model.PlaylistSummary, int, error) {
	if limit <= 0 || limit > spotifyPageLimit {
		limit = spotifyPageLimit
	}
	userID, err := c.currentUser(ctx)
	if err != nil {
		return nil, 0, err
	}

	var page spotifyPlaylists
	endpoint := fmt.Sprintf("/me/playlists?limit=%d&offset=%d", limit, offset)
	if err := c.doRequest(ctx, http.MethodGet, endpoint, nil, &page); err != nil {
		return nil, 0, fmt.Errorf("failed to fetch playlists: %w", err)
	}

	out := make([]model.PlaylistSummary, 0, len(page.Items))
	for _, p := range page.Items {
		if p.Owner.ID != userID {
			continue
		}
		out = append(out, model.PlaylistSummary{
			ID:         p.ID,
			Name:       p.Name,
			URL:        p.ExternalURLs.Spotify,
			TrackCount: p.Tracks.Total,
		})
	}
	return out, page.Total, nil
}

func (c *SpotifyClient) currentUser(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.userID != "" {
		return c.userID, nil
	}

	var user spotifyUser
	if err := c.doRequest(ctx, http.MethodGet, "/me", nil, &user); err != nil {
		return "", fmt.Errorf("failed to fetch current user: %w", err)
	}
	c.userID = user.ID
	return c.userID, nil
}

// doRequest performs a paced request, retrying on 429 after the delay the
// API asks for.
func (c *SpotifyClient) doRequest(ctx context.Context, method, endpoint string, body interface{}, result interface{}) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", model.ErrProviderFailure, err)
		}
		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests && attempt < maxRateLimitRetries {
			if err := sleepCtx(ctx, retryAfter(resp.Header.Get("Retry-After"))); err != nil {
				return err
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode}
			var eb spotifyErrorBody
			if json.Unmarshal(respBody, &eb) == nil {
				apiErr.Message = eb.Error.Message
			}
			return apiErr
		}

		if result != nil && len(respBody) > 0 {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	}
}

func retryAfter(header string) time.Duration {
	secs, err := strconv.Atoi(header)
	if err != nil || secs < 0 {
		return time.Second
	}
	d := time.Duration(secs) * time.Second
	if d > maxRetryAfter {
		return maxRetryAfter
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// IsAPIStatus reports whether err carries a Spotify response with status.
func IsAPIStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == status
}
