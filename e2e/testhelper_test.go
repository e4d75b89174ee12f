package e2e

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/gofiber/fiber/v2"

	"github.com/genresorter/api/internal/auth"
	"github.com/genresorter/api/internal/client"
	"github.com/genresorter/api/internal/config"
	"github.com/genresorter/api/internal/middleware"
	"github.com/genresorter/api/internal/model"
	"github.com/genresorter/api/internal/server"
	"github.com/genresorter/api/internal/session"
	"github.com/genresorter/api/internal/store"
	ws "github.com/genresorter/api/internal/websocket"
	"github.com/genresorter/api/internal/worker"
)

const (
	testJWTSecret = "test-secret-for-e2e"
	testSession   = "e2e-session"
)

// testApp holds all components needed for testing
type testApp struct {
	app      *fiber.App
	store    *store.MemoryStore
	provider *client.FixtureProvider
	hub      *ws.Hub
	local    *worker.LocalDispatcher
}

func testConfig() *config.Config {
	return &config.Config{
		Server:    config.ServerConfig{Port: "0", Env: "test"},
		RateLimit: config.RateLimitConfig{SnapshotsPerMin: 10000, PlaylistsPerHour: 10000},
		Jobs: config.JobsConfig{
			Store:       config.StoreMemory,
			Dispatcher:  config.DispatcherLocal,
			BatchSize:   2,
			Concurrency: 2,
		},
		Session:   config.SessionConfig{TTL: time.Hour, IdleTimeout: time.Hour},
		Stream:    config.StreamConfig{KeepAlive: time.Second, Buffer: 16},
		Playlists: config.PlaylistsConfig{Concurrency: 2, NameSuffix: " GenreSorter", Description: "My custom playlist"},
		Provider:  config.ProviderConfig{Mode: config.ProviderFixture},
	}
}

func testFixture() client.Fixture {
	return client.Fixture{
		Tracks: []model.Track{
			{ID: "t1", Name: "One", ArtistIDs: []string{"a1"}},
			{ID: "t2", Name: "Two", ArtistIDs: []string{"a2"}},
			{ID: "t3", Name: "Three", ArtistIDs: []string{"a1", "a3"}},
			{ID: "t4", Name: "Four"},
		},
		Artists: map[string][]string{
			"a1": {"rock"},
			"a2": {"rock", "jazz"},
			"a3": {"hip hop"},
		},
	}
}

// setupApp builds the app the way main.go does, backed by the in-memory
// store and the fixture provider. A nil cfg uses testConfig.
func setupApp(t *testing.T, cfg *config.Config) *testApp {
	t.Helper()
	return setupAppWith(t, cfg, nil)
}

func setupAppWith(t *testing.T, cfg *config.Config, verifier auth.TokenVerifier) *testApp {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	log := testr.New(t)

	base, cancel := context.WithCancel(context.Background())

	jobStore := store.NewMemoryStore()
	provider := client.NewFixtureProvider(testFixture())
	hub := ws.NewHub(cfg.Stream.Buffer, log)
	classifier := worker.NewClassifyWorker(jobStore, provider.Resolver(), hub, cfg.Jobs.BatchSize, log)
	local := worker.NewLocalDispatcher(base, classifier, cfg.Jobs.Concurrency, log)
	sessions := session.New(jobStore, cfg.Session.TTL, cfg.Session.IdleTimeout, log)

	t.Cleanup(func() {
		cancel()
		local.Wait()
		hub.Close()
	})

	app := server.New(server.Deps{
		Config:     cfg,
		Log:        log,
		Store:      jobStore,
		Hub:        hub,
		Provider:   provider,
		Sessions:   sessions,
		Dispatcher: local,
		Verifier:   verifier,
	})

	return &testApp{
		app:      app,
		store:    jobStore,
		provider: provider,
		hub:      hub,
		local:    local,
	}
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doSessionRequest performs a request under the default test session.
func doSessionRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		middleware.HeaderSessionID: testSession,
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// assertErrorCode checks the code of an error envelope.
func assertErrorCode(t *testing.T, body map[string]interface{}, expected string) {
	t.Helper()
	errObj, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected 'error' object, got %v", body)
	}
	if errObj["code"] != expected {
		t.Errorf("expected error code %q, got %v", expected, errObj["code"])
	}
}

// snapshot takes a library snapshot for the test session and returns its job id.
func (ta *testApp) snapshot(t *testing.T) string {
	t.Helper()
	resp := doSessionRequest(t, ta.app, http.MethodPost, "/api/library/snapshot", "")
	assertStatus(t, resp, http.StatusOK)
	body := parseJSON(t, resp)
	id, _ := body["jobId"].(string)
	if id == "" {
		t.Fatalf("expected jobId in %v", body)
	}
	return id
}

// completedJob snapshots, starts and waits for a job.
func (ta *testApp) completedJob(t *testing.T) string {
	t.Helper()
	id := ta.snapshot(t)
	resp := doSessionRequest(t, ta.app, http.MethodPost, "/api/jobs/start", `{"jobId":"`+id+`"}`)
	assertStatus(t, resp, http.StatusAccepted)
	resp.Body.Close()
	ta.local.Wait()
	return id
}
