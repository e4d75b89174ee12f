package server

import (
	"errors"

	"github.com/go-logr/logr"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/redis/go-redis/v9"

	"github.com/genresorter/api/internal/auth"
	"github.com/genresorter/api/internal/client"
	"github.com/genresorter/api/internal/config"
	"github.com/genresorter/api/internal/handler"
	"github.com/genresorter/api/internal/middleware"
	"github.com/genresorter/api/internal/service"
	"github.com/genresorter/api/internal/session"
	"github.com/genresorter/api/internal/store"
	ws "github.com/genresorter/api/internal/websocket"
	"github.com/genresorter/api/internal/worker"
	"github.com/genresorter/api/pkg/response"
)

// Deps are the long-lived components the HTTP layer is built on.
// Redis may be nil when the in-memory store is used.
type Deps struct {
	Config     *config.Config
	Log        logr.Logger
	Redis      *redis.Client
	Store      store.Store
	Hub        *ws.Hub
	Provider   client.Provider
	Sessions   *session.Cache
	Dispatcher worker.Dispatcher
	// Verifier checks OIDC bearer tokens. Nil disables OIDC.
	Verifier auth.TokenVerifier

	// RequestLog enables the per-request access log line.
	RequestLog bool
}

// New assembles the Fiber app with all routes registered.
func New(d Deps) *fiber.App {
	cfg := d.Config
	validate := validator.New()

	jobService := service.NewJobService(d.Store, d.Hub, d.Dispatcher, d.Log)
	libraryService := service.NewLibraryService(d.Provider, d.Sessions, d.Log)
	playlistService := service.NewPlaylistService(jobService, d.Sessions, service.PlaylistOptions{
		Concurrency: cfg.Playlists.Concurrency,
		NameSuffix:  cfg.Playlists.NameSuffix,
		Description: cfg.Playlists.Description,
		Public:      cfg.Playlists.Public,
	}, d.Log)

	healthHandler := handler.NewHealthHandler(d.Redis, d.Provider)
	libraryHandler := handler.NewLibraryHandler(libraryService)
	jobHandler := handler.NewJobHandler(jobService, validate)
	playlistHandler := handler.NewPlaylistHandler(playlistService, d.Provider, validate)
	streamHandler := handler.NewStreamHandler(jobService, d.Hub, cfg.Stream.KeepAlive, d.Log)

	authMiddleware := middleware.NewAuthMiddlewareWithVerifier(d.Verifier, cfg.JWT.Secret)
	rateLimiter := middleware.NewRateLimiter(d.Redis, d.Log)

	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler(d.Log),
		BodyLimit:             1 * 1024 * 1024,
		DisableStartupMessage: cfg.IsProduction(),
	})

	app.Use(recover.New())
	if d.RequestLog {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path}\n",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders: "Origin,Content-Type,Accept,Authorization," + middleware.HeaderSessionID + "," + middleware.HeaderProviderToken,
	}))

	app.Get("/health", healthHandler.Check)

	api := app.Group("/api", authMiddleware.Authenticate())

	api.Post("/library/snapshot", rateLimiter.SnapshotLimit(cfg.RateLimit.SnapshotsPerMin), libraryHandler.Snapshot)
	api.Delete("/session", libraryHandler.ClearSession)

	jobs := api.Group("/jobs")
	jobs.Post("/start", jobHandler.Start)
	jobs.Get("/:jobId", jobHandler.Status)
	jobs.Get("/:jobId/events", streamHandler.Events)
	jobs.Get("/:jobId/genres", jobHandler.Genres)

	playlists := api.Group("/playlists")
	playlists.Post("/", rateLimiter.PlaylistLimit(cfg.RateLimit.PlaylistsPerHour), playlistHandler.Create)
	playlists.Get("/", libraryHandler.Playlists)

	app.Use("/ws", handler.RequireUpgrade)
	app.Get("/ws/jobs/:jobId", authMiddleware.Authenticate(), streamHandler.WebSocket())

	return app
}

func errorHandler(log logr.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		message := "Internal Server Error"

		var e *fiber.Error
		if errors.As(err, &e) {
			code = e.Code
			message = e.Message
		} else {
			log.Error(err, "unhandled request error", "method", c.Method(), "path", c.Path())
		}

		errCode := response.CodeServiceError
		switch code {
		case fiber.StatusNotFound:
			errCode = response.CodeNotFound
		case fiber.StatusBadRequest:
			errCode = response.CodeValidationError
		case fiber.StatusUnauthorized:
			errCode = response.CodeUnauthorized
		}
		return response.Error(c, code, errCode, message, nil)
	}
}
