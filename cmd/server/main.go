package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-logr/logr"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/genresorter/api/internal/auth"
	"github.com/genresorter/api/internal/client"
	"github.com/genresorter/api/internal/config"
	"github.com/genresorter/api/internal/logger"
	"github.com/genresorter/api/internal/server"
	"github.com/genresorter/api/internal/session"
	"github.com/genresorter/api/internal/store"
	ws "github.com/genresorter/api/internal/websocket"
	"github.com/genresorter/api/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "genresorter: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, zl, err := logger.New(cfg.Server.LogLevel, cfg.Server.Env)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer zl.Sync() //nolint:errcheck

	base, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Redis is optional in memory mode
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()

		if err := redisClient.Ping(base).Err(); err != nil {
			if cfg.Jobs.Store == config.StoreRedis {
				return fmt.Errorf("redis not available: %w", err)
			}
			log.Info("redis not available, rate limiting disabled", "error", err.Error())
			redisClient = nil
		}
	}

	var jobStore store.Store
	switch cfg.Jobs.Store {
	case config.StoreRedis:
		jobStore = store.NewRedisStore(redisClient, cfg.Jobs.Retention)
	default:
		jobStore = store.NewMemoryStore()
	}

	provider, err := newProvider(cfg)
	if err != nil {
		return err
	}

	hub := ws.NewHub(cfg.Stream.Buffer, log)
	classifier := worker.NewClassifyWorker(jobStore, provider.Resolver(), hub, cfg.Jobs.BatchSize, log)

	var (
		dispatcher worker.Dispatcher
		local      *worker.LocalDispatcher
		workerSrv  *asynq.Server
	)
	switch cfg.Jobs.Dispatcher {
	case config.DispatcherAsynq:
		redisOpt := asynq.RedisClientOpt{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
		asynqClient := asynq.NewClient(redisOpt)
		defer asynqClient.Close()
		dispatcher = worker.NewAsynqDispatcher(asynqClient, cfg.Jobs.TaskTimeout, cfg.Jobs.Retention)

		// The worker server runs in-process so hub events reach this
		// process's subscribers.
		workerSrv = newWorkerServer(redisOpt, cfg, classifier, log)
	default:
		local = worker.NewLocalDispatcher(base, classifier, cfg.Jobs.Concurrency, log)
		dispatcher = local
	}

	var verifier auth.TokenVerifier
	if cfg.JWT.Issuer != "" {
		v, err := auth.NewJWKSVerifier(base, cfg.JWT)
		if err != nil {
			return fmt.Errorf("failed to initialize OIDC verifier: %w", err)
		}
		verifier = v
	}

	sessions := session.New(jobStore, cfg.Session.TTL, cfg.Session.IdleTimeout, log)
	go sessions.Run(base, cfg.Session.JanitorInterval)
	go store.RunSweeper(base, jobStore, cfg.Jobs.SweepInterval, cfg.Jobs.Retention, log)

	app := server.New(server.Deps{
		Config:     cfg,
		Log:        log,
		Redis:      redisClient,
		Store:      jobStore,
		Hub:        hub,
		Provider:   provider,
		Sessions:   sessions,
		Dispatcher: dispatcher,
		Verifier:   verifier,
		RequestLog: true,
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error(err, "server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.Info("server starting", "addr", addr, "store", cfg.Jobs.Store,
		"dispatcher", cfg.Jobs.Dispatcher, "provider", provider.Name())
	listenErr := app.Listen(addr)

	// In-flight jobs observe the cancelled context and fail as interrupted.
	cancel()
	if local != nil {
		local.Wait()
	}
	if workerSrv != nil {
		workerSrv.Shutdown()
	}
	hub.Close()

	if listenErr != nil {
		return fmt.Errorf("server error: %w", listenErr)
	}
	return nil
}

func newProvider(cfg *config.Config) (client.Provider, error) {
	switch cfg.Provider.Mode {
	case config.ProviderSpotify:
		return client.NewSpotifyProvider(cfg.Provider), nil
	default:
		p, err := client.LoadFixture(cfg.Provider.FixturePath)
		if err != nil {
			return nil, fmt.Errorf("failed to load provider fixture: %w", err)
		}
		return p, nil
	}
}

func newWorkerServer(redisOpt asynq.RedisClientOpt, cfg *config.Config, w *worker.ClassifyWorker, log logr.Logger) *asynq.Server {
	srv := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Jobs.Concurrency,
		Queues: map[string]int{
			worker.QueueClassify: 1,
		},
		Logger: logger.AsynqLogger{Log: log.WithName("asynq")},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(worker.TaskTypeClassify, w.ProcessTask)

	if err := srv.Start(mux); err != nil {
		log.Error(err, "asynq worker error")
	}
	return srv
}
