package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	DispatcherLocal = "local"
	DispatcherAsynq = "asynq"

	ProviderFixture = "fixture"
	ProviderSpotify = "spotify"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Jobs      JobsConfig
	Session   SessionConfig
	Stream    StreamConfig
	Playlists PlaylistsConfig
	Provider  ProviderConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// JWTConfig enables bearer tokens when Secret or Issuer is set. Without
// either the X-Session-Id header identifies the session.
type JWTConfig struct {
	Secret     string
	Expiration int // hours

	// Issuer enables OIDC tokens verified against the issuer's JWKS.
	Issuer   string
	Audience string
	JWKSURL  string // discovered from Issuer when empty
}

// BearerAuth reports whether requests must carry a bearer token.
func (j JWTConfig) BearerAuth() bool {
	return j.Secret != "" || j.Issuer != ""
}

type RateLimitConfig struct {
	SnapshotsPerMin  int
	PlaylistsPerHour int
}

type JobsConfig struct {
	Store         string
	Dispatcher    string
	BatchSize     int
	Concurrency   int
	Retention     time.Duration
	SweepInterval time.Duration
	TaskTimeout   time.Duration
}

type SessionConfig struct {
	TTL             time.Duration
	IdleTimeout     time.Duration
	JanitorInterval time.Duration
}

type StreamConfig struct {
	KeepAlive time.Duration
	Buffer    int
}

type PlaylistsConfig struct {
	Concurrency int
	NameSuffix  string
	Description string
	Public      bool
}

type ProviderConfig struct {
	Mode              string
	FixturePath       string
	RequestsPerSecond float64
	Burst             int
	Timeout           time.Duration
	Spotify           SpotifyConfig
}

type SpotifyConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	TokenURL     string
}

// IsProduction reports whether the server runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Validate rejects combinations the server cannot run with.
func (c *Config) Validate() error {
	switch c.Jobs.Store {
	case StoreMemory, StoreRedis:
	default:
		return fmt.Errorf("jobs.store: unknown value %q", c.Jobs.Store)
	}
	switch c.Jobs.Dispatcher {
	case DispatcherLocal, DispatcherAsynq:
	default:
		return fmt.Errorf("jobs.dispatcher: unknown value %q", c.Jobs.Dispatcher)
	}
	if !c.Redis.Enabled && (c.Jobs.Store == StoreRedis || c.Jobs.Dispatcher == DispatcherAsynq) {
		return fmt.Errorf("redis.enabled must be true for store %q and dispatcher %q", c.Jobs.Store, c.Jobs.Dispatcher)
	}
	// Asynq workers may run in another process and can only reach a shared store.
	if c.Jobs.Dispatcher == DispatcherAsynq && c.Jobs.Store != StoreRedis {
		return fmt.Errorf("dispatcher %q requires store %q", DispatcherAsynq, StoreRedis)
	}
	if c.Jobs.BatchSize < 1 {
		return fmt.Errorf("jobs.batch_size must be positive, got %d", c.Jobs.BatchSize)
	}
	if c.Jobs.Concurrency < 1 {
		return fmt.Errorf("jobs.concurrency must be positive, got %d", c.Jobs.Concurrency)
	}
	if c.Playlists.Concurrency < 1 {
		return fmt.Errorf("playlists.concurrency must be positive, got %d", c.Playlists.Concurrency)
	}
	switch c.Provider.Mode {
	case ProviderFixture:
		if c.Provider.FixturePath == "" {
			return fmt.Errorf("provider.fixture_path is required in fixture mode")
		}
	case ProviderSpotify:
	default:
		return fmt.Errorf("provider.mode: unknown value %q", c.Provider.Mode)
	}
	return nil
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("SPOTIFY_CLIENT_ID")
	readSecret("SPOTIFY_CLIENT_SECRET")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.enabled", "REDIS_ENABLED")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = v.BindEnv("jwt.issuer", "OIDC_ISSUER")
	_ = v.BindEnv("jwt.audience", "OIDC_AUDIENCE")
	_ = v.BindEnv("jwt.jwks_url", "OIDC_JWKS_URL")
	_ = v.BindEnv("jobs.store", "JOBS_STORE")
	_ = v.BindEnv("jobs.dispatcher", "JOBS_DISPATCHER")
	_ = v.BindEnv("jobs.batch_size", "JOBS_BATCH_SIZE")
	_ = v.BindEnv("jobs.concurrency", "JOBS_CONCURRENCY")
	_ = v.BindEnv("jobs.retention", "JOBS_RETENTION")
	_ = v.BindEnv("session.ttl", "SESSION_TTL")
	_ = v.BindEnv("session.idle_timeout", "SESSION_IDLE_TIMEOUT")
	_ = v.BindEnv("stream.keepalive", "STREAM_KEEPALIVE")
	_ = v.BindEnv("playlists.concurrency", "PLAYLISTS_CONCURRENCY")
	_ = v.BindEnv("provider.mode", "PROVIDER_MODE")
	_ = v.BindEnv("provider.fixture_path", "PROVIDER_FIXTURE_PATH")
	_ = v.BindEnv("provider.requests_per_second", "PROVIDER_RPS")
	_ = v.BindEnv("provider.spotify.client_id", "SPOTIFY_CLIENT_ID")
	_ = v.BindEnv("provider.spotify.client_secret", "SPOTIFY_CLIENT_SECRET")
	_ = v.BindEnv("provider.spotify.base_url", "SPOTIFY_BASE_URL")
	_ = v.BindEnv("provider.spotify.token_url", "SPOTIFY_TOKEN_URL")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("ratelimit.snapshots_per_min", 10)
	v.SetDefault("ratelimit.playlists_per_hour", 20)

	// Job defaults
	v.SetDefault("jobs.store", StoreMemory)
	v.SetDefault("jobs.dispatcher", DispatcherLocal)
	v.SetDefault("jobs.batch_size", 50)
	v.SetDefault("jobs.concurrency", 4)
	v.SetDefault("jobs.retention", "24h")
	v.SetDefault("jobs.sweep_interval", "10m")
	v.SetDefault("jobs.task_timeout", "30m")

	// Session defaults
	v.SetDefault("session.ttl", "1h")
	v.SetDefault("session.idle_timeout", "2h")
	v.SetDefault("session.janitor_interval", "5m")

	// Stream defaults
	v.SetDefault("stream.keepalive", "15s")
	v.SetDefault("stream.buffer", 16)

	// Playlist defaults
	v.SetDefault("playlists.concurrency", 4)
	v.SetDefault("playlists.name_suffix", " GenreSorter")
	v.SetDefault("playlists.description", "My custom playlist")
	v.SetDefault("playlists.public", false)

	// Provider defaults
	v.SetDefault("provider.mode", ProviderFixture)
	v.SetDefault("provider.fixture_path", "fixtures/library.json")
	v.SetDefault("provider.requests_per_second", 10)
	v.SetDefault("provider.burst", 5)
	v.SetDefault("provider.timeout", "15s")
	v.SetDefault("provider.spotify.base_url", "https://api.spotify.com/v1")
	v.SetDefault("provider.spotify.token_url", "https://accounts.spotify.com/api/token")

	// Try to read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Enabled:  v.GetBool("redis.enabled"),
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
			Issuer:     v.GetString("jwt.issuer"),
			Audience:   v.GetString("jwt.audience"),
			JWKSURL:    v.GetString("jwt.jwks_url"),
		},
		RateLimit: RateLimitConfig{
			SnapshotsPerMin:  v.GetInt("ratelimit.snapshots_per_min"),
			PlaylistsPerHour: v.GetInt("ratelimit.playlists_per_hour"),
		},
		Jobs: JobsConfig{
			Store:         v.GetString("jobs.store"),
			Dispatcher:    v.GetString("jobs.dispatcher"),
			BatchSize:     v.GetInt("jobs.batch_size"),
			Concurrency:   v.GetInt("jobs.concurrency"),
			Retention:     v.GetDuration("jobs.retention"),
			SweepInterval: v.GetDuration("jobs.sweep_interval"),
			TaskTimeout:   v.GetDuration("jobs.task_timeout"),
		},
		Session: SessionConfig{
			TTL:             v.GetDuration("session.ttl"),
			IdleTimeout:     v.GetDuration("session.idle_timeout"),
			JanitorInterval: v.GetDuration("session.janitor_interval"),
		},
		Stream: StreamConfig{
			KeepAlive: v.GetDuration("stream.keepalive"),
			Buffer:    v.GetInt("stream.buffer"),
		},
		Playlists: PlaylistsConfig{
			Concurrency: v.GetInt("playlists.concurrency"),
			NameSuffix:  v.GetString("playlists.name_suffix"),
			Description: v.GetString("playlists.description"),
			Public:      v.GetBool("playlists.public"),
		},
		Provider: ProviderConfig{
			Mode:              v.GetString("provider.mode"),
			FixturePath:       v.GetString("provider.fixture_path"),
			RequestsPerSecond: v.GetFloat64("provider.requests_per_second"),
			Burst:             v.GetInt("provider.burst"),
			Timeout:           v.GetDuration("provider.timeout"),
			Spotify: SpotifyConfig{
				ClientID:     v.GetString("provider.spotify.client_id"),
				ClientSecret: v.GetString("provider.spotify.client_secret"),
				BaseURL:      v.GetString("provider.spotify.base_url"),
				TokenURL:     v.GetString("provider.spotify.token_url"),
			},
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
