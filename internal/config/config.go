// Package config loads application settings from the environment.
package config

import (
	"errors"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

// DSN builds a postgres connection url. User and password are escaped.
func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     net.JoinHostPort(d.Host, d.Port),
		Path:     "/" + d.Name,
		RawQuery: url.Values{"sslmode": {d.SSLMode}}.Encode(),
	}
	return u.String()
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type Config struct {
	// Server
	Port         string
	GinMode      string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Logging
	LogLevel  string
	LogPretty bool

	DB    DatabaseConfig
	Redis RedisConfig

	// Auth
	JWTSecret string
	JWTIssuer string
	TokenTTL  time.Duration

	// Workers
	WorkerConcurrency int
	SchedulerInterval time.Duration
	SchedulerBatch    int
	SchedulerLeaseTTL time.Duration
	QueueBackend      string
	QueueKey          string

	// Rate limiting
	RateLimit  int
	RateWindow time.Duration

	CORSAllowedOrigins []string

	// Downloads
	DownloadTimeout  time.Duration
	DatasourceAPIURL string
}

func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load() (Config, error) {
	cfg := Config{
		Port:         getenv("PORT", "8080"),
		GinMode:      strings.ToLower(getenv("GIN_MODE", "release")),
		ReadTimeout:  getdur("READ_TIMEOUT", 10*time.Second),
		WriteTimeout: getdur("WRITE_TIMEOUT", 10*time.Second),
		IdleTimeout:  getdur("IDLE_TIMEOUT", 120*time.Second),

		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		DB: DatabaseConfig{
			Host:     getenv("DB_HOST", "localhost"),
			Port:     getenv("DB_PORT", "5432"),
			User:     getenv("DB_USER", "postgres"),
			Password: getenv("DB_PASSWORD", ""),
			Name:     getenv("DB_NAME", "tablesync"),
			SSLMode:  getenv("DB_SSLMODE", "disable"),
		},
		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		JWTSecret: getenv("JWT_SECRET", ""),
		JWTIssuer: getenv("JWT_ISSUER", "kanso-tablesync"),
		TokenTTL:  getdur("TOKEN_TTL", 24*time.Hour),

		WorkerConcurrency: getint("WORKER_CONCURRENCY", 4),
		SchedulerInterval: getdur("SCHEDULER_INTERVAL", 30*time.Second),
		SchedulerBatch:    getint("SCHEDULER_BATCH", 100),
		SchedulerLeaseTTL: getdur("SCHEDULER_LEASE_TTL", 15*time.Minute),
		QueueBackend:      strings.ToLower(getenv("QUEUE_BACKEND", "redis")),
		QueueKey:          getenv("QUEUE_KEY", "tablesync:jobs"),

		RateLimit:  getint("RATE_LIMIT", 100),
		RateWindow: getdur("RATE_WINDOW", time.Minute),

		CORSAllowedOrigins: getlist("CORS_ALLOWED_ORIGINS"),

		DownloadTimeout:  getdur("DOWNLOAD_TIMEOUT", 60*time.Second),
		DatasourceAPIURL: getenv("DATASOURCE_API_URL", ""),
	}

	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return cfg, errors.New("JWT_SECRET must not be empty")
	}
	if cfg.TokenTTL <= 0 {
		return cfg, errors.New("TOKEN_TTL must be > 0")
	}
	if cfg.WorkerConcurrency < 1 {
		return cfg, errors.New("WORKER_CONCURRENCY must be >= 1")
	}
	if cfg.SchedulerInterval <= 0 {
		return cfg, errors.New("SCHEDULER_INTERVAL must be > 0")
	}
	if cfg.SchedulerBatch < 1 {
		return cfg, errors.New("SCHEDULER_BATCH must be >= 1")
	}
	switch cfg.QueueBackend {
	case "redis", "memory":
	default:
		return cfg, errors.New("QUEUE_BACKEND must be one of: redis, memory")
	}
	if cfg.RateLimit < 1 || cfg.RateWindow <= 0 {
		return cfg, errors.New("RATE_LIMIT must be >= 1 and RATE_WINDOW > 0")
	}
	if cfg.DownloadTimeout <= 0 {
		return cfg, errors.New("DOWNLOAD_TIMEOUT must be > 0")
	}

	return cfg, nil
}

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getlist(k string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(k), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// getdur accepts Go durations ("30s") or plain seconds ("30").
func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return def
}
