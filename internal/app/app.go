// Package app wires the adapters and services shared by the entrypoints.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/comitanigiacomo/kanso-tablesync/internal/adapters/cache"
	"github.com/comitanigiacomo/kanso-tablesync/internal/adapters/datasource"
	adapterHTTP "github.com/comitanigiacomo/kanso-tablesync/internal/adapters/handler/http"
	"github.com/comitanigiacomo/kanso-tablesync/internal/adapters/importer"
	"github.com/comitanigiacomo/kanso-tablesync/internal/adapters/queue"
	"github.com/comitanigiacomo/kanso-tablesync/internal/adapters/repository"
	"github.com/comitanigiacomo/kanso-tablesync/internal/adapters/tracklog"
	"github.com/comitanigiacomo/kanso-tablesync/internal/config"
	"github.com/comitanigiacomo/kanso-tablesync/internal/core/domain"
	"github.com/comitanigiacomo/kanso-tablesync/internal/core/services"
	"github.com/comitanigiacomo/kanso-tablesync/internal/core/workers"
	"github.com/comitanigiacomo/kanso-tablesync/internal/telemetry"
)

type App struct {
	Config   config.Config
	Logger   zerolog.Logger
	DB       *sqlx.DB
	Redis    *redis.Client
	Registry *prometheus.Registry

	Repo          domain.SynchronizationRepository
	Queue         domain.JobQueue
	Syncs         *services.SynchronizationService
	Auth          *services.AuthService
	Tokens        *services.TokenService
	payloadStores *importer.PostgresPayloadStore
	lease         workers.Lease

	startTime time.Time
}

// New connects to Postgres and Redis and builds the services. Redis is only
// mandatory with the redis queue backend; without it logs and queue stay in
// process memory.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*App, error) {
	a := &App{
		Config:    cfg,
		Logger:    logger,
		Registry:  prometheus.NewRegistry(),
		startTime: time.Now(),
	}
	a.Registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	logger.Info().Str("host", cfg.DB.Host).Str("db", cfg.DB.Name).Msg("connecting to database")
	db, err := sqlx.Connect("pgx", cfg.DB.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(25)
	db.SetConnMaxLifetime(5 * time.Minute)
	a.DB = db

	rdb, err := cache.NewRedisClient(ctx, cfg.Redis)
	switch {
	case err == nil:
		a.Redis = rdb
	case cfg.QueueBackend == "redis":
		_ = db.Close()
		return nil, err
	default:
		logger.Warn().Err(err).Msg("redis unavailable, using in-memory logs and queue")
	}

	var logs domain.LogStore = tracklog.NewMemoryLogStore()
	var repo domain.SynchronizationRepository = repository.NewPostgresSynchronizationRepository(db)
	if a.Redis != nil {
		logs = tracklog.NewRedisLogStore(a.Redis)
		repo = repository.NewCachedSynchronizationRepository(repo, a.Redis, logger)
	}
	a.Repo = repo

	if cfg.QueueBackend == "redis" {
		a.Queue = queue.NewRedisJobQueue(a.Redis, cfg.QueueKey)
		a.lease = queue.NewRedisLease(a.Redis, cfg.QueueKey+":lease")
	} else {
		a.Queue = queue.NewMemoryJobQueue(1000)
		a.lease = queue.NewMemoryLease()
	}

	users := repository.NewPostgresUserRepository(db.DB)
	oauth := repository.NewPostgresOAuthRepository(db)

	factory := datasource.NewFactory(cfg.DatasourceAPIURL, &http.Client{Timeout: cfg.DownloadTimeout})
	defaultCreds := domain.DatabaseCredentials{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		Username: cfg.DB.User,
		Password: cfg.DB.Password,
		Database: cfg.DB.Name,
		SSLMode:  cfg.DB.SSLMode,
	}
	a.payloadStores = importer.NewPostgresPayloadStore(db, defaultCreds)

	a.Syncs = services.NewSynchronizationService(services.SynchronizationDependencies{
		Repo:     repo,
		Users:    users,
		Logs:     logs,
		Queue:    a.Queue,
		Resolver: services.NewDownloaderResolver(factory, oauth, cfg.DownloadTimeout, logger),
		Runner:   importer.NewStagingRunner(a.payloadStores, logger),
		OAuth:    oauth,
		Usage:    users,
		Metrics:  telemetry.NewMetrics(a.Registry),
		Logger:   logger,
		DefaultCredentials: defaultCreds,
	})

	a.Tokens = services.NewTokenService(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL, users)
	a.Auth = services.NewAuthService(users, a.Tokens)

	return a, nil
}

func (a *App) Router() *gin.Engine {
	gin.SetMode(a.Config.GinMode)
	return adapterHTTP.NewRouter(adapterHTTP.RouterDependencies{
		AuthHandler:            adapterHTTP.NewAuthHandler(a.Auth),
		SynchronizationHandler: adapterHTTP.NewSynchronizationHandler(a.Syncs),
		TokenService:           a.Tokens,
		DB:                     a.DB,
		Redis:                  a.Redis,
		Logger:                 a.Logger,
		Registry:               a.Registry,
		RateLimit:              a.Config.RateLimit,
		RateWindow:             a.Config.RateWindow,
		CORSOrigins:            a.Config.CORSAllowedOrigins,
		StartTime:              a.startTime,
	})
}

// StartWorkers launches the queue consumers and the scheduler. The returned
// worker can be waited on after ctx is cancelled.
func (a *App) StartWorkers(ctx context.Context) *workers.SyncWorker {
	worker := workers.NewSyncWorker(a.Queue, a.Syncs, a.lease, a.Config.WorkerConcurrency, a.Logger)
	worker.Start(ctx)

	scheduler := workers.NewScheduler(a.Repo, a.Syncs, a.lease, a.Config.SchedulerLeaseTTL, a.Config.SchedulerInterval, a.Config.SchedulerBatch, a.Logger)
	scheduler.Start(ctx)
	return worker
}

func (a *App) Close() {
	if err := a.payloadStores.Close(); err != nil {
		a.Logger.Warn().Err(err).Msg("failed to close payload pools")
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	_ = a.DB.Close()
}
