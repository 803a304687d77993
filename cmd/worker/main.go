package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/comitanigiacomo/kanso-tablesync/internal/app"
	"github.com/comitanigiacomo/kanso-tablesync/internal/config"
)

func main() {
	_ = godotenv.Load()

	cfg := config.MustLoad()
	logger := config.SetupLogger(cfg)

	if cfg.QueueBackend != "redis" {
		logger.Fatal().Str("queue_backend", cfg.QueueBackend).Msg("standalone worker needs QUEUE_BACKEND=redis")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to start")
	}
	defer application.Close()

	worker := application.StartWorkers(ctx)

	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(application.Registry, promhttp.HandlerOpts{})))
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router, ReadTimeout: cfg.ReadTimeout}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("worker metrics listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("metrics server error")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("stop signal received, draining workers")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)

	worker.Wait()
	logger.Info().Msg("worker stopped")
}
