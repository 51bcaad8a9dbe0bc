// cmd/server/main.go
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/replenlabs/supplyengine/internal/api"
	"github.com/replenlabs/supplyengine/internal/config"
	"github.com/replenlabs/supplyengine/internal/engine"
	"github.com/replenlabs/supplyengine/internal/notify"
	"github.com/replenlabs/supplyengine/internal/report"
	"github.com/replenlabs/supplyengine/internal/service"
	"github.com/replenlabs/supplyengine/internal/store"
	"github.com/replenlabs/supplyengine/pkg/logger"
)

func main() {
	cfg := config.Load()

	logger.SetLevel(cfg.Server.Mode)
	if cfg.Server.Mode == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	kv, err := store.Open(cfg.Store)
	if err != nil {
		logger.Log.Fatal().Err(err).Msg("Failed to open record store")
	}
	catalog := store.NewCatalog(kv)

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.Notify.Enabled {
		if rs, ok := kv.(*store.RedisStore); ok {
			notifier = notify.NewRedisNotifier(rs.Client(), cfg.Notify.Channel)
		} else {
			logger.Log.Warn().Msg("Anomaly channel requires the redis store driver, using log notifier")
		}
	}

	var publisher report.Publisher = report.LogPublisher{}
	if cfg.Report.Enabled {
		op, err := report.NewObjectPublisher(cfg.Report)
		if err != nil {
			logger.Log.Fatal().Err(err).Msg("Failed to configure report sink")
		}
		publisher = op
	}

	orch := engine.New(catalog, cfg.Engine, notifier, publisher)
	engineService := service.NewEngineService(catalog, orch, cfg.Engine)

	workerCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()
	engineService.Start(workerCtx)

	router := api.NewRouter(&api.Services{EngineService: engineService}, cfg.Server.AllowedOrigins)
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	go func() {
		logger.Log.Info().Str("port", cfg.Server.Port).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Let queued runs reach a terminal state before exiting.
	engineService.Stop()

	logger.Log.Info().Msg("Server exiting")
}
