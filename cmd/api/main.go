package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/adapters/queue"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/api/handlers"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/api/routes"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/app"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/application/services"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-api", cfg.Env, cfg.LogLevel)
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer application.Close(ctx)

	// An in-process queue is only visible to this process, so it is drained
	// here. The pool outlives the signal context so buffered jobs still go
	// out during shutdown.
	var worker *services.NotificationWorker
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	workerDone := make(chan struct{})
	if cfg.Queue.Driver == queue.DriverMemory {
		worker = application.NotificationWorker()
		go func() {
			defer close(workerDone)
			worker.Run(workerCtx)
		}()
		logger.Info().Int("workers", cfg.Queue.Workers).Msg("in-process notification worker started")
	} else {
		close(workerDone)
	}

	router := routes.NewRouter(
		handlers.NewBookingHandler(application.Orchestrator),
		handlers.NewCalendlyWebhookHandler(application.Ingestor),
		cfg.Server.AllowedOrigins,
		application.Metrics,
	)

	serverAddr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router.SetupRoutes(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", serverAddr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		logger.Error().Err(err).Msg("server failed")
		stop()
	}
	logger.Info().Msg("server shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("error during server shutdown")
	}
	if worker != nil {
		if err := worker.Drain(shutdownCtx, workerDone); err != nil {
			logger.Warn().Err(err).Msg("notification queue not drained before shutdown timeout")
		}
	}
	cancelWorker()
	<-workerDone

	logger.Info().Msg("server stopped")
}
