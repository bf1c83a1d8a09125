package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/adapters/queue"
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
	observability.InitLogger(cfg.OTEL.ServiceName+"-worker", cfg.Env, cfg.LogLevel)
	logger := observability.GetLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize application")
	}
	defer application.Close(ctx)

	sched, err := application.Scheduler(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize scheduler")
	}
	sched.Start()
	logger.Info().Int("jobs", sched.Jobs()).Msg("maintenance scheduler started")

	// Jobs in flight finish on their own context after a signal.
	var worker *services.NotificationWorker
	workerCtx, cancelWorker := context.WithCancel(context.Background())
	defer cancelWorker()
	workerDone := make(chan struct{})
	if cfg.Queue.Driver != queue.DriverMemory {
		worker = application.NotificationWorker()
		go func() {
			defer close(workerDone)
			worker.Run(workerCtx)
		}()
		logger.Info().Str("driver", cfg.Queue.Driver).Int("workers", cfg.Queue.Workers).Msg("notification worker started")
	} else {
		close(workerDone)
		logger.Warn().Msg("memory queue is drained by the api process; only scheduled jobs run here")
	}

	<-ctx.Done()
	logger.Info().Msg("worker shutting down")

	if err := sched.Shutdown(); err != nil {
		logger.Error().Err(err).Msg("error during scheduler shutdown")
	}
	if worker != nil {
		drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		if err := worker.Drain(drainCtx, workerDone); err != nil {
			logger.Warn().Err(err).Msg("notification worker did not stop before shutdown timeout")
		}
		cancel()
	}
	cancelWorker()
	<-workerDone
	logger.Info().Msg("worker stopped")
}
