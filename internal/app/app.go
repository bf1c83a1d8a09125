// Package app wires configuration, backing services and the booking services
// shared by the api and worker binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/adapters/database"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/adapters/providers/scheduling"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/adapters/queue"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/application/services"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/providers"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/clients/postgres"
	redisclient "github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/clients/redis"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/notifications"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/scheduler"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/config"
)

// App holds the long-lived dependencies of a process
type App struct {
	Config  *config.Config
	Metrics *observability.Metrics

	Postgres *postgres.Client
	Redis    *redisclient.Client
	Queue    providers.NotificationQueue

	Orchestrator *services.BookingOrchestrator
	Ingestor     *services.WebhookIngestor
	Dispatcher   *services.NotificationDispatcher
	Reminders    *services.ReminderSweeper
	Completions  *services.CompletionSweeper
	LedgerPurger *services.WebhookLedgerPurger

	otelShutdown func(context.Context) error
}

// New connects to the backing services cfg selects and builds the booking
// services on top of them.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := observability.GetLogger()
	a := &App{Config: cfg}

	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(ctx, cfg.OTEL.ServiceName, cfg.OTEL.ServiceVersion, cfg.OTEL.Endpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("failed to set up OpenTelemetry")
		} else {
			a.otelShutdown = shutdown
			logger.Info().Str("endpoint", cfg.OTEL.Endpoint).Msg("OpenTelemetry initialized")
		}
	}

	metrics, err := observability.InitMetrics()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize metrics: %w", err)
	}
	a.Metrics = metrics

	loc, err := cfg.Booking.Location()
	if err != nil {
		return nil, fmt.Errorf("invalid booking timezone: %w", err)
	}

	a.Postgres, err = postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		return nil, err
	}

	if cfg.Queue.Driver == queue.DriverRedis || cfg.Queue.Driver == "" {
		a.Redis, err = redisclient.NewClient(ctx, &cfg.Redis)
		if err != nil {
			a.Close(ctx)
			return nil, err
		}
	}

	a.Queue, err = queue.New(cfg, a.Redis)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize notification queue: %w", err)
	}

	provider, err := scheduling.NewScheduleProvider(scheduling.ScheduleProviderConfig{
		Provider: cfg.Scheduling.Provider,
		Calendly: scheduling.CalendlyConfig{
			APIKey:        cfg.Scheduling.CalendlyAPIKey,
			BaseURL:       cfg.Scheduling.CalendlyBaseURL,
			EventType:     cfg.Scheduling.CalendlyEventType,
			WebhookSecret: cfg.Scheduling.CalendlyWebhookSecret,
			Timeout:       cfg.Scheduling.Timeout,
		},
		Timeout:         cfg.Scheduling.Timeout,
		BreakerFailures: cfg.Scheduling.BreakerFailures,
		BreakerCooldown: cfg.Scheduling.BreakerCooldown,
	})
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize scheduling provider: %w", err)
	}

	gateway, err := notifications.NewGateway(ctx, cfg)
	if err != nil {
		a.Close(ctx)
		return nil, fmt.Errorf("failed to initialize notification gateway: %w", err)
	}

	bookings := database.NewBookingAdapter(a.Postgres)
	directory := database.NewDirectoryAdapter(a.Postgres)
	ledger := database.NewWebhookEventAdapter(a.Postgres)
	audit := services.NewAuditRecorder(database.NewAuditAdapter(a.Postgres))

	machine := services.NewBookingStateMachine(bookings, audit, metrics)
	a.Dispatcher = services.NewNotificationDispatcher(bookings, directory, gateway, cfg.Notification.Timeout, loc, metrics)
	a.Orchestrator = services.NewBookingOrchestrator(
		bookings, directory, provider, a.Queue, machine, audit, a.Dispatcher, metrics,
		services.OrchestratorConfig{Location: loc},
	)
	a.Ingestor = services.NewWebhookIngestor(provider, ledger, a.Orchestrator, metrics)
	a.Reminders = services.NewReminderSweeper(bookings, a.Orchestrator, services.ReminderSweeperConfig{
		Lookahead:    cfg.Reminder.Lookahead,
		IncludeUpper: cfg.Reminder.IncludeUpperBound,
		BatchSize:    cfg.Reminder.BatchSize,
	}, metrics)
	a.Completions = services.NewCompletionSweeper(bookings, machine, cfg.Booking.CompletionGrace, cfg.Reminder.BatchSize)
	a.LedgerPurger = services.NewWebhookLedgerPurger(ledger, cfg.Webhook.Retention)

	return a, nil
}

// NotificationWorker returns a worker pool draining the application queue
func (a *App) NotificationWorker() *services.NotificationWorker {
	return services.NewNotificationWorker(a.Queue, a.Dispatcher, a.Config.Queue.Workers)
}

// Scheduler registers the periodic maintenance jobs on a new scheduler
func (a *App) Scheduler(ctx context.Context) (*scheduler.Scheduler, error) {
	s, err := scheduler.New()
	if err != nil {
		return nil, err
	}

	jobs := []scheduler.Job{
		{
			Name:       "reminder-sweep",
			Interval:   a.Config.Reminder.Interval,
			RunOnStart: true,
			Run: func(ctx context.Context) error {
				_, err := a.Reminders.Sweep(ctx)
				return err
			},
		},
		{
			Name:     "completion-sweep",
			Interval: a.Config.Booking.CompletionSweep,
			Run: func(ctx context.Context) error {
				_, err := a.Completions.Sweep(ctx)
				return err
			},
		},
		{
			Name:     "webhook-ledger-purge",
			Interval: a.Config.Webhook.PurgeInterval,
			Run: func(ctx context.Context) error {
				_, err := a.LedgerPurger.Purge(ctx)
				return err
			},
		},
	}
	for _, job := range jobs {
		if _, err := s.Register(ctx, job); err != nil {
			_ = s.Shutdown()
			return nil, fmt.Errorf("failed to register %s: %w", job.Name, err)
		}
	}
	return s, nil
}

// Close releases backing services. It is safe on a partially built App.
func (a *App) Close(ctx context.Context) {
	logger := observability.GetLogger()
	var errs []error
	if a.Queue != nil {
		errs = append(errs, a.Queue.Close())
	}
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.Postgres != nil {
		errs = append(errs, a.Postgres.Close())
	}
	if a.otelShutdown != nil {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		errs = append(errs, a.otelShutdown(shutdownCtx))
	}
	if err := errors.Join(errs...); err != nil {
		logger.Error().Err(err).Msg("error while closing backing services")
	}
}
