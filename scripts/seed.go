package main

import (
	"context"
	"os"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/google/uuid"

	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/domain/entities"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/clients/postgres"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/internal/infrastructure/observability"
	"github.com/nordeim/ElderCare-SG-Compassionate-Daycare-Solutions-sub001/pkg/config"
)

// Seeds the local directory tables (users, centers, services) that are owned
// by other subsystems in production.
func main() {
	cfg, err := config.Load()
	if err != nil {
		observability.GetLogger().Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger("eldercare-seed", cfg.Env, cfg.LogLevel)
	logger := observability.GetLogger()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pgClient, err := postgres.NewClient(ctx, &cfg.Database)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pgClient.Close()
	db := goqu.New("postgres", pgClient.DB())

	if os.Getenv("RESET_DB") == "true" {
		logger.Warn().Msg("RESET_DB=true detected, truncating tables before seeding")
		if _, err := pgClient.DB().ExecContext(ctx, `TRUNCATE TABLE bookings, webhook_events, services, centers, users CASCADE`); err != nil {
			logger.Fatal().Err(err).Msg("failed to reset tables")
		}
	}

	phone := "+6591234567"
	users := []entities.User{
		{ID: uuid.NewString(), Name: "Tan Mei Ling", Email: "meiling.tan@example.sg", Phone: &phone, Locale: "en"},
		{ID: uuid.NewString(), Name: "Rajesh Kumar", Email: "rajesh.kumar@example.sg", Locale: "en"},
	}
	centers := []entities.Center{
		{
			ID: uuid.NewString(), Name: "Sunrise Eldercare Centre", Address: "12 Tampines Street 45, Singapore 529123",
			Phone: "+6567891234", Timezone: "Asia/Singapore", SchedulingExternalID: "https://api.calendly.com/event_types/sunrise-visit",
		},
		{
			ID: uuid.NewString(), Name: "Harmony Day Care @ Toa Payoh", Address: "190 Lorong 6 Toa Payoh, Singapore 310190",
			Phone: "+6562345678", Timezone: "Asia/Singapore", SchedulingExternalID: "https://api.calendly.com/event_types/harmony-visit",
		},
	}
	servicesByCenter := []entities.Service{
		{ID: uuid.NewString(), CenterID: centers[0].ID, Name: "Centre visit", DurationMinutes: 45},
		{ID: uuid.NewString(), CenterID: centers[0].ID, Name: "Trial day", DurationMinutes: 240},
		{ID: uuid.NewString(), CenterID: centers[1].ID, Name: "Centre visit", DurationMinutes: 60},
	}

	insert := func(table string, rows interface{}) {
		if _, err := db.Insert(table).Rows(rows).Executor().ExecContext(ctx); err != nil {
			logger.Fatal().Err(err).Str("table", table).Msg("failed to seed table")
		}
	}
	insert("users", users)
	insert("centers", centers)
	insert("services", servicesByCenter)

	for _, u := range users {
		logger.Info().Str("user_id", u.ID).Str("name", u.Name).Msg("seeded user")
	}
	for _, s := range servicesByCenter {
		logger.Info().Str("center_id", s.CenterID).Str("service_id", s.ID).Str("name", s.Name).Msg("seeded service")
	}
}
