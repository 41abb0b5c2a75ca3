package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"

	"wheelshare/internal/notifier"
	"wheelshare/internal/reservations/arbiter"
	"wheelshare/internal/reservations/calendar"
	"wheelshare/internal/reservations/handler"
	"wheelshare/internal/reservations/repository"
	"wheelshare/internal/reservations/service"
	"wheelshare/internal/reservations/sweeper"
	"wheelshare/pkg/app"
	"wheelshare/pkg/config"
	kafka_config "wheelshare/pkg/kafka/config"
)

const serviceName = "reservations"

func main() {
	_ = godotenv.Load()

	cfg := config.Load(serviceName)
	cfg.SetMongo()
	defer cfg.GracefulShutdown()

	events, err := notifier.New(kafka_config.Load(), cfg.KafkaBookingTopic, serviceName, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to create booking event notifier", "error", err)
	}
	defer events.Close()

	bookings := repository.NewMongoBookingRepository(cfg)
	vehicles := repository.NewMongoVehicleRepository(cfg)
	idx := calendar.NewIndex()
	locks := arbiter.NewVehicleLocks(cfg.LockWaitTimeout)

	reservations := service.NewReservationService(cfg, bookings, vehicles, idx, locks, events)

	// The calendar index is in-memory; hydrate it from the booking store
	// before accepting traffic.
	hydrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := reservations.RebuildCalendar(hydrateCtx); err != nil {
		cfg.Log.Fatal("Failed to rebuild calendar index", "error", err)
	}

	sweep, err := sweeper.New(cfg.SweepSchedule, reservations, cfg.Log)
	if err != nil {
		cfg.Log.Fatal("Failed to schedule completion sweep", "error", err)
	}
	sweep.Start()
	defer sweep.Stop()

	application := app.NewApplication(cfg)
	application.RegisterHandlers(
		handler.NewBookingHandler(reservations, cfg.Log),
		handler.NewHealthHandler(cfg),
	)

	if err := application.Run(); err != nil {
		cfg.Log.Fatal("HTTP server failed", "error", err)
	}
}
