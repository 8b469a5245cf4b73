package main

import (
	"time"

	"github.com/paceline/paceline/config"
	"github.com/paceline/paceline/models"
	"github.com/paceline/paceline/routes"
	"github.com/paceline/paceline/services"
	"github.com/paceline/paceline/utils"
)

func main() {
	cfg := config.Load()

	// Initialize logger early
	if err := utils.InitLogger(cfg); err != nil {
		panic(err)
	}

	db := config.InitDatabase(
		&models.User{},
		&models.DailyLog{},
		&models.StreakState{},
		&models.ShieldInventory{},
		&models.Observation{},
	)

	store := services.NewGormStore(db)
	journal := services.NewObservationJournal(db)
	clock := services.NewClock()
	tiers := services.NewStaticTiers()
	events := utils.RedisPublisher{Channel: cfg.EventChannel}

	tracker := services.NewTracker(store, journal, clock, tiers, services.EngineConfig{
		Precedence:      cfg.ProviderPrecedence,
		ShieldOrder:     services.ConsumeOrder(cfg.ShieldConsumeOrder),
		DefaultTimezone: cfg.DefaultTimezone,
	}, events)

	minInterval := time.Duration(cfg.ReconcileIntervalMinutes) * time.Minute
	reconciler := services.NewReconciler(tracker, store, journal, clock, tiers, utils.RedisThrottle{}, minInterval)
	// Background sweep ticks hourly; the per-user throttle enforces the real cadence
	reconciler.Start(store, time.Hour)

	r := routes.SetupRouter(db, tracker, reconciler)

	utils.Sugar.Infof("Starting server on port %s (graceful)", cfg.AppPort)
	if err := utils.GraceServer(":"+cfg.AppPort, r); err != nil {
		utils.Sugar.Fatalf("server stopped with error: %v", err)
	}
}
