package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crewtrack/internal/config"
	"crewtrack/internal/logger"
	"crewtrack/internal/notify"
	"crewtrack/internal/repository"
	"crewtrack/internal/service"

	"gorm.io/gorm"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	log := logger.Setup(cfg.LogLevel)

	loc, err := cfg.Location()
	if err != nil {
		log.Error("timezone", "error", err)
		os.Exit(1)
	}
	clock := service.Clock(func() time.Time { return time.Now().In(loc) })

	var db *gorm.DB
	if cfg.UseDatabase {
		db, err = repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Error("db", "error", err)
			os.Exit(1)
		}
		if sqlDB, err := db.DB(); err == nil {
			defer sqlDB.Close()
		}
	}

	stores := repository.NewStores(cfg.DataDir, db)
	if err := stores.Badges.EnsureCatalog(ctx); err != nil {
		log.Error("badge catalog", "error", err)
		os.Exit(1)
	}

	achievements := service.NewAchievementService(stores.Users, stores.Badges, clock)
	dispatcher := notify.NewDispatcher(
		notify.NewEmailChannel(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword, cfg.SMTPUseTLS, cfg.FromEmail),
		notify.NewWebhookChannel(cfg.WebhookSender),
	)
	notifier := notify.NewService(stores, achievements, dispatcher, clock)

	scheduler := service.NewSchedulerService(loc)
	if _, err := scheduler.ScheduleDaily(cfg.SummaryHour, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := notifier.RunSummaryPass(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("summary pass", "error", err)
		}
	}); err != nil {
		log.Error("schedule summary pass", "error", err)
		os.Exit(1)
	}
	if _, err := scheduler.ScheduleInterval(cfg.OverdueInterval, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := notifier.RunOverduePass(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("overdue pass", "error", err)
		}
	}); err != nil {
		log.Error("schedule overdue pass", "error", err)
		os.Exit(1)
	}

	scheduler.Start()
	defer scheduler.Stop()

	log.Info("notifier started",
		"summary_hour", cfg.SummaryHour,
		"overdue_interval", cfg.OverdueInterval.String(),
		"database", cfg.UseDatabase)

	<-ctx.Done()
	log.Info("shutdown complete")
}
