package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"portal_usap_backend/internal/bootstrap"
	"portal_usap_backend/internal/scheduler"
	"portal_usap_backend/platform/config"
	"portal_usap_backend/platform/db"
	"portal_usap_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	if cfg.GetRedisURL() == "" {
		panic("REDIS_URL is required for the scheduler process")
	}

	cfg.DatabaseAppName += "-scheduler"

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := bootstrap.WithRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	app, err := bootstrap.Build(ctx, cfg, pool, log)
	if err != nil {
		log.Error("failed to build modules", "error", err)
		panic("failed to build modules: " + err.Error())
	}
	defer app.Close()

	periodic, err := scheduler.NewPeriodic(cfg, app.Schedule, log)
	if err != nil {
		log.Error("failed to initialize periodic scheduler", "error", err)
		panic("failed to initialize periodic scheduler: " + err.Error())
	}
	go func() {
		if err := periodic.Run(ctx); err != nil {
			log.Error("periodic scheduler stopped", "error", err)
			stop()
		}
	}()

	worker, err := scheduler.NewWorker(cfg, app.Reconciler, app.Pusher(), log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	worker.Run(ctx)
	app.EventBus.Wait()
}
