// Package bootstrap is the composition root shared by the API and the
// scheduler process. It builds every module over one pool and event bus.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"time"

	"portal_usap_backend/internal/activity"
	"portal_usap_backend/internal/adapters/storage"
	"portal_usap_backend/internal/conversion"
	"portal_usap_backend/internal/crm"
	"portal_usap_backend/internal/deals"
	"portal_usap_backend/internal/email"
	"portal_usap_backend/internal/events"
	"portal_usap_backend/internal/history"
	apphttp "portal_usap_backend/internal/http"
	"portal_usap_backend/internal/leads"
	leadservice "portal_usap_backend/internal/leads/service"
	"portal_usap_backend/internal/notification"
	"portal_usap_backend/internal/partners"
	"portal_usap_backend/internal/reconcile"
	"portal_usap_backend/internal/scheduler"
	"portal_usap_backend/internal/webhook"
	"portal_usap_backend/platform/config"
	"portal_usap_backend/platform/logger"
	"portal_usap_backend/platform/validator"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const tokenCacheKey = "crm:zoho:access_token"

// App holds the built modules and the shared infrastructure behind them.
type App struct {
	EventBus *events.InMemoryBus
	Schedule scheduler.DailySchedule

	Activity     *activity.Module
	Partners     *partners.Module
	Leads        *leads.Module
	Deals        *deals.Module
	Webhook      *webhook.Module
	Sync         *reconcile.Module
	Notification *notification.Module

	Reconciler *reconcile.Reconciler

	closers []func() error
}

// Modules returns the HTTP modules in registration order.
func (a *App) Modules() []apphttp.Module {
	return []apphttp.Module{
		a.Partners,
		a.Leads,
		a.Deals,
		a.Activity,
		a.Notification,
		a.Webhook,
		a.Sync,
	}
}

// Close releases the Redis connections opened by Build.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
}

// Build wires the domain graph. Redis, MinIO and the CRM credentials are all
// optional; missing ones degrade to in-process locking, no archive and a
// warning respectively.
func Build(ctx context.Context, cfg *config.Config, pool *pgxpool.Pool, log *logger.Logger) (*App, error) {
	app := &App{
		EventBus: events.NewInMemoryBus(log),
		Schedule: scheduler.DailySchedule{Hour: cfg.GetSyncDailyHour(), Minute: cfg.GetSyncDailyMinute()},
	}
	val := validator.New()

	var rdb *redis.Client
	var queue *scheduler.Client
	if cfg.GetRedisURL() != "" {
		client, err := scheduler.NewRedisClient(cfg)
		if err != nil {
			return nil, fmt.Errorf("redis client: %w", err)
		}
		rdb = client
		app.closers = append(app.closers, rdb.Close)

		queue, err = scheduler.NewClient(cfg)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("task queue client: %w", err)
		}
		app.closers = append(app.closers, queue.Close)
	} else {
		log.Warn("REDIS_URL not configured; sync lock is process-local and CRM pushes run inline")
	}

	if !cfg.IsZohoEnabled() {
		log.Warn("zoho credentials not configured; CRM calls will fail until they are set")
	}
	tokenCfg := crm.TokenSourceConfig{
		ClientID:     cfg.GetZohoClientID(),
		ClientSecret: cfg.GetZohoClientSecret(),
		RefreshToken: cfg.GetZohoRefreshToken(),
		AccountsURL:  cfg.GetZohoAccountsURL(),
		SafetyMargin: cfg.GetZohoTokenSafetyMargin(),
	}
	if rdb != nil {
		tokenCfg.Cache = crm.NewRedisTokenCache(rdb, tokenCacheKey)
	}
	crmClient := crm.NewClient(crm.NewTokenSource(tokenCfg), crm.Options{
		BaseURL:           cfg.GetZohoAPIBaseURL(),
		RequestsPerSecond: cfg.GetZohoRequestsPerSecond(),
		Logger:            log,
	})

	app.Activity = activity.NewModule(pool, log)
	recorder := app.Activity.Recorder()
	app.Partners = partners.NewModule(pool, app.EventBus, val)
	partnerSvc := app.Partners.Service()
	enforcer := history.NewEnforcer(history.NewPostgresStore(pool))

	leadDeps := leads.Deps{
		History:  enforcer,
		Activity: recorder,
		Partners: partnerSvc,
		CRM:      crmClient,
		EventBus: app.EventBus,
		Logger:   log,
	}
	if queue != nil {
		leadDeps.Queue = queue
	}
	app.Leads = leads.NewModule(pool, val, leadDeps)
	leadRepo := app.Leads.Repository()

	matcher := conversion.NewMatcher(leadRepo, leadRepo, enforcer, log)
	app.Deals = deals.NewModule(pool, val, deals.Deps{
		Matcher:  matcher,
		Owners:   partnerSvc,
		History:  enforcer,
		Activity: recorder,
		EventBus: app.EventBus,
		Logger:   log,
	})

	app.Webhook = webhook.NewModule(webhook.Deps{
		Partners: partnerSvc,
		Leads:    leadRepo,
		Consumer: matcher,
		History:  enforcer,
		Deals:    app.Deals.Upserter(),
		Activity: recorder,
		EventBus: app.EventBus,
		Logger:   log,
	}, val, cfg.GetWebhookSecret())

	var shared redis.UniversalClient
	if rdb != nil {
		shared = rdb
	}
	status := scheduler.NewStatusStore(shared)
	lock := scheduler.NewRunLock(shared, cfg.GetSyncLockTTL(), log)

	syncDeps := reconcile.Deps{
		Partners: partnerSvc,
		CRM:      crmClient,
		Leads:    leadRepo,
		Consumer: matcher,
		History:  enforcer,
		Deals:    app.Deals.Upserter(),
		Activity: recorder,
		Lock:     lock,
		Status:   status,
		EventBus: app.EventBus,
		Logger:   log,
	}
	handlerDeps := reconcile.HandlerDeps{Status: status, Schedule: app.Schedule}
	if queue != nil {
		handlerDeps.Queue = queue
	}
	if archive := reportArchive(ctx, cfg, log); archive != nil {
		syncDeps.Archive = archive
		handlerDeps.Reports = archive
	}
	app.Reconciler = reconcile.New(syncDeps, reconcile.Options{
		PartnerDelay:   cfg.GetSyncPartnerDelay(),
		PartnerTimeout: cfg.GetSyncPartnerTimeout(),
	})
	app.Sync = reconcile.NewModule(app.Reconciler, handlerDeps)

	app.Notification = notification.New(pool, email.NewSender(cfg), partnerSvc, partnerSvc, cfg, log)
	app.Notification.RegisterHandlers(app.EventBus)

	return app, nil
}

// Pusher returns the CRM lead push used by the worker.
func (a *App) Pusher() *leadservice.Pusher {
	return a.Leads.Pusher()
}

// reportArchive connects to MinIO when configured. A storage outage at boot
// disables archiving rather than failing the process.
func reportArchive(ctx context.Context, cfg *config.Config, log *logger.Logger) *reconcile.ReportArchive {
	if !cfg.IsMinIOEnabled() {
		log.Info("MinIO not configured; sync reports are not archived")
		return nil
	}
	svc, err := storage.NewMinIOService(cfg)
	if err != nil {
		log.Error("failed to initialize storage service", "error", err)
		return nil
	}
	bucket := cfg.GetMinioBucketSyncReports()
	if err := WithRetry(ctx, log, "ensure sync-report bucket", 5, 2*time.Second, func() error {
		return svc.EnsureBucketExists(ctx, bucket)
	}); err != nil {
		log.Error("failed to ensure storage bucket exists", "error", err, "bucket", bucket)
		return nil
	}
	log.Info("storage service initialized", "syncReportsBucket", bucket)
	return reconcile.NewReportArchive(svc, bucket)
}

// WithRetry runs fn up to attempts times with quadratic backoff.
func WithRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
