package scheduler

import (
	"context"
	"fmt"
	"time"

	"portal_usap_backend/internal/reconcile"
	"portal_usap_backend/platform/config"
	"portal_usap_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// DailySchedule fires once a day at Hour:Minute UTC.
type DailySchedule struct {
	Hour   int
	Minute int
}

// CronSpec returns the schedule as a five-field cron expression.
func (d DailySchedule) CronSpec() string {
	return fmt.Sprintf("%d %d * * *", d.Minute, d.Hour)
}

// NextRun returns the first firing strictly after now.
func (d DailySchedule) NextRun(now time.Time) time.Time {
	now = now.UTC()
	next := time.Date(now.Year(), now.Month(), now.Day(), d.Hour, d.Minute, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// Periodic registers the daily full sync with the asynq scheduler.
type Periodic struct {
	scheduler *asynq.Scheduler
	schedule  DailySchedule
	queue     string
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, schedule DailySchedule, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &Periodic{
		scheduler: asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC}),
		schedule:  schedule,
		queue:     queueName(cfg),
		log:       log,
	}, nil
}

// Run registers the cron entry and blocks until ctx is done.
func (p *Periodic) Run(ctx context.Context) error {
	task, err := NewFullSyncTask(FullSyncPayload{Trigger: reconcile.TriggerScheduled})
	if err != nil {
		return err
	}
	entryID, err := p.scheduler.Register(p.schedule.CronSpec(), task,
		asynq.Queue(p.queue),
		asynq.MaxRetry(0),
		asynq.Unique(time.Hour),
	)
	if err != nil {
		return fmt.Errorf("register daily sync: %w", err)
	}
	p.log.Info("daily sync scheduled", "entryId", entryID, "cron", p.schedule.CronSpec(), "nextRun", p.schedule.NextRun(time.Now()))

	if err := p.scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
	return nil
}
