package scheduler

import (
	"context"
	"fmt"

	"portal_usap_backend/internal/reconcile"
	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/config"
	"portal_usap_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// SyncRunner runs a full reconciliation.
type SyncRunner interface {
	RunAll(ctx context.Context, trigger string) (reconcile.RunResult, error)
}

// LeadPusher writes a portal lead to the CRM.
type LeadPusher interface {
	Push(ctx context.Context, leadID uuid.UUID) error
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	sync   SyncRunner
	pusher LeadPusher
	log    *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, sync SyncRunner, pusher LeadPusher, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	w := &Worker{
		server: server,
		mux:    asynq.NewServeMux(),
		sync:   sync,
		pusher: pusher,
		log:    log,
	}
	w.mux.HandleFunc(TaskFullSync, w.handleFullSync)
	w.mux.HandleFunc(TaskLeadPush, w.handleLeadPush)

	return w, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleFullSync never asks asynq to retry: the next daily run is the retry.
func (w *Worker) handleFullSync(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseFullSyncPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	trigger := payload.Trigger
	if trigger == "" {
		trigger = reconcile.TriggerScheduled
	}

	result, err := w.sync.RunAll(ctx, trigger)
	if apperr.Is(err, apperr.KindConflict) {
		w.log.Warn("scheduled sync skipped: a run is already in flight")
		return nil
	}
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	if !result.Success {
		w.log.Warn("scheduled sync finished with errors", "runId", result.RunID, "errors", len(result.Errors))
	}
	return nil
}

func (w *Worker) handleLeadPush(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseLeadPushPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	err = w.pusher.Push(ctx, leadID)
	if apperr.Is(err, apperr.KindNotFound) {
		// Converted or deleted before the push ran.
		return nil
	}
	return err
}
