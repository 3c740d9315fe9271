package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"portal_usap_backend/internal/adapters/storage"
	"portal_usap_backend/platform/apperr"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type stubRunner struct {
	result  RunResult
	err     error
	trigger string
}

func (s *stubRunner) RunAll(_ context.Context, trigger string) (RunResult, error) {
	s.trigger = trigger
	return s.result, s.err
}

func (s *stubRunner) RunPartner(_ context.Context, _ uuid.UUID) (RunResult, error) {
	return s.result, s.err
}

type stubStatus struct{ last *RunResult }

func (s stubStatus) Last(context.Context) (*RunResult, error) { return s.last, nil }

type fixedSchedule struct{ next time.Time }

func (f fixedSchedule) NextRun(time.Time) time.Time { return f.next }

type stubQueue struct{ triggers []string }

func (q *stubQueue) EnqueueFullSync(_ context.Context, trigger string) error {
	q.triggers = append(q.triggers, trigger)
	return nil
}

type stubLinker struct{}

func (stubLinker) ReportURL(_ context.Context, r RunResult) (*storage.PresignedURL, error) {
	return &storage.PresignedURL{URL: "https://objects.test/" + ReportKey(r), FileKey: ReportKey(r)}, nil
}

func newSyncEngine(runner Runner, deps HandlerDeps) *gin.Engine {
	gin.SetMode(gin.TestMode)
	engine := gin.New()
	NewHandler(runner, deps).RegisterRoutes(engine.Group("/sync"))
	return engine
}

func serve(engine *gin.Engine, method, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(method, path, nil))
	return rec
}

func TestRunAllReturnsAggregateWithManualTrigger(t *testing.T) {
	runner := &stubRunner{result: RunResult{Trigger: TriggerManual, Success: false, Errors: []string{"partner x: boom"}}}
	engine := newSyncEngine(runner, HandlerDeps{Status: stubStatus{}, Schedule: fixedSchedule{}})

	rec := serve(engine, http.MethodPost, "/sync/run")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if runner.trigger != TriggerManual {
		t.Fatalf("trigger = %q", runner.trigger)
	}
	var got RunResult
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Success || len(got.Errors) != 1 {
		t.Fatalf("result = %+v", got)
	}
}

func TestRunAllOverlapIsConflict(t *testing.T) {
	runner := &stubRunner{err: apperr.Conflict("a sync run is already in progress")}
	engine := newSyncEngine(runner, HandlerDeps{Status: stubStatus{}, Schedule: fixedSchedule{}})

	if rec := serve(engine, http.MethodPost, "/sync/run"); rec.Code != http.StatusConflict {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRunAllAsyncQueuesRun(t *testing.T) {
	runner := &stubRunner{}
	queue := &stubQueue{}
	engine := newSyncEngine(runner, HandlerDeps{Status: stubStatus{}, Schedule: fixedSchedule{}, Queue: queue})

	rec := serve(engine, http.MethodPost, "/sync/run?async=true")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if runner.trigger != "" {
		t.Fatal("async request must not run inline")
	}
	if len(queue.triggers) != 1 || queue.triggers[0] != TriggerManual {
		t.Fatalf("queued = %v", queue.triggers)
	}
}

func TestRunAllAsyncWithoutQueue(t *testing.T) {
	engine := newSyncEngine(&stubRunner{}, HandlerDeps{Status: stubStatus{}, Schedule: fixedSchedule{}})
	if rec := serve(engine, http.MethodPost, "/sync/run?async=true"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRunPartnerRejectsBadID(t *testing.T) {
	engine := newSyncEngine(&stubRunner{}, HandlerDeps{Status: stubStatus{}, Schedule: fixedSchedule{}})
	if rec := serve(engine, http.MethodPost, "/sync/partners/not-a-uuid"); rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestStatusIncludesNextRunAndReportLink(t *testing.T) {
	next := time.Date(2026, 10, 19, 2, 0, 0, 0, time.UTC)
	last := &RunResult{RunID: uuid.MustParse("22222222-2222-2222-2222-222222222222"), StartedAt: time.Date(2026, 10, 18, 2, 0, 0, 0, time.UTC), Success: true}
	engine := newSyncEngine(&stubRunner{}, HandlerDeps{
		Status:   stubStatus{last: last},
		Schedule: fixedSchedule{next: next},
		Reports:  stubLinker{},
	})

	rec := serve(engine, http.MethodGet, "/sync/status")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !got.NextRun.Equal(next) {
		t.Fatalf("nextRun = %v", got.NextRun)
	}
	if got.LastRun == nil || got.LastRun.RunID != last.RunID {
		t.Fatalf("lastRun = %+v", got.LastRun)
	}
	if got.Report == nil || got.Report.FileKey != "sync-runs/2026/10/18/22222222-2222-2222-2222-222222222222.json" {
		t.Fatalf("report = %+v", got.Report)
	}
}

func TestStatusBeforeFirstRun(t *testing.T) {
	engine := newSyncEngine(&stubRunner{}, HandlerDeps{Status: stubStatus{}, Schedule: fixedSchedule{}, Reports: stubLinker{}})
	rec := serve(engine, http.MethodGet, "/sync/status")
	var got StatusResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.LastRun != nil || got.Report != nil {
		t.Fatalf("got %+v", got)
	}
}
