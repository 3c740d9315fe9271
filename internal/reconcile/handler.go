package reconcile

import (
	"context"
	"net/http"
	"time"

	"portal_usap_backend/internal/adapters/storage"
	"portal_usap_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// StatusReader returns the last run summary, nil if none has run.
type StatusReader interface {
	Last(ctx context.Context) (*RunResult, error)
}

// Schedule reports when the next scheduled run fires.
type Schedule interface {
	NextRun(now time.Time) time.Time
}

// ReportLinker presigns the archived report of a run.
type ReportLinker interface {
	ReportURL(ctx context.Context, result RunResult) (*storage.PresignedURL, error)
}

// RunQueue hands a full run to the background worker.
type RunQueue interface {
	EnqueueFullSync(ctx context.Context, trigger string) error
}

// Runner is the reconciler as the handler sees it.
type Runner interface {
	RunAll(ctx context.Context, trigger string) (RunResult, error)
	RunPartner(ctx context.Context, partnerID uuid.UUID) (RunResult, error)
}

// StatusResponse is returned by GET /admin/sync/status.
type StatusResponse struct {
	LastRun *RunResult            `json:"lastRun"`
	NextRun time.Time             `json:"nextRun"`
	Report  *storage.PresignedURL `json:"report,omitempty"`
}

// HandlerDeps are the handler's collaborators. Reports and Queue are optional.
type HandlerDeps struct {
	Status   StatusReader
	Schedule Schedule
	Reports  ReportLinker
	Queue    RunQueue
}

// Handler serves the operator sync endpoints.
type Handler struct {
	runner Runner
	HandlerDeps
}

// NewHandler creates a sync handler.
func NewHandler(runner Runner, deps HandlerDeps) *Handler {
	return &Handler{runner: runner, HandlerDeps: deps}
}

// RegisterRoutes registers sync routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/run", h.RunAll)
	rg.POST("/partners/:partnerId", h.RunPartner)
	rg.GET("/status", h.GetStatus)
}

// RunAll runs a full reconciliation and returns the aggregate, including
// partial failures. A disconnecting client does not abort the run. With
// ?async=true the run is queued for the worker and 202 is returned.
func (h *Handler) RunAll(c *gin.Context) {
	if c.Query("async") == "true" {
		if h.Queue == nil {
			httpkit.Error(c, http.StatusBadRequest, "background runs are not configured", nil)
			return
		}
		if err := h.Queue.EnqueueFullSync(c.Request.Context(), TriggerManual); httpkit.HandleError(c, err) {
			return
		}
		httpkit.JSON(c, http.StatusAccepted, gin.H{"queued": true})
		return
	}
	result, err := h.runner.RunAll(context.WithoutCancel(c.Request.Context()), TriggerManual)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) RunPartner(c *gin.Context) {
	id, err := uuid.Parse(c.Param("partnerId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid partner id", nil)
		return
	}
	result, err := h.runner.RunPartner(context.WithoutCancel(c.Request.Context()), id)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, result)
}

func (h *Handler) GetStatus(c *gin.Context) {
	last, err := h.Status.Last(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	resp := StatusResponse{LastRun: last, NextRun: h.Schedule.NextRun(time.Now().UTC())}
	if last != nil && h.Reports != nil {
		// A missing link never fails the status call.
		if link, err := h.Reports.ReportURL(c.Request.Context(), *last); err == nil {
			resp.Report = link
		}
	}
	httpkit.OK(c, resp)
}
