package activity

import (
	apphttp "portal_usap_backend/internal/http"
	"portal_usap_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module exposes the recorder to other modules and the feed to admins.
type Module struct {
	repo     *Repository
	recorder *Recorder
	handler  *Handler
}

// NewModule wires the activity log.
func NewModule(pool *pgxpool.Pool, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	return &Module{
		repo:     repo,
		recorder: NewRecorder(repo, log),
		handler:  NewHandler(repo),
	}
}

func (m *Module) Name() string { return "activity" }

// Recorder returns the shared recorder.
func (m *Module) Recorder() *Recorder { return m.recorder }

func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin.Group("/activity"))
}

var _ apphttp.Module = (*Module)(nil)
