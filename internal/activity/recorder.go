package activity

import (
	"context"
	"time"

	"portal_usap_backend/platform/logger"

	"github.com/google/uuid"
)

// Store is the persistence side of the recorder.
type Store interface {
	Append(ctx context.Context, e Entry) error
}

// Recorder writes audit entries without ever failing the caller's operation.
// A write that fails is logged and dropped.
type Recorder struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

// NewRecorder creates a recorder over the given store.
func NewRecorder(store Store, log *logger.Logger) *Recorder {
	return &Recorder{store: store, log: log, now: time.Now}
}

// Record stamps and persists e.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if r == nil || r.store == nil {
		return
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}
	if err := r.store.Append(ctx, e); err != nil && r.log != nil {
		r.log.WithContext(ctx).Error("failed to record activity",
			"action", e.Action,
			"entityType", e.EntityType,
			"error", err,
		)
	}
}
