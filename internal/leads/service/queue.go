package service

import (
	"context"

	"github.com/google/uuid"
)

// PushQueue schedules a CRM push for a lead.
type PushQueue interface {
	EnqueueLeadPush(ctx context.Context, leadID uuid.UUID) error
}

// InlineQueue runs the push in the caller's goroutine. It stands in for the
// asynq queue when Redis is not configured.
type InlineQueue struct {
	pusher *Pusher
}

func NewInlineQueue(pusher *Pusher) *InlineQueue {
	return &InlineQueue{pusher: pusher}
}

func (q *InlineQueue) EnqueueLeadPush(ctx context.Context, leadID uuid.UUID) error {
	return q.pusher.Push(ctx, leadID)
}
