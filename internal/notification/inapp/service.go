package inapp

import (
	"context"

	"portal_usap_backend/platform/apperr"
	"portal_usap_backend/platform/logger"

	"github.com/google/uuid"
)

// Categories.
const (
	CategoryInfo    = "info"
	CategorySuccess = "success"
	CategoryWarning = "warning"
	CategoryError   = "error"
)

// Store persists in-app notifications.
type Store interface {
	Create(ctx context.Context, p CreateParams) (Notification, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Notification, int, error)
	CountUnread(ctx context.Context, userID uuid.UUID) (int, error)
	MarkRead(ctx context.Context, userID, id uuid.UUID) error
	MarkAllRead(ctx context.Context, userID uuid.UUID) error
}

type Service struct {
	repo Store
	log  *logger.Logger
}

func NewService(repo Store, log *logger.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log,
	}
}

type SendParams struct {
	UserID       uuid.UUID
	Title        string
	Content      string
	ResourceID   *uuid.UUID
	ResourceType string
	Category     string // "info", "success", "warning", "error"
	Metadata     map[string]any
}

// Send persists the notification.
func (s *Service) Send(ctx context.Context, p SendParams) error {
	if p.UserID == uuid.Nil {
		return apperr.Validation(errUserIDRequired).WithOp(opCreate)
	}
	if p.Title == "" || p.Content == "" {
		return apperr.Validation("title and content are required").WithOp(opCreate)
	}
	if p.Category == "" {
		p.Category = CategoryInfo
	}

	var resourceType *string
	if p.ResourceType != "" {
		resourceType = &p.ResourceType
	}

	_, err := s.repo.Create(ctx, CreateParams{
		UserID:       p.UserID,
		Title:        p.Title,
		Content:      p.Content,
		ResourceID:   p.ResourceID,
		ResourceType: resourceType,
		Category:     p.Category,
		Metadata:     p.Metadata,
	})
	if err != nil {
		s.log.Error("failed to persist in-app notification", "error", err, "userId", p.UserID)
		return err
	}
	return nil
}

func (s *Service) List(ctx context.Context, userID uuid.UUID, page, pageSize int) ([]Notification, int, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	offset := (page - 1) * pageSize
	return s.repo.List(ctx, userID, pageSize, offset)
}

func (s *Service) CountUnread(ctx context.Context, userID uuid.UUID) (int, error) {
	return s.repo.CountUnread(ctx, userID)
}

func (s *Service) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	return s.repo.MarkRead(ctx, userID, id)
}

func (s *Service) MarkAllRead(ctx context.Context, userID uuid.UUID) error {
	return s.repo.MarkAllRead(ctx, userID)
}
