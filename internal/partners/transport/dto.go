package transport

import (
	"time"

	"github.com/google/uuid"
)

type SetApprovalRequest struct {
	Approved *bool `json:"approved" validate:"required"`
}

type PartnerResponse struct {
	ID         uuid.UUID `json:"id"`
	ExternalID *string   `json:"externalId,omitempty"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Approved   bool      `json:"approved"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
