package transport

import (
	"time"

	"github.com/google/uuid"
)

type ListDealsRequest struct {
	PartnerID string `form:"partnerId" validate:"omitempty,uuid"`
	Stage     string `form:"stage" validate:"omitempty,oneof=new_deal in_underwriting conditionally_approved approved declined live closed_lost"`
	Page      int    `form:"page" validate:"omitempty,min=1"`
	PageSize  int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

type DealResponse struct {
	ID                  uuid.UUID  `json:"id"`
	ExternalID          string     `json:"externalId"`
	PartnerID           uuid.UUID  `json:"partnerId"`
	CreatedBy           *uuid.UUID `json:"createdBy,omitempty"`
	ConvertedFromLeadID *uuid.UUID `json:"convertedFromLeadId,omitempty"`
	Name                string     `json:"name"`
	FirstName           string     `json:"firstName"`
	LastName            string     `json:"lastName"`
	Email               string     `json:"email"`
	Phone               string     `json:"phone"`
	Company             string     `json:"company"`
	Stage               string     `json:"stage"`
	ExternalStage       *string    `json:"externalStage,omitempty"`
	ApprovalDate        *time.Time `json:"approvalDate,omitempty"`
	LastSyncAt          *time.Time `json:"lastSyncAt,omitempty"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

type DealListResponse struct {
	Items    []DealResponse `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}
