package transport

import (
	"time"

	"github.com/google/uuid"
)

// Request DTOs
type CreateLeadRequest struct {
	PartnerID string `json:"partnerId,omitempty" validate:"omitempty,uuid"`
	FirstName string `json:"firstName" validate:"required,min=1,max=100"`
	LastName  string `json:"lastName" validate:"required,min=1,max=100"`
	Email     string `json:"email" validate:"required,email,max=254"`
	Phone     string `json:"phone,omitempty" validate:"omitempty,min=5,max=30"`
	Company   string `json:"company,omitempty" validate:"omitempty,max=200"`
}

type UpdateLeadStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=new contacted nurture qualified unqualified lost"`
}

type ListLeadsRequest struct {
	PartnerID string `form:"partnerId" validate:"omitempty,uuid"`
	Status    string `form:"status" validate:"omitempty,oneof=new contacted nurture qualified unqualified lost"`
	Page      int    `form:"page" validate:"omitempty,min=1"`
	PageSize  int    `form:"pageSize" validate:"omitempty,min=1,max=100"`
}

// Response DTOs
type LeadResponse struct {
	ID             uuid.UUID  `json:"id"`
	ExternalID     *string    `json:"externalId,omitempty"`
	PartnerID      uuid.UUID  `json:"partnerId"`
	CreatedBy      *uuid.UUID `json:"createdBy,omitempty"`
	FirstName      string     `json:"firstName"`
	LastName       string     `json:"lastName"`
	Email          string     `json:"email"`
	Phone          string     `json:"phone"`
	Company        string     `json:"company"`
	Status         string     `json:"status"`
	ExternalStatus *string    `json:"externalStatus,omitempty"`
	SyncState      string     `json:"syncState"`
	LastSyncAt     *time.Time `json:"lastSyncAt,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

type LeadListResponse struct {
	Items    []LeadResponse `json:"items"`
	Total    int            `json:"total"`
	Page     int            `json:"page"`
	PageSize int            `json:"pageSize"`
}
