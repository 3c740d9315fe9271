// Package domain provides core types for the deals bounded context.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Stage is the portal's deal stage group. Deals only move on CRM-initiated
// transitions, so there is no reverse mapping.
type Stage string

const (
	StageNewDeal               Stage = "new_deal"
	StageInUnderwriting        Stage = "in_underwriting"
	StageConditionallyApproved Stage = "conditionally_approved"
	StageApproved              Stage = "approved"
	StageDeclined              Stage = "declined"
	StageLive                  Stage = "live"
	StageClosedLost            Stage = "closed_lost"
)

// Deal is one confirmed opportunity. ExternalID is the upsert key.
type Deal struct {
	ID                  uuid.UUID
	ExternalID          string
	PartnerID           uuid.UUID
	CreatedBy           *uuid.UUID
	ConvertedFromLeadID *uuid.UUID
	Name                string
	FirstName           string
	LastName            string
	Email               string
	Phone               string
	Company             string
	Stage               Stage
	ExternalStageRaw    *string
	ApprovalDate        *time.Time
	LastSyncAt          *time.Time
	Version             int
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsConverted reports whether the deal carries provenance to a former lead.
func (d Deal) IsConverted() bool {
	return d.ConvertedFromLeadID != nil
}
