// Package events defines the domain events exchanged by the partner, lead,
// deal and sync modules.
package events

import (
	"context"

	"portal_usap_backend/platform/events"

	"github.com/google/uuid"
)

// The bus lives in platform/events; modules import it through this package.
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// On subscribes fn to the domain event type T.
func On[T Event](bus Bus, fn func(ctx context.Context, event T) error) {
	events.On(bus, fn)
}

// =============================================================================
// Partner Events
// =============================================================================

// PartnerProvisioned is published when a CRM vendor webhook creates a partner
// and its first admin user.
type PartnerProvisioned struct {
	BaseEvent
	PartnerID         uuid.UUID `json:"partnerId"`
	AdminUserID       uuid.UUID `json:"adminUserId"`
	Name              string    `json:"name"`
	Email             string    `json:"email"`
	TemporaryPassword string    `json:"-"`
}

func (e PartnerProvisioned) EventName() string { return "partners.partner.provisioned" }

// =============================================================================
// Lead Events
// =============================================================================

// LeadConverted is published after a lead was consumed by a deal, either through
// a converted lead status or through deal matching.
type LeadConverted struct {
	BaseEvent
	LeadID    uuid.UUID  `json:"leadId"`
	DealID    *uuid.UUID `json:"dealId,omitempty"`
	PartnerID uuid.UUID  `json:"partnerId"`
	OwnerID   *uuid.UUID `json:"ownerId,omitempty"`
	LeadName  string     `json:"leadName"`
	DealName  string     `json:"dealName,omitempty"`
	Source    string     `json:"source"`
}

func (e LeadConverted) EventName() string { return "leads.lead.converted" }

// LeadStatusChangedByPortal is published when a portal user changes a lead's
// status and the CRM must be told.
type LeadStatusChangedByPortal struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	PartnerID uuid.UUID `json:"partnerId"`
	OldStatus string    `json:"oldStatus"`
	NewStatus string    `json:"newStatus"`
	ChangedBy uuid.UUID `json:"changedBy"`
}

func (e LeadStatusChangedByPortal) EventName() string { return "leads.lead.status_changed_by_portal" }

// LeadSubmitted is published when a portal user creates a lead that must be
// pushed to the CRM.
type LeadSubmitted struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	PartnerID uuid.UUID `json:"partnerId"`
}

func (e LeadSubmitted) EventName() string { return "leads.lead.submitted" }

// =============================================================================
// Deal Events
// =============================================================================

// DealStageChanged is published when a deal's portal stage changes.
type DealStageChanged struct {
	BaseEvent
	DealID    uuid.UUID  `json:"dealId"`
	PartnerID uuid.UUID  `json:"partnerId"`
	OwnerID   *uuid.UUID `json:"ownerId,omitempty"`
	DealName  string     `json:"dealName"`
	OldStage  string     `json:"oldStage,omitempty"`
	NewStage  string     `json:"newStage"`
}

func (e DealStageChanged) EventName() string { return "deals.deal.stage_changed" }

// =============================================================================
// Sync Events
// =============================================================================

// SyncCompleted is published at the end of every full reconciliation run.
type SyncCompleted struct {
	BaseEvent
	RunID        uuid.UUID `json:"runId"`
	Trigger      string    `json:"trigger"`
	Success      bool      `json:"success"`
	PartnerCount int       `json:"partnerCount"`
	ErrorCount   int       `json:"errorCount"`
}

func (e SyncCompleted) EventName() string { return "sync.run.completed" }
