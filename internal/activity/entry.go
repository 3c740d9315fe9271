// Package activity is the append-only audit log of every state-changing action
// taken by webhooks, the reconciliation job and portal users.
package activity

import (
	"time"

	"github.com/google/uuid"
)

// Entity types.
const (
	EntityPartner = "partner"
	EntityLead    = "lead"
	EntityDeal    = "deal"
	EntitySync    = "sync"
)

// Actions.
const (
	ActionPartnerProvisioned = "partner_provisioned"
	ActionLeadCreated        = "lead_created"
	ActionLeadStatusChanged  = "lead_status_changed"
	ActionLeadConverted      = "lead_converted"
	ActionLeadDeleteFailed   = "lead_delete_failed"
	ActionLeadPushed         = "lead_pushed_to_crm"
	ActionDealCreated        = "deal_created"
	ActionDealUpdated        = "deal_updated"
	ActionDealStageChanged   = "deal_stage_changed"
	ActionSyncRunCompleted   = "sync_run_completed"
	ActionSyncPartnerFailed  = "sync_partner_failed"
	ActionOwnerUnresolved    = "owner_unresolved"
)

// Entry is one immutable audit record. Metadata carries the structured payload
// needed to debug the action after the fact.
type Entry struct {
	ID          uuid.UUID      `json:"id"`
	PartnerID   *uuid.UUID     `json:"partnerId,omitempty"`
	UserID      *uuid.UUID     `json:"userId,omitempty"`
	EntityType  string         `json:"entityType"`
	EntityID    *uuid.UUID     `json:"entityId,omitempty"`
	Action      string         `json:"action"`
	Description string         `json:"description"`
	Metadata    map[string]any `json:"metadata"`
	CreatedAt   time.Time      `json:"createdAt"`
}
