// Package history keeps the single-current-row audit tables for lead status
// and deal stage. Every transition replaces all prior rows for the owning
// entity, so at most one row per entity exists at any time.
package history

import (
	"time"

	"github.com/google/uuid"
)

// Table describes one history table. Identifiers are fixed at compile time and
// never come from input.
type Table struct {
	name        string
	ownerColumn string
	oldColumn   string
	newColumn   string
}

// Name returns the table name.
func (t Table) Name() string { return t.name }

var (
	// LeadStatus is lead_status_history keyed by lead_id.
	LeadStatus = Table{name: "lead_status_history", ownerColumn: "lead_id", oldColumn: "old_status", newColumn: "new_status"}
	// DealStage is deal_stage_history keyed by deal_id.
	DealStage = Table{name: "deal_stage_history", ownerColumn: "deal_id", oldColumn: "old_stage", newColumn: "new_stage"}
)

// Row is one transition.
type Row struct {
	ID        uuid.UUID
	OwnerID   uuid.UUID
	Old       *string
	New       string
	ChangedBy *uuid.UUID
	Notes     string
	CreatedAt time.Time
}
