// Package domain provides core types and rules for the leads bounded context.
package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Lead is one prospective customer owned by exactly one partner.
// A lead is hard-deleted when it converts to a deal; no state follows Deleted.
type Lead struct {
	ID                uuid.UUID
	ExternalID        *string
	PartnerID         uuid.UUID
	CreatedBy         *uuid.UUID
	FirstName         string
	LastName          string
	Email             string
	Phone             string
	Company           string
	Status            Status
	ExternalStatusRaw *string
	SyncState         SyncState
	LastSyncAt        *time.Time
	Version           int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// FullName joins first and last name.
func (l Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// HasExternalID reports whether the lead is already linked to a CRM record.
func (l Lead) HasExternalID() bool {
	return l.ExternalID != nil && *l.ExternalID != ""
}
