package domain

// Status is the portal's lead status vocabulary. It is deliberately smaller and
// more stable than the CRM's; see internal/crm/mapping for the translation.
type Status string

const (
	StatusNew         Status = "new"
	StatusContacted   Status = "contacted"
	StatusNurture     Status = "nurture"
	StatusQualified   Status = "qualified"
	StatusUnqualified Status = "unqualified"
	StatusLost        Status = "lost"
)

var knownStatuses = map[Status]struct{}{
	StatusNew:         {},
	StatusContacted:   {},
	StatusNurture:     {},
	StatusQualified:   {},
	StatusUnqualified: {},
	StatusLost:        {},
}

// IsKnownStatus reports whether s is part of the portal vocabulary.
func IsKnownStatus(s Status) bool {
	_, ok := knownStatuses[s]
	return ok
}

// SyncState tracks whether the local row matches the CRM.
type SyncState string

const (
	SyncPending SyncState = "pending"
	SyncSynced  SyncState = "synced"
	SyncError   SyncState = "error"
)
