// Package mapping translates between the CRM's lead-status and deal-stage
// vocabularies and the portal's. All tables are immutable after init and
// every lookup degrades to a default instead of failing.
package mapping

import (
	"strings"

	leaddomain "portal_usap_backend/internal/leads/domain"
)

// DefaultPortalStatus is returned for empty or unmapped CRM statuses.
const DefaultPortalStatus = leaddomain.StatusNew

// DefaultExternalStatus is sent to the CRM for portal statuses it does not know.
const DefaultExternalStatus = "Not Contacted"

// Keys are lowercased; see normalizeKey.
var externalToPortalStatus = map[string]leaddomain.Status{
	"new":                  leaddomain.StatusNew,
	"not contacted":        leaddomain.StatusNew,
	"attempted to contact": leaddomain.StatusContacted,
	"contacted":            leaddomain.StatusContacted,
	"contact in future":    leaddomain.StatusNurture,
	"nurture":              leaddomain.StatusNurture,
	"pre-qualified":        leaddomain.StatusQualified,
	"pre qualified":        leaddomain.StatusQualified,
	"qualified":            leaddomain.StatusQualified,
	"sent for signature":   leaddomain.StatusQualified,
	"not qualified":        leaddomain.StatusUnqualified,
	"junk lead":            leaddomain.StatusUnqualified,
	"lost lead":            leaddomain.StatusLost,
	"not interested":       leaddomain.StatusLost,
}

var portalToExternalStatus = map[leaddomain.Status]string{
	leaddomain.StatusNew:         "Not Contacted",
	leaddomain.StatusContacted:   "Contacted",
	leaddomain.StatusNurture:     "Contact in Future",
	leaddomain.StatusQualified:   "Pre-Qualified",
	leaddomain.StatusUnqualified: "Not Qualified",
	leaddomain.StatusLost:        "Lost Lead",
}

var convertedStatuses = map[string]struct{}{
	"converted":         {},
	"converted - deal":  {},
	"converted to deal": {},
	"converted-deal":    {},
}

// ToPortalStatus maps a raw CRM lead status to the portal vocabulary.
func ToPortalStatus(externalRaw string) leaddomain.Status {
	if status, ok := externalToPortalStatus[normalizeKey(externalRaw)]; ok {
		return status
	}
	return DefaultPortalStatus
}

// ToExternalStatus maps a portal status to the CRM value pushed on portal-initiated changes.
func ToExternalStatus(portal leaddomain.Status) string {
	if raw, ok := portalToExternalStatus[portal]; ok {
		return raw
	}
	return DefaultExternalStatus
}

// IsConvertedStatus reports whether the CRM marks the lead as converted to a deal.
// Callers must check this before attempting a status-only update.
func IsConvertedStatus(externalRaw string) bool {
	_, ok := convertedStatuses[normalizeKey(externalRaw)]
	return ok
}

func normalizeKey(raw string) string {
	return strings.Join(strings.Fields(strings.ToLower(raw)), " ")
}
