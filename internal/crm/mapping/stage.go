package mapping

import dealdomain "portal_usap_backend/internal/deals/domain"

// DefaultStage is the lowest-funnel group, used for empty or unmapped CRM stages.
const DefaultStage = dealdomain.StageNewDeal

var externalToPortalStage = map[string]dealdomain.Stage{
	"new deal":               dealdomain.StageNewDeal,
	"qualification":          dealdomain.StageNewDeal,
	"needs analysis":         dealdomain.StageNewDeal,
	"send to motion":         dealdomain.StageNewDeal,
	"sent to underwriting":   dealdomain.StageInUnderwriting,
	"underwriting":           dealdomain.StageInUnderwriting,
	"app in review":          dealdomain.StageInUnderwriting,
	"pending docs":           dealdomain.StageInUnderwriting,
	"conditionally approved": dealdomain.StageConditionallyApproved,
	"approved":               dealdomain.StageApproved,
	"closed won":             dealdomain.StageApproved,
	"declined":               dealdomain.StageDeclined,
	"closed lost - declined": dealdomain.StageDeclined,
	"merchant live":          dealdomain.StageLive,
	"live":                   dealdomain.StageLive,
	"boarded":                dealdomain.StageLive,
	"closed lost":            dealdomain.StageClosedLost,
	"dead / do not contact":  dealdomain.StageClosedLost,
}

// ToPortalStage maps a raw CRM deal stage to its portal group.
func ToPortalStage(externalRaw string) dealdomain.Stage {
	if stage, ok := externalToPortalStage[normalizeKey(externalRaw)]; ok {
		return stage
	}
	return DefaultStage
}
