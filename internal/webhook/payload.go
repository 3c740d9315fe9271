package webhook

import (
	"strings"

	"portal_usap_backend/internal/crm"
)

// Kinds label webhook deliveries in logs and metrics.
const (
	KindPartner    = "partner"
	KindLeadStatus = "lead_status"
	KindDeal       = "deal"
)

// PartnerPayload is the vendor-created workflow body.
type PartnerPayload struct {
	ID         string `json:"id" validate:"required,max=64"`
	VendorName string `json:"VendorName" validate:"required,max=255"`
	Email      string `json:"Email" validate:"required,email,max=255"`
}

// LeadStatusPayload is the lead-status workflow body. StrategicPartnerID may
// be absent.
type LeadStatusPayload struct {
	ID                 string `json:"id" validate:"required,max=64"`
	LeadStatus         string `json:"Lead_Status" validate:"max=255"`
	StrategicPartnerID string `json:"StrategicPartnerId" validate:"max=64"`
}

// DealPayload is the deal workflow body. The deal id arrives as zohoDealId,
// the remaining fields share the search API's shape.
type DealPayload struct {
	ZohoDealID string `json:"zohoDealId"`
	crm.RawDeal
}

// DealID returns zohoDealId, falling back to the record id.
func (p DealPayload) DealID() string {
	if v := strings.TrimSpace(p.ZohoDealID); v != "" {
		return v
	}
	return strings.TrimSpace(p.ID)
}
