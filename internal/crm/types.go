// Package crm is the client for the external Zoho CRM: OAuth token handling,
// paginated partner-scoped searches and lead writes.
package crm

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
)

// Lookup is a Zoho lookup field. The API sends {"id","name"} objects while
// workflow webhooks often flatten the same field to a plain string.
type Lookup struct {
	ID   string `json:"id,omitempty"`
	Name string `json:"name,omitempty"`
}

// UnmarshalJSON accepts an object, a string or null.
func (l *Lookup) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		*l = Lookup{}
		return nil
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*l = Lookup{Name: strings.TrimSpace(s)}
		return nil
	}
	type plain Lookup
	var p plain
	if err := json.Unmarshal(trimmed, &p); err != nil {
		return err
	}
	*l = Lookup(p)
	return nil
}

// RawLead is a Leads module record as returned by the search API.
type RawLead struct {
	ID                 string `json:"id"`
	FirstName          string `json:"First_Name"`
	LastName           string `json:"Last_Name"`
	Email              string `json:"Email"`
	Phone              string `json:"Phone"`
	Company            string `json:"Company"`
	LeadStatus         string `json:"Lead_Status"`
	StrategicPartnerID string `json:"StrategicPartnerId"`
}

// RawDeal is a Deals module record as returned by the search API.
type RawDeal struct {
	ID                 string  `json:"id"`
	DealName           string  `json:"Deal_Name"`
	Stage              string  `json:"Stage"`
	FirstName          string  `json:"First_Name"`
	LastName           string  `json:"Last_Name"`
	Email              string  `json:"Email"`
	Phone              string  `json:"Phone"`
	PartnersID         string  `json:"Partners_Id"`
	StrategicPartnerID string  `json:"StrategicPartnerId"`
	Vendor             *Lookup `json:"Vendor,omitempty"`
	BusinessName       string  `json:"Business_Name"`
	AccountName        *Lookup `json:"Account_Name,omitempty"`
	ApprovalTimeStamp  string  `json:"Approval_Time_Stamp"`
}

// PartnerExternalID returns the vendor id the deal belongs to. Partners_Id
// wins over StrategicPartnerId, which wins over the embedded Vendor lookup.
func (d RawDeal) PartnerExternalID() string {
	if v := strings.TrimSpace(d.PartnersID); v != "" {
		return v
	}
	if v := strings.TrimSpace(d.StrategicPartnerID); v != "" {
		return v
	}
	if d.Vendor != nil {
		return strings.TrimSpace(d.Vendor.ID)
	}
	return ""
}

// Company prefers Business_Name and falls back to the account lookup name.
func (d RawDeal) Company() string {
	if v := strings.TrimSpace(d.BusinessName); v != "" {
		return v
	}
	if d.AccountName != nil {
		return strings.TrimSpace(d.AccountName.Name)
	}
	return ""
}

// approvalLayouts are the timestamp shapes Zoho emits for datetime and date fields.
var approvalLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ApprovalTime parses Approval_Time_Stamp; an empty or unparseable value is nil.
func (d RawDeal) ApprovalTime() *time.Time {
	raw := strings.TrimSpace(d.ApprovalTimeStamp)
	if raw == "" {
		return nil
	}
	for _, layout := range approvalLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// LeadInput is the body written by CreateLead and UpdateLead. Empty fields are
// omitted so an update only touches what the portal changed.
type LeadInput struct {
	FirstName          string `json:"First_Name,omitempty"`
	LastName           string `json:"Last_Name,omitempty"`
	Email              string `json:"Email,omitempty"`
	Phone              string `json:"Phone,omitempty"`
	Company            string `json:"Company,omitempty"`
	LeadStatus         string `json:"Lead_Status,omitempty"`
	StrategicPartnerID string `json:"StrategicPartnerId,omitempty"`
}

type searchInfo struct {
	MoreRecords bool `json:"more_records"`
	Page        int  `json:"page"`
	PerPage     int  `json:"per_page"`
}

type searchResponse[T any] struct {
	Data []T        `json:"data"`
	Info searchInfo `json:"info"`
}

type writeRequest struct {
	Data []LeadInput `json:"data"`
}

type writeResult struct {
	Code    string `json:"code"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Details struct {
		ID string `json:"id"`
	} `json:"details"`
}

type writeResponse struct {
	Data []writeResult `json:"data"`
}
