package reconcile

import (
	"time"

	"github.com/google/uuid"
)

// Triggers name what started a run.
const (
	TriggerScheduled = "scheduled"
	TriggerManual    = "manual"
	TriggerPartner   = "partner"
)

// EntityResult counts one entity kind for one partner. Created, Updated and
// Skipped always add up to Total. Removed is the part of Updated where a
// converted lead was deleted locally.
type EntityResult struct {
	Total   int      `json:"total"`
	Created int      `json:"created"`
	Updated int      `json:"updated"`
	Removed int      `json:"removed"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

func (r *EntityResult) add(o EntityResult) {
	r.Total += o.Total
	r.Created += o.Created
	r.Updated += o.Updated
	r.Removed += o.Removed
	r.Skipped += o.Skipped
}

// PartnerResult is the outcome for one partner. Errors holds failures that
// stopped the partner as a whole.
type PartnerResult struct {
	PartnerID  uuid.UUID    `json:"partnerId"`
	ExternalID string       `json:"externalId"`
	Name       string       `json:"name"`
	Leads      EntityResult `json:"leads"`
	Deals      EntityResult `json:"deals"`
	Errors     []string     `json:"errors,omitempty"`
	DurationMs int64        `json:"durationMs"`
}

// Failed reports whether the partner could not be reconciled at all.
func (p PartnerResult) Failed() bool {
	return len(p.Errors) > 0
}

// Totals aggregates every partner.
type Totals struct {
	Partners int          `json:"partners"`
	Leads    EntityResult `json:"leads"`
	Deals    EntityResult `json:"deals"`
}

// RunResult is the aggregate returned by every run, scheduled or manual. It
// carries full per-partner detail even when Success is false.
type RunResult struct {
	RunID      uuid.UUID       `json:"runId"`
	Trigger    string          `json:"trigger"`
	StartedAt  time.Time       `json:"startedAt"`
	FinishedAt time.Time       `json:"finishedAt"`
	Success    bool            `json:"success"`
	Totals     Totals          `json:"totals"`
	Partners   []PartnerResult `json:"partners"`
	Errors     []string        `json:"errors"`
}

func (r *RunResult) finish(now time.Time) {
	r.FinishedAt = now
	r.Totals = Totals{Partners: len(r.Partners)}
	for _, p := range r.Partners {
		r.Totals.Leads.add(p.Leads)
		r.Totals.Deals.add(p.Deals)
	}
	r.Success = len(r.Errors) == 0
}
