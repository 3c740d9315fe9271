package mapping

import (
	"testing"

	dealdomain "portal_usap_backend/internal/deals/domain"
	leaddomain "portal_usap_backend/internal/leads/domain"
)

func TestToPortalStatus(t *testing.T) {
	cases := []struct {
		raw  string
		want leaddomain.Status
	}{
		{"Not Contacted", leaddomain.StatusNew},
		{"Attempted to Contact", leaddomain.StatusContacted},
		{"  contacted ", leaddomain.StatusContacted},
		{"Contact in Future", leaddomain.StatusNurture},
		{"Pre-Qualified", leaddomain.StatusQualified},
		{"Junk Lead", leaddomain.StatusUnqualified},
		{"Lost Lead", leaddomain.StatusLost},
		{"", DefaultPortalStatus},
		{"Some Unknown CRM Value", DefaultPortalStatus},
	}

	for _, tc := range cases {
		if got := ToPortalStatus(tc.raw); got != tc.want {
			t.Errorf("ToPortalStatus(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestStatusRoundTripForEveryPortalStatus(t *testing.T) {
	for portal := range portalToExternalStatus {
		if !leaddomain.IsKnownStatus(portal) {
			t.Fatalf("reverse table holds unknown portal status %q", portal)
		}
		if got := ToPortalStatus(ToExternalStatus(portal)); got != portal {
			t.Errorf("round trip of %q returned %q", portal, got)
		}
	}
}

func TestToExternalStatusDefault(t *testing.T) {
	if got := ToExternalStatus(leaddomain.Status("archived")); got != DefaultExternalStatus {
		t.Fatalf("expected default external status, got %q", got)
	}
}

func TestIsConvertedStatus(t *testing.T) {
	for _, raw := range []string{"Converted", "Converted - Deal", "converted  to deal"} {
		if !IsConvertedStatus(raw) {
			t.Errorf("expected %q to be a converted status", raw)
		}
	}
	for _, raw := range []string{"", "Contacted", "Conversion Pending"} {
		if IsConvertedStatus(raw) {
			t.Errorf("expected %q not to be a converted status", raw)
		}
	}
}

func TestToPortalStage(t *testing.T) {
	cases := []struct {
		raw  string
		want dealdomain.Stage
	}{
		{"Approved", dealdomain.StageApproved},
		{"Declined", dealdomain.StageDeclined},
		{"Sent to Underwriting", dealdomain.StageInUnderwriting},
		{"Conditionally Approved", dealdomain.StageConditionallyApproved},
		{"Merchant Live", dealdomain.StageLive},
		{"Closed Lost", dealdomain.StageClosedLost},
		{"", DefaultStage},
		{"Stage Added Next Quarter", DefaultStage},
	}

	for _, tc := range cases {
		if got := ToPortalStage(tc.raw); got != tc.want {
			t.Errorf("ToPortalStage(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}
