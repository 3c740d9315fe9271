package email

import (
	"strings"
	"testing"
)

func TestRenderEmailTemplates(t *testing.T) {
	tests := []struct {
		name     string
		template string
		data     any
		want     []string
	}{
		{
			name:     "partner welcome",
			template: "partner_welcome.html",
			data: partnerWelcomeEmailData{
				baseEmailData:     baseEmailData{Title: "Welcome", Heading: "Welcome, Acme", CTALabel: "Sign in", CTAURL: "https://portal.example.com/login"},
				PartnerName:       "Acme",
				Email:             "ops@acme.test",
				TemporaryPassword: "s3cret-temp",
			},
			want: []string{"Welcome, Acme", "ops@acme.test", "s3cret-temp", `href="https://portal.example.com/login"`},
		},
		{
			name:     "lead converted escapes names",
			template: "lead_converted.html",
			data: leadConvertedEmailData{
				baseEmailData: baseEmailData{Title: "Converted", Heading: "Lead converted"},
				LeadName:      "Ann <Lee>",
				DealName:      "Acme Deal",
			},
			want: []string{"Ann &lt;Lee&gt;", "Acme Deal"},
		},
		{
			name:     "deal stage",
			template: "deal_stage.html",
			data: dealStageEmailData{
				baseEmailData: baseEmailData{Title: "Update", Heading: "Deal update"},
				DealName:      "Acme Deal",
				Stage:         stageLabel("in_underwriting"),
			},
			want: []string{"Acme Deal", "In underwriting"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := renderEmailTemplate(tt.template, tt.data)
			if err != nil {
				t.Fatalf("render: %v", err)
			}
			for _, w := range tt.want {
				if !strings.Contains(out, w) {
					t.Errorf("expected output to contain %q", w)
				}
			}
		})
	}
}

func TestNoCTAWithoutURL(t *testing.T) {
	out, err := renderEmailTemplate("deal_stage.html", dealStageEmailData{
		baseEmailData: baseEmailData{Title: "Update", Heading: "Deal update", CTALabel: "View deal"},
		DealName:      "Acme Deal",
		Stage:         "Approved",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if strings.Contains(out, "View deal") {
		t.Fatal("expected no call-to-action without a URL")
	}
}
