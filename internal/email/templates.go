package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"strings"
)

//go:embed templates/*.html
var templateFS embed.FS

type baseEmailData struct {
	Title      string
	Heading    string
	Subheading string
	CTALabel   string
	CTAURL     string
}

type partnerWelcomeEmailData struct {
	baseEmailData
	PartnerName       string
	Email             string
	TemporaryPassword string
}

type leadConvertedEmailData struct {
	baseEmailData
	LeadName string
	DealName string
}

type dealStageEmailData struct {
	baseEmailData
	DealName string
	Stage    string
}

func renderEmailTemplate(name string, data any) (string, error) {
	templates := []string{"templates/base.html", "templates/" + name}
	tmpl, err := template.New("base.html").ParseFS(templateFS, templates...)
	if err != nil {
		return "", fmt.Errorf("parse email template %s: %w", name, err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "email", data); err != nil {
		return "", fmt.Errorf("execute email template %s: %w", name, err)
	}
	return buf.String(), nil
}

// stageLabel turns a portal stage key into display text: in_underwriting -> In underwriting.
func stageLabel(stage string) string {
	s := strings.ReplaceAll(stage, "_", " ")
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
