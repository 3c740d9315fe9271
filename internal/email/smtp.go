package email

import (
	"context"
	"fmt"
	"net"
	"time"

	"portal_usap_backend/platform/config"

	gomail "github.com/wneessen/go-mail"
)

const smtpTimeout = 15 * time.Second

// SMTPSender implements the Sender interface using a direct SMTP connection via go-mail.
type SMTPSender struct {
	host      string
	port      int
	username  string
	password  string
	fromName  string
	fromEmail string
}

// NewSMTPSender creates a new SMTPSender with the given SMTP credentials.
func NewSMTPSender(host string, port int, username, password, fromEmail, fromName string) *SMTPSender {
	return &SMTPSender{
		host:      host,
		port:      port,
		username:  username,
		password:  password,
		fromName:  fromName,
		fromEmail: fromEmail,
	}
}

// NewSender returns an SMTP sender when e-mail is enabled, NoopSender otherwise.
func NewSender(cfg config.EmailConfig) Sender {
	if !cfg.GetEmailEnabled() {
		return NoopSender{}
	}
	return NewSMTPSender(cfg.GetSMTPHost(), cfg.GetSMTPPort(), cfg.GetSMTPUsername(), cfg.GetSMTPPassword(), cfg.GetEmailFromAddress(), cfg.GetEmailFromName())
}

func (s *SMTPSender) send(ctx context.Context, toEmail, subject, htmlContent string) error {
	msg := gomail.NewMsg()
	if err := msg.FromFormat(s.fromName, s.fromEmail); err != nil {
		return fmt.Errorf("smtp from: %w", err)
	}
	if err := msg.To(toEmail); err != nil {
		return fmt.Errorf("smtp to: %w", err)
	}
	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextHTML, htmlContent)

	opts := []gomail.Option{
		gomail.WithPort(s.port),
		gomail.WithTLSPortPolicy(gomail.TLSOpportunistic),
		gomail.WithTimeout(smtpTimeout),
		gomail.WithDialContextFunc(func(dctx context.Context, _ string, addr string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(dctx, "tcp4", addr)
		}),
	}
	if s.username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(s.username),
			gomail.WithPassword(s.password),
		)
	}

	client, err := gomail.NewClient(s.host, opts...)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}

	if err := client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}

func (s *SMTPSender) SendPartnerWelcomeEmail(ctx context.Context, toEmail, partnerName, loginURL, temporaryPassword string) error {
	content, err := renderEmailTemplate("partner_welcome.html", partnerWelcomeEmailData{
		baseEmailData: baseEmailData{
			Title:    subjectPartnerWelcome,
			Heading:  "Welcome, " + partnerName,
			CTALabel: "Sign in",
			CTAURL:   loginURL,
		},
		PartnerName:       partnerName,
		Email:             toEmail,
		TemporaryPassword: temporaryPassword,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subjectPartnerWelcome, content)
}

func (s *SMTPSender) SendLeadConvertedEmail(ctx context.Context, toEmail, leadName, dealName, dealURL string) error {
	subject := fmt.Sprintf(subjectLeadConvertedFmt, leadName)
	content, err := renderEmailTemplate("lead_converted.html", leadConvertedEmailData{
		baseEmailData: baseEmailData{
			Title:    subject,
			Heading:  "Lead converted",
			CTALabel: "View deal",
			CTAURL:   dealURL,
		},
		LeadName: leadName,
		DealName: dealName,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}

func (s *SMTPSender) SendDealStageEmail(ctx context.Context, toEmail, dealName, stage, dealURL string) error {
	label := stageLabel(stage)
	subject := fmt.Sprintf(subjectDealStageFmt, dealName, label)
	content, err := renderEmailTemplate("deal_stage.html", dealStageEmailData{
		baseEmailData: baseEmailData{
			Title:    subject,
			Heading:  "Deal update",
			CTALabel: "View deal",
			CTAURL:   dealURL,
		},
		DealName: dealName,
		Stage:    label,
	})
	if err != nil {
		return err
	}
	return s.send(ctx, toEmail, subject, content)
}
