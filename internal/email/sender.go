// Package email renders and delivers the portal's transactional e-mail.
package email

import "context"

// Sender delivers the e-mails raised by domain events.
type Sender interface {
	SendPartnerWelcomeEmail(ctx context.Context, toEmail, partnerName, loginURL, temporaryPassword string) error
	SendLeadConvertedEmail(ctx context.Context, toEmail, leadName, dealName, dealURL string) error
	SendDealStageEmail(ctx context.Context, toEmail, dealName, stage, dealURL string) error
}

// NoopSender drops every message. Used when SMTP is not configured.
type NoopSender struct{}

func (NoopSender) SendPartnerWelcomeEmail(ctx context.Context, toEmail, partnerName, loginURL, temporaryPassword string) error {
	return nil
}

func (NoopSender) SendLeadConvertedEmail(ctx context.Context, toEmail, leadName, dealName, dealURL string) error {
	return nil
}

func (NoopSender) SendDealStageEmail(ctx context.Context, toEmail, dealName, stage, dealURL string) error {
	return nil
}

var (
	_ Sender = NoopSender{}
	_ Sender = (*SMTPSender)(nil)
)
