package service

import (
	"fmt"
	"log"

	gomail "gopkg.in/gomail.v2"

	"wildpals/internal/config"
)

// EmailSender delivers transactional email. The SMTP implementation is used
// in production; LogSender stands in when no SMTP host is configured so the
// reset flow stays usable in local development.
type EmailSender interface {
	SendPasswordReset(toEmail, toName, resetURL string) error
	SendPasswordChanged(toEmail, toName string) error
}

// SMTPSender sends email through an SMTP relay using gomail.
type SMTPSender struct {
	dialer   *gomail.Dialer
	fromAddr string
	fromName string
}

func NewSMTPSender(cfg *config.Config) *SMTPSender {
	return &SMTPSender{
		dialer:   gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass),
		fromAddr: cfg.EmailFromAddress,
		fromName: cfg.EmailFromName,
	}
}

func (s *SMTPSender) SendPasswordReset(toEmail, toName, resetURL string) error {
	body := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>We received a request to reset your password. Click the link below to choose a new one:</p>"+
			"<p><a href=%q>Reset your password</a></p>"+
			"<p>This link expires in 24 hours. If you did not request a reset, you can ignore this email.</p>",
		toName, resetURL)
	return s.send(toEmail, "Reset your password", body)
}

func (s *SMTPSender) SendPasswordChanged(toEmail, toName string) error {
	body := fmt.Sprintf(
		"<p>Hi %s,</p>"+
			"<p>Your password was just changed. If this was you, no action is needed.</p>"+
			"<p>If you did not change your password, reset it immediately and contact support.</p>",
		toName)
	return s.send(toEmail, "Your password was changed", body)
}

func (s *SMTPSender) send(toEmail, subject, htmlBody string) error {
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.fromAddr, s.fromName)
	m.SetHeader("To", toEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/html", htmlBody)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	return nil
}

// LogSender logs outbound email instead of sending it.
type LogSender struct{}

func (LogSender) SendPasswordReset(toEmail, toName, resetURL string) error {
	log.Printf("[Email] password reset for %s <%s>: %s", toName, toEmail, resetURL)
	return nil
}

func (LogSender) SendPasswordChanged(toEmail, toName string) error {
	log.Printf("[Email] password changed notice for %s <%s>", toName, toEmail)
	return nil
}

// NewEmailSender picks the SMTP sender when configured, the log fallback
// otherwise.
func NewEmailSender(cfg *config.Config) EmailSender {
	if cfg.SMTPHost == "" {
		log.Println("[Email] SMTP_HOST not set, emails will be logged instead of sent")
		return LogSender{}
	}
	return NewSMTPSender(cfg)
}
