package email

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"strings"
)

var ErrNotConfigured = errors.New("SMTP configuration missing")

// Mailer delivers a newly issued license key to its buyer.
type Mailer interface {
	SendLicenseKey(ctx context.Context, to, key, licenseType string) error
}

type SMTPConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
}

type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPMailer struct {
	cfg  SMTPConfig
	send SendFunc
}

func NewSMTPMailer(cfg SMTPConfig) (*SMTPMailer, error) {
	if cfg.Host == "" || cfg.Port == "" || cfg.Username == "" || cfg.Password == "" {
		return nil, ErrNotConfigured
	}
	if cfg.From == "" {
		cfg.From = cfg.Username
	}
	return &SMTPMailer{cfg: cfg, send: smtp.SendMail}, nil
}

// WithSendFunc replaces the transport, mainly for tests.
func (m *SMTPMailer) WithSendFunc(send SendFunc) *SMTPMailer {
	m.send = send
	return m
}

func (m *SMTPMailer) SendLicenseKey(ctx context.Context, to, key, licenseType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") {
		return errors.New("invalid recipient address")
	}

	msg := buildMessage(m.cfg.From, to, "Your VEO3 license key", licenseBody(key, licenseType))
	auth := smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	addr := fmt.Sprintf("%s:%s", m.cfg.Host, m.cfg.Port)

	if err := m.send(addr, auth, m.cfg.From, []string{to}, msg); err != nil {
		return fmt.Errorf("failed to send license email: %w", err)
	}
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	return []byte(fmt.Sprintf("From: %s\r\n"+
		"To: %s\r\n"+
		"Subject: %s\r\n"+
		"\r\n"+
		"%s\r\n", from, to, subject, body))
}

func licenseBody(key, licenseType string) string {
	return fmt.Sprintf(`Hello,

Thank you for your purchase. Your license is ready to activate.

License Key: %s
Plan: %s

Enter the key in the extension settings together with this email address to activate it.
The license term starts on activation.

We do not track usage and keep nothing about you beyond this key and your email address.`,
		key, licenseType)
}
