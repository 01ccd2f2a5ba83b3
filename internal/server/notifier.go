package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"strings"

	"github.com/MrEthical07/clinicauth"
	mail "github.com/go-mail/mail"
	"go.uber.org/zap"
)

// dialer is the part of *mail.Dialer the notifier uses.
type dialer interface {
	DialAndSend(m ...*mail.Message) error
}

// MailNotifier sends reset and verification links over SMTP.
type MailNotifier struct {
	from    string
	baseURL string
	dialer  dialer
	log     *zap.Logger
}

// NewMailNotifier builds a notifier from the smtp section. It returns nil
// when no host is configured.
func NewMailNotifier(c *Config, log *zap.Logger) *MailNotifier {
	if c.SMTP.Host == "" {
		return nil
	}
	d := mail.NewDialer(c.SMTP.Host, c.SMTP.Port, c.SMTP.Username, c.SMTP.Password)
	d.TLSConfig = &tls.Config{ServerName: c.SMTP.Host, InsecureSkipVerify: c.SMTP.InsecureSkipVerify}
	switch strings.ToLower(c.SMTP.TLS) {
	case "ssl":
		d.SSL = true
	case "none":
		d.StartTLSPolicy = mail.NoStartTLS
	case "starttls":
		d.StartTLSPolicy = mail.MandatoryStartTLS
	}
	return &MailNotifier{from: c.SMTP.From, baseURL: strings.TrimRight(c.SMTP.BaseURL, "/"), dialer: d, log: log}
}

// SendPasswordReset implements clinicauth.Notifier.
func (n *MailNotifier) SendPasswordReset(ctx context.Context, user *clinicauth.UserRecord, raw string) error {
	link := n.link("/reset-password", raw)
	body := fmt.Sprintf("Hello %s,\n\nUse the link below to choose a new password. It expires soon and works once.\n\n%s\n\nIf you did not ask for this, ignore this message.\n",
		displayName(user), link)
	return n.send(ctx, user, "Reset your password", body)
}

// SendEmailVerification implements clinicauth.Notifier.
func (n *MailNotifier) SendEmailVerification(ctx context.Context, user *clinicauth.UserRecord, raw string) error {
	link := n.link("/verify-email", raw)
	body := fmt.Sprintf("Hello %s,\n\nConfirm your email address:\n\n%s\n", displayName(user), link)
	return n.send(ctx, user, "Verify your email address", body)
}

func (n *MailNotifier) send(ctx context.Context, user *clinicauth.UserRecord, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m := mail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", user.Email)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", body)

	if err := n.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	n.log.Debug("mail sent", zap.String("user_id", user.ID), zap.String("subject", subject))
	return nil
}

func (n *MailNotifier) link(path, raw string) string {
	return n.baseURL + path + "?token=" + url.QueryEscape(raw)
}

func displayName(u *clinicauth.UserRecord) string {
	if name := strings.TrimSpace(u.FirstName); name != "" {
		return name
	}
	return u.Username
}
