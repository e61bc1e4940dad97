package utils

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"
)

// OutboundEmail is one message handed to the delivery boundary.
type OutboundEmail struct {
	To         string
	ToName     string
	Subject    string
	HTML       string
	TrackingID string
}

// MailServiceInterface is the external delivery boundary. Send must be safe
// to call concurrently; its responsibility ends at a successful handoff.
type MailServiceInterface interface {
	Send(ctx context.Context, email OutboundEmail) error
}

// SMTPMailer delivers messages over SMTP.
type SMTPMailer struct {
	FromEmail string
	FromName  string
	dialer    *gomail.Dialer
	Logger    *logrus.Logger
}

func NewSMTPMailer(host string, port int, username, password, fromEmail, fromName string, logger *logrus.Logger) *SMTPMailer {
	return &SMTPMailer{
		FromEmail: fromEmail,
		FromName:  fromName,
		dialer:    gomail.NewDialer(host, port, username, password),
		Logger:    logger,
	}
}

// Send hands one message to the SMTP server. The dial-and-send runs in its
// own goroutine so the caller's context deadline bounds the handoff; a
// timeout counts as a failed handoff for that recipient only.
func (m *SMTPMailer) Send(ctx context.Context, email OutboundEmail) error {
	msg := gomail.NewMessage()
	msg.SetHeader("From", msg.FormatAddress(m.FromEmail, m.FromName))
	msg.SetHeader("To", msg.FormatAddress(email.To, email.ToName))
	msg.SetHeader("Subject", email.Subject)
	msg.SetHeader("X-Tracking-ID", email.TrackingID)
	msg.SetBody("text/html", email.HTML)

	done := make(chan error, 1)
	go func() {
		done <- m.dialer.DialAndSend(msg)
	}()

	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("smtp handoff failed: %w", err)
		}
		m.Logger.WithFields(logrus.Fields{
			"to":          email.To,
			"tracking_id": email.TrackingID,
		}).Debug("message handed off to smtp")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("smtp handoff timed out: %w", ctx.Err())
	}
}
