// Package mail sends transactional email over SMTP.
package mail

import (
	"fmt"
	"log"

	"gopkg.in/gomail.v2"
)

// Config holds SMTP transport settings
type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

// Sender delivers a single HTML message and reports its id
type Sender interface {
	Send(to, subject, htmlBody string) (string, error)
}

// Mailer is the SMTP-backed Sender
type Mailer struct {
	cfg    Config
	dialer *gomail.Dialer
}

func NewMailer(cfg Config) *Mailer {
	return &Mailer{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

// Send delivers an HTML email and returns the generated message id
func (m *Mailer) Send(to, subject, htmlBody string) (string, error) {
	msg := gomail.NewMessage()
	msg.SetAddressHeader("From", m.cfg.From, m.cfg.FromName)
	msg.SetHeader("To", to)
	msg.SetHeader("Subject", subject)
	messageID := fmt.Sprintf("<%s@%s>", newID(), m.cfg.Host)
	msg.SetHeader("Message-ID", messageID)
	msg.SetBody("text/html", htmlBody)

	if err := m.dialer.DialAndSend(msg); err != nil {
		return "", fmt.Errorf("enviar email para %s: %w", to, err)
	}
	log.Printf("[Mail] email enviado para %s (%s)", to, messageID)
	return messageID, nil
}
