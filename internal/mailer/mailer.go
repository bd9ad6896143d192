package mailer

import (
	"fmt"
	"net/smtp"

	"order-service/internal/config"
)

// Mailer delivers outbound mail. Delivery is decoupled from signup session
// creation: a failed send leaves the session intact and retryable.
type Mailer interface {
	SendOTP(to, code string) error
}

type smtpMailer struct {
	host     string
	port     string
	from     string
	username string
	password string
}

func NewMailer(cfg *config.Config) Mailer {
	return &smtpMailer{
		host:     cfg.SMTP.Host,
		port:     cfg.SMTP.Port,
		from:     cfg.SMTP.From,
		username: cfg.SMTP.Username,
		password: cfg.SMTP.Password,
	}
}

func (m *smtpMailer) SendOTP(to, code string) error {
	subject := "Chuks - Verify your email address"
	body := fmt.Sprintf("Your OTP is %s", code)
	return m.send(to, subject, body)
}

func (m *smtpMailer) send(to, subject, body string) error {
	msg := fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\n\r\n%s", m.from, to, subject, body)
	addr := fmt.Sprintf("%s:%s", m.host, m.port)

	var auth smtp.Auth
	if m.username != "" {
		auth = smtp.PlainAuth("", m.username, m.password, m.host)
	}

	return smtp.SendMail(addr, auth, m.from, []string{to}, []byte(msg))
}
