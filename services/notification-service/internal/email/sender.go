// Package email sends reminder mail over plain SMTP. Salons run this
// against their own relay or a compose-local mailhog.
package email

import (
	"fmt"
	"net/smtp"
	"strings"
)

type Sender struct {
	host string
	port string
	from string
	auth smtp.Auth
}

func NewSender(host, port, from, username, password string) *Sender {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &Sender{host: host, port: port, from: from, auth: auth}
}

func (s *Sender) Send(to, subject, body string) error {
	if s.host == "" {
		return fmt.Errorf("email: smtp host not configured")
	}
	msg := strings.Join([]string{
		"From: " + s.from,
		"To: " + to,
		"Subject: " + subject,
		"MIME-Version: 1.0",
		"Content-Type: text/plain; charset=utf-8",
		"",
		body,
	}, "\r\n")
	addr := s.host + ":" + s.port
	if err := smtp.SendMail(addr, s.auth, s.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("email: send to %s: %w", to, err)
	}
	return nil
}
