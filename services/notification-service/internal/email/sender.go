package email

import (
	"net"
	"net/smtp"
	"strings"
)

const defaultFrom = "no-reply@himsog.local"

// Sender delivers patient-facing email such as appointment reminders
// and booking confirmations.
type Sender interface {
	Send(to string, subject string, body string) error
}

// SMTPSender talks plain SMTP without authentication, which matches
// the Mailpit relay used in local and staging environments.
type SMTPSender struct {
	addr string
	from string
}

func NewSMTPSender(host string, port string, from string) *SMTPSender {
	from = strings.TrimSpace(from)
	if from == "" {
		from = defaultFrom
	}
	return &SMTPSender{
		addr: net.JoinHostPort(strings.TrimSpace(host), strings.TrimSpace(port)),
		from: from,
	}
}

func (s *SMTPSender) Send(to string, subject string, body string) error {
	var msg strings.Builder
	header := func(name, value string) {
		msg.WriteString(name)
		msg.WriteString(": ")
		msg.WriteString(value)
		msg.WriteString("\r\n")
	}
	header("From", s.from)
	header("To", to)
	header("Subject", subject)
	header("MIME-Version", "1.0")
	header("Content-Type", "text/plain; charset=utf-8")
	msg.WriteString("\r\n")
	msg.WriteString(body)
	msg.WriteString("\r\n")
	return smtp.SendMail(s.addr, nil, s.from, []string{to}, []byte(msg.String()))
}
