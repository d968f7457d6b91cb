package notifier

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// Email sends alerts through an SMTP relay to one recipient.
type Email struct {
	addr string
	auth smtp.Auth
	from string
	to   string

	// send is smtp.SendMail; swapped in tests.
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewEmail(host string, port int, username, password, from, to string) (*Email, error) {
	if strings.TrimSpace(host) == "" {
		return nil, errors.New("smtp host is required")
	}
	if strings.TrimSpace(to) == "" {
		return nil, errors.New("notification_email is required for email alerts")
	}
	if from == "" {
		from = to
	}
	if port <= 0 {
		port = 587
	}
	e := &Email{
		addr: net.JoinHostPort(host, strconv.Itoa(port)),
		from: from,
		to:   to,
		send: smtp.SendMail,
	}
	if username != "" {
		e.auth = smtp.PlainAuth("", username, password, host)
	}
	return e, nil
}

func (e *Email) Name() string { return "email" }

func (e *Email) Send(ctx context.Context, m Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return e.send(e.addr, e.auth, e.from, []string{e.to}, e.compose(m, time.Now()))
}

func (e *Email) compose(m Message, at time.Time) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", e.from)
	fmt.Fprintf(&b, "To: %s\r\n", e.to)
	fmt.Fprintf(&b, "Subject: %s\r\n", headerSafe(m.Subject))
	fmt.Fprintf(&b, "Date: %s\r\n", at.Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(m.Text, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String())
}

func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
