package mail

import (
	"context"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"
)

// SMTPConfig holds the relay settings. Username empty means no AUTH.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// SMTPGateway delivers each message with one SMTP transaction.
type SMTPGateway struct {
	cfg  SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
	now  func() time.Time
}

func NewSMTPGateway(cfg SMTPConfig) *SMTPGateway {
	return &SMTPGateway{cfg: cfg, send: smtp.SendMail, now: time.Now}
}

func (g *SMTPGateway) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.ContainsAny(to, "\r\n") || strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("smtp: header injection rejected")
	}

	var auth smtp.Auth
	if g.cfg.Username != "" {
		auth = smtp.PlainAuth("", g.cfg.Username, g.cfg.Password, g.cfg.Host)
	}
	addr := net.JoinHostPort(g.cfg.Host, strconv.Itoa(g.cfg.Port))

	if err := g.send(addr, auth, g.cfg.From, []string{to}, g.compose(to, subject, body)); err != nil {
		return fmt.Errorf("smtp send to %s: %w", to, err)
	}
	return nil
}

func (g *SMTPGateway) compose(to, subject, body string) []byte {
	var b strings.Builder
	b.WriteString("From: " + g.cfg.From + "\r\n")
	b.WriteString("To: " + to + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + g.now().UTC().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return []byte(b.String())
}
