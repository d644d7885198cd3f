package mail

import (
	"context"
	"fmt"
	"mime"
	"net/smtp"
	"strings"
	"time"

	"zapgate/internal/platform/config"
)

type SMTPTransport struct {
	cfg  config.SMTPConfig
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

func NewSMTPTransport(cfg config.SMTPConfig) *SMTPTransport {
	return &SMTPTransport{cfg: cfg, send: smtp.SendMail}
}

func (t *SMTPTransport) Deliver(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if t.cfg.Username != "" {
		auth = smtp.PlainAuth("", t.cfg.Username, t.cfg.Password, t.cfg.Host)
	}

	addr := fmt.Sprintf("%s:%d", t.cfg.Host, t.cfg.Port)
	return t.send(addr, auth, t.cfg.FromAddress, []string{msg.To}, t.compose(msg))
}

func (t *SMTPTransport) compose(msg Message) []byte {
	from := t.cfg.FromAddress
	if t.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", mime.QEncoding.Encode("utf-8", t.cfg.FromName), t.cfg.FromAddress)
	}

	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + msg.To + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", msg.Subject) + "\r\n")
	b.WriteString("Date: " + time.Now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("Message-ID: <" + msg.ID + "@" + t.cfg.Host + ">\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(strings.ReplaceAll(msg.Body, "\n", "\r\n"))
	return []byte(b.String())
}

// NewTransport picks SMTP when the provider asks for it and a host is set.
func NewTransport(cfg config.EmailConfig) Transport {
	if cfg.Provider == "smtp" && cfg.SMTP.Host != "" {
		return NewSMTPTransport(cfg.SMTP)
	}
	return LogTransport{}
}
