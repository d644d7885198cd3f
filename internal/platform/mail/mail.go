// Package mail is the boundary to transactional email: callers hand over a
// template type, a recipient and variables and get an email id back.
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"text/template"

	"github.com/rs/zerolog/log"
	"zapgate/internal/pkg/ids"
	"zapgate/internal/pkg/validator"
)

// Sender is what the rest of the application depends on.
type Sender interface {
	Send(ctx context.Context, templateType, recipient string, vars map[string]string) (string, error)
}

// Message is a rendered email ready for a transport.
type Message struct {
	ID      string
	To      string
	Subject string
	Body    string
}

type Transport interface {
	Deliver(ctx context.Context, msg Message) error
}

type Mailer struct {
	templates *TemplateStore
	transport Transport
}

func NewMailer(templates *TemplateStore, transport Transport) *Mailer {
	return &Mailer{templates: templates, transport: transport}
}

func (m *Mailer) Send(ctx context.Context, templateType, recipient string, vars map[string]string) (string, error) {
	if err := validator.Email(recipient); err != nil {
		return "", fmt.Errorf("recipient: %w", err)
	}

	tpl, err := m.templates.Lookup(ctx, templateType)
	if err != nil {
		return "", err
	}

	subject, err := render(tpl.Type+".subject", tpl.Subject, vars)
	if err != nil {
		return "", err
	}
	body, err := render(tpl.Type+".body", tpl.Body, vars)
	if err != nil {
		return "", err
	}

	msg := Message{ID: ids.New("eml_"), To: recipient, Subject: subject, Body: body}
	if err := m.transport.Deliver(ctx, msg); err != nil {
		return "", fmt.Errorf("deliver %s: %w", templateType, err)
	}

	log.Info().Str("email_id", msg.ID).Str("template", templateType).Msg("email sent")
	return msg.ID, nil
}

func render(name, text string, vars map[string]string) (string, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return "", fmt.Errorf("parse template %s: %w", name, err)
	}
	if vars == nil {
		vars = map[string]string{}
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("render template %s: %w", name, err)
	}
	return buf.String(), nil
}

// LogTransport only logs; used when no SMTP server is configured.
type LogTransport struct{}

func (LogTransport) Deliver(ctx context.Context, msg Message) error {
	if msg.To == "" {
		return errors.New("empty recipient")
	}
	log.Info().
		Str("email_id", msg.ID).
		Str("to", msg.To).
		Str("subject", msg.Subject).
		Msg("email delivery skipped (log transport)")
	return nil
}
