package mail

import (
	"context"
	"database/sql"
)

type Template struct {
	Type    string
	Subject string
	Body    string
}

var defaults = map[string]Template{
	"whatsapp_welcome": {
		Type:    "whatsapp_welcome",
		Subject: "Seu WhatsApp foi vinculado ao {{.gabinete}}",
		Body: "Olá {{.nome}},\n\n" +
			"O número {{.whatsapp}} agora está vinculado ao {{.gabinete}} com o cargo {{.cargo}}.\n" +
			"Você já pode registrar eleitores, demandas e ideias pelo WhatsApp.\n",
	},
	"whatsapp_unlinked": {
		Type:    "whatsapp_unlinked",
		Subject: "Seu WhatsApp foi desvinculado do {{.gabinete}}",
		Body:    "Olá {{.nome}},\n\nO número {{.whatsapp}} não está mais vinculado ao {{.gabinete}}.\n",
	},
}

var generic = Template{
	Type:    "generic",
	Subject: "{{if .subject}}{{.subject}}{{else}}Notificação do gabinete{{end}}",
	Body:    "{{if .message}}{{.message}}{{else}}Você recebeu uma nova notificação.{{end}}\n",
}

// TemplateStore resolves a template type to an active override in
// email_templates, then to a built-in default.
type TemplateStore struct {
	db *sql.DB
}

func NewTemplateStore(db *sql.DB) *TemplateStore {
	return &TemplateStore{db: db}
}

func (s *TemplateStore) Lookup(ctx context.Context, templateType string) (Template, error) {
	if s.db != nil {
		t := Template{Type: templateType}
		err := s.db.QueryRowContext(ctx, `
			SELECT subject, body FROM email_templates WHERE type = ? AND is_active = 1
		`, templateType).Scan(&t.Subject, &t.Body)
		switch {
		case err == nil:
			return t, nil
		case err != sql.ErrNoRows:
			return Template{}, err
		}
	}

	if t, ok := defaults[templateType]; ok {
		return t, nil
	}
	return generic, nil
}
