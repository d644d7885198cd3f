package actions

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"zapgate/internal/engine/identity"
	"zapgate/internal/engine/permissions"
	"zapgate/internal/pkg/ids"
	"zapgate/internal/platform/models"
	"zapgate/internal/platform/repositories"
)

const (
	DefaultAgendaLimit = 50
	MaxAgendaLimit     = 100
)

// parseTime accepts RFC3339 and returns it normalized to UTC so stored
// values compare correctly as text.
func parseTime(field, value string) (string, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(value))
	if err != nil {
		return "", invalid(field, "data deve estar no formato RFC3339")
	}
	return t.UTC().Format(time.RFC3339), nil
}

type CreateEvento struct {
	repo *repositories.RecordRepository
}

func (h *CreateEvento) Action() permissions.Action { return permissions.CreateEvent }

func (h *CreateEvento) Handle(ctx context.Context, tx *sqlx.Tx, id *identity.Identity, payload json.RawMessage) (*Result, error) {
	var in struct {
		Titulo    string          `json:"titulo"`
		Descricao string          `json:"descricao"`
		Inicio    string          `json:"inicio"`
		Fim       string          `json:"fim"`
		Local     string          `json:"local"`
		Meta      json.RawMessage `json:"meta"`
	}
	if err := decode(payload, &in); err != nil {
		return nil, err
	}

	titulo, err := required("titulo", in.Titulo)
	if err != nil {
		return nil, err
	}
	if _, err := required("inicio", in.Inicio); err != nil {
		return nil, err
	}
	inicio, err := parseTime("inicio", in.Inicio)
	if err != nil {
		return nil, err
	}

	var fim *string
	if strings.TrimSpace(in.Fim) != "" {
		f, err := parseTime("fim", in.Fim)
		if err != nil {
			return nil, err
		}
		if f < inicio {
			return nil, invalid("fim", "deve ser posterior ao início")
		}
		fim = &f
	}

	meta := bytes.TrimSpace(in.Meta)
	if len(meta) > 0 && !bytes.Equal(meta, []byte("null")) && meta[0] != '{' {
		return nil, invalid("meta", "deve ser um objeto")
	}

	e := &models.AgendaEvento{
		ID:              ids.New("evt_"),
		GabineteID:      id.TenantID,
		CriadorWhatsApp: id.Phone,
		Titulo:          titulo,
		Descricao:       in.Descricao,
		Inicio:          inicio,
		Fim:             fim,
		Local:           in.Local,
		Meta:            json.RawMessage(meta),
		CreatedAt:       time.Now().Unix(),
	}
	if err := h.repo.InsertAgendaEvento(ctx, tx, e); err != nil {
		return nil, err
	}
	return &Result{ID: e.ID, Message: "Evento criado.", Data: e}, nil
}

type ListEventos struct {
	repo *repositories.RecordRepository
}

func (h *ListEventos) Action() permissions.Action { return permissions.ListEvents }

func (h *ListEventos) Handle(ctx context.Context, tx *sqlx.Tx, id *identity.Identity, payload json.RawMessage) (*Result, error) {
	var in struct {
		From  string `json:"from"`
		To    string `json:"to"`
		Limit int    `json:"limit"`
	}
	if err := decode(payload, &in); err != nil {
		return nil, err
	}

	f := repositories.AgendaFilter{Limit: in.Limit}
	var err error
	if in.From != "" {
		if f.From, err = parseTime("from", in.From); err != nil {
			return nil, err
		}
	}
	if in.To != "" {
		if f.To, err = parseTime("to", in.To); err != nil {
			return nil, err
		}
	}
	switch {
	case f.Limit <= 0:
		f.Limit = DefaultAgendaLimit
	case f.Limit > MaxAgendaLimit:
		f.Limit = MaxAgendaLimit
	}

	events, err := h.repo.ListAgenda(ctx, tx, id.TenantID, f)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []*models.AgendaEvento{}
	}
	count := len(events)
	return &Result{Items: events, Count: &count}, nil
}
