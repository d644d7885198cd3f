package actions

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"
	"zapgate/internal/engine/identity"
	"zapgate/internal/engine/permissions"
	"zapgate/internal/pkg/ids"
	"zapgate/internal/pkg/phone"
	"zapgate/internal/platform/models"
	"zapgate/internal/platform/repositories"
)

const (
	StatusDemandaAberta   = "ABERTA"
	StatusIndicacaoCriada = "CRIADA"
	OrigemWhatsApp        = "whatsapp"
)

type CreateEleitor struct {
	repo *repositories.RecordRepository
}

func (h *CreateEleitor) Action() permissions.Action { return permissions.CreateVoter }

func (h *CreateEleitor) Handle(ctx context.Context, tx *sqlx.Tx, id *identity.Identity, payload json.RawMessage) (*Result, error) {
	var in struct {
		Nome     string   `json:"nome"`
		Telefone string   `json:"telefone_e164"`
		Endereco string   `json:"endereco"`
		Tags     []string `json:"tags"`
	}
	if err := decode(payload, &in); err != nil {
		return nil, err
	}

	nome, err := required("nome", in.Nome)
	if err != nil {
		return nil, err
	}

	telefone := ""
	if in.Telefone != "" {
		telefone = phone.Normalize(in.Telefone)
		if !phone.Valid(telefone) {
			return nil, invalid("telefone_e164", "número inválido")
		}
	}

	e := &models.Eleitor{
		ID:         ids.New("ele_"),
		GabineteID: id.TenantID,
		Nome:       nome,
		Telefone:   telefone,
		Endereco:   in.Endereco,
		Tags:       cleanList(in.Tags),
		CreatedAt:  time.Now().Unix(),
	}
	if err := h.repo.InsertEleitor(ctx, tx, e); err != nil {
		return nil, err
	}
	return &Result{ID: e.ID, Message: "Eleitor cadastrado.", Data: e}, nil
}

type CreateDemanda struct {
	repo *repositories.RecordRepository
}

func (h *CreateDemanda) Action() permissions.Action { return permissions.CreateCase }

func (h *CreateDemanda) Handle(ctx context.Context, tx *sqlx.Tx, id *identity.Identity, payload json.RawMessage) (*Result, error) {
	var in struct {
		Titulo    string   `json:"titulo"`
		Descricao string   `json:"descricao"`
		Anexos    []string `json:"anexos"`
	}
	if err := decode(payload, &in); err != nil {
		return nil, err
	}

	titulo, err := required("titulo", in.Titulo)
	if err != nil {
		return nil, err
	}

	d := &models.Demanda{
		ID:         ids.New("dem_"),
		GabineteID: id.TenantID,
		Titulo:     titulo,
		Descricao:  in.Descricao,
		Status:     StatusDemandaAberta,
		Anexos:     cleanList(in.Anexos),
		CreatedAt:  time.Now().Unix(),
	}
	if err := h.repo.InsertDemanda(ctx, tx, d); err != nil {
		return nil, err
	}
	return &Result{ID: d.ID, Status: d.Status, Message: "Demanda criada.", Data: d}, nil
}

type CreateIdeia struct {
	repo *repositories.RecordRepository
}

func (h *CreateIdeia) Action() permissions.Action { return permissions.CreateIdea }

func (h *CreateIdeia) Handle(ctx context.Context, tx *sqlx.Tx, id *identity.Identity, payload json.RawMessage) (*Result, error) {
	var in struct {
		Titulo    string   `json:"titulo"`
		Descricao string   `json:"descricao"`
		Anexos    []string `json:"anexos"`
	}
	if err := decode(payload, &in); err != nil {
		return nil, err
	}

	titulo, err := required("titulo", in.Titulo)
	if err != nil {
		return nil, err
	}

	i := &models.Ideia{
		ID:         ids.New("ide_"),
		GabineteID: id.TenantID,
		Titulo:     titulo,
		Descricao:  in.Descricao,
		Origem:     OrigemWhatsApp,
		Anexos:     cleanList(in.Anexos),
		CreatedAt:  time.Now().Unix(),
	}
	if err := h.repo.InsertIdeia(ctx, tx, i); err != nil {
		return nil, err
	}
	return &Result{ID: i.ID, Message: "Ideia registrada.", Data: i}, nil
}

type CreateIndicacao struct {
	repo *repositories.RecordRepository
}

func (h *CreateIndicacao) Action() permissions.Action { return permissions.CreateIndication }

func (h *CreateIndicacao) Handle(ctx context.Context, tx *sqlx.Tx, id *identity.Identity, payload json.RawMessage) (*Result, error) {
	var in struct {
		Titulo    string `json:"titulo"`
		Descricao string `json:"descricao"`
	}
	if err := decode(payload, &in); err != nil {
		return nil, err
	}

	titulo, err := required("titulo", in.Titulo)
	if err != nil {
		return nil, err
	}

	i := &models.Indicacao{
		ID:         ids.New("ind_"),
		GabineteID: id.TenantID,
		Titulo:     titulo,
		Descricao:  in.Descricao,
		Status:     StatusIndicacaoCriada,
		CreatedAt:  time.Now().Unix(),
	}
	if err := h.repo.InsertIndicacao(ctx, tx, i); err != nil {
		return nil, err
	}
	return &Result{ID: i.ID, Status: i.Status, Message: "Indicação criada.", Data: i}, nil
}
