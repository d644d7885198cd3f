package models

import "encoding/json"

type Gabinete struct {
	ID        string `json:"id" db:"id"`
	Nome      string `json:"nome" db:"nome"`
	CreatedAt int64  `json:"created_at" db:"created_at"`
}

// Binding links a WhatsApp number to a user of one gabinete. Rows are
// deactivated, never deleted.
type Binding struct {
	ID           string `json:"id" db:"id"`
	GabineteID   string `json:"gabinete_id" db:"gabinete_id"`
	GabineteNome string `json:"gabinete_nome,omitempty" db:"gabinete_nome"`
	Nome         string `json:"nome" db:"nome"`
	Email        string `json:"email" db:"email"`
	WhatsAppE164 string `json:"whatsapp_e164" db:"whatsapp_e164"`
	Cargo        string `json:"cargo" db:"cargo"`
	Ativo        bool   `json:"ativo" db:"ativo"`
	CreatedAt    int64  `json:"created_at" db:"created_at"`
	UpdatedAt    int64  `json:"updated_at" db:"updated_at"`
}

type Eleitor struct {
	ID         string   `json:"id" db:"id"`
	GabineteID string   `json:"gabinete_id" db:"gabinete_id"`
	Nome       string   `json:"nome" db:"nome"`
	Telefone   string   `json:"telefone" db:"telefone"`
	Endereco   string   `json:"endereco" db:"endereco"`
	Tags       []string `json:"tags" db:"-"`
	CreatedAt  int64    `json:"created_at" db:"created_at"`
}

type Demanda struct {
	ID         string   `json:"id" db:"id"`
	GabineteID string   `json:"gabinete_id" db:"gabinete_id"`
	Titulo     string   `json:"titulo" db:"titulo"`
	Descricao  string   `json:"descricao" db:"descricao"`
	Status     string   `json:"status" db:"status"`
	Anexos     []string `json:"anexos" db:"-"`
	CreatedAt  int64    `json:"created_at" db:"created_at"`
}

type Ideia struct {
	ID         string   `json:"id" db:"id"`
	GabineteID string   `json:"gabinete_id" db:"gabinete_id"`
	Titulo     string   `json:"titulo" db:"titulo"`
	Descricao  string   `json:"descricao" db:"descricao"`
	Origem     string   `json:"origem" db:"origem"`
	Anexos     []string `json:"anexos" db:"-"`
	CreatedAt  int64    `json:"created_at" db:"created_at"`
}

type Indicacao struct {
	ID         string `json:"id" db:"id"`
	GabineteID string `json:"gabinete_id" db:"gabinete_id"`
	Titulo     string `json:"titulo" db:"titulo"`
	Descricao  string `json:"descricao" db:"descricao"`
	Status     string `json:"status" db:"status"`
	CreatedAt  int64  `json:"created_at" db:"created_at"`
}

type AgendaEvento struct {
	ID              string          `json:"id" db:"id"`
	GabineteID      string          `json:"gabinete_id" db:"gabinete_id"`
	CriadorWhatsApp string          `json:"criador_whatsapp" db:"criador_whatsapp"`
	Titulo          string          `json:"titulo" db:"titulo"`
	Descricao       string          `json:"descricao" db:"descricao"`
	Inicio          string          `json:"inicio" db:"inicio"`
	Fim             *string         `json:"fim" db:"fim"`
	Local           string          `json:"local" db:"local"`
	Meta            json.RawMessage `json:"meta" db:"-"`
	CreatedAt       int64           `json:"created_at" db:"created_at"`
}

// TenantStats is the per-gabinete summary shown on the integration page.
type TenantStats struct {
	Eleitores      int `json:"eleitores" db:"eleitores"`
	Demandas       int `json:"demandas" db:"demandas"`
	Ideias         int `json:"ideias" db:"ideias"`
	Indicacoes     int `json:"indicacoes" db:"indicacoes"`
	AgendaEventos  int `json:"agenda_eventos" db:"agenda_eventos"`
	BindingsAtivos int `json:"bindings_ativos" db:"bindings_ativos"`
	EventsLast24h  int `json:"webhook_events_24h" db:"webhook_events_24h"`
}
