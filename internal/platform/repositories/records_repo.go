package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"
	"zapgate/internal/platform/models"
)

// RecordRepository persists the tenant-scoped domain records created over
// WhatsApp. Writes take an explicit executor so they can join the
// caller's transaction.
type RecordRepository struct {
	db *sqlx.DB
}

func NewRecordRepository(db *sqlx.DB) *RecordRepository {
	return &RecordRepository{db: db}
}

func jsonText(v interface{}) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *RecordRepository) InsertEleitor(ctx context.Context, ex sqlx.ExecerContext, e *models.Eleitor) error {
	if e.Tags == nil {
		e.Tags = []string{}
	}
	tags, err := jsonText(e.Tags)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO eleitores (id, gabinete_id, nome, telefone, endereco, tags, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.GabineteID, e.Nome, e.Telefone, e.Endereco, tags, e.CreatedAt)
	return err
}

func (r *RecordRepository) InsertDemanda(ctx context.Context, ex sqlx.ExecerContext, d *models.Demanda) error {
	if d.Anexos == nil {
		d.Anexos = []string{}
	}
	anexos, err := jsonText(d.Anexos)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO demandas (id, gabinete_id, titulo, descricao, status, anexos, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, d.ID, d.GabineteID, d.Titulo, d.Descricao, d.Status, anexos, d.CreatedAt)
	return err
}

func (r *RecordRepository) InsertIdeia(ctx context.Context, ex sqlx.ExecerContext, i *models.Ideia) error {
	if i.Anexos == nil {
		i.Anexos = []string{}
	}
	anexos, err := jsonText(i.Anexos)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		INSERT INTO ideias (id, gabinete_id, titulo, descricao, origem, anexos, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, i.ID, i.GabineteID, i.Titulo, i.Descricao, i.Origem, anexos, i.CreatedAt)
	return err
}

func (r *RecordRepository) InsertIndicacao(ctx context.Context, ex sqlx.ExecerContext, i *models.Indicacao) error {
	_, err := ex.ExecContext(ctx, `
		INSERT INTO indicacoes (id, gabinete_id, titulo, descricao, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, i.ID, i.GabineteID, i.Titulo, i.Descricao, i.Status, i.CreatedAt)
	return err
}

func (r *RecordRepository) InsertAgendaEvento(ctx context.Context, ex sqlx.ExecerContext, e *models.AgendaEvento) error {
	meta := string(e.Meta)
	if meta == "" || meta == "null" {
		meta = "{}"
		e.Meta = json.RawMessage(meta)
	}
	_, err := ex.ExecContext(ctx, `
		INSERT INTO agenda_eventos (id, gabinete_id, criador_whatsapp, titulo, descricao, inicio, fim, local, meta, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.GabineteID, e.CriadorWhatsApp, e.Titulo, e.Descricao, e.Inicio, e.Fim, e.Local, meta, e.CreatedAt)
	return err
}

// AgendaFilter bounds are RFC3339 UTC strings; empty means unbounded.
type AgendaFilter struct {
	From  string
	To    string
	Limit int
}

type agendaRow struct {
	models.AgendaEvento
	MetaText string `db:"meta"`
}

// ListAgenda returns the gabinete's events ordered by start time.
func (r *RecordRepository) ListAgenda(ctx context.Context, q sqlx.QueryerContext, gabineteID string, f AgendaFilter) ([]*models.AgendaEvento, error) {
	query := `
		SELECT id, gabinete_id, criador_whatsapp, titulo, descricao, inicio, fim, local, meta, created_at
		FROM agenda_eventos
		WHERE gabinete_id = ?`
	args := []interface{}{gabineteID}

	if f.From != "" {
		query += ` AND inicio >= ?`
		args = append(args, f.From)
	}
	if f.To != "" {
		query += ` AND fim IS NOT NULL AND fim <= ?`
		args = append(args, f.To)
	}
	query += ` ORDER BY inicio ASC`
	if f.Limit > 0 {
		query += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	var rows []agendaRow
	if err := sqlx.SelectContext(ctx, q, &rows, query, args...); err != nil {
		return nil, err
	}

	events := make([]*models.AgendaEvento, 0, len(rows))
	for i := range rows {
		e := rows[i].AgendaEvento
		e.Meta = json.RawMessage(rows[i].MetaText)
		events = append(events, &e)
	}
	return events, nil
}

// Stats counts the gabinete's records and its integration activity since
// the given unix timestamp.
func (r *RecordRepository) Stats(ctx context.Context, gabineteID string, since int64) (*models.TenantStats, error) {
	var s models.TenantStats
	err := r.db.GetContext(ctx, &s, `
		SELECT
			(SELECT COUNT(*) FROM eleitores WHERE gabinete_id = ?)      AS eleitores,
			(SELECT COUNT(*) FROM demandas WHERE gabinete_id = ?)       AS demandas,
			(SELECT COUNT(*) FROM ideias WHERE gabinete_id = ?)         AS ideias,
			(SELECT COUNT(*) FROM indicacoes WHERE gabinete_id = ?)     AS indicacoes,
			(SELECT COUNT(*) FROM agenda_eventos WHERE gabinete_id = ?) AS agenda_eventos,
			(SELECT COUNT(*) FROM usuarios_whatsapp WHERE gabinete_id = ? AND ativo = 1) AS bindings_ativos,
			(SELECT COUNT(*) FROM webhook_events WHERE gabinete_id = ? AND processed_at >= ?) AS webhook_events_24h
	`, gabineteID, gabineteID, gabineteID, gabineteID, gabineteID, gabineteID, gabineteID, since)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.TenantStats{}, nil
		}
		return nil, err
	}
	return &s, nil
}
