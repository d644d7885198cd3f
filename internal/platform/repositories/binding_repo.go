package repositories

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/mattn/go-sqlite3"
	"zapgate/internal/platform/models"
)

// ErrPhoneTaken is returned when a number is already held by an active
// binding. Revoked bindings never block a number.
var ErrPhoneTaken = errors.New("whatsapp number already linked")

// phoneTaken maps a hit on the active-phone unique index to ErrPhoneTaken.
func phoneTaken(err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return ErrPhoneTaken
	}
	return err
}

type BindingRepository struct {
	db *sql.DB
}

func NewBindingRepository(db *sql.DB) *BindingRepository {
	return &BindingRepository{db: db}
}

const bindingColumns = `u.id, u.gabinete_id, g.nome, u.nome, u.email, u.whatsapp_e164, u.cargo, u.ativo, u.created_at, u.updated_at`

func scanBinding(row interface{ Scan(...interface{}) error }) (*models.Binding, error) {
	b := &models.Binding{}
	err := row.Scan(&b.ID, &b.GabineteID, &b.GabineteNome, &b.Nome, &b.Email, &b.WhatsAppE164, &b.Cargo, &b.Ativo, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetActiveByPhone returns nil, nil when no active binding exists for phone.
func (r *BindingRepository) GetActiveByPhone(ctx context.Context, phone string) (*models.Binding, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+bindingColumns+`
		FROM usuarios_whatsapp u
		JOIN gabinetes g ON g.id = u.gabinete_id
		WHERE u.whatsapp_e164 = ? AND u.ativo = 1
	`, phone)

	b, err := scanBinding(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (r *BindingRepository) GetByID(ctx context.Context, gabineteID, id string) (*models.Binding, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+bindingColumns+`
		FROM usuarios_whatsapp u
		JOIN gabinetes g ON g.id = u.gabinete_id
		WHERE u.id = ? AND u.gabinete_id = ?
	`, id, gabineteID)

	b, err := scanBinding(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return b, nil
}

func (r *BindingRepository) ListByGabinete(ctx context.Context, gabineteID string) ([]*models.Binding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+bindingColumns+`
		FROM usuarios_whatsapp u
		JOIN gabinetes g ON g.id = u.gabinete_id
		WHERE u.gabinete_id = ?
		ORDER BY u.created_at DESC
	`, gabineteID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bindings := []*models.Binding{}
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

// CreateTx inserts b inside tx so the caller can enqueue the matching
// outbound event atomically.
func (r *BindingRepository) CreateTx(ctx context.Context, tx *sql.Tx, b *models.Binding) error {
	now := time.Now().Unix()
	b.CreatedAt = now
	b.UpdatedAt = now

	if b.Ativo {
		var existing int
		if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM usuarios_whatsapp WHERE whatsapp_e164 = ? AND ativo = 1`, b.WhatsAppE164).Scan(&existing); err != nil {
			return err
		}
		if existing > 0 {
			return ErrPhoneTaken
		}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO usuarios_whatsapp (id, gabinete_id, nome, email, whatsapp_e164, cargo, ativo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, b.ID, b.GabineteID, b.Nome, b.Email, b.WhatsAppE164, b.Cargo, b.Ativo, b.CreatedAt, b.UpdatedAt)
	return phoneTaken(err)
}

func (r *BindingRepository) Update(ctx context.Context, b *models.Binding) error {
	b.UpdatedAt = time.Now().Unix()

	// only an active binding competes for the number, so reactivating
	// checks like a create does
	if b.Ativo {
		var clash int
		err := r.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM usuarios_whatsapp WHERE whatsapp_e164 = ? AND ativo = 1 AND id <> ?`, b.WhatsAppE164, b.ID).Scan(&clash)
		if err != nil {
			return err
		}
		if clash > 0 {
			return ErrPhoneTaken
		}
	}

	_, err := r.db.ExecContext(ctx, `
		UPDATE usuarios_whatsapp
		SET nome = ?, email = ?, whatsapp_e164 = ?, cargo = ?, ativo = ?, updated_at = ?
		WHERE id = ? AND gabinete_id = ?
	`, b.Nome, b.Email, b.WhatsAppE164, b.Cargo, b.Ativo, b.UpdatedAt, b.ID, b.GabineteID)
	return phoneTaken(err)
}

// Deactivate reports whether a binding of gabineteID was found.
func (r *BindingRepository) Deactivate(ctx context.Context, gabineteID, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE usuarios_whatsapp SET ativo = 0, updated_at = ? WHERE id = ? AND gabinete_id = ?
	`, time.Now().Unix(), id, gabineteID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *BindingRepository) GetGabinete(ctx context.Context, id string) (*models.Gabinete, error) {
	g := &models.Gabinete{}
	err := r.db.QueryRowContext(ctx, `SELECT id, nome, created_at FROM gabinetes WHERE id = ?`, id).
		Scan(&g.ID, &g.Nome, &g.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return g, nil
}
