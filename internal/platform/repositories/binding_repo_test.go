package repositories

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func TestBindingRepository_GetActiveByPhone(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewBindingRepository(db)
	columns := []string{"id", "gabinete_id", "g.nome", "nome", "email", "whatsapp_e164", "cargo", "ativo", "created_at", "updated_at"}

	t.Run("Active binding", func(t *testing.T) {
		rows := sqlmock.NewRows(columns).
			AddRow("usr_1", "gab_1", "Gabinete Centro", "Ana", "ana@example.com", "+5511999990000", "assessor", true, 1, 1)
		mock.ExpectQuery("SELECT (.+) FROM usuarios_whatsapp u JOIN gabinetes g (.+) WHERE u.whatsapp_e164 = \\? AND u.ativo = 1").
			WithArgs("+5511999990000").
			WillReturnRows(rows)

		b, err := repo.GetActiveByPhone(context.Background(), "+5511999990000")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if b == nil || b.GabineteID != "gab_1" || b.GabineteNome != "Gabinete Centro" || b.Cargo != "assessor" {
			t.Errorf("unexpected binding: %+v", b)
		}
	})

	t.Run("No binding", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM usuarios_whatsapp u").
			WithArgs("+5511000000000").
			WillReturnError(sql.ErrNoRows)

		b, err := repo.GetActiveByPhone(context.Background(), "+5511000000000")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if b != nil {
			t.Errorf("expected nil binding, got %+v", b)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}

func TestBindingRepository_Deactivate(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewBindingRepository(db)

	mock.ExpectExec("UPDATE usuarios_whatsapp SET ativo = 0").
		WithArgs(sqlmock.AnyArg(), "usr_1", "gab_1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE usuarios_whatsapp SET ativo = 0").
		WithArgs(sqlmock.AnyArg(), "usr_1", "gab_other").
		WillReturnResult(sqlmock.NewResult(0, 0))

	found, err := repo.Deactivate(context.Background(), "gab_1", "usr_1")
	if err != nil || !found {
		t.Errorf("Deactivate() = %v, %v; want true, nil", found, err)
	}

	found, err = repo.Deactivate(context.Background(), "gab_other", "usr_1")
	if err != nil || found {
		t.Errorf("Deactivate() across tenants = %v, %v; want false, nil", found, err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
