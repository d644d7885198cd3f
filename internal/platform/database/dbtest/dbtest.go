package dbtest

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"

	"zapgate/internal/platform/database"
	"zapgate/migrations"
)

var testDBSeq atomic.Int64

// New returns a migrated, private in-memory database. A single
// connection is used so every statement sees the same memory store.
func New(t testing.TB) *sql.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	url := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, testDBSeq.Add(1))

	db, err := sql.Open(database.DriverName(), database.DSN(url))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db, migrations.FS); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// NewFile returns a migrated file-backed database with a real connection
// pool, for tests that need two connections writing at once.
func NewFile(t testing.TB) *sql.DB {
	t.Helper()

	url := "file:" + filepath.Join(t.TempDir(), "zapgate.db")
	db, err := sql.Open(database.DriverName(), database.DSN(url))
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	db.SetMaxOpenConns(4)
	t.Cleanup(func() { db.Close() })

	if err := database.Migrate(db, migrations.FS); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// SeedGabinete inserts a tenant row.
func SeedGabinete(t testing.TB, db *sql.DB, id, nome string) {
	t.Helper()
	if _, err := db.Exec(`INSERT INTO gabinetes (id, nome, created_at) VALUES (?, ?, 0)`, id, nome); err != nil {
		t.Fatalf("seed gabinete: %v", err)
	}
}

// SeedBinding inserts an identity binding for an existing gabinete.
func SeedBinding(t testing.TB, db *sql.DB, id, gabineteID, phone, cargo string, ativo bool) {
	t.Helper()
	_, err := db.Exec(`
		INSERT INTO usuarios_whatsapp (id, gabinete_id, nome, email, whatsapp_e164, cargo, ativo, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0)
	`, id, gabineteID, "Usuario "+id, id+"@example.com", phone, cargo, ativo)
	if err != nil {
		t.Fatalf("seed binding: %v", err)
	}
}

// Count returns SELECT COUNT(*) for table, optionally filtered by where.
func Count(t testing.TB, db *sql.DB, table, where string, args ...interface{}) int {
	t.Helper()
	query := "SELECT COUNT(*) FROM " + table
	if where != "" {
		query += " WHERE " + where
	}
	var n int
	if err := db.QueryRow(query, args...).Scan(&n); err != nil {
		t.Fatalf("count %s: %v", table, err)
	}
	return n
}
