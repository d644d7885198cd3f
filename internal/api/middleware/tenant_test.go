package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	apiContext "zapgate/internal/api/context"
	"zapgate/internal/platform/auth"
	"zapgate/internal/platform/repositories"
)

func TestTenantMiddleware(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	middleware := NewTenantMiddleware(repositories.NewBindingRepository(db))

	withClaims := func(gabineteID string) *http.Request {
		req, _ := http.NewRequest("GET", "/", nil)
		claims := &auth.Claims{UserID: "op_1", GabineteID: gabineteID, Role: "vereador"}
		return req.WithContext(context.WithValue(req.Context(), apiContext.Claims, claims))
	}

	t.Run("Valid Tenant", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"id", "nome", "created_at"}).
			AddRow("gab_123", "Gabinete Centro", 1234567890)
		mock.ExpectQuery("SELECT (.+) FROM gabinetes WHERE id = ?").
			WithArgs("gab_123").
			WillReturnRows(rows)

		rr := httptest.NewRecorder()
		handler := middleware.Handle(func(w http.ResponseWriter, r *http.Request) {
			tenant := Tenant(r)
			if tenant == nil || tenant.GabineteID != "gab_123" {
				t.Errorf("Expected gabinete gab_123, got %+v", tenant)
			}
			if tenant != nil && tenant.Role != "vereador" {
				t.Errorf("Expected role vereador, got %s", tenant.Role)
			}
			w.WriteHeader(http.StatusOK)
		})

		handler.ServeHTTP(rr, withClaims("gab_123"))

		if rr.Code != http.StatusOK {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusOK)
		}
	})

	t.Run("Unknown Gabinete", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM gabinetes WHERE id = ?").
			WithArgs("gab_999").
			WillReturnRows(sqlmock.NewRows([]string{"id", "nome", "created_at"}))

		rr := httptest.NewRecorder()
		handler := middleware.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Handler should not be called")
		})

		handler.ServeHTTP(rr, withClaims("gab_999"))

		if rr.Code != http.StatusForbidden {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusForbidden)
		}
	})

	t.Run("Missing Claims", func(t *testing.T) {
		req, _ := http.NewRequest("GET", "/", nil)
		rr := httptest.NewRecorder()
		middleware.Handle(func(w http.ResponseWriter, r *http.Request) {
			t.Error("Handler should not be called")
		}).ServeHTTP(rr, req)

		if rr.Code != http.StatusUnauthorized {
			t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusUnauthorized)
		}
	})

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("there were unfulfilled expectations: %s", err)
	}
}
