package gateway

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapgate/internal/engine/actions"
	"zapgate/internal/engine/idempotency"
	"zapgate/internal/engine/identity"
	"zapgate/internal/engine/permissions"
	"zapgate/internal/platform/audit"
	"zapgate/internal/platform/database"
	"zapgate/internal/platform/database/dbtest"
	"zapgate/internal/platform/repositories"
)

type fixture struct {
	raw *sql.DB
	db  *sqlx.DB
	svc *Service
}

func newFixture(t *testing.T, raw *sql.DB, routes func(*repositories.RecordRepository) []actions.Route) *fixture {
	t.Helper()
	dbtest.SeedGabinete(t, raw, "gab_1", "Gabinete Um")
	dbtest.SeedGabinete(t, raw, "gab_2", "Gabinete Dois")
	dbtest.SeedBinding(t, raw, "usr_ver", "gab_1", "+5511900000001", "vereador", true)
	dbtest.SeedBinding(t, raw, "usr_est", "gab_1", "+5511900000002", "estagiario", true)
	dbtest.SeedBinding(t, raw, "usr_off", "gab_1", "+5511900000003", "vereador", false)

	db := sqlx.NewDb(raw, database.DriverName())
	if routes == nil {
		routes = actions.Routes
	}
	svc := NewService(
		db,
		idempotency.NewStore(db, nil, 0),
		identity.NewResolver(repositories.NewBindingRepository(raw)),
		audit.NewLogger(raw, time.Second),
		routes(repositories.NewRecordRepository(db)),
		2*time.Second,
	)
	return &fixture{raw: raw, db: db, svc: svc}
}

func (f *fixture) call(route, key, body string) *Response {
	return f.svc.Process(context.Background(), Request{Route: route, IdempotencyKey: key, Raw: []byte(body)})
}

func (f *fixture) count(t *testing.T, table, where string, args ...interface{}) int {
	return dbtest.Count(t, f.raw, table, where, args...)
}

func TestProcess_CreateAndReplay(t *testing.T) {
	f := newFixture(t, dbtest.New(t), nil)
	body := `{"whatsapp_e164":"+55 11 90000-0001","payload":{"nome":"Ana"}}`

	first := f.call("eleitores.create", "K1", body)
	require.Equal(t, 200, first.StatusCode, string(first.Body))
	assert.False(t, first.Replayed)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(first.Body, &got))
	assert.Equal(t, true, got["ok"])
	assert.Equal(t, "Eleitor cadastrado.", got["message"])
	assert.NotEmpty(t, got["id"])

	second := f.call("eleitores.create", "K1", body)
	assert.Equal(t, 200, second.StatusCode)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Body, second.Body)
	assert.NotEqual(t, first.CorrelationID, second.CorrelationID)

	assert.Equal(t, 1, f.count(t, "eleitores", ""))
	assert.Equal(t, 2, f.count(t, "webhook_events", "source = 'inbound_from_n8n' AND event_type = 'eleitores.create' AND status_code = 200 AND gabinete_id = 'gab_1'"))

	// no key: every call acts
	f.call("eleitores.create", "", body)
	f.call("eleitores.create", "", body)
	assert.Equal(t, 3, f.count(t, "eleitores", ""))
}

func TestProcess_UnboundPhoneIsCached(t *testing.T) {
	f := newFixture(t, dbtest.New(t), nil)
	body := `{"whatsapp_e164":"+5511977777777","payload":{"titulo":"x"}}`

	first := f.call("demandas.create", "K2", body)
	assert.Equal(t, 404, first.StatusCode)
	assert.JSONEq(t, `{"error":"USER_NOT_FOUND_OR_NOT_LINKED","action":"ask_to_register_or_update_number"}`, string(first.Body))

	// binding the number later does not change the stored answer
	dbtest.SeedBinding(t, f.raw, "usr_new", "gab_1", "+5511977777777", "vereador", true)
	second := f.call("demandas.create", "K2", body)
	assert.Equal(t, 404, second.StatusCode)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, 0, f.count(t, "demandas", ""))

	inactive := f.call("demandas.create", "", `{"whatsapp_e164":"+5511900000003","payload":{"titulo":"x"}}`)
	assert.Equal(t, 404, inactive.StatusCode)
}

func TestProcess_ForbiddenByRole(t *testing.T) {
	f := newFixture(t, dbtest.New(t), nil)
	body := `{"whatsapp_e164":"+5511900000002","payload":{"titulo":"Semáforo"}}`

	first := f.call("indicacoes.create", "K3", body)
	assert.Equal(t, 403, first.StatusCode)
	assert.JSONEq(t, `{"error":"FORBIDDEN_BY_ROLE","message":"Seu cargo não permite esta ação."}`, string(first.Body))
	assert.Equal(t, 0, f.count(t, "indicacoes", ""))

	second := f.call("indicacoes.create", "K3", body)
	assert.True(t, second.Replayed)
	assert.Equal(t, first.Body, second.Body)
	assert.Equal(t, 2, f.count(t, "webhook_events", "status_code = 403 AND gabinete_id = 'gab_1'"))
}

func TestProcess_EveryRoleActionPair(t *testing.T) {
	phones := map[permissions.Role]string{
		permissions.RoleVereador:   "+5511900000001",
		permissions.RoleEstagiario: "+5511900000002",
	}
	payloads := map[string]string{
		"eleitores.create":  `{"nome":"n"}`,
		"demandas.create":   `{"titulo":"t"}`,
		"ideias.create":     `{"titulo":"t"}`,
		"indicacoes.create": `{"titulo":"t"}`,
		"agenda.create":     `{"titulo":"t","inicio":"2025-01-01T10:00:00Z"}`,
		"agenda.list":       `{}`,
	}

	for role, phone := range phones {
		for _, r := range actions.Routes(nil) {
			t.Run(string(role)+" "+r.EventType, func(t *testing.T) {
				f := newFixture(t, dbtest.New(t), nil)
				resp := f.call(r.EventType, "", `{"whatsapp_e164":"`+phone+`","payload":`+payloads[r.EventType]+`}`)

				want := 200
				if !permissions.Allowed(role, r.Handler.Action()) {
					want = 403
				}
				assert.Equal(t, want, resp.StatusCode, string(resp.Body))
			})
		}
	}
}

func TestProcess_TenantComesFromIdentity(t *testing.T) {
	f := newFixture(t, dbtest.New(t), nil)

	resp := f.call("ideias.create", "", `{"whatsapp_e164":"+5511900000001","gabinete_id":"gab_2","payload":{"titulo":"x","gabinete_id":"gab_2"}}`)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, 1, f.count(t, "ideias", "gabinete_id = 'gab_1'"))
	assert.Equal(t, 0, f.count(t, "ideias", "gabinete_id = 'gab_2'"))
}

func TestProcess_ValidationIsNotCached(t *testing.T) {
	f := newFixture(t, dbtest.New(t), nil)

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"whatsapp_e164":`},
		{"missing phone", `{"payload":{"titulo":"x"}}`},
		{"schema", `{"whatsapp_e164":"+5511900000001","payload":{}}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := f.call("demandas.create", "K4", tt.body)
			assert.Equal(t, 400, resp.StatusCode)
			assert.Contains(t, string(resp.Body), `"error":"VALIDATION"`)
		})
	}

	fixed := f.call("demandas.create", "K4", `{"whatsapp_e164":"+5511900000001","payload":{"titulo":"x"}}`)
	assert.Equal(t, 200, fixed.StatusCode)
	assert.False(t, fixed.Replayed)
	assert.Contains(t, string(fixed.Body), `"status":"ABERTA"`)
}

func TestProcess_AcceptsLegacyPhoneField(t *testing.T) {
	f := newFixture(t, dbtest.New(t), nil)
	resp := f.call("agenda.list", "", `{"phone":"5511900000001"}`)
	assert.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"ok":true,"items":[],"count":0}`, string(resp.Body))
}

type flakyHandler struct {
	failures int
	next     actions.Handler
}

func (h *flakyHandler) Action() permissions.Action { return h.next.Action() }

func (h *flakyHandler) Handle(ctx context.Context, tx *sqlx.Tx, id *identity.Identity, payload json.RawMessage) (*actions.Result, error) {
	if h.failures > 0 {
		h.failures--
		// half-done work must not survive
		if _, err := h.next.Handle(ctx, tx, id, payload); err != nil {
			return nil, err
		}
		return nil, errors.New("disk I/O error")
	}
	return h.next.Handle(ctx, tx, id, payload)
}

func TestProcess_InternalIsNotCached(t *testing.T) {
	routes := func(repo *repositories.RecordRepository) []actions.Route {
		rs := actions.Routes(repo)
		rs[0].Handler = &flakyHandler{failures: 1, next: rs[0].Handler}
		return rs
	}
	f := newFixture(t, dbtest.New(t), routes)
	body := `{"whatsapp_e164":"+5511900000001","payload":{"nome":"Ana"}}`

	first := f.call("eleitores.create", "K5", body)
	assert.Equal(t, 500, first.StatusCode)
	assert.JSONEq(t, `{"error":"INTERNAL","message":"Erro interno do servidor"}`, string(first.Body))
	assert.NotContains(t, string(first.Body), "disk")
	assert.Equal(t, 0, f.count(t, "eleitores", ""))
	assert.Equal(t, 0, f.count(t, "idempotency_keys", ""))

	retry := f.call("eleitores.create", "K5", body)
	assert.Equal(t, 200, retry.StatusCode)
	assert.False(t, retry.Replayed)
	assert.Equal(t, 1, f.count(t, "eleitores", ""))
	assert.Equal(t, 2, f.count(t, "webhook_events", "idempotency_key = 'K5'"))
}

// slowHandler writes its row and then outlives the request deadline once.
type slowHandler struct {
	stalls int
	next   actions.Handler
}

func (h *slowHandler) Action() permissions.Action { return h.next.Action() }

func (h *slowHandler) Handle(ctx context.Context, tx *sqlx.Tx, id *identity.Identity, payload json.RawMessage) (*actions.Result, error) {
	if h.stalls > 0 {
		h.stalls--
		if _, err := h.next.Handle(ctx, tx, id, payload); err != nil {
			return nil, err
		}
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return h.next.Handle(ctx, tx, id, payload)
}

func TestProcess_TimeoutIsInternalAndRetryable(t *testing.T) {
	routes := func(repo *repositories.RecordRepository) []actions.Route {
		rs := actions.Routes(repo)
		rs[0].Handler = &slowHandler{stalls: 1, next: rs[0].Handler}
		return rs
	}
	// a cancelled statement on the shared in-memory connection would take
	// the schema with it; the file database keeps a real pool
	f := newFixture(t, dbtest.NewFile(t), routes)
	f.svc.timeout = 50 * time.Millisecond
	body := `{"whatsapp_e164":"+5511900000001","payload":{"nome":"Ana"}}`

	start := time.Now()
	first := f.call("eleitores.create", "K7", body)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, 500, first.StatusCode)
	assert.Equal(t, Internal, first.Kind)
	assert.JSONEq(t, `{"error":"INTERNAL","message":"Erro interno do servidor"}`, string(first.Body))
	assert.Equal(t, 0, f.count(t, "idempotency_keys", ""))
	assert.Equal(t, 0, f.count(t, "eleitores", ""))
	assert.Equal(t, 1, f.count(t, "webhook_events", "idempotency_key = 'K7' AND status_code = 500"))

	f.svc.timeout = 2 * time.Second
	retry := f.call("eleitores.create", "K7", body)
	assert.Equal(t, 200, retry.StatusCode)
	assert.False(t, retry.Replayed)
	assert.Equal(t, 1, f.count(t, "eleitores", ""))
	assert.Equal(t, 1, f.count(t, "idempotency_keys", ""))
}

// racingHandler stores a competing response for the same key from another
// connection before doing its own insert.
type racingHandler struct {
	db   *sqlx.DB
	key  string
	next actions.Handler
}

func (h *racingHandler) Action() permissions.Action { return h.next.Action() }

func (h *racingHandler) Handle(ctx context.Context, tx *sqlx.Tx, id *identity.Identity, payload json.RawMessage) (*actions.Result, error) {
	store := idempotency.NewStore(h.db, nil, 0)
	if _, err := store.Save(ctx, h.db, idempotency.Entry{
		Route:      "eleitores.create",
		Key:        h.key,
		StatusCode: 200,
		Response:   []byte(`{"ok":true,"id":"winner"}`),
	}); err != nil {
		return nil, err
	}
	return h.next.Handle(ctx, tx, id, payload)
}

func TestProcess_LosingConcurrentRequestReplaysWinner(t *testing.T) {
	raw := dbtest.NewFile(t)
	routes := func(repo *repositories.RecordRepository) []actions.Route {
		rs := actions.Routes(repo)
		rs[0].Handler = &racingHandler{db: sqlx.NewDb(raw, database.DriverName()), key: "K6", next: rs[0].Handler}
		return rs
	}
	f := newFixture(t, raw, routes)

	resp := f.call("eleitores.create", "K6", `{"whatsapp_e164":"+5511900000001","payload":{"nome":"Ana"}}`)
	assert.Equal(t, 200, resp.StatusCode)
	assert.True(t, resp.Replayed)
	assert.JSONEq(t, `{"ok":true,"id":"winner"}`, string(resp.Body))
	assert.Equal(t, 0, f.count(t, "eleitores", ""), "loser's insert must be rolled back")
}

func TestRefuse(t *testing.T) {
	f := newFixture(t, dbtest.New(t), nil)

	resp := f.svc.Refuse(context.Background(), Request{Route: "eleitores.create", Raw: []byte(`{}`)}, Unauthenticated, "")
	assert.Equal(t, 401, resp.StatusCode)
	assert.JSONEq(t, `{"error":"UNAUTHENTICATED"}`, string(resp.Body))
	assert.Equal(t, 1, f.count(t, "webhook_events", "status_code = 401 AND gabinete_id IS NULL"))
}

func TestKind(t *testing.T) {
	tests := []struct {
		kind      Kind
		status    int
		cacheable bool
	}{
		{OK, 200, true},
		{Unauthenticated, 401, false},
		{Validation, 400, false},
		{IdentityNotFound, 404, true},
		{Forbidden, 403, true},
		{Internal, 500, false},
		{NotFound, 404, false},
	}
	for _, tt := range tests {
		t.Run(tt.kind.String(), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.kind.Status())
			assert.Equal(t, tt.cacheable, tt.kind.Cacheable())
		})
	}
}
