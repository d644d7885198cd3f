package idempotency

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapgate/internal/platform/database"
	"zapgate/internal/platform/database/dbtest"
)

func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	return sqlx.NewDb(dbtest.New(t), database.DriverName())
}

func TestCacheable(t *testing.T) {
	for status, want := range map[int]bool{200: true, 403: true, 404: true, 400: false, 401: false, 500: false} {
		assert.Equal(t, want, Cacheable(status), "status %d", status)
	}
}

func TestStore_FirstWriterWins(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db, nil, 0)
	ctx := context.Background()

	got, err := s.Get(ctx, "eleitores.create", "k1")
	require.NoError(t, err)
	assert.Nil(t, got)

	won, err := s.Save(ctx, db, Entry{Route: "eleitores.create", Key: "k1", StatusCode: 200, Response: []byte(`{"ok":true,"id":"a"}`), CorrelationID: "c1"})
	require.NoError(t, err)
	assert.True(t, won)

	won, err = s.Save(ctx, db, Entry{Route: "eleitores.create", Key: "k1", StatusCode: 200, Response: []byte(`{"ok":true,"id":"b"}`), CorrelationID: "c2"})
	require.NoError(t, err)
	assert.False(t, won)

	got, err = s.Get(ctx, "eleitores.create", "k1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"ok":true,"id":"a"}`, string(got.Response))
	assert.Equal(t, "c1", got.CorrelationID)

	// same key on another route is independent
	won, err = s.Save(ctx, db, Entry{Route: "demandas.create", Key: "k1", StatusCode: 404, Response: []byte(`{}`)})
	require.NoError(t, err)
	assert.True(t, won)
}

func TestStore_SaveInRolledBackTx(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db, nil, 0)
	ctx := context.Background()

	tx, err := db.BeginTxx(ctx, nil)
	require.NoError(t, err)
	won, err := s.Save(ctx, tx, Entry{Route: "ideias.create", Key: "k", StatusCode: 200, Response: []byte(`{}`)})
	require.NoError(t, err)
	assert.True(t, won)
	require.NoError(t, tx.Rollback())

	got, err := s.Get(ctx, "ideias.create", "k")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_RedisReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer client.Close()

	db := newTestDB(t)
	s := NewStore(db, client, time.Hour)
	ctx := context.Background()

	_, err := s.Save(ctx, db, Entry{Route: "agenda.list", Key: "k", StatusCode: 200, Response: []byte(`{"ok":true}`)})
	require.NoError(t, err)
	assert.False(t, mr.Exists(cacheKey("agenda.list", "k")), "save must not write the cache")

	got, err := s.Get(ctx, "agenda.list", "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, mr.Exists(cacheKey("agenda.list", "k")))
	assert.Equal(t, time.Hour, mr.TTL(cacheKey("agenda.list", "k")))

	// served from redis once the row is gone
	_, err = db.Exec(`DELETE FROM idempotency_keys`)
	require.NoError(t, err)
	got, err = s.Get(ctx, "agenda.list", "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, `{"ok":true}`, string(got.Response))

	// redis down falls back to SQL
	mr.Close()
	got, err = s.Get(ctx, "agenda.list", "missing")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_Prune(t *testing.T) {
	db := newTestDB(t)
	s := NewStore(db, nil, 0)
	ctx := context.Background()

	_, err := s.Save(ctx, db, Entry{Route: "r", Key: "old", StatusCode: 200, Response: []byte(`{}`), CreatedAt: 100})
	require.NoError(t, err)
	_, err = s.Save(ctx, db, Entry{Route: "r", Key: "new", StatusCode: 200, Response: []byte(`{}`)})
	require.NoError(t, err)

	n, err := s.Prune(ctx, time.Unix(1000, 0))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
