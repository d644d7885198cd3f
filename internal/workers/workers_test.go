package workers

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapgate/internal/engine/idempotency"
	"zapgate/internal/platform/database"
	"zapgate/internal/platform/database/dbtest"
)

func TestRun_RepeatsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var calls atomic.Int32
	done := make(chan struct{})
	go func() {
		Run(ctx, Task{
			Name:     "count",
			Interval: 5 * time.Millisecond,
			Run: func(context.Context) error {
				if calls.Add(1) == 3 {
					cancel()
				}
				return nil
			},
		})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.GreaterOrEqual(t, calls.Load(), int32(3))
}

func TestRun_SurvivesErrorsAndPanics(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var failing, panicking atomic.Int32
	Run(ctx,
		Task{Name: "failing", Interval: time.Millisecond, Run: func(context.Context) error {
			if failing.Add(1) >= 3 && panicking.Load() >= 3 {
				cancel()
			}
			return errors.New("boom")
		}},
		Task{Name: "panicking", Interval: time.Millisecond, Run: func(context.Context) error {
			panicking.Add(1)
			panic("boom")
		}},
	)

	assert.GreaterOrEqual(t, failing.Load(), int32(3))
	assert.GreaterOrEqual(t, panicking.Load(), int32(3))
}

func TestPruneTask(t *testing.T) {
	raw := dbtest.New(t)
	db := sqlx.NewDb(raw, database.DriverName())
	store := idempotency.NewStore(db, nil, 0)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour).Unix()
	_, err := store.Save(ctx, db, idempotency.Entry{Route: "create_case", Key: "old", StatusCode: 200, Response: []byte(`{"ok":true}`), CorrelationID: "c1", CreatedAt: old})
	require.NoError(t, err)
	_, err = store.Save(ctx, db, idempotency.Entry{Route: "create_case", Key: "fresh", StatusCode: 200, Response: []byte(`{"ok":true}`), CorrelationID: "c2"})
	require.NoError(t, err)

	task := PruneTask(store, 24*time.Hour, time.Hour)
	assert.Equal(t, "idempotency_prune", task.Name)
	require.NoError(t, task.Run(ctx))

	assert.Equal(t, 1, dbtest.Count(t, raw, "idempotency_keys", ""))
	e, err := store.Get(ctx, "create_case", "fresh")
	require.NoError(t, err)
	assert.NotNil(t, e)
}
