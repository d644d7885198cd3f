package repositories_test

import (
	"context"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapgate/internal/platform/database"
	"zapgate/internal/platform/database/dbtest"
	"zapgate/internal/platform/models"
	"zapgate/internal/platform/repositories"
)

func TestOutboxRepository_Lifecycle(t *testing.T) {
	db := sqlx.NewDb(dbtest.New(t), database.DriverName())
	repo := repositories.NewOutboxRepository(db)
	ctx := context.Background()
	now := time.Now().Unix()

	msg := &models.OutboxMessage{
		ID:            "obx_1",
		Event:         "user_created",
		CorrelationID: "corr-1",
		Payload:       []byte(`{"event":"user_created"}`),
		MaxAttempts:   3,
		NextAttemptAt: now - 1,
	}
	require.NoError(t, repo.Insert(ctx, nil, msg))

	due, err := repo.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, []byte(`{"event":"user_created"}`), due[0].Payload)

	claimed, err := repo.Claim(ctx, due[0], now+60)
	require.NoError(t, err)
	assert.True(t, claimed)

	// a second relay holding the stale row loses the race
	stale := *msg
	claimed, err = repo.Claim(ctx, &stale, now+60)
	require.NoError(t, err)
	assert.False(t, claimed)

	due, err = repo.Due(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, repo.ScheduleRetry(ctx, "obx_1", 1, 503, "HTTP 503", time.Unix(now-1, 0)))
	due, err = repo.Due(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, 1, due[0].Attempts)

	require.NoError(t, repo.MarkDelivered(ctx, "obx_1", 2, 200))
	got, err := repo.GetByID(ctx, "obx_1")
	require.NoError(t, err)
	assert.Equal(t, models.OutboxDelivered, got.Status)
	assert.NotNil(t, got.DeliveredAt)
	assert.Nil(t, got.LastError)
}
