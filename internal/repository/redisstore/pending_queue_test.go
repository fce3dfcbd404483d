package redisstore

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"campusattend/internal/domain"
)

func newTestQueue(t *testing.T) (domain.PendingQueue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewPendingQueue(rdb, ""), mr
}

func TestPendingQueue_RoundTrip(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t)
	issued := time.Date(2026, 4, 2, 8, 30, 0, 0, time.UTC)

	require.NoError(t, q.Enqueue(ctx, &domain.PendingOperation{
		ID:       "op-1",
		Type:     domain.OpAddRSVP,
		Payload:  domain.PendingPayload{UserID: "u1", EventID: "e1"},
		IssuedAt: issued,
	}))
	require.NoError(t, q.Enqueue(ctx, &domain.PendingOperation{ID: "op-2", Type: domain.OpRemoveRSVP}))
	assert.True(t, mr.Exists(DefaultQueueKey))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	op, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "op-1", op.ID)
	assert.Equal(t, domain.OpAddRSVP, op.Type)
	assert.Equal(t, domain.PendingPayload{UserID: "u1", EventID: "e1"}, op.Payload)
	assert.True(t, issued.Equal(op.IssuedAt))

	require.NoError(t, q.Requeue(ctx, op))
	op, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "op-1", op.ID)

	op, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, "op-2", op.ID)

	op, err = q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Nil(t, op)
}

func TestPendingQueue_CorruptEntry(t *testing.T) {
	ctx := context.Background()
	q, mr := newTestQueue(t)
	_, err := mr.Push(DefaultQueueKey, "{not json")
	require.NoError(t, err)

	_, err = q.Dequeue(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode pending operation")
}
