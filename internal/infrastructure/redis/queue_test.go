package redis_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	infraredis "github.com/ErlanBelekov/court-capture/internal/infrastructure/redis"
	"github.com/ErlanBelekov/court-capture/internal/queue"
	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newQueue(t *testing.T) (*infraredis.Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return infraredis.NewQueue(client, "test:tasks"), mr
}

func TestQueue_RoundTrip(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	in := queue.Task{
		ID:            "task-1",
		JobID:         "job-1",
		CaptureType:   domain.CaptureHearings,
		OwnerID:       "owner-1",
		CredentialIDs: []string{"c1", "c2"},
		Params:        json.RawMessage(`{"status":"held"}`),
		EnqueuedAt:    time.Date(2024, 1, 1, 7, 0, 0, 0, time.UTC),
	}
	require.NoError(t, q.Enqueue(ctx, in))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	out, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, in.ID, out.ID)
	assert.Equal(t, in.JobID, out.JobID)
	assert.Equal(t, in.CaptureType, out.CaptureType)
	assert.Equal(t, in.CredentialIDs, out.CredentialIDs)
	assert.JSONEq(t, string(in.Params), string(out.Params))
	assert.True(t, in.EnqueuedAt.Equal(out.EnqueuedAt))
}

func TestQueue_FIFO(t *testing.T) {
	q, _ := newQueue(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Enqueue(ctx, queue.Task{ID: id}))
	}
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Dequeue(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got.ID)
	}
}

func TestQueue_DequeueStopsOnCancel(t *testing.T) {
	q, _ := newQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Dequeue(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_Ping(t *testing.T) {
	q, mr := newQueue(t)
	require.NoError(t, q.Ping(context.Background()))

	mr.Close()
	assert.Error(t, q.Ping(context.Background()))
}

func TestNewClient_BadURL(t *testing.T) {
	_, err := infraredis.NewClient(context.Background(), "not a url")
	assert.Error(t, err)
}
