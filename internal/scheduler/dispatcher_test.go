package scheduler_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ErlanBelekov/court-capture/internal/domain"
	"github.com/ErlanBelekov/court-capture/internal/metrics"
	"github.com/ErlanBelekov/court-capture/internal/queue"
	"github.com/ErlanBelekov/court-capture/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcher_EnqueuesClaimedSchedules(t *testing.T) {
	var gotStale time.Time
	repo := newFakeScheduleRepo()
	repo.claimDue = func(staleBefore time.Time, limit int) ([]*domain.Schedule, error) {
		gotStale = staleBefore
		assert.Equal(t, 100, limit)
		return []*domain.Schedule{
			{
				ID: "s1", OwnerID: "o1", CaptureType: domain.CapturePendingFilings,
				CredentialIDs: []string{"c1", "c2"},
				ExtraParams:   domain.PendingFilingsParams{Filters: []domain.PendingFilter{domain.FilterWithinDeadline}},
			},
			{ID: "s2", OwnerID: "o2", CaptureType: domain.CaptureParties, CredentialIDs: []string{"c3"}},
		}, nil
	}
	q := queue.NewMemoryQueue(10)
	d := scheduler.NewDispatcher(repo, q, discardLogger(), time.Second, 30*time.Minute)

	before := time.Now()
	dispatched := testutil.ToFloat64(metrics.SchedulesDispatchedTotal)
	n := d.Dispatch(context.Background())

	assert.Equal(t, 2, n)
	assert.InDelta(t, dispatched+2, testutil.ToFloat64(metrics.SchedulesDispatchedTotal), 0.001)
	assert.WithinDuration(t, before.Add(-30*time.Minute), gotStale, time.Second)
	require.Equal(t, 2, q.Len())

	first, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s1", first.ScheduleID)
	assert.Empty(t, first.JobID)
	assert.NotEmpty(t, first.ID)
	assert.Equal(t, []string{"c1", "c2"}, first.CredentialIDs)
	assert.JSONEq(t, `{"filters":["within-deadline"]}`, string(first.Params))

	second, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s2", second.ScheduleID)
	assert.Equal(t, json.RawMessage("{}"), second.Params)
}

func TestDispatcher_ClaimErrorEnqueuesNothing(t *testing.T) {
	repo := newFakeScheduleRepo()
	repo.claimDue = func(time.Time, int) ([]*domain.Schedule, error) {
		return nil, errors.New("deadlock detected")
	}
	q := queue.NewMemoryQueue(10)
	d := scheduler.NewDispatcher(repo, q, discardLogger(), time.Second, time.Minute)

	assert.Equal(t, 0, d.Dispatch(context.Background()))
	assert.Equal(t, 0, q.Len())
}

func TestDispatcher_QueueFullSkipsSchedule(t *testing.T) {
	repo := newFakeScheduleRepo()
	repo.claimDue = func(time.Time, int) ([]*domain.Schedule, error) {
		return []*domain.Schedule{
			{ID: "s1", OwnerID: "o", CaptureType: domain.CaptureParties},
			{ID: "s2", OwnerID: "o", CaptureType: domain.CaptureParties},
		}, nil
	}
	d := scheduler.NewDispatcher(repo, queue.NewMemoryQueue(1), discardLogger(), time.Second, time.Minute)

	assert.Equal(t, 1, d.Dispatch(context.Background()))
}
