package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/possync/internal/model"
)

func TestEnqueue_AppendsPendingItem(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	item, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-S1", []byte(`{"b":2,"a":1}`))
	require.NoError(t, err)

	assert.NotZero(t, item.ID)
	assert.Equal(t, model.QueueStatusPending, item.Status)
	assert.Equal(t, 0, item.Retries)
	assert.Equal(t, `{"a":1,"b":2}`, string(item.Payload))
	assert.Equal(t, clock.Now(), item.CreatedAt)

	got, err := s.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, item, got)
}

func TestEnqueue_DedupesIdenticalPendingMutation(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	first, err := s.Enqueue(ctx, model.EntityOrder, model.ActionUpdate, "LOCAL-O1", []byte(`{"status":"void","n":1}`))
	require.NoError(t, err)

	clock.Advance(time.Second)
	second, err := s.Enqueue(ctx, model.EntityOrder, model.ActionUpdate, "LOCAL-O1", []byte(`{"n":1,"status":"void"}`))
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	// a different payload is a new mutation
	third, err := s.Enqueue(ctx, model.EntityOrder, model.ActionUpdate, "LOCAL-O1", []byte(`{"status":"paid"}`))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, third.ID)

	counts, err := s.QueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Pending)
}

func TestEnqueue_RejectsInvalidInput(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	_, err := s.Enqueue(ctx, model.EntityType("refund"), model.ActionCreate, "LOCAL-R1", nil)
	assert.Error(t, err)

	_, err = s.Enqueue(ctx, model.EntitySession, model.Action("delete"), "LOCAL-S1", nil)
	assert.Error(t, err)

	_, err = s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "", nil)
	assert.Error(t, err)

	_, err = s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-S1", []byte(`{`))
	assert.Error(t, err)
}

func TestGetQueueItem_NotFound(t *testing.T) {
	s, _ := createTestStore(t)

	_, err := s.GetQueueItem(context.Background(), 999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMarkFailed_IncrementsRetriesByOne(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	item, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-S1", nil)
	require.NoError(t, err)

	for want := 1; want <= 3; want++ {
		require.NoError(t, s.MarkFailed(ctx, item.ID, "connection refused"))

		got, err := s.GetQueueItem(ctx, item.ID)
		require.NoError(t, err)
		assert.Equal(t, model.QueueStatusFailed, got.Status)
		assert.Equal(t, want, got.Retries)
		assert.Equal(t, "connection refused", got.LastError)
	}
}

func TestResetToPending_ClearsErrorAndRetries(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	item, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-S1", nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, item.ID, "boom"))
	require.NoError(t, s.MarkFailed(ctx, item.ID, "boom"))

	require.NoError(t, s.ResetToPending(ctx, item.ID))

	got, err := s.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPending, got.Status)
	assert.Equal(t, 0, got.Retries)
	assert.Empty(t, got.LastError)
}

func TestQueueTransitions(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	item, err := s.Enqueue(ctx, model.EntityPayment, model.ActionCreate, "LOCAL-P1", nil)
	require.NoError(t, err)

	clock.Advance(time.Second)
	require.NoError(t, s.MarkSyncing(ctx, item.ID))
	got, err := s.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusSyncing, got.Status)
	assert.Equal(t, clock.Now(), got.UpdatedAt)

	require.NoError(t, s.DeferToPending(ctx, item.ID, "order not yet synced"))
	got, err = s.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPending, got.Status)
	assert.Equal(t, 0, got.Retries)
	assert.Equal(t, "order not yet synced", got.LastError)

	require.NoError(t, s.MarkCompleted(ctx, item.ID))
	got, err = s.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusCompleted, got.Status)
	assert.Empty(t, got.LastError)
}

func TestMarkDead_ExhaustsRetries(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	item, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-GONE", nil)
	require.NoError(t, err)

	require.NoError(t, s.MarkDead(ctx, item.ID, "session not found", 5))

	got, err := s.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.True(t, got.IsDead(5))
	assert.Equal(t, 5, got.Retries)
}

func TestMarkX_UnknownID(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.MarkSyncing(ctx, 42), ErrNotFound)
	assert.ErrorIs(t, s.MarkFailed(ctx, 42, "x"), ErrNotFound)
	assert.ErrorIs(t, s.ResetToPending(ctx, 42), ErrNotFound)
	assert.ErrorIs(t, s.DeleteQueueItem(ctx, 42), ErrNotFound)
}

func TestResetOrphans(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	a, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-S1", nil)
	require.NoError(t, err)
	b, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-S2", nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkSyncing(ctx, a.ID))

	n, err := s.ResetOrphans(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	counts, err := s.QueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.QueueCounts{Pending: 2, Total: 2}, counts)
	_ = b
}

func TestResetFailed(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	a, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-S1", nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkDead(ctx, a.ID, "gone", 5))

	n, err := s.ResetFailed(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := s.GetQueueItem(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusPending, got.Status)
	assert.Equal(t, 0, got.Retries)
}

func TestPurgeCompleted(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	old, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-S1", nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkCompleted(ctx, old.ID))

	clock.Advance(48 * time.Hour)
	fresh, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-S2", nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkCompleted(ctx, fresh.ID))
	pending, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-S3", nil)
	require.NoError(t, err)

	n, err := s.PurgeCompleted(ctx, clock.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.GetQueueItem(ctx, old.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetQueueItem(ctx, fresh.ID)
	assert.NoError(t, err)
	_, err = s.GetQueueItem(ctx, pending.ID)
	assert.NoError(t, err)
}

func TestEligibleCandidates_ExcludesConflictedAndTerminal(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	pending, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-S1", nil)
	require.NoError(t, err)
	failed, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, "LOCAL-S2", nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, failed.ID, "timeout"))
	conflicted, err := s.Enqueue(ctx, model.EntityOrder, model.ActionCreate, "LOCAL-O1", nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkFailed(ctx, conflicted.ID, "duplicate key"))
	done, err := s.Enqueue(ctx, model.EntityOrder, model.ActionCreate, "LOCAL-O2", nil)
	require.NoError(t, err)
	require.NoError(t, s.MarkCompleted(ctx, done.ID))

	require.NoError(t, s.InsertConflict(ctx, &model.Conflict{
		ID:           "c-1",
		QueueItemID:  conflicted.ID,
		EntityType:   model.EntityOrder,
		EntityID:     "LOCAL-O1",
		ConflictType: model.ConflictDuplicate,
		DetectedAt:   clock.Now(),
	}))

	items, err := s.EligibleCandidates(ctx)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, pending.ID, items[0].ID)
	assert.Equal(t, failed.ID, items[1].ID)

	// resolving the conflict releases the item
	require.NoError(t, s.MarkConflictResolved(ctx, "c-1", model.ResolutionKeepLocal, clock.Now()))
	items, err = s.EligibleCandidates(ctx)
	require.NoError(t, err)
	assert.Len(t, items, 3)
}

func TestQueueCounts(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	counts, err := s.QueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.QueueCounts{}, counts)

	ids := make([]int64, 4)
	for i := range ids {
		item, err := s.Enqueue(ctx, model.EntitySession, model.ActionCreate, model.LocalIDPrefix+string(rune('A'+i)), nil)
		require.NoError(t, err)
		ids[i] = item.ID
	}
	require.NoError(t, s.MarkSyncing(ctx, ids[1]))
	require.NoError(t, s.MarkFailed(ctx, ids[2], "x"))
	require.NoError(t, s.MarkCompleted(ctx, ids[3]))

	counts, err = s.QueueCounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, model.QueueCounts{Pending: 1, Syncing: 1, Failed: 1, Completed: 1, Total: 4}, counts)
}
