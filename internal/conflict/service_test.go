package conflict

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/store"
	"github.com/roach88/possync/internal/testutil"
)

type fixture struct {
	store *store.Store
	clock *testutil.FakeClock
	svc   *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewFakeClock(testutil.Epoch)
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	svc := NewService(st,
		WithClock(clock),
		WithIDGenerator(testutil.NewSequenceGenerator("conflict")))
	return &fixture{store: st, clock: clock, svc: svc}
}

// failedItem enqueues a payment and drives it to failed, as the engine would
// before recording a conflict.
func (f *fixture) failedItem(t *testing.T, entityID string) *model.QueueItem {
	t.Helper()
	ctx := context.Background()
	item, err := f.store.Enqueue(ctx, model.EntityPayment, model.ActionCreate, entityID, []byte(`{"amount":100}`))
	require.NoError(t, err)
	require.NoError(t, f.store.MarkSyncing(ctx, item.ID))
	require.NoError(t, f.store.MarkFailed(ctx, item.ID, "duplicate"))
	item, err = f.store.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	return item
}

func TestService_RecordIgnoresPlainFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.failedItem(t, "LOCAL-PAY-1")

	c, err := f.svc.Record(ctx, item, errors.New("connection refused"), nil)
	require.NoError(t, err)
	assert.Nil(t, c)

	pending, err := f.svc.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestService_RecordPersists(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.failedItem(t, "LOCAL-PAY-1")

	c, err := f.svc.Record(ctx, item, &pq.Error{Code: "23505"}, json.RawMessage(`{"id":"srv-1"}`))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "conflict-1", c.ID)

	pending, err := f.svc.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, item.ID, pending[0].QueueItemID)
	assert.Equal(t, model.ConflictDuplicate, pending[0].ConflictType)

	// Held items are not offered to the next pass.
	candidates, err := f.store.EligibleCandidates(ctx)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestService_ResolveKeepLocalRequeues(t *testing.T) {
	for _, r := range []model.Resolution{model.ResolutionKeepLocal, model.ResolutionMerge} {
		t.Run(string(r), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			item := f.failedItem(t, "LOCAL-PAY-1")
			c, err := f.svc.Record(ctx, item, &pq.Error{Code: "40001"}, nil)
			require.NoError(t, err)

			f.clock.Advance(time.Minute)
			resolved, err := f.svc.Resolve(ctx, c.ID, r)
			require.NoError(t, err)
			assert.Equal(t, r, resolved.Resolution)
			require.NotNil(t, resolved.ResolvedAt)
			assert.Equal(t, testutil.Epoch.Add(time.Minute), *resolved.ResolvedAt)

			got, err := f.store.GetQueueItem(ctx, item.ID)
			require.NoError(t, err)
			assert.Equal(t, model.QueueStatusPending, got.Status)
			assert.Equal(t, 0, got.Retries)
			assert.Empty(t, got.LastError)

			pending, err := f.svc.Pending(ctx)
			require.NoError(t, err)
			assert.Empty(t, pending)

			candidates, err := f.store.EligibleCandidates(ctx)
			require.NoError(t, err)
			require.Len(t, candidates, 1)
			assert.Equal(t, item.ID, candidates[0].ID)
		})
	}
}

func TestService_ResolveKeepServerDeletes(t *testing.T) {
	for _, r := range []model.Resolution{model.ResolutionKeepServer, model.ResolutionSkip} {
		t.Run(string(r), func(t *testing.T) {
			f := newFixture(t)
			ctx := context.Background()
			item := f.failedItem(t, "LOCAL-PAY-1")
			c, err := f.svc.Record(ctx, item, &pq.Error{Code: "23505"}, nil)
			require.NoError(t, err)

			_, err = f.svc.Resolve(ctx, c.ID, r)
			require.NoError(t, err)

			_, err = f.store.GetQueueItem(ctx, item.ID)
			assert.ErrorIs(t, err, store.ErrNotFound)

			stored, err := f.store.GetConflict(ctx, c.ID)
			require.NoError(t, err)
			assert.True(t, stored.IsResolved())
			assert.Equal(t, r, stored.Resolution)
		})
	}
}

func TestService_ResolveErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.failedItem(t, "LOCAL-PAY-1")
	c, err := f.svc.Record(ctx, item, &pq.Error{Code: "23505"}, nil)
	require.NoError(t, err)

	_, err = f.svc.Resolve(ctx, c.ID, model.Resolution("overwrite"))
	assert.Error(t, err)

	_, err = f.svc.Resolve(ctx, "missing", model.ResolutionSkip)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = f.svc.Resolve(ctx, c.ID, model.ResolutionSkip)
	require.NoError(t, err)
	_, err = f.svc.Resolve(ctx, c.ID, model.ResolutionKeepLocal)
	assert.ErrorIs(t, err, ErrAlreadyResolved)
}

func TestService_ResolveToleratesMissingItem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.failedItem(t, "LOCAL-PAY-1")
	c, err := f.svc.Record(ctx, item, &pq.Error{Code: "23505"}, nil)
	require.NoError(t, err)
	require.NoError(t, f.store.DeleteQueueItem(ctx, item.ID))

	resolved, err := f.svc.Resolve(ctx, c.ID, model.ResolutionKeepLocal)
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved())
}

func TestService_Dismiss(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	item := f.failedItem(t, "LOCAL-PAY-1")
	c, err := f.svc.Record(ctx, item, &pq.Error{Code: "23503"}, nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.Dismiss(ctx, c.ID))
	assert.ErrorIs(t, f.svc.Dismiss(ctx, c.ID), store.ErrNotFound)

	// The item keeps its failed state and is offered to the retry policy again.
	got, err := f.store.GetQueueItem(ctx, item.ID)
	require.NoError(t, err)
	assert.Equal(t, model.QueueStatusFailed, got.Status)
	candidates, err := f.store.EligibleCandidates(ctx)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
}
