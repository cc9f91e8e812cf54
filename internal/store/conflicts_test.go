package store

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/possync/internal/model"
)

func TestConflicts_Lifecycle(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	c := &model.Conflict{
		ID:           "c-1",
		QueueItemID:  7,
		EntityType:   model.EntityPayment,
		EntityID:     "LOCAL-P1",
		LocalData:    json.RawMessage(`{"amount":100}`),
		ConflictType: model.ConflictDuplicate,
		Message:      "duplicate key value violates unique constraint",
		DetectedAt:   clock.Now(),
	}
	require.NoError(t, s.InsertConflict(ctx, c))

	clock.Advance(time.Second)
	require.NoError(t, s.InsertConflict(ctx, &model.Conflict{
		ID:           "c-2",
		QueueItemID:  8,
		EntityType:   model.EntityOrder,
		EntityID:     "LOCAL-O1",
		ConflictType: model.ConflictDeleted,
		DetectedAt:   clock.Now(),
	}))

	pending, err := s.ListPendingConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "c-1", pending[0].ID)
	assert.JSONEq(t, `{"amount":100}`, string(pending[0].LocalData))
	assert.Nil(t, pending[1].LocalData)

	require.NoError(t, s.MarkConflictResolved(ctx, "c-1", model.ResolutionSkip, clock.Now()))
	got, err := s.GetConflict(ctx, "c-1")
	require.NoError(t, err)
	assert.True(t, got.IsResolved())
	assert.Equal(t, model.ResolutionSkip, got.Resolution)

	pending, err = s.ListPendingConflicts(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "c-2", pending[0].ID)

	require.NoError(t, s.DeleteConflict(ctx, "c-2"))
	_, err = s.GetConflict(ctx, "c-2")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteConflict(ctx, "c-2"), ErrNotFound)
}

func TestInsertConflict_RejectsUnknownType(t *testing.T) {
	s, clock := createTestStore(t)

	err := s.InsertConflict(context.Background(), &model.Conflict{
		ID:           "c-x",
		EntityType:   model.EntityOrder,
		EntityID:     "LOCAL-O1",
		ConflictType: model.ConflictType("timeout"),
		DetectedAt:   clock.Now(),
	})
	assert.Error(t, err)
}
