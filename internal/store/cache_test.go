package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/testutil"
)

func testPromotion(id string, until *time.Time) model.Promotion {
	return model.Promotion{
		ID:         id,
		Name:       "Promo " + id,
		Kind:       "percent",
		Value:      10,
		ValidFrom:  testutil.Epoch.Add(-24 * time.Hour),
		ValidUntil: until,
		Active:     true,
		UpdatedAt:  testutil.Epoch,
		Targets: []model.PromotionTarget{
			{TargetType: "product", TargetID: "P-1"},
			{TargetType: "category", TargetID: "C-9"},
		},
		FreeProducts: []model.PromotionFreeProduct{{ProductID: "P-FREE", Quantity: 1}},
	}
}

func TestCustomers_UpsertAndDeleteNotIn(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCustomers(ctx, []model.Customer{
		{ID: "C1", Name: "Ana", Active: true, UpdatedAt: testutil.Epoch},
		{ID: "C2", Name: "Ben", Active: true, UpdatedAt: testutil.Epoch},
		{ID: "C3", Name: "Cy", Active: true, UpdatedAt: testutil.Epoch},
	}))
	require.NoError(t, s.UpsertCustomers(ctx, []model.Customer{
		{ID: "C2", Name: "Benjamin", Email: "ben@example.com", Points: 12, Active: true, UpdatedAt: testutil.Epoch},
	}))

	n, err := s.DeleteNotIn(ctx, model.RefCustomers, []string{"C1", "C2"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	customers, err := s.ListCustomers(ctx)
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, "Benjamin", customers[1].Name)
	assert.Equal(t, "ben@example.com", customers[1].Email)
	assert.Equal(t, int64(12), customers[1].Points)

	count, err := s.CountRows(ctx, model.RefCustomers)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPromotions_UpsertReplacesChildren(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPromotions(ctx, []model.Promotion{testPromotion("PR1", nil)}))

	p, err := s.GetPromotion(ctx, "PR1")
	require.NoError(t, err)
	assert.Len(t, p.Targets, 2)
	assert.Len(t, p.FreeProducts, 1)

	updated := testPromotion("PR1", nil)
	updated.Targets = updated.Targets[:1]
	updated.FreeProducts = nil
	require.NoError(t, s.UpsertPromotions(ctx, []model.Promotion{updated}))

	n, err := s.CountPromotionChildren(ctx, "PR1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestPromotions_DeleteByIDsCascades(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertPromotions(ctx, []model.Promotion{
		testPromotion("PR1", nil),
		testPromotion("PR2", nil),
	}))

	n, err := s.DeleteByIDs(ctx, model.RefPromotions, []string{"PR1"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	children, err := s.CountPromotionChildren(ctx, "PR1")
	require.NoError(t, err)
	assert.Zero(t, children)

	_, err = s.GetPromotion(ctx, "PR1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPromotions_DeleteExpired(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	past := clock.Now().Add(-time.Minute)
	future := clock.Now().Add(time.Hour)
	require.NoError(t, s.UpsertPromotions(ctx, []model.Promotion{
		testPromotion("EXPIRED", &past),
		testPromotion("LIVE", &future),
		testPromotion("OPEN", nil),
	}))

	n, err := s.DeleteExpiredPromotions(ctx, clock.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	ids, err := s.ListIDs(ctx, model.RefPromotions)
	require.NoError(t, err)
	assert.Equal(t, []string{"LIVE", "OPEN"}, ids)

	children, err := s.CountPromotionChildren(ctx, "EXPIRED")
	require.NoError(t, err)
	assert.Zero(t, children)
}

func TestStockLevels(t *testing.T) {
	s, _ := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertStockLevels(ctx, []model.StockLevel{
		{ProductID: "P1", LocationID: "L1", Quantity: 5, UpdatedAt: testutil.Epoch},
		{ProductID: "P1", LocationID: "L2", Quantity: 3, UpdatedAt: testutil.Epoch},
		{ProductID: "P2", LocationID: "L1", Quantity: 0, UpdatedAt: testutil.Epoch},
	}))
	require.NoError(t, s.UpsertStockLevels(ctx, []model.StockLevel{
		{ProductID: "P1", LocationID: "L1", Quantity: 4, UpdatedAt: testutil.Epoch},
	}))

	n, err := s.DeleteStockLevelsNotIn(ctx, []model.StockLevel{
		{ProductID: "P1", LocationID: "L1"},
		{ProductID: "P2", LocationID: "L1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.DeleteStockLevels(ctx, []model.StockLevel{{ProductID: "P2", LocationID: "L1"}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	levels, err := s.ListStockLevels(ctx)
	require.NoError(t, err)
	require.Len(t, levels, 1)
	assert.Equal(t, int64(4), levels[0].Quantity)
}

func TestSyncMetadata_Lifecycle(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	_, err := s.GetSyncMetadata(ctx, model.RefCustomers)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.PutSyncMetadata(ctx, model.SyncMetadata{
		Entity: model.RefCustomers, LastSyncAt: clock.Now(), RecordCount: 3,
	}))
	clock.Advance(time.Minute)
	require.NoError(t, s.PutSyncMetadata(ctx, model.SyncMetadata{
		Entity: model.RefCustomers, LastSyncAt: clock.Now(), RecordCount: 4,
	}))

	md, err := s.GetSyncMetadata(ctx, model.RefCustomers)
	require.NoError(t, err)
	assert.Equal(t, clock.Now(), md.LastSyncAt)
	assert.Equal(t, 4, md.RecordCount)

	all, err := s.ListSyncMetadata(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestClearCache(t *testing.T) {
	s, clock := createTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCustomers(ctx, []model.Customer{{ID: "C1", Name: "Ana", UpdatedAt: clock.Now()}}))
	require.NoError(t, s.PutSyncMetadata(ctx, model.SyncMetadata{Entity: model.RefCustomers, LastSyncAt: clock.Now(), RecordCount: 1}))

	require.NoError(t, s.ClearCache(ctx, model.RefCustomers))

	n, err := s.CountRows(ctx, model.RefCustomers)
	require.NoError(t, err)
	assert.Zero(t, n)
	_, err = s.GetSyncMetadata(ctx, model.RefCustomers)
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.ClearCache(ctx, model.ReferenceEntity("products")))
}

func TestListIDs_StockHasNoIDColumn(t *testing.T) {
	s, _ := createTestStore(t)
	_, err := s.ListIDs(context.Background(), model.RefStock)
	assert.Error(t, err)
}
