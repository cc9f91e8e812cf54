package remotetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
)

func TestFake_DeterministicIDs(t *testing.T) {
	f := New()
	ctx := context.Background()

	id1, err := f.InsertSession(ctx, remote.SessionRecord{LocalID: "LOCAL-S1"})
	require.NoError(t, err)
	id2, err := f.InsertSession(ctx, remote.SessionRecord{LocalID: "LOCAL-S2"})
	require.NoError(t, err)
	oid, err := f.InsertOrder(ctx, remote.OrderRecord{LocalID: "LOCAL-O1"})
	require.NoError(t, err)

	assert.Equal(t, "srv-session-1", id1)
	assert.Equal(t, "srv-session-2", id2)
	assert.Equal(t, "srv-order-1", oid)
	assert.Equal(t, 2, f.CallCount(OpInsertSession))
}

func TestFake_FailNextAndOffline(t *testing.T) {
	f := New()
	ctx := context.Background()
	boom := errors.New("boom")

	f.FailNext(OpInsertPayment, boom)
	_, err := f.InsertPayment(ctx, remote.PaymentRecord{LocalID: "LOCAL-P1"})
	assert.ErrorIs(t, err, boom)

	id, err := f.InsertPayment(ctx, remote.PaymentRecord{LocalID: "LOCAL-P1"})
	require.NoError(t, err)
	assert.Equal(t, "srv-payment-1", id)

	f.SetOffline(true)
	assert.ErrorIs(t, f.Ping(ctx), ErrOffline)
	_, err = f.FetchCustomers(ctx, nil)
	assert.ErrorIs(t, err, ErrOffline)

	calls := f.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, boom, calls[0].Err)
	assert.Equal(t, "srv-payment-1", calls[1].ServerID)
}

func TestFake_UpdateMissingRow(t *testing.T) {
	f := New()
	err := f.UpdateOrder(context.Background(), "srv-order-99", remote.OrderRecord{})
	assert.ErrorIs(t, err, remote.ErrNotFound)
}

func TestFake_CatalogWatermarks(t *testing.T) {
	f := New()
	ctx := context.Background()
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	f.PutCustomer(model.Customer{ID: "C1", Active: true, UpdatedAt: t0})
	f.PutCustomer(model.Customer{ID: "C2", Active: true, UpdatedAt: t0.Add(time.Hour)})
	f.PutCustomer(model.Customer{ID: "C3", Active: false, UpdatedAt: t0.Add(time.Hour)})

	all, err := f.FetchCustomers(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	since := t0.Add(time.Minute)
	delta, err := f.FetchCustomers(ctx, &since)
	require.NoError(t, err)
	require.Len(t, delta, 1)
	assert.Equal(t, "C2", delta[0].ID)

	inactive, err := f.FetchInactiveCustomerIDs(ctx, since)
	require.NoError(t, err)
	assert.Equal(t, []string{"C3"}, inactive)

	f.PutStock(model.StockLevel{ProductID: "P1", LocationID: "L1", Quantity: 3, UpdatedAt: t0})
	f.RemoveStock("P1", "L1", t0.Add(time.Hour))
	live, err := f.FetchStockLevels(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, live)
	removed, err := f.FetchRemovedStockLevels(ctx, since)
	require.NoError(t, err)
	assert.Len(t, removed, 1)
}
