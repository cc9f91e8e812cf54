package processor

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote/remotetest"
	"github.com/roach88/possync/internal/store"
	"github.com/roach88/possync/internal/testutil"
)

type fixture struct {
	store  *store.Store
	remote *remotetest.Fake
	reg    *Registry
	ids    *IdentifierMap
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"),
		store.WithClock(testutil.NewFakeClock(testutil.Epoch)))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	fake := remotetest.New()
	return &fixture{
		store:  st,
		remote: fake,
		reg:    NewRegistry(st, fake, zerolog.Nop()),
		ids:    NewIdentifierMap(),
	}
}

func (f *fixture) process(t *testing.T, item *model.QueueItem) Result {
	t.Helper()
	return f.reg.Process(context.Background(), item, f.ids)
}

func (f *fixture) createSession(t *testing.T, id string) *model.QueueItem {
	t.Helper()
	item, err := f.store.CreateSession(context.Background(), &model.Session{
		ID:             id,
		RegisterID:     "REG-1",
		CashierID:      "cashier-7",
		OpeningBalance: 10000,
		OpenedAt:       testutil.Epoch,
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) createOrder(t *testing.T, id, sessionID string) *model.QueueItem {
	t.Helper()
	item, err := f.store.CreateOrder(context.Background(), &model.Order{
		ID:        id,
		SessionID: sessionID,
		Number:    "0001",
		Status:    "paid",
		Subtotal:  2500,
		Tax:       250,
		Total:     2750,
		CreatedAt: testutil.Epoch.Add(time.Minute),
		Items: []model.OrderItem{
			{ID: id + "-I1", ProductID: "P-1", Quantity: 1, UnitPrice: 1500, Total: 1500},
			{ID: id + "-I2", ProductID: "P-2", Quantity: 2, UnitPrice: 500, Total: 1000, PromotionID: "PROMO-1"},
		},
	})
	require.NoError(t, err)
	return item
}

func (f *fixture) createPayment(t *testing.T, id, orderID string) *model.QueueItem {
	t.Helper()
	item, err := f.store.CreatePayment(context.Background(), &model.Payment{
		ID:        id,
		OrderID:   orderID,
		Method:    "cash",
		Amount:    2750,
		CreatedAt: testutil.Epoch.Add(2 * time.Minute),
	})
	require.NoError(t, err)
	return item
}
