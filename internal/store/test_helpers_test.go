package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/testutil"
)

// createTestStore creates a new store on a temp file driven by a fake clock.
func createTestStore(t *testing.T) (*Store, *testutil.FakeClock) {
	t.Helper()
	clock := testutil.NewFakeClock(testutil.Epoch)
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, WithClock(clock))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s, clock
}

// testSession creates a session with minimal required fields.
func testSession(id string) *model.Session {
	return &model.Session{
		ID:             id,
		RegisterID:     "REG-1",
		CashierID:      "cashier-7",
		OpeningBalance: 10000,
		OpenedAt:       testutil.Epoch,
	}
}

// testOrder creates an order with two items referencing sessionID.
func testOrder(id, sessionID string) *model.Order {
	return &model.Order{
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
	}
}

// testPayment creates a cash payment for orderID.
func testPayment(id, orderID string) *model.Payment {
	return &model.Payment{
		ID:        id,
		OrderID:   orderID,
		Method:    "cash",
		Amount:    2750,
		CreatedAt: testutil.Epoch.Add(2 * time.Minute),
	}
}
