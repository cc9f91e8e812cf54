// Package remote defines what the sync engine needs from the remote system
// of record: insert-and-return-identifier writes for locally created
// entities, and catalog reads for the reference caches.
//
// Records carry remote identifiers only. Local identifiers are resolved by
// the processors before a record is built; LocalID is sent as a client
// reference for tracing.
package remote

import (
	"context"
	"time"

	"github.com/roach88/possync/internal/model"
)

// SessionRecord is the remote shape of a register session.
type SessionRecord struct {
	LocalID        string
	RegisterID     string
	CashierID      string
	OpeningBalance int64
	ClosingBalance *int64
	OpenedAt       time.Time
	ClosedAt       *time.Time
}

// OrderRecord is the remote shape of an order. SessionID is nil when the
// session could not be resolved.
type OrderRecord struct {
	LocalID    string
	SessionID  *string
	CustomerID string
	Number     string
	Status     string
	Subtotal   int64
	Discount   int64
	Tax        int64
	Total      int64
	CreatedAt  time.Time
}

// OrderItemRecord is the remote shape of an order line.
type OrderItemRecord struct {
	LocalID     string
	OrderID     string
	ProductID   string
	Quantity    int
	UnitPrice   int64
	Discount    int64
	Total       int64
	PromotionID string
}

// PaymentRecord is the remote shape of a payment.
type PaymentRecord struct {
	LocalID   string
	OrderID   string
	Method    string
	Amount    int64
	Reference string
	CreatedAt time.Time
}

// Writer submits local mutations. Insert methods return the identifier the
// remote system generated.
type Writer interface {
	InsertSession(ctx context.Context, rec SessionRecord) (string, error)
	UpdateSession(ctx context.Context, serverID string, rec SessionRecord) error
	InsertOrder(ctx context.Context, rec OrderRecord) (string, error)
	UpdateOrder(ctx context.Context, serverID string, rec OrderRecord) error
	InsertOrderItem(ctx context.Context, rec OrderItemRecord) (string, error)
	InsertPayment(ctx context.Context, rec PaymentRecord) (string, error)
}

// Catalog reads reference data. A nil since means a full pull of every
// active row; otherwise only rows updated after since are returned.
// The Inactive/Removed methods report rows deactivated or removed after
// since, which a delta pull cannot observe.
type Catalog interface {
	FetchCustomers(ctx context.Context, since *time.Time) ([]model.Customer, error)
	FetchInactiveCustomerIDs(ctx context.Context, since time.Time) ([]string, error)
	FetchPromotions(ctx context.Context, since *time.Time) ([]model.Promotion, error)
	FetchInactivePromotionIDs(ctx context.Context, since time.Time) ([]string, error)
	FetchStockLevels(ctx context.Context, since *time.Time) ([]model.StockLevel, error)
	FetchRemovedStockLevels(ctx context.Context, since time.Time) ([]model.StockLevel, error)
}

// Pinger probes connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Remote is the full remote contract.
type Remote interface {
	Writer
	Catalog
	Pinger
}
