package model

import "time"

// SyncStatus tracks whether a local entity has reached the remote system.
type SyncStatus string

const (
	SyncStatusPending SyncStatus = "pending_sync"
	SyncStatusSynced  SyncStatus = "synced"
)

// Session is a cash-register session (shift) opened on this client.
type Session struct {
	ID             string     `json:"id"`
	ServerID       string     `json:"server_id,omitempty"`
	RegisterID     string     `json:"register_id"`
	CashierID      string     `json:"cashier_id"`
	OpeningBalance int64      `json:"opening_balance"`           // minor currency units
	ClosingBalance *int64     `json:"closing_balance,omitempty"`
	OpenedAt       time.Time  `json:"opened_at"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	SyncStatus     SyncStatus `json:"sync_status"`
}

// Order is a sale recorded against a session. SessionID may hold either a
// local or a remote session identifier.
type Order struct {
	ID         string      `json:"id"`
	ServerID   string      `json:"server_id,omitempty"`
	SessionID  string      `json:"session_id"`
	CustomerID string      `json:"customer_id,omitempty"`
	Number     string      `json:"number"`
	Status     string      `json:"status"`
	Subtotal   int64       `json:"subtotal"`
	Discount   int64       `json:"discount"`
	Tax        int64       `json:"tax"`
	Total      int64       `json:"total"`
	CreatedAt  time.Time   `json:"created_at"`
	SyncStatus SyncStatus  `json:"sync_status"`
	Items      []OrderItem `json:"items,omitempty"`
}

// OrderItem is one line of an order. Items have no queue entries of their
// own; they travel with their order.
type OrderItem struct {
	ID          string `json:"id"`
	OrderID     string `json:"order_id"`
	ProductID   string `json:"product_id"`
	Quantity    int    `json:"quantity"`
	UnitPrice   int64  `json:"unit_price"`
	Discount    int64  `json:"discount"`
	Total       int64  `json:"total"`
	PromotionID string `json:"promotion_id,omitempty"`
}

// Payment settles all or part of an order. OrderID may hold either a local or
// a remote order identifier.
type Payment struct {
	ID         string     `json:"id"`
	ServerID   string     `json:"server_id,omitempty"`
	OrderID    string     `json:"order_id"`
	Method     string     `json:"method"`
	Amount     int64      `json:"amount"`
	Reference  string     `json:"reference,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	SyncStatus SyncStatus `json:"sync_status"`
}

// IsSynced reports whether the payment already has a remote identifier.
func (p *Payment) IsSynced() bool {
	return p.SyncStatus == SyncStatusSynced && p.ServerID != ""
}
