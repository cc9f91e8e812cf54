package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/possync/internal/model"
)

// CreateSession inserts a local session and enqueues its create mutation in
// one transaction. An empty ID is rejected; callers mint ids with
// model.NewLocalID.
func (s *Store) CreateSession(ctx context.Context, sess *model.Session) (*model.QueueItem, error) {
	if sess.ID == "" {
		return nil, fmt.Errorf("create session: empty id")
	}
	if sess.SyncStatus == "" {
		sess.SyncStatus = model.SyncStatusPending
	}
	payload, err := json.Marshal(sess)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	var item *model.QueueItem
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		var closing sql.NullInt64
		if sess.ClosingBalance != nil {
			closing = sql.NullInt64{Int64: *sess.ClosingBalance, Valid: true}
		}
		_, err := exec(ctx, tx, sqlb.Insert("sessions").
			Columns("id", "server_id", "register_id", "cashier_id", "opening_balance",
				"closing_balance", "opened_at", "closed_at", "sync_status").
			Values(sess.ID, nullString(sess.ServerID), sess.RegisterID, sess.CashierID, sess.OpeningBalance,
				closing, toMillis(sess.OpenedAt), nullMillis(sess.ClosedAt), string(sess.SyncStatus)))
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		item, err = enqueue(ctx, tx, s.now(), model.EntitySession, model.ActionCreate, sess.ID, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// CloseSession records the closing balance and time of a session and
// enqueues an update mutation.
func (s *Store) CloseSession(ctx context.Context, id string, closingBalance int64) (*model.QueueItem, error) {
	var item *model.QueueItem
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		err := execOne(ctx, tx, sqlb.Update("sessions").
			Set("closing_balance", closingBalance).
			Set("closed_at", now).
			Where(sq.Eq{"id": id}))
		if err != nil {
			return fmt.Errorf("close session %s: %w", id, err)
		}
		payload, err := json.Marshal(map[string]any{"closing_balance": closingBalance, "closed_at": now})
		if err != nil {
			return fmt.Errorf("close session %s: %w", id, err)
		}
		item, err = enqueue(ctx, tx, now, model.EntitySession, model.ActionUpdate, id, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

var sessionColumns = []string{
	"id", "server_id", "register_id", "cashier_id", "opening_balance",
	"closing_balance", "opened_at", "closed_at", "sync_status",
}

// GetSession returns the local session with the given id.
func (s *Store) GetSession(ctx context.Context, id string) (*model.Session, error) {
	row, err := queryRow(ctx, s.db, sqlb.Select(sessionColumns...).From("sessions").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	var (
		sess              model.Session
		serverID          sql.NullString
		closing, closedAt sql.NullInt64
		openedAt          int64
		status            string
	)
	err = row.Scan(&sess.ID, &serverID, &sess.RegisterID, &sess.CashierID, &sess.OpeningBalance,
		&closing, &openedAt, &closedAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get session %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get session %s: %w", id, err)
	}

	sess.ServerID = serverID.String
	if closing.Valid {
		v := closing.Int64
		sess.ClosingBalance = &v
	}
	sess.OpenedAt = fromMillis(openedAt)
	sess.ClosedAt = fromNullMillis(closedAt)
	sess.SyncStatus = model.SyncStatus(status)
	return &sess, nil
}

// MarkSessionSynced attaches the remote identifier to a session.
func (s *Store) MarkSessionSynced(ctx context.Context, id, serverID string) error {
	err := execOne(ctx, s.db, sqlb.Update("sessions").
		Set("server_id", serverID).
		Set("sync_status", string(model.SyncStatusSynced)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("mark session %s synced: %w", id, err)
	}
	return nil
}

// CreateOrder inserts a local order with its items and enqueues its create
// mutation in one transaction.
func (s *Store) CreateOrder(ctx context.Context, o *model.Order) (*model.QueueItem, error) {
	if o.ID == "" {
		return nil, fmt.Errorf("create order: empty id")
	}
	if o.SyncStatus == "" {
		o.SyncStatus = model.SyncStatusPending
	}
	payload, err := json.Marshal(o)
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	var item *model.QueueItem
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := exec(ctx, tx, sqlb.Insert("orders").
			Columns("id", "server_id", "session_id", "customer_id", "number", "status",
				"subtotal", "discount", "tax", "total", "created_at", "sync_status").
			Values(o.ID, nullString(o.ServerID), nullString(o.SessionID), nullString(o.CustomerID), o.Number, o.Status,
				o.Subtotal, o.Discount, o.Tax, o.Total, toMillis(o.CreatedAt), string(o.SyncStatus)))
		if err != nil {
			return fmt.Errorf("create order: %w", err)
		}

		for i := range o.Items {
			it := &o.Items[i]
			it.OrderID = o.ID
			_, err := exec(ctx, tx, sqlb.Insert("order_items").
				Columns("id", "order_id", "product_id", "quantity", "unit_price", "discount", "total", "promotion_id").
				Values(it.ID, it.OrderID, it.ProductID, it.Quantity, it.UnitPrice, it.Discount, it.Total, nullString(it.PromotionID)))
			if err != nil {
				return fmt.Errorf("create order item %s: %w", it.ID, err)
			}
		}

		item, err = enqueue(ctx, tx, s.now(), model.EntityOrder, model.ActionCreate, o.ID, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateOrderStatus changes an order's status and enqueues an update
// mutation.
func (s *Store) UpdateOrderStatus(ctx context.Context, id, status string) (*model.QueueItem, error) {
	var item *model.QueueItem
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		err := execOne(ctx, tx, sqlb.Update("orders").Set("status", status).Where(sq.Eq{"id": id}))
		if err != nil {
			return fmt.Errorf("update order %s: %w", id, err)
		}
		payload, err := json.Marshal(map[string]string{"status": status})
		if err != nil {
			return fmt.Errorf("update order %s: %w", id, err)
		}
		item, err = enqueue(ctx, tx, s.now(), model.EntityOrder, model.ActionUpdate, id, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

var orderColumns = []string{
	"id", "server_id", "session_id", "customer_id", "number", "status",
	"subtotal", "discount", "tax", "total", "created_at", "sync_status",
}

// GetOrder returns the local order with its items.
func (s *Store) GetOrder(ctx context.Context, id string) (*model.Order, error) {
	row, err := queryRow(ctx, s.db, sqlb.Select(orderColumns...).From("orders").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}

	var (
		o                             model.Order
		serverID, sessionID, customer sql.NullString
		createdAt                     int64
		status                        string
	)
	err = row.Scan(&o.ID, &serverID, &sessionID, &customer, &o.Number, &o.Status,
		&o.Subtotal, &o.Discount, &o.Tax, &o.Total, &createdAt, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get order %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", id, err)
	}
	o.ServerID = serverID.String
	o.SessionID = sessionID.String
	o.CustomerID = customer.String
	o.CreatedAt = fromMillis(createdAt)
	o.SyncStatus = model.SyncStatus(status)

	items, err := s.listOrderItems(ctx, id)
	if err != nil {
		return nil, err
	}
	o.Items = items
	return &o, nil
}

func (s *Store) listOrderItems(ctx context.Context, orderID string) ([]model.OrderItem, error) {
	rows, err := queryRows(ctx, s.db, sqlb.
		Select("id", "order_id", "product_id", "quantity", "unit_price", "discount", "total", "promotion_id").
		From("order_items").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := []model.OrderItem{}
	for rows.Next() {
		var it model.OrderItem
		var promo sql.NullString
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Quantity, &it.UnitPrice,
			&it.Discount, &it.Total, &promo); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		it.PromotionID = promo.String
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}
	return items, nil
}

// MarkOrderSynced attaches the remote identifier to an order and persists
// the session reference it was submitted with.
func (s *Store) MarkOrderSynced(ctx context.Context, id, serverID, sessionID string) error {
	err := execOne(ctx, s.db, sqlb.Update("orders").
		Set("server_id", serverID).
		Set("session_id", nullString(sessionID)).
		Set("sync_status", string(model.SyncStatusSynced)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("mark order %s synced: %w", id, err)
	}
	return nil
}

// CreatePayment inserts a local payment and enqueues its create mutation in
// one transaction.
func (s *Store) CreatePayment(ctx context.Context, p *model.Payment) (*model.QueueItem, error) {
	if p.ID == "" {
		return nil, fmt.Errorf("create payment: empty id")
	}
	if p.SyncStatus == "" {
		p.SyncStatus = model.SyncStatusPending
	}
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("create payment: %w", err)
	}

	var item *model.QueueItem
	err = s.inTx(ctx, func(tx *sql.Tx) error {
		_, err := exec(ctx, tx, sqlb.Insert("payments").
			Columns("id", "server_id", "order_id", "method", "amount", "reference", "created_at", "sync_status").
			Values(p.ID, nullString(p.ServerID), p.OrderID, p.Method, p.Amount, nullString(p.Reference),
				toMillis(p.CreatedAt), string(p.SyncStatus)))
		if err != nil {
			return fmt.Errorf("create payment: %w", err)
		}
		item, err = enqueue(ctx, tx, s.now(), model.EntityPayment, model.ActionCreate, p.ID, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

var paymentColumns = []string{
	"id", "server_id", "order_id", "method", "amount", "reference", "created_at", "sync_status",
}

// GetPayment returns the local payment with the given id.
func (s *Store) GetPayment(ctx context.Context, id string) (*model.Payment, error) {
	row, err := queryRow(ctx, s.db, sqlb.Select(paymentColumns...).From("payments").Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	p, err := scanPayment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get payment %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get payment %s: %w", id, err)
	}
	return p, nil
}

// ListPaymentsByOrder returns payments whose order reference is orderID.
func (s *Store) ListPaymentsByOrder(ctx context.Context, orderID string) ([]model.Payment, error) {
	rows, err := queryRows(ctx, s.db, sqlb.Select(paymentColumns...).
		From("payments").
		Where(sq.Eq{"order_id": orderID}).
		OrderBy("created_at ASC", "id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query payments: %w", err)
	}
	defer rows.Close()

	payments := []model.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate payments: %w", err)
	}
	return payments, nil
}

// MarkPaymentSynced attaches the remote identifier to a payment and persists
// the order reference it was submitted with.
func (s *Store) MarkPaymentSynced(ctx context.Context, id, serverID, orderID string) error {
	err := execOne(ctx, s.db, sqlb.Update("payments").
		Set("server_id", serverID).
		Set("order_id", orderID).
		Set("sync_status", string(model.SyncStatusSynced)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("mark payment %s synced: %w", id, err)
	}
	return nil
}

func scanPayment(r rowScanner) (*model.Payment, error) {
	var (
		p                   model.Payment
		serverID, reference sql.NullString
		createdAt           int64
		status              string
	)
	if err := r.Scan(&p.ID, &serverID, &p.OrderID, &p.Method, &p.Amount, &reference, &createdAt, &status); err != nil {
		return nil, err
	}
	p.ServerID = serverID.String
	p.Reference = reference.String
	p.CreatedAt = fromMillis(createdAt)
	p.SyncStatus = model.SyncStatus(status)
	return &p, nil
}
