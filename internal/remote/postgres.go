package remote

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/logging"
	"github.com/roach88/possync/internal/model"
)

// ErrNotFound is returned when an update targets a remote row that no
// longer exists.
var ErrNotFound = errors.New("remote row not found")

// psql builds Postgres statements with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// Postgres implements Remote against the system of record's PostgreSQL
// database.
//
// Expected remote tables: pos_sessions, orders, order_items, payments
// (each with a generated id and a client_ref column), customers,
// promotions, promotion_targets, promotion_free_products and stock_levels
// (soft-deleted through deleted_at).
type Postgres struct {
	db  *sql.DB
	log zerolog.Logger
}

// OpenPostgres connects to dsn and verifies the connection.
func OpenPostgres(ctx context.Context, dsn string, log zerolog.Logger) (*Postgres, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open remote database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "connect remote database")
	}
	return NewPostgres(db, log), nil
}

// NewPostgres wraps an existing connection pool.
func NewPostgres(db *sql.DB, log zerolog.Logger) *Postgres {
	return &Postgres{db: db, log: logging.Component(log, "remote")}
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Ping probes connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return errors.Wrap(p.db.PingContext(ctx), "ping remote")
}

// InsertSession inserts a session and returns its remote id.
func (p *Postgres) InsertSession(ctx context.Context, rec SessionRecord) (string, error) {
	return p.insertReturningID(ctx, "insert session", insertSessionQuery(rec))
}

// UpdateSession writes the mutable fields of a synced session.
func (p *Postgres) UpdateSession(ctx context.Context, serverID string, rec SessionRecord) error {
	return p.updateOne(ctx, "update session", psql.Update("pos_sessions").
		Set("closing_balance", rec.ClosingBalance).
		Set("closed_at", rec.ClosedAt).
		Where(sq.Eq{"id": serverID}))
}

// InsertOrder inserts an order and returns its remote id.
func (p *Postgres) InsertOrder(ctx context.Context, rec OrderRecord) (string, error) {
	return p.insertReturningID(ctx, "insert order", insertOrderQuery(rec))
}

// UpdateOrder writes the mutable fields of a synced order.
func (p *Postgres) UpdateOrder(ctx context.Context, serverID string, rec OrderRecord) error {
	return p.updateOne(ctx, "update order", psql.Update("orders").
		Set("status", rec.Status).
		Set("subtotal", rec.Subtotal).
		Set("discount", rec.Discount).
		Set("tax", rec.Tax).
		Set("total", rec.Total).
		Set("updated_at", sq.Expr("now()")).
		Where(sq.Eq{"id": serverID}))
}

// InsertOrderItem inserts an order line and returns its remote id.
func (p *Postgres) InsertOrderItem(ctx context.Context, rec OrderItemRecord) (string, error) {
	return p.insertReturningID(ctx, "insert order item", psql.Insert("order_items").
		Columns("client_ref", "order_id", "product_id", "quantity", "unit_price", "discount", "total", "promotion_id").
		Values(rec.LocalID, rec.OrderID, rec.ProductID, rec.Quantity, rec.UnitPrice, rec.Discount, rec.Total,
			nullIfEmpty(rec.PromotionID)))
}

// InsertPayment inserts a payment and returns its remote id.
func (p *Postgres) InsertPayment(ctx context.Context, rec PaymentRecord) (string, error) {
	return p.insertReturningID(ctx, "insert payment", psql.Insert("payments").
		Columns("client_ref", "order_id", "method", "amount", "reference", "created_at").
		Values(rec.LocalID, rec.OrderID, rec.Method, rec.Amount, nullIfEmpty(rec.Reference), rec.CreatedAt))
}

func insertSessionQuery(rec SessionRecord) sq.InsertBuilder {
	return psql.Insert("pos_sessions").
		Columns("client_ref", "register_id", "cashier_id", "opening_balance", "closing_balance", "opened_at", "closed_at").
		Values(rec.LocalID, rec.RegisterID, rec.CashierID, rec.OpeningBalance, rec.ClosingBalance, rec.OpenedAt, rec.ClosedAt)
}

func insertOrderQuery(rec OrderRecord) sq.InsertBuilder {
	return psql.Insert("orders").
		Columns("client_ref", "session_id", "customer_id", "number", "status",
			"subtotal", "discount", "tax", "total", "created_at").
		Values(rec.LocalID, rec.SessionID, nullIfEmpty(rec.CustomerID), rec.Number, rec.Status,
			rec.Subtotal, rec.Discount, rec.Tax, rec.Total, rec.CreatedAt)
}

// insertReturningID executes ib with RETURNING id and scans the id as text.
func (p *Postgres) insertReturningID(ctx context.Context, op string, ib sq.InsertBuilder) (string, error) {
	stmt, args, err := ib.Suffix("RETURNING id::text").ToSql()
	if err != nil {
		return "", errors.Wrapf(err, "%s: build", op)
	}

	var id string
	if err := p.db.QueryRowContext(ctx, stmt, args...).Scan(&id); err != nil {
		// Not logging args because they may contain customer data
		p.log.Debug().Err(err).Str("stmt", stmt).Msg(op + " failed")
		return "", errors.Wrap(err, op)
	}
	return id, nil
}

func (p *Postgres) updateOne(ctx context.Context, op string, ub sq.UpdateBuilder) error {
	stmt, args, err := ub.ToSql()
	if err != nil {
		return errors.Wrapf(err, "%s: build", op)
	}
	res, err := p.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrap(err, op)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, op)
	}
	if n == 0 {
		return errors.Wrap(ErrNotFound, op)
	}
	return nil
}

// FetchCustomers returns active customers, all of them or those updated
// after since.
func (p *Postgres) FetchCustomers(ctx context.Context, since *time.Time) ([]model.Customer, error) {
	rows, err := p.query(ctx, customersQuery(since))
	if err != nil {
		return nil, errors.Wrap(err, "fetch customers")
	}
	defer rows.Close()

	out := []model.Customer{}
	for rows.Next() {
		var c model.Customer
		var email, phone sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &email, &phone, &c.Points, &c.Active, &c.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan customer")
		}
		c.Email = email.String
		c.Phone = phone.String
		c.UpdatedAt = c.UpdatedAt.UTC()
		out = append(out, c)
	}
	return out, errors.Wrap(rows.Err(), "iterate customers")
}

// FetchInactiveCustomerIDs returns customers deactivated after since.
func (p *Postgres) FetchInactiveCustomerIDs(ctx context.Context, since time.Time) ([]string, error) {
	ids, err := p.queryIDs(ctx, psql.Select("id").From("customers").
		Where(sq.Eq{"active": false}).
		Where(sq.Gt{"updated_at": since}).
		OrderBy("id"))
	return ids, errors.Wrap(err, "fetch inactive customers")
}

// FetchPromotions returns active, unexpired promotions with their targets
// and free products.
func (p *Postgres) FetchPromotions(ctx context.Context, since *time.Time) ([]model.Promotion, error) {
	rows, err := p.query(ctx, promotionsQuery(since))
	if err != nil {
		return nil, errors.Wrap(err, "fetch promotions")
	}

	promos := []model.Promotion{}
	index := map[string]int{}
	for rows.Next() {
		var pr model.Promotion
		var until sql.NullTime
		if err := rows.Scan(&pr.ID, &pr.Name, &pr.Kind, &pr.Value, &pr.ValidFrom, &until, &pr.Active, &pr.UpdatedAt); err != nil {
			rows.Close()
			return nil, errors.Wrap(err, "scan promotion")
		}
		pr.ValidFrom = pr.ValidFrom.UTC()
		pr.UpdatedAt = pr.UpdatedAt.UTC()
		if until.Valid {
			t := until.Time.UTC()
			pr.ValidUntil = &t
		}
		index[pr.ID] = len(promos)
		promos = append(promos, pr)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, errors.Wrap(err, "iterate promotions")
	}
	rows.Close()

	if len(promos) == 0 {
		return promos, nil
	}
	ids := make([]string, len(promos))
	for i := range promos {
		ids[i] = promos[i].ID
	}

	if err := p.attachPromotionChildren(ctx, promos, index, ids); err != nil {
		return nil, err
	}
	return promos, nil
}

func (p *Postgres) attachPromotionChildren(ctx context.Context, promos []model.Promotion, index map[string]int, ids []string) error {
	targets, err := p.query(ctx, psql.Select("promotion_id", "target_type", "target_id").
		From("promotion_targets").
		Where(sq.Eq{"promotion_id": ids}).
		OrderBy("promotion_id", "target_type", "target_id"))
	if err != nil {
		return errors.Wrap(err, "fetch promotion targets")
	}
	defer targets.Close()
	for targets.Next() {
		var t model.PromotionTarget
		if err := targets.Scan(&t.PromotionID, &t.TargetType, &t.TargetID); err != nil {
			return errors.Wrap(err, "scan promotion target")
		}
		if i, ok := index[t.PromotionID]; ok {
			promos[i].Targets = append(promos[i].Targets, t)
		}
	}
	if err := targets.Err(); err != nil {
		return errors.Wrap(err, "iterate promotion targets")
	}

	free, err := p.query(ctx, psql.Select("promotion_id", "product_id", "quantity").
		From("promotion_free_products").
		Where(sq.Eq{"promotion_id": ids}).
		OrderBy("promotion_id", "product_id"))
	if err != nil {
		return errors.Wrap(err, "fetch promotion free products")
	}
	defer free.Close()
	for free.Next() {
		var fp model.PromotionFreeProduct
		if err := free.Scan(&fp.PromotionID, &fp.ProductID, &fp.Quantity); err != nil {
			return errors.Wrap(err, "scan promotion free product")
		}
		if i, ok := index[fp.PromotionID]; ok {
			promos[i].FreeProducts = append(promos[i].FreeProducts, fp)
		}
	}
	return errors.Wrap(free.Err(), "iterate promotion free products")
}

// FetchInactivePromotionIDs returns promotions deactivated or expired after
// since.
func (p *Postgres) FetchInactivePromotionIDs(ctx context.Context, since time.Time) ([]string, error) {
	ids, err := p.queryIDs(ctx, psql.Select("id").From("promotions").
		Where(sq.Gt{"updated_at": since}).
		Where(sq.Or{sq.Eq{"active": false}, sq.Expr("valid_until < now()")}).
		OrderBy("id"))
	return ids, errors.Wrap(err, "fetch inactive promotions")
}

// FetchStockLevels returns live stock rows.
func (p *Postgres) FetchStockLevels(ctx context.Context, since *time.Time) ([]model.StockLevel, error) {
	rows, err := p.query(ctx, stockQuery(since))
	if err != nil {
		return nil, errors.Wrap(err, "fetch stock levels")
	}
	defer rows.Close()

	out := []model.StockLevel{}
	for rows.Next() {
		var l model.StockLevel
		if err := rows.Scan(&l.ProductID, &l.LocationID, &l.Quantity, &l.UpdatedAt); err != nil {
			return nil, errors.Wrap(err, "scan stock level")
		}
		l.UpdatedAt = l.UpdatedAt.UTC()
		out = append(out, l)
	}
	return out, errors.Wrap(rows.Err(), "iterate stock levels")
}

// FetchRemovedStockLevels returns stock rows soft-deleted after since.
func (p *Postgres) FetchRemovedStockLevels(ctx context.Context, since time.Time) ([]model.StockLevel, error) {
	rows, err := p.query(ctx, psql.Select("product_id", "location_id").
		From("stock_levels").
		Where(sq.Gt{"deleted_at": since}).
		OrderBy("product_id", "location_id"))
	if err != nil {
		return nil, errors.Wrap(err, "fetch removed stock levels")
	}
	defer rows.Close()

	out := []model.StockLevel{}
	for rows.Next() {
		var l model.StockLevel
		if err := rows.Scan(&l.ProductID, &l.LocationID); err != nil {
			return nil, errors.Wrap(err, "scan removed stock level")
		}
		out = append(out, l)
	}
	return out, errors.Wrap(rows.Err(), "iterate removed stock levels")
}

func customersQuery(since *time.Time) sq.SelectBuilder {
	b := psql.Select("id", "name", "email", "phone", "points", "active", "updated_at").
		From("customers").
		Where(sq.Eq{"active": true}).
		OrderBy("id")
	if since != nil {
		b = b.Where(sq.Gt{"updated_at": *since})
	}
	return b
}

func promotionsQuery(since *time.Time) sq.SelectBuilder {
	b := psql.Select("id", "name", "kind", "value", "valid_from", "valid_until", "active", "updated_at").
		From("promotions").
		Where(sq.Eq{"active": true}).
		Where(sq.Or{sq.Eq{"valid_until": nil}, sq.Expr("valid_until >= now()")}).
		OrderBy("id")
	if since != nil {
		b = b.Where(sq.Gt{"updated_at": *since})
	}
	return b
}

func stockQuery(since *time.Time) sq.SelectBuilder {
	b := psql.Select("product_id", "location_id", "quantity", "updated_at").
		From("stock_levels").
		Where(sq.Eq{"deleted_at": nil}).
		OrderBy("product_id", "location_id")
	if since != nil {
		b = b.Where(sq.Gt{"updated_at": *since})
	}
	return b
}

func (p *Postgres) query(ctx context.Context, b sq.SelectBuilder) (*sql.Rows, error) {
	stmt, args, err := b.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build query")
	}
	return p.db.QueryContext(ctx, stmt, args...)
}

func (p *Postgres) queryIDs(ctx context.Context, b sq.SelectBuilder) ([]string, error) {
	rows, err := p.query(ctx, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// SQLState returns the Postgres error code carried by err, or "".
func SQLState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	return ""
}

// IsPQError checks if err carries the given Postgres error code.
func IsPQError(err error, code string) bool {
	return SQLState(err) == code
}
