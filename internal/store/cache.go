package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/possync/internal/model"
)

// UpsertCustomers inserts or replaces cached customers.
func (s *Store) UpsertCustomers(ctx context.Context, customers []model.Customer) error {
	if len(customers) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, c := range customers {
			_, err := exec(ctx, tx, sqlb.Insert("customers").
				Columns("id", "name", "email", "phone", "points", "active", "updated_at").
				Values(c.ID, c.Name, nullString(c.Email), nullString(c.Phone), c.Points, boolInt(c.Active), toMillis(c.UpdatedAt)).
				Suffix(`ON CONFLICT(id) DO UPDATE SET
					name = excluded.name, email = excluded.email, phone = excluded.phone,
					points = excluded.points, active = excluded.active, updated_at = excluded.updated_at`))
			if err != nil {
				return fmt.Errorf("upsert customer %s: %w", c.ID, err)
			}
		}
		return nil
	})
}

// ListCustomers returns cached customers ordered by id.
func (s *Store) ListCustomers(ctx context.Context) ([]model.Customer, error) {
	rows, err := queryRows(ctx, s.db, sqlb.
		Select("id", "name", "email", "phone", "points", "active", "updated_at").
		From("customers").
		OrderBy("id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query customers: %w", err)
	}
	defer rows.Close()

	customers := []model.Customer{}
	for rows.Next() {
		var (
			c            model.Customer
			email, phone sql.NullString
			active       int
			updatedAt    int64
		)
		if err := rows.Scan(&c.ID, &c.Name, &email, &phone, &c.Points, &active, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan customer: %w", err)
		}
		c.Email = email.String
		c.Phone = phone.String
		c.Active = active != 0
		c.UpdatedAt = fromMillis(updatedAt)
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate customers: %w", err)
	}
	return customers, nil
}

// UpsertPromotions inserts or replaces cached promotions. The child target
// and free-product rows of each promotion are replaced wholesale.
func (s *Store) UpsertPromotions(ctx context.Context, promos []model.Promotion) error {
	if len(promos) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, p := range promos {
			_, err := exec(ctx, tx, sqlb.Insert("promotions").
				Columns("id", "name", "kind", "value", "valid_from", "valid_until", "active", "updated_at").
				Values(p.ID, p.Name, p.Kind, p.Value, toMillis(p.ValidFrom), nullMillis(p.ValidUntil),
					boolInt(p.Active), toMillis(p.UpdatedAt)).
				Suffix(`ON CONFLICT(id) DO UPDATE SET
					name = excluded.name, kind = excluded.kind, value = excluded.value,
					valid_from = excluded.valid_from, valid_until = excluded.valid_until,
					active = excluded.active, updated_at = excluded.updated_at`))
			if err != nil {
				return fmt.Errorf("upsert promotion %s: %w", p.ID, err)
			}

			if _, err := exec(ctx, tx, sqlb.Delete("promotion_targets").Where(sq.Eq{"promotion_id": p.ID})); err != nil {
				return fmt.Errorf("clear promotion targets %s: %w", p.ID, err)
			}
			for _, t := range p.Targets {
				_, err := exec(ctx, tx, sqlb.Insert("promotion_targets").
					Columns("promotion_id", "target_type", "target_id").
					Values(p.ID, t.TargetType, t.TargetID))
				if err != nil {
					return fmt.Errorf("insert promotion target %s: %w", p.ID, err)
				}
			}

			if _, err := exec(ctx, tx, sqlb.Delete("promotion_free_products").Where(sq.Eq{"promotion_id": p.ID})); err != nil {
				return fmt.Errorf("clear promotion free products %s: %w", p.ID, err)
			}
			for _, fp := range p.FreeProducts {
				_, err := exec(ctx, tx, sqlb.Insert("promotion_free_products").
					Columns("promotion_id", "product_id", "quantity").
					Values(p.ID, fp.ProductID, fp.Quantity))
				if err != nil {
					return fmt.Errorf("insert promotion free product %s: %w", p.ID, err)
				}
			}
		}
		return nil
	})
}

// GetPromotion returns a cached promotion with its child rows.
func (s *Store) GetPromotion(ctx context.Context, id string) (*model.Promotion, error) {
	row, err := queryRow(ctx, s.db, sqlb.
		Select("id", "name", "kind", "value", "valid_from", "valid_until", "active", "updated_at").
		From("promotions").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("get promotion %s: %w", id, err)
	}

	var (
		p                    model.Promotion
		validFrom, updatedAt int64
		validUntil           sql.NullInt64
		active               int
	)
	err = row.Scan(&p.ID, &p.Name, &p.Kind, &p.Value, &validFrom, &validUntil, &active, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get promotion %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get promotion %s: %w", id, err)
	}
	p.ValidFrom = fromMillis(validFrom)
	p.ValidUntil = fromNullMillis(validUntil)
	p.Active = active != 0
	p.UpdatedAt = fromMillis(updatedAt)

	targets, err := queryRows(ctx, s.db, sqlb.Select("target_type", "target_id").
		From("promotion_targets").
		Where(sq.Eq{"promotion_id": id}).
		OrderBy("target_type ASC", "target_id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query promotion targets: %w", err)
	}
	defer targets.Close()
	for targets.Next() {
		t := model.PromotionTarget{PromotionID: id}
		if err := targets.Scan(&t.TargetType, &t.TargetID); err != nil {
			return nil, fmt.Errorf("scan promotion target: %w", err)
		}
		p.Targets = append(p.Targets, t)
	}
	if err := targets.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotion targets: %w", err)
	}

	free, err := queryRows(ctx, s.db, sqlb.Select("product_id", "quantity").
		From("promotion_free_products").
		Where(sq.Eq{"promotion_id": id}).
		OrderBy("product_id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query promotion free products: %w", err)
	}
	defer free.Close()
	for free.Next() {
		fp := model.PromotionFreeProduct{PromotionID: id}
		if err := free.Scan(&fp.ProductID, &fp.Quantity); err != nil {
			return nil, fmt.Errorf("scan promotion free product: %w", err)
		}
		p.FreeProducts = append(p.FreeProducts, fp)
	}
	if err := free.Err(); err != nil {
		return nil, fmt.Errorf("iterate promotion free products: %w", err)
	}

	return &p, nil
}

// DeleteExpiredPromotions removes cached promotions whose validity window
// ended before now. Child rows cascade. Returns the number removed.
func (s *Store) DeleteExpiredPromotions(ctx context.Context, now time.Time) (int64, error) {
	res, err := exec(ctx, s.db, sqlb.Delete("promotions").
		Where(sq.NotEq{"valid_until": nil}).
		Where(sq.Lt{"valid_until": toMillis(now)}))
	if err != nil {
		return 0, fmt.Errorf("delete expired promotions: %w", err)
	}
	return res.RowsAffected()
}

// CountPromotionChildren returns the number of target and free-product rows
// held for a promotion id.
func (s *Store) CountPromotionChildren(ctx context.Context, id string) (int, error) {
	var targets, free int
	row, err := queryRow(ctx, s.db, sqlb.Select("COUNT(*)").From("promotion_targets").Where(sq.Eq{"promotion_id": id}))
	if err != nil {
		return 0, err
	}
	if err := row.Scan(&targets); err != nil {
		return 0, fmt.Errorf("count promotion targets: %w", err)
	}
	row, err = queryRow(ctx, s.db, sqlb.Select("COUNT(*)").From("promotion_free_products").Where(sq.Eq{"promotion_id": id}))
	if err != nil {
		return 0, err
	}
	if err := row.Scan(&free); err != nil {
		return 0, fmt.Errorf("count promotion free products: %w", err)
	}
	return targets + free, nil
}

// UpsertStockLevels inserts or replaces cached stock levels.
func (s *Store) UpsertStockLevels(ctx context.Context, levels []model.StockLevel) error {
	if len(levels) == 0 {
		return nil
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		for _, l := range levels {
			_, err := exec(ctx, tx, sqlb.Insert("stock_levels").
				Columns("product_id", "location_id", "quantity", "updated_at").
				Values(l.ProductID, l.LocationID, l.Quantity, toMillis(l.UpdatedAt)).
				Suffix(`ON CONFLICT(product_id, location_id) DO UPDATE SET
					quantity = excluded.quantity, updated_at = excluded.updated_at`))
			if err != nil {
				return fmt.Errorf("upsert stock level %s: %w", l.Key(), err)
			}
		}
		return nil
	})
}

// ListStockLevels returns cached stock levels ordered by product and location.
func (s *Store) ListStockLevels(ctx context.Context) ([]model.StockLevel, error) {
	rows, err := queryRows(ctx, s.db, sqlb.
		Select("product_id", "location_id", "quantity", "updated_at").
		From("stock_levels").
		OrderBy("product_id ASC", "location_id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query stock levels: %w", err)
	}
	defer rows.Close()

	levels := []model.StockLevel{}
	for rows.Next() {
		var l model.StockLevel
		var updatedAt int64
		if err := rows.Scan(&l.ProductID, &l.LocationID, &l.Quantity, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan stock level: %w", err)
		}
		l.UpdatedAt = fromMillis(updatedAt)
		levels = append(levels, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stock levels: %w", err)
	}
	return levels, nil
}

// DeleteStockLevels removes the given product/location pairs.
func (s *Store) DeleteStockLevels(ctx context.Context, keys []model.StockLevel) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var total int64
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		for _, k := range keys {
			res, err := exec(ctx, tx, sqlb.Delete("stock_levels").
				Where(sq.Eq{"product_id": k.ProductID, "location_id": k.LocationID}))
			if err != nil {
				return fmt.Errorf("delete stock level %s: %w", k.Key(), err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("delete stock level %s: %w", k.Key(), err)
			}
			total += n
		}
		return nil
	})
	return total, err
}

// DeleteStockLevelsNotIn removes cached stock levels whose key is absent
// from keep. Returns the number removed.
func (s *Store) DeleteStockLevelsNotIn(ctx context.Context, keep []model.StockLevel) (int64, error) {
	current, err := s.ListStockLevels(ctx)
	if err != nil {
		return 0, err
	}
	wanted := make(map[string]bool, len(keep))
	for i := range keep {
		wanted[keep[i].Key()] = true
	}
	var stale []model.StockLevel
	for i := range current {
		if !wanted[current[i].Key()] {
			stale = append(stale, current[i])
		}
	}
	return s.DeleteStockLevels(ctx, stale)
}

// ListIDs returns the cached ids of a keyed reference table
// (customers or promotions).
func (s *Store) ListIDs(ctx context.Context, entity model.ReferenceEntity) ([]string, error) {
	table, err := idTable(entity)
	if err != nil {
		return nil, err
	}
	rows, err := queryRows(ctx, s.db, sqlb.Select("id").From(table).OrderBy("id ASC"))
	if err != nil {
		return nil, fmt.Errorf("list %s ids: %w", table, err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan %s id: %w", table, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s ids: %w", table, err)
	}
	return ids, nil
}

// DeleteByIDs removes rows of a keyed reference table. Promotion child rows
// cascade. Returns the number removed.
func (s *Store) DeleteByIDs(ctx context.Context, entity model.ReferenceEntity, ids []string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	table, err := idTable(entity)
	if err != nil {
		return 0, err
	}
	res, err := exec(ctx, s.db, sqlb.Delete(table).Where(sq.Eq{"id": ids}))
	if err != nil {
		return 0, fmt.Errorf("delete %s: %w", table, err)
	}
	return res.RowsAffected()
}

// DeleteNotIn removes rows of a keyed reference table whose id is absent from
// keep. Returns the number removed.
func (s *Store) DeleteNotIn(ctx context.Context, entity model.ReferenceEntity, keep []string) (int64, error) {
	current, err := s.ListIDs(ctx, entity)
	if err != nil {
		return 0, err
	}
	wanted := make(map[string]bool, len(keep))
	for _, id := range keep {
		wanted[id] = true
	}
	var stale []string
	for _, id := range current {
		if !wanted[id] {
			stale = append(stale, id)
		}
	}
	return s.DeleteByIDs(ctx, entity, stale)
}

// CountRows returns the number of cached rows for a reference entity.
func (s *Store) CountRows(ctx context.Context, entity model.ReferenceEntity) (int, error) {
	table, err := refTable(entity)
	if err != nil {
		return 0, err
	}
	row, err := queryRow(ctx, s.db, sqlb.Select("COUNT(*)").From(table))
	if err != nil {
		return 0, err
	}
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

// ClearCache deletes every cached row of entity and its sync metadata.
func (s *Store) ClearCache(ctx context.Context, entity model.ReferenceEntity) error {
	table, err := refTable(entity)
	if err != nil {
		return err
	}
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := exec(ctx, tx, sqlb.Delete(table)); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
		if _, err := exec(ctx, tx, sqlb.Delete("sync_metadata").Where(sq.Eq{"entity": string(entity)})); err != nil {
			return fmt.Errorf("clear %s metadata: %w", table, err)
		}
		return nil
	})
}

// GetSyncMetadata returns the metadata of a reference entity, or ErrNotFound
// if it has never been synced.
func (s *Store) GetSyncMetadata(ctx context.Context, entity model.ReferenceEntity) (*model.SyncMetadata, error) {
	row, err := queryRow(ctx, s.db, sqlb.Select("last_sync_at", "record_count").
		From("sync_metadata").
		Where(sq.Eq{"entity": string(entity)}))
	if err != nil {
		return nil, err
	}
	var lastSync int64
	md := model.SyncMetadata{Entity: entity}
	err = row.Scan(&lastSync, &md.RecordCount)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get sync metadata %s: %w", entity, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get sync metadata %s: %w", entity, err)
	}
	md.LastSyncAt = fromMillis(lastSync)
	return &md, nil
}

// ListSyncMetadata returns metadata for every synced reference entity.
func (s *Store) ListSyncMetadata(ctx context.Context) ([]model.SyncMetadata, error) {
	rows, err := queryRows(ctx, s.db, sqlb.Select("entity", "last_sync_at", "record_count").
		From("sync_metadata").
		OrderBy("entity ASC"))
	if err != nil {
		return nil, fmt.Errorf("query sync metadata: %w", err)
	}
	defer rows.Close()

	out := []model.SyncMetadata{}
	for rows.Next() {
		var md model.SyncMetadata
		var entity string
		var lastSync int64
		if err := rows.Scan(&entity, &lastSync, &md.RecordCount); err != nil {
			return nil, fmt.Errorf("scan sync metadata: %w", err)
		}
		md.Entity = model.ReferenceEntity(entity)
		md.LastSyncAt = fromMillis(lastSync)
		out = append(out, md)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sync metadata: %w", err)
	}
	return out, nil
}

// PutSyncMetadata creates or updates the metadata of a reference entity.
func (s *Store) PutSyncMetadata(ctx context.Context, md model.SyncMetadata) error {
	_, err := exec(ctx, s.db, sqlb.Insert("sync_metadata").
		Columns("entity", "last_sync_at", "record_count").
		Values(string(md.Entity), toMillis(md.LastSyncAt), md.RecordCount).
		Suffix("ON CONFLICT(entity) DO UPDATE SET last_sync_at = excluded.last_sync_at, record_count = excluded.record_count"))
	if err != nil {
		return fmt.Errorf("put sync metadata %s: %w", md.Entity, err)
	}
	return nil
}

func idTable(entity model.ReferenceEntity) (string, error) {
	switch entity {
	case model.RefCustomers:
		return "customers", nil
	case model.RefPromotions:
		return "promotions", nil
	}
	return "", fmt.Errorf("reference entity %q has no id column", entity)
}

func refTable(entity model.ReferenceEntity) (string, error) {
	switch entity {
	case model.RefCustomers, model.RefPromotions, model.RefStock:
		return string(entity), nil
	}
	return "", fmt.Errorf("unknown reference entity %q", entity)
}
