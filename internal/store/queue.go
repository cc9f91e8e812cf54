package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/roach88/possync/internal/model"
)

var queueColumns = []string{
	"id", "entity", "action", "entity_id", "payload", "payload_hash",
	"created_at", "updated_at", "status", "retries", "last_error",
}

// Enqueue appends a pending mutation for entityID.
//
// If an identical mutation (same entity, action, id and canonical payload)
// is already pending, the existing item is returned and nothing is written.
func (s *Store) Enqueue(ctx context.Context, entity model.EntityType, action model.Action, entityID string, payload []byte) (*model.QueueItem, error) {
	var item *model.QueueItem
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		item, err = enqueue(ctx, tx, s.now(), entity, action, entityID, payload)
		return err
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

func enqueue(ctx context.Context, q querier, now int64, entity model.EntityType, action model.Action, entityID string, payload []byte) (*model.QueueItem, error) {
	if !entity.Valid() {
		return nil, fmt.Errorf("enqueue: unknown entity type %q", entity)
	}
	if !action.Valid() {
		return nil, fmt.Errorf("enqueue: unknown action %q", action)
	}
	if entityID == "" {
		return nil, fmt.Errorf("enqueue: empty entity id")
	}

	canonical, err := model.CanonicalPayload(payload)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	hash, err := model.PayloadHash(canonical)
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	existing, err := scanQueueRow(queryRow(ctx, q, sqlb.Select(queueColumns...).
		From("sync_queue").
		Where(sq.Eq{
			"entity":       string(entity),
			"action":       string(action),
			"entity_id":    entityID,
			"payload_hash": hash,
			"status":       string(model.QueueStatusPending),
		}).
		OrderBy("id ASC").
		Limit(1)))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	res, err := exec(ctx, q, sqlb.Insert("sync_queue").
		Columns("entity", "action", "entity_id", "payload", "payload_hash", "created_at", "updated_at", "status", "retries").
		Values(string(entity), string(action), entityID, string(canonical), hash, now, now, string(model.QueueStatusPending), 0))
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("enqueue: %w", err)
	}

	return &model.QueueItem{
		ID:          id,
		Entity:      entity,
		Action:      action,
		EntityID:    entityID,
		Payload:     json.RawMessage(canonical),
		PayloadHash: hash,
		CreatedAt:   fromMillis(now),
		UpdatedAt:   fromMillis(now),
		Status:      model.QueueStatusPending,
	}, nil
}

// GetQueueItem returns the queue item with the given id.
func (s *Store) GetQueueItem(ctx context.Context, id int64) (*model.QueueItem, error) {
	item, err := scanQueueRow(queryRow(ctx, s.db, sqlb.Select(queueColumns...).
		From("sync_queue").
		Where(sq.Eq{"id": id})))
	if err != nil {
		return nil, fmt.Errorf("get queue item %d: %w", id, err)
	}
	return item, nil
}

// ListQueueItems returns items in the given statuses (all when none given),
// ordered by id.
func (s *Store) ListQueueItems(ctx context.Context, statuses ...model.QueueStatus) ([]model.QueueItem, error) {
	b := sqlb.Select(queueColumns...).From("sync_queue").OrderBy("id ASC")
	if len(statuses) > 0 {
		vals := make([]string, len(statuses))
		for i, st := range statuses {
			vals[i] = string(st)
		}
		b = b.Where(sq.Eq{"status": vals})
	}
	return s.listQueue(ctx, b)
}

// EligibleCandidates returns pending and failed items that are not held by
// an unresolved conflict, oldest first. Callers apply the retry policy.
func (s *Store) EligibleCandidates(ctx context.Context) ([]model.QueueItem, error) {
	b := sqlb.Select(queueColumns...).
		From("sync_queue").
		Where(sq.Eq{"status": []string{string(model.QueueStatusPending), string(model.QueueStatusFailed)}}).
		Where("id NOT IN (SELECT queue_item_id FROM sync_conflicts WHERE resolved_at IS NULL)").
		OrderBy("created_at ASC", "id ASC")
	return s.listQueue(ctx, b)
}

// ListByEntityID returns every queue item recorded for a local entity.
func (s *Store) ListByEntityID(ctx context.Context, entityID string) ([]model.QueueItem, error) {
	return s.listQueue(ctx, sqlb.Select(queueColumns...).
		From("sync_queue").
		Where(sq.Eq{"entity_id": entityID}).
		OrderBy("id ASC"))
}

func (s *Store) listQueue(ctx context.Context, b sq.SelectBuilder) ([]model.QueueItem, error) {
	rows, err := queryRows(ctx, s.db, b)
	if err != nil {
		return nil, fmt.Errorf("query queue: %w", err)
	}
	defer rows.Close()

	items := []model.QueueItem{}
	for rows.Next() {
		item, err := scanQueueItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate queue: %w", err)
	}
	return items, nil
}

// MarkSyncing moves an item to syncing.
func (s *Store) MarkSyncing(ctx context.Context, id int64) error {
	return s.updateQueue(ctx, id, "mark syncing", sq.Eq{"status": string(model.QueueStatusSyncing)})
}

// MarkCompleted moves an item to completed and clears its last error.
func (s *Store) MarkCompleted(ctx context.Context, id int64) error {
	return s.updateQueue(ctx, id, "mark completed", sq.Eq{
		"status":     string(model.QueueStatusCompleted),
		"last_error": nil,
	})
}

// MarkFailed moves an item to failed, increments retries by exactly one and
// records errMsg.
func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	return s.updateQueue(ctx, id, "mark failed", sq.Eq{
		"status":     string(model.QueueStatusFailed),
		"retries":    sq.Expr("retries + 1"),
		"last_error": errMsg,
	})
}

// MarkDead moves an item to failed with its retry budget exhausted so that
// no automatic retry picks it up again.
func (s *Store) MarkDead(ctx context.Context, id int64, errMsg string, maxRetries int) error {
	return s.updateQueue(ctx, id, "mark dead", sq.Eq{
		"status":     string(model.QueueStatusFailed),
		"retries":    sq.Expr("MAX(retries, ?)", maxRetries),
		"last_error": errMsg,
	})
}

// DeferToPending returns an item to pending with errMsg recorded and its
// retry count unchanged. Used when a dependency is not yet available.
func (s *Store) DeferToPending(ctx context.Context, id int64, errMsg string) error {
	return s.updateQueue(ctx, id, "defer", sq.Eq{
		"status":     string(model.QueueStatusPending),
		"last_error": errMsg,
	})
}

// ResetToPending returns an item to pending with retries zeroed and its last
// error cleared.
func (s *Store) ResetToPending(ctx context.Context, id int64) error {
	return s.updateQueue(ctx, id, "reset to pending", sq.Eq{
		"status":     string(model.QueueStatusPending),
		"retries":    0,
		"last_error": nil,
	})
}

func (s *Store) updateQueue(ctx context.Context, id int64, op string, set sq.Eq) error {
	b := sqlb.Update("sync_queue").
		SetMap(set).
		Set("updated_at", s.now()).
		Where(sq.Eq{"id": id})
	if err := execOne(ctx, s.db, b); err != nil {
		return fmt.Errorf("%s %d: %w", op, id, err)
	}
	return nil
}

// ResetFailed returns every failed item to pending with retries zeroed.
// Returns the number of items reset.
func (s *Store) ResetFailed(ctx context.Context) (int64, error) {
	res, err := exec(ctx, s.db, sqlb.Update("sync_queue").
		Set("status", string(model.QueueStatusPending)).
		Set("retries", 0).
		Set("last_error", nil).
		Set("updated_at", s.now()).
		Where(sq.Eq{"status": string(model.QueueStatusFailed)}))
	if err != nil {
		return 0, fmt.Errorf("reset failed: %w", err)
	}
	return res.RowsAffected()
}

// ResetOrphans returns items left in syncing by an interrupted pass to
// pending. Returns the number of items reset.
func (s *Store) ResetOrphans(ctx context.Context) (int64, error) {
	res, err := exec(ctx, s.db, sqlb.Update("sync_queue").
		Set("status", string(model.QueueStatusPending)).
		Set("updated_at", s.now()).
		Where(sq.Eq{"status": string(model.QueueStatusSyncing)}))
	if err != nil {
		return 0, fmt.Errorf("reset orphans: %w", err)
	}
	return res.RowsAffected()
}

// DeleteQueueItem removes an item regardless of status.
func (s *Store) DeleteQueueItem(ctx context.Context, id int64) error {
	if err := execOne(ctx, s.db, sqlb.Delete("sync_queue").Where(sq.Eq{"id": id})); err != nil {
		return fmt.Errorf("delete queue item %d: %w", id, err)
	}
	return nil
}

// PurgeCompleted deletes completed items last updated before cutoff.
// Returns the number of items deleted.
func (s *Store) PurgeCompleted(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := exec(ctx, s.db, sqlb.Delete("sync_queue").
		Where(sq.Eq{"status": string(model.QueueStatusCompleted)}).
		Where(sq.Lt{"updated_at": toMillis(cutoff)}))
	if err != nil {
		return 0, fmt.Errorf("purge completed: %w", err)
	}
	return res.RowsAffected()
}

// QueueCounts returns the number of items per status.
func (s *Store) QueueCounts(ctx context.Context) (model.QueueCounts, error) {
	var counts model.QueueCounts

	rows, err := queryRows(ctx, s.db, sqlb.Select("status", "COUNT(*)").
		From("sync_queue").
		GroupBy("status"))
	if err != nil {
		return counts, fmt.Errorf("queue counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return counts, fmt.Errorf("scan queue counts: %w", err)
		}
		switch model.QueueStatus(status) {
		case model.QueueStatusPending:
			counts.Pending = n
		case model.QueueStatusSyncing:
			counts.Syncing = n
		case model.QueueStatusFailed:
			counts.Failed = n
		case model.QueueStatusCompleted:
			counts.Completed = n
		}
		counts.Total += n
	}
	if err := rows.Err(); err != nil {
		return counts, fmt.Errorf("iterate queue counts: %w", err)
	}
	return counts, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanQueueRow(row *sql.Row, err error) (*model.QueueItem, error) {
	if err != nil {
		return nil, err
	}
	item, err := scanQueueItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return item, err
}

func scanQueueItem(r rowScanner) (*model.QueueItem, error) {
	var (
		item               model.QueueItem
		entity, action     string
		status, payload    string
		createdAt, updated int64
		lastError          sql.NullString
	)
	err := r.Scan(&item.ID, &entity, &action, &item.EntityID, &payload, &item.PayloadHash,
		&createdAt, &updated, &status, &item.Retries, &lastError)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan queue item: %w", err)
	}

	item.Entity = model.EntityType(entity)
	item.Action = model.Action(action)
	item.Status = model.QueueStatus(status)
	item.Payload = json.RawMessage(payload)
	item.CreatedAt = fromMillis(createdAt)
	item.UpdatedAt = fromMillis(updated)
	item.LastError = lastError.String
	return &item, nil
}
