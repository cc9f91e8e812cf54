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

var conflictColumns = []string{
	"id", "queue_item_id", "entity_type", "entity_id", "local_data", "server_data",
	"conflict_type", "message", "detected_at", "resolved_at", "resolution",
}

// InsertConflict persists a detected conflict.
func (s *Store) InsertConflict(ctx context.Context, c *model.Conflict) error {
	_, err := exec(ctx, s.db, sqlb.Insert("sync_conflicts").
		Columns(conflictColumns...).
		Values(c.ID, c.QueueItemID, string(c.EntityType), c.EntityID,
			nullRaw(c.LocalData), nullRaw(c.ServerData), string(c.ConflictType), nullString(c.Message),
			toMillis(c.DetectedAt), nullMillis(c.ResolvedAt), nullString(string(c.Resolution))))
	if err != nil {
		return fmt.Errorf("insert conflict: %w", err)
	}
	return nil
}

// GetConflict returns the conflict with the given id.
func (s *Store) GetConflict(ctx context.Context, id string) (*model.Conflict, error) {
	row, err := queryRow(ctx, s.db, sqlb.Select(conflictColumns...).
		From("sync_conflicts").
		Where(sq.Eq{"id": id}))
	if err != nil {
		return nil, fmt.Errorf("get conflict %s: %w", id, err)
	}
	c, err := scanConflict(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get conflict %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get conflict %s: %w", id, err)
	}
	return c, nil
}

// ListPendingConflicts returns unresolved conflicts, oldest first.
func (s *Store) ListPendingConflicts(ctx context.Context) ([]model.Conflict, error) {
	rows, err := queryRows(ctx, s.db, sqlb.Select(conflictColumns...).
		From("sync_conflicts").
		Where(sq.Eq{"resolved_at": nil}).
		OrderBy("detected_at ASC", "id ASC"))
	if err != nil {
		return nil, fmt.Errorf("query conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := []model.Conflict{}
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conflict: %w", err)
		}
		conflicts = append(conflicts, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conflicts: %w", err)
	}
	return conflicts, nil
}

// MarkConflictResolved stamps a conflict with its resolution.
func (s *Store) MarkConflictResolved(ctx context.Context, id string, resolution model.Resolution, at time.Time) error {
	err := execOne(ctx, s.db, sqlb.Update("sync_conflicts").
		Set("resolved_at", toMillis(at)).
		Set("resolution", string(resolution)).
		Where(sq.Eq{"id": id}))
	if err != nil {
		return fmt.Errorf("resolve conflict %s: %w", id, err)
	}
	return nil
}

// DeleteConflict removes a conflict record.
func (s *Store) DeleteConflict(ctx context.Context, id string) error {
	if err := execOne(ctx, s.db, sqlb.Delete("sync_conflicts").Where(sq.Eq{"id": id})); err != nil {
		return fmt.Errorf("delete conflict %s: %w", id, err)
	}
	return nil
}

func scanConflict(r rowScanner) (*model.Conflict, error) {
	var (
		c                          model.Conflict
		entityType, conflictType   string
		localData, serverData, msg sql.NullString
		resolution                 sql.NullString
		detectedAt                 int64
		resolvedAt                 sql.NullInt64
	)
	err := r.Scan(&c.ID, &c.QueueItemID, &entityType, &c.EntityID, &localData, &serverData,
		&conflictType, &msg, &detectedAt, &resolvedAt, &resolution)
	if err != nil {
		return nil, err
	}
	c.EntityType = model.EntityType(entityType)
	c.ConflictType = model.ConflictType(conflictType)
	if localData.Valid {
		c.LocalData = json.RawMessage(localData.String)
	}
	if serverData.Valid {
		c.ServerData = json.RawMessage(serverData.String)
	}
	c.Message = msg.String
	c.DetectedAt = fromMillis(detectedAt)
	c.ResolvedAt = fromNullMillis(resolvedAt)
	c.Resolution = model.Resolution(resolution.String)
	return &c, nil
}

func nullRaw(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 {
		return sql.NullString{}
	}
	return sql.NullString{String: string(raw), Valid: true}
}
