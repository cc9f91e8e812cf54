// Package refcache refreshes the read-only reference caches (customers,
// promotions, stock levels) from the remote catalog.
//
// Without a watermark, or in full mode, a syncer pulls every active row,
// upserts it, and deletes cached rows missing from the pull. With a
// watermark it pulls rows updated since the last sync, upserts them, then
// asks the remote which rows were deactivated or removed since and evicts
// them. Every sync rewrites the entity's SyncMetadata with the newest remote
// update it has observed and the number of rows cached afterwards. The
// watermark is taken from remote timestamps so client clock drift cannot
// skip rows; an empty pull keeps the previous watermark, and the local start
// time is used only when nothing has ever been observed.
package refcache

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/logging"
	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/store"
)

// Mode selects how a syncer decides between a full and a delta pull.
type Mode string

const (
	// ModeAuto pulls deltas when a watermark exists, everything otherwise.
	ModeAuto Mode = "auto"
	// ModeFull always pulls everything and reconciles deletions.
	ModeFull Mode = "full"
)

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeAuto, ModeFull:
		return m, nil
	case "":
		return ModeAuto, nil
	}
	return "", fmt.Errorf("unknown refresh mode %q: must be auto or full", s)
}

// Store is the cache persistence the syncers need.
type Store interface {
	UpsertCustomers(ctx context.Context, customers []model.Customer) error
	UpsertPromotions(ctx context.Context, promos []model.Promotion) error
	DeleteExpiredPromotions(ctx context.Context, now time.Time) (int64, error)
	UpsertStockLevels(ctx context.Context, levels []model.StockLevel) error
	DeleteStockLevels(ctx context.Context, keys []model.StockLevel) (int64, error)
	DeleteStockLevelsNotIn(ctx context.Context, keep []model.StockLevel) (int64, error)
	DeleteByIDs(ctx context.Context, entity model.ReferenceEntity, ids []string) (int64, error)
	DeleteNotIn(ctx context.Context, entity model.ReferenceEntity, keep []string) (int64, error)
	CountRows(ctx context.Context, entity model.ReferenceEntity) (int, error)
	GetSyncMetadata(ctx context.Context, entity model.ReferenceEntity) (*model.SyncMetadata, error)
	PutSyncMetadata(ctx context.Context, md model.SyncMetadata) error
}

// Syncer refreshes one reference cache. Sync returns the number of rows
// cached after the sync.
type Syncer interface {
	Entity() model.ReferenceEntity
	Sync(ctx context.Context, mode Mode) (int, error)
}

// base carries what every syncer shares.
type base struct {
	store Store
	clock model.Clock
	log   zerolog.Logger
}

// watermark returns the last sync time, or nil when a full pull is due.
func (b *base) watermark(ctx context.Context, entity model.ReferenceEntity, mode Mode) (*time.Time, error) {
	if mode == ModeFull {
		return nil, nil
	}
	md, err := b.store.GetSyncMetadata(ctx, entity)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read %s watermark", entity)
	}
	since := md.LastSyncAt
	return &since, nil
}

// latest returns the newest updatedAt among rows, or the zero time.
func latest[T any](rows []T, updatedAt func(*T) time.Time) time.Time {
	var newest time.Time
	for i := range rows {
		if at := updatedAt(&rows[i]); at.After(newest) {
			newest = at
		}
	}
	return newest
}

// nextWatermark picks the watermark to persist after a pull.
func nextWatermark(since *time.Time, observed, started time.Time) time.Time {
	mark := observed
	if since != nil && since.After(mark) {
		mark = *since
	}
	if mark.IsZero() {
		mark = started
	}
	return mark
}

// finish counts the cache and writes its metadata.
func (b *base) finish(ctx context.Context, entity model.ReferenceEntity, started time.Time, since *time.Time, observed time.Time, pulled int, evicted int64) (int, error) {
	n, err := b.store.CountRows(ctx, entity)
	if err != nil {
		return 0, errors.Wrapf(err, "count %s", entity)
	}
	mark := nextWatermark(since, observed, started)
	if err := b.store.PutSyncMetadata(ctx, model.SyncMetadata{
		Entity:      entity,
		LastSyncAt:  mark,
		RecordCount: n,
	}); err != nil {
		return 0, err
	}
	b.log.Info().
		Str("entity", string(entity)).
		Bool("full", since == nil).
		Int("pulled", pulled).
		Int64("evicted", evicted).
		Int("cached", n).
		Time("watermark", mark).
		Msg("reference cache synced")
	return n, nil
}

func newBase(st Store, clock model.Clock, log zerolog.Logger, entity model.ReferenceEntity) base {
	return base{store: st, clock: clock, log: logging.Component(log, "refcache").With().Str("cache", string(entity)).Logger()}
}
