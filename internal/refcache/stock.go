package refcache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
)

// StockSyncer refreshes the stock level cache, keyed by product and
// location.
type StockSyncer struct {
	base
	remote remote.Catalog
}

// NewStockSyncer creates a StockSyncer.
func NewStockSyncer(st Store, cat remote.Catalog, clock model.Clock, log zerolog.Logger) *StockSyncer {
	return &StockSyncer{base: newBase(st, clock, log, model.RefStock), remote: cat}
}

// Entity implements Syncer.
func (s *StockSyncer) Entity() model.ReferenceEntity { return model.RefStock }

// Sync implements Syncer.
func (s *StockSyncer) Sync(ctx context.Context, mode Mode) (int, error) {
	started := s.clock.Now()
	since, err := s.watermark(ctx, model.RefStock, mode)
	if err != nil {
		return 0, err
	}

	levels, err := s.remote.FetchStockLevels(ctx, since)
	if err != nil {
		return 0, errors.Wrap(err, "fetch stock levels")
	}
	if err := s.store.UpsertStockLevels(ctx, levels); err != nil {
		return 0, err
	}

	var evicted int64
	if since == nil {
		evicted, err = s.store.DeleteStockLevelsNotIn(ctx, levels)
	} else {
		var removed []model.StockLevel
		removed, err = s.remote.FetchRemovedStockLevels(ctx, *since)
		if err != nil {
			return 0, errors.Wrap(err, "fetch removed stock levels")
		}
		evicted, err = s.store.DeleteStockLevels(ctx, removed)
	}
	if err != nil {
		return 0, err
	}

	observed := latest(levels, func(r *model.StockLevel) time.Time { return r.UpdatedAt })
	return s.finish(ctx, model.RefStock, started, since, observed, len(levels), evicted)
}
