package refcache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
)

// PromotionSyncer refreshes the promotion cache. Besides remote
// deactivations it evicts promotions whose validity window has lapsed;
// targets and free-product grants go with them.
type PromotionSyncer struct {
	base
	remote remote.Catalog
}

// NewPromotionSyncer creates a PromotionSyncer.
func NewPromotionSyncer(st Store, cat remote.Catalog, clock model.Clock, log zerolog.Logger) *PromotionSyncer {
	return &PromotionSyncer{base: newBase(st, clock, log, model.RefPromotions), remote: cat}
}

// Entity implements Syncer.
func (s *PromotionSyncer) Entity() model.ReferenceEntity { return model.RefPromotions }

// Sync implements Syncer.
func (s *PromotionSyncer) Sync(ctx context.Context, mode Mode) (int, error) {
	started := s.clock.Now()
	since, err := s.watermark(ctx, model.RefPromotions, mode)
	if err != nil {
		return 0, err
	}

	promos, err := s.remote.FetchPromotions(ctx, since)
	if err != nil {
		return 0, errors.Wrap(err, "fetch promotions")
	}
	if err := s.store.UpsertPromotions(ctx, promos); err != nil {
		return 0, err
	}

	var evicted int64
	if since == nil {
		keep := make([]string, len(promos))
		for i := range promos {
			keep[i] = promos[i].ID
		}
		evicted, err = s.store.DeleteNotIn(ctx, model.RefPromotions, keep)
	} else {
		var gone []string
		gone, err = s.remote.FetchInactivePromotionIDs(ctx, *since)
		if err != nil {
			return 0, errors.Wrap(err, "fetch inactive promotions")
		}
		evicted, err = s.store.DeleteByIDs(ctx, model.RefPromotions, gone)
	}
	if err != nil {
		return 0, err
	}

	expired, err := s.store.DeleteExpiredPromotions(ctx, started)
	if err != nil {
		return 0, err
	}

	observed := latest(promos, func(r *model.Promotion) time.Time { return r.UpdatedAt })
	return s.finish(ctx, model.RefPromotions, started, since, observed, len(promos), evicted+expired)
}
