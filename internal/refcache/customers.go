package refcache

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
)

// CustomerSyncer refreshes the customer cache.
type CustomerSyncer struct {
	base
	remote remote.Catalog
}

// NewCustomerSyncer creates a CustomerSyncer.
func NewCustomerSyncer(st Store, cat remote.Catalog, clock model.Clock, log zerolog.Logger) *CustomerSyncer {
	return &CustomerSyncer{base: newBase(st, clock, log, model.RefCustomers), remote: cat}
}

// Entity implements Syncer.
func (s *CustomerSyncer) Entity() model.ReferenceEntity { return model.RefCustomers }

// Sync implements Syncer.
func (s *CustomerSyncer) Sync(ctx context.Context, mode Mode) (int, error) {
	started := s.clock.Now()
	since, err := s.watermark(ctx, model.RefCustomers, mode)
	if err != nil {
		return 0, err
	}

	customers, err := s.remote.FetchCustomers(ctx, since)
	if err != nil {
		return 0, errors.Wrap(err, "fetch customers")
	}
	if err := s.store.UpsertCustomers(ctx, customers); err != nil {
		return 0, err
	}

	var evicted int64
	if since == nil {
		keep := make([]string, len(customers))
		for i := range customers {
			keep[i] = customers[i].ID
		}
		evicted, err = s.store.DeleteNotIn(ctx, model.RefCustomers, keep)
	} else {
		var gone []string
		gone, err = s.remote.FetchInactiveCustomerIDs(ctx, *since)
		if err != nil {
			return 0, errors.Wrap(err, "fetch inactive customers")
		}
		evicted, err = s.store.DeleteByIDs(ctx, model.RefCustomers, gone)
	}
	if err != nil {
		return 0, err
	}

	observed := latest(customers, func(r *model.Customer) time.Time { return r.UpdatedAt })
	return s.finish(ctx, model.RefCustomers, started, since, observed, len(customers), evicted)
}
