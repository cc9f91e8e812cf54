package refcache

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/logging"
	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
)

// Report is the outcome of refreshing one cache.
type Report struct {
	Entity model.ReferenceEntity `json:"entity"`
	Count  int                   `json:"count"`
	Err    error                 `json:"-"`
	Error  string                `json:"error,omitempty"`
}

// Refresher runs the syncers of every reference cache.
type Refresher struct {
	syncers map[model.ReferenceEntity]Syncer
	order   []model.ReferenceEntity
	log     zerolog.Logger
}

// Option configures the syncers built by NewRefresher.
type Option func(*options)

type options struct {
	clock model.Clock
	log   zerolog.Logger
}

// WithClock sets the clock that stamps watermarks and expires promotions.
func WithClock(c model.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// NewRefresher creates the customer, promotion and stock syncers.
func NewRefresher(st Store, cat remote.Catalog, opts ...Option) *Refresher {
	o := options{clock: model.SystemClock{}, log: zerolog.Nop()}
	for _, opt := range opts {
		opt(&o)
	}
	return NewRefresherOf(o.log,
		NewCustomerSyncer(st, cat, o.clock, o.log),
		NewPromotionSyncer(st, cat, o.clock, o.log),
		NewStockSyncer(st, cat, o.clock, o.log),
	)
}

// NewRefresherOf creates a refresher over explicit syncers, run in the
// order given.
func NewRefresherOf(log zerolog.Logger, syncers ...Syncer) *Refresher {
	r := &Refresher{syncers: make(map[model.ReferenceEntity]Syncer, len(syncers)), log: logging.Component(log, "refcache")}
	for _, s := range syncers {
		r.syncers[s.Entity()] = s
		r.order = append(r.order, s.Entity())
	}
	return r
}

// Refresh syncs the named caches, or all of them. A failing cache does not
// stop the others; failures are reported per cache and joined into the
// returned error.
func (r *Refresher) Refresh(ctx context.Context, mode Mode, entities ...model.ReferenceEntity) ([]Report, error) {
	if len(entities) == 0 {
		entities = r.order
	}
	for _, e := range entities {
		if _, ok := r.syncers[e]; !ok {
			return nil, fmt.Errorf("unknown reference entity %q", e)
		}
	}

	reports := make([]Report, 0, len(entities))
	var errs []error
	for _, e := range entities {
		n, err := r.syncers[e].Sync(ctx, mode)
		rep := Report{Entity: e, Count: n, Err: err}
		if err != nil {
			err = fmt.Errorf("refresh %s: %w", e, err)
			rep.Error = err.Error()
			errs = append(errs, err)
			r.log.Warn().Err(err).Str("entity", string(e)).Msg("reference refresh failed")
		}
		reports = append(reports, rep)
	}
	return reports, errors.Join(errs...)
}
