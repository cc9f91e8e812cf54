package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/conflict"
	"github.com/roach88/possync/internal/logging"
	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/processor"
	"github.com/roach88/possync/internal/queue"
	"github.com/roach88/possync/internal/refcache"
	"github.com/roach88/possync/internal/remote"
	"github.com/roach88/possync/internal/store"
)

// Defaults for the background loop and housekeeping.
const (
	DefaultInterval  = 30 * time.Second
	DefaultDebounce  = 2 * time.Second
	DefaultRetention = 24 * time.Hour
)

// ErrNoRefresher is returned by RefreshReference when no reference cache
// refresher is configured.
var ErrNoRefresher = errors.New("reference refresh not configured")

// Refresher refreshes the reference-data caches.
type Refresher interface {
	Refresh(ctx context.Context, mode refcache.Mode, entities ...model.ReferenceEntity) ([]refcache.Report, error)
}

// Engine owns sync passes and their background scheduling. One per process.
//
// Thread-safety model:
//   - RunSyncPass: safe from any goroutine; concurrent calls are skipped
//   - Start/Stop: safe from any goroutine
//   - Everything else: safe from any goroutine (delegates to the store)
type Engine struct {
	store        *store.Store
	registry     *processor.Registry
	conflicts    *conflict.Service
	conflictOpts []conflict.Option
	refresher    Refresher
	pinger       remote.Pinger
	policy       queue.Policy
	clock        model.Clock
	log          zerolog.Logger
	seq          *Sequence
	state        *State

	interval      time.Duration
	debounce      time.Duration
	probeInterval time.Duration
	retention     time.Duration
	refreshOnPass bool

	// recovered is only touched by the goroutine holding the pass slot.
	recovered bool

	sched scheduler
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy sets the retry policy.
func WithPolicy(p queue.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithClock sets the clock used for retry eligibility, purge cutoffs and
// pass timestamps. Share it with the store in tests.
func WithClock(c model.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithIDGenerator sets the generator for conflict ids.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(e *Engine) { e.conflictOpts = append(e.conflictOpts, conflict.WithIDGenerator(g)) }
}

// WithRegistry replaces the processor registry.
func WithRegistry(r *processor.Registry) Option {
	return func(e *Engine) { e.registry = r }
}

// WithRefresher sets the reference cache refresher.
func WithRefresher(r Refresher) Option {
	return func(e *Engine) { e.refresher = r }
}

// WithRefreshOnPass refreshes reference data after every scheduled pass.
func WithRefreshOnPass(v bool) Option {
	return func(e *Engine) { e.refreshOnPass = v }
}

// WithInterval sets the background tick interval.
//
// Default: 30s (DefaultInterval)
func WithInterval(d time.Duration) Option {
	return func(e *Engine) { e.interval = d }
}

// WithDebounce sets the delay between coming back online and the
// reconnect pass.
//
// Default: 2s (DefaultDebounce)
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) { e.debounce = d }
}

// WithProbe pings p every interval while the background loop runs and
// feeds the outcome to NotifyConnectivity.
func WithProbe(p remote.Pinger, interval time.Duration) Option {
	return func(e *Engine) {
		e.pinger = p
		e.probeInterval = interval
	}
}

// WithRetention sets how long completed items are kept. Zero disables the
// purge at the end of each pass.
//
// Default: 24h (DefaultRetention)
func WithRetention(d time.Duration) Option {
	return func(e *Engine) { e.retention = d }
}

// WithAutoSync sets the initial auto-sync flag.
func WithAutoSync(v bool) Option {
	return func(e *Engine) { e.state.autoSync = v }
}

// New creates an Engine over the local store and the remote writer.
func New(st *store.Store, w remote.Writer, opts ...Option) *Engine {
	e := &Engine{
		store:     st,
		policy:    queue.DefaultPolicy(),
		clock:     model.SystemClock{},
		log:       zerolog.Nop(),
		seq:       NewSequence(),
		state:     newState(),
		interval:  DefaultInterval,
		debounce:  DefaultDebounce,
		retention: DefaultRetention,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.interval <= 0 {
		e.interval = DefaultInterval
	}
	e.log = logging.Component(e.log, "engine")
	if e.registry == nil {
		e.registry = processor.NewRegistry(st, w, e.log)
	}
	e.conflicts = conflict.NewService(st, append([]conflict.Option{
		conflict.WithClock(e.clock),
		conflict.WithLogger(e.log),
	}, e.conflictOpts...)...)
	return e
}

// State returns the engine state.
func (e *Engine) State() *State {
	return e.state
}

// Policy returns the retry policy in effect.
func (e *Engine) Policy() queue.Policy {
	return e.policy
}

// Enqueue records a local mutation for the next pass.
func (e *Engine) Enqueue(ctx context.Context, entity model.EntityType, action model.Action, entityID string, payload json.RawMessage) (*model.QueueItem, error) {
	return e.store.Enqueue(ctx, entity, action, entityID, payload)
}

// QueueCounts summarises the queue by status.
func (e *Engine) QueueCounts(ctx context.Context) (model.QueueCounts, error) {
	return e.store.QueueCounts(ctx)
}

// PendingConflicts returns unresolved conflicts, oldest first.
func (e *Engine) PendingConflicts(ctx context.Context) ([]model.Conflict, error) {
	return e.conflicts.Pending(ctx)
}

// ResolveConflict applies resolution to a pending conflict.
func (e *Engine) ResolveConflict(ctx context.Context, id string, resolution model.Resolution) (*model.Conflict, error) {
	return e.conflicts.Resolve(ctx, id, resolution)
}

// DismissConflict deletes a conflict and releases its item to the normal
// retry policy.
func (e *Engine) DismissConflict(ctx context.Context, id string) error {
	return e.conflicts.Dismiss(ctx, id)
}

// SetAutoSyncEnabled gates scheduled passes. Manual passes always run.
func (e *Engine) SetAutoSyncEnabled(enabled bool) {
	e.state.setAutoSync(enabled)
	e.log.Info().Bool("enabled", enabled).Msg("auto sync toggled")
}

// RetryFailed returns every failed item, dead ones included, to pending
// with retries zeroed.
func (e *Engine) RetryFailed(ctx context.Context) (int64, error) {
	n, err := e.store.ResetFailed(ctx)
	if err != nil {
		return 0, err
	}
	e.log.Info().Int64("items", n).Msg("failed items reset")
	return n, nil
}

// RetryItem returns one item to pending with retries zeroed.
func (e *Engine) RetryItem(ctx context.Context, id int64) error {
	item, err := e.store.GetQueueItem(ctx, id)
	if err != nil {
		return err
	}
	if item.Status != model.QueueStatusFailed {
		return fmt.Errorf("retry item %d: status is %s, not failed", id, item.Status)
	}
	return e.store.ResetToPending(ctx, id)
}

// PurgeCompleted deletes completed items last touched more than olderThan
// ago.
func (e *Engine) PurgeCompleted(ctx context.Context, olderThan time.Duration) (int64, error) {
	return e.store.PurgeCompleted(ctx, e.clock.Now().Add(-olderThan))
}

// RefreshReference refreshes the reference caches.
func (e *Engine) RefreshReference(ctx context.Context, mode refcache.Mode, entities ...model.ReferenceEntity) ([]refcache.Report, error) {
	if e.refresher == nil {
		return nil, ErrNoRefresher
	}
	return e.refresher.Refresh(ctx, mode, entities...)
}
