package conflict

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/store"
)

// ErrAlreadyResolved is returned when resolving a conflict twice.
var ErrAlreadyResolved = errors.New("conflict already resolved")

// Store is the persistence the service needs.
type Store interface {
	InsertConflict(ctx context.Context, c *model.Conflict) error
	GetConflict(ctx context.Context, id string) (*model.Conflict, error)
	ListPendingConflicts(ctx context.Context) ([]model.Conflict, error)
	MarkConflictResolved(ctx context.Context, id string, r model.Resolution, at time.Time) error
	DeleteConflict(ctx context.Context, id string) error
	ResetToPending(ctx context.Context, id int64) error
	DeleteQueueItem(ctx context.Context, id int64) error
}

// Service persists detected conflicts and applies resolutions.
type Service struct {
	store Store
	ids   model.IDGenerator
	clock model.Clock
	log   zerolog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithIDGenerator sets the conflict id generator.
func WithIDGenerator(g model.IDGenerator) Option {
	return func(s *Service) { s.ids = g }
}

// WithClock sets the clock used for detection and resolution times.
func WithClock(c model.Clock) Option {
	return func(s *Service) { s.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates a conflict service over st.
func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		store: st,
		ids:   model.UUIDv7Generator{},
		clock: model.SystemClock{},
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Record classifies err for item and persists a conflict when it is one.
// Returns nil, nil for plain failures.
func (s *Service) Record(ctx context.Context, item *model.QueueItem, err error, serverData json.RawMessage) (*model.Conflict, error) {
	c := Detect(item, err, serverData, s.ids, s.clock)
	if c == nil {
		return nil, nil
	}
	if err := s.store.InsertConflict(ctx, c); err != nil {
		return nil, fmt.Errorf("record conflict for item %d: %w", item.ID, err)
	}
	s.log.Warn().
		Str("conflict_id", c.ID).
		Int64("queue_item_id", item.ID).
		Str("entity", string(item.Entity)).
		Str("entity_id", item.EntityID).
		Str("type", string(c.ConflictType)).
		Msg("sync conflict detected")
	return c, nil
}

// Pending returns unresolved conflicts.
func (s *Service) Pending(ctx context.Context) ([]model.Conflict, error) {
	return s.store.ListPendingConflicts(ctx)
}

// Resolve applies r to the conflict's queue item and stamps the conflict
// resolved.
//
//	keep_local, merge  -> item back to pending with retries 0
//	keep_server, skip  -> item deleted
//
// merge has no field-level strategy and behaves as keep_local.
func (s *Service) Resolve(ctx context.Context, id string, r model.Resolution) (*model.Conflict, error) {
	if _, err := model.ParseResolution(string(r)); err != nil {
		return nil, err
	}

	c, err := s.store.GetConflict(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.IsResolved() {
		return nil, fmt.Errorf("resolve conflict %s: %w", id, ErrAlreadyResolved)
	}

	switch r {
	case model.ResolutionKeepLocal, model.ResolutionMerge:
		err = s.store.ResetToPending(ctx, c.QueueItemID)
	case model.ResolutionKeepServer, model.ResolutionSkip:
		err = s.store.DeleteQueueItem(ctx, c.QueueItemID)
	}
	if errors.Is(err, store.ErrNotFound) {
		s.log.Warn().Str("conflict_id", id).Int64("queue_item_id", c.QueueItemID).
			Msg("queue item of conflict no longer exists")
		err = nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve conflict %s: %w", id, err)
	}

	now := s.clock.Now()
	if err := s.store.MarkConflictResolved(ctx, id, r, now); err != nil {
		return nil, err
	}
	c.ResolvedAt = &now
	c.Resolution = r

	s.log.Info().Str("conflict_id", id).Str("resolution", string(r)).Msg("conflict resolved")
	return c, nil
}

// Dismiss deletes a conflict without touching its queue item. A failed item
// released this way becomes subject to the normal retry policy again.
func (s *Service) Dismiss(ctx context.Context, id string) error {
	return s.store.DeleteConflict(ctx, id)
}
