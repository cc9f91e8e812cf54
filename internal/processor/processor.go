// Package processor submits queued mutations of one entity type to the
// remote system, resolving local foreign keys through a pass-scoped
// IdentifierMap and writing remote identifiers back to the local store.
//
// Processors never return errors past their boundary: every outcome is a
// Result the orchestrator maps onto queue state.
package processor

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
	"github.com/roach88/possync/internal/store"
)

// Store is the local persistence the processors read and write back to.
type Store interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
	MarkSessionSynced(ctx context.Context, id, serverID string) error
	GetOrder(ctx context.Context, id string) (*model.Order, error)
	MarkOrderSynced(ctx context.Context, id, serverID, sessionID string) error
	GetPayment(ctx context.Context, id string) (*model.Payment, error)
	ListPaymentsByOrder(ctx context.Context, orderID string) ([]model.Payment, error)
	MarkPaymentSynced(ctx context.Context, id, serverID, orderID string) error
}

// Processor handles queue items of one entity type.
type Processor interface {
	Entity() model.EntityType
	Process(ctx context.Context, item *model.QueueItem, ids *IdentifierMap) Result
}

// Registry dispatches queue items to the processor for their entity.
type Registry struct {
	byEntity map[model.EntityType]Processor
}

// NewRegistry creates the session, order and payment processors.
func NewRegistry(st Store, w remote.Writer, log zerolog.Logger) *Registry {
	return NewRegistryOf(
		NewSessionProcessor(st, w, log),
		NewOrderProcessor(st, w, log),
		NewPaymentProcessor(st, w, log),
	)
}

// NewRegistryOf creates a registry from explicit processors.
func NewRegistryOf(procs ...Processor) *Registry {
	r := &Registry{byEntity: make(map[model.EntityType]Processor, len(procs))}
	for _, p := range procs {
		r.byEntity[p.Entity()] = p
	}
	return r
}

// Process runs item through its entity's processor. Items of an entity with
// no processor fail as invalid.
func (r *Registry) Process(ctx context.Context, item *model.QueueItem, ids *IdentifierMap) Result {
	p, ok := r.byEntity[item.Entity]
	if !ok {
		return failed(NewInvalidPayloadError(item.EntityID, "no processor for entity "+string(item.Entity)))
	}
	return p.Process(ctx, item, ids)
}

// loadErr maps a store read failure. Missing rows are terminal; anything
// else is a local failure worth retrying.
func loadErr(entity, id string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return NewNotFoundError(entity, id)
	}
	return errors.Wrapf(err, "load %s %s", entity, id)
}

func unknownAction(item *model.QueueItem) Result {
	return failed(NewInvalidPayloadError(item.EntityID, "unknown action "+string(item.Action)))
}

// resolveRef returns the remote id for ref: ref itself when it is already
// remote, the in-pass mapping, or the parent's persisted server id.
func resolveRef(ctx context.Context, ref string, entity model.EntityType, ids *IdentifierMap,
	persisted func(ctx context.Context, id string) (string, error)) (string, bool, error) {
	if ref == "" {
		return "", false, nil
	}
	if !model.IsLocalID(ref) {
		return ref, true, nil
	}
	if id, ok := ids.Lookup(entity, ref); ok {
		return id, true, nil
	}
	id, err := persisted(ctx, ref)
	if errors.Is(err, store.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, id != "", nil
}
