package processor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
)

// EntityOrderItem labels order-line children. Items have no queue entries
// of their own.
const EntityOrderItem model.EntityType = "order_item"

// OrderProcessor submits orders together with their items and any payments
// still pending. Child failures are logged and reported in
// Result.Children; they never fail the order.
type OrderProcessor struct {
	store  Store
	remote remote.Writer
	log    zerolog.Logger
}

// NewOrderProcessor creates an OrderProcessor.
func NewOrderProcessor(st Store, w remote.Writer, log zerolog.Logger) *OrderProcessor {
	return &OrderProcessor{store: st, remote: w, log: log.With().Str("processor", "order").Logger()}
}

// Entity implements Processor.
func (p *OrderProcessor) Entity() model.EntityType { return model.EntityOrder }

// Process implements Processor.
func (p *OrderProcessor) Process(ctx context.Context, item *model.QueueItem, ids *IdentifierMap) Result {
	o, err := p.store.GetOrder(ctx, item.EntityID)
	if err != nil {
		return failed(loadErr("order", item.EntityID, err))
	}

	switch item.Action {
	case model.ActionCreate:
		return p.create(ctx, o, ids)
	case model.ActionUpdate:
		return p.update(ctx, o)
	}
	return unknownAction(item)
}

func (p *OrderProcessor) create(ctx context.Context, o *model.Order, ids *IdentifierMap) Result {
	if o.ServerID != "" {
		ids.Put(model.EntityOrder, o.ID, o.ServerID)
		return succeeded(o.ServerID)
	}

	sessionID, ok, err := resolveRef(ctx, o.SessionID, model.EntitySession, ids, p.sessionServerID)
	if err != nil {
		return failed(err)
	}
	rec := orderRecord(o)
	if ok {
		rec.SessionID = &sessionID
	} else {
		// Submitted without a session reference; the remote row can be
		// reattached later.
		p.log.Warn().Str("order_id", o.ID).Str("session_id", o.SessionID).
			Msg("session not resolved, submitting order without session")
	}

	serverID, err := p.remote.InsertOrder(ctx, rec)
	if err != nil {
		return failed(NewRemoteError("insert order", o.ID, err))
	}
	ids.Put(model.EntityOrder, o.ID, serverID)

	persistedSession := o.SessionID
	if ok {
		persistedSession = sessionID
	}
	if err := p.store.MarkOrderSynced(ctx, o.ID, serverID, persistedSession); err != nil {
		p.log.Error().Err(err).Str("order_id", o.ID).Str("server_id", serverID).
			Msg("order inserted remotely but not marked synced")
		return failed(err)
	}

	children := p.submitItems(ctx, o, serverID)
	children = append(children, p.submitPayments(ctx, o, serverID, ids)...)

	res := succeeded(serverID, children...)
	p.log.Debug().Str("order_id", o.ID).Str("server_id", serverID).
		Int("children", len(children)).Int("child_failures", res.ChildFailures()).
		Msg("order synced")
	return res
}

func (p *OrderProcessor) submitItems(ctx context.Context, o *model.Order, orderServerID string) []ChildResult {
	results := make([]ChildResult, 0, len(o.Items))
	for _, it := range o.Items {
		cr := ChildResult{Entity: EntityOrderItem, LocalID: it.ID}
		cr.ServerID, cr.Err = p.remote.InsertOrderItem(ctx, remote.OrderItemRecord{
			LocalID:     it.ID,
			OrderID:     orderServerID,
			ProductID:   it.ProductID,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Discount:    it.Discount,
			Total:       it.Total,
			PromotionID: it.PromotionID,
		})
		if cr.Err != nil {
			p.log.Warn().Err(cr.Err).Str("order_id", o.ID).Str("item_id", it.ID).Msg("order item not synced")
		}
		results = append(results, cr)
	}
	return results
}

func (p *OrderProcessor) submitPayments(ctx context.Context, o *model.Order, orderServerID string, ids *IdentifierMap) []ChildResult {
	payments, err := p.store.ListPaymentsByOrder(ctx, o.ID)
	if err != nil {
		p.log.Warn().Err(err).Str("order_id", o.ID).Msg("payments not loaded, left to their own queue items")
		return nil
	}

	var results []ChildResult
	for i := range payments {
		pay := &payments[i]
		if pay.IsSynced() {
			continue
		}
		cr := ChildResult{Entity: model.EntityPayment, LocalID: pay.ID}
		cr.ServerID, cr.Err = p.remote.InsertPayment(ctx, paymentRecord(pay, orderServerID))
		if cr.Err == nil {
			ids.Put(model.EntityPayment, pay.ID, cr.ServerID)
			cr.Err = p.store.MarkPaymentSynced(ctx, pay.ID, cr.ServerID, orderServerID)
		}
		if cr.Err != nil {
			p.log.Warn().Err(cr.Err).Str("order_id", o.ID).Str("payment_id", pay.ID).Msg("payment not synced with order")
		}
		results = append(results, cr)
	}
	return results
}

func (p *OrderProcessor) update(ctx context.Context, o *model.Order) Result {
	if o.ServerID == "" {
		return failed(NewUnresolvedError("order", o.ID))
	}
	if err := p.remote.UpdateOrder(ctx, o.ServerID, orderRecord(o)); err != nil {
		return failed(NewRemoteError("update order", o.ID, err))
	}
	return succeeded(o.ServerID)
}

func (p *OrderProcessor) sessionServerID(ctx context.Context, id string) (string, error) {
	sess, err := p.store.GetSession(ctx, id)
	if err != nil {
		return "", err
	}
	return sess.ServerID, nil
}

func orderRecord(o *model.Order) remote.OrderRecord {
	return remote.OrderRecord{
		LocalID:    o.ID,
		CustomerID: o.CustomerID,
		Number:     o.Number,
		Status:     o.Status,
		Subtotal:   o.Subtotal,
		Discount:   o.Discount,
		Tax:        o.Tax,
		Total:      o.Total,
		CreatedAt:  o.CreatedAt,
	}
}
