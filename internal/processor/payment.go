package processor

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
)

// PaymentProcessor submits payments whose order already has a remote id.
// A payment already submitted with its order succeeds without a remote
// call.
type PaymentProcessor struct {
	store  Store
	remote remote.Writer
	log    zerolog.Logger
}

// NewPaymentProcessor creates a PaymentProcessor.
func NewPaymentProcessor(st Store, w remote.Writer, log zerolog.Logger) *PaymentProcessor {
	return &PaymentProcessor{store: st, remote: w, log: log.With().Str("processor", "payment").Logger()}
}

// Entity implements Processor.
func (p *PaymentProcessor) Entity() model.EntityType { return model.EntityPayment }

// Process implements Processor. Payments are immutable once recorded, so
// update items are handled like creates.
func (p *PaymentProcessor) Process(ctx context.Context, item *model.QueueItem, ids *IdentifierMap) Result {
	if !item.Action.Valid() {
		return unknownAction(item)
	}

	pay, err := p.store.GetPayment(ctx, item.EntityID)
	if err != nil {
		return failed(loadErr("payment", item.EntityID, err))
	}
	if pay.IsSynced() {
		ids.Put(model.EntityPayment, pay.ID, pay.ServerID)
		return succeeded(pay.ServerID)
	}

	orderID, ok, err := resolveRef(ctx, pay.OrderID, model.EntityOrder, ids, p.orderServerID)
	if err != nil {
		return failed(err)
	}
	if !ok {
		return failed(NewUnresolvedError("order", pay.ID))
	}

	serverID, err := p.remote.InsertPayment(ctx, paymentRecord(pay, orderID))
	if err != nil {
		return failed(NewRemoteError("insert payment", pay.ID, err))
	}
	ids.Put(model.EntityPayment, pay.ID, serverID)

	if err := p.store.MarkPaymentSynced(ctx, pay.ID, serverID, orderID); err != nil {
		p.log.Error().Err(err).Str("payment_id", pay.ID).Str("server_id", serverID).
			Msg("payment inserted remotely but not marked synced")
		return failed(err)
	}
	return succeeded(serverID)
}

func (p *PaymentProcessor) orderServerID(ctx context.Context, id string) (string, error) {
	o, err := p.store.GetOrder(ctx, id)
	if err != nil {
		return "", err
	}
	return o.ServerID, nil
}

func paymentRecord(pay *model.Payment, orderServerID string) remote.PaymentRecord {
	return remote.PaymentRecord{
		LocalID:   pay.ID,
		OrderID:   orderServerID,
		Method:    pay.Method,
		Amount:    pay.Amount,
		Reference: pay.Reference,
		CreatedAt: pay.CreatedAt,
	}
}
