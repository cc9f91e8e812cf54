// Package remotetest provides an in-memory remote system for tests.
package remotetest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
)

// Operation names recorded in the call log.
const (
	OpInsertSession   = "InsertSession"
	OpUpdateSession   = "UpdateSession"
	OpInsertOrder     = "InsertOrder"
	OpUpdateOrder     = "UpdateOrder"
	OpInsertOrderItem = "InsertOrderItem"
	OpInsertPayment   = "InsertPayment"
	OpPing            = "Ping"
)

// ErrOffline is returned by every call while the fake is offline.
var ErrOffline = errors.New("remotetest: connection refused")

// Call is one recorded remote call.
type Call struct {
	Op       string
	Ref      string // local id or server id the call was about
	ServerID string // id returned by inserts
	Err      error
}

// Fake is an in-memory remote.Remote. Inserts return deterministic ids of
// the form srv-<kind>-<n>.
//
// Thread-safety: safe for concurrent use via internal mutex.
type Fake struct {
	mu       sync.Mutex
	calls    []Call
	failures map[string][]error
	offline  bool
	seq      map[string]int

	Sessions   map[string]remote.SessionRecord
	Orders     map[string]remote.OrderRecord
	OrderItems map[string]remote.OrderItemRecord
	Payments   map[string]remote.PaymentRecord

	customers  map[string]model.Customer
	promotions map[string]model.Promotion
	stock      map[string]stockRow
}

type stockRow struct {
	level     model.StockLevel
	deletedAt *time.Time
}

var _ remote.Remote = (*Fake)(nil)

// New creates an empty, online fake.
func New() *Fake {
	return &Fake{
		failures:   map[string][]error{},
		seq:        map[string]int{},
		Sessions:   map[string]remote.SessionRecord{},
		Orders:     map[string]remote.OrderRecord{},
		OrderItems: map[string]remote.OrderItemRecord{},
		Payments:   map[string]remote.PaymentRecord{},
		customers:  map[string]model.Customer{},
		promotions: map[string]model.Promotion{},
		stock:      map[string]stockRow{},
	}
}

// FailNext queues errors returned, in order, by the next calls to op.
func (f *Fake) FailNext(op string, errs ...error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[op] = append(f.failures[op], errs...)
}

// SetOffline makes every call fail with ErrOffline until cleared.
func (f *Fake) SetOffline(offline bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offline = offline
}

// Calls returns a copy of the call log.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns how many times op was called.
func (f *Fake) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls clears the call log.
func (f *Fake) ResetCalls() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// begin returns the failure injected for op, if any.
// Caller must hold f.mu.
func (f *Fake) begin(op string) error {
	if f.offline {
		return ErrOffline
	}
	if q := f.failures[op]; len(q) > 0 {
		err := q[0]
		f.failures[op] = q[1:]
		return err
	}
	return nil
}

func (f *Fake) nextID(kind string) string {
	f.seq[kind]++
	return fmt.Sprintf("srv-%s-%d", kind, f.seq[kind])
}

func (f *Fake) record(c Call) {
	f.calls = append(f.calls, c)
}

// InsertSession implements remote.Writer.
func (f *Fake) InsertSession(_ context.Context, rec remote.SessionRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpInsertSession); err != nil {
		f.record(Call{Op: OpInsertSession, Ref: rec.LocalID, Err: err})
		return "", err
	}
	id := f.nextID("session")
	f.Sessions[id] = rec
	f.record(Call{Op: OpInsertSession, Ref: rec.LocalID, ServerID: id})
	return id, nil
}

// UpdateSession implements remote.Writer.
func (f *Fake) UpdateSession(_ context.Context, serverID string, rec remote.SessionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.begin(OpUpdateSession)
	if err == nil {
		if _, ok := f.Sessions[serverID]; !ok {
			err = remote.ErrNotFound
		} else {
			f.Sessions[serverID] = rec
		}
	}
	f.record(Call{Op: OpUpdateSession, Ref: serverID, Err: err})
	return err
}

// InsertOrder implements remote.Writer.
func (f *Fake) InsertOrder(_ context.Context, rec remote.OrderRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpInsertOrder); err != nil {
		f.record(Call{Op: OpInsertOrder, Ref: rec.LocalID, Err: err})
		return "", err
	}
	id := f.nextID("order")
	f.Orders[id] = rec
	f.record(Call{Op: OpInsertOrder, Ref: rec.LocalID, ServerID: id})
	return id, nil
}

// UpdateOrder implements remote.Writer.
func (f *Fake) UpdateOrder(_ context.Context, serverID string, rec remote.OrderRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	err := f.begin(OpUpdateOrder)
	if err == nil {
		if _, ok := f.Orders[serverID]; !ok {
			err = remote.ErrNotFound
		} else {
			f.Orders[serverID] = rec
		}
	}
	f.record(Call{Op: OpUpdateOrder, Ref: serverID, Err: err})
	return err
}

// InsertOrderItem implements remote.Writer.
func (f *Fake) InsertOrderItem(_ context.Context, rec remote.OrderItemRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpInsertOrderItem); err != nil {
		f.record(Call{Op: OpInsertOrderItem, Ref: rec.LocalID, Err: err})
		return "", err
	}
	id := f.nextID("item")
	f.OrderItems[id] = rec
	f.record(Call{Op: OpInsertOrderItem, Ref: rec.LocalID, ServerID: id})
	return id, nil
}

// InsertPayment implements remote.Writer.
func (f *Fake) InsertPayment(_ context.Context, rec remote.PaymentRecord) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(OpInsertPayment); err != nil {
		f.record(Call{Op: OpInsertPayment, Ref: rec.LocalID, Err: err})
		return "", err
	}
	id := f.nextID("payment")
	f.Payments[id] = rec
	f.record(Call{Op: OpInsertPayment, Ref: rec.LocalID, ServerID: id})
	return id, nil
}

// Ping implements remote.Pinger.
func (f *Fake) Ping(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.begin(OpPing)
}

// PutCustomer creates or replaces a remote customer. Set Active to false to
// deactivate it.
func (f *Fake) PutCustomer(c model.Customer) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.customers[c.ID] = c
}

// PutPromotion creates or replaces a remote promotion.
func (f *Fake) PutPromotion(p model.Promotion) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.promotions[p.ID] = p
}

// PutStock creates or replaces a remote stock row.
func (f *Fake) PutStock(l model.StockLevel) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stock[l.Key()] = stockRow{level: l}
}

// RemoveStock soft-deletes a remote stock row at at.
func (f *Fake) RemoveStock(productID, locationID string, at time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := (&model.StockLevel{ProductID: productID, LocationID: locationID}).Key()
	row := f.stock[key]
	row.level.ProductID = productID
	row.level.LocationID = locationID
	row.deletedAt = &at
	f.stock[key] = row
}

func after(t time.Time, since *time.Time) bool {
	return since == nil || t.After(*since)
}

// FetchCustomers implements remote.Catalog.
func (f *Fake) FetchCustomers(_ context.Context, since *time.Time) ([]model.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchCustomers"); err != nil {
		return nil, err
	}
	out := []model.Customer{}
	for _, c := range f.customers {
		if c.Active && after(c.UpdatedAt, since) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FetchInactiveCustomerIDs implements remote.Catalog.
func (f *Fake) FetchInactiveCustomerIDs(_ context.Context, since time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchInactiveCustomerIDs"); err != nil {
		return nil, err
	}
	ids := []string{}
	for _, c := range f.customers {
		if !c.Active && c.UpdatedAt.After(since) {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// FetchPromotions implements remote.Catalog. The fake has no clock, so
// expired promotions are returned while still active.
func (f *Fake) FetchPromotions(_ context.Context, since *time.Time) ([]model.Promotion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchPromotions"); err != nil {
		return nil, err
	}
	out := []model.Promotion{}
	for _, p := range f.promotions {
		if p.Active && after(p.UpdatedAt, since) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// FetchInactivePromotionIDs implements remote.Catalog.
func (f *Fake) FetchInactivePromotionIDs(_ context.Context, since time.Time) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchInactivePromotionIDs"); err != nil {
		return nil, err
	}
	ids := []string{}
	for _, p := range f.promotions {
		if !p.Active && p.UpdatedAt.After(since) {
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// FetchStockLevels implements remote.Catalog.
func (f *Fake) FetchStockLevels(_ context.Context, since *time.Time) ([]model.StockLevel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchStockLevels"); err != nil {
		return nil, err
	}
	out := []model.StockLevel{}
	for _, row := range f.stock {
		if row.deletedAt == nil && after(row.level.UpdatedAt, since) {
			out = append(out, row.level)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// FetchRemovedStockLevels implements remote.Catalog.
func (f *Fake) FetchRemovedStockLevels(_ context.Context, since time.Time) ([]model.StockLevel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin("FetchRemovedStockLevels"); err != nil {
		return nil, err
	}
	out := []model.StockLevel{}
	for _, row := range f.stock {
		if row.deletedAt != nil && row.deletedAt.After(since) {
			out = append(out, model.StockLevel{ProductID: row.level.ProductID, LocationID: row.level.LocationID})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}
