package harness

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/lib/pq"
	"gopkg.in/yaml.v3"

	"github.com/roach88/possync/internal/engine"
	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/refcache"
)

// Action names usable in setup and flow steps.
const (
	// Local writes, recorded through the store as the POS would.
	ActionCreateSession     = "create_session"
	ActionCloseSession      = "close_session"
	ActionCreateOrder       = "create_order"
	ActionUpdateOrderStatus = "update_order_status"
	ActionCreatePayment     = "create_payment"
	ActionEnqueue           = "enqueue"

	// Remote behaviour.
	ActionFailNext    = "fail_next"
	ActionSetOffline  = "set_offline"
	ActionPutCustomer = "put_customer"
	ActionPutStock    = "put_stock"
	ActionRemoveStock = "remove_stock"

	// Engine operations.
	ActionSync            = "sync"
	ActionAdvance         = "advance"
	ActionResolveConflict = "resolve_conflict"
	ActionDismissConflict = "dismiss_conflict"
	ActionRetryFailed     = "retry_failed"
	ActionPurge           = "purge"
	ActionRefresh         = "refresh"
)

// outcome is what a step produced besides its error.
type outcome struct {
	events []TraceEvent
	pass   *PassSummary
	count  *int
}

type actionFunc func(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error)

var actions = map[string]actionFunc{
	ActionCreateSession:     createSession,
	ActionCloseSession:      closeSession,
	ActionCreateOrder:       createOrder,
	ActionUpdateOrderStatus: updateOrderStatus,
	ActionCreatePayment:     createPayment,
	ActionEnqueue:           enqueueRaw,
	ActionFailNext:          failNext,
	ActionSetOffline:        setOffline,
	ActionPutCustomer:       putCustomer,
	ActionPutStock:          putStock,
	ActionRemoveStock:       removeStock,
	ActionSync:              runSync,
	ActionAdvance:           advance,
	ActionResolveConflict:   resolveConflict,
	ActionDismissConflict:   dismissConflict,
	ActionRetryFailed:       retryFailed,
	ActionPurge:             purge,
	ActionRefresh:           refresh,
}

// argError marks a step whose args could not be decoded. It aborts the run
// instead of being matched against an expect clause.
type argError struct{ err error }

func (e *argError) Error() string { return "bad args: " + e.err.Error() }
func (e *argError) Unwrap() error { return e.err }

func isArgError(err error) bool {
	var ae *argError
	return errors.As(err, &ae)
}

// decodeArgs decodes step args into out, rejecting unknown keys.
func decodeArgs(args map[string]interface{}, out interface{}) error {
	if args == nil {
		return nil
	}
	data, err := yaml.Marshal(args)
	if err != nil {
		return &argError{err}
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return &argError{err}
	}
	return nil
}

func required(name, value string) error {
	if value == "" {
		return &argError{fmt.Errorf("%s is required", name)}
	}
	return nil
}

func count(n int64) *int {
	c := int(n)
	return &c
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

type sessionArgs struct {
	ID             string `yaml:"id"`
	RegisterID     string `yaml:"register_id"`
	CashierID      string `yaml:"cashier_id"`
	OpeningBalance int64  `yaml:"opening_balance"`
	ClosingBalance int64  `yaml:"closing_balance"`
}

func createSession(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a sessionArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	if err := required("id", a.ID); err != nil {
		return outcome{}, err
	}
	if a.RegisterID == "" {
		a.RegisterID = "REG-1"
	}
	if a.CashierID == "" {
		a.CashierID = "CASHIER-1"
	}
	_, err := h.store.CreateSession(ctx, &model.Session{
		ID:             a.ID,
		RegisterID:     a.RegisterID,
		CashierID:      a.CashierID,
		OpeningBalance: a.OpeningBalance,
		OpenedAt:       h.clock.Now(),
	})
	return outcome{}, err
}

func closeSession(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a sessionArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	if err := required("id", a.ID); err != nil {
		return outcome{}, err
	}
	_, err := h.store.CloseSession(ctx, a.ID, a.ClosingBalance)
	return outcome{}, err
}

type orderArgs struct {
	ID         string     `yaml:"id"`
	SessionID  string     `yaml:"session_id"`
	CustomerID string     `yaml:"customer_id"`
	Number     string     `yaml:"number"`
	Status     string     `yaml:"status"`
	Items      []itemArgs `yaml:"items"`
}

type itemArgs struct {
	ID        string `yaml:"id"`
	ProductID string `yaml:"product_id"`
	Quantity  int    `yaml:"quantity"`
	UnitPrice int64  `yaml:"unit_price"`
}

func createOrder(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a orderArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	if err := required("id", a.ID); err != nil {
		return outcome{}, err
	}
	o := &model.Order{
		ID:         a.ID,
		SessionID:  a.SessionID,
		CustomerID: a.CustomerID,
		Number:     a.Number,
		Status:     a.Status,
		CreatedAt:  h.clock.Now(),
	}
	if o.Number == "" {
		o.Number = a.ID
	}
	if o.Status == "" {
		o.Status = "open"
	}
	for _, it := range a.Items {
		if it.Quantity == 0 {
			it.Quantity = 1
		}
		total := int64(it.Quantity) * it.UnitPrice
		o.Items = append(o.Items, model.OrderItem{
			ID:        it.ID,
			ProductID: it.ProductID,
			Quantity:  it.Quantity,
			UnitPrice: it.UnitPrice,
			Total:     total,
		})
		o.Subtotal += total
	}
	o.Total = o.Subtotal
	_, err := h.store.CreateOrder(ctx, o)
	return outcome{}, err
}

func updateOrderStatus(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a orderArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	if err := required("id", a.ID); err != nil {
		return outcome{}, err
	}
	if err := required("status", a.Status); err != nil {
		return outcome{}, err
	}
	_, err := h.store.UpdateOrderStatus(ctx, a.ID, a.Status)
	return outcome{}, err
}

type paymentArgs struct {
	ID      string `yaml:"id"`
	OrderID string `yaml:"order_id"`
	Method  string `yaml:"method"`
	Amount  int64  `yaml:"amount"`
}

func createPayment(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a paymentArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	if err := required("id", a.ID); err != nil {
		return outcome{}, err
	}
	if err := required("order_id", a.OrderID); err != nil {
		return outcome{}, err
	}
	if a.Method == "" {
		a.Method = "cash"
	}
	_, err := h.store.CreatePayment(ctx, &model.Payment{
		ID:        a.ID,
		OrderID:   a.OrderID,
		Method:    a.Method,
		Amount:    a.Amount,
		CreatedAt: h.clock.Now(),
	})
	return outcome{}, err
}

type enqueueArgs struct {
	Entity   string `yaml:"entity"`
	Action   string `yaml:"action"`
	EntityID string `yaml:"entity_id"`
	Payload  string `yaml:"payload"`
}

// enqueueRaw records a queue item without a local row, as left behind when
// an entity is deleted after its mutation was queued.
func enqueueRaw(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a enqueueArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	entity, err := model.ParseEntityType(a.Entity)
	if err != nil {
		return outcome{}, &argError{err}
	}
	action := model.Action(a.Action)
	if action == "" {
		action = model.ActionCreate
	}
	if !action.Valid() {
		return outcome{}, &argError{fmt.Errorf("unknown queue action %q", a.Action)}
	}
	if err := required("entity_id", a.EntityID); err != nil {
		return outcome{}, err
	}
	payload := []byte(a.Payload)
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	_, err = h.engine.Enqueue(ctx, entity, action, a.EntityID, payload)
	return outcome{}, err
}

type failArgs struct {
	Op       string `yaml:"op"`
	Error    string `yaml:"error"`
	SQLState string `yaml:"sqlstate"`
	Times    int    `yaml:"times"`
}

// failNext injects errors into the next calls to a remote op. A sqlstate
// produces a Postgres error so conflict detection sees what a real server
// would return.
func failNext(_ context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a failArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	if err := required("op", a.Op); err != nil {
		return outcome{}, err
	}
	if a.Times <= 0 {
		a.Times = 1
	}

	var injected error
	switch {
	case a.SQLState != "":
		injected = &pq.Error{Code: pq.ErrorCode(a.SQLState), Message: a.Error}
	case a.Error != "":
		injected = errors.New(a.Error)
	default:
		injected = errors.New("connection reset by peer")
	}

	errs := make([]error, a.Times)
	for i := range errs {
		errs[i] = injected
	}
	h.remote.FailNext(a.Op, errs...)
	return outcome{}, nil
}

type offlineArgs struct {
	Offline bool `yaml:"offline"`
}

func setOffline(_ context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a offlineArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	h.remote.SetOffline(a.Offline)
	h.engine.NotifyConnectivity(!a.Offline)
	return outcome{}, nil
}

type customerArgs struct {
	ID     string `yaml:"id"`
	Name   string `yaml:"name"`
	Email  string `yaml:"email"`
	Points int64  `yaml:"points"`
	Active *bool  `yaml:"active"`
}

func putCustomer(_ context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a customerArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	if err := required("id", a.ID); err != nil {
		return outcome{}, err
	}
	active := a.Active == nil || *a.Active
	h.remote.PutCustomer(model.Customer{
		ID:        a.ID,
		Name:      a.Name,
		Email:     a.Email,
		Points:    a.Points,
		Active:    active,
		UpdatedAt: h.clock.Now(),
	})
	return outcome{}, nil
}

type stockArgs struct {
	ProductID  string `yaml:"product_id"`
	LocationID string `yaml:"location_id"`
	Quantity   int64  `yaml:"quantity"`
}

func putStock(_ context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a stockArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	if err := required("product_id", a.ProductID); err != nil {
		return outcome{}, err
	}
	h.remote.PutStock(model.StockLevel{
		ProductID:  a.ProductID,
		LocationID: a.LocationID,
		Quantity:   a.Quantity,
		UpdatedAt:  h.clock.Now(),
	})
	return outcome{}, nil
}

func removeStock(_ context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a stockArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	if err := required("product_id", a.ProductID); err != nil {
		return outcome{}, err
	}
	h.remote.RemoveStock(a.ProductID, a.LocationID, h.clock.Now())
	return outcome{}, nil
}

func runSync(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	if err := decodeArgs(args, &struct{}{}); err != nil {
		return outcome{}, err
	}
	res, err := h.engine.RunSyncPass(ctx)
	if err != nil {
		return outcome{}, err
	}
	p := summarize(res)
	return outcome{
		events: []TraceEvent{{Type: EventPass, Pass: p}},
		pass:   p,
	}, nil
}

func summarize(res engine.PassResult) *PassSummary {
	return &PassSummary{
		Trigger:   string(res.Trigger),
		Processed: res.Processed,
		Succeeded: res.Succeeded,
		Failed:    res.Failed,
		Dead:      res.Dead,
		Conflicts: res.Conflicts,
		Deferred:  res.Deferred,
		Skipped:   res.Skipped,
	}
}

type advanceArgs struct {
	By time.Duration `yaml:"by"`
}

func advance(_ context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a advanceArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	if a.By <= 0 {
		return outcome{}, &argError{fmt.Errorf("by must be a positive duration")}
	}
	h.clock.Advance(a.By)
	return outcome{}, nil
}

type conflictArgs struct {
	ID       string `yaml:"id"`
	EntityID string `yaml:"entity_id"`
	As       string `yaml:"as"`
}

// conflictID resolves a conflict reference. Scenarios usually name the
// entity, since conflict ids depend on detection order.
func (h *Harness) conflictID(ctx context.Context, a conflictArgs) (string, error) {
	if a.ID != "" {
		return a.ID, nil
	}
	if err := required("id or entity_id", a.EntityID); err != nil {
		return "", err
	}
	pending, err := h.engine.PendingConflicts(ctx)
	if err != nil {
		return "", err
	}
	for _, c := range pending {
		if c.EntityID == a.EntityID {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("no pending conflict for entity %s", a.EntityID)
}

func resolveConflict(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a conflictArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	id, err := h.conflictID(ctx, a)
	if err != nil {
		return outcome{}, err
	}
	_, err = h.engine.ResolveConflict(ctx, id, model.Resolution(a.As))
	return outcome{}, err
}

func dismissConflict(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a conflictArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	id, err := h.conflictID(ctx, a)
	if err != nil {
		return outcome{}, err
	}
	return outcome{}, h.engine.DismissConflict(ctx, id)
}

func retryFailed(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	if err := decodeArgs(args, &struct{}{}); err != nil {
		return outcome{}, err
	}
	n, err := h.engine.RetryFailed(ctx)
	return outcome{count: count(n)}, err
}

type purgeArgs struct {
	OlderThan time.Duration `yaml:"older_than"`
}

func purge(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a purgeArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	n, err := h.engine.PurgeCompleted(ctx, a.OlderThan)
	return outcome{count: count(n)}, err
}

type refreshArgs struct {
	Mode     string   `yaml:"mode"`
	Entities []string `yaml:"entities"`
}

// refresh traces one event per cache report. The step count is the total
// number of rows cached afterwards.
func refresh(ctx context.Context, h *Harness, args map[string]interface{}) (outcome, error) {
	var a refreshArgs
	if err := decodeArgs(args, &a); err != nil {
		return outcome{}, err
	}
	mode, err := refcache.ParseMode(a.Mode)
	if err != nil {
		return outcome{}, &argError{err}
	}
	entities := make([]model.ReferenceEntity, 0, len(a.Entities))
	for _, s := range a.Entities {
		e, err := model.ParseReferenceEntity(s)
		if err != nil {
			return outcome{}, err
		}
		entities = append(entities, e)
	}

	reports, err := h.engine.RefreshReference(ctx, mode, entities...)
	out := outcome{}
	total := 0
	for _, rep := range reports {
		out.events = append(out.events, TraceEvent{
			Type:  EventRefresh,
			Ref:   string(rep.Entity),
			Count: rep.Count,
			Error: rep.Error,
		})
		total += rep.Count
	}
	out.count = &total
	return out, err
}
