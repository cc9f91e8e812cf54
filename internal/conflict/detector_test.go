package conflict

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	pkgerrors "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
	"github.com/roach88/possync/internal/testutil"
)

func TestDetectType(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want model.ConflictType
		ok   bool
	}{
		{"nil", nil, "", false},
		{"unique sqlstate", &pq.Error{Code: "23505", Message: "boom"}, model.ConflictDuplicate, true},
		{"fk sqlstate", &pq.Error{Code: "23503"}, model.ConflictFKViolation, true},
		{"serialization sqlstate", &pq.Error{Code: "40001"}, model.ConflictVersionMismatch, true},
		{"no data sqlstate", &pq.Error{Code: "P0002"}, model.ConflictDeleted, true},
		{"wrapped sqlstate", pkgerrors.Wrap(&pq.Error{Code: "23505"}, "insert payment"), model.ConflictDuplicate, true},
		{"remote not found", pkgerrors.Wrap(remote.ErrNotFound, "update order"), model.ConflictDeleted, true},
		{"duplicate message", errors.New(`duplicate key value violates unique constraint "payments_client_ref_key"`), model.ConflictDuplicate, true},
		{"already exists", errors.New("order already exists"), model.ConflictDuplicate, true},
		{"fk message", errors.New(`insert or update on table "orders" violates foreign key constraint`), model.ConflictFKViolation, true},
		{"version message", errors.New("Version mismatch on orders row"), model.ConflictVersionMismatch, true},
		{"stale message", errors.New("stale record"), model.ConflictVersionMismatch, true},
		{"deleted message", errors.New("order row does not exist"), model.ConflictDeleted, true},
		{"record was deleted", errors.New("record srv-order-3 was deleted"), model.ConflictDeleted, true},
		{"no rows", errors.New("sql: no rows in result set"), model.ConflictDeleted, true},
		{"unmapped sqlstate", &pq.Error{Code: "57014", Message: "canceling statement due to statement timeout"}, "", false},
		{"undefined table sqlstate", &pq.Error{Code: "42P01", Message: `relation "orders" does not exist`}, "", false},
		{"undefined column sqlstate", &pq.Error{Code: "42703", Message: `column "client_ref" does not exist`}, "", false},
		{"missing database sqlstate", &pq.Error{Code: "3D000", Message: `database "pos" does not exist`}, "", false},
		{"unmapped sqlstate with conflict wording", &pq.Error{Code: "XX000", Message: "duplicate key in cache"}, "", false},
		{"relation message without sqlstate", errors.New(`pq: relation "orders" does not exist`), "", false},
		{"database message without sqlstate", errors.New(`pq: database "pos" does not exist`), "", false},
		{"timeout", errors.New("dial tcp 10.0.0.5:5432: i/o timeout"), "", false},
		{"connection refused", errors.New("connection refused"), "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := DetectType(tt.err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDetectType_SQLStateWinsOverMessage(t *testing.T) {
	// The message mentions a foreign key, but the code says duplicate.
	err := &pq.Error{Code: "23505", Message: "foreign key fk_orders_session already used"}
	got, ok := DetectType(err)
	require.True(t, ok)
	assert.Equal(t, model.ConflictDuplicate, got)
}

func TestDetect(t *testing.T) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	ids := model.NewFixedIDGenerator("c-1")
	item := &model.QueueItem{
		ID:       42,
		Entity:   model.EntityPayment,
		Action:   model.ActionCreate,
		EntityID: "LOCAL-PAY-1",
		Payload:  json.RawMessage(`{"amount":100}`),
	}

	c := Detect(item, fmt.Errorf("insert payment: %w", &pq.Error{Code: "23505"}), json.RawMessage(`{"id":"srv-9"}`), ids, clock)
	require.NotNil(t, c)
	assert.Equal(t, "c-1", c.ID)
	assert.Equal(t, int64(42), c.QueueItemID)
	assert.Equal(t, model.EntityPayment, c.EntityType)
	assert.Equal(t, "LOCAL-PAY-1", c.EntityID)
	assert.Equal(t, model.ConflictDuplicate, c.ConflictType)
	assert.JSONEq(t, `{"amount":100}`, string(c.LocalData))
	assert.JSONEq(t, `{"id":"srv-9"}`, string(c.ServerData))
	assert.Equal(t, testutil.Epoch, c.DetectedAt)
	assert.False(t, c.IsResolved())

	assert.Nil(t, Detect(item, errors.New("connection reset by peer"), nil, ids, clock))
}
