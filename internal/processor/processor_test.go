package processor

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
)

func TestRegistry_UnknownEntity(t *testing.T) {
	reg := NewRegistryOf()
	res := reg.Process(context.Background(), &model.QueueItem{Entity: "refund", EntityID: "LOCAL-R1"}, NewIdentifierMap())
	assert.Equal(t, KindInvalid, res.Kind)
	assert.True(t, IsInvalidPayloadError(res.Err))
}

func TestRegistry_UnknownAction(t *testing.T) {
	f := newFixture(t)
	item := f.createSession(t, "LOCAL-S1")
	item.Action = "delete"

	res := f.process(t, item)
	assert.Equal(t, KindInvalid, res.Kind)
}

func TestIdentifierMap(t *testing.T) {
	m := NewIdentifierMap()
	_, ok := m.Lookup(model.EntityOrder, "LOCAL-O1")
	assert.False(t, ok)

	m.Put(model.EntityOrder, "LOCAL-O1", "srv-1")
	m.Put(model.EntitySession, "LOCAL-O1", "srv-2")

	id, ok := m.Lookup(model.EntityOrder, "LOCAL-O1")
	assert.True(t, ok)
	assert.Equal(t, "srv-1", id)
	id, _ = m.Lookup(model.EntitySession, "LOCAL-O1")
	assert.Equal(t, "srv-2", id)
	assert.Equal(t, 2, m.Len())
}

func TestFailedClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"not found", NewNotFoundError("order", "LOCAL-O1"), KindNotFound},
		{"unresolved", fmt.Errorf("wrapped: %w", NewUnresolvedError("order", "LOCAL-P1")), KindUnresolved},
		{"invalid", NewInvalidPayloadError("LOCAL-O1", "bad"), KindInvalid},
		{"remote transient", NewRemoteError("insert order", "LOCAL-O1", errors.New("EOF")), KindTransient},
		{"remote conflict", NewRemoteError("insert order", "LOCAL-O1", &pq.Error{Code: "23503"}), KindConflict},
		{"remote deleted", NewRemoteError("update order", "LOCAL-O1", remote.ErrNotFound), KindConflict},
		{"local failure", errors.New("database is locked"), KindTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := failed(tt.err)
			assert.False(t, r.Success)
			assert.Equal(t, tt.kind, r.Kind)
			assert.Equal(t, tt.err, r.Err)
		})
	}
}

func TestSyncError_Message(t *testing.T) {
	err := NewRemoteError("insert payment", "LOCAL-P1", errors.New("EOF"))
	assert.Equal(t, "REMOTE: insert payment failed (entity=LOCAL-P1): EOF", err.Error())

	err = NewUnresolvedError("order", "LOCAL-P1")
	assert.Equal(t, "UNRESOLVED_DEPENDENCY: order not yet synced (entity=LOCAL-P1)", err.Error())
	assert.False(t, IsRemoteError(err))
}
