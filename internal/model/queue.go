package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// EntityType identifies the local table a queue item points at.
type EntityType string

const (
	EntitySession EntityType = "session"
	EntityOrder   EntityType = "order"
	EntityPayment EntityType = "payment"
)

// Entities lists the tracked entity types in dependency order.
var Entities = []EntityType{EntitySession, EntityOrder, EntityPayment}

// Valid reports whether t is one of the tracked entity types.
func (t EntityType) Valid() bool {
	switch t {
	case EntitySession, EntityOrder, EntityPayment:
		return true
	}
	return false
}

// ParseEntityType converts a string into an EntityType.
func ParseEntityType(s string) (EntityType, error) {
	t := EntityType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown entity type %q", s)
	}
	return t, nil
}

// Action is the kind of mutation recorded in the queue.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Valid reports whether a is a known action.
func (a Action) Valid() bool {
	return a == ActionCreate || a == ActionUpdate
}

// QueueStatus is the lifecycle state of a queue item.
//
//	pending -> syncing -> completed
//	                   -> failed -> pending (retry)
type QueueStatus string

const (
	QueueStatusPending   QueueStatus = "pending"
	QueueStatusSyncing   QueueStatus = "syncing"
	QueueStatusFailed    QueueStatus = "failed"
	QueueStatusCompleted QueueStatus = "completed"
)

// QueueItem is one pending mutation of a tracked entity.
type QueueItem struct {
	ID          int64
	Entity      EntityType
	Action      Action
	EntityID    string // local identifier of the row in the entity table
	Payload     json.RawMessage
	PayloadHash string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Status      QueueStatus
	Retries     int
	LastError   string
}

// IsDead reports whether the item has exhausted its retry budget.
func (q *QueueItem) IsDead(maxRetries int) bool {
	return q.Status == QueueStatusFailed && q.Retries >= maxRetries
}

// QueueCounts summarises the queue by status.
type QueueCounts struct {
	Pending   int `json:"pending"`
	Syncing   int `json:"syncing"`
	Failed    int `json:"failed"`
	Completed int `json:"completed"`
	Total     int `json:"total"`
}
