package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// ConflictType classifies why the remote system rejected a mutation.
type ConflictType string

const (
	ConflictDuplicate       ConflictType = "duplicate"
	ConflictFKViolation     ConflictType = "fk_violation"
	ConflictVersionMismatch ConflictType = "version_mismatch"
	ConflictDeleted         ConflictType = "deleted"
)

// Resolution is the operator's decision for a conflict.
type Resolution string

const (
	ResolutionKeepLocal  Resolution = "keep_local"
	ResolutionKeepServer Resolution = "keep_server"
	ResolutionSkip       Resolution = "skip"
	ResolutionMerge      Resolution = "merge"
)

// ParseResolution converts a string into a Resolution.
func ParseResolution(s string) (Resolution, error) {
	switch r := Resolution(s); r {
	case ResolutionKeepLocal, ResolutionKeepServer, ResolutionSkip, ResolutionMerge:
		return r, nil
	}
	return "", fmt.Errorf("unknown resolution %q: must be one of keep_local, keep_server, skip, merge", s)
}

// Conflict is a remote rejection held for an operator decision.
type Conflict struct {
	ID           string          `json:"id"`
	QueueItemID  int64           `json:"queue_item_id"`
	EntityType   EntityType      `json:"entity_type"`
	EntityID     string          `json:"entity_id"`
	LocalData    json.RawMessage `json:"local_data,omitempty"`
	ServerData   json.RawMessage `json:"server_data,omitempty"`
	ConflictType ConflictType    `json:"conflict_type"`
	Message      string          `json:"message,omitempty"`
	DetectedAt   time.Time       `json:"detected_at"`
	ResolvedAt   *time.Time      `json:"resolved_at,omitempty"`
	Resolution   Resolution      `json:"resolution,omitempty"`
}

// IsResolved reports whether a resolution has been applied.
func (c *Conflict) IsResolved() bool {
	return c.ResolvedAt != nil
}
