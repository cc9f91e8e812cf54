package processor

import "github.com/roach88/possync/internal/model"

// IdentifierMap maps local identifiers to remote ones for the duration of a
// pass. Lookups that miss fall back to persisted server ids in the
// processors.
//
// Thread-safety: NOT safe for concurrent use. A pass processes items
// sequentially.
type IdentifierMap struct {
	m map[model.EntityType]map[string]string
}

// NewIdentifierMap creates an empty map.
func NewIdentifierMap() *IdentifierMap {
	return &IdentifierMap{m: map[model.EntityType]map[string]string{}}
}

// Put records that localID of entity was assigned remoteID.
func (im *IdentifierMap) Put(entity model.EntityType, localID, remoteID string) {
	byID, ok := im.m[entity]
	if !ok {
		byID = map[string]string{}
		im.m[entity] = byID
	}
	byID[localID] = remoteID
}

// Lookup returns the remote id assigned to localID in this pass.
func (im *IdentifierMap) Lookup(entity model.EntityType, localID string) (string, bool) {
	id, ok := im.m[entity][localID]
	return id, ok
}

// Len returns the number of mappings across all entities.
func (im *IdentifierMap) Len() int {
	n := 0
	for _, byID := range im.m {
		n += len(byID)
	}
	return n
}
