// Package conflict classifies remote rejections into conflict kinds and
// applies operator resolutions back onto the sync queue.
package conflict

import (
	"encoding/json"
	"errors"
	"regexp"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/remote"
)

// Postgres SQLSTATE codes that map to conflict kinds.
const (
	sqlStateUniqueViolation      = "23505"
	sqlStateForeignKeyViolation  = "23503"
	sqlStateSerializationFailure = "40001"
	sqlStateNoDataFound          = "P0002"
)

var sqlStateTypes = map[string]model.ConflictType{
	sqlStateUniqueViolation:      model.ConflictDuplicate,
	sqlStateForeignKeyViolation:  model.ConflictFKViolation,
	sqlStateSerializationFailure: model.ConflictVersionMismatch,
	sqlStateNoDataFound:          model.ConflictDeleted,
}

// messagePatterns are checked in order when no SQLSTATE is available. The
// deleted pattern only matches row-level wording; missing relations,
// columns and databases are schema or connection faults, not conflicts.
var messagePatterns = []struct {
	re   *regexp.Regexp
	kind model.ConflictType
}{
	{regexp.MustCompile(`(?i)duplicate key|unique constraint|unique violation|already exists`), model.ConflictDuplicate},
	{regexp.MustCompile(`(?i)foreign key`), model.ConflictFKViolation},
	{regexp.MustCompile(`(?i)version mismatch|optimistic lock|stale (record|version|data)|modified by another|timestamp mismatch`), model.ConflictVersionMismatch},
	{regexp.MustCompile(`(?i)row not found|record not found|no rows in result set|(row|record) .*(does not exist|was deleted)`), model.ConflictDeleted},
}

// DetectType classifies err. The boolean is false when err is a plain
// retryable failure.
func DetectType(err error) (model.ConflictType, bool) {
	if err == nil {
		return "", false
	}
	if code := remote.SQLState(err); code != "" {
		kind, ok := sqlStateTypes[code]
		return kind, ok
	}
	if errors.Is(err, remote.ErrNotFound) {
		return model.ConflictDeleted, true
	}

	msg := err.Error()
	for _, p := range messagePatterns {
		if p.re.MatchString(msg) {
			return p.kind, true
		}
	}
	return "", false
}

// Detect builds a Conflict for item when err classifies as one, or returns
// nil. The item payload becomes the conflict's local data.
func Detect(item *model.QueueItem, err error, serverData json.RawMessage, ids model.IDGenerator, clock model.Clock) *model.Conflict {
	kind, ok := DetectType(err)
	if !ok {
		return nil
	}
	return &model.Conflict{
		ID:           ids.Generate(),
		QueueItemID:  item.ID,
		EntityType:   item.Entity,
		EntityID:     item.EntityID,
		LocalData:    item.Payload,
		ServerData:   serverData,
		ConflictType: kind,
		Message:      err.Error(),
		DetectedAt:   clock.Now(),
	}
}
