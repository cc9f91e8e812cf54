package processor

import (
	"errors"

	"github.com/roach88/possync/internal/conflict"
	"github.com/roach88/possync/internal/model"
)

// Kind classifies a processing outcome for the orchestrator.
type Kind string

const (
	KindSuccess    Kind = "success"
	KindNotFound   Kind = "not_found"  // terminal
	KindInvalid    Kind = "invalid"    // terminal
	KindUnresolved Kind = "unresolved" // back to pending, retries unchanged
	KindTransient  Kind = "transient"  // failed, retries+1
	KindConflict   Kind = "conflict"   // failed, retries+1, conflict recorded
)

// Result is the outcome of processing one queue item.
type Result struct {
	Success      bool
	ServerID     string
	Err          error
	Kind         Kind
	ConflictType model.ConflictType // set when Kind is KindConflict
	Children     []ChildResult
}

// ChildResult is the outcome of one child submitted with an order.
type ChildResult struct {
	Entity   model.EntityType
	LocalID  string
	ServerID string
	Err      error
}

// ChildFailures counts children that failed.
func (r Result) ChildFailures() int {
	n := 0
	for _, c := range r.Children {
		if c.Err != nil {
			n++
		}
	}
	return n
}

func succeeded(serverID string, children ...ChildResult) Result {
	return Result{Success: true, ServerID: serverID, Kind: KindSuccess, Children: children}
}

// failed classifies err into a Result.
func failed(err error) Result {
	r := Result{Err: err, Kind: KindTransient}
	var se *SyncError
	if errors.As(err, &se) {
		switch se.Code {
		case ErrCodeNotFound:
			r.Kind = KindNotFound
			return r
		case ErrCodeUnresolvedDependency:
			r.Kind = KindUnresolved
			return r
		case ErrCodeInvalidPayload:
			r.Kind = KindInvalid
			return r
		}
	}
	if kind, ok := conflict.DetectType(err); ok {
		r.Kind = KindConflict
		r.ConflictType = kind
	}
	return r
}
