package engine

import (
	"context"
	"time"

	"github.com/roach88/possync/internal/model"
	"github.com/roach88/possync/internal/processor"
	"github.com/roach88/possync/internal/queue"
)

// Reasons a pass was skipped.
const (
	SkipInProgress  = "in_progress"
	SkipAutoSyncOff = "auto_sync_disabled"
	SkipOffline     = "offline"
)

// PassResult summarises one sync pass.
type PassResult struct {
	Seq        int64     `json:"seq,omitempty"`
	Trigger    Trigger   `json:"trigger"`
	Started    time.Time `json:"started"`
	Finished   time.Time `json:"finished"`
	Processed  int       `json:"processed"`
	Succeeded  int       `json:"succeeded"`
	Failed     int       `json:"failed"`
	Dead       int       `json:"dead"`
	Conflicts  int       `json:"conflicts"`
	Deferred   int       `json:"deferred"`
	Recovered  int64     `json:"recovered,omitempty"`
	Purged     int64     `json:"purged,omitempty"`
	Skipped    bool      `json:"skipped"`
	SkipReason string    `json:"skip_reason,omitempty"`
}

// RunSyncPass runs one pass now. It is not gated by auto-sync or
// connectivity. If a pass is already running, the result is Skipped.
//
// Cancelling ctx stops the pass between items; the item in flight always
// finishes.
func (e *Engine) RunSyncPass(ctx context.Context) (PassResult, error) {
	return e.runPass(ctx, TriggerManual)
}

func (e *Engine) runPass(ctx context.Context, trigger Trigger) (PassResult, error) {
	if trigger.scheduled() {
		if !e.state.AutoSyncEnabled() {
			return skipped(trigger, SkipAutoSyncOff), nil
		}
		if !e.state.Online() {
			return skipped(trigger, SkipOffline), nil
		}
	}
	if !e.state.tryBeginPass() {
		e.log.Debug().Str("trigger", string(trigger)).Msg("pass already running, trigger skipped")
		return skipped(trigger, SkipInProgress), nil
	}

	res := PassResult{Seq: e.seq.Next(), Trigger: trigger, Started: e.clock.Now()}
	log := e.log.With().Int64("pass", res.Seq).Str("trigger", string(trigger)).Logger()

	if !e.recovered {
		n, err := e.store.ResetOrphans(ctx)
		if err != nil {
			e.state.abortPass()
			return res, err
		}
		e.recovered = true
		res.Recovered = n
		if n > 0 {
			log.Warn().Int64("items", n).Msg("orphaned syncing items reset to pending")
		}
	}

	candidates, err := e.store.EligibleCandidates(ctx)
	if err != nil {
		e.state.abortPass()
		return res, err
	}
	items := queue.SortByDependency(e.policy.FilterEligible(candidates, res.Started))

	ids := processor.NewIdentifierMap()
	for i := range items {
		if ctx.Err() != nil {
			log.Info().Int("remaining", len(items)-i).Msg("pass cancelled between items")
			break
		}
		// The item in flight is not abandoned half way.
		e.processItem(context.WithoutCancel(ctx), &items[i], ids, &res)
	}

	if e.retention > 0 {
		n, err := e.store.PurgeCompleted(context.WithoutCancel(ctx), e.clock.Now().Add(-e.retention))
		if err != nil {
			log.Warn().Err(err).Msg("purge of completed items failed")
		}
		res.Purged = n
	}

	res.Finished = e.clock.Now()
	e.state.endPass(res)

	ev := log.Info()
	if res.Processed == 0 {
		ev = log.Debug()
	}
	ev.Int("processed", res.Processed).
		Int("succeeded", res.Succeeded).
		Int("failed", res.Failed).
		Int("conflicts", res.Conflicts).
		Int("deferred", res.Deferred).
		Msg("sync pass finished")
	return res, nil
}

func skipped(trigger Trigger, reason string) PassResult {
	return PassResult{Trigger: trigger, Skipped: true, SkipReason: reason}
}

// processItem runs one item through its processor and settles its queue
// state. Store failures are logged; the item is picked up again by orphan
// recovery or the next pass.
func (e *Engine) processItem(ctx context.Context, item *model.QueueItem, ids *processor.IdentifierMap, res *PassResult) {
	log := e.log.With().
		Int64("queue_item_id", item.ID).
		Str("entity", string(item.Entity)).
		Str("action", string(item.Action)).
		Str("entity_id", item.EntityID).
		Logger()

	if err := e.store.MarkSyncing(ctx, item.ID); err != nil {
		log.Error().Err(err).Msg("mark syncing failed")
		return
	}
	res.Processed++

	r := e.registry.Process(ctx, item, ids)

	var err error
	switch r.Kind {
	case processor.KindSuccess:
		res.Succeeded++
		err = e.store.MarkCompleted(ctx, item.ID)
		log.Debug().Str("server_id", r.ServerID).Int("child_failures", r.ChildFailures()).Msg("item synced")

	case processor.KindNotFound, processor.KindInvalid:
		res.Failed++
		res.Dead++
		err = e.store.MarkDead(ctx, item.ID, r.Err.Error(), e.policy.MaxRetries)
		log.Error().Err(r.Err).Msg("item cannot be synced, marked dead")

	case processor.KindUnresolved:
		res.Deferred++
		err = e.store.DeferToPending(ctx, item.ID, r.Err.Error())
		log.Debug().Err(r.Err).Msg("item deferred")

	case processor.KindConflict:
		res.Conflicts++
		if err = e.store.MarkFailed(ctx, item.ID, r.Err.Error()); err == nil {
			_, err = e.conflicts.Record(ctx, item, r.Err, nil)
		}

	default:
		res.Failed++
		err = e.store.MarkFailed(ctx, item.ID, r.Err.Error())
		ev := log.Warn()
		if item.Retries+1 >= e.policy.MaxRetries {
			ev = log.Error()
		}
		ev.Err(r.Err).Int("retries", item.Retries+1).
			Dur("next_delay", e.policy.BackoffDelay(item.Retries+1)).
			Msg("item failed")
	}
	if err != nil {
		log.Error().Err(err).Str("kind", string(r.Kind)).Msg("settling queue item failed")
	}
}
