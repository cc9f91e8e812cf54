package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/roach88/possync/internal/refcache"
)

// ErrAlreadyStarted is returned by Start when the loop is running.
var ErrAlreadyStarted = errors.New("engine already started")

// scheduler holds the background loop's lifecycle.
type scheduler struct {
	mu       sync.Mutex
	triggers *triggerQueue
	stop     chan struct{}
	done     chan struct{}
	debounce *time.Timer
}

// Start launches the background loop and queues a startup pass, which
// also recovers items orphaned in syncing by a previous process. The loop
// runs until Stop is called or ctx is cancelled.
func (e *Engine) Start(ctx context.Context) error {
	e.sched.mu.Lock()
	defer e.sched.mu.Unlock()

	if e.sched.stop != nil {
		return ErrAlreadyStarted
	}
	e.sched.triggers = newTriggerQueue()
	e.sched.stop = make(chan struct{})
	e.sched.done = make(chan struct{})
	e.state.setScheduled(true)

	e.sched.triggers.Enqueue(TriggerStartup)
	go e.loop(ctx, e.sched.triggers, e.sched.stop, e.sched.done)

	e.log.Info().Dur("interval", e.interval).Dur("debounce", e.debounce).Msg("engine started")
	return nil
}

// Stop ends the background loop and waits for it to exit. A pass in flight
// runs to completion first. Safe to call when not started.
func (e *Engine) Stop() {
	e.sched.mu.Lock()
	if e.sched.stop == nil {
		e.sched.mu.Unlock()
		return
	}
	close(e.sched.stop)
	e.sched.triggers.Close()
	if e.sched.debounce != nil {
		e.sched.debounce.Stop()
		e.sched.debounce = nil
	}
	done := e.sched.done
	e.sched.stop = nil
	e.sched.mu.Unlock()

	<-done
	e.state.setScheduled(false)
	e.log.Info().Msg("engine stopped")
}

// RequestSync asks the background loop for a pass. Returns false if the
// loop is not running.
func (e *Engine) RequestSync() bool {
	e.sched.mu.Lock()
	defer e.sched.mu.Unlock()
	if e.sched.triggers == nil || e.sched.stop == nil {
		return false
	}
	return e.sched.triggers.Enqueue(TriggerManual)
}

// NotifyConnectivity records a connectivity change. Going online schedules
// a reconnect pass after the debounce delay; going offline cancels it.
func (e *Engine) NotifyConnectivity(online bool) {
	if !e.state.setOnline(online) {
		return
	}
	e.log.Info().Bool("online", online).Msg("connectivity changed")

	e.sched.mu.Lock()
	defer e.sched.mu.Unlock()
	if e.sched.debounce != nil {
		e.sched.debounce.Stop()
		e.sched.debounce = nil
	}
	if !online || e.sched.stop == nil {
		return
	}
	q := e.sched.triggers
	e.sched.debounce = time.AfterFunc(e.debounce, func() {
		q.Enqueue(TriggerReconnect)
	})
}

func (e *Engine) loop(ctx context.Context, triggers *triggerQueue, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	var probe <-chan time.Time
	if e.pinger != nil && e.probeInterval > 0 {
		pt := time.NewTicker(e.probeInterval)
		defer pt.Stop()
		probe = pt.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			e.scheduledPass(ctx, TriggerTick)
		case <-probe:
			e.probe(ctx)
		case <-triggers.Wait():
			for _, t := range coalesce(triggers.Drain()) {
				e.scheduledPass(ctx, t)
			}
		}
	}
}

func (e *Engine) scheduledPass(ctx context.Context, t Trigger) {
	res, err := e.runPass(ctx, t)
	if err != nil {
		e.log.Error().Err(err).Str("trigger", string(t)).Msg("sync pass failed")
		return
	}
	if res.Skipped || !e.refreshOnPass || e.refresher == nil {
		return
	}
	if _, err := e.refresher.Refresh(ctx, refcache.ModeAuto); err != nil {
		e.log.Warn().Err(err).Msg("reference refresh after pass failed")
	}
}

func (e *Engine) probe(ctx context.Context) {
	pctx, cancel := context.WithTimeout(ctx, e.probeInterval)
	defer cancel()
	err := e.pinger.Ping(pctx)
	if err != nil {
		e.log.Debug().Err(err).Msg("connectivity probe failed")
	}
	e.NotifyConnectivity(err == nil)
}
