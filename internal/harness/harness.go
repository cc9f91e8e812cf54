package harness

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/roach88/possync/internal/engine"
	"github.com/roach88/possync/internal/queue"
	"github.com/roach88/possync/internal/refcache"
	"github.com/roach88/possync/internal/remote/remotetest"
	"github.com/roach88/possync/internal/store"
	"github.com/roach88/possync/internal/testutil"
)

// Harness drives one scenario against a real engine wired to an in-memory
// store, an in-memory remote and a fake clock.
type Harness struct {
	store  *store.Store
	engine *engine.Engine
	remote *remotetest.Fake
	clock  *testutil.FakeClock
	result *Result
	traced int // remote calls already copied into the trace
}

// Run executes a scenario and returns the result.
//
// Each scenario runs in a fresh in-memory database. The clock starts at
// testutil.Epoch and only moves on advance steps, and conflict ids are
// conflict-1, conflict-2, ... so traces are reproducible.
//
// Run returns an error when the scenario cannot be executed (a setup step
// failed, a step has bad args). Expect and assertion failures are reported
// in the Result instead.
func Run(scenario *Scenario) (*Result, error) {
	return RunWithLogger(scenario, zerolog.Nop())
}

// RunWithLogger is Run with engine logs written to log.
func RunWithLogger(scenario *Scenario, log zerolog.Logger) (*Result, error) {
	clock := testutil.NewFakeClock(testutil.Epoch)
	st, err := store.Open(":memory:", store.WithClock(clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	policy := queue.DefaultPolicy()
	if scenario.MaxRetries > 0 {
		policy.MaxRetries = scenario.MaxRetries
	}

	fake := remotetest.New()
	eng := engine.New(st, fake,
		engine.WithClock(clock),
		engine.WithLogger(log),
		engine.WithPolicy(policy),
		engine.WithIDGenerator(testutil.NewSequenceGenerator("conflict")),
		engine.WithRefresher(refcache.NewRefresher(st, fake,
			refcache.WithClock(clock),
			refcache.WithLogger(log))),
	)

	h := &Harness{
		store:  st,
		engine: eng,
		remote: fake,
		clock:  clock,
		result: NewResult(),
	}

	ctx := context.Background()
	for i, step := range scenario.Setup {
		if _, err := h.invoke(ctx, step.Action, step.Args); err != nil {
			return nil, fmt.Errorf("setup[%d] %s: %w", i, step.Action, err)
		}
	}

	for i, step := range scenario.Flow {
		out, err := h.invoke(ctx, step.Invoke, step.Args)
		if isArgError(err) {
			return nil, fmt.Errorf("flow[%d] %s: %w", i, step.Invoke, err)
		}
		for _, msg := range checkExpect(step, out, err) {
			h.result.AddError(fmt.Sprintf("flow[%d] %s: %s", i, step.Invoke, msg))
		}
	}

	for _, msg := range EvaluateAssertions(h.result, scenario.Assertions, &AssertionContext{Ctx: ctx, Store: st}) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

// invoke runs one named action and copies any new remote calls into the
// trace. Calls are traced before the outcome event so a pass summary
// follows the calls it made.
func (h *Harness) invoke(ctx context.Context, name string, args map[string]interface{}) (outcome, error) {
	fn, ok := actions[name]
	if !ok {
		return outcome{}, &argError{fmt.Errorf("unknown action %q", name)}
	}
	out, err := fn(ctx, h, args)
	h.traceCalls()
	for _, ev := range out.events {
		h.result.append(ev)
	}
	return out, err
}

func (h *Harness) traceCalls() {
	calls := h.remote.Calls()
	for _, c := range calls[h.traced:] {
		ev := TraceEvent{Type: EventCall, Op: c.Op, Ref: c.Ref, ServerID: c.ServerID}
		if c.Err != nil {
			ev.Error = c.Err.Error()
		}
		h.result.append(ev)
	}
	h.traced = len(calls)
}

// checkExpect compares a flow step outcome with its expect clause.
func checkExpect(step FlowStep, out outcome, err error) []string {
	want := step.Expect
	if want == nil || want.Error == "" {
		if err != nil {
			return []string{fmt.Sprintf("unexpected error: %v", err)}
		}
	}
	if want == nil {
		return nil
	}

	var problems []string
	if want.Error != "" {
		switch {
		case err == nil:
			problems = append(problems, fmt.Sprintf("expected error containing %q, got success", want.Error))
		case !containsFold(err.Error(), want.Error):
			problems = append(problems, fmt.Sprintf("expected error containing %q, got %q", want.Error, err.Error()))
		}
	}

	if want.Pass != nil {
		if out.pass == nil {
			problems = append(problems, "expected a pass summary")
		} else {
			actual := out.pass.fields()
			for key, expected := range want.Pass {
				got, ok := actual[key]
				if !ok {
					problems = append(problems, fmt.Sprintf("unknown pass field %q", key))
					continue
				}
				if !stateValuesEqual(expected, got) {
					problems = append(problems, fmt.Sprintf("pass.%s: expected %v, got %v", key, expected, got))
				}
			}
		}
	}

	if want.Count != nil {
		switch {
		case out.count == nil:
			problems = append(problems, "step does not report a count")
		case *out.count != *want.Count:
			problems = append(problems, fmt.Sprintf("count: expected %d, got %d", *want.Count, *out.count))
		}
	}
	return problems
}
