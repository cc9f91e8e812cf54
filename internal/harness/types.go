package harness

// Trace event types.
const (
	EventCall    = "call"    // one remote write attempt
	EventPass    = "pass"    // one sync pass summary
	EventRefresh = "refresh" // one reference cache refresh report
)

// TraceEvent is one entry of a scenario trace.
type TraceEvent struct {
	Seq      int64        `json:"seq"`
	Type     string       `json:"type"`
	Op       string       `json:"op,omitempty"`
	Ref      string       `json:"ref,omitempty"`
	ServerID string       `json:"server_id,omitempty"`
	Error    string       `json:"error,omitempty"`
	Count    int          `json:"count,omitempty"`
	Pass     *PassSummary `json:"pass,omitempty"`
}

// PassSummary is the deterministic part of an engine.PassResult. Timing
// fields are left out so traces compare across runs.
type PassSummary struct {
	Trigger   string `json:"trigger"`
	Processed int    `json:"processed"`
	Succeeded int    `json:"succeeded"`
	Failed    int    `json:"failed"`
	Dead      int    `json:"dead"`
	Conflicts int    `json:"conflicts"`
	Deferred  int    `json:"deferred"`
	Skipped   bool   `json:"skipped,omitempty"`
}

// fields returns the summary as a map for subset matching.
func (p *PassSummary) fields() map[string]interface{} {
	return map[string]interface{}{
		"trigger":   p.Trigger,
		"processed": p.Processed,
		"succeeded": p.Succeeded,
		"failed":    p.Failed,
		"dead":      p.Dead,
		"conflicts": p.Conflicts,
		"deferred":  p.Deferred,
		"skipped":   p.Skipped,
	}
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace holds remote calls, pass summaries and refresh reports in
	// the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors holds expect and assertion failures. Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// append adds ev to the trace with the next sequence number.
func (r *Result) append(ev TraceEvent) {
	ev.Seq = int64(len(r.Trace) + 1)
	r.Trace = append(r.Trace, ev)
}

// Calls returns the call events of the trace for op, or every call event
// when op is empty.
func (r *Result) Calls(op string) []TraceEvent {
	var out []TraceEvent
	for _, ev := range r.Trace {
		if ev.Type == EventCall && (op == "" || ev.Op == op) {
			out = append(out, ev)
		}
	}
	return out
}
