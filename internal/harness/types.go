package harness

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq     int64  `json:"seq"`
	Op      string `json:"op"`
	Target  string `json:"target,omitempty"`  // e.g. Contact(C1) or Group(g).Membership
	Outcome string `json:"outcome"`           // "ok" or "error: <code or message>"
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every step behaved as expected and every assertion held.
	Pass bool `json:"pass"`

	// Trace lists executed steps in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains step and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Snapshot is the canonical snapshot of the final transaction.
	Snapshot []byte `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceEvent{},
		Errors: []string{},
	}
}

// AddError adds a failure message and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step record.
func (r *Result) AddTrace(seq int64, op, target, outcome string) {
	r.Trace = append(r.Trace, TraceEvent{Seq: seq, Op: op, Target: target, Outcome: outcome})
}
