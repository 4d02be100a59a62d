package harness

// Trace event types.
const (
	EventAccepted   = "accepted"
	EventRejected   = "rejected"
	EventDispatched = "dispatched"
	EventFlush      = "flush"
	EventClose      = "close"
)

// TraceEvent is one observed recorder event. Backends are named by their
// type (csv, sqlite, arrow) so traces do not depend on temp paths.
type TraceEvent struct {
	Seq     int    `json:"seq"`
	Type    string `json:"type"`
	Title   string `json:"title,omitempty"`
	Code    string `json:"code,omitempty"`
	Backend string `json:"backend,omitempty"`
	Records int    `json:"records,omitempty"`
	Status  string `json:"status,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every step behaved as expected and every assertion
	// held.
	Pass bool `json:"pass"`

	// Trace holds recorder events in the order they happened.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages. Empty if Pass is true.
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

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends ev with the next sequence number.
func (r *Result) AddTrace(ev TraceEvent) {
	ev.Seq = len(r.Trace) + 1
	r.Trace = append(r.Trace, ev)
}

var eventTypes = []string{EventAccepted, EventRejected, EventDispatched, EventFlush, EventClose}
