package harness

// TraceEvent records one executed step.
//
// Fields that do not apply to the step's operation are left at their zero
// value and omitted from golden snapshots. IDs is nil for operations that
// return no bundle and empty for bundles without entries.
type TraceEvent struct {
	Step    int    `json:"step"`
	Op      string `json:"op"`
	Target  string `json:"target,omitempty"`
	Outcome string `json:"outcome"`
	// Version is the version written or read.
	Version int `json:"version,omitempty"`
	// Total is Bundle.total of search, history and everything results.
	Total *int `json:"total,omitempty"`
	// IDs lists the Type/id of each returned entry in order.
	IDs []string `json:"ids,omitempty"`
	// Statuses are the response statuses of a processed bundle.
	Statuses []string `json:"statuses,omitempty"`
	// EntryIndex is the failing entry of an aborted transaction.
	EntryIndex *int `json:"entry_index,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Trace contains one event per step, in order.
	Trace []TraceEvent `json:"trace"`

	// Errors contains validation error messages.
	// Empty if Pass is true.
	Errors []string `json:"errors,omitempty"`

	// Digest is the store digest after the last step.
	Digest string `json:"digest"`

	// Checkpoints maps checkpoint names to the digest taken at that point.
	Checkpoints map[string]string `json:"checkpoints,omitempty"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:        true,
		Trace:       []TraceEvent{},
		Errors:      []string{},
		Checkpoints: make(map[string]string),
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}
