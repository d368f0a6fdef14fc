package harness

import (
	"time"

	"github.com/roach88/lifequest/internal/engine"
	"github.com/roach88/lifequest/internal/notify"
)

// OutcomeOK is the outcome of a step that succeeded.
const OutcomeOK = "ok"

// OutcomeError is the outcome of a step that failed without an engine code.
const OutcomeError = "ERROR"

// TraceEvent records one executed step.
type TraceEvent struct {
	Seq  int64  `json:"seq"`
	Step string `json:"step"`
	// Target is the quest or item the step acted on.
	Target  string    `json:"target,omitempty"`
	Outcome string    `json:"outcome"`
	At      time.Time `json:"at"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true if every expect clause and assertion held.
	Pass bool `json:"pass"`

	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`

	Notifications []notify.Notification `json:"notifications"`

	// Final is the engine snapshot after the last step.
	Final engine.Snapshot `json:"-"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:          true,
		Trace:         []TraceEvent{},
		Errors:        []string{},
		Notifications: []notify.Notification{},
	}
}

// AddError adds a validation error and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddTrace appends a step to the trace.
func (r *Result) AddTrace(step, target, outcome string, at time.Time) {
	r.Trace = append(r.Trace, TraceEvent{
		Seq:     int64(len(r.Trace) + 1),
		Step:    step,
		Target:  target,
		Outcome: outcome,
		At:      at,
	})
}
