package sync

import (
	"time"

	"github.com/rileyhilliard/flatpak-sync/internal/host"
)

// Diagnostics for packages that were never sent to the remote host.
const (
	DiagnosticSessionLost = "skipped: session lost"
	DiagnosticCancelled   = "skipped: cancelled"
)

// Outcome is the result of one package. Attempted is false when the
// install command was never issued, so "never tried" and "tried and
// failed" stay distinguishable.
type Outcome struct {
	Package    string `json:"package"`
	Succeeded  bool   `json:"succeeded"`
	Diagnostic string `json:"diagnostic,omitempty"`
	Attempted  bool   `json:"attempted"`
}

// Report collects the outcomes of one run in input order. Warning holds
// problems that did not change any outcome, such as a failed disconnect
// or the session error that cut the run short.
type Report struct {
	RunID    string        `json:"run_id"`
	Target   host.Target   `json:"target"`
	Outcomes []Outcome     `json:"outcomes"`
	Warning  error         `json:"-"`
	Duration time.Duration `json:"duration_ns"`
}

// Succeeded reports whether every outcome succeeded. An empty run succeeds.
func (r *Report) Succeeded() bool {
	return len(r.Failed()) == 0
}

// Failed returns the outcomes that did not succeed, in order.
func (r *Report) Failed() []Outcome {
	var failed []Outcome
	for _, o := range r.Outcomes {
		if !o.Succeeded {
			failed = append(failed, o)
		}
	}
	return failed
}

// Counts returns how many packages installed, failed after an attempt,
// and were skipped without one.
func (r *Report) Counts() (installed, failed, skipped int) {
	for _, o := range r.Outcomes {
		switch {
		case o.Succeeded:
			installed++
		case o.Attempted:
			failed++
		default:
			skipped++
		}
	}
	return installed, failed, skipped
}

// WarningText returns the warning message or "".
func (r *Report) WarningText() string {
	if r.Warning == nil {
		return ""
	}
	return r.Warning.Error()
}
