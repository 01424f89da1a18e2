package controller

import (
	"time"

	"github.com/caffeineduck/plxrun/output"
)

// Outcome classifies how a run ended.
type Outcome int

const (
	OutcomeSucceeded Outcome = iota
	OutcomeStagingFailed
	OutcomeExecutionFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSucceeded:
		return "succeeded"
	case OutcomeStagingFailed:
		return "staging_failed"
	case OutcomeExecutionFailed:
		return "execution_failed"
	default:
		return "unknown"
	}
}

// Report describes one completed run.
type Report struct {
	ID        string
	Source    string
	StartedAt time.Time
	Duration  time.Duration
	Outcome   Outcome
	Err       error
	ExitCode  uint32
	Records   []output.Record
}

// Failed reports whether staging or execution failed. A program that ran
// and exited non-zero did not fail in this sense.
func (r *Report) Failed() bool {
	return r.Outcome != OutcomeSucceeded
}
