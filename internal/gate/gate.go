// Package gate decides whether a source is admitted to run, based on its
// last completed call and a configured minimum interval. The decision is a
// pure function; persistence of last-run timestamps lives behind
// ports.GateStore.
package gate

import (
	"time"

	"MarketScanner/internal/domain"
)

// Decision reasons, machine-readable in run summaries.
const (
	ReasonFirstRun        = "first run"
	ReasonIntervalElapsed = "interval elapsed"
	ReasonNotElapsed      = "interval not elapsed"
)

// Decision is the outcome of one admission check.
type Decision struct {
	Run           bool
	Reason        string
	NextAllowedAt time.Time
}

// Decide admits a source with no recorded run unconditionally; afterwards a
// source runs again only once minInterval has elapsed since last_run_at.
// Callers must update last_run_at only after the adapter call returns, and
// not for a call that timed out: a hung fetch must not count as a completed
// cycle.
func Decide(now time.Time, state domain.SourceGateState, minInterval time.Duration) Decision {
	if state.LastRunAt == nil {
		return Decision{Run: true, Reason: ReasonFirstRun}
	}

	next := state.LastRunAt.Add(minInterval)
	if now.Before(next) {
		return Decision{Reason: ReasonNotElapsed, NextAllowedAt: next}
	}

	return Decision{Run: true, Reason: ReasonIntervalElapsed, NextAllowedAt: next}
}
