package domain

import (
	"time"

	"github.com/google/uuid"
)

// RunStatus enumerates pipeline run states.
type RunStatus string

const (
	RunCreated        RunStatus = "created"
	RunRunning        RunStatus = "running"
	RunCompleted      RunStatus = "completed"
	RunPartialFailure RunStatus = "partial_failure"
	RunFailed         RunStatus = "failed"
)

// Terminal reports whether the status is an end state.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunCompleted, RunPartialFailure, RunFailed:
		return true
	}
	return false
}

// PipelineRun summarizes one execution of one pipeline. The json tags shape
// the machine-readable run summary the trigger consumes.
type PipelineRun struct {
	ID         uuid.UUID `json:"id"`
	Pipeline   string    `json:"pipeline"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     RunStatus `json:"status"`
	Steps      []string  `json:"steps"`
	FailedStep string    `json:"failed_step,omitempty"`
	Err        string    `json:"error,omitempty"`
}

// Elapsed is the wall-clock duration of the run.
func (r PipelineRun) Elapsed() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// OutcomeKind classifies one source's result within an ingest run.
type OutcomeKind string

const (
	OutcomeSkipped OutcomeKind = "skipped"
	OutcomeRan     OutcomeKind = "ran"
	OutcomeFailed  OutcomeKind = "failed"
)

// SourceOutcome records what happened to one source during an ingest run,
// skips included. A run canceled mid-iteration reports outcomes only for the
// sources it reached.
type SourceOutcome struct {
	SourceID        string        `json:"source_id"`
	Kind            OutcomeKind   `json:"kind"`
	Reason          string        `json:"reason,omitempty"`
	NextAllowedAt   *time.Time    `json:"next_allowed_at,omitempty"`
	Fetched         int           `json:"fetched"`
	Normalized      int           `json:"normalized"`
	Inserted        int           `json:"inserted"`
	Updated         int           `json:"updated"`
	NormFailures    int           `json:"norm_failures"`
	PersistFailures int           `json:"persist_failures"`
	Elapsed         time.Duration `json:"elapsed"`
}

// Item outcome statuses shared by the assess and notify pipelines.
const (
	ItemAssessed = "assessed"
	ItemJudged   = "judged"
	ItemNotified = "notified"
	ItemSkipped  = "skipped"
	ItemFailed   = "failed"
)

// ItemOutcome records what happened to one record during an assess or
// notify run.
type ItemOutcome struct {
	ListingKey string `json:"listing_key"`
	Status     string `json:"status"`
	Reason     string `json:"reason,omitempty"`
}
