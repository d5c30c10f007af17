// Package engine executes a pipeline as an ordered sequence of steps
// threading one explicit state value end to end. There is no internal loop,
// no sleep, and no retry: repeated execution belongs to the external
// trigger that invokes the process.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"MarketScanner/internal/domain"
)

// ErrStop signals terminal success from inside a step: the engine halts
// early, keeps the state as returned, and reports the run as completed.
var ErrStop = errors.New("pipeline stopped early")

// Step is one unit of work. It receives the accumulated state and returns
// the updated state, ErrStop (possibly wrapped) for an early successful
// halt, or any other error for a fatal failure.
type Step[S any] struct {
	Name string
	Run  func(ctx context.Context, state S) (S, error)
}

// Definition is a named, ordered pipeline. Partial, when set, inspects the
// final state of a completed run; if it reports item-level failures the run
// summary carries PartialFailure instead of Completed.
type Definition[S any] struct {
	Name    string
	Steps   []Step[S]
	Partial func(state S) bool
}

// Execute runs the definition's steps strictly in sequence. On a fatal step
// error it stops, preserves the state accumulated so far, and returns
// status Failed with the failing step's name and diagnostic; it never
// retries a step. The engine does not inspect ctx between steps: each step
// owns how cancellation maps to its semantics, so cleanup steps can still
// run after a caller-imposed deadline fires.
func Execute[S any](ctx context.Context, def Definition[S], initial S, logger *slog.Logger) (S, domain.PipelineRun) {
	run := domain.PipelineRun{
		ID:        uuid.New(),
		Pipeline:  def.Name,
		StartedAt: time.Now().UTC(),
		Status:    domain.RunCreated,
	}

	run.Status = domain.RunRunning
	state := initial

	for _, step := range def.Steps {
		run.Steps = append(run.Steps, step.Name)
		debug(logger, "step start", "pipeline", def.Name, "step", step.Name)

		next, err := step.Run(ctx, state)
		state = next

		if err == nil {
			continue
		}

		if errors.Is(err, ErrStop) {
			debug(logger, "pipeline stopped early", "pipeline", def.Name, "step", step.Name)
			break
		}

		run.Status = domain.RunFailed
		run.FailedStep = step.Name
		run.Err = err.Error()
		run.FinishedAt = time.Now().UTC()
		if logger != nil {
			logger.Error("pipeline failed", "pipeline", def.Name, "step", step.Name, "error", err)
		}
		return state, run
	}

	run.Status = domain.RunCompleted
	if def.Partial != nil && def.Partial(state) {
		run.Status = domain.RunPartialFailure
	}
	run.FinishedAt = time.Now().UTC()
	debug(logger, "pipeline finished", "pipeline", def.Name, "status", string(run.Status))

	return state, run
}

func debug(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}
