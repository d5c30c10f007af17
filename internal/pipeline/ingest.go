// Package pipeline assembles the ingest, assess, and notify pipelines as
// engine definitions over the shared collaborator ports.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"MarketScanner/internal/adapter"
	"MarketScanner/internal/config"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/engine"
	"MarketScanner/internal/gate"
	"MarketScanner/internal/normalize"
	"MarketScanner/internal/ports"
)

// IngestState accumulates one ingest run. Every source processed before the
// run ends gets exactly one outcome, skips included; on cancellation the
// outcome list stays partial.
type IngestState struct {
	Now      time.Time
	Gates    map[string]time.Time
	Outcomes []domain.SourceOutcome
	Canceled bool

	ranAt map[string]time.Time
}

// IngestDeps collects the collaborators of the ingest pipeline.
type IngestDeps struct {
	Sources    []config.SourceConfig
	Registry   *adapter.Registry
	Normalizer *normalize.Normalizer
	Listings   ports.ListingStore
	Gates      ports.GateStore
	Logger     *slog.Logger
}

// Ingest scans each admitted source, normalizes what it fetched, and
// persists the survivors. One source failing never aborts the others.
type Ingest struct {
	deps IngestDeps
}

// NewIngest wires the ingest pipeline.
func NewIngest(deps IngestDeps) *Ingest {
	return &Ingest{deps: deps}
}

// Definition assembles the runnable pipeline.
func (p *Ingest) Definition() engine.Definition[*IngestState] {
	return engine.Definition[*IngestState]{
		Name: "ingest",
		Steps: []engine.Step[*IngestState]{
			{Name: "check_store", Run: p.checkStore},
			{Name: "load_gates", Run: p.loadGates},
			{Name: "scan_sources", Run: p.scanSources},
			{Name: "mark_gates", Run: p.markGates},
		},
		Partial: func(s *IngestState) bool {
			if s.Canceled {
				return true
			}
			for _, o := range s.Outcomes {
				if o.Kind == domain.OutcomeFailed {
					return true
				}
			}
			return false
		},
	}
}

func (p *Ingest) checkStore(ctx context.Context, state *IngestState) (*IngestState, error) {
	if p.deps.Listings == nil {
		return state, fmt.Errorf("listing store is not configured")
	}
	if err := p.deps.Listings.Ping(ctx); err != nil {
		return state, fmt.Errorf("check store: %w", err)
	}
	return state, nil
}

func (p *Ingest) loadGates(ctx context.Context, state *IngestState) (*IngestState, error) {
	if p.deps.Gates == nil {
		return state, fmt.Errorf("gate store is not configured")
	}

	ids := make([]string, 0, len(p.deps.Sources))
	for _, src := range p.deps.Sources {
		ids = append(ids, src.ID)
	}

	gates, err := p.deps.Gates.LastRuns(ctx, ids)
	if err != nil {
		return state, fmt.Errorf("load gate state: %w", err)
	}

	state.Gates = gates
	state.ranAt = map[string]time.Time{}
	return state, nil
}

func (p *Ingest) scanSources(ctx context.Context, state *IngestState) (*IngestState, error) {
	for _, src := range p.deps.Sources {
		// Cancellation stops the iteration, not the run: already-persisted
		// records stay, the outcome list stays partial, and mark_gates still
		// writes the gates of sources that did run.
		if ctx.Err() != nil {
			state.Canceled = true
			warn(p.deps.Logger, "run canceled, sources remaining", "next_source", src.ID)
			break
		}

		outcome, fatal := p.scanOne(ctx, state, src)
		state.Outcomes = append(state.Outcomes, outcome)
		if fatal != nil {
			return state, fatal
		}
	}

	return state, nil
}

// scanOne handles a single source end to end. A non-nil fatal error means
// the store became unreachable and the whole run must stop.
func (p *Ingest) scanOne(ctx context.Context, state *IngestState, src config.SourceConfig) (domain.SourceOutcome, error) {
	started := time.Now()
	outcome := domain.SourceOutcome{SourceID: src.ID}

	gateState := domain.SourceGateState{SourceID: src.ID}
	if last, ok := state.Gates[src.ID]; ok {
		gateState.LastRunAt = &last
	}

	decision := gate.Decide(state.Now, gateState, src.MinInterval.Std())
	if !decision.Run {
		outcome.Kind = domain.OutcomeSkipped
		outcome.Reason = decision.Reason
		outcome.NextAllowedAt = &decision.NextAllowedAt
		outcome.Elapsed = time.Since(started)
		debug(p.deps.Logger, "source gated", "source", src.ID, "next_allowed_at", decision.NextAllowedAt)
		return outcome, nil
	}

	adapterImpl, err := p.deps.Registry.Resolve(src.Adapter)
	if err != nil {
		outcome.Kind = domain.OutcomeFailed
		outcome.Reason = err.Error()
		outcome.Elapsed = time.Since(started)
		return outcome, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, src.Timeout.Std())
	raws, err := adapterImpl.Fetch(fetchCtx, adapter.Request{
		SourceID:  src.ID,
		URL:       src.URL,
		Selectors: src.Selectors,
		Options:   src.Options,
	})
	cancel()

	// The gate only advances once the adapter call has returned with a
	// definite answer. A timed-out call is still pending from the gate's
	// point of view, so the source stays eligible for the next trigger.
	if !fetchTimedOut(err) {
		state.ranAt[src.ID] = state.Now
	}

	if err != nil {
		outcome.Kind = domain.OutcomeFailed
		outcome.Reason = err.Error()
		outcome.Elapsed = time.Since(started)
		warn(p.deps.Logger, "source fetch failed", "source", src.ID, "error", err)
		return outcome, nil
	}

	outcome.Fetched = len(raws)

	res := p.deps.Normalizer.Batch(raws)
	outcome.Normalized = len(res.Listings)
	outcome.NormFailures = len(res.Failures)
	for _, failure := range res.Failures {
		warn(p.deps.Logger, "listing rejected", "source", src.ID, "external_id", failure.ExternalID, "error", failure.Err)
	}

	for _, listing := range res.Listings {
		result, err := p.deps.Listings.UpsertListing(ctx, listing)
		if err != nil {
			if storeUnreachable(err) {
				outcome.Kind = domain.OutcomeFailed
				outcome.Reason = err.Error()
				outcome.Elapsed = time.Since(started)
				return outcome, fmt.Errorf("source %s: %w", src.ID, err)
			}
			outcome.PersistFailures++
			warn(p.deps.Logger, "listing upsert failed", "source", src.ID, "dedup_key", listing.DedupKey, "error", err)
			continue
		}

		switch result {
		case domain.UpsertInserted:
			outcome.Inserted++
		case domain.UpsertUpdated:
			outcome.Updated++
		}

		if err := p.deps.Listings.AppendPriceSnapshot(ctx, listing); err != nil {
			warn(p.deps.Logger, "price snapshot failed", "source", src.ID, "dedup_key", listing.DedupKey, "error", err)
		}
	}

	outcome.Kind = domain.OutcomeRan
	outcome.Reason = decision.Reason
	outcome.Elapsed = time.Since(started)
	debug(p.deps.Logger, "source scanned",
		"source", src.ID,
		"fetched", outcome.Fetched,
		"inserted", outcome.Inserted,
		"updated", outcome.Updated)

	return outcome, nil
}

// markGates persists last-run times for sources whose adapter actually ran.
// It deliberately survives caller cancellation: a source that ran before the
// deadline fired must still be marked.
func (p *Ingest) markGates(ctx context.Context, state *IngestState) (*IngestState, error) {
	markCtx := context.WithoutCancel(ctx)

	for _, src := range p.deps.Sources {
		at, ok := state.ranAt[src.ID]
		if !ok {
			continue
		}
		if err := p.deps.Gates.MarkRun(markCtx, src.ID, at); err != nil {
			return state, fmt.Errorf("mark source %s: %w", src.ID, err)
		}
	}

	return state, nil
}

func fetchTimedOut(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ae *domain.AdapterError
	return errors.As(err, &ae) && ae.Kind == domain.AdapterTimeout
}

func storeUnreachable(err error) bool {
	var perr *domain.PersistenceError
	return errors.As(err, &perr) && perr.Unreachable
}

func debug(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Debug(msg, args...)
	}
}

func warn(logger *slog.Logger, msg string, args ...any) {
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
