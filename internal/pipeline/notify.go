package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"MarketScanner/internal/config"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/engine"
	"MarketScanner/internal/ports"
)

// notifyFetchLimit bounds how many actionable records one run considers;
// the per-run send cap applies after filtering.
const notifyFetchLimit = 100

// NotifyState accumulates one notify run.
type NotifyState struct {
	Now        time.Time
	Candidates []domain.AssessedRecord
	Outcomes   []domain.ItemOutcome
	Sent       int
}

// NotifyDeps collects the collaborators of the notify pipeline.
type NotifyDeps struct {
	Store     ports.NotificationStore
	Messenger ports.Messenger
	Cfg       config.NotifyConfig
	Logger    *slog.Logger
}

// Notify delivers alerts for actionable listings, at most once per listing.
type Notify struct {
	deps NotifyDeps
}

// NewNotify wires the notify pipeline.
func NewNotify(deps NotifyDeps) *Notify {
	return &Notify{deps: deps}
}

// Definition assembles the runnable pipeline.
func (p *Notify) Definition() engine.Definition[*NotifyState] {
	return engine.Definition[*NotifyState]{
		Name: "notify",
		Steps: []engine.Step[*NotifyState]{
			{Name: "load_actionable", Run: p.loadActionable},
			{Name: "filter_candidates", Run: p.filterCandidates},
			{Name: "deliver", Run: p.deliver},
		},
		Partial: func(s *NotifyState) bool {
			for _, o := range s.Outcomes {
				if o.Status == domain.ItemFailed {
					return true
				}
			}
			return false
		},
	}
}

func (p *Notify) loadActionable(ctx context.Context, state *NotifyState) (*NotifyState, error) {
	if p.deps.Store == nil {
		return state, fmt.Errorf("notification store is not configured")
	}

	candidates, err := p.deps.Store.ActionableRecords(ctx, p.deps.Cfg.MinRisk, notifyFetchLimit)
	if err != nil {
		return state, fmt.Errorf("load actionable: %w", err)
	}

	if len(candidates) == 0 {
		debug(p.deps.Logger, "nothing actionable to notify")
		return state, engine.ErrStop
	}

	state.Candidates = candidates
	return state, nil
}

func (p *Notify) filterCandidates(_ context.Context, state *NotifyState) (*NotifyState, error) {
	allowed := map[string]struct{}{}
	for _, id := range p.deps.Cfg.Sources {
		allowed[id] = struct{}{}
	}

	kept := state.Candidates[:0]
	for _, cand := range state.Candidates {
		if len(allowed) > 0 {
			if _, ok := allowed[cand.Record.SourceID]; !ok {
				state.Outcomes = append(state.Outcomes, domain.ItemOutcome{
					ListingKey: cand.Record.DedupKey,
					Status:     domain.ItemSkipped,
					Reason:     "source not in allowlist",
				})
				continue
			}
		}
		if p.deps.Cfg.MaxPrice > 0 && cand.Record.Price > p.deps.Cfg.MaxPrice {
			state.Outcomes = append(state.Outcomes, domain.ItemOutcome{
				ListingKey: cand.Record.DedupKey,
				Status:     domain.ItemSkipped,
				Reason:     "price above limit",
			})
			continue
		}
		kept = append(kept, cand)
	}

	state.Candidates = kept
	return state, nil
}

func (p *Notify) deliver(ctx context.Context, state *NotifyState) (*NotifyState, error) {
	if p.deps.Messenger == nil {
		return state, fmt.Errorf("messenger is not configured")
	}

	for _, cand := range state.Candidates {
		key := cand.Record.DedupKey

		if p.deps.Cfg.MaxPerRun > 0 && state.Sent >= p.deps.Cfg.MaxPerRun {
			state.Outcomes = append(state.Outcomes, domain.ItemOutcome{
				ListingKey: key,
				Status:     domain.ItemSkipped,
				Reason:     "per-run cap reached",
			})
			continue
		}

		sent, err := p.deps.Store.HasNotification(ctx, key)
		if err != nil {
			if storeUnreachable(err) {
				return state, fmt.Errorf("check notification %s: %w", key, err)
			}
			state.Outcomes = append(state.Outcomes, domain.ItemOutcome{
				ListingKey: key,
				Status:     domain.ItemFailed,
				Reason:     err.Error(),
			})
			continue
		}
		if sent {
			state.Outcomes = append(state.Outcomes, domain.ItemOutcome{
				ListingKey: key,
				Status:     domain.ItemSkipped,
				Reason:     "already notified",
			})
			continue
		}

		msg := domain.Message{ListingKey: key, Text: buildAlertMessage(cand)}
		if err := p.deps.Messenger.Send(ctx, msg); err != nil {
			state.Outcomes = append(state.Outcomes, domain.ItemOutcome{
				ListingKey: key,
				Status:     domain.ItemFailed,
				Reason:     err.Error(),
			})
			warn(p.deps.Logger, "alert delivery failed", "listing", key, "error", err)
			continue
		}

		record := domain.NotificationRecord{ListingKey: key, NotifiedAt: state.Now}
		if err := p.deps.Store.WriteNotification(ctx, record); err != nil {
			if storeUnreachable(err) {
				return state, fmt.Errorf("record notification %s: %w", key, err)
			}
			state.Outcomes = append(state.Outcomes, domain.ItemOutcome{
				ListingKey: key,
				Status:     domain.ItemFailed,
				Reason:     err.Error(),
			})
			warn(p.deps.Logger, "notification record failed", "listing", key, "error", err)
			continue
		}

		state.Sent++
		state.Outcomes = append(state.Outcomes, domain.ItemOutcome{
			ListingKey: key,
			Status:     domain.ItemNotified,
		})
		debug(p.deps.Logger, "alert sent", "listing", key, "risk", cand.Assessment.RiskScore)
	}

	return state, nil
}

func buildAlertMessage(cand domain.AssessedRecord) string {
	rec := cand.Record
	a := cand.Assessment

	var b strings.Builder
	fmt.Fprintf(&b, "*%s*\n", rec.Title)
	fmt.Fprintf(&b, "Price: %.2f", rec.Price)
	if rec.Bids > 0 {
		fmt.Fprintf(&b, " (%d bids)", rec.Bids)
	}
	fmt.Fprintf(&b, "\nRisk: %.2f", a.RiskScore)
	if a.Judge != nil {
		fmt.Fprintf(&b, "\nVerdict: %s (%.2f)", a.Judge.Verdict, a.Judge.Confidence)
		if a.Judge.RecommendedMaxBid > 0 {
			fmt.Fprintf(&b, "\nMax bid: %.2f", a.Judge.RecommendedMaxBid)
		}
		if len(a.Judge.RiskReasons) > 0 {
			fmt.Fprintf(&b, "\nRisks: %s", strings.Join(a.Judge.RiskReasons, "; "))
		}
	}
	if rec.EndsAt != nil {
		fmt.Fprintf(&b, "\nEnds: %s", rec.EndsAt.Format(time.RFC3339))
	}
	if rec.URL != "" {
		fmt.Fprintf(&b, "\n%s", rec.URL)
	}

	return b.String()
}
