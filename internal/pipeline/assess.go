package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"MarketScanner/internal/config"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/engine"
	"MarketScanner/internal/ports"
)

// AssessState accumulates one assess run.
type AssessState struct {
	Now        time.Time
	Candidates []domain.ScrapeRecord
	Pending    []PendingAssessment
	Outcomes   []domain.ItemOutcome
	JudgeCalls int
}

// PendingAssessment pairs a candidate with its assessment under construction.
type PendingAssessment struct {
	Record     domain.ScrapeRecord
	Assessment domain.Assessment
}

// AssessDeps collects the collaborators of the assess pipeline.
type AssessDeps struct {
	Store  ports.AssessmentStore
	Judge  ports.Judge
	Cfg    config.AssessConfig
	Logger *slog.Logger
}

// Assess scores stored listings: a cheap rule stage for every candidate,
// the costly judge only for candidates whose rule score clears the
// threshold.
type Assess struct {
	deps AssessDeps
}

// NewAssess wires the assess pipeline.
func NewAssess(deps AssessDeps) *Assess {
	return &Assess{deps: deps}
}

// Definition assembles the runnable pipeline.
func (p *Assess) Definition() engine.Definition[*AssessState] {
	return engine.Definition[*AssessState]{
		Name: "assess",
		Steps: []engine.Step[*AssessState]{
			{Name: "load_candidates", Run: p.loadCandidates},
			{Name: "rule_scores", Run: p.ruleScores},
			{Name: "judge_verdicts", Run: p.judgeVerdicts},
			{Name: "save_assessments", Run: p.saveAssessments},
		},
		Partial: func(s *AssessState) bool {
			for _, o := range s.Outcomes {
				if o.Status == domain.ItemFailed {
					return true
				}
			}
			return false
		},
	}
}

func (p *Assess) loadCandidates(ctx context.Context, state *AssessState) (*AssessState, error) {
	if p.deps.Store == nil {
		return state, fmt.Errorf("assessment store is not configured")
	}

	candidates, err := p.deps.Store.UnassessedRecords(ctx, p.deps.Cfg.BatchLimit)
	if err != nil {
		return state, fmt.Errorf("load candidates: %w", err)
	}

	if len(candidates) == 0 {
		debug(p.deps.Logger, "no candidates to assess")
		return state, engine.ErrStop
	}

	state.Candidates = candidates
	return state, nil
}

func (p *Assess) ruleScores(_ context.Context, state *AssessState) (*AssessState, error) {
	for _, rec := range state.Candidates {
		score := ruleScore(rec, state.Now, p.deps.Cfg)
		state.Pending = append(state.Pending, PendingAssessment{
			Record: rec,
			Assessment: domain.Assessment{
				ListingKey: rec.DedupKey,
				RuleScore:  score,
				AssessedAt: state.Now,
			},
		})
	}
	return state, nil
}

func (p *Assess) judgeVerdicts(ctx context.Context, state *AssessState) (*AssessState, error) {
	if p.deps.Judge == nil {
		debug(p.deps.Logger, "judge not configured, rule scores only")
		return state, nil
	}

	for i := range state.Pending {
		pending := &state.Pending[i]
		if pending.Assessment.RuleScore < p.deps.Cfg.JudgeThreshold {
			continue
		}

		verdict, err := p.deps.Judge.Assess(ctx, pending.Record)
		state.JudgeCalls++
		if err != nil {
			pending.Assessment.JudgeError = err.Error()
			warn(p.deps.Logger, "judge call failed", "listing", pending.Record.DedupKey, "error", err)
			continue
		}

		pending.Assessment.Judge = &verdict
	}

	return state, nil
}

func (p *Assess) saveAssessments(ctx context.Context, state *AssessState) (*AssessState, error) {
	for i := range state.Pending {
		pending := &state.Pending[i]
		a := &pending.Assessment

		a.RiskScore = combineRisk(a.RuleScore, a.Judge)
		a.Actionable = a.RiskScore >= p.deps.Cfg.ActionableThreshold &&
			(a.Judge == nil || a.Judge.Verdict != domain.VerdictSkip)

		if err := p.deps.Store.SaveAssessment(ctx, *a); err != nil {
			if storeUnreachable(err) {
				return state, fmt.Errorf("save assessment %s: %w", a.ListingKey, err)
			}
			state.Outcomes = append(state.Outcomes, domain.ItemOutcome{
				ListingKey: a.ListingKey,
				Status:     domain.ItemFailed,
				Reason:     err.Error(),
			})
			warn(p.deps.Logger, "assessment save failed", "listing", a.ListingKey, "error", err)
			continue
		}

		status := domain.ItemAssessed
		if a.Judge != nil {
			status = domain.ItemJudged
		}
		state.Outcomes = append(state.Outcomes, domain.ItemOutcome{
			ListingKey: a.ListingKey,
			Status:     status,
		})
	}

	return state, nil
}

// ruleScore combines a margin signal against the model's reference value,
// an urgency signal from the auction end time, and a penalty for contested
// listings, clamped into [0, 1].
func ruleScore(rec domain.ScrapeRecord, now time.Time, cfg config.AssessConfig) float64 {
	var margin float64
	if target, ok := cfg.Targets[rec.ModelKey]; ok && target > 0 && rec.Price < target {
		margin = clamp01((target - rec.Price) / target)
	}

	var urgency float64
	if rec.EndsAt != nil {
		remaining := rec.EndsAt.Sub(now)
		if remaining > 0 && remaining < 24*time.Hour {
			urgency = clamp01(1 - remaining.Hours()/24)
		}
	}

	bidsPenalty := clamp01(float64(rec.Bids) / 10)

	w := cfg.Weights
	return clamp01(margin*w.Margin + urgency*w.Urgency - bidsPenalty*w.Bids)
}

// combineRisk folds the judge's verdict into the rule score. Without a
// verdict the rule score stands alone.
func combineRisk(ruleScore float64, judge *domain.JudgeVerdict) float64 {
	if judge == nil {
		return ruleScore
	}

	switch judge.Verdict {
	case domain.VerdictBuy:
		return clamp01((ruleScore + judge.Confidence) / 2)
	case domain.VerdictReview:
		return clamp01(ruleScore / 2)
	default:
		return 0
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
