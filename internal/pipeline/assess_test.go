package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"MarketScanner/internal/config"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/engine"
)

func assessCfg() config.AssessConfig {
	return config.AssessConfig{
		BatchLimit:          10,
		JudgeThreshold:      0.6,
		ActionableThreshold: 0.7,
		Weights:             config.WeightsConfig{Margin: 1},
		Targets:             map[string]float64{"honda_cbr125r": 2000},
	}
}

func candidate(key string, price float64) domain.ScrapeRecord {
	return domain.ScrapeRecord{
		NormalizedListing: domain.NormalizedListing{
			DedupKey: key,
			SourceID: "src-b",
			Title:    "Honda CBR125R",
			Price:    price,
			ModelKey: "honda_cbr125r",
		},
	}
}

func TestAssessJudgeOnlyAboveThreshold(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	store := newFakeStore()
	store.unassessed = []domain.ScrapeRecord{
		candidate("cheap", 500),     // margin 0.75, above threshold
		candidate("marginal", 1900), // margin 0.05, below threshold
	}

	judge := &fakeJudge{verdict: domain.JudgeVerdict{
		Verdict:           domain.VerdictBuy,
		Confidence:        0.9,
		RecommendedMaxBid: 900,
	}}

	p := NewAssess(AssessDeps{Store: store, Judge: judge, Cfg: assessCfg()})

	state, run := engine.Execute(context.Background(), p.Definition(), &AssessState{Now: now}, nil)

	require.Equal(t, domain.RunCompleted, run.Status)
	require.Equal(t, 1, judge.calls)
	require.Equal(t, 1, state.JudgeCalls)

	require.Len(t, store.saved, 2)

	judged := store.saved["cheap"]
	require.NotNil(t, judged.Judge)
	require.Equal(t, domain.VerdictBuy, judged.Judge.Verdict)
	require.InDelta(t, (0.75+0.9)/2, judged.RiskScore, 1e-9)
	require.True(t, judged.Actionable)

	ruleOnly := store.saved["marginal"]
	require.Nil(t, ruleOnly.Judge)
	require.InDelta(t, 0.05, ruleOnly.RiskScore, 1e-9)
	require.False(t, ruleOnly.Actionable)

	require.Len(t, state.Outcomes, 2)
	require.Equal(t, domain.ItemJudged, state.Outcomes[0].Status)
	require.Equal(t, domain.ItemAssessed, state.Outcomes[1].Status)
}

func TestAssessNoJudgeCallsBelowThreshold(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.unassessed = []domain.ScrapeRecord{
		candidate("a", 1900),
		candidate("b", 1950),
		candidate("c", 1999),
	}

	judge := &fakeJudge{}

	p := NewAssess(AssessDeps{Store: store, Judge: judge, Cfg: assessCfg()})

	_, run := engine.Execute(context.Background(), p.Definition(), &AssessState{Now: time.Now().UTC()}, nil)

	require.Equal(t, domain.RunCompleted, run.Status)
	require.Equal(t, 0, judge.calls)
	require.Len(t, store.saved, 3)
}

func TestAssessJudgeFailureKeepsRuleScore(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.unassessed = []domain.ScrapeRecord{candidate("cheap", 500)}

	judge := &fakeJudge{err: errors.New("judge error 503: model overloaded")}

	p := NewAssess(AssessDeps{Store: store, Judge: judge, Cfg: assessCfg()})

	state, run := engine.Execute(context.Background(), p.Definition(), &AssessState{Now: time.Now().UTC()}, nil)

	require.Equal(t, domain.RunCompleted, run.Status)
	require.Equal(t, 1, judge.calls)

	saved := store.saved["cheap"]
	require.Nil(t, saved.Judge)
	require.Contains(t, saved.JudgeError, "model overloaded")
	require.InDelta(t, 0.75, saved.RiskScore, 1e-9)

	require.Equal(t, domain.ItemAssessed, state.Outcomes[0].Status)
}

func TestAssessSkipVerdictNeverActionable(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.unassessed = []domain.ScrapeRecord{candidate("cheap", 100)}

	judge := &fakeJudge{verdict: domain.JudgeVerdict{Verdict: domain.VerdictSkip, Confidence: 0.95}}

	p := NewAssess(AssessDeps{Store: store, Judge: judge, Cfg: assessCfg()})

	_, run := engine.Execute(context.Background(), p.Definition(), &AssessState{Now: time.Now().UTC()}, nil)

	require.Equal(t, domain.RunCompleted, run.Status)

	saved := store.saved["cheap"]
	require.Equal(t, 0.0, saved.RiskScore)
	require.False(t, saved.Actionable)
}

func TestAssessNoCandidatesStopsEarly(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	judge := &fakeJudge{}

	p := NewAssess(AssessDeps{Store: store, Judge: judge, Cfg: assessCfg()})

	state, run := engine.Execute(context.Background(), p.Definition(), &AssessState{Now: time.Now().UTC()}, nil)

	require.Equal(t, domain.RunCompleted, run.Status)
	require.Equal(t, []string{"load_candidates"}, run.Steps)
	require.Equal(t, 0, judge.calls)
	require.Empty(t, state.Outcomes)
}

func TestAssessReassessmentOverwrites(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.unassessed = []domain.ScrapeRecord{candidate("cheap", 500)}
	store.saved["cheap"] = domain.Assessment{
		ListingKey: "cheap",
		RuleScore:  0.1,
		JudgeError: "judge error 503: model overloaded",
	}

	judge := &fakeJudge{verdict: domain.JudgeVerdict{Verdict: domain.VerdictBuy, Confidence: 0.8}}

	p := NewAssess(AssessDeps{Store: store, Judge: judge, Cfg: assessCfg()})

	_, run := engine.Execute(context.Background(), p.Definition(), &AssessState{Now: time.Now().UTC()}, nil)

	require.Equal(t, domain.RunCompleted, run.Status)
	require.Len(t, store.saved, 1)

	saved := store.saved["cheap"]
	require.Empty(t, saved.JudgeError)
	require.NotNil(t, saved.Judge)
	require.InDelta(t, 0.75, saved.RuleScore, 1e-9)
}

func TestAssessUnreachableStoreAbortsRun(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.unassessed = []domain.ScrapeRecord{candidate("cheap", 500)}
	store.saveErr["cheap"] = &domain.PersistenceError{Op: "save assessment", Unreachable: true, Err: errors.New("connection refused")}

	p := NewAssess(AssessDeps{Store: store, Judge: &fakeJudge{verdict: domain.JudgeVerdict{Verdict: domain.VerdictBuy}}, Cfg: assessCfg()})

	_, run := engine.Execute(context.Background(), p.Definition(), &AssessState{Now: time.Now().UTC()}, nil)

	require.Equal(t, domain.RunFailed, run.Status)
	require.Equal(t, "save_assessments", run.FailedStep)
}

func TestRuleScore(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cfg := config.AssessConfig{
		Weights: config.WeightsConfig{Margin: 0.6, Urgency: 0.3, Bids: 0.5},
		Targets: map[string]float64{"honda_cbr125r": 2000},
	}

	endsSoon := now.Add(6 * time.Hour)

	cases := []struct {
		name string
		rec  domain.ScrapeRecord
		want float64
	}{
		{
			name: "margin only",
			rec:  candidate("a", 1000),
			want: 0.5 * 0.6,
		},
		{
			name: "unknown model has no margin",
			rec: domain.ScrapeRecord{NormalizedListing: domain.NormalizedListing{
				ModelKey: "mystery", Price: 10,
			}},
			want: 0,
		},
		{
			name: "urgency added when ending soon",
			rec: func() domain.ScrapeRecord {
				r := candidate("a", 1000)
				r.EndsAt = &endsSoon
				return r
			}(),
			want: 0.5*0.6 + 0.75*0.3,
		},
		{
			name: "bids pull the score down",
			rec: func() domain.ScrapeRecord {
				r := candidate("a", 1000)
				r.Bids = 10
				return r
			}(),
			want: 0.5*0.6 - 0.5,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := ruleScore(tc.rec, now, cfg)
			require.InDelta(t, clamp01(tc.want), got, 1e-9)
		})
	}
}

func TestCombineRisk(t *testing.T) {
	t.Parallel()

	require.Equal(t, 0.4, combineRisk(0.4, nil))
	require.InDelta(t, 0.65, combineRisk(0.4, &domain.JudgeVerdict{Verdict: domain.VerdictBuy, Confidence: 0.9}), 1e-9)
	require.InDelta(t, 0.2, combineRisk(0.4, &domain.JudgeVerdict{Verdict: domain.VerdictReview, Confidence: 0.9}), 1e-9)
	require.Equal(t, 0.0, combineRisk(0.9, &domain.JudgeVerdict{Verdict: domain.VerdictSkip, Confidence: 0.9}))
}
