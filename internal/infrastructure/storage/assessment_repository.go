package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"MarketScanner/internal/domain"
)

type assessedRow struct {
	listingRow
	RuleScore         float64         `db:"rule_score"`
	Verdict           sql.NullString  `db:"verdict"`
	Confidence        sql.NullFloat64 `db:"confidence"`
	RecommendedMaxBid sql.NullFloat64 `db:"recommended_max_bid"`
	RiskReasons       pq.StringArray  `db:"risk_reasons"`
	JudgeError        string          `db:"judge_error"`
	RiskScore         float64         `db:"risk_score"`
	Actionable        bool            `db:"actionable"`
	AssessedAt        time.Time       `db:"assessed_at"`
}

func (r assessedRow) toAssessed() (domain.AssessedRecord, error) {
	rec, err := r.listingRow.toRecord()
	if err != nil {
		return domain.AssessedRecord{}, err
	}

	assessment := domain.Assessment{
		ListingKey: r.DedupKey,
		RuleScore:  r.RuleScore,
		JudgeError: r.JudgeError,
		RiskScore:  r.RiskScore,
		Actionable: r.Actionable,
		AssessedAt: r.AssessedAt,
	}
	if r.Verdict.Valid {
		assessment.Judge = &domain.JudgeVerdict{
			Verdict:           domain.Verdict(r.Verdict.String),
			Confidence:        r.Confidence.Float64,
			RecommendedMaxBid: r.RecommendedMaxBid.Float64,
			RiskReasons:       r.RiskReasons,
		}
	}

	return domain.AssessedRecord{Record: rec, Assessment: assessment}, nil
}

// SaveAssessment writes an assessment; re-assessing the same listing
// replaces the previous row rather than stacking a second one.
func (p *Postgres) SaveAssessment(ctx context.Context, a domain.Assessment) error {
	if p.db == nil {
		return nil
	}

	var (
		verdict     *string
		confidence  *float64
		maxBid      *float64
		riskReasons any
	)
	if a.Judge != nil {
		v := string(a.Judge.Verdict)
		verdict = &v
		confidence = &a.Judge.Confidence
		maxBid = &a.Judge.RecommendedMaxBid
		riskReasons = pq.Array(a.Judge.RiskReasons)
	} else {
		riskReasons = pq.Array([]string(nil))
	}

	query, args, err := p.builder.
		Insert("assessments").
		Columns("listing_key", "rule_score", "verdict", "confidence",
			"recommended_max_bid", "risk_reasons", "judge_error",
			"risk_score", "actionable", "assessed_at").
		Values(a.ListingKey, a.RuleScore, verdict, confidence,
			maxBid, riskReasons, a.JudgeError,
			a.RiskScore, a.Actionable, a.AssessedAt).
		Suffix(`ON CONFLICT (listing_key) DO UPDATE
			SET rule_score = EXCLUDED.rule_score,
			    verdict = EXCLUDED.verdict,
			    confidence = EXCLUDED.confidence,
			    recommended_max_bid = EXCLUDED.recommended_max_bid,
			    risk_reasons = EXCLUDED.risk_reasons,
			    judge_error = EXCLUDED.judge_error,
			    risk_score = EXCLUDED.risk_score,
			    actionable = EXCLUDED.actionable,
			    assessed_at = EXCLUDED.assessed_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build assessment upsert: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return classify("save assessment", err)
	}
	return nil
}

// ActionableRecords returns assessed listings ready for notification,
// highest risk first.
func (p *Postgres) ActionableRecords(ctx context.Context, minRisk float64, limit int) ([]domain.AssessedRecord, error) {
	if p.db == nil || limit <= 0 {
		return nil, nil
	}

	columns := append([]string{}, listingColumns...)
	columns = append(columns,
		"a.rule_score", "a.verdict", "a.confidence", "a.recommended_max_bid",
		"a.risk_reasons", "a.judge_error", "a.risk_score", "a.actionable", "a.assessed_at")

	builder := p.builder.
		Select(columns...).
		From("listings l").
		Join("assessments a ON a.listing_key = l.dedup_key").
		Where("a.actionable").
		OrderBy("a.risk_score DESC").
		Limit(uint64(limit))
	if minRisk > 0 {
		builder = builder.Where("a.risk_score >= ?", minRisk)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build actionable select: %w", err)
	}

	var rows []assessedRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify("select actionable", err)
	}

	records := make([]domain.AssessedRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toAssessed()
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", row.DedupKey, err)
		}
		records = append(records, rec)
	}

	return records, nil
}
