package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// LastRuns returns the recorded last-run time for each requested source
// that has one; sources never run before are simply absent.
func (p *Postgres) LastRuns(ctx context.Context, sourceIDs []string) (map[string]time.Time, error) {
	if p.db == nil || len(sourceIDs) == 0 {
		return map[string]time.Time{}, nil
	}

	query := `SELECT source_id, last_run_at FROM source_gates WHERE source_id = ANY($1)`

	rows, err := p.db.QueryxContext(ctx, query, pq.StringArray(sourceIDs))
	if err != nil {
		return nil, classify("query gate state", err)
	}

	result := make(map[string]time.Time)
	for rows.Next() {
		var (
			id string
			at time.Time
		)
		if err := rows.Scan(&id, &at); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan gate row: %w", err)
		}
		result[id] = at
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("gate rows iteration: %w", rowsErr)
	}

	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close gate rows: %w", closeErr)
	}

	return result, nil
}

// MarkRun records that a source's adapter was invoked at the given time.
func (p *Postgres) MarkRun(ctx context.Context, sourceID string, at time.Time) error {
	if p.db == nil {
		return nil
	}

	query, args, err := p.builder.
		Insert("source_gates").
		Columns("source_id", "last_run_at").
		Values(sourceID, at).
		Suffix(`ON CONFLICT (source_id) DO UPDATE
			SET last_run_at = EXCLUDED.last_run_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build gate upsert: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return classify("mark source run", err)
	}
	return nil
}
