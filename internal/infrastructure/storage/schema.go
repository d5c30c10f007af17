package storage

import "context"

const schemaDDL = `
CREATE TABLE IF NOT EXISTS listings (
    dedup_key     TEXT PRIMARY KEY,
    source_id     TEXT NOT NULL,
    external_id   TEXT NOT NULL DEFAULT '',
    title         TEXT NOT NULL,
    price         DOUBLE PRECISION NOT NULL,
    seller        TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL DEFAULT '',
    ends_at       TIMESTAMPTZ,
    bids          INTEGER NOT NULL DEFAULT 0,
    model_key     TEXT NOT NULL DEFAULT '',
    attributes    JSONB NOT NULL DEFAULT '{}',
    extra         JSONB NOT NULL DEFAULT '{}',
    fetched_at    TIMESTAMPTZ NOT NULL,
    first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_listings_source ON listings (source_id);
CREATE INDEX IF NOT EXISTS idx_listings_fetched_at ON listings (fetched_at);
CREATE INDEX IF NOT EXISTS idx_listings_model_key ON listings (model_key) WHERE model_key <> '';

CREATE TABLE IF NOT EXISTS price_history (
    id          BIGSERIAL PRIMARY KEY,
    dedup_key   TEXT NOT NULL REFERENCES listings (dedup_key) ON DELETE CASCADE,
    price       DOUBLE PRECISION NOT NULL,
    observed_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_price_history_key ON price_history (dedup_key, observed_at);

CREATE TABLE IF NOT EXISTS assessments (
    listing_key         TEXT PRIMARY KEY REFERENCES listings (dedup_key) ON DELETE CASCADE,
    rule_score          DOUBLE PRECISION NOT NULL,
    verdict             TEXT,
    confidence          DOUBLE PRECISION,
    recommended_max_bid DOUBLE PRECISION,
    risk_reasons        TEXT[] NOT NULL DEFAULT '{}',
    judge_error         TEXT NOT NULL DEFAULT '',
    risk_score          DOUBLE PRECISION NOT NULL,
    actionable          BOOLEAN NOT NULL DEFAULT FALSE,
    assessed_at         TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assessments_actionable ON assessments (risk_score DESC) WHERE actionable;

CREATE TABLE IF NOT EXISTS notifications (
    listing_key TEXT PRIMARY KEY REFERENCES listings (dedup_key) ON DELETE CASCADE,
    notified_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS source_gates (
    source_id   TEXT PRIMARY KEY,
    last_run_at TIMESTAMPTZ NOT NULL
);
`

// EnsureSchema creates the tables and indexes if they do not exist yet.
// Safe to run on every start.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if p.db == nil {
		return nil
	}
	if _, err := p.db.ExecContext(ctx, schemaDDL); err != nil {
		return classify("ensure schema", err)
	}
	return nil
}
