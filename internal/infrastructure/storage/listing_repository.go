package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"MarketScanner/internal/domain"
)

var listingColumns = []string{
	"l.dedup_key", "l.source_id", "l.external_id", "l.title", "l.price",
	"l.seller", "l.url", "l.ends_at", "l.bids", "l.model_key",
	"l.attributes", "l.extra", "l.fetched_at", "l.first_seen_at",
}

type listingRow struct {
	DedupKey    string     `db:"dedup_key"`
	SourceID    string     `db:"source_id"`
	ExternalID  string     `db:"external_id"`
	Title       string     `db:"title"`
	Price       float64    `db:"price"`
	Seller      string     `db:"seller"`
	URL         string     `db:"url"`
	EndsAt      *time.Time `db:"ends_at"`
	Bids        int        `db:"bids"`
	ModelKey    string     `db:"model_key"`
	Attributes  []byte     `db:"attributes"`
	Extra       []byte     `db:"extra"`
	FetchedAt   time.Time  `db:"fetched_at"`
	FirstSeenAt time.Time  `db:"first_seen_at"`
}

func (r listingRow) toRecord() (domain.ScrapeRecord, error) {
	attrs, err := unmarshalMap(r.Attributes)
	if err != nil {
		return domain.ScrapeRecord{}, fmt.Errorf("decode attributes: %w", err)
	}
	extra, err := unmarshalMap(r.Extra)
	if err != nil {
		return domain.ScrapeRecord{}, fmt.Errorf("decode extra: %w", err)
	}

	return domain.ScrapeRecord{
		NormalizedListing: domain.NormalizedListing{
			DedupKey:   r.DedupKey,
			SourceID:   r.SourceID,
			ExternalID: r.ExternalID,
			Title:      r.Title,
			Price:      r.Price,
			Seller:     r.Seller,
			URL:        r.URL,
			EndsAt:     r.EndsAt,
			Bids:       r.Bids,
			ModelKey:   r.ModelKey,
			Attributes: attrs,
			Extra:      extra,
			FetchedAt:  r.FetchedAt,
		},
		PersistedAt: r.FirstSeenAt,
	}, nil
}

// UpsertListing inserts a listing by dedup key; an existing row keeps its
// original content and only has fetched_at refreshed.
func (p *Postgres) UpsertListing(ctx context.Context, listing domain.NormalizedListing) (domain.UpsertResult, error) {
	if p.db == nil {
		return domain.UpsertUpdated, nil
	}

	attrs, err := marshalMap(listing.Attributes)
	if err != nil {
		return "", fmt.Errorf("encode attributes: %w", err)
	}
	extra, err := marshalMap(listing.Extra)
	if err != nil {
		return "", fmt.Errorf("encode extra: %w", err)
	}

	query, args, err := p.builder.
		Insert("listings").
		Columns("dedup_key", "source_id", "external_id", "title", "price",
			"seller", "url", "ends_at", "bids", "model_key",
			"attributes", "extra", "fetched_at").
		Values(listing.DedupKey, listing.SourceID, listing.ExternalID, listing.Title, listing.Price,
			listing.Seller, listing.URL, listing.EndsAt, listing.Bids, listing.ModelKey,
			attrs, extra, listing.FetchedAt).
		Suffix(`ON CONFLICT (dedup_key) DO UPDATE
			SET fetched_at = EXCLUDED.fetched_at,
			    updated_at = NOW()
			RETURNING (xmax = 0) AS inserted`).
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build upsert: %w", err)
	}

	var inserted bool
	if err := p.db.GetContext(ctx, &inserted, query, args...); err != nil {
		return "", classify("upsert listing", err)
	}

	if inserted {
		return domain.UpsertInserted, nil
	}
	return domain.UpsertUpdated, nil
}

// AppendPriceSnapshot records the observed price for history.
func (p *Postgres) AppendPriceSnapshot(ctx context.Context, listing domain.NormalizedListing) error {
	if p.db == nil {
		return nil
	}

	query, args, err := p.builder.
		Insert("price_history").
		Columns("dedup_key", "price", "observed_at").
		Values(listing.DedupKey, listing.Price, listing.FetchedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build snapshot insert: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return classify("append price snapshot", err)
	}
	return nil
}

// UnassessedRecords returns listings that have no assessment yet, plus ones
// whose previous judge call failed, oldest fetch first.
func (p *Postgres) UnassessedRecords(ctx context.Context, limit int) ([]domain.ScrapeRecord, error) {
	if p.db == nil || limit <= 0 {
		return nil, nil
	}

	query, args, err := p.builder.
		Select(listingColumns...).
		From("listings l").
		LeftJoin("assessments a ON a.listing_key = l.dedup_key").
		Where("a.listing_key IS NULL OR COALESCE(a.judge_error, '') <> ''").
		OrderBy("l.fetched_at ASC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build unassessed select: %w", err)
	}

	var rows []listingRow
	if err := p.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, classify("select unassessed", err)
	}

	records := make([]domain.ScrapeRecord, 0, len(rows))
	for _, row := range rows {
		rec, err := row.toRecord()
		if err != nil {
			return nil, fmt.Errorf("listing %s: %w", row.DedupKey, err)
		}
		records = append(records, rec)
	}

	return records, nil
}

func marshalMap(m map[string]string) ([]byte, error) {
	if m == nil {
		m = map[string]string{}
	}
	return json.Marshal(m)
}

func unmarshalMap(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return map[string]string{}, nil
	}
	var m map[string]string
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	if m == nil {
		m = map[string]string{}
	}
	return m, nil
}
