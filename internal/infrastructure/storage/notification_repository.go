package storage

import (
	"context"
	"fmt"

	"MarketScanner/internal/domain"
)

// HasNotification reports whether a notification record exists for the
// listing; the notify pipeline checks this before sending.
func (p *Postgres) HasNotification(ctx context.Context, listingKey string) (bool, error) {
	if p.db == nil {
		return false, nil
	}

	query := `SELECT EXISTS (SELECT 1 FROM notifications WHERE listing_key = $1)`

	var exists bool
	if err := p.db.GetContext(ctx, &exists, query, listingKey); err != nil {
		return false, classify("check notification", err)
	}
	return exists, nil
}

// WriteNotification records a delivered notification. Writing the same
// listing twice is a no-op.
func (p *Postgres) WriteNotification(ctx context.Context, rec domain.NotificationRecord) error {
	if p.db == nil {
		return nil
	}

	query, args, err := p.builder.
		Insert("notifications").
		Columns("listing_key", "notified_at").
		Values(rec.ListingKey, rec.NotifiedAt).
		Suffix(`ON CONFLICT (listing_key) DO NOTHING`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build notification insert: %w", err)
	}

	if _, err := p.db.ExecContext(ctx, query, args...); err != nil {
		return classify("write notification", err)
	}
	return nil
}
