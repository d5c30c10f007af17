package ports

import (
	"context"
	"time"

	"MarketScanner/internal/domain"
)

// GateStore keeps per-source last-run timestamps between invocations.
type GateStore interface {
	LastRuns(ctx context.Context, sourceIDs []string) (map[string]time.Time, error)
	MarkRun(ctx context.Context, sourceID string, at time.Time) error
}

// ListingStore persists normalized listings and their price history.
type ListingStore interface {
	Ping(ctx context.Context) error
	UpsertListing(ctx context.Context, listing domain.NormalizedListing) (domain.UpsertResult, error)
	AppendPriceSnapshot(ctx context.Context, listing domain.NormalizedListing) error
}

// AssessmentStore reads scoring candidates and persists their assessments.
type AssessmentStore interface {
	UnassessedRecords(ctx context.Context, limit int) ([]domain.ScrapeRecord, error)
	SaveAssessment(ctx context.Context, a domain.Assessment) error
}

// NotificationStore reads deliverable records and tracks what was already sent.
type NotificationStore interface {
	ActionableRecords(ctx context.Context, minRisk float64, limit int) ([]domain.AssessedRecord, error)
	HasNotification(ctx context.Context, listingKey string) (bool, error)
	WriteNotification(ctx context.Context, rec domain.NotificationRecord) error
}

// Judge scores a single listing through an external model API.
type Judge interface {
	Assess(ctx context.Context, rec domain.ScrapeRecord) (domain.JudgeVerdict, error)
}

// Messenger delivers formatted alerts to the operator channel.
type Messenger interface {
	Send(ctx context.Context, msg domain.Message) error
}
