package domain

import "time"

// RawListing is one record as fetched from a marketplace source, before
// normalization. Attribute keys are source-specific and vary wildly.
type RawListing struct {
	SourceID   string
	ExternalID string
	FetchedAt  time.Time
	Attributes map[string]string
}

// NormalizedListing is a canonicalized listing ready for persistence.
type NormalizedListing struct {
	DedupKey   string
	SourceID   string
	ExternalID string
	Title      string
	Price      float64
	Seller     string
	URL        string
	EndsAt     *time.Time
	Bids       int
	ModelKey   string
	Attributes map[string]string
	Extra      map[string]string
	FetchedAt  time.Time
}

// ScrapeRecord is a NormalizedListing as persisted by the store.
type ScrapeRecord struct {
	NormalizedListing
	PersistedAt time.Time
}

// UpsertResult tells whether an upsert created a new row or touched an
// existing one.
type UpsertResult string

const (
	UpsertInserted UpsertResult = "inserted"
	UpsertUpdated  UpsertResult = "updated"
)

// SourceGateState is the admission-control memory for one source.
type SourceGateState struct {
	SourceID  string
	LastRunAt *time.Time
}

// Verdict is the judge's call on one listing.
type Verdict string

const (
	VerdictBuy    Verdict = "BUY"
	VerdictSkip   Verdict = "SKIP"
	VerdictReview Verdict = "REVIEW"
)

// JudgeVerdict carries the judge collaborator's full answer.
type JudgeVerdict struct {
	Verdict           Verdict
	Confidence        float64
	RecommendedMaxBid float64
	RiskReasons       []string
}

// Assessment is the scoring result for one persisted listing. Re-assessment
// overwrites the previous row for the same listing key.
type Assessment struct {
	ListingKey string
	RuleScore  float64
	Judge      *JudgeVerdict
	JudgeError string
	RiskScore  float64
	Actionable bool
	AssessedAt time.Time
}

// AssessedRecord pairs a persisted listing with its assessment.
type AssessedRecord struct {
	Record     ScrapeRecord
	Assessment Assessment
}

// NotificationRecord proves a listing was notified; written at most once.
type NotificationRecord struct {
	ListingKey string
	NotifiedAt time.Time
}

// Message is one formatted notification ready for the messaging collaborator.
type Message struct {
	ListingKey string
	Text       string
}
