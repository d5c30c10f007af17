package pipeline

import (
	"context"
	"time"

	"MarketScanner/internal/adapter"
	"MarketScanner/internal/domain"
)

type fakeAdapter struct {
	name  string
	fetch func(ctx context.Context, req adapter.Request) ([]domain.RawListing, error)
}

func (f *fakeAdapter) Name() string {
	return f.name
}

func (f *fakeAdapter) Fetch(ctx context.Context, req adapter.Request) ([]domain.RawListing, error) {
	return f.fetch(ctx, req)
}

// fakeStore implements every persistence port in memory.
type fakeStore struct {
	pingErr error

	gates   map[string]time.Time
	gateErr error
	marked  map[string]time.Time
	markErr error

	upserted  []domain.NormalizedListing
	existing  map[string]bool
	upsertErr map[string]error
	snapshots []string

	unassessed    []domain.ScrapeRecord
	unassessedErr error
	saved         map[string]domain.Assessment
	saveErr       map[string]error

	actionable    []domain.AssessedRecord
	actionableErr error
	notified      map[string]bool
	hasErr        error
	written       []domain.NotificationRecord
	writeErr      error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		gates:     map[string]time.Time{},
		marked:    map[string]time.Time{},
		existing:  map[string]bool{},
		upsertErr: map[string]error{},
		saved:     map[string]domain.Assessment{},
		saveErr:   map[string]error{},
		notified:  map[string]bool{},
	}
}

func (s *fakeStore) Ping(context.Context) error {
	return s.pingErr
}

func (s *fakeStore) LastRuns(_ context.Context, sourceIDs []string) (map[string]time.Time, error) {
	if s.gateErr != nil {
		return nil, s.gateErr
	}
	out := map[string]time.Time{}
	for _, id := range sourceIDs {
		if at, ok := s.gates[id]; ok {
			out[id] = at
		}
	}
	return out, nil
}

func (s *fakeStore) MarkRun(_ context.Context, sourceID string, at time.Time) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.marked[sourceID] = at
	s.gates[sourceID] = at
	return nil
}

func (s *fakeStore) UpsertListing(_ context.Context, listing domain.NormalizedListing) (domain.UpsertResult, error) {
	if err := s.upsertErr[listing.DedupKey]; err != nil {
		return "", err
	}

	s.upserted = append(s.upserted, listing)
	if s.existing[listing.DedupKey] {
		return domain.UpsertUpdated, nil
	}
	s.existing[listing.DedupKey] = true
	return domain.UpsertInserted, nil
}

func (s *fakeStore) AppendPriceSnapshot(_ context.Context, listing domain.NormalizedListing) error {
	s.snapshots = append(s.snapshots, listing.DedupKey)
	return nil
}

func (s *fakeStore) UnassessedRecords(_ context.Context, limit int) ([]domain.ScrapeRecord, error) {
	if s.unassessedErr != nil {
		return nil, s.unassessedErr
	}
	if limit > 0 && len(s.unassessed) > limit {
		return s.unassessed[:limit], nil
	}
	return s.unassessed, nil
}

func (s *fakeStore) SaveAssessment(_ context.Context, a domain.Assessment) error {
	if err := s.saveErr[a.ListingKey]; err != nil {
		return err
	}
	s.saved[a.ListingKey] = a
	return nil
}

func (s *fakeStore) ActionableRecords(_ context.Context, minRisk float64, limit int) ([]domain.AssessedRecord, error) {
	if s.actionableErr != nil {
		return nil, s.actionableErr
	}
	out := make([]domain.AssessedRecord, 0, len(s.actionable))
	for _, rec := range s.actionable {
		if rec.Assessment.RiskScore >= minRisk {
			out = append(out, rec)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) HasNotification(_ context.Context, listingKey string) (bool, error) {
	if s.hasErr != nil {
		return false, s.hasErr
	}
	return s.notified[listingKey], nil
}

func (s *fakeStore) WriteNotification(_ context.Context, rec domain.NotificationRecord) error {
	if s.writeErr != nil {
		return s.writeErr
	}
	s.written = append(s.written, rec)
	s.notified[rec.ListingKey] = true
	return nil
}

type fakeJudge struct {
	calls   int
	verdict domain.JudgeVerdict
	err     error
}

func (j *fakeJudge) Assess(context.Context, domain.ScrapeRecord) (domain.JudgeVerdict, error) {
	j.calls++
	if j.err != nil {
		return domain.JudgeVerdict{}, j.err
	}
	return j.verdict, nil
}

type fakeMessenger struct {
	sent []domain.Message
	err  error
}

func (m *fakeMessenger) Send(_ context.Context, msg domain.Message) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, msg)
	return nil
}
