// Package normalize canonicalizes raw listings into a stable identity and
// attribute schema and filters duplicates within a batch. Value
// normalization is conservative: whitespace is trimmed, nothing else.
// Semantic merging of values belongs to the assess stage.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"MarketScanner/internal/domain"
)

// Canonical keys a mapping commonly targets. A mapping may introduce
// further canonical names; they land in the listing's attribute map.
const (
	KeyTitle     = "title"
	KeyPrice     = "price"
	KeySeller    = "seller"
	KeyURL       = "url"
	KeyEndsAt    = "ends_at"
	KeyBids      = "bids"
	KeyBrand     = "brand"
	KeyModel     = "model"
	KeyColour    = "colour"
	KeyStorageGB = "storage_gb"
	KeyCondition = "condition"
)

const maxTitleRunes = 255

var endsAtLayouts = []string{time.RFC3339, "2006-01-02 15:04:05"}

// Normalizer applies per-source attribute-key mapping tables. Source keys
// are compared case-insensitively; unmapped keys are kept in the extra
// bucket rather than dropped.
type Normalizer struct {
	mappings map[string]map[string]string
}

// New prepares a Normalizer from per-source mapping tables
// (source id → source-specific key → canonical key).
func New(mappings map[string]map[string]string) *Normalizer {
	prepared := make(map[string]map[string]string, len(mappings))
	for source, table := range mappings {
		m := make(map[string]string, len(table))
		for k, v := range table {
			m[strings.ToLower(strings.TrimSpace(k))] = strings.TrimSpace(v)
		}
		prepared[source] = m
	}
	return &Normalizer{mappings: prepared}
}

// Failure ties a dropped record to its normalization error.
type Failure struct {
	ExternalID string
	Err        error
}

// Result carries one batch's survivors and per-record failures.
type Result struct {
	Listings []domain.NormalizedListing
	Failures []Failure
}

// Batch normalizes one source's raw listings in order and drops exact
// repeats of a dedup key within the batch; the first occurrence wins.
func (n *Normalizer) Batch(raws []domain.RawListing) Result {
	var res Result
	seen := map[string]struct{}{}

	for _, raw := range raws {
		listing, err := n.Normalize(raw)
		if err != nil {
			res.Failures = append(res.Failures, Failure{ExternalID: raw.ExternalID, Err: err})
			continue
		}
		if _, dup := seen[listing.DedupKey]; dup {
			continue
		}
		seen[listing.DedupKey] = struct{}{}
		res.Listings = append(res.Listings, listing)
	}

	return res
}

// Normalize maps one raw record onto the canonical schema. A record missing
// a required canonical field, or whose price cannot be parsed, is rejected
// with a NormalizationError.
func (n *Normalizer) Normalize(raw domain.RawListing) (domain.NormalizedListing, error) {
	table := n.mappings[raw.SourceID]

	canonical := map[string]string{}
	extra := map[string]string{}

	// Sorted key order keeps the outcome deterministic when two source
	// spellings map onto the same canonical key.
	keys := make([]string, 0, len(raw.Attributes))
	for k := range raw.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := strings.TrimSpace(raw.Attributes[key])
		canonKey, mapped := table[strings.ToLower(strings.TrimSpace(key))]
		if !mapped {
			extra[strings.TrimSpace(key)] = value
			continue
		}
		canonical[canonKey] = value
	}

	title := canonical[KeyTitle]
	if title == "" {
		return domain.NormalizedListing{}, &domain.NormalizationError{Reason: "missing required field title"}
	}
	title = truncateRunes(title, maxTitleRunes)

	priceText := canonical[KeyPrice]
	if priceText == "" {
		return domain.NormalizedListing{}, &domain.NormalizationError{Reason: "missing required field price"}
	}
	price, err := parsePrice(priceText)
	if err != nil {
		return domain.NormalizedListing{}, &domain.NormalizationError{Reason: fmt.Sprintf("unparseable price %q", priceText)}
	}

	listing := domain.NormalizedListing{
		SourceID:   raw.SourceID,
		ExternalID: raw.ExternalID,
		Title:      title,
		Price:      price,
		Seller:     canonical[KeySeller],
		URL:        canonical[KeyURL],
		EndsAt:     parseEndsAt(canonical[KeyEndsAt]),
		Bids:       parseBids(canonical[KeyBids]),
		Attributes: map[string]string{},
		Extra:      extra,
		FetchedAt:  raw.FetchedAt,
	}

	for key, value := range canonical {
		switch key {
		case KeyTitle, KeyPrice, KeySeller, KeyURL, KeyEndsAt, KeyBids:
		default:
			listing.Attributes[key] = value
		}
	}

	listing.ModelKey = modelKey(listing.Attributes)
	listing.DedupKey = dedupKey(listing)

	return listing, nil
}

// dedupKey prefers the stable (source id, external id) identity; without an
// external id it falls back to a content hash of title, price, and seller.
// The fallback is best-effort: distinct listings may collide and re-listed
// items may not.
func dedupKey(l domain.NormalizedListing) string {
	if l.ExternalID != "" {
		return l.SourceID + ":" + l.ExternalID
	}

	sum := sha256.Sum256([]byte(l.Title + "|" + strconv.FormatFloat(l.Price, 'f', 2, 64) + "|" + l.Seller))
	return "h:" + hex.EncodeToString(sum[:])[:24]
}

// modelKey joins brand, model, and storage into one lowercase identity used
// by the assess rule stage to look up reference values.
func modelKey(attrs map[string]string) string {
	parts := make([]string, 0, 3)
	for _, key := range []string{KeyBrand, KeyModel, KeyStorageGB} {
		if v := attrs[key]; v != "" {
			parts = append(parts, strings.ToLower(strings.Join(strings.Fields(v), "_")))
		}
	}
	return strings.Join(parts, "_")
}

func parsePrice(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if r >= '0' && r <= '9' || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}

	cleaned := b.String()
	if cleaned == "" {
		return 0, fmt.Errorf("no digits in %q", text)
	}

	price, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %q: %w", text, err)
	}

	return price, nil
}

func parseBids(text string) int {
	if text == "" {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func parseEndsAt(text string) *time.Time {
	if text == "" {
		return nil
	}
	for _, layout := range endsAtLayouts {
		if ts, err := time.Parse(layout, text); err == nil {
			utc := ts.UTC()
			return &utc
		}
	}
	return nil
}

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
