// Package marketplace contains the source adapter implementations behind
// the adapter registry.
package marketplace

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mitchellh/mapstructure"

	"MarketScanner/internal/adapter"
	"MarketScanner/internal/domain"
)

const (
	defaultMaxPages    = 5
	defaultMaxListings = 200
)

// htmlOptions tunes one HTML source; values come from the source's options
// map in config.
type htmlOptions struct {
	ItemSelector   string `mapstructure:"item_selector"`
	ExternalIDAttr string `mapstructure:"external_id_attr"`
	PageParam      string `mapstructure:"page_param"`
	MaxPages       int    `mapstructure:"max_pages"`
	MaxListings    int    `mapstructure:"max_listings"`
}

// HTMLPageAdapter crawls marketplace result pages and extracts raw listings
// using the source's configured CSS selectors.
type HTMLPageAdapter struct {
	client *http.Client
}

var _ adapter.Adapter = (*HTMLPageAdapter)(nil)

// NewHTMLPageAdapter wires an HTTP client; a nil client gets a 20s timeout default.
func NewHTMLPageAdapter(client *http.Client) *HTMLPageAdapter {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &HTMLPageAdapter{client: client}
}

// Name identifies the strategy inside the registry.
func (h *HTMLPageAdapter) Name() string {
	return "htmlpage"
}

// Fetch walks result pages until a page yields nothing new or a configured
// cap is reached, and returns every extracted listing.
func (h *HTMLPageAdapter) Fetch(ctx context.Context, req adapter.Request) ([]domain.RawListing, error) {
	opts, err := decodeHTMLOptions(req.Options)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", req.SourceID, err)
	}
	if opts.ItemSelector == "" {
		return nil, fmt.Errorf("source %s: item selector is not configured", req.SourceID)
	}
	if len(req.Selectors) == 0 {
		return nil, fmt.Errorf("source %s: no field selectors configured", req.SourceID)
	}

	fetchedAt := time.Now().UTC()
	results := make([]domain.RawListing, 0)
	seen := map[string]struct{}{}

	for page := 1; page <= opts.MaxPages; page++ {
		pageURL, err := buildPageURL(req.URL, opts.PageParam, page)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", req.SourceID, err)
		}

		doc, err := h.fetchDocument(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("source %s: %w", req.SourceID, err)
		}

		added := 0
		doc.Find(opts.ItemSelector).EachWithBreak(func(_ int, item *goquery.Selection) bool {
			listing := parseItem(item, req, opts, fetchedAt)
			if _, ok := seen[listing.ExternalID]; ok {
				return true
			}
			seen[listing.ExternalID] = struct{}{}
			results = append(results, listing)
			added++
			return len(results) < opts.MaxListings
		})

		// A page with nothing new means the site ignored the page
		// parameter or the results ran out.
		if added == 0 || len(results) >= opts.MaxListings {
			break
		}
	}

	return results, nil
}

func (h *HTMLPageAdapter) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "MarketScanner/1.0")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, &domain.AdapterError{Kind: classifyFetchError(err), Message: "request page", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.AdapterError{Kind: domain.AdapterStatus, Message: fmt.Sprintf("page returned %s", resp.Status)}
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, &domain.AdapterError{Kind: domain.AdapterParse, Message: "parse page", Err: err}
	}

	return doc, nil
}

// parseItem extracts one raw listing. Each configured selector fills the
// attribute of the same name; a "selector@attr" form reads an attribute
// instead of the node text.
func parseItem(item *goquery.Selection, req adapter.Request, opts htmlOptions, fetchedAt time.Time) domain.RawListing {
	attrs := map[string]string{}

	for name, sel := range req.Selectors {
		value := extractValue(item, sel)
		if value == "" {
			continue
		}
		attrs[name] = value
	}

	externalID, _ := item.Attr(opts.ExternalIDAttr)
	if externalID == "" {
		if href, ok := item.Find("a[href]").First().Attr("href"); ok {
			externalID = href
		}
	}

	return domain.RawListing{
		SourceID:   req.SourceID,
		ExternalID: strings.TrimSpace(externalID),
		FetchedAt:  fetchedAt,
		Attributes: attrs,
	}
}

func extractValue(item *goquery.Selection, sel string) string {
	selector, attr := sel, ""
	if at := strings.LastIndex(sel, "@"); at >= 0 {
		selector, attr = sel[:at], sel[at+1:]
	}

	node := item
	if selector != "" {
		node = item.Find(selector).First()
	}

	if attr != "" {
		value, _ := node.Attr(attr)
		return strings.TrimSpace(value)
	}
	return strings.TrimSpace(node.Text())
}

func classifyFetchError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.AdapterTimeout
	}
	return domain.AdapterNetwork
}

func decodeHTMLOptions(raw map[string]string) (htmlOptions, error) {
	opts := htmlOptions{
		ExternalIDAttr: "data-id",
		PageParam:      "page",
		MaxPages:       defaultMaxPages,
		MaxListings:    defaultMaxListings,
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &opts,
	})
	if err != nil {
		return opts, fmt.Errorf("build options decoder: %w", err)
	}
	if err := dec.Decode(raw); err != nil {
		return opts, fmt.Errorf("decode options: %w", err)
	}

	return opts, nil
}

func buildPageURL(base, pageParam string, page int) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid source url %s: %w", base, err)
	}

	query := parsed.Query()
	query.Set(pageParam, strconv.Itoa(page))
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
