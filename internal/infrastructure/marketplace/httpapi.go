package marketplace

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/mitchellh/mapstructure"

	"MarketScanner/internal/adapter"
	"MarketScanner/internal/domain"
)

// apiOptions tunes one JSON API source.
type apiOptions struct {
	ItemsField      string `mapstructure:"items_field"`
	ExternalIDField string `mapstructure:"external_id_field"`
	MaxListings     int    `mapstructure:"max_listings"`
}

// HTTPAPIAdapter pulls listings from a JSON search endpoint and flattens
// each item's top-level fields into raw attributes.
type HTTPAPIAdapter struct {
	client *http.Client
}

var _ adapter.Adapter = (*HTTPAPIAdapter)(nil)

// NewHTTPAPIAdapter wires an HTTP client; a nil client gets a 15s timeout default.
func NewHTTPAPIAdapter(client *http.Client) *HTTPAPIAdapter {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &HTTPAPIAdapter{client: client}
}

// Name identifies the strategy inside the registry.
func (h *HTTPAPIAdapter) Name() string {
	return "httpapi"
}

// Fetch requests the source URL once and extracts listings from the JSON
// response, either a top-level array or the configured items field.
func (h *HTTPAPIAdapter) Fetch(ctx context.Context, req adapter.Request) ([]domain.RawListing, error) {
	opts, err := decodeAPIOptions(req.Options)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", req.SourceID, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, req.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("source %s: build request: %w", req.SourceID, err)
	}
	httpReq.Header.Set("User-Agent", "MarketScanner/1.0")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", req.SourceID,
			&domain.AdapterError{Kind: classifyFetchError(err), Message: "request items", Err: err})
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("source %s: %w", req.SourceID,
			&domain.AdapterError{Kind: domain.AdapterStatus, Message: fmt.Sprintf("api returned %s: %s", resp.Status, string(body))})
	}

	items, err := decodeItems(resp.Body, opts.ItemsField)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", req.SourceID,
			&domain.AdapterError{Kind: domain.AdapterParse, Message: "decode response", Err: err})
	}

	if opts.MaxListings > 0 && len(items) > opts.MaxListings {
		items = items[:opts.MaxListings]
	}

	fetchedAt := time.Now().UTC()
	results := make([]domain.RawListing, 0, len(items))
	for _, item := range items {
		attrs := flattenItem(item)
		results = append(results, domain.RawListing{
			SourceID:   req.SourceID,
			ExternalID: attrs[opts.ExternalIDField],
			FetchedAt:  fetchedAt,
			Attributes: attrs,
		})
	}

	return results, nil
}

func decodeItems(body io.Reader, itemsField string) ([]map[string]any, error) {
	var items []map[string]any

	if itemsField == "" {
		if err := json.NewDecoder(body).Decode(&items); err != nil {
			return nil, fmt.Errorf("decode array: %w", err)
		}
		return items, nil
	}

	var envelope map[string]json.RawMessage
	if err := json.NewDecoder(body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	raw, ok := envelope[itemsField]
	if !ok {
		return nil, fmt.Errorf("response has no field %q", itemsField)
	}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, fmt.Errorf("decode field %q: %w", itemsField, err)
	}

	return items, nil
}

// flattenItem renders every top-level field as a string attribute. Nested
// values are kept as compact JSON so the normalizer can still route them to
// the extra bucket.
func flattenItem(item map[string]any) map[string]string {
	attrs := make(map[string]string, len(item))

	for key, value := range item {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			attrs[key] = v
		case float64:
			attrs[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			attrs[key] = strconv.FormatBool(v)
		default:
			if encoded, err := json.Marshal(v); err == nil {
				attrs[key] = string(encoded)
			}
		}
	}

	return attrs
}

func decodeAPIOptions(raw map[string]string) (apiOptions, error) {
	opts := apiOptions{ExternalIDField: "id"}

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
