// Package judge calls an OpenAI-compatible chat API to produce a structured
// verdict for one listing.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"MarketScanner/internal/config"
	"MarketScanner/internal/domain"
	"MarketScanner/internal/ports"
)

const defaultSystemPrompt = `You evaluate second-hand marketplace listings for resale potential.
Reply with a single JSON object and nothing else:
{"verdict": "BUY"|"SKIP"|"REVIEW", "confidence": 0.0-1.0, "recommended_max_bid": number, "risk_reasons": [strings]}`

// Client implements ports.Judge backed by OpenAI-compatible APIs.
type Client struct {
	endpoint     string
	model        string
	apiKey       string
	systemPrompt string
	httpClient   *http.Client
}

var _ ports.Judge = (*Client)(nil)

// NewClient builds a client from configuration.
func NewClient(cfg config.JudgeConfig) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}

	return &Client{
		endpoint:     cfg.Endpoint,
		model:        cfg.Model,
		apiKey:       cfg.APIKey,
		systemPrompt: cfg.SystemPrompt,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type verdictPayload struct {
	Verdict           string   `json:"verdict"`
	Confidence        float64  `json:"confidence"`
	RecommendedMaxBid float64  `json:"recommended_max_bid"`
	RiskReasons       []string `json:"risk_reasons"`
}

// Assess posts the listing as a user message and parses the model's JSON
// verdict out of the first choice.
func (c *Client) Assess(ctx context.Context, rec domain.ScrapeRecord) (domain.JudgeVerdict, error) {
	if c == nil {
		return domain.JudgeVerdict{}, fmt.Errorf("judge client is nil")
	}
	if c.endpoint == "" || c.model == "" {
		return domain.JudgeVerdict{}, fmt.Errorf("judge client misconfigured")
	}

	listing, err := json.Marshal(map[string]any{
		"title":      rec.Title,
		"price":      rec.Price,
		"seller":     rec.Seller,
		"bids":       rec.Bids,
		"ends_at":    rec.EndsAt,
		"model_key":  rec.ModelKey,
		"attributes": rec.Attributes,
	})
	if err != nil {
		return domain.JudgeVerdict{}, fmt.Errorf("marshal listing: %w", err)
	}

	body, err := json.Marshal(map[string]any{
		"model":       c.model,
		"temperature": 0,
		"messages": []map[string]string{
			{"role": "system", "content": safePrompt(c.systemPrompt)},
			{"role": "user", "content": string(listing)},
		},
	})
	if err != nil {
		return domain.JudgeVerdict{}, fmt.Errorf("marshal judge payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return domain.JudgeVerdict{}, fmt.Errorf("new request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.JudgeVerdict{}, fmt.Errorf("call judge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return domain.JudgeVerdict{}, fmt.Errorf("judge error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var chat chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&chat); err != nil {
		return domain.JudgeVerdict{}, fmt.Errorf("decode judge response: %w", err)
	}
	if len(chat.Choices) == 0 {
		return domain.JudgeVerdict{}, fmt.Errorf("judge response has no choices")
	}

	return parseVerdict(chat.Choices[0].Message.Content)
}

func parseVerdict(content string) (domain.JudgeVerdict, error) {
	var payload verdictPayload
	if err := json.Unmarshal([]byte(stripFences(content)), &payload); err != nil {
		return domain.JudgeVerdict{}, fmt.Errorf("parse verdict: %w", err)
	}

	verdict := domain.Verdict(strings.ToUpper(strings.TrimSpace(payload.Verdict)))
	switch verdict {
	case domain.VerdictBuy, domain.VerdictSkip, domain.VerdictReview:
	default:
		return domain.JudgeVerdict{}, fmt.Errorf("judge returned unknown verdict %q", payload.Verdict)
	}

	return domain.JudgeVerdict{
		Verdict:           verdict,
		Confidence:        clamp01(payload.Confidence),
		RecommendedMaxBid: payload.RecommendedMaxBid,
		RiskReasons:       payload.RiskReasons,
	}, nil
}

// stripFences removes a markdown code fence some models wrap around JSON.
func stripFences(content string) string {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "```") {
		return content
	}

	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func safePrompt(prompt string) string {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return defaultSystemPrompt
	}
	return prompt
}
