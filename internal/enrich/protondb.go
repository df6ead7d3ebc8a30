// Package enrich holds the third-party metadata lookups that hang off
// an existing game row: ProtonDB compatibility and Metacritic scores.
package enrich

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"gamehoard/internal/logging"
	"gamehoard/internal/sources"
	"gamehoard/internal/store"
)

const protonDBSummaryURL = "https://www.protondb.com/api/v1/reports/summaries/%d.json"

// ProtonDBClient fetches per-app compatibility report summaries.
type ProtonDBClient struct {
	http    *resty.Client
	baseURL string
}

// NewProtonDBClient builds the client.
func NewProtonDBClient() *ProtonDBClient {
	return &ProtonDBClient{
		http: resty.New().SetTimeout(10 * time.Second).SetHeader("User-Agent", "gamehoard/1.0"),
	}
}

type protonDBSummary struct {
	Tier         string  `json:"tier"`
	Score        float64 `json:"score"`
	Confidence   string  `json:"confidence"`
	Total        int64   `json:"total"`
	TrendingTier string  `json:"trendingTier"`
}

// confidenceScores maps ProtonDB's confidence labels onto a 0..1 scale
// so the column can be compared numerically.
var confidenceScores = map[string]float64{
	"inadequate": 0.0,
	"low":        0.25,
	"moderate":   0.5,
	"good":       0.75,
	"strong":     1.0,
}

// Fetch returns the compatibility result for one Steam app. A 404 is a
// definitive answer: the "unknown" tier is recorded so the app is not
// re-queried every sync.
func (c *ProtonDBClient) Fetch(ctx context.Context, appID int64) (*store.ProtonDBResult, error) {
	url := fmt.Sprintf(protonDBSummaryURL, appID)
	if c.baseURL != "" {
		url = fmt.Sprintf(c.baseURL+"/api/v1/reports/summaries/%d.json", appID)
	}

	var summary protonDBSummary
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&summary).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("protondb: app %d: %w: %v", appID, sources.ErrNetwork, err)
	}
	if resp.StatusCode() == 404 {
		logging.EnrichDebug("ProtonDB has no reports for app %d", appID)
		return &store.ProtonDBResult{Tier: store.ProtonTierUnknown}, nil
	}
	if resp.StatusCode() == 429 {
		return nil, fmt.Errorf("protondb: app %d: %w", appID, sources.ErrRateLimited)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("protondb: app %d: status %d: %w", appID, resp.StatusCode(), sources.ErrNetwork)
	}
	if summary.Tier == "" {
		return nil, fmt.Errorf("protondb: app %d: empty summary: %w", appID, sources.ErrParse)
	}

	result := &store.ProtonDBResult{
		Tier:         summary.Tier,
		TrendingTier: summary.TrendingTier,
	}
	if summary.Score > 0 {
		v := summary.Score
		result.Score = &v
	}
	if conf, ok := confidenceScores[summary.Confidence]; ok {
		result.Confidence = &conf
	}
	if summary.Total > 0 {
		v := summary.Total
		result.Total = &v
	}
	return result, nil
}
