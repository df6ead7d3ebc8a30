package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"

	"gamehoard/internal/sources"
)

const steamAppDetailsURL = "https://store.steampowered.com/api/appdetails?appids=%d"

// Category id Steam uses to mark Early Access titles.
const steamCategoryEarlyAccess = 29

// AppDetails is the reduced store-details record.
type AppDetails struct {
	Name        string
	EarlyAccess bool
	ComingSoon  bool
	ReleaseDate string
}

// SteamStoreClient fetches the public appdetails endpoint. It is rate
// limited aggressively by Valve, so calls retry 429s with exponential
// backoff: 2 s initial, doubled per attempt, 3 attempts total.
type SteamStoreClient struct {
	http    *resty.Client
	baseURL string
}

// NewSteamStoreClient builds the client.
func NewSteamStoreClient() *SteamStoreClient {
	return &SteamStoreClient{
		http: resty.New().SetTimeout(10 * time.Second).SetHeader("User-Agent", "gamehoard/1.0"),
	}
}

type appDetailsEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Name       string `json:"name"`
		Categories []struct {
			ID          int64  `json:"id"`
			Description string `json:"description"`
		} `json:"categories"`
		ReleaseDate struct {
			ComingSoon bool   `json:"coming_soon"`
			Date       string `json:"date"`
		} `json:"release_date"`
	} `json:"data"`
}

func newAppDetailsBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 2 * time.Second
	bo.Multiplier = 2
	return backoff.WithMaxRetries(bo, 2)
}

// FetchAppDetails returns the current store record for one app.
func (c *SteamStoreClient) FetchAppDetails(ctx context.Context, appID int64) (*AppDetails, error) {
	url := fmt.Sprintf(steamAppDetailsURL, appID)
	if c.baseURL != "" {
		url = fmt.Sprintf(c.baseURL+"/api/appdetails?appids=%d", appID)
	}

	var body []byte
	op := func() error {
		resp, err := c.http.R().SetContext(ctx).Get(url)
		if err != nil {
			return fmt.Errorf("appdetails %d: %w: %v", appID, sources.ErrNetwork, err)
		}
		switch {
		case resp.StatusCode() == 429:
			return fmt.Errorf("appdetails %d: %w", appID, sources.ErrRateLimited)
		case resp.StatusCode() >= 500:
			return fmt.Errorf("appdetails %d: status %d: %w", appID, resp.StatusCode(), sources.ErrNetwork)
		case resp.IsError():
			return backoff.Permanent(fmt.Errorf("appdetails %d: status %d: %w", appID, resp.StatusCode(), sources.ErrNetwork))
		}
		body = resp.Body()
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(newAppDetailsBackoff(), ctx)); err != nil {
		return nil, err
	}

	var envelope map[string]appDetailsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("appdetails %d: %w: %v", appID, sources.ErrParse, err)
	}
	entry, ok := envelope[strconv.FormatInt(appID, 10)]
	if !ok || !entry.Success {
		return nil, fmt.Errorf("appdetails %d: %w", appID, sources.ErrNotFound)
	}

	details := &AppDetails{
		Name:        entry.Data.Name,
		ComingSoon:  entry.Data.ReleaseDate.ComingSoon,
		ReleaseDate: entry.Data.ReleaseDate.Date,
	}
	for _, cat := range entry.Data.Categories {
		if cat.ID == steamCategoryEarlyAccess {
			details.EarlyAccess = true
			break
		}
	}
	return details, nil
}
