package enrich

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"gamehoard/internal/sources"
	"gamehoard/internal/store"
)

const steamNewsURL = "https://api.steampowered.com/ISteamNews/GetNewsForApp/v0002/"

// SteamNewsClient fetches a game's news feed. Valve answers rate-limit
// violations on this endpoint with 403, not 429.
type SteamNewsClient struct {
	http    *resty.Client
	baseURL string
}

// NewSteamNewsClient builds the client.
func NewSteamNewsClient() *SteamNewsClient {
	return &SteamNewsClient{
		http: resty.New().SetTimeout(10 * time.Second).SetHeader("User-Agent", "gamehoard/1.0"),
	}
}

type steamNewsItem struct {
	GID      string `json:"gid"`
	Title    string `json:"title"`
	URL      string `json:"url"`
	Author   string `json:"author"`
	Contents string `json:"contents"`
	Date     int64  `json:"date"`
}

type steamNewsResponse struct {
	AppNews struct {
		AppID     int64           `json:"appid"`
		NewsItems []steamNewsItem `json:"newsitems"`
	} `json:"appnews"`
}

// Fetch returns up to maxItems articles for one app, ready to store.
// GameID is left for the caller to fill in.
func (c *SteamNewsClient) Fetch(ctx context.Context, appID int64, maxItems int) ([]store.NewsArticle, error) {
	if maxItems <= 0 {
		maxItems = 10
	}

	url := steamNewsURL
	if c.baseURL != "" {
		url = c.baseURL + "/ISteamNews/GetNewsForApp/v0002/"
	}

	var parsed steamNewsResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"appid":  strconv.FormatInt(appID, 10),
			"count":  strconv.Itoa(maxItems),
			"format": "json",
		}).
		SetResult(&parsed).
		Get(url)
	if err != nil {
		return nil, fmt.Errorf("steam news: app %d: %w: %v", appID, sources.ErrNetwork, err)
	}
	switch {
	case resp.StatusCode() == 403 || resp.StatusCode() == 429:
		return nil, fmt.Errorf("steam news: app %d: %w", appID, sources.ErrRateLimited)
	case resp.StatusCode() == 404:
		return nil, fmt.Errorf("steam news: app %d: %w", appID, sources.ErrNotFound)
	case resp.IsError():
		return nil, fmt.Errorf("steam news: app %d: status %d: %w", appID, resp.StatusCode(), sources.ErrNetwork)
	}

	articles := make([]store.NewsArticle, 0, len(parsed.AppNews.NewsItems))
	for _, item := range parsed.AppNews.NewsItems {
		if item.URL == "" {
			continue
		}
		a := store.NewsArticle{
			Title:   item.Title,
			Content: item.Contents,
			Author:  item.Author,
			URL:     item.URL,
		}
		if item.Date > 0 {
			t := time.Unix(item.Date, 0).UTC()
			a.PublishedAt = &t
		}
		articles = append(articles, a)
	}
	return articles, nil
}
