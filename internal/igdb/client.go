// Package igdb talks to the IGDB v4 API: token management, game
// queries, matching, enrichment, and the popularity primitives feed.
package igdb

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"gamehoard/internal/logging"
	"gamehoard/internal/settings"
	"gamehoard/internal/sources"
)

const (
	apiBaseURL  = "https://api.igdb.com/v4"
	twitchOAuth = "https://id.twitch.tv/oauth2/token"

	// themeAdult is IGDB's adult-content theme id.
	themeAdult = 42

	// externalCategorySteam marks Steam rows in external_games.
	externalCategorySteam = 1
)

// Client is the authenticated IGDB API client. The OAuth token is
// cached in memory until expiry; a 401 clears it and the request is
// retried once with a fresh token.
type Client struct {
	settings *settings.Registry
	http     *resty.Client

	apiBase   string
	oauthBase string

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

// NewClient builds a client reading credentials from the registry.
func NewClient(reg *settings.Registry) *Client {
	return &Client{
		settings:  reg,
		http:      resty.New().SetTimeout(10 * time.Second).SetHeader("User-Agent", "gamehoard/1.0"),
		apiBase:   apiBaseURL,
		oauthBase: twitchOAuth,
	}
}

// Game is the subset of an IGDB game record this system consumes.
type Game struct {
	ID               int64    `json:"id"`
	Name             string   `json:"name"`
	Slug             string   `json:"slug"`
	Summary          string   `json:"summary"`
	Rating           float64  `json:"rating"`
	RatingCount      int64    `json:"rating_count"`
	AggregatedRating float64  `json:"aggregated_rating"`
	TotalRating      float64  `json:"total_rating"`
	TotalRatingCount int64    `json:"total_rating_count"`
	FirstReleaseDate int64    `json:"first_release_date"`
	Cover            *Image   `json:"cover"`
	Screenshots      []Image  `json:"screenshots"`
	Genres           []Named  `json:"genres"`
	Themes           []Named  `json:"themes"`
	ExternalGames    []struct {
		Category int64  `json:"category"`
		UID      string `json:"uid"`
	} `json:"external_games"`
}

// Image is an IGDB image reference.
type Image struct {
	URL string `json:"url"`
}

// Named is any IGDB record carrying a display name.
type Named struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PopularityPrimitive is one row of the popularity feed.
type PopularityPrimitive struct {
	GameID         int64   `json:"game_id"`
	PopularityType int64   `json:"popularity_type"`
	Value          float64 `json:"value"`
}

// gameFields covers everything the matcher and enricher read.
var gameFields = strings.Join([]string{
	"id", "name", "slug", "summary",
	"rating", "rating_count", "aggregated_rating",
	"total_rating", "total_rating_count",
	"first_release_date", "cover.url", "screenshots.url",
	"genres.id", "genres.name", "themes.id", "themes.name",
	"external_games.category", "external_games.uid",
}, ",")

// SearchGames runs a fuzzy name search.
func (c *Client) SearchGames(ctx context.Context, term string, limit int) ([]Game, error) {
	body := fmt.Sprintf(`search "%s"; fields %s; limit %d;`,
		escapeQuery(term), gameFields, limit)
	var games []Game
	if err := c.query(ctx, "games", body, &games); err != nil {
		return nil, err
	}
	return games, nil
}

// GameByID fetches one game record.
func (c *Client) GameByID(ctx context.Context, id int64) (*Game, error) {
	body := fmt.Sprintf("fields %s; where id = %d; limit 1;", gameFields, id)
	var games []Game
	if err := c.query(ctx, "games", body, &games); err != nil {
		return nil, err
	}
	if len(games) == 0 {
		return nil, fmt.Errorf("igdb game %d: %w", id, sources.ErrNotFound)
	}
	return &games[0], nil
}

// PopularityByIDs fetches one popularity category for a batch of games.
func (c *Client) PopularityByIDs(ctx context.Context, popularityType int64, gameIDs []int64) ([]PopularityPrimitive, error) {
	if len(gameIDs) == 0 {
		return nil, nil
	}
	ids := make([]string, len(gameIDs))
	for i, id := range gameIDs {
		ids[i] = fmt.Sprintf("%d", id)
	}
	body := fmt.Sprintf(
		"fields game_id, popularity_type, value; where popularity_type = %d & game_id = (%s); limit %d;",
		popularityType, strings.Join(ids, ","), len(gameIDs))

	var rows []PopularityPrimitive
	if err := c.query(ctx, "popularity_primitives", body, &rows); err != nil {
		return nil, err
	}
	return rows, nil
}

// query posts an Apicalypse body, refreshing the token once on 401.
func (c *Client) query(ctx context.Context, endpoint, body string, out interface{}) error {
	clientID := c.settings.String(settings.KeyIGDBClientID, "")
	if clientID == "" {
		return sources.NotConfiguredError("igdb", "igdb_client_id")
	}

	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.getToken(ctx)
		if err != nil {
			return err
		}

		resp, err := c.http.R().
			SetContext(ctx).
			SetHeader("Client-ID", clientID).
			SetHeader("Authorization", "Bearer "+token).
			SetHeader("Accept", "application/json").
			SetBody(body).
			SetResult(out).
			Post(c.apiBase + "/" + endpoint)
		if err != nil {
			return fmt.Errorf("igdb: %s query: %w: %v", endpoint, sources.ErrNetwork, err)
		}

		switch {
		case resp.StatusCode() == 401 && attempt == 0:
			logging.IGDB("Token rejected, refreshing once")
			c.clearToken()
			continue
		case resp.StatusCode() == 401:
			return fmt.Errorf("igdb: token rejected after refresh: %w", sources.ErrAuthExpired)
		case resp.StatusCode() == 429:
			return fmt.Errorf("igdb: %w", sources.ErrRateLimited)
		case resp.IsError():
			return fmt.Errorf("igdb: %s returned status %d: %w", endpoint, resp.StatusCode(), sources.ErrNetwork)
		}
		return nil
	}
	return nil
}

// getToken returns the cached client-credentials token, requesting a
// new one when absent or within a minute of expiry.
func (c *Client) getToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.token != "" && time.Now().Before(c.tokenExpiry.Add(-time.Minute)) {
		return c.token, nil
	}

	clientID := c.settings.String(settings.KeyIGDBClientID, "")
	clientSecret := c.settings.String(settings.KeyIGDBClientSecret, "")
	if clientID == "" || clientSecret == "" {
		return "", sources.NotConfiguredError("igdb", "igdb_client_id or igdb_client_secret")
	}

	var parsed struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int    `json:"expires_in"`
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"client_id":     clientID,
			"client_secret": clientSecret,
			"grant_type":    "client_credentials",
		}).
		SetResult(&parsed).
		Post(c.oauthBase)
	if err != nil {
		return "", fmt.Errorf("igdb: token request: %w: %v", sources.ErrNetwork, err)
	}
	if resp.IsError() || parsed.AccessToken == "" {
		return "", fmt.Errorf("igdb: credentials rejected: %w", sources.ErrAuthExpired)
	}

	c.token = parsed.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second)
	logging.IGDB("Obtained access token, expires in %ds", parsed.ExpiresIn)
	return c.token, nil
}

func (c *Client) clearToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

func escapeQuery(s string) string {
	return strings.ReplaceAll(s, `"`, `\"`)
}

// imageURL rewrites an IGDB thumbnail reference to the requested size
// and forces https.
func imageURL(raw, size string) string {
	if raw == "" {
		return ""
	}
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}
	return strings.Replace(raw, "t_thumb", size, 1)
}
