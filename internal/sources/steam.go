package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"gamehoard/internal/logging"
	"gamehoard/internal/ratelimit"
	"gamehoard/internal/settings"
	"gamehoard/internal/store"
)

const (
	steamOwnedGamesURL = "https://api.steampowered.com/IPlayerService/GetOwnedGames/v0001/"
	steamReviewsURL    = "https://store.steampowered.com/appreviews/%d"
	steamCoverURL      = "https://cdn.cloudflare.steamstatic.com/steam/apps/%d/library_600x900.jpg"

	steamReviewWorkers = 5
	steamReviewGap     = 200 * time.Millisecond
)

// SteamAdapter fetches the owned-games list and enriches each entry
// with its store review summary.
type SteamAdapter struct {
	settings *settings.Registry
	client   *resty.Client

	// apiBase/storeBase override the upstream hosts in tests.
	apiBase   string
	storeBase string

	// reviewGap is shared across the enrichment workers.
	reviewGap *ratelimit.MinGap
}

// NewSteamAdapter builds the adapter.
func NewSteamAdapter(reg *settings.Registry) *SteamAdapter {
	return &SteamAdapter{
		settings:  reg,
		client:    newSourceClient(),
		reviewGap: ratelimit.NewMinGap(steamReviewGap),
	}
}

func newSourceClient() *resty.Client {
	return resty.New().
		SetTimeout(10 * time.Second).
		SetHeader("User-Agent", userAgent)
}

func (a *SteamAdapter) Store() string { return store.StoreSteam }

type steamOwnedGame struct {
	AppID           int64  `json:"appid"`
	Name            string `json:"name"`
	PlaytimeForever int64  `json:"playtime_forever"` // minutes
	ImgIconURL      string `json:"img_icon_url"`
	RtimeLastPlayed int64  `json:"rtime_last_played"`
}

type steamOwnedGamesResponse struct {
	Response struct {
		GameCount int              `json:"game_count"`
		Games     []steamOwnedGame `json:"games"`
	} `json:"response"`
}

type steamReviewSummary struct {
	ReviewScore     int    `json:"review_score"`
	ReviewScoreDesc string `json:"review_score_desc"`
	TotalPositive   int64  `json:"total_positive"`
	TotalNegative   int64  `json:"total_negative"`
	TotalReviews    int64  `json:"total_reviews"`
}

type steamReviewsResponse struct {
	Success      int                `json:"success"`
	QuerySummary steamReviewSummary `json:"query_summary"`
}

// Fetch pulls the owned-games list, then runs the bounded review
// enrichment pool. A failed review fetch degrades that one record to
// no-review rather than failing the batch.
func (a *SteamAdapter) Fetch(ctx context.Context) ([]RawGame, error) {
	apiKey := a.settings.String(settings.KeySteamAPIKey, "")
	userID := a.settings.String(settings.KeySteamUserID, "")
	if apiKey == "" || userID == "" {
		return nil, NotConfiguredError(store.StoreSteam, "steam_api_key or steam_user_id")
	}

	timer := logging.StartTimer(logging.CategorySources, "steam.Fetch")
	defer timer.Stop()

	ownedURL := steamOwnedGamesURL
	if a.apiBase != "" {
		ownedURL = a.apiBase + "/IPlayerService/GetOwnedGames/v0001/"
	}

	var owned steamOwnedGamesResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key":                       apiKey,
			"steamid":                   userID,
			"include_appinfo":           "1",
			"include_played_free_games": "1",
			"format":                    "json",
		}).
		SetResult(&owned).
		Get(ownedURL)
	if err != nil {
		return nil, fmt.Errorf("steam: owned games request: %w: %v", ErrNetwork, err)
	}
	if resp.IsError() {
		return nil, classifyStatus(store.StoreSteam, resp.StatusCode())
	}

	games := owned.Response.Games
	logging.Sources("Steam reports %d owned games", len(games))

	reviews := a.fetchReviews(ctx, games)

	raws := make([]RawGame, 0, len(games))
	for _, g := range games {
		raw, err := a.toRawGame(g, reviews[g.AppID])
		if err != nil {
			logging.Get(logging.CategorySources).Warn("Skipping steam app %d: %v", g.AppID, err)
			continue
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// fetchReviews runs the bounded enrichment pool. Workers share one
// spacing limiter so the aggregate request rate stays under the gap.
func (a *SteamAdapter) fetchReviews(ctx context.Context, games []steamOwnedGame) map[int64]*steamReviewSummary {
	reviews := make(map[int64]*steamReviewSummary, len(games))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(steamReviewWorkers)

	for _, game := range games {
		appID := game.AppID
		g.Go(func() error {
			if err := a.reviewGap.Wait(ctx); err != nil {
				return err
			}
			summary, err := a.fetchReviewSummary(ctx, appID)
			if err != nil {
				// Degrade to no-review; the record still imports.
				logging.SourcesDebug("Review fetch failed for app %d: %v", appID, err)
				return nil
			}
			mu.Lock()
			reviews[appID] = summary
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		logging.Get(logging.CategorySources).Warn("Review enrichment stopped early: %v", err)
	}
	return reviews
}

func (a *SteamAdapter) fetchReviewSummary(ctx context.Context, appID int64) (*steamReviewSummary, error) {
	reviewsURL := fmt.Sprintf(steamReviewsURL, appID)
	if a.storeBase != "" {
		reviewsURL = fmt.Sprintf(a.storeBase+"/appreviews/%d", appID)
	}

	var parsed steamReviewsResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"json":          "1",
			"language":      "all",
			"purchase_type": "all",
			"num_per_page":  "0",
		}).
		SetResult(&parsed).
		Get(reviewsURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if resp.IsError() {
		return nil, classifyStatus(store.StoreSteam, resp.StatusCode())
	}
	if parsed.Success != 1 {
		return nil, fmt.Errorf("reviews unavailable for app %d: %w", appID, ErrNotFound)
	}
	return &parsed.QuerySummary, nil
}

func (a *SteamAdapter) toRawGame(g steamOwnedGame, review *steamReviewSummary) (RawGame, error) {
	if g.Name == "" {
		return RawGame{}, fmt.Errorf("empty name: %w", ErrParse)
	}

	playtime := float64(g.PlaytimeForever) / 60.0

	extra := map[string]interface{}{
		"appid":             g.AppID,
		"img_icon_url":      g.ImgIconURL,
		"rtime_last_played": g.RtimeLastPlayed,
		"playtime_minutes":  g.PlaytimeForever,
	}
	if review != nil {
		extra["review_summary"] = review
	}
	extraJSON, err := json.Marshal(extra)
	if err != nil {
		return RawGame{}, fmt.Errorf("encode extra data: %w", ErrParse)
	}

	return RawGame{
		Name:          g.Name,
		Store:         store.StoreSteam,
		StoreID:       strconv.FormatInt(g.AppID, 10),
		PlaytimeHours: &playtime,
		CoverURL:      fmt.Sprintf(steamCoverURL, g.AppID),
		ExtraData:     extraJSON,
	}, nil
}
