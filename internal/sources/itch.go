package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"gamehoard/internal/logging"
	"gamehoard/internal/settings"
	"gamehoard/internal/store"
)

const itchOwnedKeysURL = "https://itch.io/api/1/%s/my-owned-keys"

// ItchAdapter pages through the owned-keys API with the user's API key.
type ItchAdapter struct {
	settings *settings.Registry
	client   *resty.Client
	baseURL  string
}

// NewItchAdapter builds the adapter.
func NewItchAdapter(reg *settings.Registry) *ItchAdapter {
	return &ItchAdapter{settings: reg, client: newSourceClient()}
}

func (a *ItchAdapter) Store() string { return store.StoreItch }

type itchOwnedKey struct {
	ID   int64 `json:"id"`
	Game struct {
		ID          int64  `json:"id"`
		Title       string `json:"title"`
		CoverURL    string `json:"cover_url"`
		ShortText   string `json:"short_text"`
		PublishedAt string `json:"published_at"`
		User        struct {
			DisplayName string `json:"display_name"`
			Username    string `json:"username"`
		} `json:"user"`
	} `json:"game"`
}

type itchOwnedKeysResponse struct {
	OwnedKeys []itchOwnedKey `json:"owned_keys"`
	PerPage   int            `json:"per_page"`
	Page      int            `json:"page"`
}

// Fetch pages until the API returns an empty page.
func (a *ItchAdapter) Fetch(ctx context.Context) ([]RawGame, error) {
	apiKey := a.settings.String(settings.KeyItchToken, "")
	if apiKey == "" {
		return nil, NotConfiguredError(store.StoreItch, "itch_api_key")
	}

	timer := logging.StartTimer(logging.CategorySources, "itch.Fetch")
	defer timer.Stop()

	url := a.baseURL
	if url == "" {
		url = fmt.Sprintf(itchOwnedKeysURL, apiKey)
	}

	var raws []RawGame
	for page := 1; ; page++ {
		var parsed itchOwnedKeysResponse
		resp, err := a.client.R().
			SetContext(ctx).
			SetQueryParam("page", strconv.Itoa(page)).
			SetResult(&parsed).
			Get(url)
		if err != nil {
			return nil, fmt.Errorf("itch: page %d: %w: %v", page, ErrNetwork, err)
		}
		if resp.IsError() {
			return nil, classifyStatus(store.StoreItch, resp.StatusCode())
		}
		if len(parsed.OwnedKeys) == 0 {
			break
		}

		for _, key := range parsed.OwnedKeys {
			g := key.Game
			if g.Title == "" {
				continue
			}
			raw := RawGame{
				Name:     g.Title,
				Store:    store.StoreItch,
				StoreID:  strconv.FormatInt(g.ID, 10),
				CoverURL: g.CoverURL,
			}
			dev := g.User.DisplayName
			if dev == "" {
				dev = g.User.Username
			}
			if dev != "" {
				raw.Developers = []string{dev}
			}
			if t, err := time.Parse("2006-01-02 15:04:05", g.PublishedAt); err == nil {
				raw.ReleaseDate = &t
			}
			if extra, err := json.Marshal(key); err == nil {
				raw.ExtraData = extra
			}
			raws = append(raws, raw)
		}
	}

	logging.Sources("itch.io reports %d owned games", len(raws))
	return raws, nil
}
