package sources

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-resty/resty/v2"

	"gamehoard/internal/logging"
	"gamehoard/internal/settings"
	"gamehoard/internal/store"
)

const (
	bnetAccountURL = "https://account.battle.net/api/games-and-subscriptions"
	bnetClassicURL = "https://account.battle.net/api/classic-games"
	bnetIconCDN    = "https://blznav.akamaized.net/img/games/logo-%s.png"
)

// BnetAdapter fetches the modern and classic catalogs with the user's
// account cookie. Covers are composed from the reported icon filename.
type BnetAdapter struct {
	settings *settings.Registry
	client   *resty.Client
	baseURL  string
}

// NewBnetAdapter builds the adapter.
func NewBnetAdapter(reg *settings.Registry) *BnetAdapter {
	return &BnetAdapter{settings: reg, client: newSourceClient()}
}

func (a *BnetAdapter) Store() string { return store.StoreBnet }

type bnetGameAccount struct {
	GameAccountID string `json:"gameAccountId"`
	Title         string `json:"localizedGameName"`
	Icon          string `json:"icon"`
	Free          bool   `json:"free"`
}

type bnetModernResponse struct {
	GameAccounts []bnetGameAccount `json:"gameAccounts"`
}

type bnetClassicGame struct {
	Name  string `json:"name"`
	Title string `json:"localizedName"`
}

// Fetch merges the modern and classic catalogs. Classic entries have no
// stable id upstream; the name slot doubles as one.
func (a *BnetAdapter) Fetch(ctx context.Context) ([]RawGame, error) {
	cookie := a.settings.String(settings.KeyBnetCookie, "")
	if cookie == "" {
		return nil, NotConfiguredError(store.StoreBnet, "battlenet_cookie")
	}

	timer := logging.StartTimer(logging.CategorySources, "bnet.Fetch")
	defer timer.Stop()

	accountURL, classicURL := bnetAccountURL, bnetClassicURL
	if a.baseURL != "" {
		accountURL = a.baseURL + "/api/games-and-subscriptions"
		classicURL = a.baseURL + "/api/classic-games"
	}

	var modern bnetModernResponse
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Cookie", cookie).
		SetResult(&modern).
		Get(accountURL)
	if err != nil {
		return nil, fmt.Errorf("battlenet: account catalog: %w: %v", ErrNetwork, err)
	}
	if resp.IsError() {
		return nil, classifyStatus(store.StoreBnet, resp.StatusCode())
	}

	var raws []RawGame
	for _, g := range modern.GameAccounts {
		if g.Title == "" {
			continue
		}
		raw := RawGame{
			Name:    g.Title,
			Store:   store.StoreBnet,
			StoreID: g.GameAccountID,
		}
		if g.Icon != "" {
			raw.CoverURL = fmt.Sprintf(bnetIconCDN, g.Icon)
		}
		if extra, err := json.Marshal(g); err == nil {
			raw.ExtraData = extra
		}
		raws = append(raws, raw)
	}

	// Classic catalog failures are not fatal: most accounts have none.
	var classic []bnetClassicGame
	resp, err = a.client.R().
		SetContext(ctx).
		SetHeader("Cookie", cookie).
		SetResult(&classic).
		Get(classicURL)
	if err == nil && !resp.IsError() {
		for _, g := range classic {
			name := g.Title
			if name == "" {
				name = g.Name
			}
			if name == "" {
				continue
			}
			raw := RawGame{
				Name:    name,
				Store:   store.StoreBnet,
				StoreID: "classic_" + g.Name,
			}
			if extra, err := json.Marshal(g); err == nil {
				raw.ExtraData = extra
			}
			raws = append(raws, raw)
		}
	} else {
		logging.SourcesDebug("Battle.net classic catalog unavailable")
	}

	logging.Sources("Battle.net reports %d games", len(raws))
	return raws, nil
}
