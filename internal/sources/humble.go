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
	humbleOrdersURL = "https://www.humblebundle.com/api/v1/user/order"
	humbleOrderURL  = "https://www.humblebundle.com/api/v1/order/%s"
)

// HumbleAdapter walks the user's orders with their session cookie and
// flattens every game subproduct into a record.
type HumbleAdapter struct {
	settings *settings.Registry
	client   *resty.Client
	baseURL  string
}

// NewHumbleAdapter builds the adapter.
func NewHumbleAdapter(reg *settings.Registry) *HumbleAdapter {
	return &HumbleAdapter{settings: reg, client: newSourceClient()}
}

func (a *HumbleAdapter) Store() string { return store.StoreHumble }

type humbleOrderRef struct {
	Gamekey string `json:"gamekey"`
}

type humbleSubproduct struct {
	MachineName string `json:"machine_name"`
	HumanName   string `json:"human_name"`
	Icon        string `json:"icon"`
	Payee       struct {
		HumanName string `json:"human_name"`
	} `json:"payee"`
	Downloads []struct {
		Platform string `json:"platform"`
	} `json:"downloads"`
}

type humbleOrder struct {
	Product struct {
		HumanName string `json:"human_name"`
	} `json:"product"`
	Subproducts []humbleSubproduct `json:"subproducts"`
}

// Fetch lists order keys, then fetches each order until the key list is
// exhausted. A failed single order is skipped.
func (a *HumbleAdapter) Fetch(ctx context.Context) ([]RawGame, error) {
	cookie := a.settings.String(settings.KeyHumbleSession, "")
	if cookie == "" {
		return nil, NotConfiguredError(store.StoreHumble, "humble_session_cookie")
	}

	timer := logging.StartTimer(logging.CategorySources, "humble.Fetch")
	defer timer.Stop()

	ordersURL := humbleOrdersURL
	orderURL := humbleOrderURL
	if a.baseURL != "" {
		ordersURL = a.baseURL + "/api/v1/user/order"
		orderURL = a.baseURL + "/api/v1/order/%s"
	}

	var refs []humbleOrderRef
	resp, err := a.client.R().
		SetContext(ctx).
		SetHeader("Cookie", "_simpleauth_sess="+cookie).
		SetQueryParam("ajax", "true").
		SetResult(&refs).
		Get(ordersURL)
	if err != nil {
		return nil, fmt.Errorf("humble: order list: %w: %v", ErrNetwork, err)
	}
	if resp.IsError() {
		return nil, classifyStatus(store.StoreHumble, resp.StatusCode())
	}

	logging.Sources("Humble reports %d orders", len(refs))

	seen := make(map[string]bool)
	var raws []RawGame
	for _, ref := range refs {
		var order humbleOrder
		resp, err := a.client.R().
			SetContext(ctx).
			SetHeader("Cookie", "_simpleauth_sess="+cookie).
			SetQueryParam("ajax", "true").
			SetResult(&order).
			Get(fmt.Sprintf(orderURL, ref.Gamekey))
		if err != nil || resp.IsError() {
			logging.Get(logging.CategorySources).Warn("Humble order %s fetch failed, skipping", ref.Gamekey)
			continue
		}

		for _, sub := range order.Subproducts {
			if sub.HumanName == "" || sub.MachineName == "" || seen[sub.MachineName] {
				continue
			}
			if !hasGameDownload(sub) {
				continue
			}
			seen[sub.MachineName] = true

			raw := RawGame{
				Name:     sub.HumanName,
				Store:    store.StoreHumble,
				StoreID:  sub.MachineName,
				CoverURL: sub.Icon,
			}
			if sub.Payee.HumanName != "" {
				raw.Developers = []string{sub.Payee.HumanName}
			}
			if extra, err := json.Marshal(map[string]string{
				"gamekey": ref.Gamekey,
				"bundle":  order.Product.HumanName,
			}); err == nil {
				raw.ExtraData = extra
			}
			raws = append(raws, raw)
		}
	}
	return raws, nil
}

// hasGameDownload filters out ebooks and soundtracks, which share the
// subproduct shape but have no game-platform download.
func hasGameDownload(sub humbleSubproduct) bool {
	for _, d := range sub.Downloads {
		switch d.Platform {
		case "windows", "mac", "linux", "android":
			return true
		}
	}
	return false
}
