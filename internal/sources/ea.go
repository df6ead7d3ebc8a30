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
	eaGraphQLURL = "https://service-aggregation-layer.juno.ea.com/graphql"

	// eaEntitlementsHash identifies the persisted ownedGameProducts
	// query server-side; the query text itself is never sent.
	eaEntitlementsHash = "4dcaf1b5a2a6a17595e4f894e2b1832152e95f5e0b567166a92a1e77028e3a0f"
)

// EAAdapter queries the EA aggregation layer with a persisted GraphQL
// query and a user-supplied bearer token, following cursor pagination.
type EAAdapter struct {
	settings *settings.Registry
	client   *resty.Client
	baseURL  string
}

// NewEAAdapter builds the adapter.
func NewEAAdapter(reg *settings.Registry) *EAAdapter {
	return &EAAdapter{settings: reg, client: newSourceClient()}
}

func (a *EAAdapter) Store() string { return store.StoreEA }

type eaGameProduct struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	BaseSlug    string `json:"baseSlug"`
	PackArtURL  string `json:"packArtUrl"`
	DeveloperBy string `json:"developedBy"`
	PublishedBy string `json:"publishedBy"`
}

type eaEntitlementsPage struct {
	Data struct {
		Me struct {
			OwnedGameProducts struct {
				Items    []eaGameProduct `json:"items"`
				PageInfo struct {
					HasNextPage bool   `json:"hasNextPage"`
					EndCursor   string `json:"endCursor"`
				} `json:"pageInfo"`
			} `json:"ownedGameProducts"`
		} `json:"me"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Fetch pages the owned-products query until hasNextPage is false.
func (a *EAAdapter) Fetch(ctx context.Context) ([]RawGame, error) {
	token := a.settings.String(settings.KeyEABearerToken, "")
	if token == "" {
		return nil, NotConfiguredError(store.StoreEA, "ea_bearer_token")
	}

	timer := logging.StartTimer(logging.CategorySources, "ea.Fetch")
	defer timer.Stop()

	url := eaGraphQLURL
	if a.baseURL != "" {
		url = a.baseURL + "/graphql"
	}

	var raws []RawGame
	cursor := ""
	for {
		variables := map[string]interface{}{"first": 50}
		if cursor != "" {
			variables["after"] = cursor
		}
		varJSON, _ := json.Marshal(variables)
		extJSON, _ := json.Marshal(map[string]interface{}{
			"persistedQuery": map[string]interface{}{
				"version":    1,
				"sha256Hash": eaEntitlementsHash,
			},
		})

		var page eaEntitlementsPage
		resp, err := a.client.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+token).
			SetQueryParams(map[string]string{
				"operationName": "ownedGameProducts",
				"variables":     string(varJSON),
				"extensions":    string(extJSON),
			}).
			SetResult(&page).
			Get(url)
		if err != nil {
			return nil, fmt.Errorf("ea: entitlements: %w: %v", ErrNetwork, err)
		}
		if resp.IsError() {
			return nil, classifyStatus(store.StoreEA, resp.StatusCode())
		}
		if len(page.Errors) > 0 {
			return nil, fmt.Errorf("ea: graphql error %q: %w", page.Errors[0].Message, ErrParse)
		}

		products := page.Data.Me.OwnedGameProducts
		for _, p := range products.Items {
			if p.Name == "" || p.ID == "" {
				continue
			}
			raw := RawGame{
				Name:     p.Name,
				Store:    store.StoreEA,
				StoreID:  p.ID,
				CoverURL: p.PackArtURL,
			}
			if p.DeveloperBy != "" {
				raw.Developers = []string{p.DeveloperBy}
			}
			if p.PublishedBy != "" {
				raw.Publishers = []string{p.PublishedBy}
			}
			if extra, err := json.Marshal(p); err == nil {
				raw.ExtraData = extra
			}
			raws = append(raws, raw)
		}

		if !products.PageInfo.HasNextPage || products.PageInfo.EndCursor == "" {
			break
		}
		cursor = products.PageInfo.EndCursor
	}

	logging.Sources("EA reports %d owned products", len(raws))
	return raws, nil
}
