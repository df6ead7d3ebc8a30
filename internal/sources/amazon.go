package sources

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-resty/resty/v2"

	"gamehoard/internal/logging"
	"gamehoard/internal/settings"
	"gamehoard/internal/store"
)

const (
	amazonTokenURL        = "https://api.amazon.com/auth/token"
	amazonRegisterURL     = "https://api.amazon.com/auth/register"
	amazonEntitlementsURL = "https://gaming.amazon.com/api/distribution/entitlements"

	amazonClientID = "amzn1.application-oa2-client.gamehoard"
)

// amazonTokens is the persisted OAuth token pair. Stored as one JSON
// value so the pair never goes out of sync.
type amazonTokens struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// AmazonAdapter merges two sources: the Amazon Games app's local SQLite
// catalog (when present) and the authenticated entitlements API.
// Records are deduplicated by product id, API records winning.
type AmazonAdapter struct {
	settings *settings.Registry
	client   *resty.Client
	baseURL  string
}

// NewAmazonAdapter builds the adapter.
func NewAmazonAdapter(reg *settings.Registry) *AmazonAdapter {
	return &AmazonAdapter{settings: reg, client: newSourceClient()}
}

func (a *AmazonAdapter) Store() string { return store.StoreAmazon }

type amazonProduct struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	ProductLine string `json:"productLine"`
	Developer   string `json:"developer"`
	IconURL     string `json:"iconUrl"`
	ReleaseDate string `json:"releaseDate"`
}

type amazonEntitlement struct {
	Product amazonProduct `json:"product"`
}

type amazonEntitlementsResponse struct {
	Entitlements []amazonEntitlement `json:"entitlements"`
	NextToken    string              `json:"nextToken"`
}

// Fetch reads the local catalog first, then overlays API entitlements.
// Either half alone is a valid result; both missing is NotConfigured.
func (a *AmazonAdapter) Fetch(ctx context.Context) ([]RawGame, error) {
	timer := logging.StartTimer(logging.CategorySources, "amazon.Fetch")
	defer timer.Stop()

	byID := make(map[string]RawGame)
	var order []string

	localOK := false
	if locals, err := a.fetchLocal(ctx); err == nil {
		localOK = true
		for _, raw := range locals {
			if _, dup := byID[raw.StoreID]; !dup {
				order = append(order, raw.StoreID)
			}
			byID[raw.StoreID] = raw
		}
	} else if !errors.Is(err, ErrNotConfigured) {
		logging.Get(logging.CategorySources).Warn("Amazon local catalog failed: %v", err)
	}

	remotes, err := a.fetchEntitlements(ctx)
	if err != nil {
		if !localOK {
			return nil, err
		}
		logging.Get(logging.CategorySources).Warn("Amazon entitlements failed, using local catalog only: %v", err)
	}
	for _, raw := range remotes {
		if _, dup := byID[raw.StoreID]; !dup {
			order = append(order, raw.StoreID)
		}
		byID[raw.StoreID] = raw
	}

	raws := make([]RawGame, 0, len(order))
	for _, id := range order {
		raws = append(raws, byID[id])
	}
	logging.Sources("Amazon reports %d games (local=%v)", len(raws), localOK)
	return raws, nil
}

// fetchLocal reads the Amazon Games app's library database.
func (a *AmazonAdapter) fetchLocal(ctx context.Context) ([]RawGame, error) {
	dbPath := a.settings.String(settings.KeyAmazonDBPath, "")
	if dbPath == "" {
		return nil, NotConfiguredError(store.StoreAmazon, "amazon_db_path")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("amazon: database %s not readable: %w", dbPath, ErrNotConfigured)
	}

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("amazon: open database: %v: %w", err, ErrParse)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		"SELECT ProductIdStr, ProductTitle, ProductIconUrl FROM DbSet WHERE ProductTitle IS NOT NULL")
	if err != nil {
		return nil, fmt.Errorf("amazon: query local catalog: %v: %w", err, ErrParse)
	}
	defer rows.Close()

	var raws []RawGame
	for rows.Next() {
		var id, title string
		var icon sql.NullString
		if err := rows.Scan(&id, &title, &icon); err != nil {
			continue
		}
		raw := RawGame{
			Name:     title,
			Store:    store.StoreAmazon,
			StoreID:  id,
			CoverURL: icon.String,
		}
		if extra, err := json.Marshal(map[string]string{"origin": "local"}); err == nil {
			raw.ExtraData = extra
		}
		raws = append(raws, raw)
	}
	return raws, rows.Err()
}

// fetchEntitlements pages the entitlements API with nextToken cursors,
// refreshing the access token once on rejection.
func (a *AmazonAdapter) fetchEntitlements(ctx context.Context) ([]RawGame, error) {
	tokens, err := a.loadTokens()
	if err != nil {
		return nil, err
	}
	if time.Now().After(tokens.ExpiresAt) {
		if tokens, err = a.refreshTokens(ctx, tokens); err != nil {
			return nil, err
		}
	}

	url := amazonEntitlementsURL
	if a.baseURL != "" {
		url = a.baseURL + "/api/distribution/entitlements"
	}

	var raws []RawGame
	nextToken := ""
	refreshed := false
	for {
		var parsed amazonEntitlementsResponse
		req := a.client.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+tokens.AccessToken).
			SetBody(map[string]string{"nextToken": nextToken}).
			SetResult(&parsed)
		resp, err := req.Post(url)
		if err != nil {
			return nil, fmt.Errorf("amazon: entitlements: %w: %v", ErrNetwork, err)
		}
		if resp.StatusCode() == 401 && !refreshed {
			// One automatic refresh, then the page is retried.
			refreshed = true
			if tokens, err = a.refreshTokens(ctx, tokens); err != nil {
				return nil, err
			}
			continue
		}
		if resp.IsError() {
			return nil, classifyStatus(store.StoreAmazon, resp.StatusCode())
		}

		for _, ent := range parsed.Entitlements {
			p := ent.Product
			if p.Title == "" || p.ID == "" {
				continue
			}
			raw := RawGame{
				Name:      p.Title,
				Store:     store.StoreAmazon,
				StoreID:   p.ID,
				CoverURL:  p.IconURL,
				Streaming: p.ProductLine == "Luna",
			}
			if p.Developer != "" {
				raw.Developers = []string{p.Developer}
			}
			if t, err := time.Parse(time.RFC3339, p.ReleaseDate); err == nil {
				raw.ReleaseDate = &t
			}
			if extra, err := json.Marshal(ent); err == nil {
				raw.ExtraData = extra
			}
			raws = append(raws, raw)
		}

		if parsed.NextToken == "" {
			break
		}
		nextToken = parsed.NextToken
	}
	return raws, nil
}

func (a *AmazonAdapter) loadTokens() (*amazonTokens, error) {
	blob := a.settings.String(settings.KeyAmazonTokens, "")
	if blob == "" {
		return nil, NotConfiguredError(store.StoreAmazon, "amazon_oauth_tokens")
	}
	var tokens amazonTokens
	if err := json.Unmarshal([]byte(blob), &tokens); err != nil {
		return nil, fmt.Errorf("amazon: corrupt token setting: %w", ErrParse)
	}
	if tokens.RefreshToken == "" {
		return nil, NotConfiguredError(store.StoreAmazon, "amazon refresh token")
	}
	return &tokens, nil
}

// refreshTokens exchanges the refresh token and persists the new pair.
// A rejected refresh means the user must redo device registration.
func (a *AmazonAdapter) refreshTokens(ctx context.Context, old *amazonTokens) (*amazonTokens, error) {
	tokenURL := amazonTokenURL
	if a.baseURL != "" {
		tokenURL = a.baseURL + "/auth/token"
	}

	var parsed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]string{
			"grant_type":    "refresh_token",
			"refresh_token": old.RefreshToken,
			"client_id":     amazonClientID,
		}).
		SetResult(&parsed).
		Post(tokenURL)
	if err != nil {
		return nil, fmt.Errorf("amazon: token refresh: %w: %v", ErrNetwork, err)
	}
	if resp.IsError() || parsed.AccessToken == "" {
		return nil, fmt.Errorf("amazon: token refresh rejected: %w", ErrAuthExpired)
	}

	tokens := &amazonTokens{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}
	if tokens.RefreshToken == "" {
		tokens.RefreshToken = old.RefreshToken
	}
	if err := a.saveTokens(tokens); err != nil {
		return nil, err
	}
	logging.Sources("Amazon access token refreshed")
	return tokens, nil
}

func (a *AmazonAdapter) saveTokens(tokens *amazonTokens) error {
	blob, err := json.Marshal(tokens)
	if err != nil {
		return err
	}
	return a.settings.Set(settings.KeyAmazonTokens, string(blob))
}

// PKCEChallenge is a device-registration code verifier/challenge pair.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
}

// NewPKCEChallenge generates an S256 verifier/challenge pair for the
// device registration flow.
func NewPKCEChallenge() (*PKCEChallenge, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	verifier := base64.RawURLEncoding.EncodeToString(buf)
	sum := sha256.Sum256([]byte(verifier))
	return &PKCEChallenge{
		Verifier:  verifier,
		Challenge: base64.RawURLEncoding.EncodeToString(sum[:]),
	}, nil
}

// RegisterDevice completes the PKCE device flow with the authorization
// code the user pasted, persisting the resulting token pair.
func (a *AmazonAdapter) RegisterDevice(ctx context.Context, authCode string, pkce *PKCEChallenge) error {
	registerURL := amazonRegisterURL
	if a.baseURL != "" {
		registerURL = a.baseURL + "/auth/register"
	}

	var parsed struct {
		Response struct {
			Success struct {
				Tokens struct {
					Bearer struct {
						AccessToken  string `json:"access_token"`
						RefreshToken string `json:"refresh_token"`
						ExpiresIn    string `json:"expires_in"`
					} `json:"bearer"`
				} `json:"tokens"`
			} `json:"success"`
		} `json:"response"`
	}
	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(map[string]interface{}{
			"auth_data": map[string]string{
				"authorization_code": authCode,
				"code_verifier":      pkce.Verifier,
				"client_id":          amazonClientID,
			},
			"registration_data": map[string]string{
				"app_name": "gamehoard",
				"domain":   "Device",
			},
		}).
		SetResult(&parsed).
		Post(registerURL)
	if err != nil {
		return fmt.Errorf("amazon: device registration: %w: %v", ErrNetwork, err)
	}
	bearer := parsed.Response.Success.Tokens.Bearer
	if resp.IsError() || bearer.AccessToken == "" {
		return fmt.Errorf("amazon: device registration rejected: %w", ErrAuthExpired)
	}

	return a.saveTokens(&amazonTokens{
		AccessToken:  bearer.AccessToken,
		RefreshToken: bearer.RefreshToken,
		ExpiresAt:    time.Now().Add(55 * time.Minute),
	})
}
