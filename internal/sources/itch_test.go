package sources

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gamehoard/internal/settings"
)

func TestItchFetchPaginatesUntilEmpty(t *testing.T) {
	reg := newTestSettings(t)
	reg.Set(settings.KeyItchToken, "token")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		page := r.URL.Query().Get("page")
		switch page {
		case "1":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"owned_keys": []map[string]interface{}{
					{"id": 1, "game": map[string]interface{}{"id": 10, "title": "Celeste", "cover_url": "https://img/celeste.png"}},
					{"id": 2, "game": map[string]interface{}{"id": 11, "title": "Baba Is You"}},
				},
			})
		case "2":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"owned_keys": []map[string]interface{}{
					{"id": 3, "game": map[string]interface{}{"id": 12, "title": "Noita"}},
				},
			})
		default:
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{"owned_keys": []interface{}{}})
		}
	}))
	defer srv.Close()

	a := NewItchAdapter(reg)
	a.baseURL = srv.URL

	raws, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(raws) != 3 {
		t.Fatalf("got %d games across pages, want 3", len(raws))
	}
	if raws[0].StoreID != "10" || raws[2].Name != "Noita" {
		t.Fatalf("unexpected records: %+v", raws)
	}
}

func TestItchFetchNotConfigured(t *testing.T) {
	a := NewItchAdapter(newTestSettings(t))
	if _, err := a.Fetch(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestItchFetchRateLimited(t *testing.T) {
	reg := newTestSettings(t)
	reg.Set(settings.KeyItchToken, "token")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	a := NewItchAdapter(reg)
	a.baseURL = srv.URL

	if _, err := a.Fetch(context.Background()); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited on 429, got %v", err)
	}
}
