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

func TestHumbleFetchFlattensOrders(t *testing.T) {
	reg := newTestSettings(t)
	reg.Set(settings.KeyHumbleSession, "cookie-value")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/user/order":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode([]map[string]string{
				{"gamekey": "order-1"},
				{"gamekey": "order-2"},
			})
		case "/api/v1/order/order-1":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"product": map[string]string{"human_name": "Indie Bundle"},
				"subproducts": []map[string]interface{}{
					{
						"machine_name": "hollow_knight",
						"human_name":   "Hollow Knight",
						"icon":         "https://img/hk.png",
						"downloads":    []map[string]string{{"platform": "windows"}},
					},
					{
						"machine_name": "soundtrack_ost",
						"human_name":   "Bundle Soundtrack",
						"downloads":    []map[string]string{{"platform": "audio"}},
					},
				},
			})
		case "/api/v1/order/order-2":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]interface{}{
				"subproducts": []map[string]interface{}{
					{
						// Duplicate across orders, deduped by machine name.
						"machine_name": "hollow_knight",
						"human_name":   "Hollow Knight",
						"downloads":    []map[string]string{{"platform": "linux"}},
					},
				},
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	a := NewHumbleAdapter(reg)
	a.baseURL = srv.URL

	raws, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(raws) != 1 {
		t.Fatalf("got %d games, want 1 (soundtrack filtered, duplicate deduped)", len(raws))
	}
	if raws[0].StoreID != "hollow_knight" || raws[0].CoverURL != "https://img/hk.png" {
		t.Fatalf("unexpected record: %+v", raws[0])
	}
}

func TestHumbleFetchNotConfigured(t *testing.T) {
	a := NewHumbleAdapter(newTestSettings(t))
	if _, err := a.Fetch(context.Background()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}
