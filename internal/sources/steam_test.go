package sources

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"gamehoard/internal/settings"
)

func TestSteamFetchNotConfigured(t *testing.T) {
	a := NewSteamAdapter(newTestSettings(t))
	_, err := a.Fetch(context.Background())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestSteamFetchWithReviewEnrichment(t *testing.T) {
	reg := newTestSettings(t)
	if err := reg.Set(settings.KeySteamAPIKey, "key"); err != nil {
		t.Fatal(err)
	}
	if err := reg.Set(settings.KeySteamUserID, "7656119"); err != nil {
		t.Fatal(err)
	}

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"response": map[string]interface{}{
				"game_count": 2,
				"games": []map[string]interface{}{
					{"appid": 440, "name": "Team Fortress 2", "playtime_forever": 90},
					{"appid": 570, "name": "Dota 2", "playtime_forever": 0},
				},
			},
		})
	}))
	defer api.Close()

	var reviewCalls int64
	storeSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt64(&reviewCalls, 1)
		if r.URL.Path == "/appreviews/570" {
			// One failing review fetch degrades to no-review.
			http.Error(w, "nope", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": 1,
			"query_summary": map[string]interface{}{
				"review_score":      8,
				"review_score_desc": "Very Positive",
				"total_reviews":     1000,
			},
		})
	}))
	defer storeSrv.Close()

	a := NewSteamAdapter(reg)
	a.apiBase = api.URL
	a.storeBase = storeSrv.URL

	raws, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("Fetch failed: %v", err)
	}
	if len(raws) != 2 {
		t.Fatalf("got %d games, want 2", len(raws))
	}
	if atomic.LoadInt64(&reviewCalls) != 2 {
		t.Fatalf("review calls = %d, want 2", reviewCalls)
	}

	tf2 := raws[0]
	if tf2.Name != "Team Fortress 2" || tf2.StoreID != "440" {
		t.Fatalf("unexpected record: %+v", tf2)
	}
	if tf2.PlaytimeHours == nil || *tf2.PlaytimeHours != 1.5 {
		t.Fatalf("playtime minutes not converted to hours: %v", tf2.PlaytimeHours)
	}

	var extra map[string]json.RawMessage
	if err := json.Unmarshal(tf2.ExtraData, &extra); err != nil {
		t.Fatalf("extra data not JSON: %v", err)
	}
	if _, ok := extra["review_summary"]; !ok {
		t.Fatal("review summary missing from enriched record")
	}

	// The failed review fetch must not attach a summary.
	var dotaExtra map[string]json.RawMessage
	if err := json.Unmarshal(raws[1].ExtraData, &dotaExtra); err != nil {
		t.Fatalf("extra data not JSON: %v", err)
	}
	if _, ok := dotaExtra["review_summary"]; ok {
		t.Fatal("failed review fetch should degrade to no-review")
	}
}

func TestSteamFetchAuthRejected(t *testing.T) {
	reg := newTestSettings(t)
	reg.Set(settings.KeySteamAPIKey, "bad")
	reg.Set(settings.KeySteamUserID, "1")

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer api.Close()

	a := NewSteamAdapter(reg)
	a.apiBase = api.URL

	_, err := a.Fetch(context.Background())
	if !errors.Is(err, ErrAuthExpired) {
		t.Fatalf("expected ErrAuthExpired on 403, got %v", err)
	}
}
