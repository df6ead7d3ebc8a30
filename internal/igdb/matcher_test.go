package igdb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"gamehoard/internal/sources"
)

func unixYear(year int) int64 {
	return time.Date(year, 6, 1, 0, 0, 0, 0, time.UTC).Unix()
}

func TestBestExactMatchPrefersCloseYear(t *testing.T) {
	candidates := []Game{
		{ID: 1, Name: "DOOM", FirstReleaseDate: unixYear(1993), TotalRatingCount: 900},
		{ID: 2, Name: "DOOM", FirstReleaseDate: unixYear(2016), TotalRatingCount: 500},
	}

	g := bestExactMatch("doom", candidates, 2016)
	if g == nil || g.ID != 2 {
		t.Fatalf("year rung should pick the 2016 release, got %+v", g)
	}

	// Without a year, ties go to the higher rating count.
	g = bestExactMatch("doom", candidates, 0)
	if g == nil || g.ID != 1 {
		t.Fatalf("tie break should pick higher total_rating_count, got %+v", g)
	}
}

func TestBestExactMatchYearTolerance(t *testing.T) {
	candidates := []Game{
		{ID: 1, Name: "Game", FirstReleaseDate: unixYear(2019)},
	}
	if g := bestExactMatch("game", candidates, 2020); g == nil {
		t.Fatal("one year apart should still match")
	}
	if g := bestExactMatch("game", candidates, 2022); g != nil {
		t.Fatal("three years apart must not match on the year rung")
	}
}

func TestBestExactMatchSkipsUndatedOnYearRung(t *testing.T) {
	candidates := []Game{{ID: 1, Name: "Game"}}
	if g := bestExactMatch("game", candidates, 2020); g != nil {
		t.Fatal("undated candidate cannot satisfy the year rung")
	}
}

func TestBestFuzzyMatch(t *testing.T) {
	candidates := []Game{
		{ID: 1, Name: "The Witcher 3: Wild Hunt", TotalRatingCount: 2000},
		{ID: 2, Name: "The Witcher 2: Assassins of Kings", TotalRatingCount: 800},
		{ID: 3, Name: "Completely Different Title", TotalRatingCount: 5000},
	}

	g := bestFuzzyMatch("the witcher 3 wild hunt goty", candidates)
	if g == nil || g.ID != 1 {
		t.Fatalf("fuzzy rung picked %+v, want The Witcher 3", g)
	}
}

func TestBestFuzzyMatchRespectsFloor(t *testing.T) {
	candidates := []Game{
		{ID: 1, Name: "Totally Unrelated Game"},
	}
	if g := bestFuzzyMatch("stardew valley", candidates); g != nil {
		t.Fatalf("below-floor candidate must not match, got %+v", g)
	}
}

func TestMatchReportsNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok", "expires_in": 3600,
			})
		case "/v4/games":
			json.NewEncoder(w).Encode([]map[string]interface{}{})
		default:
			http.NotFound(w, r)
		}
	}))

	ctx := context.Background()
	match, err := c.Match(ctx, "Completely Unknown Title", nil)
	if !errors.Is(err, sources.ErrNotFound) {
		t.Fatalf("empty candidate set: want ErrNotFound, got match=%v err=%v", match, err)
	}
	if match != nil {
		t.Fatalf("no-match must not return a record: %+v", match)
	}

	// A name that normalizes to nothing never reaches the API.
	if _, err := c.Match(ctx, "™©®", nil); !errors.Is(err, sources.ErrNotFound) {
		t.Fatalf("empty normalized name: want ErrNotFound, got %v", err)
	}
}

func TestMatchNotFoundBelowSimilarityFloor(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok", "expires_in": 3600,
			})
		case "/v4/games":
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 7, "name": "Entirely Different Game"},
			})
		default:
			http.NotFound(w, r)
		}
	}))

	match, err := c.Match(context.Background(), "Stardew Valley", nil)
	if !errors.Is(err, sources.ErrNotFound) {
		t.Fatalf("dissimilar candidates: want ErrNotFound, got match=%v err=%v", match, err)
	}
}
