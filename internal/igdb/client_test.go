package igdb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"gamehoard/internal/settings"
	"gamehoard/internal/sources"
	"gamehoard/internal/store"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	reg := settings.New(s)
	reg.Set(settings.KeyIGDBClientID, "client-id")
	reg.Set(settings.KeyIGDBClientSecret, "client-secret")

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c := NewClient(reg)
	c.apiBase = srv.URL + "/v4"
	c.oauthBase = srv.URL + "/oauth2/token"
	return c, srv
}

func TestClientCachesToken(t *testing.T) {
	var tokenRequests int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			atomic.AddInt64(&tokenRequests, 1)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": "tok", "expires_in": 3600,
			})
		case "/v4/games":
			if r.Header.Get("Authorization") != "Bearer tok" {
				http.Error(w, "no", http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 1, "name": "Game", "slug": "game"},
			})
		default:
			http.NotFound(w, r)
		}
	}))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := c.GameByID(ctx, 1); err != nil {
			t.Fatalf("GameByID %d failed: %v", i, err)
		}
	}
	if n := atomic.LoadInt64(&tokenRequests); n != 1 {
		t.Fatalf("token requested %d times, want 1 (cached)", n)
	}
}

func TestClientRefreshesTokenOnceOn401(t *testing.T) {
	var tokenRequests int64
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth2/token":
			n := atomic.AddInt64(&tokenRequests, 1)
			json.NewEncoder(w).Encode(map[string]interface{}{
				"access_token": map[int64]string{1: "stale", 2: "fresh"}[n],
				"expires_in":   3600,
			})
		case "/v4/games":
			if r.Header.Get("Authorization") != "Bearer fresh" {
				http.Error(w, "expired", http.StatusUnauthorized)
				return
			}
			json.NewEncoder(w).Encode([]map[string]interface{}{
				{"id": 7, "name": "Game", "slug": "game"},
			})
		default:
			http.NotFound(w, r)
		}
	}))

	g, err := c.GameByID(context.Background(), 7)
	if err != nil {
		t.Fatalf("GameByID failed: %v", err)
	}
	if g.ID != 7 {
		t.Fatalf("unexpected game: %+v", g)
	}
	if n := atomic.LoadInt64(&tokenRequests); n != 2 {
		t.Fatalf("token requested %d times, want 2 (initial + one refresh)", n)
	}
}

func TestClientMissingGameIsNotFound(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/token" {
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		json.NewEncoder(w).Encode([]interface{}{})
	}))

	_, err := c.GameByID(context.Background(), 999)
	if !errors.Is(err, sources.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for empty result, got %v", err)
	}
}

func TestClientRateLimited(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/oauth2/token" {
			json.NewEncoder(w).Encode(map[string]interface{}{"access_token": "tok", "expires_in": 3600})
			return
		}
		http.Error(w, "too many", http.StatusTooManyRequests)
	}))

	_, err := c.SearchGames(context.Background(), "anything", 10)
	if !errors.Is(err, sources.ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited, got %v", err)
	}
}

func TestPopularityByIDsEmptyBatch(t *testing.T) {
	c, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("empty batch must not hit the network")
	}))

	rows, err := c.PopularityByIDs(context.Background(), 1, nil)
	if err != nil || rows != nil {
		t.Fatalf("empty batch: rows=%v err=%v", rows, err)
	}
}
