package tracker

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"gamehoard/internal/store"
)

func openTestStore(t *testing.T) *store.LibraryStore {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("store.Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func ts(s string) *time.Time {
	v, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &v
}

func addGame(t *testing.T, s *store.LibraryStore, lastModified *time.Time) *store.Game {
	t.Helper()
	id, err := s.CreateGame(&store.Game{
		Store: store.StoreSteam, StoreID: "440", Name: "Team Fortress 2",
		LastModified: lastModified,
	})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	g, err := s.GetGame(id)
	if err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
	return g
}

func TestApplyInitialVersion(t *testing.T) {
	s := openTestStore(t)
	tr := New(s, nil, nil)
	g := addGame(t, s, nil)

	changed, err := tr.Apply(g, Observation{LastModified: ts("2026-01-01T00:00:00Z"), ObservedAt: time.Now()})
	if err != nil || !changed {
		t.Fatalf("Apply: changed=%v err=%v", changed, err)
	}

	u, err := s.LatestUpdate(g.ID)
	if err != nil || u == nil {
		t.Fatalf("expected history row: %v %v", u, err)
	}
	if u.ManifestID != store.UpdateTagInitial {
		t.Fatalf("tag = %q, want %q", u.ManifestID, store.UpdateTagInitial)
	}

	got, _ := s.GetGame(g.ID)
	if got.LastModified == nil || !got.LastModified.Equal(*ts("2026-01-01T00:00:00Z")) {
		t.Fatalf("last_modified not set: %v", got.LastModified)
	}
}

func TestApplyVersionUpdate(t *testing.T) {
	s := openTestStore(t)
	tr := New(s, nil, nil)
	g := addGame(t, s, ts("2026-01-01T00:00:00Z"))

	changed, err := tr.Apply(g, Observation{LastModified: ts("2026-03-01T00:00:00Z"), ObservedAt: time.Now()})
	if err != nil || !changed {
		t.Fatalf("Apply: changed=%v err=%v", changed, err)
	}

	u, _ := s.LatestUpdate(g.ID)
	if u == nil || u.ManifestID != store.UpdateTagVersion {
		t.Fatalf("expected version_update row, got %+v", u)
	}
	if !u.UpdateTimestamp.Equal(*ts("2026-03-01T00:00:00Z")) {
		t.Fatalf("history must carry the store-reported time: %v", u.UpdateTimestamp)
	}
}

func TestApplyOlderTimestampIsNoop(t *testing.T) {
	s := openTestStore(t)
	tr := New(s, nil, nil)
	g := addGame(t, s, ts("2026-01-01T00:00:00Z"))

	changed, err := tr.Apply(g, Observation{LastModified: ts("2025-06-01T00:00:00Z"), ObservedAt: time.Now()})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if changed {
		t.Fatal("older timestamp must be a no-op")
	}
	if u, _ := s.LatestUpdate(g.ID); u != nil {
		t.Fatalf("no history row expected, got %+v", u)
	}
}

func TestApplyEarlyAccessRelease(t *testing.T) {
	s := openTestStore(t)
	tr := New(s, nil, nil)
	g := addGame(t, s, nil)
	if err := s.SetDevelopmentStatus(g.ID, store.StatusEarlyAccess, "0.9"); err != nil {
		t.Fatalf("SetDevelopmentStatus failed: %v", err)
	}
	g, _ = s.GetGame(g.ID)

	changed, err := tr.Apply(g, Observation{Released: true, ObservedAt: time.Now()})
	if err != nil || !changed {
		t.Fatalf("Apply: changed=%v err=%v", changed, err)
	}

	got, _ := s.GetGame(g.ID)
	if got.DevelopmentStatus != store.StatusReleased {
		t.Fatalf("status = %q, want released", got.DevelopmentStatus)
	}
	u, _ := s.LatestUpdate(g.ID)
	if u == nil || u.ManifestID != store.UpdateTagEARelease {
		t.Fatalf("expected ea_release row, got %+v", u)
	}
}

func TestApplyReleasedStaysReleased(t *testing.T) {
	s := openTestStore(t)
	tr := New(s, nil, nil)
	g := addGame(t, s, nil)
	if err := s.SetDevelopmentStatus(g.ID, store.StatusReleased, "1.0"); err != nil {
		t.Fatalf("SetDevelopmentStatus failed: %v", err)
	}
	g, _ = s.GetGame(g.ID)

	changed, err := tr.Apply(g, Observation{Released: true, ObservedAt: time.Now()})
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if changed {
		t.Fatal("released game must not transition again")
	}
}

type fakePICS struct {
	infos map[int64]ProductInfo
	calls int64
}

func (f *fakePICS) ProductInfo(ctx context.Context, appIDs []int64) (map[int64]ProductInfo, error) {
	atomic.AddInt64(&f.calls, 1)
	return f.infos, nil
}

func TestCheckPrefersPICS(t *testing.T) {
	s := openTestStore(t)
	g := addGame(t, s, ts("2026-01-01T00:00:00Z"))
	appID := int64(440)
	if err := s.SetSteamAppID(g.ID, appID); err != nil {
		t.Fatalf("SetSteamAppID failed: %v", err)
	}
	g, _ = s.GetGame(g.ID)

	httpSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("HTTP fallback must not be used when PICS answers")
	}))
	defer httpSrv.Close()
	steam := NewSteamStoreClient()
	steam.baseURL = httpSrv.URL

	pics := &fakePICS{infos: map[int64]ProductInfo{
		appID: {ChangeNumber: 12345, LastChanged: *ts("2026-04-01T00:00:00Z")},
	}}
	tr := New(s, steam, pics)

	changed, err := tr.Check(context.Background(), g)
	if err != nil || !changed {
		t.Fatalf("Check: changed=%v err=%v", changed, err)
	}
	u, _ := s.LatestUpdate(g.ID)
	if u == nil || u.ManifestID != store.UpdateTagVersion {
		t.Fatalf("PICS change must produce a version_update, got %+v", u)
	}
}

func TestFetchAppDetailsEarlyAccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{
			"730": map[string]interface{}{
				"success": true,
				"data": map[string]interface{}{
					"name": "Some EA Game",
					"categories": []map[string]interface{}{
						{"id": 2, "description": "Single-player"},
						{"id": 29, "description": "Early Access"},
					},
					"release_date": map[string]interface{}{"coming_soon": false, "date": "1 Jan, 2026"},
				},
			},
		})
	}))
	defer srv.Close()

	c := NewSteamStoreClient()
	c.baseURL = srv.URL

	d, err := c.FetchAppDetails(context.Background(), 730)
	if err != nil {
		t.Fatalf("FetchAppDetails failed: %v", err)
	}
	if !d.EarlyAccess || d.ComingSoon {
		t.Fatalf("early access not detected: %+v", d)
	}
}

func TestEpicCheckReportsNoData(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateGame(&store.Game{Store: store.StoreEpic, StoreID: "fortnite", Name: "Fortnite"})
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	g, _ := s.GetGame(id)

	tr := New(s, nil, nil)
	changed, err := tr.Check(context.Background(), g)
	if err != nil {
		t.Fatalf("epic check must not fail: %v", err)
	}
	if changed {
		t.Fatal("epic has no update source")
	}
}

func TestEpicEarlyAccess(t *testing.T) {
	extra := json.RawMessage(`{"metadata":{"customAttributes":{"EarlyAccess":{"type":"BOOLEAN","value":"true"}}}}`)
	if !EpicEarlyAccess(extra) {
		t.Fatal("EarlyAccess attribute not detected")
	}
	if EpicEarlyAccess(json.RawMessage(`{"metadata":{}}`)) {
		t.Fatal("missing attribute must be false")
	}
	if EpicEarlyAccess(nil) {
		t.Fatal("nil payload must be false")
	}
}
