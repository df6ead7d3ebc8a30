package importer

import (
	"path/filepath"
	"testing"
	"time"

	"gamehoard/internal/sources"
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

func hours(v float64) *float64 { return &v }

func ts(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestImportCreatesAndReportsUnmatched(t *testing.T) {
	s := openTestStore(t)
	im := New(s)

	report, err := im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Portal 2", Store: store.StoreSteam, StoreID: "620", PlaytimeHours: hours(12)},
		{Name: "Half-Life", Store: store.StoreSteam, StoreID: "70"},
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if report.Created != 2 || report.Updated != 0 || report.Skipped != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if len(report.UnmatchedIDs) != 2 {
		t.Fatalf("new rows must be reported for matching: %+v", report.UnmatchedIDs)
	}

	g, err := s.GetGameByStoreKey(store.StoreSteam, "620")
	if err != nil {
		t.Fatalf("created row not found: %v", err)
	}
	if g.Name != "Portal 2" || g.PlaytimeHours == nil || *g.PlaytimeHours != 12 {
		t.Fatalf("row not populated: %+v", g)
	}
}

func TestImportSkipsInvalidRecords(t *testing.T) {
	s := openTestStore(t)
	im := New(s)

	report, err := im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "", Store: store.StoreSteam, StoreID: "1"},
		{Name: "No ID", Store: store.StoreSteam},
		{Name: "Wrong Store", Store: store.StoreGOG, StoreID: "2"},
		{Name: "Good", Store: store.StoreSteam, StoreID: "3"},
	})
	if err != nil {
		t.Fatalf("Import failed: %v", err)
	}
	if report.Skipped != 3 || report.Created != 1 {
		t.Fatalf("bad records must be skipped, rest kept: %+v", report)
	}
}

func TestImportPreservesUserFields(t *testing.T) {
	s := openTestStore(t)
	im := New(s)

	if _, err := im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Portal 2", Store: store.StoreSteam, StoreID: "620"},
	}); err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	g, _ := s.GetGameByStoreKey(store.StoreSteam, "620")
	if err := s.SetHidden(g.ID, true); err != nil {
		t.Fatalf("SetHidden failed: %v", err)
	}
	pri := int64(3)
	if err := s.SetPriority(g.ID, &pri); err != nil {
		t.Fatalf("SetPriority failed: %v", err)
	}

	report, err := im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Portal 2 (Renamed)", Store: store.StoreSteam, StoreID: "620", PlaytimeHours: hours(5)},
	})
	if err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	if report.Updated != 1 {
		t.Fatalf("expected update, got %+v", report)
	}

	g, _ = s.GetGame(g.ID)
	if g.Name != "Portal 2 (Renamed)" {
		t.Fatalf("source field not overwritten: %q", g.Name)
	}
	if !g.Hidden || g.Priority == nil || *g.Priority != 3 {
		t.Fatalf("user fields must survive re-import: hidden=%v priority=%v", g.Hidden, g.Priority)
	}
}

func TestImportKeepsEnrichedGenresWhenSourceHasNone(t *testing.T) {
	s := openTestStore(t)
	im := New(s)

	if _, err := im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Portal 2", Store: store.StoreSteam, StoreID: "620"},
	}); err != nil {
		t.Fatalf("first import failed: %v", err)
	}
	g, _ := s.GetGameByStoreKey(store.StoreSteam, "620")
	if err := s.UpdateIGDBBinding(g.ID, &store.IGDBBinding{
		IGDBID: 42, Slug: "portal-2", Genres: []string{"Puzzle", "Shooter"},
	}); err != nil {
		t.Fatalf("UpdateIGDBBinding failed: %v", err)
	}

	// Steam sends no genre field; the enriched set must survive.
	if _, err := im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Portal 2", Store: store.StoreSteam, StoreID: "620"},
	}); err != nil {
		t.Fatalf("second import failed: %v", err)
	}
	g, _ = s.GetGame(g.ID)
	if len(g.Genres) != 2 || g.Genres[0] != "Puzzle" || g.Genres[1] != "Shooter" {
		t.Fatalf("re-sync wiped enriched genres: %v", g.Genres)
	}

	// A store that does send genres still wins.
	if _, err := im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Portal 2", Store: store.StoreSteam, StoreID: "620", Genres: []string{"Co-op"}},
	}); err != nil {
		t.Fatalf("third import failed: %v", err)
	}
	g, _ = s.GetGame(g.ID)
	if len(g.Genres) != 1 || g.Genres[0] != "Co-op" {
		t.Fatalf("source genres should overwrite when present: %v", g.Genres)
	}
}

func TestImportLastModifiedTransitions(t *testing.T) {
	s := openTestStore(t)
	im := New(s)

	// Null to value fills in silently: no history row.
	im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Game", Store: store.StoreSteam, StoreID: "1"},
	})
	g, _ := s.GetGameByStoreKey(store.StoreSteam, "1")

	im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Game", Store: store.StoreSteam, StoreID: "1", LastModified: ts("2026-01-01T00:00:00Z")},
	})
	if u, _ := s.LatestUpdate(g.ID); u != nil {
		t.Fatalf("null->value must not append history, got %+v", u)
	}
	g, _ = s.GetGame(g.ID)
	if g.LastModified == nil {
		t.Fatal("last_modified not written")
	}

	// Later instant appends a version_update row.
	im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Game", Store: store.StoreSteam, StoreID: "1", LastModified: ts("2026-02-01T00:00:00Z")},
	})
	u, err := s.LatestUpdate(g.ID)
	if err != nil || u == nil {
		t.Fatalf("version bump must append history: %v %v", u, err)
	}
	if u.ManifestID != store.UpdateTagVersion {
		t.Fatalf("history tag = %q, want %q", u.ManifestID, store.UpdateTagVersion)
	}

	// Older or missing timestamps keep the stored value.
	im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Game", Store: store.StoreSteam, StoreID: "1", LastModified: ts("2025-01-01T00:00:00Z")},
	})
	g, _ = s.GetGame(g.ID)
	if !g.LastModified.Equal(*ts("2026-02-01T00:00:00Z")) {
		t.Fatalf("older timestamp must not regress stored value: %v", g.LastModified)
	}
}

func TestImportReportsPlaytimeChanges(t *testing.T) {
	s := openTestStore(t)
	im := New(s)

	im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Game", Store: store.StoreSteam, StoreID: "1", PlaytimeHours: hours(1)},
	})

	report, _ := im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Game", Store: store.StoreSteam, StoreID: "1", PlaytimeHours: hours(2)},
	})
	if len(report.PlaytimeChangedIDs) != 1 {
		t.Fatalf("playtime change not reported: %+v", report)
	}

	report, _ = im.Import(store.StoreSteam, []sources.RawGame{
		{Name: "Game", Store: store.StoreSteam, StoreID: "1", PlaytimeHours: hours(2)},
	})
	if len(report.PlaytimeChangedIDs) != 0 {
		t.Fatalf("unchanged playtime must not be reported: %+v", report)
	}
}
