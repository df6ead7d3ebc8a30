package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func openTestStore(t *testing.T) *LibraryStore {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func mustCreate(t *testing.T, s *LibraryStore, g *Game) int64 {
	t.Helper()
	id, err := s.CreateGame(g)
	if err != nil {
		t.Fatalf("CreateGame failed: %v", err)
	}
	return id
}

func TestOpenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	s1, err := Open(path)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	s1.Close()

	// Second open re-runs schema bootstrap and migrations against an
	// existing file.
	s2, err := Open(path)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	if _, err := s2.Stats(); err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
}

func TestCreateAndGetGame(t *testing.T) {
	s := openTestStore(t)

	playtime := 12.5
	id := mustCreate(t, s, &Game{
		Store:         StoreSteam,
		StoreID:       "440",
		Name:          "Team Fortress 2",
		PlaytimeHours: &playtime,
		CoverURL:      "https://example.com/cover.jpg",
		Genres:        []string{"Action", "FPS"},
		Developers:    []string{"Valve"},
	})

	g, err := s.GetGame(id)
	if err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
	if g.Name != "Team Fortress 2" || g.Store != StoreSteam || g.StoreID != "440" {
		t.Fatalf("unexpected game: %+v", g)
	}
	if g.PlaytimeHours == nil || *g.PlaytimeHours != 12.5 {
		t.Fatalf("playtime not round-tripped: %v", g.PlaytimeHours)
	}
	if diff := cmp.Diff([]string{"Action", "FPS"}, g.Genres); diff != "" {
		t.Fatalf("genres mismatch (-want +got):\n%s", diff)
	}
	if g.Hidden || g.NSFW || g.Priority != nil {
		t.Fatalf("user fields should start at defaults: %+v", g)
	}

	byKey, err := s.GetGameByStoreKey(StoreSteam, "440")
	if err != nil {
		t.Fatalf("GetGameByStoreKey failed: %v", err)
	}
	if byKey.ID != id {
		t.Fatalf("store key lookup returned wrong row: %d != %d", byKey.ID, id)
	}
}

func TestGetGameNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetGame(12345); err != ErrGameNotFound {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestUpdateGameSourcePreservesUserFields(t *testing.T) {
	s := openTestStore(t)
	id := mustCreate(t, s, &Game{Store: StoreGOG, StoreID: "witcher3", Name: "The Witcher 3"})

	if err := s.SetHidden(id, true); err != nil {
		t.Fatalf("SetHidden failed: %v", err)
	}
	rating := 9.5
	if err := s.SetPersonalRating(id, &rating); err != nil {
		t.Fatalf("SetPersonalRating failed: %v", err)
	}
	if err := s.SetCoverOverride(id, "https://example.com/custom.jpg"); err != nil {
		t.Fatalf("SetCoverOverride failed: %v", err)
	}

	playtime := 80.0
	err := s.UpdateGameSource(id, &Game{
		Name:          "The Witcher 3: Wild Hunt",
		PlaytimeHours: &playtime,
		CoverURL:      "https://example.com/new-cover.jpg",
	})
	if err != nil {
		t.Fatalf("UpdateGameSource failed: %v", err)
	}

	g, err := s.GetGame(id)
	if err != nil {
		t.Fatalf("GetGame failed: %v", err)
	}
	if g.Name != "The Witcher 3: Wild Hunt" {
		t.Fatalf("source field not updated: %q", g.Name)
	}
	if !g.Hidden {
		t.Fatal("hidden flag lost on source update")
	}
	if g.PersonalRating == nil || *g.PersonalRating != 9.5 {
		t.Fatalf("personal rating lost on source update: %v", g.PersonalRating)
	}
	if g.CoverURLOverride != "https://example.com/custom.jpg" {
		t.Fatalf("cover override lost on source update: %q", g.CoverURLOverride)
	}
}

func TestIGDBBindingBackfillRules(t *testing.T) {
	s := openTestStore(t)

	// Binding genres land verbatim: the enricher already computed the
	// union with the store's set. NSFW is raised but never cleared.
	withGenres := mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "1", Name: "A", Genres: []string{"RPG"}})
	without := mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "2", Name: "B"})

	binding := &IGDBBinding{
		IGDBID:      42,
		Slug:        "some-game",
		Genres:      []string{"RPG", "Strategy"},
		Screenshots: []string{"s1.jpg", "s2.jpg"},
		NSFW:        false,
	}
	for _, id := range []int64{withGenres, without} {
		if err := s.UpdateIGDBBinding(id, binding); err != nil {
			t.Fatalf("UpdateIGDBBinding failed: %v", err)
		}
	}

	g1, _ := s.GetGame(withGenres)
	if diff := cmp.Diff([]string{"RPG", "Strategy"}, g1.Genres); diff != "" {
		t.Fatalf("binding union should replace store genres (-want +got):\n%s", diff)
	}
	g2, _ := s.GetGame(without)
	if diff := cmp.Diff([]string{"RPG", "Strategy"}, g2.Genres); diff != "" {
		t.Fatalf("binding union should fill empty genres (-want +got):\n%s", diff)
	}
	if g2.IGDBID == nil || *g2.IGDBID != 42 || g2.IGDBMatchedAt == nil {
		t.Fatalf("binding not recorded: %+v", g2)
	}
	if diff := cmp.Diff([]string{"s1.jpg", "s2.jpg"}, g2.IGDBScreenshots); diff != "" {
		t.Fatalf("screenshots mismatch (-want +got):\n%s", diff)
	}

	// User raises NSFW, a later non-NSFW rebind must not clear it.
	if err := s.SetNSFW(withGenres, true); err != nil {
		t.Fatalf("SetNSFW failed: %v", err)
	}
	if err := s.UpdateIGDBBinding(withGenres, binding); err != nil {
		t.Fatalf("rebind failed: %v", err)
	}
	g1, _ = s.GetGame(withGenres)
	if !g1.NSFW {
		t.Fatal("NSFW flag cleared by non-NSFW rebind")
	}
}

func TestClearIGDBBindingKeepsSteamAppID(t *testing.T) {
	s := openTestStore(t)
	id := mustCreate(t, s, &Game{Store: StoreGOG, StoreID: "x", Name: "X"})

	appID := int64(440)
	if err := s.UpdateIGDBBinding(id, &IGDBBinding{IGDBID: 7, Slug: "x", SteamAppID: &appID}); err != nil {
		t.Fatalf("UpdateIGDBBinding failed: %v", err)
	}
	if err := s.ClearIGDBBinding(id); err != nil {
		t.Fatalf("ClearIGDBBinding failed: %v", err)
	}

	g, _ := s.GetGame(id)
	if g.IGDBID != nil || g.IGDBSlug != "" || g.IGDBMatchedAt != nil {
		t.Fatalf("binding not cleared: %+v", g)
	}
	if g.SteamAppID == nil || *g.SteamAppID != 440 {
		t.Fatalf("steam app id should survive unbind: %v", g.SteamAppID)
	}
}

func TestDeleteGameCascades(t *testing.T) {
	s := openTestStore(t)
	id := mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "9", Name: "Doomed"})

	labelID, err := s.CreateLabel("Backlog", "", "", "")
	if err != nil {
		t.Fatalf("CreateLabel failed: %v", err)
	}
	if err := s.AssignLabel(labelID, id, false); err != nil {
		t.Fatalf("AssignLabel failed: %v", err)
	}
	if _, err := s.UpsertNews(&NewsArticle{GameID: id, URL: "https://example.com/n1"}); err != nil {
		t.Fatalf("UpsertNews failed: %v", err)
	}
	if err := s.AppendDepotUpdate(&DepotUpdate{GameID: id, ManifestID: "m1", UpdateTimestamp: time.Now()}); err != nil {
		t.Fatalf("AppendDepotUpdate failed: %v", err)
	}

	if err := s.DeleteGame(id); err != nil {
		t.Fatalf("DeleteGame failed: %v", err)
	}

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	for _, table := range []string{"game_labels", "game_news", "game_depot_updates"} {
		if stats[table] != 0 {
			t.Fatalf("%s should be empty after cascade, has %d rows", table, stats[table])
		}
	}
	if stats["labels"] != 1 {
		t.Fatalf("labels themselves must survive game deletion, have %d", stats["labels"])
	}
}

func TestProtonDBUnknownTier(t *testing.T) {
	s := openTestStore(t)
	id := mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "5", Name: "Niche"})

	if err := s.SetProtonDB(id, &ProtonDBResult{Tier: ProtonTierUnknown}); err != nil {
		t.Fatalf("SetProtonDB failed: %v", err)
	}
	g, _ := s.GetGame(id)
	if g.ProtonDBTier != ProtonTierUnknown {
		t.Fatalf("tier = %q, want %q", g.ProtonDBTier, ProtonTierUnknown)
	}
	if g.ProtonDBMatchedAt == nil {
		t.Fatal("unknown tier must still stamp matched_at so it is not re-queried")
	}
}

func TestNewsDedupByURL(t *testing.T) {
	s := openTestStore(t)
	id := mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "1", Name: "A"})

	created, err := s.UpsertNews(&NewsArticle{GameID: id, Title: "Patch 1", URL: "https://example.com/patch1"})
	if err != nil || !created {
		t.Fatalf("first upsert: created=%v err=%v", created, err)
	}
	created, err = s.UpsertNews(&NewsArticle{GameID: id, Title: "Patch 1 (edited)", Content: "revised body", URL: "https://example.com/patch1"})
	if err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	if created {
		t.Fatal("duplicate URL must not count as a new article")
	}

	// The feed serves edited articles under the same URL; the row follows.
	articles, err := s.NewsForGame(id, 0)
	if err != nil {
		t.Fatalf("NewsForGame failed: %v", err)
	}
	if len(articles) != 1 {
		t.Fatalf("expected one row, got %d", len(articles))
	}
	if articles[0].Title != "Patch 1 (edited)" || articles[0].Content != "revised body" {
		t.Fatalf("re-fetch should refresh the row in place: %+v", articles[0])
	}
}

func TestLatestUpdateOrdering(t *testing.T) {
	s := openTestStore(t)
	id := mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "1", Name: "A"})

	base := time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)
	for i, manifest := range []string{"m1", "m2", "m3"} {
		err := s.AppendDepotUpdate(&DepotUpdate{
			GameID:          id,
			ManifestID:      manifest,
			UpdateTimestamp: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("AppendDepotUpdate failed: %v", err)
		}
	}

	latest, err := s.LatestUpdate(id)
	if err != nil {
		t.Fatalf("LatestUpdate failed: %v", err)
	}
	if latest == nil || latest.ManifestID != "m3" {
		t.Fatalf("latest = %+v, want m3", latest)
	}

	none, err := s.LatestUpdate(99999)
	if err != nil {
		t.Fatalf("LatestUpdate on missing game failed: %v", err)
	}
	if none != nil {
		t.Fatalf("expected nil for game with no history, got %+v", none)
	}
}

func TestJobLifecycle(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateJob("job-1", "news_sync"); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := s.MarkJobRunning("job-1"); err != nil {
		t.Fatalf("MarkJobRunning failed: %v", err)
	}
	if err := s.UpdateJobProgress("job-1", 5, 10, "halfway"); err != nil {
		t.Fatalf("UpdateJobProgress failed: %v", err)
	}

	j, err := s.GetJob("job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if j.Status != JobRunning || j.Progress != 5 || j.Total != 10 || j.Message != "halfway" {
		t.Fatalf("unexpected job state: %+v", j)
	}

	active, err := s.RunningJobOfType("news_sync")
	if err != nil || active == nil || active.ID != "job-1" {
		t.Fatalf("RunningJobOfType: job=%+v err=%v", active, err)
	}

	if err := s.CompleteJob("job-1", "10 items processed"); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	j, _ = s.GetJob("job-1")
	if j.Status != JobCompleted || j.CompletedAt == nil || j.Result != "10 items processed" {
		t.Fatalf("unexpected completed state: %+v", j)
	}

	if again, _ := s.RunningJobOfType("news_sync"); again != nil {
		t.Fatalf("completed job still reported active: %+v", again)
	}
}

func TestOrphanedJobReset(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateJob("job-2", "igdb_sync"); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := s.MarkJobRunning("job-2"); err != nil {
		t.Fatalf("MarkJobRunning failed: %v", err)
	}

	orphans, err := s.OrphanedRunningJobs()
	if err != nil {
		t.Fatalf("OrphanedRunningJobs failed: %v", err)
	}
	if len(orphans) != 1 || orphans[0].ID != "job-2" {
		t.Fatalf("unexpected orphans: %+v", orphans)
	}

	if err := s.ResetJobPending("job-2"); err != nil {
		t.Fatalf("ResetJobPending failed: %v", err)
	}
	j, _ := s.GetJob("job-2")
	if j.Status != JobPending {
		t.Fatalf("status = %q, want pending", j.Status)
	}
}

func TestSweepOldJobs(t *testing.T) {
	s := openTestStore(t)

	if err := s.CreateJob("old", "news_sync"); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}
	if err := s.CompleteJob("old", "done"); err != nil {
		t.Fatalf("CompleteJob failed: %v", err)
	}
	if err := s.CreateJob("active", "igdb_sync"); err != nil {
		t.Fatalf("CreateJob failed: %v", err)
	}

	// Cutoff in the future sweeps everything terminal; the pending job
	// must survive regardless.
	n, err := s.SweepOldJobs(time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("SweepOldJobs failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("swept %d rows, want 1", n)
	}
	if _, err := s.GetJob("active"); err != nil {
		t.Fatalf("pending job swept: %v", err)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetSetting("missing"); err != ErrSettingNotFound {
		t.Fatalf("expected ErrSettingNotFound, got %v", err)
	}

	if err := s.SetSetting("steam_api_key", "abc"); err != nil {
		t.Fatalf("SetSetting failed: %v", err)
	}
	if err := s.SetSetting("steam_api_key", "def"); err != nil {
		t.Fatalf("SetSetting overwrite failed: %v", err)
	}

	v, err := s.GetSetting("steam_api_key")
	if err != nil {
		t.Fatalf("GetSetting failed: %v", err)
	}
	if v != "def" {
		t.Fatalf("value = %q, want def", v)
	}

	if err := s.DeleteSetting("steam_api_key"); err != nil {
		t.Fatalf("DeleteSetting failed: %v", err)
	}
	if _, err := s.GetSetting("steam_api_key"); err != ErrSettingNotFound {
		t.Fatalf("expected ErrSettingNotFound after delete, got %v", err)
	}
}

func TestPopularityReplaceSemantics(t *testing.T) {
	s := openTestStore(t)

	first := []PopularityRow{{IGDBID: 100, PopularityValue: 95}, {IGDBID: 200, PopularityValue: 80}}
	if err := s.ReplacePopularity(1, first); err != nil {
		t.Fatalf("ReplacePopularity failed: %v", err)
	}

	second := []PopularityRow{{IGDBID: 300, PopularityValue: 99}}
	if err := s.ReplacePopularity(1, second); err != nil {
		t.Fatalf("second ReplacePopularity failed: %v", err)
	}

	rows, err := s.PopularityForType(1, 0)
	if err != nil {
		t.Fatalf("PopularityForType failed: %v", err)
	}
	if len(rows) != 1 || rows[0].IGDBID != 300 {
		t.Fatalf("replace must not mix refreshes: %+v", rows)
	}

	// A different type is untouched.
	if err := s.ReplacePopularity(2, first); err != nil {
		t.Fatalf("ReplacePopularity type 2 failed: %v", err)
	}
	rows, _ = s.PopularityForType(1, 0)
	if len(rows) != 1 {
		t.Fatalf("type 1 disturbed by type 2 refresh: %+v", rows)
	}

	// Fresh window excludes nothing that was just written.
	fresh, err := s.PopularityForType(2, 24*time.Hour)
	if err != nil {
		t.Fatalf("fresh PopularityForType failed: %v", err)
	}
	if len(fresh) != 2 || fresh[0].PopularityValue < fresh[1].PopularityValue {
		t.Fatalf("expected 2 rows ordered by value desc: %+v", fresh)
	}
}
