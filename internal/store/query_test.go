package store

import (
	"strings"
	"testing"
)

func TestBuildFilterClauseComposition(t *testing.T) {
	tests := []struct {
		name    string
		filters []string
		want    []string // substrings that must appear
		wantOp  string
	}{
		{
			name:    "empty selection matches everything",
			filters: nil,
			want:    []string{"1=1"},
		},
		{
			name:    "same category composes with OR",
			filters: []string{"unplayed", "well-played"},
			want:    []string{"playtime_hours", " OR "},
		},
		{
			name:    "cross category composes with AND",
			filters: []string{"unplayed", "highly-rated"},
			want:    []string{"playtime_hours", "average_rating", " AND "},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clause, err := BuildFilterClause(tt.filters, "")
			if err != nil {
				t.Fatalf("BuildFilterClause failed: %v", err)
			}
			for _, sub := range tt.want {
				if !strings.Contains(clause, sub) {
					t.Fatalf("clause %q missing %q", clause, sub)
				}
			}
		})
	}
}

func TestBuildFilterClauseRejectsUnknown(t *testing.T) {
	if _, err := BuildFilterClause([]string{"no-such-filter"}, ""); err == nil {
		t.Fatal("unknown filter id must be rejected")
	}
}

func TestBuildFilterClausePrefix(t *testing.T) {
	clause, err := BuildFilterClause([]string{"unplayed"}, "g.")
	if err != nil {
		t.Fatalf("BuildFilterClause failed: %v", err)
	}
	if !strings.Contains(clause, "g.playtime_hours") {
		t.Fatalf("prefix not applied: %q", clause)
	}
}

func TestQueryGamesFilters(t *testing.T) {
	s := openTestStore(t)

	played := 20.0
	mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "1", Name: "Played Game", PlaytimeHours: &played})
	mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "2", Name: "Unplayed Game"})
	hiddenID := mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "3", Name: "Hidden Game"})
	if err := s.SetHidden(hiddenID, true); err != nil {
		t.Fatalf("SetHidden failed: %v", err)
	}

	games, err := s.QueryGames(QueryOptions{Filters: []string{"unplayed"}})
	if err != nil {
		t.Fatalf("QueryGames failed: %v", err)
	}
	if len(games) != 1 || games[0].Name != "Unplayed Game" {
		t.Fatalf("unexpected result: %+v", games)
	}

	all, err := s.QueryGames(QueryOptions{})
	if err != nil {
		t.Fatalf("QueryGames failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("hidden row leaked into default query: %d rows", len(all))
	}

	withHidden, err := s.QueryGames(QueryOptions{IncludeHidden: true})
	if err != nil {
		t.Fatalf("QueryGames failed: %v", err)
	}
	if len(withHidden) != 3 {
		t.Fatalf("IncludeHidden should return all rows, got %d", len(withHidden))
	}
}

func TestQueryGamesGenreQuoting(t *testing.T) {
	s := openTestStore(t)
	mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "1", Name: "A", Genres: []string{"Action"}})
	mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "2", Name: "B", Genres: []string{"Re-Action"}})

	games, err := s.QueryGames(QueryOptions{Genre: "Action"})
	if err != nil {
		t.Fatalf("QueryGames failed: %v", err)
	}
	if len(games) != 1 || games[0].Name != "A" {
		t.Fatalf(`genre "Action" matched wrong rows: %+v`, games)
	}
}

func TestQueryGamesDropsSyntheticVariants(t *testing.T) {
	s := openTestStore(t)
	mustCreate(t, s, &Game{Store: StoreAmazon, StoreID: "1", Name: "Real Game"})
	mustCreate(t, s, &Game{Store: StoreAmazon, StoreID: "2", Name: "Real Game (Luna)"})
	mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "3", Name: "Steam Game (Luna)"})

	games, err := s.QueryGames(QueryOptions{})
	if err != nil {
		t.Fatalf("QueryGames failed: %v", err)
	}
	names := make(map[string]bool)
	for _, g := range games {
		names[g.Name] = true
	}
	if names["Real Game (Luna)"] {
		t.Fatal("Amazon synthetic variant should be dropped at query time")
	}
	if !names["Steam Game (Luna)"] {
		t.Fatal("suffix rule applies only to Amazon rows")
	}

	// Variants round-trip in storage.
	if _, err := s.GetGameByStoreKey(StoreAmazon, "2"); err != nil {
		t.Fatalf("synthetic variant must still be stored: %v", err)
	}
}

func TestGroupGames(t *testing.T) {
	igdb := int64(42)
	play := 5.0
	steam := &Game{ID: 1, Store: StoreSteam, IGDBID: &igdb, PlaytimeHours: &play}
	gog := &Game{ID: 2, Store: StoreGOG, IGDBID: &igdb, IGDBCoverURL: "https://img/cover.jpg"}
	unmatched := &Game{ID: 3, Store: StoreItch}

	groups := GroupGames([]*Game{steam, gog, unmatched})
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(groups))
	}

	grp := groups[0]
	if len(grp.Copies) != 2 {
		t.Fatalf("expected 2 copies in igdb group, got %d", len(grp.Copies))
	}
	// Cover beats playtime for primary selection.
	if grp.Primary.ID != gog.ID {
		t.Fatalf("primary = %d, want the copy with IGDB cover", grp.Primary.ID)
	}
	if !grp.HasNonStreaming || grp.OnlyStreaming {
		t.Fatalf("streaming flags wrong: %+v", grp)
	}

	if groups[1].Primary.ID != unmatched.ID || len(groups[1].Copies) != 1 {
		t.Fatalf("unmatched row should form its own group: %+v", groups[1])
	}
}

func TestGroupGamesOnlyStreaming(t *testing.T) {
	igdb := int64(7)
	a := &Game{ID: 1, Store: StoreAmazon, IGDBID: &igdb, Streaming: true}
	b := &Game{ID: 2, Store: StoreAmazon, IGDBID: &igdb, Streaming: true}

	groups := GroupGames([]*Game{a, b})
	if len(groups) != 1 {
		t.Fatalf("expected 1 group, got %d", len(groups))
	}
	if !groups[0].OnlyStreaming || groups[0].HasNonStreaming {
		t.Fatalf("all-streaming group misflagged: %+v", groups[0])
	}
}

func TestFilterCountsExcludeActiveFilter(t *testing.T) {
	s := openTestStore(t)

	played := 20.0
	rated := 90.0
	mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "1", Name: "A"}) // unplayed
	g2 := mustCreate(t, s, &Game{Store: StoreSteam, StoreID: "2", Name: "B", PlaytimeHours: &played})
	if err := s.SetAverageRating(g2, &rated); err != nil {
		t.Fatalf("SetAverageRating failed: %v", err)
	}

	counts, err := s.FilterCounts(nil)
	if err != nil {
		t.Fatalf("FilterCounts failed: %v", err)
	}
	if counts["unplayed"] != 1 || counts["highly-rated"] != 1 {
		t.Fatalf("unexpected counts: %+v", counts)
	}

	// With highly-rated active, its own count ignores itself while the
	// unplayed count is computed under the active selection.
	counts, err = s.FilterCounts([]string{"highly-rated"})
	if err != nil {
		t.Fatalf("FilterCounts failed: %v", err)
	}
	if counts["highly-rated"] != 1 {
		t.Fatalf("active filter must not narrow its own count: %+v", counts)
	}
	if counts["unplayed"] != 0 {
		t.Fatalf("other counts must respect the active selection: %+v", counts)
	}
}
