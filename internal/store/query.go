package store

import (
	"fmt"
	"sort"
	"strings"
)

// Filter is one entry in the closed filter vocabulary. SQL fragments are
// written against bare games columns; occurrences of the %s token are
// replaced with a table prefix when the query joins other tables.
type Filter struct {
	ID       string
	Category string
	SQL      string
}

// filterRegistry is the closed vocabulary. Filters inside one category
// compose with OR, categories compose with AND.
var filterRegistry = []Filter{
	// playtime
	{"unplayed", "playtime", "(%[1]splaytime_hours IS NULL OR %[1]splaytime_hours = 0)"},
	{"short-session", "playtime", "(%[1]splaytime_hours > 0 AND %[1]splaytime_hours < 2)"},
	{"well-played", "playtime", "%[1]splaytime_hours >= 10"},

	// rating
	{"highly-rated", "rating", "(%[1]saverage_rating >= 85 OR %[1]stotal_rating >= 85)"},
	{"well-reviewed", "rating", "(%[1]saverage_rating >= 70 OR %[1]stotal_rating >= 70)"},
	{"personal-favorites", "rating", "%[1]spersonal_rating >= 8"},

	// recency
	{"recently-added", "recency", "%[1]sadded_at >= datetime('now', '-30 days')"},
	{"recently-updated", "recency", "%[1]slast_modified >= datetime('now', '-14 days')"},
	{"new-release", "recency", "%[1]srelease_date >= datetime('now', '-90 days')"},

	// status
	{"early-access", "status", "%[1]sdevelopment_status = 'early_access'"},
	{"prioritized", "status", "%[1]spriority IS NOT NULL"},
	{"unmatched", "status", "%[1]sigdb_id IS NULL"},

	// compat
	{"proton-verified", "compat", "%[1]sprotondb_tier IN ('platinum', 'gold')"},
	{"proton-playable", "compat", "%[1]sprotondb_tier IN ('platinum', 'gold', 'silver')"},
}

// labelFilterSQL builds an existence-subquery fragment for one label so
// grouped results are never double-counted through the join.
func labelFilterSQL(labelID int64) string {
	return fmt.Sprintf(
		"EXISTS (SELECT 1 FROM game_labels gl WHERE gl.game_id = %%[1]sid AND gl.label_id = %d)",
		labelID)
}

// genreFilterSQL matches one genre inside the JSON-array column. The
// quotes are part of the pattern: "Action" must not match "Re-Action".
func genreFilterSQL(genre string) string {
	escaped := strings.ReplaceAll(genre, "'", "''")
	return fmt.Sprintf(`%%[1]sgenres LIKE '%%%%"%s"%%%%'`, escaped)
}

// storeFilterSQL restricts to one storefront.
func storeFilterSQL(storeName string) string {
	return fmt.Sprintf("%%[1]sstore = '%s'", strings.ReplaceAll(storeName, "'", "''"))
}

func lookupFilter(id string) (Filter, bool) {
	for _, f := range filterRegistry {
		if f.ID == id {
			return f, true
		}
	}
	return Filter{}, false
}

// FilterIDs returns the registry's filter ids in declaration order.
func FilterIDs() []string {
	ids := make([]string, 0, len(filterRegistry))
	for _, f := range filterRegistry {
		ids = append(ids, f.ID)
	}
	return ids
}

// BuildFilterClause composes the WHERE fragment for a filter selection.
// Unknown ids are rejected; the vocabulary is closed. prefix rewrites
// bare column references ("g." when games is aliased in a join).
func BuildFilterClause(filterIDs []string, prefix string) (string, error) {
	if len(filterIDs) == 0 {
		return "1=1", nil
	}

	byCategory := make(map[string][]string)
	var categories []string
	for _, id := range filterIDs {
		f, ok := lookupFilter(id)
		if !ok {
			return "", fmt.Errorf("unknown filter id %q", id)
		}
		if _, seen := byCategory[f.Category]; !seen {
			categories = append(categories, f.Category)
		}
		byCategory[f.Category] = append(byCategory[f.Category], fmt.Sprintf(f.SQL, prefix))
	}

	var parts []string
	for _, cat := range categories {
		fragments := byCategory[cat]
		if len(fragments) == 1 {
			parts = append(parts, fragments[0])
		} else {
			parts = append(parts, "("+strings.Join(fragments, " OR ")+")")
		}
	}
	return strings.Join(parts, " AND "), nil
}

// QueryOptions shape a library query.
type QueryOptions struct {
	Filters       []string
	LabelID       int64
	Genre         string
	Store         string
	IncludeHidden bool
	IncludeNSFW   bool
	Search        string
}

// QueryGames runs a filtered library query and returns the raw row set,
// synthetic promotional variants excluded.
func (s *LibraryStore) QueryGames(opts QueryOptions) ([]*Game, error) {
	clause, err := BuildFilterClause(opts.Filters, "")
	if err != nil {
		return nil, err
	}

	var conds []string
	var args []interface{}
	conds = append(conds, clause)
	if !opts.IncludeHidden {
		conds = append(conds, "hidden = 0")
	}
	if !opts.IncludeNSFW {
		conds = append(conds, "nsfw = 0")
	}
	if opts.LabelID != 0 {
		conds = append(conds, "EXISTS (SELECT 1 FROM game_labels gl WHERE gl.game_id = id AND gl.label_id = ?)")
		args = append(args, opts.LabelID)
	}
	if opts.Genre != "" {
		conds = append(conds, fmt.Sprintf(genreFilterSQL(opts.Genre), ""))
	}
	if opts.Store != "" {
		conds = append(conds, "store = ?")
		args = append(args, opts.Store)
	}
	if opts.Search != "" {
		conds = append(conds, "name LIKE ? COLLATE NOCASE")
		args = append(args, "%"+opts.Search+"%")
	}

	games, err := s.listGamesWhere(strings.Join(conds, " AND ")+" ORDER BY name COLLATE NOCASE", args...)
	if err != nil {
		return nil, err
	}

	filtered := games[:0]
	for _, g := range games {
		if isSyntheticVariant(g) {
			continue
		}
		filtered = append(filtered, g)
	}
	return filtered, nil
}

// syntheticSuffixes mark promotional duplicate listings some storefronts
// return alongside the real entry. They stay in the database so ingest
// round-trips, but queries drop them.
var syntheticSuffixes = []string{
	" (Luna)",
	" - Luna",
	" [Prime Gaming]",
	" (Prime Gaming)",
}

func isSyntheticVariant(g *Game) bool {
	if g.Store != StoreAmazon {
		return false
	}
	for _, suffix := range syntheticSuffixes {
		if strings.HasSuffix(g.Name, suffix) {
			return true
		}
	}
	return false
}

// FilterCounts computes the sidebar count for every registry filter in
// one pass. Each filter's count is taken against the selection with that
// filter itself excluded, so an active filter shows what it would match
// rather than what it already matched.
func (s *LibraryStore) FilterCounts(active []string) (map[string]int64, error) {
	activeSet := make(map[string]bool, len(active))
	for _, id := range active {
		activeSet[id] = true
	}

	var exprs []string
	for _, f := range filterRegistry {
		others := make([]string, 0, len(active))
		for _, id := range active {
			if id != f.ID {
				others = append(others, id)
			}
		}
		otherClause, err := BuildFilterClause(others, "")
		if err != nil {
			return nil, err
		}
		fragment := fmt.Sprintf(f.SQL, "")
		exprs = append(exprs, fmt.Sprintf(
			"COUNT(CASE WHEN %s AND %s THEN 1 END) AS %q",
			fragment, otherClause, f.ID))
	}

	query := "SELECT " + strings.Join(exprs, ", ") + " FROM games WHERE hidden = 0"

	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(query)
	counts := make([]int64, len(filterRegistry))
	dest := make([]interface{}, len(counts))
	for i := range counts {
		dest[i] = &counts[i]
	}
	if err := row.Scan(dest...); err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(filterRegistry))
	for i, f := range filterRegistry {
		out[f.ID] = counts[i]
	}
	return out, nil
}

// GameGroup is the display unit: one IGDB identity (or one unmatched
// row) plus its storefront copies.
type GameGroup struct {
	IGDBID          *int64  `json:"igdb_id"`
	Primary         *Game   `json:"primary"`
	Copies          []*Game `json:"copies"`
	HasNonStreaming bool    `json:"has_non_streaming"`
	OnlyStreaming   bool    `json:"only_streaming"`
}

// GroupGames coalesces a row set into display groups. Rows sharing a
// non-null IGDB id form one group; unmatched rows stand alone. Input
// order is preserved by first appearance.
func GroupGames(games []*Game) []*GameGroup {
	var groups []*GameGroup
	byIGDB := make(map[int64]*GameGroup)

	for _, g := range games {
		if g.IGDBID == nil {
			groups = append(groups, newGroup(g))
			continue
		}
		if grp, ok := byIGDB[*g.IGDBID]; ok {
			grp.Copies = append(grp.Copies, g)
			continue
		}
		grp := newGroup(g)
		byIGDB[*g.IGDBID] = grp
		groups = append(groups, grp)
	}

	for _, grp := range groups {
		finishGroup(grp)
	}
	return groups
}

func newGroup(g *Game) *GameGroup {
	return &GameGroup{IGDBID: g.IGDBID, Copies: []*Game{g}}
}

// finishGroup picks the primary copy and derives the streaming flags.
// Primary preference: has IGDB cover, then has playtime, then first.
func finishGroup(grp *GameGroup) {
	sort.SliceStable(grp.Copies, func(i, j int) bool {
		a, b := grp.Copies[i], grp.Copies[j]
		aCover, bCover := a.IGDBCoverURL != "", b.IGDBCoverURL != ""
		if aCover != bCover {
			return aCover
		}
		aPlay := a.PlaytimeHours != nil && *a.PlaytimeHours > 0
		bPlay := b.PlaytimeHours != nil && *b.PlaytimeHours > 0
		if aPlay != bPlay {
			return aPlay
		}
		return false
	})
	grp.Primary = grp.Copies[0]

	for _, g := range grp.Copies {
		if !g.Streaming {
			grp.HasNonStreaming = true
			break
		}
	}
	grp.OnlyStreaming = !grp.HasNonStreaming
}
