package igdb

import (
	"context"
	"fmt"
	"time"

	"github.com/adrg/strutil"
	"github.com/adrg/strutil/metrics"

	"gamehoard/internal/logging"
	"gamehoard/internal/sources"
)

// minFuzzySimilarity is the Jaro-Winkler floor for the fuzzy rung.
const minFuzzySimilarity = 0.85

// yearTolerance is how far apart release years may be and still count
// as the same release on the exact-name-plus-year rung.
const yearTolerance = 1

// searchLimit bounds how many candidates one search pulls back.
const searchLimit = 20

// Match finds the IGDB record for a store title. The ladder is
/// priority-ordered: exact normalized name with a close release year,
// then exact normalized name, then the best fuzzy candidate above the
// similarity floor. First rung that hits wins; ties inside a rung go
// to the higher total_rating_count. No rung hitting is ErrNotFound.
func (c *Client) Match(ctx context.Context, name string, releaseDate *time.Time) (*Game, error) {
	normalized := NormalizeTitle(name)
	if normalized == "" {
		return nil, fmt.Errorf("igdb match %q: empty after normalization: %w", name, sources.ErrNotFound)
	}

	timer := logging.StartTimer(logging.CategoryIGDB, "Match "+normalized)
	defer timer.Stop()

	candidates, err := c.SearchGames(ctx, normalized, searchLimit)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("igdb match %q: no candidates: %w", name, sources.ErrNotFound)
	}

	if releaseDate != nil {
		if g := bestExactMatch(normalized, candidates, releaseDate.Year()); g != nil {
			logging.IGDBDebug("Matched %q by exact name + year -> igdb %d", name, g.ID)
			return g, nil
		}
	}
	if g := bestExactMatch(normalized, candidates, 0); g != nil {
		logging.IGDBDebug("Matched %q by exact name -> igdb %d", name, g.ID)
		return g, nil
	}
	if g := bestFuzzyMatch(normalized, candidates); g != nil {
		logging.IGDBDebug("Matched %q by similarity -> igdb %d (%s)", name, g.ID, g.Name)
		return g, nil
	}

	logging.IGDBDebug("No match for %q among %d candidates", name, len(candidates))
	return nil, fmt.Errorf("igdb match %q: %d candidates, none close enough: %w",
		name, len(candidates), sources.ErrNotFound)
}

// bestExactMatch returns the best candidate whose normalized name is
// identical. wantYear 0 skips the year check.
func bestExactMatch(normalized string, candidates []Game, wantYear int) *Game {
	var best *Game
	for i := range candidates {
		g := &candidates[i]
		if NormalizeTitle(g.Name) != normalized {
			continue
		}
		if wantYear != 0 {
			if g.FirstReleaseDate == 0 {
				continue
			}
			year := time.Unix(g.FirstReleaseDate, 0).UTC().Year()
			if abs(year-wantYear) > yearTolerance {
				continue
			}
		}
		if best == nil || g.TotalRatingCount > best.TotalRatingCount {
			best = g
		}
	}
	return best
}

// bestFuzzyMatch returns the most similar candidate above the floor.
func bestFuzzyMatch(normalized string, candidates []Game) *Game {
	jw := metrics.NewJaroWinkler()

	var best *Game
	bestScore := 0.0
	for i := range candidates {
		g := &candidates[i]
		score := strutil.Similarity(normalized, NormalizeTitle(g.Name), jw)
		if score < minFuzzySimilarity {
			continue
		}
		if best == nil || score > bestScore ||
			(score == bestScore && g.TotalRatingCount > best.TotalRatingCount) {
			best = g
			bestScore = score
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
