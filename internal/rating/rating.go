// Package rating computes the cross-source average score for a game.
// Every contributing source is normalized to 0-100 before it is stored,
// so the aggregate is a plain mean over whatever values are present.
package rating

import (
	"gamehoard/internal/logging"
	"gamehoard/internal/store"
)

// Average returns the mean of the game's non-null score sources, or nil
// when no source has reported anything. Personal rating is deliberately
// excluded: it reflects the owner's taste, not external reception.
func Average(g *store.Game) *float64 {
	sources := []*float64{
		g.CriticsScore,
		g.IGDBRating,
		g.AggregatedRating,
		g.TotalRating,
		g.MetacriticScore,
		g.MetacriticUserScore,
	}

	var sum float64
	var n int
	for _, v := range sources {
		if v != nil {
			sum += *v
			n++
		}
	}
	if n == 0 {
		return nil
	}
	avg := sum / float64(n)
	return &avg
}

// Recompute refreshes the stored average for one game.
func Recompute(s *store.LibraryStore, id int64) error {
	g, err := s.GetGame(id)
	if err != nil {
		return err
	}
	return s.SetAverageRating(id, Average(g))
}

// RecomputeAll refreshes every game's stored average. Individual write
// failures are logged and skipped so one bad row cannot stall a sync.
func RecomputeAll(s *store.LibraryStore) (int, error) {
	games, err := s.ListGames()
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, g := range games {
		if err := s.SetAverageRating(g.ID, Average(g)); err != nil {
			logging.Get(logging.CategoryEnrich).Warn("average rating for game %d: %v", g.ID, err)
			continue
		}
		updated++
	}
	return updated, nil
}
