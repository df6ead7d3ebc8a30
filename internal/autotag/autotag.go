// Package autotag maintains the playtime bucket system tags. Buckets
// apply only to Steam entries with reported playtime; every other row
// is left for the user to label.
package autotag

import (
	"gamehoard/internal/logging"
	"gamehoard/internal/store"
)

// BucketFor returns the system tag name for a playtime, or "" when no
// bucket applies. Boundaries are half-open: 2.0 hours is Played.
func BucketFor(hours *float64) string {
	if hours == nil {
		return ""
	}
	h := *hours
	switch {
	case h <= 0:
		return store.PlaytimeBuckets[0] // Never Launched
	case h < 2:
		return store.PlaytimeBuckets[1] // Just Tried
	case h < 10:
		return store.PlaytimeBuckets[2] // Played
	case h < 50:
		return store.PlaytimeBuckets[3] // Well Played
	default:
		return store.PlaytimeBuckets[4] // Heavily Played
	}
}

// Engine recomputes auto tags against the library.
type Engine struct {
	store *store.LibraryStore
}

// New builds the engine.
func New(s *store.LibraryStore) *Engine {
	return &Engine{store: s}
}

// RetagGame recomputes the auto tag for one row. Non-Steam rows and
// rows without playtime are skipped.
func (e *Engine) RetagGame(id int64) error {
	g, err := e.store.GetGame(id)
	if err != nil {
		return err
	}
	return e.retag(g)
}

// RetagAll recomputes every Steam row's auto tag. Returns the number of
// rows tagged. Idempotent: a second run leaves identical state.
func (e *Engine) RetagAll() (int, error) {
	games, err := e.store.ListGamesByStore(store.StoreSteam)
	if err != nil {
		return 0, err
	}

	tagged := 0
	for _, g := range games {
		if BucketFor(g.PlaytimeHours) == "" {
			continue
		}
		if err := e.retag(g); err != nil {
			logging.Get(logging.CategoryAutoTag).Warn("retag game %d: %v", g.ID, err)
			continue
		}
		tagged++
	}
	logging.AutoTag("Retagged %d of %d Steam games", tagged, len(games))
	return tagged, nil
}

func (e *Engine) retag(g *store.Game) error {
	if g.Store != store.StoreSteam {
		return nil
	}
	bucket := BucketFor(g.PlaytimeHours)
	if bucket == "" {
		return nil
	}
	logging.AutoTagDebug("Game %d -> %q (%.1fh)", g.ID, bucket, *g.PlaytimeHours)
	return e.store.ReplaceAutoSystemTags(g.ID, bucket)
}
