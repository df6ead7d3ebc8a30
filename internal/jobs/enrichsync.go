package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"gamehoard/internal/enrich"
	"gamehoard/internal/logging"
	"gamehoard/internal/ratelimit"
	"gamehoard/internal/rating"
	"gamehoard/internal/sources"
	"gamehoard/internal/store"
)

const (
	protonDBWorkers = 5
	protonDBGap     = 500 * time.Millisecond

	igdbSyncGap       = 250 * time.Millisecond
	metacriticSyncGap = time.Second
)

type enrichSyncResult struct {
	Processed int64 `json:"processed"`
	Succeeded int64 `json:"succeeded"`
	Failed    int64 `json:"failed"`
	Skipped   int64 `json:"skipped"`
}

// protonDBSyncBody refreshes compatibility tiers for every game with a
// resolvable Steam app id, across a small worker pool sharing one rate
// limiter. Definitive 404s land as the unknown tier so they are not
// re-queried.
func protonDBSyncBody(d *Deps) Body {
	gap := ratelimit.NewMinGap(protonDBGap)

	return func(r *Run) (string, error) {
		games, err := d.Store.ListGames()
		if err != nil {
			return "", err
		}

		var targets []*store.Game
		for _, g := range games {
			if _, ok := steamAppID(g); ok {
				targets = append(targets, g)
			}
		}

		var result enrichSyncResult
		result.Skipped = int64(len(games) - len(targets))
		total := int64(len(targets))

		eg, ctx := errgroup.WithContext(r.Ctx)
		eg.SetLimit(protonDBWorkers)
		var mu sync.Mutex

		for _, g := range targets {
			g := g
			eg.Go(func() error {
				if r.Cancelled() {
					return sources.ErrCancelled
				}
				if err := gap.Wait(ctx); err != nil {
					return err
				}

				appID, _ := steamAppID(g)
				tier, err := d.ProtonDB.Fetch(ctx, appID)
				if err != nil {
					logging.EnrichDebug("ProtonDB for app %d failed: %v", appID, err)
					atomic.AddInt64(&result.Failed, 1)
				} else if err := d.Store.SetProtonDB(g.ID, tier); err != nil {
					logging.Get(logging.CategoryEnrich).Warn("Store ProtonDB for game %d: %v", g.ID, err)
					atomic.AddInt64(&result.Failed, 1)
				} else {
					atomic.AddInt64(&result.Succeeded, 1)
				}

				mu.Lock()
				result.Processed++
				n := result.Processed
				mu.Unlock()
				r.Progress(n, total, fmt.Sprintf("ProtonDB (%d/%d)...", n, total))
				return nil
			})
		}
		if err := eg.Wait(); err != nil && !errors.Is(err, sources.ErrCancelled) {
			return "", err
		}

		out, _ := json.Marshal(result)
		return string(out), nil
	}
}

// igdbSyncBody matches every unbound row. force re-matches bound rows
// too, refreshing stale metadata.
func igdbSyncBody(d *Deps) Body {
	gap := ratelimit.NewMinGap(igdbSyncGap)

	return func(r *Run) (string, error) {
		var games []*store.Game
		var err error
		if r.Force {
			games, err = d.Store.ListGames()
		} else {
			games, err = d.Store.ListGamesWithoutIGDB()
		}
		if err != nil {
			return "", err
		}

		var result enrichSyncResult
		total := int64(len(games))
		for i, g := range games {
			if r.Cancelled() {
				return "", nil
			}
			r.Progress(int64(i), total, fmt.Sprintf("Matching IGDB (%d/%d)...", i+1, len(games)))

			if g.Streaming {
				result.Skipped++
				continue
			}
			if err := gap.Wait(r.Ctx); err != nil {
				return "", err
			}

			matched, err := matchGame(d, r, g.ID)
			result.Processed++
			switch {
			case errors.Is(err, sources.ErrNotConfigured):
				return "", err
			case err != nil:
				logging.EnrichDebug("IGDB match for game %d failed: %v", g.ID, err)
				result.Failed++
			case matched:
				result.Succeeded++
			}
		}

		out, _ := json.Marshal(result)
		return string(out), nil
	}
}

// metacriticSyncBody scrapes scores for every game carrying a slug, or
// derives one from the title for unscored rows.
func metacriticSyncBody(d *Deps) Body {
	gap := ratelimit.NewMinGap(metacriticSyncGap)

	return func(r *Run) (string, error) {
		games, err := d.Store.ListGames()
		if err != nil {
			return "", err
		}

		var result enrichSyncResult
		total := int64(len(games))
		for i, g := range games {
			if r.Cancelled() {
				return "", nil
			}
			r.Progress(int64(i), total, fmt.Sprintf("Metacritic (%d/%d)...", i+1, len(games)))

			if g.Streaming {
				result.Skipped++
				continue
			}
			if !r.Force && g.MetacriticScore != nil {
				result.Skipped++
				continue
			}
			slug := g.MetacriticSlug
			if slug == "" {
				slug = enrich.SlugFromName(g.Name)
			}

			if err := gap.Wait(r.Ctx); err != nil {
				return "", err
			}
			scores, err := d.Metacritic.Fetch(r.Ctx, slug)
			result.Processed++
			if errors.Is(err, sources.ErrNotFound) {
				result.Skipped++
				continue
			}
			if err != nil {
				logging.EnrichDebug("Metacritic %q failed: %v", slug, err)
				result.Failed++
				continue
			}

			if err := d.Store.SetMetacritic(g.ID, scores.Critic, scores.User, slug); err != nil {
				logging.Get(logging.CategoryEnrich).Warn("Store Metacritic for game %d: %v", g.ID, err)
				result.Failed++
				continue
			}
			if err := rating.Recompute(d.Store, g.ID); err != nil {
				logging.Get(logging.CategoryEnrich).Warn("Recompute rating for game %d: %v", g.ID, err)
			}
			result.Succeeded++
		}

		out, _ := json.Marshal(result)
		return string(out), nil
	}
}
