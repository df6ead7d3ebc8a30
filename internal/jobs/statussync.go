package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"gamehoard/internal/logging"
	"gamehoard/internal/ratelimit"
	"gamehoard/internal/store"
	"gamehoard/internal/tracker"
)

const (
	statusSkipWithin = 7 * 24 * time.Hour
	statusGap        = 500 * time.Millisecond
)

type statusSyncResult struct {
	Checked     int `json:"checked"`
	Skipped     int `json:"skipped"`
	EarlyAccess int `json:"early_access"`
	Released    int `json:"released"`
	Failed      int `json:"failed"`
}

// statusSyncBody detects early-access state for Steam and Epic entries.
// GOG has no usable signal yet. A game synced within the last week is
// skipped unless forced.
func statusSyncBody(d *Deps) Body {
	gap := ratelimit.NewMinGap(statusGap)

	return func(r *Run) (string, error) {
		var games []*store.Game
		for _, s := range []string{store.StoreSteam, store.StoreEpic} {
			batch, err := d.Store.ListGamesByStore(s)
			if err != nil {
				return "", err
			}
			games = append(games, batch...)
		}

		var result statusSyncResult
		total := int64(len(games))
		for i, g := range games {
			if r.Cancelled() {
				return "", nil
			}
			r.Progress(int64(i), total, fmt.Sprintf("Checking release status (%d/%d)...", i+1, len(games)))

			if !r.Force && g.StatusLastSynced != nil && time.Since(*g.StatusLastSynced) < statusSkipWithin {
				result.Skipped++
				continue
			}

			earlyAccess, ok, err := observeStatus(d, r, gap, g)
			if err != nil {
				logging.TrackerDebug("Status check for game %d failed: %v", g.ID, err)
				result.Failed++
				continue
			}
			if !ok {
				result.Skipped++
				continue
			}

			if err := applyStatus(d, g, earlyAccess); err != nil {
				logging.Get(logging.CategoryTracker).Warn("Apply status for game %d: %v", g.ID, err)
				result.Failed++
				continue
			}
			result.Checked++
			if earlyAccess {
				result.EarlyAccess++
			} else if g.DevelopmentStatus == store.StatusEarlyAccess {
				result.Released++
			}
		}

		out, _ := json.Marshal(result)
		return string(out), nil
	}
}

func observeStatus(d *Deps, r *Run, gap *ratelimit.MinGap, g *store.Game) (earlyAccess, ok bool, err error) {
	switch g.Store {
	case store.StoreSteam:
		appID, found := steamAppID(g)
		if !found {
			return false, false, nil
		}
		if err := gap.Wait(r.Ctx); err != nil {
			return false, false, err
		}
		details, err := d.SteamStore.FetchAppDetails(r.Ctx, appID)
		if err != nil {
			return false, false, err
		}
		return details.EarlyAccess, true, nil

	case store.StoreEpic:
		// Legendary carries the flag in its stored metadata; no network
		// call needed.
		return tracker.EpicEarlyAccess(g.ExtraData), true, nil

	default:
		return false, false, nil
	}
}

// applyStatus writes the observed state. Leaving early access goes
// through the tracker so the graduation lands in update history.
func applyStatus(d *Deps, g *store.Game, earlyAccess bool) error {
	switch {
	case earlyAccess && g.DevelopmentStatus != store.StatusEarlyAccess:
		return d.Store.SetDevelopmentStatus(g.ID, store.StatusEarlyAccess, g.GameVersion)
	case !earlyAccess && g.DevelopmentStatus == store.StatusEarlyAccess:
		_, err := d.Tracker.Apply(g, tracker.Observation{Released: true, ObservedAt: time.Now()})
		return err
	default:
		// Stamp the sync time so the skip window advances.
		return d.Store.SetDevelopmentStatus(g.ID, g.DevelopmentStatus, g.GameVersion)
	}
}
