package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gamehoard/internal/igdb"
	"gamehoard/internal/logging"
	"gamehoard/internal/ratelimit"
	"gamehoard/internal/rating"
	"gamehoard/internal/sources"
)

// Spacing between IGDB match calls inside a store sync.
const igdbMatchGap = 250 * time.Millisecond

type storeSyncResult struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Skipped  int `json:"skipped"`
	Matched  int `json:"matched"`
	Retagged int `json:"retagged"`
}

// storeSyncBody runs the full chain for one store: fetch, import,
// match new rows against IGDB, recompute ratings, retag playtime.
func storeSyncBody(d *Deps, adapter sources.Adapter) Body {
	gap := ratelimit.NewMinGap(igdbMatchGap)

	return func(r *Run) (string, error) {
		storeName := adapter.Store()
		r.Progress(0, 1, "Fetching "+storeName+" catalog...")

		raws, err := adapter.Fetch(r.Ctx)
		if err != nil {
			return "", fmt.Errorf("%s fetch: %w", storeName, err)
		}
		if r.Cancelled() {
			return "", nil
		}

		total := int64(len(raws))
		r.Progress(0, total, fmt.Sprintf("Importing %d %s games...", len(raws), storeName))

		report, err := d.Importer.Import(storeName, raws)
		if err != nil {
			return "", fmt.Errorf("%s import: %w", storeName, err)
		}

		result := storeSyncResult{
			Created: report.Created,
			Updated: report.Updated,
			Skipped: report.Skipped,
		}

		// Bind new rows to IGDB. A missing IGDB config skips matching
		// for the whole batch instead of erroring every row.
		for i, id := range report.UnmatchedIDs {
			if r.Cancelled() {
				return "", nil
			}
			r.Progress(int64(i), int64(len(report.UnmatchedIDs)),
				fmt.Sprintf("Matching new games (%d/%d)...", i+1, len(report.UnmatchedIDs)))

			if err := gap.Wait(r.Ctx); err != nil {
				return "", err
			}
			matched, err := matchGame(d, r, id)
			if errors.Is(err, sources.ErrNotConfigured) {
				logging.Jobs("IGDB not configured, skipping matching")
				break
			}
			if err != nil {
				logging.JobsDebug("Match for game %d failed: %v", id, err)
				continue
			}
			if matched {
				result.Matched++
			}
		}

		for _, id := range report.PlaytimeChangedIDs {
			if r.Cancelled() {
				return "", nil
			}
			if err := d.AutoTag.RetagGame(id); err != nil {
				logging.JobsDebug("Retag for game %d failed: %v", id, err)
				continue
			}
			result.Retagged++
		}

		out, _ := json.Marshal(result)
		return string(out), nil
	}
}

// matchGame binds one library row to IGDB and refreshes its rating.
func matchGame(d *Deps, r *Run, id int64) (bool, error) {
	g, err := d.Store.GetGame(id)
	if err != nil {
		return false, err
	}

	match, err := d.IGDB.Match(r.Ctx, g.Name, g.ReleaseDate)
	if errors.Is(err, sources.ErrNotFound) {
		logging.JobsDebug("No IGDB match for %q", g.Name)
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if match == nil {
		return false, nil
	}

	binding := igdb.BuildBinding(match, g.Genres)
	if err := d.Store.UpdateIGDBBinding(id, binding); err != nil {
		return false, err
	}
	if err := rating.Recompute(d.Store, id); err != nil {
		return false, err
	}
	return true, nil
}
