package jobs

import (
	"encoding/json"
	"fmt"
	"time"

	"gamehoard/internal/logging"
	"gamehoard/internal/ratelimit"
)

const updateSyncGap = 500 * time.Millisecond

type updateSyncResult struct {
	Checked int `json:"checked"`
	Updated int `json:"updated"`
	Failed  int `json:"failed"`
}

// updateSyncBody polls every game through the tracker. Stores without
// an update source report no data and count as checked.
func updateSyncBody(d *Deps) Body {
	gap := ratelimit.NewMinGap(updateSyncGap)

	return func(r *Run) (string, error) {
		games, err := d.Store.ListGames()
		if err != nil {
			return "", err
		}

		var result updateSyncResult
		total := int64(len(games))
		for i, g := range games {
			if r.Cancelled() {
				return "", nil
			}
			r.Progress(int64(i), total, fmt.Sprintf("Checking updates (%d/%d)...", i+1, len(games)))

			if err := gap.Wait(r.Ctx); err != nil {
				return "", err
			}
			changed, err := d.Tracker.Check(r.Ctx, g)
			if err != nil {
				logging.TrackerDebug("Update check for game %d failed: %v", g.ID, err)
				result.Failed++
				continue
			}
			result.Checked++
			if changed {
				result.Updated++
			}
		}

		logging.Tracker("Update sync: %d checked, %d updated, %d failed",
			result.Checked, result.Updated, result.Failed)
		out, _ := json.Marshal(result)
		return string(out), nil
	}
}
