package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"gamehoard/internal/logging"
	"gamehoard/internal/ratelimit"
	"gamehoard/internal/sources"
	"gamehoard/internal/store"
)

const (
	newsWindowLimit = 200
	newsWindow      = 5 * time.Minute
	newsGap         = 500 * time.Millisecond
	newsMaxAttempts = 5
	newsMaxItems    = 10
	newsSkipWithin  = 24 * time.Hour
)

type newsSyncResult struct {
	Checked  int `json:"checked"`
	Skipped  int `json:"skipped"`
	Articles int `json:"articles"`
	Failed   int `json:"failed"`
}

// newsSyncBody polls the Steam news feed for every Steam game. The
// endpoint's SLA is 200 requests per 5 minutes; a sliding window plus a
// per-request gap keeps the job under it. Every game gets its check
// timestamp stamped even on failure, so a crash-looping title cannot
// cause a retry storm.
func newsSyncBody(d *Deps) Body {
	window := ratelimit.NewSlidingWindow(newsWindowLimit, newsWindow)
	gap := ratelimit.NewMinGap(newsGap)

	return func(r *Run) (string, error) {
		games, err := d.Store.ListGamesByStore(store.StoreSteam)
		if err != nil {
			return "", err
		}

		var result newsSyncResult
		total := int64(len(games))
		for i, g := range games {
			if r.Cancelled() {
				return "", nil
			}
			r.Progress(int64(i), total, fmt.Sprintf("Checking news (%d/%d)...", i+1, len(games)))

			if !r.Force && g.NewsLastChecked != nil && time.Since(*g.NewsLastChecked) < newsSkipWithin {
				result.Skipped++
				continue
			}
			appID, ok := steamAppID(g)
			if !ok {
				result.Skipped++
				continue
			}

			if err := window.Wait(r.Ctx); err != nil {
				return "", err
			}
			if err := gap.Wait(r.Ctx); err != nil {
				return "", err
			}

			articles, err := fetchNewsWithRetry(d, r, appID)
			if err != nil {
				logging.NewsDebug("News fetch for app %d failed: %v", appID, err)
				result.Failed++
			}
			for _, a := range articles {
				a.GameID = g.ID
				created, err := d.Store.UpsertNews(&a)
				if err != nil {
					logging.Get(logging.CategoryNews).Warn("Store article %q: %v", a.URL, err)
					continue
				}
				if created {
					result.Articles++
				}
			}

			if err := d.Store.SetNewsLastChecked(g.ID, time.Now()); err != nil {
				logging.Get(logging.CategoryNews).Warn("Stamp news check for game %d: %v", g.ID, err)
			}
			result.Checked++
		}

		logging.News("News sync: %d checked, %d new articles, %d skipped, %d failed",
			result.Checked, result.Articles, result.Skipped, result.Failed)
		out, _ := json.Marshal(result)
		return string(out), nil
	}
}

// fetchNewsWithRetry retries rate-limit rejections with exponential
// backoff: 2^n seconds plus up to 30% jitter, five attempts.
func fetchNewsWithRetry(d *Deps, r *Run, appID int64) ([]store.NewsArticle, error) {
	var lastErr error
	for attempt := 0; attempt < newsMaxAttempts; attempt++ {
		if attempt > 0 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(rand.Int63n(int64(base) * 3 / 10))
			timer := time.NewTimer(base + jitter)
			select {
			case <-r.Ctx.Done():
				timer.Stop()
				return nil, r.Ctx.Err()
			case <-timer.C:
			}
			if r.Cancelled() {
				return nil, sources.ErrCancelled
			}
		}

		articles, err := d.News.Fetch(r.Ctx, appID, newsMaxItems)
		if err == nil {
			return articles, nil
		}
		if !errors.Is(err, sources.ErrRateLimited) {
			return nil, err
		}
		lastErr = err
	}
	return nil, lastErr
}
