// Package tracker watches for store-side game updates: new versions,
// first-seen modification times, and early-access graduations. Every
// detected change lands as an append-only update-history row.
package tracker

import (
	"context"
	"time"

	"gamehoard/internal/logging"
	"gamehoard/internal/store"
)

// ProductInfo is one Steam PICS record, reduced to what the tracker
// needs. ChangeNumber is Steam's global monotonic app-change counter.
type ProductInfo struct {
	ChangeNumber int64
	LastChanged  time.Time
}

// ProductInfoSource answers batch PICS queries. Implemented by the
// worker-session client; nil when the feature flag is off.
type ProductInfoSource interface {
	ProductInfo(ctx context.Context, appIDs []int64) (map[int64]ProductInfo, error)
}

// Observation is what one poll of a store reported for a game. Zero
// fields mean the store had nothing to say about that aspect.
type Observation struct {
	LastModified *time.Time
	Released     bool
	ObservedAt   time.Time
}

// Tracker applies observations to the library.
type Tracker struct {
	store *store.LibraryStore
	steam *SteamStoreClient
	pics  ProductInfoSource
}

// New builds a tracker. pics may be nil; the Steam HTTP endpoint is
// used as the only source then.
func New(s *store.LibraryStore, steam *SteamStoreClient, pics ProductInfoSource) *Tracker {
	return &Tracker{store: s, steam: steam, pics: pics}
}

// Apply runs the transition table for one game and returns whether
// anything changed.
func (t *Tracker) Apply(g *store.Game, obs Observation) (bool, error) {
	changed := false

	if obs.LastModified != nil {
		switch {
		case g.LastModified == nil:
			// First time the store reports a timestamp. Not an update;
			// the history row just anchors the baseline.
			if err := t.store.SetLastModified(g.ID, *obs.LastModified); err != nil {
				return changed, err
			}
			err := t.store.AppendDepotUpdate(&store.DepotUpdate{
				GameID:          g.ID,
				ManifestID:      store.UpdateTagInitial,
				UpdateTimestamp: *obs.LastModified,
			})
			if err != nil {
				return changed, err
			}
			changed = true

		case obs.LastModified.After(*g.LastModified):
			if err := t.store.SetLastModified(g.ID, *obs.LastModified); err != nil {
				return changed, err
			}
			err := t.store.AppendDepotUpdate(&store.DepotUpdate{
				GameID:          g.ID,
				ManifestID:      store.UpdateTagVersion,
				UpdateTimestamp: *obs.LastModified,
			})
			if err != nil {
				return changed, err
			}
			logging.Tracker("Game %d %q updated at %s", g.ID, g.Name, obs.LastModified.Format(time.RFC3339))
			changed = true
		}
	}

	if g.DevelopmentStatus == store.StatusEarlyAccess && obs.Released {
		if err := t.store.SetDevelopmentStatus(g.ID, store.StatusReleased, g.GameVersion); err != nil {
			return changed, err
		}
		err := t.store.AppendDepotUpdate(&store.DepotUpdate{
			GameID:          g.ID,
			ManifestID:      store.UpdateTagEARelease,
			UpdateTimestamp: obs.ObservedAt,
		})
		if err != nil {
			return changed, err
		}
		logging.Tracker("Game %d %q left early access", g.ID, g.Name)
		changed = true
	}

	return changed, nil
}

// Check polls the right source for one game and applies the result.
// Epic has no update feed; those entries report no data rather than
// failing the batch.
func (t *Tracker) Check(ctx context.Context, g *store.Game) (bool, error) {
	switch g.Store {
	case store.StoreSteam:
		return t.checkSteam(ctx, g)
	case store.StoreEpic:
		logging.TrackerDebug("Game %d: no update source for epic", g.ID)
		return false, nil
	default:
		// Non-Steam stores surface last_modified through their catalog
		// responses; the importer handles those.
		return false, nil
	}
}

func (t *Tracker) checkSteam(ctx context.Context, g *store.Game) (bool, error) {
	if g.SteamAppID == nil {
		return false, nil
	}

	if t.pics != nil {
		if changed, ok, err := t.checkPICS(ctx, g); ok {
			return changed, err
		}
	}

	details, err := t.steam.FetchAppDetails(ctx, *g.SteamAppID)
	if err != nil {
		return false, err
	}
	obs := Observation{ObservedAt: time.Now(), Released: !details.EarlyAccess && !details.ComingSoon}
	return t.Apply(g, obs)
}

// checkPICS resolves via the protocol session. A change-number bump is
// treated as a modification at the observed change time. ok=false falls
// back to HTTP.
func (t *Tracker) checkPICS(ctx context.Context, g *store.Game) (bool, bool, error) {
	infos, err := t.pics.ProductInfo(ctx, []int64{*g.SteamAppID})
	if err != nil {
		logging.TrackerDebug("PICS lookup for app %d failed, falling back: %v", *g.SteamAppID, err)
		return false, false, nil
	}
	info, ok := infos[*g.SteamAppID]
	if !ok {
		return false, false, nil
	}

	obs := Observation{ObservedAt: time.Now()}
	if !info.LastChanged.IsZero() {
		obs.LastModified = &info.LastChanged
	}
	changed, err := t.Apply(g, obs)
	return changed, true, err
}
