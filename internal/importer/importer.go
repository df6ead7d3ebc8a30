// Package importer upserts adapter output into the canonical games
// table. It owns the source side of every row and never touches
// user-owned fields or the IGDB binding.
package importer

import (
	"errors"
	"time"

	"gamehoard/internal/logging"
	"gamehoard/internal/sources"
	"gamehoard/internal/store"
)

// Report summarizes one store batch so the caller can trigger the
// downstream steps: IGDB matching for new rows, auto-tag recompute for
// playtime changes.
type Report struct {
	Created int
	Updated int
	Skipped int

	// UnmatchedIDs are new rows with no IGDB binding yet.
	UnmatchedIDs []int64

	// PlaytimeChangedIDs are existing rows whose playtime moved.
	PlaytimeChangedIDs []int64
}

// Importer writes one store's catalog into the library.
type Importer struct {
	store *store.LibraryStore
}

// New builds an importer over the given library.
func New(s *store.LibraryStore) *Importer {
	return &Importer{store: s}
}

// Import upserts the batch for one store. Records that fail validation
// are logged and skipped; each record commits on its own, so a failure
// partway leaves earlier records in place.
func (im *Importer) Import(storeName string, games []sources.RawGame) (*Report, error) {
	report := &Report{}
	timer := logging.StartTimer(logging.CategorySources, "import "+storeName)
	defer timer.Stop()

	for i := range games {
		raw := &games[i]
		if raw.Name == "" || raw.StoreID == "" {
			logging.Get(logging.CategorySources).Warn("%s: skipping record %d: missing name or store id", storeName, i)
			report.Skipped++
			continue
		}
		if raw.Store != storeName {
			logging.Get(logging.CategorySources).Warn("%s: skipping record %q: claims store %q", storeName, raw.Name, raw.Store)
			report.Skipped++
			continue
		}

		if err := im.upsert(raw, report); err != nil {
			logging.Get(logging.CategorySources).Warn("%s: record %q: %v", storeName, raw.Name, err)
			report.Skipped++
		}
	}

	logging.Sources("%s import: %d created, %d updated, %d skipped",
		storeName, report.Created, report.Updated, report.Skipped)
	return report, nil
}

func (im *Importer) upsert(raw *sources.RawGame, report *Report) error {
	existing, err := im.store.GetGameByStoreKey(raw.Store, raw.StoreID)
	switch {
	case errors.Is(err, store.ErrGameNotFound):
		return im.create(raw, report)
	case err != nil:
		return err
	}
	return im.update(existing, raw, report)
}

func (im *Importer) create(raw *sources.RawGame, report *Report) error {
	id, err := im.store.CreateGame(&store.Game{
		Store:         raw.Store,
		StoreID:       raw.StoreID,
		Name:          raw.Name,
		PlaytimeHours: raw.PlaytimeHours,
		CoverURL:      raw.CoverURL,
		ReleaseDate:   raw.ReleaseDate,
		Genres:        raw.Genres,
		Developers:    raw.Developers,
		Publishers:    raw.Publishers,
		ExtraData:     raw.ExtraData,
		Streaming:     raw.Streaming,
		LastModified:  raw.LastModified,
	})
	if err != nil {
		return err
	}
	report.Created++
	report.UnmatchedIDs = append(report.UnmatchedIDs, id)
	return nil
}

func (im *Importer) update(existing *store.Game, raw *sources.RawGame, report *Report) error {
	next := &store.Game{
		Name:          raw.Name,
		PlaytimeHours: raw.PlaytimeHours,
		CoverURL:      raw.CoverURL,
		ReleaseDate:   raw.ReleaseDate,
		Genres:        raw.Genres,
		Developers:    raw.Developers,
		Publishers:    raw.Publishers,
		ExtraData:     raw.ExtraData,
		Streaming:     raw.Streaming,
	}

	// Carry the better release date forward; some stores stop sending it.
	if next.ReleaseDate == nil {
		next.ReleaseDate = existing.ReleaseDate
	}

	// Most adapters send no genres; the existing set may carry the IGDB
	// union, which a re-sync must not wipe.
	if len(next.Genres) == 0 {
		next.Genres = existing.Genres
	}

	lastModified, versionBump := resolveLastModified(existing.LastModified, raw.LastModified)
	next.LastModified = lastModified

	if err := im.store.UpdateGameSource(existing.ID, next); err != nil {
		return err
	}

	if versionBump {
		err := im.store.AppendDepotUpdate(&store.DepotUpdate{
			GameID:          existing.ID,
			ManifestID:      store.UpdateTagVersion,
			UpdateTimestamp: *raw.LastModified,
		})
		if err != nil {
			return err
		}
		logging.SourcesDebug("%s/%s: version update at %s", raw.Store, raw.StoreID, raw.LastModified.Format(time.RFC3339))
	}

	if playtimeChanged(existing.PlaytimeHours, raw.PlaytimeHours) {
		report.PlaytimeChangedIDs = append(report.PlaytimeChangedIDs, existing.ID)
	}
	report.Updated++
	return nil
}

// resolveLastModified applies the three-way rule: stored null fills in
// silently, a later instant wins and flags a version bump, anything
// else keeps the stored value.
func resolveLastModified(stored, observed *time.Time) (*time.Time, bool) {
	switch {
	case observed == nil:
		return stored, false
	case stored == nil:
		return observed, false
	case observed.After(*stored):
		return observed, true
	default:
		return stored, false
	}
}

func playtimeChanged(a, b *float64) bool {
	switch {
	case a == nil && b == nil:
		return false
	case a == nil || b == nil:
		return true
	default:
		return *a != *b
	}
}
