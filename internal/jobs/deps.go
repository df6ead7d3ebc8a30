package jobs

import (
	"strconv"

	"gamehoard/internal/autotag"
	"gamehoard/internal/enrich"
	"gamehoard/internal/igdb"
	"gamehoard/internal/importer"
	"gamehoard/internal/sources"
	"gamehoard/internal/store"
	"gamehoard/internal/tracker"
)

// Job type names. Store syncs are per-source types so the one-per-type
// rule lets different stores sync in parallel.
const (
	TypeNewsSync       = "news_sync"
	TypeStatusSync     = "status_sync"
	TypeProtonDBSync   = "protondb_sync"
	TypeIGDBSync       = "igdb_sync"
	TypeMetacriticSync = "metacritic_sync"
	TypeUpdateSync     = "update_sync"

	storeSyncPrefix = "store_sync_"
)

// StoreSyncType returns the job type for one store's sync.
func StoreSyncType(storeName string) string {
	return storeSyncPrefix + storeName
}

// Deps bundles everything the job bodies touch.
type Deps struct {
	Store      *store.LibraryStore
	Adapters   map[string]sources.Adapter
	Importer   *importer.Importer
	AutoTag    *autotag.Engine
	IGDB       *igdb.Client
	ProtonDB   *enrich.ProtonDBClient
	Metacritic *enrich.MetacriticClient
	News       *enrich.SteamNewsClient
	SteamStore *tracker.SteamStoreClient
	Tracker    *tracker.Tracker
}

// RegisterAll installs every job body. Only news and status sync are
// resumable: their per-item timestamps make a restart cheap.
func RegisterAll(e *Engine, d *Deps) {
	for name, adapter := range d.Adapters {
		e.Register(StoreSyncType(name), false, storeSyncBody(d, adapter))
	}
	e.Register(TypeNewsSync, true, newsSyncBody(d))
	e.Register(TypeStatusSync, true, statusSyncBody(d))
	e.Register(TypeProtonDBSync, false, protonDBSyncBody(d))
	e.Register(TypeIGDBSync, false, igdbSyncBody(d))
	e.Register(TypeMetacriticSync, false, metacriticSyncBody(d))
	e.Register(TypeUpdateSync, false, updateSyncBody(d))
}

// steamAppID resolves the app id a Steam-facing lookup should use:
// the store id for owned Steam copies, the IGDB cross-reference
// otherwise.
func steamAppID(g *store.Game) (int64, bool) {
	if g.Store == store.StoreSteam {
		if id, err := strconv.ParseInt(g.StoreID, 10, 64); err == nil {
			return id, true
		}
	}
	if g.SteamAppID != nil {
		return *g.SteamAppID, true
	}
	return 0, false
}
