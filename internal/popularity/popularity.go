// Package popularity caches IGDB popularity primitives in two tiers:
// a short-lived in-process map keyed by the filter fingerprint, and the
// database table underneath it. The fingerprint doubles as the
// invalidation mechanism: any library change produces a different id
// set and therefore a cache miss.
package popularity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"gamehoard/internal/igdb"
	"gamehoard/internal/logging"
	"gamehoard/internal/store"
)

const (
	tier1TTL = 15 * time.Minute
	tier2TTL = 24 * time.Hour
)

// Row is one game's value for one popularity category.
type Row struct {
	IGDBID int64   `json:"igdb_id"`
	Type   int64   `json:"popularity_type"`
	Value  float64 `json:"value"`
}

type tier1Entry struct {
	rows     []Row
	cachedAt time.Time
}

// PrimitiveSource is the upstream feed, satisfied by *igdb.Client.
type PrimitiveSource interface {
	PopularityByIDs(ctx context.Context, popularityType int64, gameIDs []int64) ([]igdb.PopularityPrimitive, error)
}

// Cache answers popularity queries for a set of library games.
type Cache struct {
	store *store.LibraryStore
	igdb  PrimitiveSource

	mu    sync.Mutex
	tier1 map[string]tier1Entry

	now func() time.Time
}

// New builds the cache.
func New(s *store.LibraryStore, client PrimitiveSource) *Cache {
	return &Cache{
		store: s,
		igdb:  client,
		tier1: make(map[string]tier1Entry),
		now:   time.Now,
	}
}

// Fingerprint canonicalizes an id set: sorted, joined, hashed. The same
// ids in any order produce the same key.
func Fingerprint(popularityTypes, igdbIDs []int64) string {
	ids := append([]int64(nil), igdbIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	types := append([]int64(nil), popularityTypes...)
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var b strings.Builder
	for _, t := range types {
		fmt.Fprintf(&b, "t%d,", t)
	}
	for _, id := range ids {
		fmt.Fprintf(&b, "%d,", id)
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

// Get returns popularity rows for the given games and categories,
// sorted by value descending. Tier 1 answers repeats within 15 minutes;
// Tier 2 rows older than 24 hours force an upstream refresh.
func (c *Cache) Get(ctx context.Context, popularityTypes, igdbIDs []int64) ([]Row, error) {
	if len(igdbIDs) == 0 || len(popularityTypes) == 0 {
		return nil, nil
	}

	key := Fingerprint(popularityTypes, igdbIDs)
	c.mu.Lock()
	if entry, ok := c.tier1[key]; ok && c.now().Sub(entry.cachedAt) < tier1TTL {
		c.mu.Unlock()
		logging.CacheDebug("Popularity tier-1 hit for %s", key[:12])
		return entry.rows, nil
	}
	c.mu.Unlock()

	wanted := make(map[int64]struct{}, len(igdbIDs))
	for _, id := range igdbIDs {
		wanted[id] = struct{}{}
	}

	var rows []Row
	for _, popType := range popularityTypes {
		typeRows, err := c.rowsForType(ctx, popType, igdbIDs, wanted)
		if err != nil {
			return nil, err
		}
		rows = append(rows, typeRows...)
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Value > rows[j].Value })

	c.mu.Lock()
	c.tier1[key] = tier1Entry{rows: rows, cachedAt: c.now()}
	c.mu.Unlock()
	return rows, nil
}

// rowsForType serves one category from Tier 2, refreshing from IGDB
// when the cached rows do not cover the requested ids.
func (c *Cache) rowsForType(ctx context.Context, popType int64, igdbIDs []int64, wanted map[int64]struct{}) ([]Row, error) {
	cached, err := c.store.PopularityForType(popType, tier2TTL)
	if err != nil {
		return nil, err
	}

	covered := make(map[int64]struct{}, len(cached))
	for _, r := range cached {
		covered[r.IGDBID] = struct{}{}
	}
	complete := true
	for id := range wanted {
		if _, ok := covered[id]; !ok {
			complete = false
			break
		}
	}
	if complete {
		return filterRows(cached, wanted), nil
	}

	logging.Cache("Popularity type %d stale or incomplete, refreshing %d ids", popType, len(igdbIDs))
	primitives, err := c.igdb.PopularityByIDs(ctx, popType, igdbIDs)
	if err != nil {
		return nil, err
	}

	fresh := make([]store.PopularityRow, 0, len(primitives))
	for _, p := range primitives {
		fresh = append(fresh, store.PopularityRow{
			IGDBID:          p.GameID,
			PopularityType:  popType,
			PopularityValue: p.Value,
		})
	}
	if err := c.store.ReplacePopularity(popType, fresh); err != nil {
		return nil, err
	}
	return filterRows(fresh, wanted), nil
}

func filterRows(cached []store.PopularityRow, wanted map[int64]struct{}) []Row {
	out := make([]Row, 0, len(cached))
	for _, r := range cached {
		if _, ok := wanted[r.IGDBID]; ok {
			out = append(out, Row{IGDBID: r.IGDBID, Type: r.PopularityType, Value: r.PopularityValue})
		}
	}
	return out
}
