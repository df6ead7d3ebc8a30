package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gamehoard/internal/logging"
)

// ErrGameNotFound is returned by lookups when no row matches.
var ErrGameNotFound = errors.New("game not found")

// CreateGame inserts a new library entry and returns its row id.
// Only source-owned fields are written; user fields start at defaults.
func (s *LibraryStore) CreateGame(g *Game) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		INSERT INTO games (store, store_id, name, playtime_hours, cover_url, release_date,
			genres, developers, publishers, extra_data, streaming, last_modified)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.Store, g.StoreID, g.Name, g.PlaytimeHours, g.CoverURL, g.ReleaseDate,
		encodeStringList(g.Genres), encodeStringList(g.Developers), encodeStringList(g.Publishers),
		nullRaw(g.ExtraData), g.Streaming, g.LastModified)
	if err != nil {
		return 0, fmt.Errorf("failed to insert game %s/%s: %w", g.Store, g.StoreID, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	logging.StoreDebug("Created game id=%d %s/%s %q", id, g.Store, g.StoreID, g.Name)
	return id, nil
}

// UpdateGameSource refreshes the source-owned fields of an existing row.
// User-owned fields (hidden, nsfw, priority, personal rating, cover
// override, labels) are deliberately not touched.
func (s *LibraryStore) UpdateGameSource(id int64, g *Game) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE games SET name = ?, playtime_hours = ?, cover_url = ?, release_date = ?,
			genres = ?, developers = ?, publishers = ?, extra_data = ?, streaming = ?,
			last_modified = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		g.Name, g.PlaytimeHours, g.CoverURL, g.ReleaseDate,
		encodeStringList(g.Genres), encodeStringList(g.Developers), encodeStringList(g.Publishers),
		nullRaw(g.ExtraData), g.Streaming, g.LastModified, id)
	if err != nil {
		return fmt.Errorf("failed to update game %d: %w", id, err)
	}
	return nil
}

// GetGame fetches one game by row id.
func (s *LibraryStore) GetGame(id int64) (*Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+gameColumns+" FROM games WHERE id = ?", id)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	return g, err
}

// GetGameByStoreKey fetches one game by its (store, store_id) identity.
func (s *LibraryStore) GetGameByStoreKey(storeName, storeID string) (*Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+gameColumns+" FROM games WHERE store = ? AND store_id = ?", storeName, storeID)
	g, err := scanGame(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	return g, err
}

// ListGames returns the whole catalog ordered by name.
func (s *LibraryStore) ListGames() ([]*Game, error) {
	return s.listGamesWhere("1=1 ORDER BY name COLLATE NOCASE")
}

// ListGamesByStore returns every entry owned by one storefront.
func (s *LibraryStore) ListGamesByStore(storeName string) ([]*Game, error) {
	return s.listGamesWhere("store = ? ORDER BY name COLLATE NOCASE", storeName)
}

// ListGamesWithIGDB returns entries that carry an IGDB binding.
func (s *LibraryStore) ListGamesWithIGDB() ([]*Game, error) {
	return s.listGamesWhere("igdb_id IS NOT NULL ORDER BY id")
}

// ListGamesWithoutIGDB returns entries the matcher has not bound yet.
func (s *LibraryStore) ListGamesWithoutIGDB() ([]*Game, error) {
	return s.listGamesWhere("igdb_id IS NULL AND streaming = 0 ORDER BY id")
}

// ListGamesBySteamAppID returns entries carrying the given resolved app id.
func (s *LibraryStore) ListGamesBySteamAppID(appID int64) ([]*Game, error) {
	return s.listGamesWhere("steam_app_id = ? ORDER BY id", appID)
}

func (s *LibraryStore) listGamesWhere(where string, args ...interface{}) ([]*Game, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT "+gameColumns+" FROM games WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var games []*Game
	for rows.Next() {
		g, err := scanGame(rows)
		if err != nil {
			return nil, err
		}
		games = append(games, g)
	}
	return games, rows.Err()
}

// DeleteGame removes an entry. News, update history, and label rows
// cascade via foreign keys.
func (s *LibraryStore) DeleteGame(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM games WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete game %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGameNotFound
	}
	logging.Store("Deleted game id=%d", id)
	return nil
}

// SetHidden toggles the user hidden flag.
func (s *LibraryStore) SetHidden(id int64, hidden bool) error {
	return s.setUserField(id, "hidden", hidden)
}

// SetNSFW toggles the user NSFW flag. The IGDB enricher sets this too,
// but never clears a user-set flag.
func (s *LibraryStore) SetNSFW(id int64, nsfw bool) error {
	return s.setUserField(id, "nsfw", nsfw)
}

// SetCoverOverride pins a user-chosen cover URL. Empty string clears it.
func (s *LibraryStore) SetCoverOverride(id int64, url string) error {
	var v interface{}
	if url != "" {
		v = url
	}
	return s.setUserField(id, "cover_url_override", v)
}

// SetPriority sets the user backlog priority. Nil clears it.
func (s *LibraryStore) SetPriority(id int64, priority *int64) error {
	return s.setUserField(id, "priority", priority)
}

// SetPersonalRating sets the user rating. Nil clears it.
func (s *LibraryStore) SetPersonalRating(id int64, rating *float64) error {
	return s.setUserField(id, "personal_rating", rating)
}

func (s *LibraryStore) setUserField(id int64, column string, value interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		fmt.Sprintf("UPDATE games SET %s = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", column),
		value, id)
	if err != nil {
		return fmt.Errorf("failed to set %s on game %d: %w", column, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGameNotFound
	}
	return nil
}

// IGDBBinding carries everything the enricher writes in one shot.
type IGDBBinding struct {
	IGDBID           int64
	Slug             string
	Rating           *float64
	RatingCount      *int64
	AggregatedRating *float64
	TotalRating      *float64
	TotalRatingCount *int64
	Summary          string
	CoverURL         string
	Screenshots      []string
	SteamAppID       *int64
	ReleaseDate      *time.Time
	Genres           []string
	NSFW             bool
}

// UpdateIGDBBinding writes the full enrichment result for a game.
// Genres carry the binding's merged union verbatim; the release date is
// only filled when the store left it empty; NSFW is only ever raised,
// never cleared.
func (s *LibraryStore) UpdateIGDBBinding(id int64, b *IGDBBinding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE games SET
			igdb_id = ?, igdb_slug = ?, igdb_rating = ?, igdb_rating_count = ?,
			aggregated_rating = ?, total_rating = ?, total_rating_count = ?,
			igdb_summary = ?, igdb_cover_url = ?, igdb_screenshots = ?,
			igdb_matched_at = CURRENT_TIMESTAMP,
			steam_app_id = COALESCE(?, steam_app_id),
			release_date = COALESCE(release_date, ?),
			genres = ?,
			nsfw = CASE WHEN ? THEN 1 ELSE nsfw END,
			updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		b.IGDBID, b.Slug, b.Rating, b.RatingCount,
		b.AggregatedRating, b.TotalRating, b.TotalRatingCount,
		b.Summary, b.CoverURL, encodeStringList(b.Screenshots),
		b.SteamAppID, b.ReleaseDate, encodeStringList(b.Genres), b.NSFW, id)
	if err != nil {
		return fmt.Errorf("failed to bind igdb %d to game %d: %w", b.IGDBID, id, err)
	}
	logging.StoreDebug("Bound game %d to igdb %d (%s)", id, b.IGDBID, b.Slug)
	return nil
}

// ClearIGDBBinding detaches a game from its IGDB record so the matcher
// can try again. Steam app id is kept: it may have come from the store.
func (s *LibraryStore) ClearIGDBBinding(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE games SET
			igdb_id = NULL, igdb_slug = NULL, igdb_rating = NULL, igdb_rating_count = NULL,
			aggregated_rating = NULL, total_rating = NULL, total_rating_count = NULL,
			igdb_summary = NULL, igdb_cover_url = NULL, igdb_screenshots = NULL,
			igdb_matched_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to clear igdb binding on game %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGameNotFound
	}
	return nil
}

// ProtonDBResult is one compatibility lookup.
type ProtonDBResult struct {
	Tier         string
	Score        *float64
	Confidence   *float64
	Total        *int64
	TrendingTier string
}

// SetProtonDB records a compatibility lookup result, including the
// "unknown" tier for games ProtonDB has no reports for.
func (s *LibraryStore) SetProtonDB(id int64, r *ProtonDBResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE games SET protondb_tier = ?, protondb_score = ?, protondb_confidence = ?,
			protondb_total = ?, protondb_trending_tier = ?,
			protondb_matched_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		r.Tier, r.Score, r.Confidence, r.Total, r.TrendingTier, id)
	if err != nil {
		return fmt.Errorf("failed to set protondb on game %d: %w", id, err)
	}
	return nil
}

// SetMetacritic records a Metacritic scrape result.
func (s *LibraryStore) SetMetacritic(id int64, score, userScore *float64, slug string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE games SET metacritic_score = ?, metacritic_user_score = ?,
			metacritic_slug = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, score, userScore, slug, id)
	if err != nil {
		return fmt.Errorf("failed to set metacritic on game %d: %w", id, err)
	}
	return nil
}

// SetCriticsScore records a store-provided critics score.
func (s *LibraryStore) SetCriticsScore(id int64, score *float64) error {
	return s.setUserField(id, "critics_score", score)
}

// SetAverageRating stores the recomputed cross-source mean.
func (s *LibraryStore) SetAverageRating(id int64, avg *float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE games SET average_rating = ? WHERE id = ?", avg, id)
	if err != nil {
		return fmt.Errorf("failed to set average rating on game %d: %w", id, err)
	}
	return nil
}

// SetDevelopmentStatus records the synced early-access state.
func (s *LibraryStore) SetDevelopmentStatus(id int64, status, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		UPDATE games SET development_status = ?, game_version = ?,
			status_last_synced = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, status, version, id)
	if err != nil {
		return fmt.Errorf("failed to set development status on game %d: %w", id, err)
	}
	return nil
}

// SetLastModified advances the store-reported modification time.
func (s *LibraryStore) SetLastModified(id int64, t time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"UPDATE games SET last_modified = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?", t, id)
	if err != nil {
		return fmt.Errorf("failed to set last_modified on game %d: %w", id, err)
	}
	return nil
}

// SetSteamAppID records a resolved Steam app id for a non-Steam entry.
func (s *LibraryStore) SetSteamAppID(id int64, appID int64) error {
	return s.setUserField(id, "steam_app_id", appID)
}

func nullRaw(raw []byte) interface{} {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
