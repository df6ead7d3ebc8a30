package store

import (
	"database/sql"
	"fmt"
	"time"
)

// AppendDepotUpdate records one update-history row. Rows are append-only;
// a duplicate (game, depot, manifest) pair within a sync run is the
// caller's responsibility to avoid.
func (s *LibraryStore) AppendDepotUpdate(u *DepotUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO game_depot_updates (game_id, depot_id, manifest_id, update_timestamp)
		VALUES (?, ?, ?, ?)`,
		u.GameID, u.DepotID, u.ManifestID, u.UpdateTimestamp)
	if err != nil {
		return fmt.Errorf("failed to append update for game %d: %w", u.GameID, err)
	}
	return nil
}

// LatestUpdate returns the newest history row for a game, or nil when
// the game has no recorded history.
func (s *LibraryStore) LatestUpdate(gameID int64) (*DepotUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, game_id, depot_id, manifest_id, update_timestamp, fetched_at
		FROM game_depot_updates WHERE game_id = ?
		ORDER BY update_timestamp DESC, id DESC LIMIT 1`, gameID)

	var u DepotUpdate
	var depotID sql.NullString
	err := row.Scan(&u.ID, &u.GameID, &depotID, &u.ManifestID, &u.UpdateTimestamp, &u.FetchedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.DepotID = depotID.String
	return &u, nil
}

// UpdatesForGame returns a game's history, newest first.
func (s *LibraryStore) UpdatesForGame(gameID int64, limit int) ([]*DepotUpdate, error) {
	if limit <= 0 {
		limit = 50
	}
	return s.listUpdates("game_id = ? ORDER BY update_timestamp DESC, id DESC LIMIT ?", gameID, limit)
}

// RecentUpdates returns the newest history rows across the library.
func (s *LibraryStore) RecentUpdates(since time.Time, limit int) ([]*DepotUpdate, error) {
	if limit <= 0 {
		limit = 100
	}
	return s.listUpdates("update_timestamp >= ? ORDER BY update_timestamp DESC, id DESC LIMIT ?", since, limit)
}

func (s *LibraryStore) listUpdates(where string, args ...interface{}) ([]*DepotUpdate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, game_id, depot_id, manifest_id, update_timestamp, fetched_at
		FROM game_depot_updates WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var updates []*DepotUpdate
	for rows.Next() {
		var u DepotUpdate
		var depotID sql.NullString
		if err := rows.Scan(&u.ID, &u.GameID, &depotID, &u.ManifestID, &u.UpdateTimestamp, &u.FetchedAt); err != nil {
			return nil, err
		}
		u.DepotID = depotID.String
		updates = append(updates, &u)
	}
	return updates, rows.Err()
}
