package store

import (
	"fmt"
	"time"
)

// ReplacePopularity overwrites the cached rows for one popularity type.
// Values and cache stamps are replaced wholesale: the cache never mixes
// rows from two refreshes of the same type.
func (s *LibraryStore) ReplacePopularity(popularityType int64, rows []PopularityRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM popularity_cache WHERE popularity_type = ?", popularityType); err != nil {
		return fmt.Errorf("failed to clear popularity type %d: %w", popularityType, err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO popularity_cache (igdb_id, popularity_type, popularity_value, cached_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range rows {
		if _, err := stmt.Exec(r.IGDBID, popularityType, r.PopularityValue); err != nil {
			return fmt.Errorf("failed to cache popularity for igdb %d: %w", r.IGDBID, err)
		}
	}
	return tx.Commit()
}

// PopularityForType returns cached rows for one type, highest value
// first, along with the oldest cache stamp so callers can judge
// freshness. maxAge <= 0 disables the freshness filter.
func (s *LibraryStore) PopularityForType(popularityType int64, maxAge time.Duration) ([]PopularityRow, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT igdb_id, popularity_type, popularity_value, cached_at
		FROM popularity_cache WHERE popularity_type = ?`
	args := []interface{}{popularityType}
	if maxAge > 0 {
		query += " AND cached_at >= ?"
		args = append(args, time.Now().UTC().Add(-maxAge))
	}
	query += " ORDER BY popularity_value DESC"

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PopularityRow
	for rows.Next() {
		var r PopularityRow
		if err := rows.Scan(&r.IGDBID, &r.PopularityType, &r.PopularityValue, &r.CachedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
