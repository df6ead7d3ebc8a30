package store

import "fmt"

// Stats reports row counts per table plus a per-store game breakdown.
func (s *LibraryStore) Stats() (map[string]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := make(map[string]int64)
	tables := []string{"games", "labels", "game_labels", "game_news", "game_depot_updates", "jobs", "settings", "popularity_cache"}
	for _, table := range tables {
		var n int64
		if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
			return nil, fmt.Errorf("failed to count %s: %w", table, err)
		}
		stats[table] = n
	}

	rows, err := s.db.Query("SELECT store, COUNT(*) FROM games GROUP BY store")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var storeName string
		var n int64
		if err := rows.Scan(&storeName, &n); err != nil {
			return nil, err
		}
		stats["games_"+storeName] = n
	}
	return stats, rows.Err()
}
