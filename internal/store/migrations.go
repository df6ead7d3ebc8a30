// Schema migrations for the library store. Migrations are additive only:
// add column, add table, add index. Columns are never dropped or renamed;
// a rename is expressed as add-new + backfill + stop reading old.
package store

import (
	"database/sql"
	"fmt"

	"gamehoard/internal/logging"
)

// Migration defines a single idempotent add-column migration.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists all columns added after the initial schema.
// Each entry is a no-op when the column already exists.
var pendingMigrations = []Migration{
	// IGDB binding
	{"games", "igdb_id", "INTEGER"},
	{"games", "igdb_slug", "TEXT"},
	{"games", "igdb_rating", "REAL"},
	{"games", "igdb_rating_count", "INTEGER"},
	{"games", "aggregated_rating", "REAL"},
	{"games", "total_rating", "REAL"},
	{"games", "total_rating_count", "INTEGER"},
	{"games", "igdb_summary", "TEXT"},
	{"games", "igdb_cover_url", "TEXT"},
	{"games", "igdb_screenshots", "TEXT"},
	{"games", "igdb_matched_at", "DATETIME"},
	{"games", "steam_app_id", "INTEGER"},
	// Rating sources
	{"games", "critics_score", "REAL"},
	{"games", "metacritic_score", "REAL"},
	{"games", "metacritic_user_score", "REAL"},
	{"games", "metacritic_slug", "TEXT"},
	{"games", "average_rating", "REAL"},
	// ProtonDB compatibility
	{"games", "protondb_tier", "TEXT"},
	{"games", "protondb_score", "REAL"},
	{"games", "protondb_confidence", "REAL"},
	{"games", "protondb_total", "INTEGER"},
	{"games", "protondb_trending_tier", "TEXT"},
	{"games", "protondb_matched_at", "DATETIME"},
	// Development status tracking
	{"games", "development_status", "TEXT"},
	{"games", "game_version", "TEXT"},
	{"games", "status_last_synced", "DATETIME"},
}

// RunMigrations applies schema migrations for existing databases.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	appliedCount := 0
	skippedCount := 0

	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			skippedCount++
			continue
		}

		if columnExists(db, m.Table, m.Column) {
			skippedCount++
			continue
		}

		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		logging.StoreDebug("Executing migration: %s", query)
		if _, err := db.Exec(query); err != nil {
			// Column may already exist in a different form; never fatal.
			logging.Get(logging.CategoryStore).Warn("Migration failed (may already exist): %s.%s: %v", m.Table, m.Column, err)
			skippedCount++
			continue
		}
		appliedCount++
	}

	logging.Store("Schema migrations complete: applied=%d, skipped=%d", appliedCount, skippedCount)
	return nil
}

// columnExists checks if a column exists using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// tableExists checks if a table exists in the database.
func tableExists(db *sql.DB, table string) bool {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if err := db.QueryRow(query, table).Scan(&count); err != nil {
		return false
	}
	return count > 0
}
