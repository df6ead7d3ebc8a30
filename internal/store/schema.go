package store

// Schema bootstrap. Tables are created without migrated columns; the
// migration pass in migrations.go adds anything a newer build needs, and
// createIndexes runs last so indexes can reference migrated columns.

const gamesTable = `
CREATE TABLE IF NOT EXISTS games (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	store TEXT NOT NULL,
	store_id TEXT,
	name TEXT NOT NULL,
	playtime_hours REAL,
	cover_url TEXT,
	cover_url_override TEXT,
	release_date DATETIME,
	genres TEXT DEFAULT '[]',
	developers TEXT DEFAULT '[]',
	publishers TEXT DEFAULT '[]',
	extra_data TEXT,
	streaming INTEGER DEFAULT 0,
	hidden INTEGER DEFAULT 0,
	nsfw INTEGER DEFAULT 0,
	priority INTEGER,
	personal_rating REAL,
	added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	last_modified DATETIME,
	news_last_checked DATETIME,
	UNIQUE(store, store_id)
);
`

const labelsTable = `
CREATE TABLE IF NOT EXISTS labels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT 'collection',
	icon TEXT,
	color TEXT,
	system INTEGER DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	UNIQUE(name, type)
);
`

const gameLabelsTable = `
CREATE TABLE IF NOT EXISTS game_labels (
	label_id INTEGER NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
	game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	auto INTEGER DEFAULT 0,
	added_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY(label_id, game_id)
);
`

const gameNewsTable = `
CREATE TABLE IF NOT EXISTS game_news (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	title TEXT,
	content TEXT,
	author TEXT,
	url TEXT NOT NULL UNIQUE,
	published_at DATETIME,
	fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

// manifest_id doubles as a discriminator tag: initial_version,
// version_update, ea_release. Rows are append-only.
const depotUpdatesTable = `
CREATE TABLE IF NOT EXISTS game_depot_updates (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	game_id INTEGER NOT NULL REFERENCES games(id) ON DELETE CASCADE,
	depot_id TEXT,
	manifest_id TEXT NOT NULL,
	update_timestamp DATETIME NOT NULL,
	fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const jobsTable = `
CREATE TABLE IF NOT EXISTS jobs (
	id TEXT PRIMARY KEY,
	type TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'pending',
	progress INTEGER DEFAULT 0,
	total INTEGER DEFAULT 0,
	message TEXT,
	result TEXT,
	error TEXT,
	cancelled INTEGER DEFAULT 0,
	created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	completed_at DATETIME
);
`

const settingsTable = `
CREATE TABLE IF NOT EXISTS settings (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

const popularityCacheTable = `
CREATE TABLE IF NOT EXISTS popularity_cache (
	igdb_id INTEGER NOT NULL,
	popularity_type INTEGER NOT NULL,
	popularity_value REAL NOT NULL,
	cached_at DATETIME DEFAULT CURRENT_TIMESTAMP,
	PRIMARY KEY(igdb_id, popularity_type)
);
`

func (s *LibraryStore) createTables() error {
	for _, table := range []string{
		gamesTable,
		labelsTable,
		gameLabelsTable,
		gameNewsTable,
		depotUpdatesTable,
		jobsTable,
		settingsTable,
		popularityCacheTable,
	} {
		if _, err := s.db.Exec(table); err != nil {
			return err
		}
	}
	return nil
}

func (s *LibraryStore) createIndexes() error {
	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_games_playtime ON games(playtime_hours)",
		"CREATE INDEX IF NOT EXISTS idx_games_total_rating ON games(total_rating)",
		"CREATE INDEX IF NOT EXISTS idx_games_added_at ON games(added_at)",
		"CREATE INDEX IF NOT EXISTS idx_games_release_date ON games(release_date)",
		"CREATE INDEX IF NOT EXISTS idx_games_last_modified ON games(last_modified)",
		"CREATE INDEX IF NOT EXISTS idx_games_nsfw ON games(nsfw)",
		"CREATE INDEX IF NOT EXISTS idx_games_hidden ON games(hidden)",
		"CREATE INDEX IF NOT EXISTS idx_games_aggregated_rating ON games(aggregated_rating)",
		"CREATE INDEX IF NOT EXISTS idx_games_igdb_rating_count ON games(igdb_rating_count)",
		"CREATE INDEX IF NOT EXISTS idx_games_igdb_id ON games(igdb_id)",
		"CREATE INDEX IF NOT EXISTS idx_game_labels_game ON game_labels(game_id)",
		"CREATE INDEX IF NOT EXISTS idx_game_labels_label ON game_labels(label_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_game_news_url ON game_news(url)",
		"CREATE INDEX IF NOT EXISTS idx_depot_updates_game ON game_depot_updates(game_id, update_timestamp DESC)",
		"CREATE INDEX IF NOT EXISTS idx_popularity_type_value ON popularity_cache(popularity_type, popularity_value DESC)",
		"CREATE INDEX IF NOT EXISTS idx_jobs_status ON jobs(status)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return err
		}
	}
	return nil
}
