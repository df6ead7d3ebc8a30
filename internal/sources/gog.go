package sources

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gamehoard/internal/logging"
	"gamehoard/internal/settings"
	"gamehoard/internal/store"
)

// GOGAdapter reads the GOG Galaxy client's local database. No network
// calls; the Galaxy client keeps the catalog current.
type GOGAdapter struct {
	settings *settings.Registry
}

// NewGOGAdapter builds the adapter.
func NewGOGAdapter(reg *settings.Registry) *GOGAdapter {
	return &GOGAdapter{settings: reg}
}

func (a *GOGAdapter) Store() string { return store.StoreGOG }

// Fetch opens the Galaxy database read-only and joins the library
// release list against its metadata pieces.
func (a *GOGAdapter) Fetch(ctx context.Context) ([]RawGame, error) {
	dbPath := a.settings.String(settings.KeyGOGDBPath, "")
	if dbPath == "" {
		return nil, NotConfiguredError(store.StoreGOG, "gog_db_path")
	}
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("gog: database %s not readable: %w", dbPath, ErrNotConfigured)
	}

	timer := logging.StartTimer(logging.CategorySources, "gog.Fetch")
	defer timer.Stop()

	db, err := sql.Open("sqlite3", "file:"+dbPath+"?mode=ro")
	if err != nil {
		return nil, fmt.Errorf("gog: open database: %v: %w", err, ErrParse)
	}
	defer db.Close()

	titles, err := a.queryPieces(ctx, db, "title")
	if err != nil {
		return nil, err
	}
	images, err := a.queryPieces(ctx, db, "originalImages")
	if err != nil {
		logging.SourcesDebug("GOG image pieces unavailable: %v", err)
		images = map[string]string{}
	}
	playtimes := a.queryPlaytimes(ctx, db)

	logging.Sources("GOG Galaxy database reports %d library releases", len(titles))

	var raws []RawGame
	for releaseKey, titleJSON := range titles {
		// Galaxy tracks every connected platform; only gog_ keys are
		// owned GOG products.
		if !strings.HasPrefix(releaseKey, "gog_") {
			continue
		}

		var title struct {
			Title string `json:"title"`
		}
		if err := json.Unmarshal([]byte(titleJSON), &title); err != nil || title.Title == "" {
			logging.SourcesDebug("Skipping GOG release %s: bad title piece", releaseKey)
			continue
		}

		raw := RawGame{
			Name:    title.Title,
			Store:   store.StoreGOG,
			StoreID: strings.TrimPrefix(releaseKey, "gog_"),
		}
		if imgJSON, ok := images[releaseKey]; ok {
			var imgs struct {
				VerticalCover string `json:"verticalCover"`
				SquareIcon    string `json:"squareIcon"`
			}
			if err := json.Unmarshal([]byte(imgJSON), &imgs); err == nil {
				if imgs.VerticalCover != "" {
					raw.CoverURL = imgs.VerticalCover
				} else {
					raw.CoverURL = imgs.SquareIcon
				}
			}
		}
		if minutes, ok := playtimes[releaseKey]; ok && minutes > 0 {
			hours := float64(minutes) / 60.0
			raw.PlaytimeHours = &hours
		}
		if extra, err := json.Marshal(map[string]string{"release_key": releaseKey}); err == nil {
			raw.ExtraData = extra
		}
		raws = append(raws, raw)
	}
	return raws, nil
}

// queryPieces returns releaseKey -> raw JSON for one game piece type.
func (a *GOGAdapter) queryPieces(ctx context.Context, db *sql.DB, pieceType string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT lr.releaseKey, gp.value
		FROM LibraryReleases lr
		JOIN GamePieces gp ON gp.releaseKey = lr.releaseKey
		JOIN GamePieceTypes gpt ON gpt.id = gp.gamePieceTypeId
		WHERE gpt.type = ?`, pieceType)
	if err != nil {
		return nil, fmt.Errorf("gog: query %s pieces: %v: %w", pieceType, err, ErrParse)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			continue
		}
		out[key] = value
	}
	return out, rows.Err()
}

// queryPlaytimes returns releaseKey -> minutes. Missing table is fine;
// older Galaxy versions do not track time.
func (a *GOGAdapter) queryPlaytimes(ctx context.Context, db *sql.DB) map[string]int64 {
	out := make(map[string]int64)
	rows, err := db.QueryContext(ctx, "SELECT releaseKey, minutesInGame FROM GameTimes")
	if err != nil {
		logging.SourcesDebug("GOG playtime table unavailable: %v", err)
		return out
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var minutes int64
		if err := rows.Scan(&key, &minutes); err != nil {
			continue
		}
		out[key] = minutes
	}
	return out
}
