package store

import (
	"database/sql"
	"encoding/json"
	"time"
)

// Store identifiers. The set is closed; adapters may only emit these.
const (
	StoreSteam  = "steam"
	StoreEpic   = "epic"
	StoreGOG    = "gog"
	StoreItch   = "itch"
	StoreHumble = "humble"
	StoreBnet   = "battlenet"
	StoreAmazon = "amazon"
	StoreEA     = "ea"
)

// Update-history discriminator tags carried in manifest_id.
const (
	UpdateTagInitial   = "initial_version"
	UpdateTagVersion   = "version_update"
	UpdateTagEARelease = "ea_release"
)

// Development status values.
const (
	StatusEarlyAccess = "early_access"
	StatusReleased    = "released"
)

// ProtonDB tier sentinel: queried upstream, no data. Distinct from NULL,
// which means never queried.
const ProtonTierUnknown = "unknown"

// Game is one storefront-owned library entry. Cross-store copies of the
// same title are separate rows tied together by IGDBID.
type Game struct {
	ID      int64  `json:"id"`
	Store   string `json:"store"`
	StoreID string `json:"store_id"`
	Name    string `json:"name"`

	PlaytimeHours    *float64   `json:"playtime_hours"`
	CoverURL         string     `json:"cover_url"`
	CoverURLOverride string     `json:"cover_url_override"`
	ReleaseDate      *time.Time `json:"release_date"`
	Genres           []string   `json:"genres"`
	Developers       []string   `json:"developers"`
	Publishers       []string   `json:"publishers"`

	// ExtraData preserves the raw store payload verbatim for replay.
	ExtraData json.RawMessage `json:"extra_data,omitempty"`

	Streaming      bool     `json:"streaming"`
	Hidden         bool     `json:"hidden"`
	NSFW           bool     `json:"nsfw"`
	Priority       *int64   `json:"priority"`
	PersonalRating *float64 `json:"personal_rating"`

	AddedAt         time.Time  `json:"added_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	LastModified    *time.Time `json:"last_modified"`
	NewsLastChecked *time.Time `json:"news_last_checked"`

	// IGDB binding
	IGDBID           *int64     `json:"igdb_id"`
	IGDBSlug         string     `json:"igdb_slug"`
	IGDBRating       *float64   `json:"igdb_rating"`
	IGDBRatingCount  *int64     `json:"igdb_rating_count"`
	AggregatedRating *float64   `json:"aggregated_rating"`
	TotalRating      *float64   `json:"total_rating"`
	TotalRatingCount *int64     `json:"total_rating_count"`
	IGDBSummary      string     `json:"igdb_summary"`
	IGDBCoverURL     string     `json:"igdb_cover_url"`
	IGDBScreenshots  []string   `json:"igdb_screenshots"`
	IGDBMatchedAt    *time.Time `json:"igdb_matched_at"`
	SteamAppID       *int64     `json:"steam_app_id"`

	// Rating sources
	CriticsScore        *float64 `json:"critics_score"`
	MetacriticScore     *float64 `json:"metacritic_score"`
	MetacriticUserScore *float64 `json:"metacritic_user_score"`
	MetacriticSlug      string   `json:"metacritic_slug"`
	AverageRating       *float64 `json:"average_rating"`

	// ProtonDB compatibility
	ProtonDBTier         string     `json:"protondb_tier"`
	ProtonDBScore        *float64   `json:"protondb_score"`
	ProtonDBConfidence   *float64   `json:"protondb_confidence"`
	ProtonDBTotal        *int64     `json:"protondb_total"`
	ProtonDBTrendingTier string     `json:"protondb_trending_tier"`
	ProtonDBMatchedAt    *time.Time `json:"protondb_matched_at"`

	// Development status
	DevelopmentStatus string     `json:"development_status"`
	GameVersion       string     `json:"game_version"`
	StatusLastSynced  *time.Time `json:"status_last_synced"`
}

// Label is a user collection or a system tag.
type Label struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Type      string    `json:"type"` // collection | system_tag
	Icon      string    `json:"icon"`
	Color     string    `json:"color"`
	System    bool      `json:"system"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// GameLabel assigns a label to a game. Auto rows are owned by the
// auto-tag engine; user rows are never touched by it.
type GameLabel struct {
	LabelID int64     `json:"label_id"`
	GameID  int64     `json:"game_id"`
	Auto    bool      `json:"auto"`
	AddedAt time.Time `json:"added_at"`
}

// NewsArticle is one fetched news item, unique by URL.
type NewsArticle struct {
	ID          int64      `json:"id"`
	GameID      int64      `json:"game_id"`
	Title       string     `json:"title"`
	Content     string     `json:"content"`
	Author      string     `json:"author"`
	URL         string     `json:"url"`
	PublishedAt *time.Time `json:"published_at"`
	FetchedAt   time.Time  `json:"fetched_at"`
}

// DepotUpdate is one append-only update-history row.
type DepotUpdate struct {
	ID              int64     `json:"id"`
	GameID          int64     `json:"game_id"`
	DepotID         string    `json:"depot_id"`
	ManifestID      string    `json:"manifest_id"`
	UpdateTimestamp time.Time `json:"update_timestamp"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// Job is a persisted long-running task.
type Job struct {
	ID          string     `json:"id"`
	Type        string     `json:"type"`
	Status      string     `json:"status"` // pending | running | completed | failed
	Progress    int64      `json:"progress"`
	Total       int64      `json:"total"`
	Message     string     `json:"message"`
	Result      string     `json:"result"`
	Error       string     `json:"error"`
	Cancelled   bool       `json:"cancelled"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at"`
}

// Job statuses.
const (
	JobPending   = "pending"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// PopularityRow is one cached IGDB popularity primitive.
type PopularityRow struct {
	IGDBID          int64     `json:"igdb_id"`
	PopularityType  int64     `json:"popularity_type"`
	PopularityValue float64   `json:"popularity_value"`
	CachedAt        time.Time `json:"cached_at"`
}

// gameColumns is the canonical column list; scanGame must match it.
const gameColumns = `id, store, store_id, name, playtime_hours, cover_url, cover_url_override,
	release_date, genres, developers, publishers, extra_data, streaming, hidden, nsfw,
	priority, personal_rating, added_at, updated_at, last_modified, news_last_checked,
	igdb_id, igdb_slug, igdb_rating, igdb_rating_count, aggregated_rating, total_rating,
	total_rating_count, igdb_summary, igdb_cover_url, igdb_screenshots, igdb_matched_at,
	steam_app_id, critics_score, metacritic_score, metacritic_user_score, metacritic_slug,
	average_rating, protondb_tier, protondb_score, protondb_confidence, protondb_total,
	protondb_trending_tier, protondb_matched_at, development_status, game_version, status_last_synced`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanGame(row rowScanner) (*Game, error) {
	var g Game
	var storeID, coverURL, coverOverride, genres, developers, publishers sql.NullString
	var extraData, igdbSlug, igdbSummary, igdbCoverURL, igdbScreenshots sql.NullString
	var metacriticSlug, protonTier, protonTrending, devStatus, gameVersion sql.NullString
	var playtime, personalRating, igdbRating, aggRating, totalRating sql.NullFloat64
	var criticsScore, metaScore, metaUserScore, avgRating, protonScore, protonConfidence sql.NullFloat64
	var priority, igdbID, igdbRatingCount, totalRatingCount, steamAppID, protonTotal sql.NullInt64
	var releaseDate, lastModified, newsLastChecked, igdbMatchedAt, protonMatchedAt, statusLastSynced sql.NullTime

	err := row.Scan(
		&g.ID, &g.Store, &storeID, &g.Name, &playtime, &coverURL, &coverOverride,
		&releaseDate, &genres, &developers, &publishers, &extraData, &g.Streaming, &g.Hidden, &g.NSFW,
		&priority, &personalRating, &g.AddedAt, &g.UpdatedAt, &lastModified, &newsLastChecked,
		&igdbID, &igdbSlug, &igdbRating, &igdbRatingCount, &aggRating, &totalRating,
		&totalRatingCount, &igdbSummary, &igdbCoverURL, &igdbScreenshots, &igdbMatchedAt,
		&steamAppID, &criticsScore, &metaScore, &metaUserScore, &metacriticSlug,
		&avgRating, &protonTier, &protonScore, &protonConfidence, &protonTotal,
		&protonTrending, &protonMatchedAt, &devStatus, &gameVersion, &statusLastSynced,
	)
	if err != nil {
		return nil, err
	}

	g.StoreID = storeID.String
	g.CoverURL = coverURL.String
	g.CoverURLOverride = coverOverride.String
	g.Genres = decodeStringList(genres.String)
	g.Developers = decodeStringList(developers.String)
	g.Publishers = decodeStringList(publishers.String)
	if extraData.Valid && extraData.String != "" {
		g.ExtraData = json.RawMessage(extraData.String)
	}
	g.IGDBSlug = igdbSlug.String
	g.IGDBSummary = igdbSummary.String
	g.IGDBCoverURL = igdbCoverURL.String
	g.IGDBScreenshots = decodeStringList(igdbScreenshots.String)
	g.MetacriticSlug = metacriticSlug.String
	g.ProtonDBTier = protonTier.String
	g.ProtonDBTrendingTier = protonTrending.String
	g.DevelopmentStatus = devStatus.String
	g.GameVersion = gameVersion.String

	g.PlaytimeHours = nullFloat(playtime)
	g.PersonalRating = nullFloat(personalRating)
	g.IGDBRating = nullFloat(igdbRating)
	g.AggregatedRating = nullFloat(aggRating)
	g.TotalRating = nullFloat(totalRating)
	g.CriticsScore = nullFloat(criticsScore)
	g.MetacriticScore = nullFloat(metaScore)
	g.MetacriticUserScore = nullFloat(metaUserScore)
	g.AverageRating = nullFloat(avgRating)
	g.ProtonDBScore = nullFloat(protonScore)
	g.ProtonDBConfidence = nullFloat(protonConfidence)

	g.Priority = nullInt(priority)
	g.IGDBID = nullInt(igdbID)
	g.IGDBRatingCount = nullInt(igdbRatingCount)
	g.TotalRatingCount = nullInt(totalRatingCount)
	g.SteamAppID = nullInt(steamAppID)
	g.ProtonDBTotal = nullInt(protonTotal)

	g.ReleaseDate = nullTime(releaseDate)
	g.LastModified = nullTime(lastModified)
	g.NewsLastChecked = nullTime(newsLastChecked)
	g.IGDBMatchedAt = nullTime(igdbMatchedAt)
	g.ProtonDBMatchedAt = nullTime(protonMatchedAt)
	g.StatusLastSynced = nullTime(statusLastSynced)

	return &g, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullInt(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	i := v.Int64
	return &i
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}

// encodeStringList stores ordered string sets as JSON arrays.
func encodeStringList(list []string) string {
	if len(list) == 0 {
		return "[]"
	}
	data, err := json.Marshal(list)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStringList(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var list []string
	if err := json.Unmarshal([]byte(raw), &list); err != nil {
		return nil
	}
	return list
}
