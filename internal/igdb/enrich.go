package igdb

import (
	"strconv"
	"strings"
	"time"

	"gamehoard/internal/store"
)

const maxScreenshots = 5

// BuildBinding converts an IGDB record into the store's binding shape:
// CDN paths rewritten to large sizes, first five screenshots, adult
// theme mapped to the NSFW flag, Steam app id pulled from external
// cross-references, and genres merged with what the store already has.
func BuildBinding(g *Game, existingGenres []string) *store.IGDBBinding {
	b := &store.IGDBBinding{
		IGDBID: g.ID,
		Slug:   g.Slug,
	}

	if g.Rating > 0 {
		v := g.Rating
		b.Rating = &v
	}
	if g.RatingCount > 0 {
		v := g.RatingCount
		b.RatingCount = &v
	}
	if g.AggregatedRating > 0 {
		v := g.AggregatedRating
		b.AggregatedRating = &v
	}
	if g.TotalRating > 0 {
		v := g.TotalRating
		b.TotalRating = &v
	}
	if g.TotalRatingCount > 0 {
		v := g.TotalRatingCount
		b.TotalRatingCount = &v
	}
	b.Summary = g.Summary

	if g.Cover != nil {
		b.CoverURL = imageURL(g.Cover.URL, "t_cover_big")
	}
	for i, shot := range g.Screenshots {
		if i >= maxScreenshots {
			break
		}
		if url := imageURL(shot.URL, "t_screenshot_big"); url != "" {
			b.Screenshots = append(b.Screenshots, url)
		}
	}

	if g.FirstReleaseDate > 0 {
		t := time.Unix(g.FirstReleaseDate, 0).UTC()
		b.ReleaseDate = &t
	}

	for _, theme := range g.Themes {
		if theme.ID == themeAdult {
			b.NSFW = true
			break
		}
	}

	for _, ext := range g.ExternalGames {
		if ext.Category != externalCategorySteam {
			continue
		}
		if appID, err := strconv.ParseInt(ext.UID, 10, 64); err == nil && appID > 0 {
			b.SteamAppID = &appID
			break
		}
	}

	// IGDB's genre vocabulary is split across genres and themes; both
	// feed the merged list.
	igdbGenres := make([]string, 0, len(g.Genres)+len(g.Themes))
	for _, genre := range g.Genres {
		if genre.Name != "" {
			igdbGenres = append(igdbGenres, genre.Name)
		}
	}
	for _, theme := range g.Themes {
		if theme.Name != "" {
			igdbGenres = append(igdbGenres, theme.Name)
		}
	}
	b.Genres = mergeGenres(existingGenres, igdbGenres)

	return b
}

// mergeGenres unions two genre lists, deduplicating case-insensitively
// and preserving first-seen order.
func mergeGenres(existing, incoming []string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range [][]string{existing, incoming} {
		for _, genre := range list {
			key := strings.ToLower(strings.TrimSpace(genre))
			if key == "" || seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, genre)
		}
	}
	return out
}
