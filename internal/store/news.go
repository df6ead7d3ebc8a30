package store

import (
	"database/sql"
	"fmt"
	"time"
)

// UpsertNews inserts a news article, deduplicating on URL. An existing
// URL has its title, content and fetch time refreshed in place. Returns
// true when a new row was created.
func (s *LibraryStore) UpsertNews(a *NewsArticle) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var exists bool
	if err := s.db.QueryRow("SELECT EXISTS(SELECT 1 FROM game_news WHERE url = ?)", a.URL).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check news %q: %w", a.URL, err)
	}

	_, err := s.db.Exec(`
		INSERT INTO game_news (game_id, title, content, author, url, published_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET
			title = excluded.title,
			content = excluded.content,
			fetched_at = CURRENT_TIMESTAMP`,
		a.GameID, a.Title, a.Content, a.Author, a.URL, a.PublishedAt)
	if err != nil {
		return false, fmt.Errorf("failed to upsert news %q: %w", a.URL, err)
	}
	return !exists, nil
}

// NewsForGame returns articles for a game, newest first.
func (s *LibraryStore) NewsForGame(gameID int64, limit int) ([]*NewsArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.Query(`
		SELECT id, game_id, title, content, author, url, published_at, fetched_at
		FROM game_news WHERE game_id = ?
		ORDER BY published_at DESC LIMIT ?`, gameID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNewsRows(rows)
}

// RecentNews returns the newest articles across the whole library.
func (s *LibraryStore) RecentNews(limit int) ([]*NewsArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(`
		SELECT id, game_id, title, content, author, url, published_at, fetched_at
		FROM game_news ORDER BY published_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNewsRows(rows)
}

func scanNewsRows(rows *sql.Rows) ([]*NewsArticle, error) {
	var articles []*NewsArticle
	for rows.Next() {
		var a NewsArticle
		var title, content, author sql.NullString
		var published sql.NullTime
		if err := rows.Scan(&a.ID, &a.GameID, &title, &content, &author, &a.URL, &published, &a.FetchedAt); err != nil {
			return nil, err
		}
		a.Title = title.String
		a.Content = content.String
		a.Author = author.String
		a.PublishedAt = nullTime(published)
		articles = append(articles, &a)
	}
	return articles, rows.Err()
}

// SetNewsLastChecked stamps a game's news check time. Written even when
// the fetch found nothing, so skip logic can rely on it.
func (s *LibraryStore) SetNewsLastChecked(gameID int64, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("UPDATE games SET news_last_checked = ? WHERE id = ?", at, gameID)
	if err != nil {
		return fmt.Errorf("failed to stamp news check for game %d: %w", gameID, err)
	}
	return nil
}
