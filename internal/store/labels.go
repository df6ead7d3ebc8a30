package store

import (
	"database/sql"
	"errors"
	"fmt"

	"gamehoard/internal/logging"
)

// ErrLabelNotFound is returned by label lookups when no row matches.
var ErrLabelNotFound = errors.New("label not found")

// Label types.
const (
	LabelTypeCollection = "collection"
	LabelTypeSystemTag  = "system_tag"
)

// PlaytimeBuckets are the system playtime tags, owned by the auto-tag
// engine. Order matters: thresholds ascend.
var PlaytimeBuckets = []string{
	"Never Launched",
	"Just Tried",
	"Played",
	"Well Played",
	"Heavily Played",
}

// EnsureSystemLabels creates the playtime bucket tags if missing.
// Called on startup; safe to call repeatedly.
func (s *LibraryStore) EnsureSystemLabels() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, name := range PlaytimeBuckets {
		_, err := s.db.Exec(`
			INSERT INTO labels (name, type, system) VALUES (?, ?, 1)
			ON CONFLICT(name, type) DO NOTHING`, name, LabelTypeSystemTag)
		if err != nil {
			return fmt.Errorf("failed to ensure system label %q: %w", name, err)
		}
	}
	logging.StoreDebug("System labels ensured")
	return nil
}

// CreateLabel inserts a user collection label.
func (s *LibraryStore) CreateLabel(name, labelType, icon, color string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if labelType == "" {
		labelType = LabelTypeCollection
	}
	res, err := s.db.Exec(
		"INSERT INTO labels (name, type, icon, color) VALUES (?, ?, ?, ?)",
		name, labelType, icon, color)
	if err != nil {
		return 0, fmt.Errorf("failed to create label %q: %w", name, err)
	}
	return res.LastInsertId()
}

// GetLabel fetches one label by id.
func (s *LibraryStore) GetLabel(id int64) (*Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanLabelRow(s.db.QueryRow(
		"SELECT id, name, type, icon, color, system, created_at, updated_at FROM labels WHERE id = ?", id))
}

// GetLabelByName fetches one label by (name, type).
func (s *LibraryStore) GetLabelByName(name, labelType string) (*Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scanLabelRow(s.db.QueryRow(
		"SELECT id, name, type, icon, color, system, created_at, updated_at FROM labels WHERE name = ? AND type = ?",
		name, labelType))
}

// ListLabels returns all labels ordered by type then name.
func (s *LibraryStore) ListLabels() ([]*Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, name, type, icon, color, system, created_at, updated_at FROM labels ORDER BY type, name COLLATE NOCASE")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []*Label
	for rows.Next() {
		var l Label
		var icon, color sql.NullString
		if err := rows.Scan(&l.ID, &l.Name, &l.Type, &icon, &color, &l.System, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.Icon = icon.String
		l.Color = color.String
		labels = append(labels, &l)
	}
	return labels, rows.Err()
}

// UpdateLabel renames or restyles a user label. System labels are
// immutable.
func (s *LibraryStore) UpdateLabel(id int64, name, icon, color string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`
		UPDATE labels SET name = ?, icon = ?, color = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ? AND system = 0`, name, icon, color, id)
	if err != nil {
		return fmt.Errorf("failed to update label %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLabelNotFound
	}
	return nil
}

// DeleteLabel removes a user label; assignments cascade. System labels
// are protected.
func (s *LibraryStore) DeleteLabel(id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("DELETE FROM labels WHERE id = ? AND system = 0", id)
	if err != nil {
		return fmt.Errorf("failed to delete label %d: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrLabelNotFound
	}
	return nil
}

// AssignLabel attaches a label to a game. auto marks engine-owned rows.
// Re-assigning is a no-op that preserves the original added_at.
func (s *LibraryStore) AssignLabel(labelID, gameID int64, auto bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO game_labels (label_id, game_id, auto) VALUES (?, ?, ?)
		ON CONFLICT(label_id, game_id) DO NOTHING`, labelID, gameID, auto)
	if err != nil {
		return fmt.Errorf("failed to assign label %d to game %d: %w", labelID, gameID, err)
	}
	return nil
}

// RemoveLabel detaches a label from a game.
func (s *LibraryStore) RemoveLabel(labelID, gameID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec("DELETE FROM game_labels WHERE label_id = ? AND game_id = ?", labelID, gameID)
	if err != nil {
		return fmt.Errorf("failed to remove label %d from game %d: %w", labelID, gameID, err)
	}
	return nil
}

// ReplaceAutoSystemTags clears every engine-owned system-tag row for a
// game and installs the single given bucket. User assignments to the
// same labels survive because auto=0 rows are not touched.
func (s *LibraryStore) ReplaceAutoSystemTags(gameID int64, bucketName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		DELETE FROM game_labels WHERE game_id = ? AND auto = 1
			AND label_id IN (SELECT id FROM labels WHERE type = ? AND system = 1)`,
		gameID, LabelTypeSystemTag)
	if err != nil {
		return fmt.Errorf("failed to clear auto tags for game %d: %w", gameID, err)
	}

	var labelID int64
	err = tx.QueryRow("SELECT id FROM labels WHERE name = ? AND type = ?", bucketName, LabelTypeSystemTag).Scan(&labelID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("system label %q missing: %w", bucketName, ErrLabelNotFound)
	}
	if err != nil {
		return err
	}

	// A surviving conflict row is user-owned (auto=0 rows were not
	// deleted above); it already satisfies the bucket and stays theirs.
	_, err = tx.Exec(`
		INSERT INTO game_labels (label_id, game_id, auto) VALUES (?, ?, 1)
		ON CONFLICT(label_id, game_id) DO NOTHING`, labelID, gameID)
	if err != nil {
		return fmt.Errorf("failed to assign bucket %q to game %d: %w", bucketName, gameID, err)
	}

	return tx.Commit()
}

// LabelsForGame returns every label attached to a game.
func (s *LibraryStore) LabelsForGame(gameID int64) ([]*Label, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT l.id, l.name, l.type, l.icon, l.color, l.system, l.created_at, l.updated_at
		FROM labels l JOIN game_labels gl ON gl.label_id = l.id
		WHERE gl.game_id = ? ORDER BY l.type, l.name COLLATE NOCASE`, gameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var labels []*Label
	for rows.Next() {
		var l Label
		var icon, color sql.NullString
		if err := rows.Scan(&l.ID, &l.Name, &l.Type, &icon, &color, &l.System, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.Icon = icon.String
		l.Color = color.String
		labels = append(labels, &l)
	}
	return labels, rows.Err()
}

func (s *LibraryStore) scanLabelRow(row *sql.Row) (*Label, error) {
	var l Label
	var icon, color sql.NullString
	err := row.Scan(&l.ID, &l.Name, &l.Type, &icon, &color, &l.System, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrLabelNotFound
	}
	if err != nil {
		return nil, err
	}
	l.Icon = icon.String
	l.Color = color.String
	return &l, nil
}
