package settings

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/scatterview/server/internal/legend"
)

// Store persists legend customization per dataset and category in SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// NewStore opens (creating if needed) the settings database.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory for sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS legend_settings (
		dataset_id TEXT NOT NULL,
		category TEXT NOT NULL,
		value TEXT NOT NULL,
		z_order INTEGER,
		color TEXT DEFAULT '',
		shape TEXT DEFAULT '',
		hidden INTEGER DEFAULT 0,
		PRIMARY KEY (dataset_id, category, value)
	);

	CREATE INDEX IF NOT EXISTS idx_legend_settings_cat ON legend_settings(dataset_id, category);

	CREATE TABLE IF NOT EXISTS sort_prefs (
		dataset_id TEXT NOT NULL,
		category TEXT NOT NULL,
		sort_mode TEXT DEFAULT '',
		max_visible INTEGER DEFAULT 0,
		PRIMARY KEY (dataset_id, category)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveCategory replaces the persisted customization of one category.
func (s *Store) SaveCategory(datasetID, category string, c Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(
		"DELETE FROM legend_settings WHERE dataset_id = ? AND category = ?",
		datasetID, category); err != nil {
		return err
	}
	if _, err := tx.Exec(
		"DELETE FROM sort_prefs WHERE dataset_id = ? AND category = ?",
		datasetID, category); err != nil {
		return err
	}

	if c.SortMode != "" || c.MaxVisible > 0 {
		if _, err := tx.Exec(`
			INSERT INTO sort_prefs (dataset_id, category, sort_mode, max_visible)
			VALUES (?, ?, ?, ?)
		`, datasetID, category, c.SortMode, c.MaxVisible); err != nil {
			return err
		}
	}

	hidden := make(map[string]bool, len(c.Hidden))
	for _, v := range c.Hidden {
		hidden[v] = true
	}
	values := make(map[string]bool, len(c.Overrides)+len(hidden))
	for v := range c.Overrides {
		values[v] = true
	}
	for v := range hidden {
		values[v] = true
	}
	if len(values) > 0 {
		stmt, err := tx.Prepare(`
			INSERT INTO legend_settings (dataset_id, category, value, z_order, color, shape, hidden)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for v := range values {
			ov := c.Overrides[v]
			var z interface{}
			if ov.ZOrder != nil {
				z = *ov.ZOrder
			}
			h := 0
			if hidden[v] {
				h = 1
			}
			if _, err := stmt.Exec(datasetID, category, v, z, ov.Color, ov.Shape, h); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// LoadCategory returns the persisted customization of one category. The
// second return value reports whether anything was stored.
func (s *Store) LoadCategory(datasetID, category string) (Category, bool, error) {
	var c Category
	found := false

	row := s.db.QueryRow(`
		SELECT sort_mode, max_visible FROM sort_prefs
		WHERE dataset_id = ? AND category = ?
	`, datasetID, category)
	err := row.Scan(&c.SortMode, &c.MaxVisible)
	if err != nil && err != sql.ErrNoRows {
		return Category{}, false, err
	}
	if err == nil {
		found = true
	}

	rows, err := s.db.Query(`
		SELECT value, z_order, color, shape, hidden FROM legend_settings
		WHERE dataset_id = ? AND category = ?
	`, datasetID, category)
	if err != nil {
		return Category{}, false, err
	}
	defer rows.Close()

	for rows.Next() {
		var value, color, shape string
		var z sql.NullInt64
		var hidden int
		if err := rows.Scan(&value, &z, &color, &shape, &hidden); err != nil {
			return Category{}, false, err
		}
		found = true
		ov := legend.Override{Color: color, Shape: shape}
		if z.Valid {
			zi := int(z.Int64)
			ov.ZOrder = &zi
		}
		if ov.ZOrder != nil || ov.Color != "" || ov.Shape != "" {
			if c.Overrides == nil {
				c.Overrides = make(map[string]legend.Override)
			}
			c.Overrides[value] = ov
		}
		if hidden != 0 {
			c.Hidden = append(c.Hidden, value)
		}
	}
	if err := rows.Err(); err != nil {
		return Category{}, false, err
	}

	return c, found, nil
}

// Load returns every persisted category customization for a dataset.
func (s *Store) Load(datasetID string) (*Settings, error) {
	names := make(map[string]bool)

	rows, err := s.db.Query(
		"SELECT DISTINCT category FROM sort_prefs WHERE dataset_id = ?", datasetID)
	if err != nil {
		return nil, err
	}
	if err := collectNames(rows, names); err != nil {
		return nil, err
	}

	rows, err = s.db.Query(
		"SELECT DISTINCT category FROM legend_settings WHERE dataset_id = ?", datasetID)
	if err != nil {
		return nil, err
	}
	if err := collectNames(rows, names); err != nil {
		return nil, err
	}

	out := &Settings{}
	for name := range names {
		c, found, err := s.LoadCategory(datasetID, name)
		if err != nil {
			return nil, err
		}
		if found {
			out.Set(name, c)
		}
	}
	return out, nil
}

func collectNames(rows *sql.Rows, into map[string]bool) error {
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return err
		}
		into[name] = true
	}
	return rows.Err()
}

// DeleteCategory removes the persisted customization of one category.
func (s *Store) DeleteCategory(datasetID, category string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		"DELETE FROM legend_settings WHERE dataset_id = ? AND category = ?",
		datasetID, category); err != nil {
		return err
	}
	_, err := s.db.Exec(
		"DELETE FROM sort_prefs WHERE dataset_id = ? AND category = ?",
		datasetID, category)
	return err
}

// DeleteDataset removes all persisted customization for a dataset.
func (s *Store) DeleteDataset(datasetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(
		"DELETE FROM legend_settings WHERE dataset_id = ?", datasetID); err != nil {
		return err
	}
	_, err := s.db.Exec("DELETE FROM sort_prefs WHERE dataset_id = ?", datasetID)
	return err
}
