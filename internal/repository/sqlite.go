package repository

import (
	"database/sql"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteDB wraps the database connection
type SQLiteDB struct {
	db *sql.DB
}

// NewSQLiteDB creates a new SQLite database connection with connection pool settings
func NewSQLiteDB(dbPath string) (*SQLiteDB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// SQLite benefits from limited connections due to write locking
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &SQLiteDB{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteDB) Close() error {
	return s.db.Close()
}

// InitSchema creates the database tables and runs migrations
func (s *SQLiteDB) InitSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS watched_episodes (
		user_id TEXT NOT NULL,
		tvshow_id INTEGER NOT NULL,
		season INTEGER NOT NULL,
		episode INTEGER NOT NULL,
		episode_id INTEGER DEFAULT 0,
		episode_name TEXT DEFAULT '',
		episode_air_date TEXT,
		watched_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, tvshow_id, season, episode)
	);

	CREATE TABLE IF NOT EXISTS show_tracking (
		user_id TEXT NOT NULL,
		tvshow_id INTEGER NOT NULL,
		tvshow_name TEXT DEFAULT '',
		poster_path TEXT DEFAULT '',
		last_updated INTEGER NOT NULL,
		total_episodes INTEGER,
		avg_runtime INTEGER,
		next_state TEXT NOT NULL DEFAULT 'not_computed',
		next_season INTEGER,
		next_episode INTEGER,
		next_title TEXT,
		next_air_date TEXT,
		PRIMARY KEY (user_id, tvshow_id)
	);

	CREATE TABLE IF NOT EXISTS currently_watching (
		user_id TEXT NOT NULL,
		tvshow_id INTEGER NOT NULL,
		tvshow_name TEXT DEFAULT '',
		poster_path TEXT DEFAULT '',
		added_at INTEGER NOT NULL,
		PRIMARY KEY (user_id, tvshow_id)
	);

	CREATE INDEX IF NOT EXISTS idx_watched_user_show ON watched_episodes(user_id, tvshow_id);
	CREATE INDEX IF NOT EXISTS idx_tracking_user ON show_tracking(user_id, last_updated);
	CREATE INDEX IF NOT EXISTS idx_watching_user ON currently_watching(user_id, added_at);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return err
	}

	return s.runMigrations()
}

// runMigrations executes pending database migrations
func (s *SQLiteDB) runMigrations() error {
	// Check if avg_runtime column exists (added after the first release)
	var result sql.NullInt64
	err := s.db.QueryRow("SELECT avg_runtime FROM show_tracking LIMIT 1").Scan(&result)
	if err != nil && err != sql.ErrNoRows {
		return s.migrateAvgRuntime()
	}
	return nil
}

// migrateAvgRuntime adds the avg_runtime column to show_tracking
func (s *SQLiteDB) migrateAvgRuntime() error {
	_, err := s.db.Exec(`ALTER TABLE show_tracking ADD COLUMN avg_runtime INTEGER`)
	return err
}
