package repository

import (
	"context"
	"database/sql"
	"fmt"

	"watchlog/internal/models"
)

// WatchlistRepository handles the Currently Watching collection.
type WatchlistRepository struct {
	db *sql.DB
}

// NewWatchlistRepository creates a new WatchlistRepository
func NewWatchlistRepository(sqliteDB *SQLiteDB) *WatchlistRepository {
	return &WatchlistRepository{db: sqliteDB.db}
}

// Upsert inserts or refreshes a Currently Watching entry.
func (r *WatchlistRepository) Upsert(ctx context.Context, userID string, item models.WatchingItem) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO currently_watching (user_id, tvshow_id, tvshow_name, poster_path, added_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, tvshow_id) DO UPDATE SET
			tvshow_name = excluded.tvshow_name,
			poster_path = excluded.poster_path
	`, userID, item.TVShowID, item.TVShowName, item.PosterPath, item.AddedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert watching entry: %w", err)
	}
	return nil
}

// Remove deletes a Currently Watching entry; absent entries are a no-op.
func (r *WatchlistRepository) Remove(ctx context.Context, userID string, tvShowID int) error {
	_, err := r.db.ExecContext(ctx, `
		DELETE FROM currently_watching WHERE user_id = ? AND tvshow_id = ?
	`, userID, tvShowID)
	if err != nil {
		return fmt.Errorf("failed to remove watching entry: %w", err)
	}
	return nil
}

// List returns a user's Currently Watching entries, newest first.
func (r *WatchlistRepository) List(ctx context.Context, userID string) ([]models.WatchingItem, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tvshow_id, tvshow_name, poster_path, added_at
		FROM currently_watching WHERE user_id = ?
		ORDER BY added_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list watching entries: %w", err)
	}
	defer rows.Close()

	var items []models.WatchingItem
	for rows.Next() {
		var item models.WatchingItem
		if err := rows.Scan(&item.TVShowID, &item.TVShowName, &item.PosterPath, &item.AddedAt); err != nil {
			return nil, fmt.Errorf("failed to scan watching entry: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
