package service

import (
	"context"
	"fmt"

	"watchlog/internal/auth"
	"watchlog/internal/models"
	"watchlog/internal/repository"
)

// WatchlistService manages the Currently Watching collection. Its Add method
// is the best-effort side-effect target of a show's first watched episode.
type WatchlistService struct {
	repo *repository.WatchlistRepository
}

// NewWatchlistService creates a new WatchlistService
func NewWatchlistService(repo *repository.WatchlistRepository) *WatchlistService {
	return &WatchlistService{repo: repo}
}

// Add upserts a show into the collection. Upserting makes a repeated add
// (two devices racing on first watch) harmless.
func (s *WatchlistService) Add(ctx context.Context, userID string, item models.WatchingItem) error {
	if err := s.repo.Upsert(ctx, userID, item); err != nil {
		return fmt.Errorf("failed to add to currently watching: %w", err)
	}
	return nil
}

// Remove takes a show out of the collection.
func (s *WatchlistService) Remove(ctx context.Context, user auth.User, tvShowID int) error {
	if !user.CanWrite() {
		return ErrAuthRequired
	}
	return s.repo.Remove(ctx, user.ID, tvShowID)
}

// List returns the user's Currently Watching entries.
func (s *WatchlistService) List(ctx context.Context, userID string) ([]models.WatchingItem, error) {
	items, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.WatchingItem{}
	}
	return items, nil
}
