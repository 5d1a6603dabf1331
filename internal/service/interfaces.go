package service

import (
	"context"

	"watchlog/internal/models"
	"watchlog/internal/tmdb"
)

// TrackingStore is the per-user, per-show document store consumed by the
// episode tracker. Implemented by repository.TrackingRepository; tests
// substitute fakes.
type TrackingStore interface {
	Get(ctx context.Context, userID string, tvShowID int) (*models.ShowTracking, error)
	UpsertEpisodes(ctx context.Context, userID string, tvShowID int, episodes map[string]models.WatchedEpisode, patch models.MetadataPatch) error
	RemoveEpisode(ctx context.Context, userID string, tvShowID int, key string) error
	DeleteRecord(ctx context.Context, userID string, tvShowID int) error
	ListAll(ctx context.Context, userID string) ([]models.ShowTracking, error)
	Subscribe(userID string, tvShowID int) (<-chan *models.ShowTracking, func())
}

// MetadataProvider supplies show and season catalogs, read-only.
type MetadataProvider interface {
	GetTVDetails(tvShowID int) (*tmdb.TVDetails, error)
	GetSeasonEpisodes(tvShowID, seasonNumber int) ([]tmdb.EpisodeInfo, error)
}

// WatchlistAdder receives the best-effort "add to Currently Watching" side
// effect on a show's first watched episode.
type WatchlistAdder interface {
	Add(ctx context.Context, userID string, item models.WatchingItem) error
}

// ReportSender defines capability to send daily reports.
type ReportSender interface {
	SendDailyReport() error
}
