package models

// NextEpisodeState tags the three possible states of a stored next-episode
// value. A record that has never been through next-episode resolution carries
// NextStateNotComputed; a resolved "user is caught up" carries NextStateNone.
// The two must never collapse into each other on the way through storage.
type NextEpisodeState string

const (
	NextStateNotComputed NextEpisodeState = "not_computed"
	NextStateNone        NextEpisodeState = "none"
	NextStateKnown       NextEpisodeState = "known"
)

// NextEpisode identifies the next episode a user should watch.
type NextEpisode struct {
	Season  int    `json:"season"`
	Episode int    `json:"episode"`
	Title   string `json:"title"`
	AirDate string `json:"air_date"`
}

// NextEpisodeResult is the tagged tri-state next-episode value.
// Next is non-nil only when State is NextStateKnown.
type NextEpisodeResult struct {
	State NextEpisodeState `json:"state"`
	Next  *NextEpisode     `json:"next,omitempty"`
}

// WatchedEpisode is one watched instance of one episode. Within a show it is
// uniquely keyed by (season, episode); marking again overwrites.
type WatchedEpisode struct {
	EpisodeID      int    `json:"episode_id"`
	TVShowID       int    `json:"tvshow_id"`
	SeasonNumber   int    `json:"season_number"`
	EpisodeNumber  int    `json:"episode_number"`
	WatchedAt      int64  `json:"watched_at"` // epoch milliseconds
	EpisodeName    string `json:"episode_name"`
	EpisodeAirDate string `json:"episode_air_date"` // YYYY-MM-DD, empty when unknown
}

// TrackingMetadata is the cached aggregate data for a show, refreshed on every
// mutation. TotalEpisodes and AvgRuntime stay nil until a mark-watched call
// supplies catalog stats.
type TrackingMetadata struct {
	TVShowName    string            `json:"tvshow_name"`
	PosterPath    string            `json:"poster_path"`
	LastUpdated   int64             `json:"last_updated"` // epoch milliseconds
	TotalEpisodes *int              `json:"total_episodes,omitempty"`
	AvgRuntime    *int              `json:"avg_runtime,omitempty"` // minutes
	Next          NextEpisodeResult `json:"next_episode"`
}

// ShowTracking is the persisted unit: one record per (user, show).
type ShowTracking struct {
	TVShowID int                       `json:"tvshow_id"`
	Episodes map[string]WatchedEpisode `json:"episodes"`
	Metadata TrackingMetadata          `json:"metadata"`
}

// MetadataPatch is a merge update applied to TrackingMetadata alongside an
// episode upsert. Nil optional fields leave the stored value untouched.
type MetadataPatch struct {
	TVShowName    string
	PosterPath    string
	LastUpdated   int64
	TotalEpisodes *int
	AvgRuntime    *int
	Next          *NextEpisodeResult
}

// SeasonProgress is derived per season, never persisted.
type SeasonProgress struct {
	SeasonNumber    int     `json:"season_number"`
	WatchedCount    int     `json:"watched_count"`
	TotalCount      int     `json:"total_count"`
	TotalAiredCount int     `json:"total_aired_count"`
	Percentage      float64 `json:"percentage"`
}

// ShowProgress aggregates season progress across all regular seasons
// (specials excluded), derived from live catalog data.
type ShowProgress struct {
	TotalWatched       int              `json:"total_watched"`
	TotalEpisodes      int              `json:"total_episodes"`
	TotalAiredEpisodes int              `json:"total_aired_episodes"`
	Percentage         float64          `json:"percentage"`
	SeasonProgress     []SeasonProgress `json:"season_progress"`
}

// WatchProgressItem is the dashboard projection of a ShowTracking record.
// It is computed from the record and its cached metadata only; no catalog
// call is made, so TotalEpisodes and AvgRuntime may be stale until the next
// mark-watched refreshes the cache.
type WatchProgressItem struct {
	TVShowID           int              `json:"tvshow_id"`
	TVShowName         string           `json:"tvshow_name"`
	PosterPath         string           `json:"poster_path"`
	Percentage         float64          `json:"percentage"`
	TimeRemaining      int              `json:"time_remaining"` // minutes
	LastWatchedEpisode *WatchedEpisode  `json:"last_watched_episode,omitempty"`
	NextEpisodeState   NextEpisodeState `json:"next_episode_state"`
	NextEpisode        *NextEpisode     `json:"next_episode,omitempty"`
	WatchedCount       int              `json:"watched_count"`
	TotalEpisodes      int              `json:"total_episodes"`
	AvgRuntime         int              `json:"avg_runtime"`
}

// WatchingItem is one entry in the Currently Watching collection.
type WatchingItem struct {
	TVShowID   int    `json:"tvshow_id"`
	TVShowName string `json:"tvshow_name"`
	PosterPath string `json:"poster_path"`
	AddedAt    int64  `json:"added_at"` // epoch milliseconds
}
