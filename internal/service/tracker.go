package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"watchlog/internal/auth"
	"watchlog/internal/models"
	"watchlog/internal/progress"
	"watchlog/internal/timeutil"
	"watchlog/internal/tmdb"
)

var (
	// ErrAuthRequired rejects any mutation attempted without a signed-in,
	// non-anonymous user. Checked before any store call.
	ErrAuthRequired = errors.New("authentication required")

	// ErrStoreTimeout marks a tracking-store operation that exceeded its
	// bound; distinguishable from other store failures so callers can offer
	// a retry.
	ErrStoreTimeout = errors.New("tracking store operation timed out")
)

// storeOpTimeout bounds every tracking-store operation.
const storeOpTimeout = 10 * time.Second

// EpisodeTracker is the episode progress engine: it maintains per-show
// watched-episode records, resolves the next episode to watch, and derives
// aggregate progress. All dependencies are injected.
type EpisodeTracker struct {
	store     TrackingStore
	metadata  MetadataProvider
	watchlist WatchlistAdder
}

// NewEpisodeTracker creates a new EpisodeTracker. watchlist may be nil, in
// which case the first-watch side effect is skipped.
func NewEpisodeTracker(store TrackingStore, metadata MetadataProvider, watchlist WatchlistAdder) *EpisodeTracker {
	return &EpisodeTracker{
		store:     store,
		metadata:  metadata,
		watchlist: watchlist,
	}
}

// MarkWatchedParams carries one mark-as-watched call: the episode, the show
// display data, and optionally cached catalog stats plus a precomputed
// next-episode value. The tracker persists Next exactly as given; it never
// computes it autonomously on this path.
type MarkWatchedParams struct {
	TVShowID       int
	Season         int
	Episode        int
	EpisodeID      int
	EpisodeName    string
	EpisodeAirDate string
	TVShowName     string
	PosterPath     string
	TotalEpisodes  *int
	AvgRuntime     *int
	Next           *models.NextEpisodeResult
}

// MarkWatched upserts one watched-episode entry and merge-updates the cached
// metadata. Marking an already-watched episode overwrites, never duplicates.
// When this is the show's first watched episode, the show is added to the
// Currently Watching collection best-effort: a failure there is logged and
// never rolls back the mark.
func (t *EpisodeTracker) MarkWatched(ctx context.Context, user auth.User, p MarkWatchedParams) error {
	if !user.CanWrite() {
		return ErrAuthRequired
	}

	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	// First-watch detection: was the watched set empty immediately before
	// this write. Two devices marking concurrently can both see an empty
	// set; the collection upsert makes the duplicate add harmless.
	existing, err := t.store.Get(opCtx, user.ID, p.TVShowID)
	if err != nil {
		return classifyStoreErr(err)
	}
	firstWatch := existing == nil || len(existing.Episodes) == 0

	now := timeutil.NowMillis()
	key := progress.EpisodeKey(p.Season, p.Episode)
	episodes := map[string]models.WatchedEpisode{
		key: {
			EpisodeID:      p.EpisodeID,
			TVShowID:       p.TVShowID,
			SeasonNumber:   p.Season,
			EpisodeNumber:  p.Episode,
			WatchedAt:      now,
			EpisodeName:    p.EpisodeName,
			EpisodeAirDate: p.EpisodeAirDate,
		},
	}
	patch := models.MetadataPatch{
		TVShowName:    p.TVShowName,
		PosterPath:    p.PosterPath,
		LastUpdated:   now,
		TotalEpisodes: p.TotalEpisodes,
		AvgRuntime:    p.AvgRuntime,
		Next:          p.Next,
	}

	if err := t.store.UpsertEpisodes(opCtx, user.ID, p.TVShowID, episodes, patch); err != nil {
		return classifyStoreErr(err)
	}

	if firstWatch && t.watchlist != nil {
		item := models.WatchingItem{
			TVShowID:   p.TVShowID,
			TVShowName: p.TVShowName,
			PosterPath: p.PosterPath,
			AddedAt:    now,
		}
		if err := t.watchlist.Add(ctx, user.ID, item); err != nil {
			log.Printf("failed to add show %d to currently watching for user %s: %v", p.TVShowID, user.ID, err)
		}
	}

	return nil
}

// MarkWatchedAndResolve fetches the episode's season and the show catalog,
// resolves the next episode, refreshes the cached catalog stats, and then
// marks the episode watched with the resolved value. This is the flow behind
// the HTTP mark endpoint.
func (t *EpisodeTracker) MarkWatchedAndResolve(ctx context.Context, user auth.User, p MarkWatchedParams) (models.NextEpisodeResult, error) {
	if !user.CanWrite() {
		return models.NextEpisodeResult{}, ErrAuthRequired
	}

	details, err := t.metadata.GetTVDetails(p.TVShowID)
	if err != nil {
		return models.NextEpisodeResult{}, fmt.Errorf("failed to fetch show catalog: %w", err)
	}
	seasonEpisodes, err := t.metadata.GetSeasonEpisodes(p.TVShowID, p.Season)
	if err != nil {
		return models.NextEpisodeResult{}, fmt.Errorf("failed to fetch season episodes: %w", err)
	}

	// Specials do not participate in next-episode resolution; marking one
	// leaves the stored value untouched.
	var next models.NextEpisodeResult
	if p.Season > 0 {
		next = progress.ResolveNextEpisode(p.Season, p.Episode, seasonEpisodes, details.Seasons, timeutil.Today())
		p.Next = &next
	} else {
		next = models.NextEpisodeResult{State: models.NextStateNotComputed}
	}

	if p.TVShowName == "" {
		p.TVShowName = details.Name
	}
	if p.PosterPath == "" {
		p.PosterPath = details.PosterPath
	}
	if p.TotalEpisodes == nil && details.NumberOfEpisodes > 0 {
		total := details.NumberOfEpisodes
		p.TotalEpisodes = &total
	}
	if p.AvgRuntime == nil {
		if avg := details.AvgRuntime(); avg > 0 {
			p.AvgRuntime = &avg
		}
	}
	if p.EpisodeName == "" || p.EpisodeAirDate == "" {
		for _, ep := range seasonEpisodes {
			if ep.EpisodeNumber == p.Episode {
				if p.EpisodeName == "" {
					p.EpisodeName = ep.Name
				}
				if p.EpisodeAirDate == "" {
					p.EpisodeAirDate = ep.AirDate
				}
				if p.EpisodeID == 0 {
					p.EpisodeID = ep.ID
				}
				break
			}
		}
	}

	if err := t.MarkWatched(ctx, user, p); err != nil {
		return models.NextEpisodeResult{}, err
	}
	return next, nil
}

// MarkUnwatched removes exactly one episode entry. Unmarking an episode that
// was never marked, or a show that was never tracked, succeeds as a no-op:
// the desired end state already holds.
func (t *EpisodeTracker) MarkUnwatched(ctx context.Context, user auth.User, tvShowID, season, episode int) error {
	if !user.CanWrite() {
		return ErrAuthRequired
	}

	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	if err := t.store.RemoveEpisode(opCtx, user.ID, tvShowID, progress.EpisodeKey(season, episode)); err != nil {
		return classifyStoreErr(err)
	}
	return nil
}

// MarkSeasonWatched marks every aired episode of one season watched in a
// single atomic merge write. All entries share one timestamp; downstream
// ordering ties break by episode number, not write order. The next episode
// is resolved from the season's last aired episode.
func (t *EpisodeTracker) MarkSeasonWatched(ctx context.Context, user auth.User, tvShowID, season int) (int, error) {
	if !user.CanWrite() {
		return 0, ErrAuthRequired
	}

	details, err := t.metadata.GetTVDetails(tvShowID)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch show catalog: %w", err)
	}
	seasonEpisodes, err := t.metadata.GetSeasonEpisodes(tvShowID, season)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch season episodes: %w", err)
	}

	today := timeutil.Today()
	aired := progress.AiredEpisodes(seasonEpisodes, today)
	if len(aired) == 0 {
		return 0, nil
	}

	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	existing, err := t.store.Get(opCtx, user.ID, tvShowID)
	if err != nil {
		return 0, classifyStoreErr(err)
	}
	firstWatch := existing == nil || len(existing.Episodes) == 0

	now := timeutil.NowMillis()
	episodes := make(map[string]models.WatchedEpisode, len(aired))
	for _, ep := range aired {
		episodes[progress.EpisodeKey(ep.SeasonNumber, ep.EpisodeNumber)] = models.WatchedEpisode{
			EpisodeID:      ep.ID,
			TVShowID:       tvShowID,
			SeasonNumber:   ep.SeasonNumber,
			EpisodeNumber:  ep.EpisodeNumber,
			WatchedAt:      now,
			EpisodeName:    ep.Name,
			EpisodeAirDate: ep.AirDate,
		}
	}

	last := aired[len(aired)-1]
	next := progress.ResolveNextEpisode(season, last.EpisodeNumber, seasonEpisodes, details.Seasons, today)

	patch := models.MetadataPatch{
		TVShowName:  details.Name,
		PosterPath:  details.PosterPath,
		LastUpdated: now,
		Next:        &next,
	}
	if details.NumberOfEpisodes > 0 {
		total := details.NumberOfEpisodes
		patch.TotalEpisodes = &total
	}
	if avg := details.AvgRuntime(); avg > 0 {
		patch.AvgRuntime = &avg
	}

	if err := t.store.UpsertEpisodes(opCtx, user.ID, tvShowID, episodes, patch); err != nil {
		return 0, classifyStoreErr(err)
	}

	if firstWatch && t.watchlist != nil {
		item := models.WatchingItem{
			TVShowID:   tvShowID,
			TVShowName: details.Name,
			PosterPath: details.PosterPath,
			AddedAt:    now,
		}
		if err := t.watchlist.Add(ctx, user.ID, item); err != nil {
			log.Printf("failed to add show %d to currently watching for user %s: %v", tvShowID, user.ID, err)
		}
	}

	return len(aired), nil
}

// ClearAll deletes the entire tracking record for a show: one atomic delete,
// presented to the caller as a complete reset of the show's progress.
func (t *EpisodeTracker) ClearAll(ctx context.Context, user auth.User, tvShowID int) error {
	if !user.CanWrite() {
		return ErrAuthRequired
	}

	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	if err := t.store.DeleteRecord(opCtx, user.ID, tvShowID); err != nil {
		return classifyStoreErr(err)
	}
	return nil
}

// GetTracking loads the raw tracking record; nil when the show was never
// tracked.
func (t *EpisodeTracker) GetTracking(ctx context.Context, userID string, tvShowID int) (*models.ShowTracking, error) {
	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	rec, err := t.store.Get(opCtx, userID, tvShowID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	return rec, nil
}

// ShowProgress recomputes season-by-season progress from the live catalog.
// This is the accurate, catalog-backed counterpart to the cache-only
// WatchProgressItems projection.
func (t *EpisodeTracker) ShowProgress(ctx context.Context, userID string, tvShowID int) (*models.ShowProgress, error) {
	details, err := t.metadata.GetTVDetails(tvShowID)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch show catalog: %w", err)
	}

	var all []tmdb.EpisodeInfo
	for _, s := range details.Seasons {
		if s.SeasonNumber <= 0 {
			continue
		}
		eps, err := t.metadata.GetSeasonEpisodes(tvShowID, s.SeasonNumber)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch season %d episodes: %w", s.SeasonNumber, err)
		}
		all = append(all, eps...)
	}

	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	rec, err := t.store.Get(opCtx, userID, tvShowID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}
	watched := map[string]models.WatchedEpisode{}
	if rec != nil {
		watched = rec.Episodes
	}

	result := progress.CalculateShowProgress(all, watched, timeutil.Today())
	return &result, nil
}

// WatchProgressItems builds the dashboard list for every tracked show from
// cached metadata alone; no catalog call per show.
func (t *EpisodeTracker) WatchProgressItems(ctx context.Context, userID string) ([]models.WatchProgressItem, error) {
	opCtx, cancel := context.WithTimeout(ctx, storeOpTimeout)
	defer cancel()

	records, err := t.store.ListAll(opCtx, userID)
	if err != nil {
		return nil, classifyStoreErr(err)
	}

	items := make([]models.WatchProgressItem, 0, len(records))
	for _, rec := range records {
		items = append(items, progress.ProjectWatchProgress(rec))
	}
	return items, nil
}

// Watch opens a push subscription on a show's tracking record. The cancel
// func must be called on teardown.
func (t *EpisodeTracker) Watch(userID string, tvShowID int) (<-chan *models.ShowTracking, func()) {
	return t.store.Subscribe(userID, tvShowID)
}

// classifyStoreErr maps a deadline hit to ErrStoreTimeout and propagates
// everything else with the store's message intact.
func classifyStoreErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrStoreTimeout, err)
	}
	return err
}
