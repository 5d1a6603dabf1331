package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"sort"
	"sync"

	"watchlog/internal/models"
	"watchlog/internal/progress"
	"watchlog/internal/timeutil"
)

// TrackingRepository is the tracking store: one logical document per
// (user, show), holding the watched-episode map and its cached metadata.
// Both live in SQLite but every mutation touches them inside one transaction,
// so a reader or subscriber never observes an episode change without the
// matching metadata update.
//
// The repository also carries the store's push-notification channel: each
// committed mutation re-reads the record and fans it out to subscribers.
type TrackingRepository struct {
	db *sql.DB

	mu   sync.Mutex
	subs map[subKey][]*subscriber
}

type subKey struct {
	userID   string
	tvShowID int
}

type subscriber struct {
	ch     chan *models.ShowTracking
	mu     sync.Mutex
	closed bool
}

// NewTrackingRepository creates a new TrackingRepository
func NewTrackingRepository(sqliteDB *SQLiteDB) *TrackingRepository {
	return &TrackingRepository{
		db:   sqliteDB.db,
		subs: make(map[subKey][]*subscriber),
	}
}

// Get loads the tracking record for a (user, show) pair. A missing record is
// (nil, nil): the store treats "no document" as an empty state, not an error.
func (r *TrackingRepository) Get(ctx context.Context, userID string, tvShowID int) (*models.ShowTracking, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT tvshow_name, poster_path, last_updated, total_episodes, avg_runtime,
		       next_state, next_season, next_episode, next_title, next_air_date
		FROM show_tracking WHERE user_id = ? AND tvshow_id = ?
	`, userID, tvShowID)

	rec := &models.ShowTracking{
		TVShowID: tvShowID,
		Episodes: make(map[string]models.WatchedEpisode),
	}

	var totalEpisodes, avgRuntime sql.NullInt64
	var nextState string
	var nextSeason, nextEpisode sql.NullInt64
	var nextTitle, nextAirDate sql.NullString

	err := row.Scan(
		&rec.Metadata.TVShowName, &rec.Metadata.PosterPath, &rec.Metadata.LastUpdated,
		&totalEpisodes, &avgRuntime,
		&nextState, &nextSeason, &nextEpisode, &nextTitle, &nextAirDate,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load tracking record: %w", err)
	}

	if totalEpisodes.Valid {
		v := int(totalEpisodes.Int64)
		rec.Metadata.TotalEpisodes = &v
	}
	if avgRuntime.Valid {
		v := int(avgRuntime.Int64)
		rec.Metadata.AvgRuntime = &v
	}
	rec.Metadata.Next = decodeNext(nextState, nextSeason, nextEpisode, nextTitle, nextAirDate)

	if err := r.loadEpisodes(ctx, userID, tvShowID, rec.Episodes); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *TrackingRepository) loadEpisodes(ctx context.Context, userID string, tvShowID int, dst map[string]models.WatchedEpisode) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT season, episode, episode_id, episode_name, episode_air_date, watched_at
		FROM watched_episodes WHERE user_id = ? AND tvshow_id = ?
	`, userID, tvShowID)
	if err != nil {
		return fmt.Errorf("failed to load watched episodes: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var ep models.WatchedEpisode
		var airDate sql.NullString
		if err := rows.Scan(&ep.SeasonNumber, &ep.EpisodeNumber, &ep.EpisodeID, &ep.EpisodeName, &airDate, &ep.WatchedAt); err != nil {
			return fmt.Errorf("failed to scan watched episode: %w", err)
		}
		if airDate.Valid {
			ep.EpisodeAirDate = airDate.String
		}
		ep.TVShowID = tvShowID
		dst[progress.EpisodeKey(ep.SeasonNumber, ep.EpisodeNumber)] = ep
	}
	return rows.Err()
}

// UpsertEpisodes writes the given watched-episode entries and applies the
// metadata patch as a single atomic merge. Marking an already-watched episode
// overwrites its timestamp and display fields, never duplicates. The record
// is implicitly created on first write.
func (r *TrackingRepository) UpsertEpisodes(ctx context.Context, userID string, tvShowID int, episodes map[string]models.WatchedEpisode, patch models.MetadataPatch) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO show_tracking (user_id, tvshow_id, tvshow_name, poster_path, last_updated)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id, tvshow_id) DO UPDATE SET
			tvshow_name = excluded.tvshow_name,
			poster_path = excluded.poster_path,
			last_updated = excluded.last_updated
	`, userID, tvShowID, patch.TVShowName, patch.PosterPath, patch.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to upsert tracking metadata: %w", err)
	}

	// Optional patch fields merge: absent fields keep their stored value.
	if patch.TotalEpisodes != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE show_tracking SET total_episodes = ? WHERE user_id = ? AND tvshow_id = ?
		`, *patch.TotalEpisodes, userID, tvShowID); err != nil {
			return fmt.Errorf("failed to update cached episode total: %w", err)
		}
	}
	if patch.AvgRuntime != nil {
		if _, err := tx.ExecContext(ctx, `
			UPDATE show_tracking SET avg_runtime = ? WHERE user_id = ? AND tvshow_id = ?
		`, *patch.AvgRuntime, userID, tvShowID); err != nil {
			return fmt.Errorf("failed to update cached runtime: %w", err)
		}
	}
	if patch.Next != nil {
		state, season, episode, title, airDate := encodeNext(*patch.Next)
		if _, err := tx.ExecContext(ctx, `
			UPDATE show_tracking
			SET next_state = ?, next_season = ?, next_episode = ?, next_title = ?, next_air_date = ?
			WHERE user_id = ? AND tvshow_id = ?
		`, state, season, episode, title, airDate, userID, tvShowID); err != nil {
			return fmt.Errorf("failed to update next episode: %w", err)
		}
	}

	for _, ep := range episodes {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO watched_episodes (user_id, tvshow_id, season, episode, episode_id, episode_name, episode_air_date, watched_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, tvshow_id, season, episode) DO UPDATE SET
				episode_id = excluded.episode_id,
				episode_name = excluded.episode_name,
				episode_air_date = excluded.episode_air_date,
				watched_at = excluded.watched_at
		`, userID, tvShowID, ep.SeasonNumber, ep.EpisodeNumber, ep.EpisodeID, ep.EpisodeName, nullableString(ep.EpisodeAirDate), ep.WatchedAt)
		if err != nil {
			return fmt.Errorf("failed to upsert watched episode: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.notify(ctx, userID, tvShowID)
	return nil
}

// RemoveEpisode deletes one episode entry and bumps last_updated. It is a
// no-op success when the record or the entry does not exist: the caller's
// desired end state already holds. Malformed keys are treated as absent.
func (r *TrackingRepository) RemoveEpisode(ctx context.Context, userID string, tvShowID int, key string) error {
	season, episode, ok := progress.ParseEpisodeKey(key)
	if !ok {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM watched_episodes
		WHERE user_id = ? AND tvshow_id = ? AND season = ? AND episode = ?
	`, userID, tvShowID, season, episode); err != nil {
		return fmt.Errorf("failed to remove watched episode: %w", err)
	}

	// A record that does not exist stays nonexistent; UPDATE matching zero
	// rows is exactly the no-op we want.
	if _, err := tx.ExecContext(ctx, `
		UPDATE show_tracking SET last_updated = ? WHERE user_id = ? AND tvshow_id = ?
	`, timeutil.NowMillis(), userID, tvShowID); err != nil {
		return fmt.Errorf("failed to update tracking timestamp: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.notify(ctx, userID, tvShowID)
	return nil
}

// DeleteRecord removes the entire tracking record for a (user, show) pair in
// one operation: every watched episode plus the metadata.
func (r *TrackingRepository) DeleteRecord(ctx context.Context, userID string, tvShowID int) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM watched_episodes WHERE user_id = ? AND tvshow_id = ?
	`, userID, tvShowID); err != nil {
		return fmt.Errorf("failed to delete watched episodes: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		DELETE FROM show_tracking WHERE user_id = ? AND tvshow_id = ?
	`, userID, tvShowID); err != nil {
		return fmt.Errorf("failed to delete tracking record: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.notify(ctx, userID, tvShowID)
	return nil
}

// ListAll returns every tracking record for a user, most recently updated
// first. Used by the dashboard projection and bulk views.
func (r *TrackingRepository) ListAll(ctx context.Context, userID string) ([]models.ShowTracking, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT tvshow_id FROM show_tracking WHERE user_id = ? ORDER BY last_updated DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tracking records: %w", err)
	}

	var ids []int
	for rows.Next() {
		var id int
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan tracking record: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	records := make([]models.ShowTracking, 0, len(ids))
	for _, id := range ids {
		rec, err := r.Get(ctx, userID, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// Subscribe registers a push subscription for a (user, show) record. The
// current snapshot (nil when no record exists) is delivered first, then the
// full updated record after every committed mutation. Delivery is
// latest-wins: a slow consumer only ever misses intermediate states, never
// the newest one. The returned cancel func closes the channel; call it on
// teardown or the notification channel leaks.
func (r *TrackingRepository) Subscribe(userID string, tvShowID int) (<-chan *models.ShowTracking, func()) {
	sub := &subscriber{ch: make(chan *models.ShowTracking, 1)}
	key := subKey{userID: userID, tvShowID: tvShowID}

	r.mu.Lock()
	r.subs[key] = append(r.subs[key], sub)
	r.mu.Unlock()

	// Initial snapshot so a new subscriber does not have to wait for the
	// next mutation.
	rec, err := r.Get(context.Background(), userID, tvShowID)
	if err != nil {
		log.Printf("tracking subscribe: failed to load initial snapshot for show %d: %v", tvShowID, err)
	} else {
		sub.push(rec)
	}

	cancel := func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		list := r.subs[key]
		for i, s := range list {
			if s == sub {
				r.subs[key] = append(list[:i], list[i+1:]...)
				sub.mu.Lock()
				sub.closed = true
				close(sub.ch)
				sub.mu.Unlock()
				return
			}
		}
	}
	return sub.ch, cancel
}

// notify re-reads the record after a committed mutation and fans it out.
func (r *TrackingRepository) notify(ctx context.Context, userID string, tvShowID int) {
	key := subKey{userID: userID, tvShowID: tvShowID}

	r.mu.Lock()
	subs := append([]*subscriber(nil), r.subs[key]...)
	r.mu.Unlock()

	if len(subs) == 0 {
		return
	}

	rec, err := r.Get(ctx, userID, tvShowID)
	if err != nil {
		log.Printf("tracking notify: failed to load record for show %d: %v", tvShowID, err)
		return
	}
	for _, sub := range subs {
		sub.push(rec)
	}
}

// push delivers latest-wins: if the subscriber never drained the previous
// value it is dropped in favour of the new one. Cancelled subscribers are
// skipped so a concurrent unsubscribe never races a send on a closed channel.
func (s *subscriber) push(rec *models.ShowTracking) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- rec:
			return
		default:
			select {
			case <-s.ch:
			default:
			}
		}
	}
}

// decodeNext rebuilds the tagged tri-state next-episode value from its
// columns. Unknown states decode as not computed rather than failing.
func decodeNext(state string, season, episode sql.NullInt64, title, airDate sql.NullString) models.NextEpisodeResult {
	switch models.NextEpisodeState(state) {
	case models.NextStateNone:
		return models.NextEpisodeResult{State: models.NextStateNone}
	case models.NextStateKnown:
		next := &models.NextEpisode{
			Season:  int(season.Int64),
			Episode: int(episode.Int64),
		}
		if title.Valid {
			next.Title = title.String
		}
		if airDate.Valid {
			next.AirDate = airDate.String
		}
		return models.NextEpisodeResult{State: models.NextStateKnown, Next: next}
	default:
		return models.NextEpisodeResult{State: models.NextStateNotComputed}
	}
}

// encodeNext flattens a next-episode value into its columns.
func encodeNext(next models.NextEpisodeResult) (state string, season, episode interface{}, title, airDate interface{}) {
	if next.State == models.NextStateKnown && next.Next != nil {
		return string(models.NextStateKnown), next.Next.Season, next.Next.Episode, next.Next.Title, nullableString(next.Next.AirDate)
	}
	if next.State == models.NextStateNone {
		return string(models.NextStateNone), nil, nil, nil, nil
	}
	return string(models.NextStateNotComputed), nil, nil, nil, nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// Sorted episode keys, used by tests and export views for stable iteration.
func SortedEpisodeKeys(episodes map[string]models.WatchedEpisode) []string {
	keys := make([]string, 0, len(episodes))
	for k := range episodes {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		si, ei, _ := progress.ParseEpisodeKey(keys[i])
		sj, ej, _ := progress.ParseEpisodeKey(keys[j])
		if si != sj {
			return si < sj
		}
		return ei < ej
	})
	return keys
}
