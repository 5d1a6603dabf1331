// Package progress holds the pure watch-progress computations: aired-episode
// filtering, season/show aggregation, next-episode resolution, and the
// cache-only dashboard projection. Nothing in this package performs I/O.
package progress

import (
	"sort"
	"time"

	"watchlog/internal/models"
	"watchlog/internal/tmdb"
)

// DefaultEpisodeRuntime is the fallback runtime in minutes used by the
// dashboard projection when no catalog stats have been cached yet.
const DefaultEpisodeRuntime = 45

// IsAired reports whether an episode with the given air date has aired on or
// before today. Comparison is date-level: an episode airing today counts.
// Episodes with no air date never count as aired.
func IsAired(airDate string, today time.Time) bool {
	if airDate == "" {
		return false
	}
	d, err := time.Parse("2006-01-02", airDate)
	if err != nil {
		return false
	}
	return !d.After(today)
}

// AiredEpisodes returns the subset of episodes that have aired, ordered by
// episode number.
func AiredEpisodes(episodes []tmdb.EpisodeInfo, today time.Time) []tmdb.EpisodeInfo {
	aired := make([]tmdb.EpisodeInfo, 0, len(episodes))
	for _, ep := range episodes {
		if IsAired(ep.AirDate, today) {
			aired = append(aired, ep)
		}
	}
	sort.Slice(aired, func(i, j int) bool {
		return aired[i].EpisodeNumber < aired[j].EpisodeNumber
	})
	return aired
}

// CalculateSeasonProgress computes watched/aired counts for one season from
// its full catalog episode list and the show's watched-episode map.
// Percentage is measured against aired episodes only and guards the
// zero-aired case to 0 rather than dividing by zero.
func CalculateSeasonProgress(seasonNumber int, episodes []tmdb.EpisodeInfo, watched map[string]models.WatchedEpisode, today time.Time) models.SeasonProgress {
	sp := models.SeasonProgress{SeasonNumber: seasonNumber}
	for _, ep := range episodes {
		if ep.SeasonNumber != seasonNumber {
			continue
		}
		sp.TotalCount++
		if IsAired(ep.AirDate, today) {
			sp.TotalAiredCount++
		}
		if _, ok := watched[EpisodeKey(ep.SeasonNumber, ep.EpisodeNumber)]; ok {
			sp.WatchedCount++
		}
	}
	if sp.TotalAiredCount > 0 {
		sp.Percentage = float64(sp.WatchedCount) / float64(sp.TotalAiredCount) * 100
	}
	return sp
}

// CalculateShowProgress aggregates progress across every regular season of a
// show. Season 0 (specials) is excluded from all counts; its episodes never
// contribute to totals or percentages even when marked watched.
func CalculateShowProgress(episodes []tmdb.EpisodeInfo, watched map[string]models.WatchedEpisode, today time.Time) models.ShowProgress {
	seasons := make(map[int][]tmdb.EpisodeInfo)
	for _, ep := range episodes {
		if ep.SeasonNumber <= 0 {
			continue
		}
		seasons[ep.SeasonNumber] = append(seasons[ep.SeasonNumber], ep)
	}

	numbers := make([]int, 0, len(seasons))
	for n := range seasons {
		numbers = append(numbers, n)
	}
	sort.Ints(numbers)

	result := models.ShowProgress{SeasonProgress: make([]models.SeasonProgress, 0, len(numbers))}
	for _, n := range numbers {
		sp := CalculateSeasonProgress(n, seasons[n], watched, today)
		result.TotalWatched += sp.WatchedCount
		result.TotalEpisodes += sp.TotalCount
		result.TotalAiredEpisodes += sp.TotalAiredCount
		result.SeasonProgress = append(result.SeasonProgress, sp)
	}
	if result.TotalAiredEpisodes > 0 {
		result.Percentage = float64(result.TotalWatched) / float64(result.TotalAiredEpisodes) * 100
	}
	return result
}

// ProjectWatchProgress builds the dashboard item for one tracking record from
// the record alone. Catalog stats come from the metadata cached at the most
// recent mark-watched call; when absent, totals fall back to zero and runtime
// to DefaultEpisodeRuntime. Staleness self-heals on the next mark.
func ProjectWatchProgress(rec models.ShowTracking) models.WatchProgressItem {
	item := models.WatchProgressItem{
		TVShowID:         rec.TVShowID,
		TVShowName:       rec.Metadata.TVShowName,
		PosterPath:       rec.Metadata.PosterPath,
		NextEpisodeState: rec.Metadata.Next.State,
		NextEpisode:      rec.Metadata.Next.Next,
		AvgRuntime:       DefaultEpisodeRuntime,
	}
	if item.NextEpisodeState == "" {
		item.NextEpisodeState = models.NextStateNotComputed
	}
	if rec.Metadata.TotalEpisodes != nil {
		item.TotalEpisodes = *rec.Metadata.TotalEpisodes
	}
	if rec.Metadata.AvgRuntime != nil && *rec.Metadata.AvgRuntime > 0 {
		item.AvgRuntime = *rec.Metadata.AvgRuntime
	}

	var last *models.WatchedEpisode
	for key, ep := range rec.Episodes {
		season, _, ok := ParseEpisodeKey(key)
		if !ok || season == 0 {
			// malformed keys and specials are invisible to aggregates
			continue
		}
		item.WatchedCount++
		ep := ep
		if last == nil || laterWatched(ep, *last) {
			last = &ep
		}
	}
	item.LastWatchedEpisode = last

	if item.TotalEpisodes > 0 {
		item.Percentage = float64(item.WatchedCount) / float64(item.TotalEpisodes) * 100
		if item.Percentage > 100 {
			item.Percentage = 100
		}
	}
	remaining := item.TotalEpisodes - item.WatchedCount
	if remaining < 0 {
		remaining = 0
	}
	item.TimeRemaining = remaining * item.AvgRuntime
	return item
}

// laterWatched orders watched episodes by timestamp, breaking the equal
// timestamps a bulk mark produces by season then episode number.
func laterWatched(a, b models.WatchedEpisode) bool {
	if a.WatchedAt != b.WatchedAt {
		return a.WatchedAt > b.WatchedAt
	}
	if a.SeasonNumber != b.SeasonNumber {
		return a.SeasonNumber > b.SeasonNumber
	}
	return a.EpisodeNumber > b.EpisodeNumber
}
