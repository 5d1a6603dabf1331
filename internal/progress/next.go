package progress

import (
	"fmt"
	"time"

	"watchlog/internal/models"
	"watchlog/internal/tmdb"
)

// ResolveNextEpisode determines what a user should watch after the episode
// they just marked. seasonEpisodes is the full catalog listing of the current
// season; seasons is the show's season list.
//
// Resolution walks the current season's aired subset by position, not by
// episode-number arithmetic, so non-contiguous numbering advances correctly.
// When the season is exhausted it advances to episode 1 of the numerically
// lowest later regular season; a later season qualifies as soon as it exists
// in the catalog, whether or not it has aired. When neither yields a
// candidate the result is NextStateNone: the user is caught up, which is
// distinct from never having computed a next episode at all.
func ResolveNextEpisode(currentSeason, currentEpisode int, seasonEpisodes []tmdb.EpisodeInfo, seasons []tmdb.SeasonInfo, today time.Time) models.NextEpisodeResult {
	aired := AiredEpisodes(seasonEpisodes, today)

	idx := -1
	for i, ep := range aired {
		if ep.EpisodeNumber == currentEpisode {
			idx = i
			break
		}
	}
	if idx >= 0 && idx+1 < len(aired) {
		next := aired[idx+1]
		return models.NextEpisodeResult{
			State: models.NextStateKnown,
			Next: &models.NextEpisode{
				Season:  currentSeason,
				Episode: next.EpisodeNumber,
				Title:   next.Name,
				AirDate: next.AirDate,
			},
		}
	}

	if s, ok := nextSeason(currentSeason, seasons); ok {
		title := s.Name
		if title == "" {
			title = fmt.Sprintf("Season %d", s.SeasonNumber)
		}
		return models.NextEpisodeResult{
			State: models.NextStateKnown,
			Next: &models.NextEpisode{
				Season:  s.SeasonNumber,
				Episode: 1,
				Title:   fmt.Sprintf("%s Episode 1", title),
				AirDate: s.AirDate,
			},
		}
	}

	return models.NextEpisodeResult{State: models.NextStateNone}
}

// nextSeason finds the numerically lowest regular season strictly after the
// current one.
func nextSeason(current int, seasons []tmdb.SeasonInfo) (tmdb.SeasonInfo, bool) {
	var best tmdb.SeasonInfo
	found := false
	for _, s := range seasons {
		if s.SeasonNumber <= 0 || s.SeasonNumber <= current {
			continue
		}
		if !found || s.SeasonNumber < best.SeasonNumber {
			best = s
			found = true
		}
	}
	return best, found
}
