package progress

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchlog/internal/models"
	"watchlog/internal/tmdb"
)

func season(number, episodeCount int, name, airDate string) tmdb.SeasonInfo {
	return tmdb.SeasonInfo{
		SeasonNumber: number,
		EpisodeCount: episodeCount,
		Name:         name,
		AirDate:      airDate,
	}
}

func TestResolveNextEpisodeWithinSeason(t *testing.T) {
	eps := []tmdb.EpisodeInfo{
		episode(1, 1, "2026-01-01"),
		episode(1, 2, "2026-01-08"),
		episode(1, 3, "2026-01-15"),
	}
	seasons := []tmdb.SeasonInfo{season(1, 3, "Season 1", "2026-01-01")}

	result := ResolveNextEpisode(1, 1, eps, seasons, testToday)

	require.Equal(t, models.NextStateKnown, result.State)
	require.NotNil(t, result.Next)
	assert.Equal(t, 1, result.Next.Season)
	assert.Equal(t, 2, result.Next.Episode)
}

func TestResolveNextEpisodeNonContiguousNumbering(t *testing.T) {
	// Advancement is positional: after episode 2 comes episode 5 when the
	// catalog skips numbers.
	eps := []tmdb.EpisodeInfo{
		episode(1, 1, "2026-01-01"),
		episode(1, 2, "2026-01-08"),
		episode(1, 5, "2026-01-15"),
	}
	seasons := []tmdb.SeasonInfo{season(1, 3, "Season 1", "2026-01-01")}

	result := ResolveNextEpisode(1, 2, eps, seasons, testToday)

	require.Equal(t, models.NextStateKnown, result.State)
	assert.Equal(t, 5, result.Next.Episode)
}

func TestResolveNextEpisodeSkipsUnaired(t *testing.T) {
	eps := []tmdb.EpisodeInfo{
		episode(1, 1, "2026-01-01"),
		episode(1, 2, "2027-06-01"), // not yet aired
	}
	seasons := []tmdb.SeasonInfo{season(1, 2, "Season 1", "2026-01-01")}

	result := ResolveNextEpisode(1, 1, eps, seasons, testToday)

	// Episode 2 has not aired and no later season exists: caught up.
	assert.Equal(t, models.NextStateNone, result.State)
	assert.Nil(t, result.Next)
}

func TestResolveNextEpisodeAcrossSeasonBoundary(t *testing.T) {
	var eps []tmdb.EpisodeInfo
	for i := 1; i <= 10; i++ {
		eps = append(eps, episode(1, i, "2026-01-01"))
	}
	seasons := []tmdb.SeasonInfo{
		season(1, 10, "Season 1", "2026-01-01"),
		season(2, 10, "Season 2", "2026-09-15"),
	}

	result := ResolveNextEpisode(1, 10, eps, seasons, testToday)

	require.Equal(t, models.NextStateKnown, result.State)
	require.NotNil(t, result.Next)
	assert.Equal(t, 2, result.Next.Season)
	assert.Equal(t, 1, result.Next.Episode)
	assert.Equal(t, "Season 2 Episode 1", result.Next.Title)
	assert.Equal(t, "2026-09-15", result.Next.AirDate)
}

func TestResolveNextEpisodeSeasonAdvanceIgnoresAirStatus(t *testing.T) {
	// A later season qualifies as soon as it exists in the catalog, even
	// with no air date yet.
	eps := []tmdb.EpisodeInfo{episode(1, 1, "2026-01-01")}
	seasons := []tmdb.SeasonInfo{
		season(1, 1, "Season 1", "2026-01-01"),
		season(2, 8, "", ""),
	}

	result := ResolveNextEpisode(1, 1, eps, seasons, testToday)

	require.Equal(t, models.NextStateKnown, result.State)
	assert.Equal(t, 2, result.Next.Season)
	assert.Equal(t, "Season 2 Episode 1", result.Next.Title)
	assert.Equal(t, "", result.Next.AirDate)
}

func TestResolveNextEpisodeSkipsSpecialsSeason(t *testing.T) {
	eps := []tmdb.EpisodeInfo{episode(3, 1, "2026-01-01")}
	seasons := []tmdb.SeasonInfo{
		season(0, 5, "Specials", "2020-01-01"),
		season(3, 1, "Season 3", "2026-01-01"),
	}

	result := ResolveNextEpisode(3, 1, eps, seasons, testToday)

	assert.Equal(t, models.NextStateNone, result.State)
}

func TestResolveNextEpisodePicksLowestLaterSeason(t *testing.T) {
	eps := []tmdb.EpisodeInfo{episode(1, 1, "2026-01-01")}
	seasons := []tmdb.SeasonInfo{
		season(1, 1, "Season 1", "2026-01-01"),
		season(4, 10, "Season 4", "2026-05-01"),
		season(2, 10, "Season 2", "2026-03-01"),
	}

	result := ResolveNextEpisode(1, 1, eps, seasons, testToday)

	require.Equal(t, models.NextStateKnown, result.State)
	assert.Equal(t, 2, result.Next.Season)
}

func TestResolveNextEpisodeCaughtUpTerminal(t *testing.T) {
	eps := []tmdb.EpisodeInfo{
		episode(2, 1, "2026-01-01"),
		episode(2, 2, "2026-01-08"),
	}
	seasons := []tmdb.SeasonInfo{
		season(1, 10, "Season 1", "2025-01-01"),
		season(2, 2, "Season 2", "2026-01-01"),
	}

	result := ResolveNextEpisode(2, 2, eps, seasons, testToday)

	assert.Equal(t, models.NextStateNone, result.State)
	assert.Nil(t, result.Next)
}

// For any fully aired season and any non-final position in it, resolution
// advances to the episode at the next position.
func TestResolveNextEpisodePositionalAdvance(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("next episode is the following aired position", prop.ForAll(
		func(episodeCount, position int) bool {
			if position >= episodeCount {
				return true
			}
			var eps []tmdb.EpisodeInfo
			for i := 1; i <= episodeCount; i++ {
				eps = append(eps, tmdb.EpisodeInfo{
					SeasonNumber:  1,
					EpisodeNumber: i,
					Name:          fmt.Sprintf("Episode %d", i),
					AirDate:       "2026-01-01",
				})
			}
			seasons := []tmdb.SeasonInfo{season(1, episodeCount, "Season 1", "2026-01-01")}

			result := ResolveNextEpisode(1, position, eps, seasons, testToday)
			return result.State == models.NextStateKnown &&
				result.Next != nil &&
				result.Next.Season == 1 &&
				result.Next.Episode == position+1
		},
		gen.IntRange(2, 30), // episodeCount
		gen.IntRange(1, 29), // position; skipped when >= episodeCount
	))

	properties.TestingRun(t)
}
