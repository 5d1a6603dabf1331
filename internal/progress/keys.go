package progress

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Episodes are addressed by a composite "{season}_{episode}" string key inside
// a tracking record's episodes map.
var episodeKeyPattern = regexp.MustCompile(`^\d+_\d+$`)

// EpisodeKey builds the map key for an episode within a show.
func EpisodeKey(season, episode int) string {
	return fmt.Sprintf("%d_%d", season, episode)
}

// ParseEpisodeKey splits an episode key back into season and episode numbers.
// Malformed keys report ok=false and are treated as absent by callers, never
// as an error.
func ParseEpisodeKey(key string) (season, episode int, ok bool) {
	if !episodeKeyPattern.MatchString(key) {
		return 0, 0, false
	}
	parts := strings.SplitN(key, "_", 2)
	season, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	episode, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return season, episode, true
}
