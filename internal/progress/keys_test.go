package progress

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// For any non-negative season and positive episode number, building an
// episode key and parsing it back returns the original numbers.
func TestEpisodeKeyRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("episode key round-trip preserves season and episode", prop.ForAll(
		func(season, episode int) bool {
			key := EpisodeKey(season, episode)
			gotSeason, gotEpisode, ok := ParseEpisodeKey(key)
			return ok && gotSeason == season && gotEpisode == episode
		},
		gen.IntRange(0, 100),
		gen.IntRange(1, 1000),
	))

	properties.TestingRun(t)
}

func TestParseEpisodeKeyMalformed(t *testing.T) {
	cases := []string{
		"",
		"1",
		"1_",
		"_3",
		"1_2_3",
		"a_b",
		"1-3",
		" 1_3",
		"1_3 ",
		"-1_3",
		"1_-3",
	}
	for _, key := range cases {
		if _, _, ok := ParseEpisodeKey(key); ok {
			t.Errorf("ParseEpisodeKey(%q) = ok, want malformed", key)
		}
	}
}

func TestEpisodeKeyFormat(t *testing.T) {
	if got := EpisodeKey(1, 3); got != "1_3" {
		t.Errorf("EpisodeKey(1, 3) = %q, want %q", got, "1_3")
	}
	if got := EpisodeKey(0, 12); got != "0_12" {
		t.Errorf("EpisodeKey(0, 12) = %q, want %q", got, "0_12")
	}
}
