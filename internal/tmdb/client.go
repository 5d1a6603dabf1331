package tmdb

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	defaultBaseURL  = "https://api.themoviedb.org/3"
	defaultTimeout  = 10 * time.Second
	requestInterval = 100 * time.Millisecond // space out requests to stay under API limits
)

// Client handles all interactions with the TMDB API. It is the read-only
// metadata provider for the tracking core: show catalogs and season listings.
type Client struct {
	apiKey      string
	baseURL     string
	httpClient  *http.Client
	lastRequest time.Time
}

// EpisodeInfo represents episode information from TMDB.
type EpisodeInfo struct {
	ID            int    `json:"id"`
	AirDate       string `json:"air_date"`
	EpisodeNumber int    `json:"episode_number"`
	SeasonNumber  int    `json:"season_number"`
	Name          string `json:"name"`
	Runtime       int    `json:"runtime"`
}

// SeasonInfo represents a season entry in a show's catalog.
type SeasonInfo struct {
	SeasonNumber int    `json:"season_number"`
	EpisodeCount int    `json:"episode_count"`
	Name         string `json:"name"`
	AirDate      string `json:"air_date"`
}

// TVDetails represents a show's catalog: identity, seasons, and episode stats.
type TVDetails struct {
	ID               int          `json:"id"`
	Name             string       `json:"name"`
	Status           string       `json:"status"`
	PosterPath       string       `json:"poster_path"`
	NumberOfSeasons  int          `json:"number_of_seasons"`
	NumberOfEpisodes int          `json:"number_of_episodes"`
	EpisodeRunTime   []int        `json:"episode_run_time"`
	Seasons          []SeasonInfo `json:"seasons"`
}

// AvgRuntime returns the mean episode runtime in minutes, or 0 when the
// catalog carries no runtime data.
func (d *TVDetails) AvgRuntime() int {
	if len(d.EpisodeRunTime) == 0 {
		return 0
	}
	sum := 0
	for _, r := range d.EpisodeRunTime {
		sum += r
	}
	return sum / len(d.EpisodeRunTime)
}

// seasonDetail wraps the TMDB season response.
type seasonDetail struct {
	Episodes []EpisodeInfo `json:"episodes"`
}

// APIError represents an error returned by the TMDB API.
type APIError struct {
	StatusCode    int    `json:"status_code"`
	StatusMessage string `json:"status_message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("TMDB API error (code %d): %s", e.StatusCode, e.StatusMessage)
}

// NewClient creates a new TMDB API client.
func NewClient(apiKey string) *Client {
	return &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
}

// SetBaseURL allows overriding the base URL (useful for testing).
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

// GetTVDetails fetches a show's catalog from TMDB /tv/{id}.
func (c *Client) GetTVDetails(tvShowID int) (*TVDetails, error) {
	if tvShowID <= 0 {
		return nil, fmt.Errorf("invalid TMDB ID: %d", tvShowID)
	}

	c.rateLimit()

	endpoint := fmt.Sprintf("%s/tv/%d?api_key=%s&language=en-US", c.baseURL, tvShowID, c.apiKey)

	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get TV details: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkResponse(resp); err != nil {
		return nil, err
	}

	var details TVDetails
	if err := json.NewDecoder(resp.Body).Decode(&details); err != nil {
		return nil, fmt.Errorf("failed to decode TV details response: %w", err)
	}

	return &details, nil
}

// GetSeasonEpisodes fetches all episodes for a specific season from TMDB
// /tv/{id}/season/{season}.
func (c *Client) GetSeasonEpisodes(tvShowID, seasonNumber int) ([]EpisodeInfo, error) {
	if tvShowID <= 0 {
		return nil, fmt.Errorf("invalid TMDB ID: %d", tvShowID)
	}
	if seasonNumber < 0 {
		return nil, fmt.Errorf("invalid season number: %d", seasonNumber)
	}

	c.rateLimit()

	endpoint := fmt.Sprintf("%s/tv/%d/season/%d?api_key=%s&language=en-US",
		c.baseURL, tvShowID, seasonNumber, c.apiKey)

	resp, err := c.httpClient.Get(endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to get season episodes: %w", err)
	}
	defer resp.Body.Close()

	if err := c.checkResponse(resp); err != nil {
		return nil, err
	}

	var season seasonDetail
	if err := json.NewDecoder(resp.Body).Decode(&season); err != nil {
		return nil, fmt.Errorf("failed to decode season response: %w", err)
	}

	return season.Episodes, nil
}

// checkResponse checks the HTTP response for errors.
func (c *Client) checkResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &APIError{
			StatusCode:    resp.StatusCode,
			StatusMessage: fmt.Sprintf("HTTP %d: failed to read error response", resp.StatusCode),
		}
	}

	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err != nil {
		return &APIError{
			StatusCode:    resp.StatusCode,
			StatusMessage: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, string(body)),
		}
	}

	if apiErr.StatusCode == 0 {
		apiErr.StatusCode = resp.StatusCode
	}
	if apiErr.StatusMessage == "" {
		apiErr.StatusMessage = fmt.Sprintf("HTTP %d error", resp.StatusCode)
	}

	return &apiErr
}

// rateLimit ensures requests are spaced out to avoid hitting API limits.
func (c *Client) rateLimit() {
	elapsed := time.Since(c.lastRequest)
	if elapsed < requestInterval {
		time.Sleep(requestInterval - elapsed)
	}
	c.lastRequest = time.Now()
}
