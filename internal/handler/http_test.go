package handler

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchlog/internal/auth"
	"watchlog/internal/repository"
	"watchlog/internal/service"
	"watchlog/internal/tmdb"
)

const testToken = "secret-token"

// newTestServer wires the full stack: temp SQLite, a mock TMDB catalog, and a
// single configured user.
func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dir := t.TempDir()
	dbPath := filepath.Join(dir, "handler_test.db")
	db, err := repository.NewSQLiteDB(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema())

	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/tv/100":
			fmt.Fprint(w, `{
				"id": 100, "name": "Signal Fires", "poster_path": "/p.jpg",
				"number_of_seasons": 1, "number_of_episodes": 3,
				"episode_run_time": [40],
				"seasons": [{"season_number": 1, "episode_count": 3, "name": "Season 1", "air_date": "2020-01-01"}]
			}`)
		case "/tv/100/season/1":
			fmt.Fprint(w, `{"episodes": [
				{"id": 1001, "season_number": 1, "episode_number": 1, "name": "Pilot", "air_date": "2020-01-01"},
				{"id": 1002, "season_number": 1, "episode_number": 2, "name": "Fallout", "air_date": "2020-01-08"},
				{"id": 1003, "season_number": 1, "episode_number": 3, "name": "Finale", "air_date": "2020-01-15"}
			]}`)
		default:
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"status_code": 34, "status_message": "not found"}`)
		}
	}))
	t.Cleanup(catalog.Close)

	tmdbClient := tmdb.NewClient("test-key")
	tmdbClient.SetBaseURL(catalog.URL)

	trackingRepo := repository.NewTrackingRepository(db)
	watchlistRepo := repository.NewWatchlistRepository(db)
	watchlistSvc := service.NewWatchlistService(watchlistRepo)
	tracker := service.NewEpisodeTracker(trackingRepo, tmdbClient, watchlistSvc)
	backupSvc := service.NewBackupService(dbPath, filepath.Join(dir, "backups"))

	provider, err := auth.NewStaticProvider("alice:" + testToken)
	require.NoError(t, err)

	router := gin.New()
	NewHTTPHandler(tracker, watchlistSvc, backupSvc, provider).RegisterRoutes(router)
	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealthNoAuth(t *testing.T) {
	router := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/api/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}

func TestMarkWatchedUnauthenticated(t *testing.T) {
	router := newTestServer(t)

	// No token: the request reaches the service as the guest and the
	// mutation is rejected.
	rec := doRequest(t, router, http.MethodPost, "/api/shows/100/episodes/watch", "",
		map[string]interface{}{"season": 1, "episode": 1})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBadTokenRejected(t *testing.T) {
	router := newTestServer(t)

	rec := doRequest(t, router, http.MethodGet, "/api/progress", "wrong-token", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMarkWatchedHappyPath(t *testing.T) {
	router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/api/shows/100/episodes/watch", testToken,
		map[string]interface{}{"season": 1, "episode": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	next, ok := body["next_episode"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "known", next["state"])
	nested := next["next"].(map[string]interface{})
	assert.Equal(t, float64(2), nested["episode"])
	assert.Equal(t, "Fallout", nested["title"])

	// The record is readable and carries the canonical episode key.
	rec = doRequest(t, router, http.MethodGet, "/api/shows/100/tracking", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tracking := decodeBody(t, rec)["tracking"].(map[string]interface{})
	episodes := tracking["episodes"].(map[string]interface{})
	assert.Contains(t, episodes, "1_1")

	// First watch put the show on the Currently Watching list.
	rec = doRequest(t, router, http.MethodGet, "/api/watching", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody(t, rec)["items"].([]interface{})
	require.Len(t, items, 1)
	assert.Equal(t, "Signal Fires", items[0].(map[string]interface{})["tvshow_name"])
}

func TestMarkWatchedValidation(t *testing.T) {
	router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/api/shows/100/episodes/watch", testToken,
		map[string]interface{}{"season": 1, "episode": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/shows/abc/episodes/watch", testToken,
		map[string]interface{}{"season": 1, "episode": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMarkSeasonWatched(t *testing.T) {
	router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/api/shows/100/seasons/1/watch", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, float64(3), decodeBody(t, rec)["marked"])

	rec = doRequest(t, router, http.MethodGet, "/api/progress", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	items := decodeBody(t, rec)["items"].([]interface{})
	require.Len(t, items, 1)
	item := items[0].(map[string]interface{})
	assert.Equal(t, float64(100), item["percentage"])
	assert.Equal(t, "none", item["next_episode_state"])
}

func TestMarkUnwatchedNoOp(t *testing.T) {
	router := newTestServer(t)

	// Unmarking an episode that was never marked succeeds.
	rec := doRequest(t, router, http.MethodDelete, "/api/shows/100/episodes/watch?season=1&episode=2", testToken, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUnmarkRemovesEntry(t *testing.T) {
	router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/api/shows/100/episodes/watch", testToken,
		map[string]interface{}{"season": 1, "episode": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, "/api/shows/100/episodes/watch?season=1&episode=1", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/shows/100/tracking", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	tracking := decodeBody(t, rec)["tracking"].(map[string]interface{})
	assert.Empty(t, tracking["episodes"])
}

func TestClearProgress(t *testing.T) {
	router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/api/shows/100/episodes/watch", testToken,
		map[string]interface{}{"season": 1, "episode": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodDelete, "/api/shows/100/tracking", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/shows/100/tracking", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, decodeBody(t, rec)["tracking"])
}

func TestShowProgressEndpoint(t *testing.T) {
	router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/api/shows/100/episodes/watch", testToken,
		map[string]interface{}{"season": 1, "episode": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/shows/100/progress", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, float64(1), body["total_watched"])
	assert.Equal(t, float64(3), body["total_aired_episodes"])
}

func TestBackupRequiresAuth(t *testing.T) {
	router := newTestServer(t)

	rec := doRequest(t, router, http.MethodPost, "/api/backup", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/backup", testToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, decodeBody(t, rec)["backup_path"], "watchlog_backup_")
}
