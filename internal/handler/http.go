package handler

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"watchlog/internal/auth"
	"watchlog/internal/service"
)

// HTTPHandler handles HTTP requests for the tracking API
type HTTPHandler struct {
	tracker   *service.EpisodeTracker
	watchlist *service.WatchlistService
	backupSvc *service.BackupService
	provider  auth.Provider
}

// NewHTTPHandler creates a new HTTPHandler
func NewHTTPHandler(
	tracker *service.EpisodeTracker,
	watchlist *service.WatchlistService,
	backupSvc *service.BackupService,
	provider auth.Provider,
) *HTTPHandler {
	return &HTTPHandler{
		tracker:   tracker,
		watchlist: watchlist,
		backupSvc: backupSvc,
		provider:  provider,
	}
}

const userKey = "auth_user"

// RegisterRoutes registers all HTTP routes
func (h *HTTPHandler) RegisterRoutes(r *gin.Engine) {
	// Health check must allow unauthenticated ping for probes
	r.GET("/api/health", h.Health)

	api := r.Group("/api")
	api.Use(h.authMiddleware)

	// Dashboard
	api.GET("/progress", h.GetWatchProgress)
	api.GET("/watching", h.GetWatching)

	// Per-show tracking
	api.GET("/shows/:id/progress", h.GetShowProgress)
	api.GET("/shows/:id/tracking", h.GetTracking)
	api.GET("/shows/:id/tracking/stream", h.StreamTracking)
	api.POST("/shows/:id/episodes/watch", h.MarkWatched)
	api.DELETE("/shows/:id/episodes/watch", h.MarkUnwatched)
	api.POST("/shows/:id/seasons/:season/watch", h.MarkSeasonWatched)
	api.DELETE("/shows/:id/tracking", h.ClearProgress)

	// Backups
	api.POST("/backup", h.Backup)
}

// Health returns health status
func (h *HTTPHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetWatchProgress returns the cache-only dashboard items for the caller.
func (h *HTTPHandler) GetWatchProgress(c *gin.Context) {
	user := h.currentUser(c)
	items, err := h.tracker.WatchProgressItems(c.Request.Context(), user.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetWatching returns the Currently Watching collection.
func (h *HTTPHandler) GetWatching(c *gin.Context) {
	user := h.currentUser(c)
	items, err := h.watchlist.List(c.Request.Context(), user.ID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": items})
}

// GetShowProgress recomputes progress from the live catalog.
func (h *HTTPHandler) GetShowProgress(c *gin.Context) {
	showID, ok := h.showID(c)
	if !ok {
		return
	}
	user := h.currentUser(c)
	result, err := h.tracker.ShowProgress(c.Request.Context(), user.ID, showID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetTracking returns the raw tracking record, or null when the show was
// never tracked.
func (h *HTTPHandler) GetTracking(c *gin.Context) {
	showID, ok := h.showID(c)
	if !ok {
		return
	}
	user := h.currentUser(c)
	rec, err := h.tracker.GetTracking(c.Request.Context(), user.ID, showID)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"tracking": rec})
}

// StreamTracking streams tracking record updates over SSE until the client
// disconnects.
func (h *HTTPHandler) StreamTracking(c *gin.Context) {
	showID, ok := h.showID(c)
	if !ok {
		return
	}
	user := h.currentUser(c)

	updates, cancel := h.tracker.Watch(user.ID, showID)
	defer cancel()

	c.Stream(func(w io.Writer) bool {
		select {
		case rec, open := <-updates:
			if !open {
				return false
			}
			c.SSEvent("tracking", rec)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}

// markWatchedRequest is the mark-as-watched payload: episode identity plus
// the display data denormalized into the tracking record at mark time.
type markWatchedRequest struct {
	Season         int    `json:"season"`
	Episode        int    `json:"episode" binding:"required"`
	EpisodeID      int    `json:"episode_id"`
	EpisodeName    string `json:"episode_name"`
	EpisodeAirDate string `json:"episode_air_date"`
	TVShowName     string `json:"tvshow_name"`
	PosterPath     string `json:"poster_path"`
}

// MarkWatched marks one episode watched and returns the resolved next episode.
func (h *HTTPHandler) MarkWatched(c *gin.Context) {
	showID, ok := h.showID(c)
	if !ok {
		return
	}

	var req markWatchedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Season < 0 || req.Episode <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid season or episode number"})
		return
	}

	user := h.currentUser(c)
	next, err := h.tracker.MarkWatchedAndResolve(c.Request.Context(), user, service.MarkWatchedParams{
		TVShowID:       showID,
		Season:         req.Season,
		Episode:        req.Episode,
		EpisodeID:      req.EpisodeID,
		EpisodeName:    req.EpisodeName,
		EpisodeAirDate: req.EpisodeAirDate,
		TVShowName:     req.TVShowName,
		PosterPath:     req.PosterPath,
	})
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"next_episode": next})
}

// MarkUnwatched removes one episode entry; absent entries succeed as a no-op.
func (h *HTTPHandler) MarkUnwatched(c *gin.Context) {
	showID, ok := h.showID(c)
	if !ok {
		return
	}

	season, err := strconv.Atoi(c.Query("season"))
	if err != nil || season < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid season"})
		return
	}
	episode, err := strconv.Atoi(c.Query("episode"))
	if err != nil || episode <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid episode"})
		return
	}

	user := h.currentUser(c)
	if err := h.tracker.MarkUnwatched(c.Request.Context(), user, showID, season, episode); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "episode unmarked"})
}

// MarkSeasonWatched marks all aired episodes of a season watched in one write.
func (h *HTTPHandler) MarkSeasonWatched(c *gin.Context) {
	showID, ok := h.showID(c)
	if !ok {
		return
	}
	season, err := strconv.Atoi(c.Param("season"))
	if err != nil || season < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid season"})
		return
	}

	user := h.currentUser(c)
	marked, err := h.tracker.MarkSeasonWatched(c.Request.Context(), user, showID, season)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"marked": marked})
}

// ClearProgress resets a show's tracking record entirely.
func (h *HTTPHandler) ClearProgress(c *gin.Context) {
	showID, ok := h.showID(c)
	if !ok {
		return
	}
	user := h.currentUser(c)
	if err := h.tracker.ClearAll(c.Request.Context(), user, showID); err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "progress cleared"})
}

// Backup triggers a database backup.
func (h *HTTPHandler) Backup(c *gin.Context) {
	user := h.currentUser(c)
	if !user.CanWrite() {
		h.writeError(c, service.ErrAuthRequired)
		return
	}
	backupPath, err := h.backupSvc.Backup()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"backup_path": backupPath})
}

// authMiddleware resolves the Bearer token to a user. Requests without an
// Authorization header proceed as the anonymous guest; mutations then fail
// with an authentication-required error at the service layer.
func (h *HTTPHandler) authMiddleware(c *gin.Context) {
	authHeader := strings.TrimSpace(c.GetHeader("Authorization"))
	if authHeader == "" {
		c.Set(userKey, auth.Guest())
		c.Next()
		return
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid Authorization header"})
		c.Abort()
		return
	}

	user, err := h.provider.Authenticate(parts[1])
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		c.Abort()
		return
	}

	c.Set(userKey, user)
	c.Next()
}

func (h *HTTPHandler) currentUser(c *gin.Context) auth.User {
	if v, ok := c.Get(userKey); ok {
		if user, ok := v.(auth.User); ok {
			return user
		}
	}
	return auth.Guest()
}

// writeError maps service errors to status codes: auth failures are 401,
// store timeouts are 504 with a retryable hint, everything else propagates
// as 500 with the store's message.
func (h *HTTPHandler) writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrAuthRequired):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
	case errors.Is(err, service.ErrStoreTimeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": err.Error(), "retryable": true})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (h *HTTPHandler) showID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid show id"})
		return 0, false
	}
	return id, true
}
