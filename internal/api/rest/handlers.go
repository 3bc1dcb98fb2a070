package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/fortuna/janus/internal/analytics"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/service"
	"github.com/fortuna/janus/internal/store/repository"
)

// HealthChecker reports whether a dependency is reachable
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StatusProvider exposes the state of a background component
type StatusProvider interface {
	GetStatus() map[string]interface{}
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	health           HealthChecker
	gameService      *service.GameService
	analyticsService *service.AnalyticsService
	miscountService  *service.MiscountService
	playerService    *service.PlayerService
	scheduler        StatusProvider
}

// HealthCheck handles health check requests
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	payload := map[string]interface{}{
		"status":  "healthy",
		"service": "janus",
	}
	if h.health != nil {
		if err := h.health.HealthCheck(r.Context()); err != nil {
			payload["status"] = "unhealthy"
			payload["database"] = err.Error()
			respondJSON(w, http.StatusServiceUnavailable, payload)
			return
		}
	}
	respondJSON(w, http.StatusOK, payload)
}

// GetTimeline returns the annotated plays of a game
func (h *Handler) GetTimeline(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameID"]

	timeline, err := h.gameService.GetTimeline(r.Context(), gameID)
	if err != nil {
		respondServiceError(w, "Failed to fetch timeline", err)
		return
	}

	respondJSON(w, http.StatusOK, timeline)
}

// GetMatchups returns the lineup matchups of a game
func (h *Handler) GetMatchups(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameID"]

	matchups, err := h.gameService.GetMatchups(r.Context(), gameID)
	if err != nil {
		respondServiceError(w, "Failed to compute matchups", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"game_id":  gameID,
		"matchups": matchups,
	})
}

// GetLineupFeature handles GET /api/v1/games/{gameID}/features?attr=height&agg=mean&delta=true
// Season stats use attr=stat&table=advanced&col=ws_per_48&seasons_ago=1.
func (h *Handler) GetLineupFeature(w http.ResponseWriter, r *http.Request) {
	gameID := mux.Vars(r)["gameID"]
	q := r.URL.Query()

	attr, err := parseAttribute(q)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid attr", err)
		return
	}
	agg, err := analytics.ParseAggregation(valueOr(q.Get("agg"), "mean"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid agg", err)
		return
	}
	delta, _ := strconv.ParseBool(q.Get("delta"))

	rows, err := h.analyticsService.GetLineupFeature(r.Context(), gameID, attr, agg, delta)
	if err != nil {
		respondServiceError(w, "Failed to compute lineup feature", err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"game_id":   gameID,
		"attribute": attr.String(),
		"agg":       agg.String(),
		"delta":     delta,
		"rows":      rows,
	})
}

func parseAttribute(q url.Values) (analytics.Attribute, error) {
	name := valueOr(q.Get("attr"), "height")
	if !strings.EqualFold(name, "stat") {
		return analytics.ParseAttribute(name)
	}
	seasonsAgo := 1
	if raw := q.Get("seasons_ago"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return analytics.Attribute{}, fmt.Errorf("invalid seasons_ago %q", raw)
		}
		seasonsAgo = n
	}
	return analytics.StatAttribute(q.Get("table"), q.Get("col"), seasonsAgo)
}

// GetSeasonGames handles GET /api/v1/games?season=2015-16&include_excluded=true
func (h *Handler) GetSeasonGames(w http.ResponseWriter, r *http.Request) {
	season := r.URL.Query().Get("season")
	if season == "" {
		respondError(w, http.StatusBadRequest, "season is required", nil)
		return
	}
	include, _ := strconv.ParseBool(r.URL.Query().Get("include_excluded"))

	games, err := h.gameService.GetSeasonGames(r.Context(), season, include)
	if err != nil {
		respondServiceError(w, "Failed to fetch games", err)
		return
	}

	respondJSON(w, http.StatusOK, games)
}

// GetTopLineups handles GET /api/v1/lineups?season=2015-16&limit=25
func (h *Handler) GetTopLineups(w http.ResponseWriter, r *http.Request) {
	season := r.URL.Query().Get("season")
	if season == "" {
		respondError(w, http.StatusBadRequest, "season is required", nil)
		return
	}

	limit := 25 // default
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 500 {
		limit = l
	}

	lineups, err := h.analyticsService.TopLineups(r.Context(), season, limit)
	if err != nil {
		respondServiceError(w, "Failed to fetch lineups", err)
		return
	}

	respondJSON(w, http.StatusOK, lineups)
}

// GetMiscounts handles GET /api/v1/miscounts?season=2015-16
func (h *Handler) GetMiscounts(w http.ResponseWriter, r *http.Request) {
	summary, err := h.miscountService.List(r.Context(), r.URL.Query().Get("season"))
	if err != nil {
		respondServiceError(w, "Failed to fetch miscounts", err)
		return
	}

	respondJSON(w, http.StatusOK, summary)
}

// GetPlayer handles GET /api/v1/players/{playerID}?season=2015-16
func (h *Handler) GetPlayer(w http.ResponseWriter, r *http.Request) {
	playerID := mux.Vars(r)["playerID"]

	player, err := h.playerService.GetPlayer(r.Context(), playerID, r.URL.Query().Get("season"))
	if err != nil {
		respondServiceError(w, "Failed to fetch player", err)
		return
	}

	respondJSON(w, http.StatusOK, player)
}

// GetSchedulerStatus reports the re-resolution scheduler
func (h *Handler) GetSchedulerStatus(w http.ResponseWriter, r *http.Request) {
	if h.scheduler == nil {
		respondJSON(w, http.StatusOK, map[string]interface{}{"enabled": false})
		return
	}
	respondJSON(w, http.StatusOK, h.scheduler.GetStatus())
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// respondServiceError maps service errors onto status codes
func respondServiceError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, repository.ErrGameNotFound), errors.Is(err, pbp.ErrPlayerNotFound):
		respondError(w, http.StatusNotFound, message, err)
	case errors.Is(err, service.ErrInvalidSeason):
		respondError(w, http.StatusBadRequest, message, err)
	default:
		respondError(w, http.StatusInternalServerError, message, err)
	}
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError writes an error response
func respondError(w http.ResponseWriter, status int, message string, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}

	if err != nil {
		response["details"] = err.Error()
	}

	json.NewEncoder(w).Encode(response)
}
