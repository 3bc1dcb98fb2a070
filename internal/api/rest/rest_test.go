package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/janus/internal/analytics"
	"github.com/fortuna/janus/internal/backfill"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/service"
	"github.com/fortuna/janus/internal/store"
	"github.com/fortuna/janus/internal/store/repository"
	fixtures "github.com/fortuna/janus/internal/testutil"
	"github.com/fortuna/janus/pkg/logger"
	"github.com/fortuna/janus/pkg/metrics"
)

type stubGames map[string]*pbp.Game

func (s stubGames) GetTimeline(_ context.Context, id string) (*pbp.Game, error) {
	g, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("loading %s: %w", id, repository.ErrGameNotFound)
	}
	return g, nil
}

func (s stubGames) GetBySeason(_ context.Context, season string, _ bool) ([]*store.Game, error) {
	var out []*store.Game
	for id, g := range s {
		if g.Season == season {
			out = append(out, &store.Game{GameID: id, Season: season})
		}
	}
	return out, nil
}

type stubLineups struct{}

func (stubLineups) TopBySeason(_ context.Context, season string, _ int) ([]*store.LineupResult, error) {
	return []*store.LineupResult{{Season: season, Lineup: "h1,h2,h3,h4,h5", Home: true, OffPoss: 4, PtsScored: 4}}, nil
}

type stubMiscounts struct{}

func (stubMiscounts) List(_ context.Context, season string) ([]*store.Miscount, error) {
	return []*store.Miscount{{GameID: "g1", Season: season, Quarter: 2, Side: "home", Magnitude: -1}}, nil
}

type stubHealth struct{ err error }

func (s stubHealth) HealthCheck(context.Context) error { return s.err }

type stubBackfill struct {
	got backfill.Request
	err error
}

func (s *stubBackfill) Enqueue(_ context.Context, req backfill.Request) (*backfill.Job, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.got = req
	return &backfill.Job{JobID: "job-1", JobType: backfill.JobTypeSeason, Season: "2015-16", Persist: req.Persist, Status: backfill.JobStatusQueued}, nil
}

func (s *stubBackfill) GetStatus(context.Context) (*backfill.StatusSummary, error) {
	return &backfill.StatusSummary{History: []*backfill.Job{{JobID: "old", Status: backfill.JobStatusCompleted}}}, nil
}

type stubScheduler struct{}

func (stubScheduler) GetStatus() map[string]interface{} {
	return map[string]interface{}{"running": false}
}

func sampleGame() *pbp.Game {
	home := append([]string(nil), fixtures.HomeStarters...)
	away := append([]string(nil), fixtures.AwayStarters...)
	return &pbp.Game{
		ID: "g1", Season: "2015-16", HomeTeam: fixtures.HomeTeam, AwayTeam: fixtures.AwayTeam,
		Plays: []*pbp.Play{
			{
				Event:       pbp.Event{Row: 1, Quarter: 1, SecLeft: 700, Season: "2015-16", HomeScore: 2},
				Timestamp:   1,
				SecElapsed:  20,
				HomeLineup:  home,
				AwayLineup:  away,
				HomePossEnd: true,
				HomePoss:    1,
				HomePts:     2,
			},
		},
	}
}

func newTestServer(t *testing.T, bf BackfillService, health HealthChecker) (*Server, *metrics.Manager) {
	t.Helper()

	games := stubGames{"g1": sampleGame()}
	players := fixtures.NewPlayers(append(
		fixtures.Roster(fixtures.HomeTeam, fixtures.HomeStarters...),
		fixtures.Roster(fixtures.AwayTeam, fixtures.AwayStarters...)...,
	)...)
	m := metrics.NewManager()

	srv := NewServer("0", Deps{
		Health:    health,
		Games:     service.NewGameService(games),
		Analytics: service.NewAnalyticsService(stubLineups{}, games, analytics.NewFeatureBuilder(players, logger.Discard())),
		Miscounts: service.NewMiscountService(stubMiscounts{}),
		Players:   service.NewPlayerService(players),
		Backfill:  bf,
		Scheduler: stubScheduler{},
		Metrics:   m,
		Log:       logger.Discard(),
	})
	return srv, m
}

func do(t *testing.T, h http.Handler, method, target, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]interface{}
	if strings.HasPrefix(strings.TrimSpace(rec.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	}
	return rec, payload
}

func TestHealthCheck(t *testing.T) {
	srv, _ := newTestServer(t, nil, stubHealth{})
	rec, payload := do(t, srv.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", payload["status"])

	srv, _ = newTestServer(t, nil, stubHealth{err: errors.New("connection refused")})
	rec, payload = do(t, srv.Handler(), http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "unhealthy", payload["status"])
}

func TestGetTimeline(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec, payload := do(t, srv.Handler(), http.MethodGet, "/api/v1/games/g1/timeline", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "g1", payload["game_id"])
	plays, ok := payload["plays"].([]interface{})
	require.True(t, ok)
	assert.Len(t, plays, 1)

	rec, payload = do(t, srv.Handler(), http.MethodGet, "/api/v1/games/missing/timeline", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Failed to fetch timeline", payload["error"])
}

func TestGetMatchupsAndFeatures(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec, payload := do(t, srv.Handler(), http.MethodGet, "/api/v1/games/g1/matchups", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, payload["matchups"], 1)

	rec, payload = do(t, srv.Handler(), http.MethodGet, "/api/v1/games/g1/features?attr=height&agg=mean", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "height", payload["attribute"])

	rec, _ = do(t, srv.Handler(), http.MethodGet, "/api/v1/games/g1/features?attr=wingspan", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, payload = do(t, srv.Handler(), http.MethodGet, "/api/v1/games/g1/features?attr=stat&table=advanced&col=ws_per_48&agg=max", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "advanced.ws_per_48@1", payload["attribute"])

	rec, _ = do(t, srv.Handler(), http.MethodGet, "/api/v1/games/g1/features?attr=stat&table=advanced", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec, _ = do(t, srv.Handler(), http.MethodGet, "/api/v1/games/g1/features?attr=stat&col=ws_per_48&seasons_ago=last", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSeasonValidation(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec, _ := do(t, srv.Handler(), http.MethodGet, "/api/v1/games", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, srv.Handler(), http.MethodGet, "/api/v1/games?season=abc", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = do(t, srv.Handler(), http.MethodGet, "/api/v1/games?season=2016", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, srv.Handler(), http.MethodGet, "/api/v1/lineups?season=2016&limit=3", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, payload := do(t, srv.Handler(), http.MethodGet, "/api/v1/miscounts?season=2016", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "2015-16", payload["season"])
}

func TestGetPlayer(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec, _ := do(t, srv.Handler(), http.MethodGet, "/api/v1/players/h1", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, _ = do(t, srv.Handler(), http.MethodGet, "/api/v1/players/nobody", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBackfillEndpoints(t *testing.T) {
	bf := &stubBackfill{}
	srv, _ := newTestServer(t, bf, nil)

	rec, payload := do(t, srv.Handler(), http.MethodPost, "/api/v1/backfill", `{"season":"2016","game_id":"g2","game_ids":["g1"]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "2016", bf.got.Season)
	assert.Equal(t, []string{"g1", "g2"}, bf.got.GameIDs)
	assert.True(t, bf.got.Persist)
	job, ok := payload["job"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "job-1", job["job_id"])

	rec, _ = do(t, srv.Handler(), http.MethodPost, "/api/v1/backfill", `{"season":"2016","persist":false}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.False(t, bf.got.Persist)

	rec, _ = do(t, srv.Handler(), http.MethodPost, "/api/v1/backfill", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, payload = do(t, srv.Handler(), http.MethodGet, "/api/v1/backfill/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", payload["status"])
	assert.Len(t, payload["history"], 1)

	bf.err = errors.New("request requires a season")
	rec, _ = do(t, srv.Handler(), http.MethodPost, "/api/v1/backfill", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec, _ := do(t, srv.Handler(), http.MethodOptions, "/api/v1/games", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestMetricsRecordRouteTemplate(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	do(t, srv.Handler(), http.MethodGet, "/api/v1/games/g1/timeline", "")

	rec, _ := do(t, srv.Handler(), http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/v1/games/{gameID}/timeline"`)
}

func TestSchedulerStatus(t *testing.T) {
	srv, _ := newTestServer(t, nil, nil)

	rec, payload := do(t, srv.Handler(), http.MethodGet, "/api/v1/scheduler/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, payload["running"])
}

func TestRecoveryMiddleware(t *testing.T) {
	h := RecoveryMiddleware(logger.Discard())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec, payload := do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "boom", payload["details"])
}
