package backfill

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fortuna/janus/internal/analytics"
	"github.com/fortuna/janus/internal/cache"
	"github.com/fortuna/janus/internal/engine"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/publisher"
	fixtures "github.com/fortuna/janus/internal/testutil"
	"github.com/fortuna/janus/pkg/logger"
)

type memoryJobs struct {
	mu     sync.Mutex
	jobs   map[string]*Job
	order  []string
	events map[string][]string
}

func newMemoryJobs() *memoryJobs {
	return &memoryJobs{jobs: make(map[string]*Job), events: make(map[string][]string)}
}

func (m *memoryJobs) CreateJob(_ context.Context, job *Job) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := job.Copy()
	stored.JobID = uuid.New().String()
	stored.CreatedAt = time.Now()
	m.jobs[stored.JobID] = stored
	m.order = append(m.order, stored.JobID)
	return stored.Copy(), nil
}

func (m *memoryJobs) UpdateStatus(_ context.Context, jobID string, status JobStatus, message string, lastErr error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[jobID]
	j.Status = status
	j.StatusMessage = sql.NullString{String: message, Valid: true}
	if lastErr != nil {
		j.LastError = sql.NullString{String: lastErr.Error(), Valid: true}
	}
	return nil
}

func (m *memoryJobs) UpdateProgress(_ context.Context, jobID string, current, total int, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j := m.jobs[jobID]
	j.ProgressCurrent, j.ProgressTotal = current, total
	j.StatusMessage = sql.NullString{String: message, Valid: true}
	return nil
}

func (m *memoryJobs) AppendEvent(_ context.Context, jobID string, eventType, _ string, _, _ *int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[jobID] = append(m.events[jobID], eventType)
	return nil
}

func (m *memoryJobs) ResetStuckJobs(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status == JobStatusRunning {
			j.Status = JobStatusQueued
			j.RetryCount++
		}
	}
	return nil
}

func (m *memoryJobs) MarkNextJobRunning(context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.order {
		if j := m.jobs[id]; j.Status == JobStatusQueued {
			j.Status = JobStatusRunning
			return j.Copy(), nil
		}
	}
	return nil, nil
}

func (m *memoryJobs) GetActiveJob(context.Context) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, j := range m.jobs {
		if j.Status == JobStatusRunning {
			return j.Copy(), nil
		}
	}
	return nil, nil
}

func (m *memoryJobs) ListRecentJobs(_ context.Context, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*Job
	for i := len(m.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, m.jobs[m.order[i]].Copy())
	}
	return out, nil
}

func (m *memoryJobs) job(id string) *Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.jobs[id].Copy()
}

type fakeSource struct {
	games []*pbp.Game
	err   error
}

func (f *fakeSource) LoadSeason(context.Context, string) ([]*pbp.Game, error) {
	return f.games, f.err
}

func (f *fakeSource) LoadGames(_ context.Context, _ string, ids []string) ([]*pbp.Game, error) {
	var out []*pbp.Game
	for _, g := range f.games {
		for _, id := range ids {
			if g.ID == id {
				out = append(out, g)
			}
		}
	}
	return out, f.err
}

type fakeTimelines struct {
	mu    sync.Mutex
	saved map[string]bool
}

func (f *fakeTimelines) SaveTimeline(_ context.Context, g *pbp.Game, excluded bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saved == nil {
		f.saved = make(map[string]bool)
	}
	f.saved[g.ID] = excluded
	return nil
}

type fakeLineups struct {
	byGame map[string][]analytics.LineupResult
	err    error
}

func (f *fakeLineups) ReplaceGameResults(_ context.Context, id string, results []analytics.LineupResult) error {
	if f.err != nil {
		return f.err
	}
	if f.byGame == nil {
		f.byGame = make(map[string][]analytics.LineupResult)
	}
	if len(results) == 0 {
		delete(f.byGame, id)
		return nil
	}
	f.byGame[id] = results
	return nil
}

type lineupTotal struct {
	lineup string
	home   bool
}

// totals sums the stored contributions the way the season query does.
func (f *fakeLineups) totals() map[lineupTotal]analytics.LineupResult {
	out := make(map[lineupTotal]analytics.LineupResult)
	for _, results := range f.byGame {
		for _, r := range results {
			k := lineupTotal{r.Lineup, r.Home}
			t := out[k]
			t.Lineup, t.Home = r.Lineup, r.Home
			t.SecElapsed += r.SecElapsed
			t.OffPoss += r.OffPoss
			t.DefPoss += r.DefPoss
			t.PtsScored += r.PtsScored
			t.PtsAllowed += r.PtsAllowed
			out[k] = t
		}
	}
	return out
}

type countingSink struct {
	mu    sync.Mutex
	games []string
}

func (c *countingSink) PublishGame(_ context.Context, s publisher.GameSummary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.games = append(c.games, s.GameID)
	return nil
}

func (c *countingSink) PublishMiscount(context.Context, pbp.MiscountRecord) error { return nil }

func game(id string) *pbp.Game {
	return fixtures.NewGame(id).
		JumpBall("a1", "h1", "h2").
		At(1, 700).Touch(pbp.Home, fixtures.HomeStarters...).
		At(1, 650).Touch(pbp.Away, fixtures.AwayStarters...).
		At(1, 600).Shot(pbp.Home, "h1", pbp.ShotTwo, pbp.Make).
		At(1, 0).EndOfQuarter().
		Game()
}

func testEnv() engine.Env {
	players := fixtures.NewPlayers(append(
		fixtures.Roster(fixtures.HomeTeam, fixtures.HomeStarters...),
		fixtures.Roster(fixtures.AwayTeam, fixtures.AwayStarters...)...,
	)...)
	return engine.NewEnv(cache.NewMemory(), players, fixtures.NewBoxScores(), nil, logger.Discard())
}

type recordingReporter struct {
	nopReporter
	processed []string
	completed *Summary
	errs      []error
}

func (r *recordingReporter) OnGameProcessed(res *engine.Result) {
	r.processed = append(r.processed, res.Game.ID)
}

func (r *recordingReporter) OnJobComplete(s Summary) { r.completed = &s }

func (r *recordingReporter) OnJobError(err error) { r.errs = append(r.errs, err) }

func TestDeriveType(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		want    JobType
		wantErr bool
	}{
		{"season", Request{Season: "2015-16"}, JobTypeSeason, false},
		{"games", Request{Season: "16", GameIDs: []string{"g1"}}, JobTypeGame, false},
		{"no season", Request{GameIDs: []string{"g1"}}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.req.DeriveType()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRunnerPersistsAndPublishes(t *testing.T) {
	timelines, lineups, sink := &fakeTimelines{}, &fakeLineups{}, &countingSink{}
	runner := NewRunner(&fakeSource{games: []*pbp.Game{game("g1"), game("g2")}}, testEnv(),
		WithTimelineStore(timelines), WithLineupStore(lineups), WithSink(sink))

	rep := &recordingReporter{}
	summary, err := runner.Run(context.Background(), JobSpec{
		Type: JobTypeSeason, Season: "2015-16", Persist: true, Options: engine.DefaultOptions(),
	}, rep)
	require.NoError(t, err)

	assert.Equal(t, Summary{Games: 2, Kept: 2, Lineups: summary.Lineups}, summary)
	assert.NotZero(t, summary.Lineups)
	assert.Equal(t, map[string]bool{"g1": false, "g2": false}, timelines.saved)
	assert.Len(t, lineups.totals(), summary.Lineups)
	sort.Strings(sink.games)
	assert.Equal(t, []string{"g1", "g2"}, sink.games)
	assert.Equal(t, []string{"g1", "g2"}, rep.processed)
	require.NotNil(t, rep.completed)
}

func TestRunnerWithoutPersist(t *testing.T) {
	timelines, lineups := &fakeTimelines{}, &fakeLineups{}
	runner := NewRunner(&fakeSource{games: []*pbp.Game{game("g1")}}, testEnv(),
		WithTimelineStore(timelines), WithLineupStore(lineups))

	_, err := runner.Run(context.Background(), JobSpec{Type: JobTypeSeason, Season: "2015-16", Options: engine.DefaultOptions()}, nil)
	require.NoError(t, err)
	assert.Empty(t, timelines.saved)
	assert.Empty(t, lineups.byGame)
}

func shortGame(id string) *pbp.Game {
	return fixtures.NewGame(id).
		JumpBall("a1", "h1", "h2").
		At(1, 700).Touch(pbp.Home, fixtures.HomeStarters[:4]...).
		At(1, 650).Touch(pbp.Away, fixtures.AwayStarters...).
		At(1, 600).Shot(pbp.Home, "h1", pbp.ShotTwo, pbp.Make).
		At(1, 0).EndOfQuarter().
		Game()
}

func TestRunnerSeasonTwiceKeepsTotals(t *testing.T) {
	lineups := &fakeLineups{}
	spec := JobSpec{Type: JobTypeSeason, Season: "2015-16", Persist: true, Options: engine.DefaultOptions()}

	first := NewRunner(&fakeSource{games: []*pbp.Game{game("g1"), game("g2")}}, testEnv(), WithLineupStore(lineups))
	_, err := first.Run(context.Background(), spec, nil)
	require.NoError(t, err)
	once := lineups.totals()
	require.NotEmpty(t, once)

	again := NewRunner(&fakeSource{games: []*pbp.Game{game("g1"), game("g2")}}, testEnv(), WithLineupStore(lineups))
	_, err = again.Run(context.Background(), spec, nil)
	require.NoError(t, err)
	assert.Equal(t, once, lineups.totals())
	assert.Len(t, lineups.byGame, 2)
}

func TestRunnerRemovesExcludedGameLineups(t *testing.T) {
	lineups := &fakeLineups{}
	spec := JobSpec{Type: JobTypeSeason, Season: "2015-16", Persist: true, Options: engine.DefaultOptions()}

	_, err := NewRunner(&fakeSource{games: []*pbp.Game{game("g1"), game("g2")}}, testEnv(), WithLineupStore(lineups)).
		Run(context.Background(), spec, nil)
	require.NoError(t, err)
	require.Contains(t, lineups.byGame, "g2")

	summary, err := NewRunner(&fakeSource{games: []*pbp.Game{game("g1"), shortGame("g2")}}, testEnv(), WithLineupStore(lineups)).
		Run(context.Background(), spec, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Kept)
	assert.Contains(t, lineups.byGame, "g1")
	assert.NotContains(t, lineups.byGame, "g2")
}

func TestRunnerGameJob(t *testing.T) {
	runner := NewRunner(&fakeSource{games: []*pbp.Game{game("g1"), game("g2")}}, testEnv())

	summary, err := runner.Run(context.Background(), JobSpec{
		Type: JobTypeGame, Season: "2015-16", GameIDs: []string{"g2", "missing"}, Options: engine.DefaultOptions(),
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Games)

	_, err = runner.Run(context.Background(), JobSpec{Type: JobTypeGame, Season: "2015-16"}, nil)
	assert.Error(t, err)
}

func TestRunnerFailures(t *testing.T) {
	rep := &recordingReporter{}
	runner := NewRunner(&fakeSource{err: errors.New("no such file")}, testEnv())
	_, err := runner.Run(context.Background(), JobSpec{Type: JobTypeSeason, Season: "2015-16"}, rep)
	assert.ErrorContains(t, err, "no such file")
	assert.Len(t, rep.errs, 1)

	lineups := &fakeLineups{err: errors.New("deadlock")}
	runner = NewRunner(&fakeSource{games: []*pbp.Game{game("g1")}}, testEnv(), WithLineupStore(lineups))
	_, err = runner.Run(context.Background(), JobSpec{Type: JobTypeSeason, Season: "2015-16", Persist: true, Options: engine.DefaultOptions()}, nil)
	assert.ErrorContains(t, err, "deadlock")
}

func TestEnqueueValidates(t *testing.T) {
	svc := NewService(newMemoryJobs(), nil, engine.DefaultOptions(), nil, logger.Discard())

	_, err := svc.Enqueue(context.Background(), Request{})
	assert.Error(t, err)
	_, err = svc.Enqueue(context.Background(), Request{Season: "nineties"})
	assert.Error(t, err)
	_, err = svc.Enqueue(context.Background(), Request{Season: "16", GameIDs: []string{" ", ""}})
	assert.Error(t, err)

	job, err := svc.Enqueue(context.Background(), Request{Season: "16", GameIDs: []string{"g1", "g1", "g2"}})
	require.NoError(t, err)
	assert.Equal(t, "2015-16", job.Season)
	assert.Equal(t, JobTypeGame, job.JobType)
	assert.Equal(t, []string{"g1", "g2"}, []string(job.GameIDs))
	assert.Equal(t, 2, job.ProgressTotal)
	assert.Equal(t, JobStatusQueued, job.Status)
}

func TestServiceRunsQueuedJob(t *testing.T) {
	jobs := newMemoryJobs()
	timelines := &fakeTimelines{}
	runner := NewRunner(&fakeSource{games: []*pbp.Game{game("g1")}}, testEnv(), WithTimelineStore(timelines))
	svc := NewService(jobs, runner, engine.DefaultOptions(), nil, logger.Discard())
	svc.pollInterval = 10 * time.Millisecond

	job, err := svc.Enqueue(context.Background(), Request{Season: "2015-16", Persist: true})
	require.NoError(t, err)

	svc.Start()
	defer svc.Shutdown(context.Background())

	require.Eventually(t, func() bool {
		return jobs.job(job.JobID).Status.Finished()
	}, 5*time.Second, 10*time.Millisecond)

	done := jobs.job(job.JobID)
	assert.Equal(t, JobStatusCompleted, done.Status)
	assert.Equal(t, 1, done.ProgressCurrent)
	assert.Contains(t, jobs.events[job.JobID], "game")

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Nil(t, status.ActiveJob)
	require.Len(t, status.History, 1)
	assert.Contains(t, timelines.saved, "g1")
}
