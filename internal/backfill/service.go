package backfill

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fortuna/janus/internal/engine"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/pkg/logger"
	"github.com/fortuna/janus/pkg/metrics"
)

// Request represents a backfill invocation request.
type Request struct {
	Season  string
	GameIDs []string
	Persist bool
}

// DeriveType infers the job type based on populated fields.
func (r Request) DeriveType() (JobType, error) {
	if strings.TrimSpace(r.Season) == "" {
		return "", fmt.Errorf("request requires a season")
	}
	if len(r.GameIDs) > 0 {
		return JobTypeGame, nil
	}
	return JobTypeSeason, nil
}

// Service coordinates job persistence, execution, and status reporting.
type Service struct {
	repo    JobStore
	runner  *Runner
	opts    engine.Options
	metrics *metrics.Manager

	historyLimit int
	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	log *logrus.Entry
}

// NewService constructs a Service. Call Start to launch workers.
func NewService(repo JobStore, runner *Runner, opts engine.Options, m *metrics.Manager, log logrus.FieldLogger) *Service {
	ctx, cancel := context.WithCancel(context.Background())
	if log == nil {
		log = logger.GetLogger()
	}

	return &Service{
		repo:         repo,
		runner:       runner,
		opts:         opts,
		metrics:      m,
		historyLimit: 10,
		pollInterval: 3 * time.Second,
		ctx:          ctx,
		cancel:       cancel,
		log:          logger.WithComponent(log, "backfill"),
	}
}

// Start launches the background worker loop.
func (s *Service) Start() {
	if err := s.repo.ResetStuckJobs(s.ctx); err != nil {
		s.log.WithError(err).Warn("failed to reset jobs")
	}

	s.wg.Add(1)
	go s.worker()
}

// Shutdown stops workers and waits for completion.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.wg.Wait()
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Enqueue creates a new job from the provided request.
func (s *Service) Enqueue(ctx context.Context, req Request) (*Job, error) {
	jobType, err := req.DeriveType()
	if err != nil {
		return nil, err
	}
	season, ok := pbp.NormalizeSeason(req.Season)
	if !ok {
		return nil, fmt.Errorf("invalid season %q", req.Season)
	}

	job := &Job{
		JobType:       jobType,
		Season:        season,
		Persist:       req.Persist,
		Status:        JobStatusQueued,
		StatusMessage: sql.NullString{String: "Queued", Valid: true},
	}
	if jobType == JobTypeGame {
		job.GameIDs = dedupe(req.GameIDs)
		if len(job.GameIDs) == 0 {
			return nil, fmt.Errorf("game job requires at least one game id")
		}
		job.ProgressTotal = len(job.GameIDs)
	}

	stored, err := s.repo.CreateJob(ctx, job)
	if err != nil {
		return nil, err
	}

	_ = s.repo.AppendEvent(ctx, stored.JobID, "queued", "Job queued", nil, nil)
	s.log.WithFields(logrus.Fields{"job_id": stored.JobID, "type": jobType, "season": season}).Info("job queued")

	return stored, nil
}

// GetStatus returns the currently running job plus recent history.
func (s *Service) GetStatus(ctx context.Context) (*StatusSummary, error) {
	active, err := s.repo.GetActiveJob(ctx)
	if err != nil {
		return nil, err
	}

	history, err := s.repo.ListRecentJobs(ctx, s.historyLimit)
	if err != nil {
		return nil, err
	}

	return &StatusSummary{
		ActiveJob: active,
		History:   history,
	}, nil
}

func (s *Service) worker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		default:
		}

		job, err := s.repo.MarkNextJobRunning(s.ctx)
		if err != nil {
			s.log.WithError(err).Error("claim job error")
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
			}
			continue
		}
		if job == nil {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				continue
			}
		}

		s.executeJob(job)
	}
}

func (s *Service) executeJob(job *Job) {
	log := s.log.WithField("job_id", job.JobID)

	spec, err := s.buildSpec(job)
	if err != nil {
		log.WithError(err).Error("invalid job spec")
		s.finish(job.JobID, JobStatusFailed, "Invalid job specification", err)
		return
	}

	reporter := &jobReporter{
		ctx:   s.ctx,
		repo:  s.repo,
		jobID: job.JobID,
		total: job.ProgressTotal,
	}

	summary, err := s.runner.Run(s.ctx, spec, reporter)
	if err != nil {
		if s.ctx.Err() != nil {
			// Left running so ResetStuckJobs requeues it on the next start.
			log.Warn("job interrupted by shutdown")
			return
		}
		log.WithError(err).Error("job failed")
		s.finish(job.JobID, JobStatusFailed, "Job failed", err)
		return
	}

	msg := fmt.Sprintf("Job completed: %d games, %d kept, %d miscounts, %d failed",
		summary.Games, summary.Kept, summary.Miscounts, summary.Failed)
	s.finish(job.JobID, JobStatusCompleted, msg, nil)
}

func (s *Service) finish(jobID string, status JobStatus, message string, err error) {
	if uerr := s.repo.UpdateStatus(s.ctx, jobID, status, message, err); uerr != nil {
		s.log.WithError(uerr).WithField("job_id", jobID).Error("failed to update job status")
	}
	s.metrics.RecordBackfillJob(string(status))
}

func (s *Service) buildSpec(job *Job) (JobSpec, error) {
	spec := JobSpec{
		Type:    job.JobType,
		Season:  job.Season,
		Persist: job.Persist,
		Options: s.opts,
	}

	switch job.JobType {
	case JobTypeGame:
		if len(job.GameIDs) == 0 {
			return spec, fmt.Errorf("game job missing game_ids")
		}
		spec.GameIDs = job.GameIDs
	case JobTypeSeason:
		if job.Season == "" {
			return spec, fmt.Errorf("season job missing season")
		}
	default:
		return spec, fmt.Errorf("unknown job type %s", job.JobType)
	}

	return spec, nil
}

type jobReporter struct {
	ctx   context.Context
	repo  JobStore
	jobID string
	total int
}

func (r *jobReporter) OnJobStart(spec JobSpec) {
	if r.total == 0 {
		r.total = len(spec.GameIDs)
	}
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, 0, r.total, "Job starting")
}

func (r *jobReporter) OnGameProcessed(res *engine.Result) {
	switch {
	case res.Err != nil:
		_ = r.repo.AppendEvent(r.ctx, r.jobID, "game_failed", fmt.Sprintf("Game %s failed: %v", res.Game.ID, res.Err), nil, nil)
	case len(res.Miscounts) > 0:
		_ = r.repo.AppendEvent(r.ctx, r.jobID, "miscount",
			fmt.Sprintf("Game %s has %d unresolved quarters", res.Game.ID, len(res.Miscounts)), nil, nil)
	default:
		_ = r.repo.AppendEvent(r.ctx, r.jobID, "game", fmt.Sprintf("Game %s processed", res.Game.ID), nil, nil)
	}
}

func (r *jobReporter) OnProgress(message string, current int, total int) {
	if total > 0 {
		r.total = total
	}
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, current, r.total, message)
}

func (r *jobReporter) OnJobComplete(s Summary) {
	_ = r.repo.UpdateProgress(r.ctx, r.jobID, r.total, r.total, "Job complete")
}

func (r *jobReporter) OnJobError(err error) {
	_ = r.repo.AppendEvent(r.ctx, r.jobID, "error", err.Error(), nil, nil)
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	var out []string
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
