package backfill

import (
	"database/sql"
	"time"

	"github.com/lib/pq"

	"github.com/fortuna/janus/internal/engine"
)

// JobType enumerates the supported backfill job variants.
type JobType string

const (
	JobTypeSeason JobType = "season"
	JobTypeGame   JobType = "game"
)

// JobStatus represents the lifecycle state for a job.
type JobStatus string

const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusRunning   JobStatus = "running"
	JobStatusCompleted JobStatus = "completed"
	JobStatusFailed    JobStatus = "failed"
	JobStatusCancelled JobStatus = "cancelled"
)

// Finished reports whether the job can no longer change.
func (s JobStatus) Finished() bool {
	return s == JobStatusCompleted || s == JobStatusFailed || s == JobStatusCancelled
}

// Job models the database representation of a backfill job.
type Job struct {
	JobID           string
	JobType         JobType
	Season          string
	GameIDs         pq.StringArray
	Persist         bool
	Status          JobStatus
	StatusMessage   sql.NullString
	ProgressCurrent int
	ProgressTotal   int
	LastError       sql.NullString
	RetryCount      int
	CreatedAt       time.Time
	UpdatedAt       time.Time
	StartedAt       sql.NullTime
	CompletedAt     sql.NullTime
}

// Copy returns a shallow copy to prevent external mutation.
func (j *Job) Copy() *Job {
	if j == nil {
		return nil
	}
	cpy := *j
	cpy.GameIDs = append(pq.StringArray(nil), j.GameIDs...)
	return &cpy
}

// JobSpec describes the work to be performed by the runner.
type JobSpec struct {
	Type    JobType
	Season  string
	GameIDs []string
	Persist bool
	Options engine.Options
}

// Summary counts the outcome of one run.
type Summary struct {
	Games     int `json:"games"`
	Kept      int `json:"kept"`
	Miscounts int `json:"miscounts"`
	Failed    int `json:"failed"`
	Lineups   int `json:"lineups"`
}

// Reporter receives lifecycle callbacks from the runner.
type Reporter interface {
	OnJobStart(spec JobSpec)
	OnGameProcessed(res *engine.Result)
	OnProgress(message string, current int, total int)
	OnJobComplete(s Summary)
	OnJobError(err error)
}

// StatusSummary is returned to API callers.
type StatusSummary struct {
	ActiveJob *Job   `json:"active_job,omitempty"`
	History   []*Job `json:"recent_jobs,omitempty"`
}
