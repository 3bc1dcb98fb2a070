// Package scheduler re-resolves persisted games whose lineups could not be reconciled when
// they were first processed.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/fortuna/janus/internal/analytics"
	"github.com/fortuna/janus/internal/engine"
	"github.com/fortuna/janus/internal/pbp"
	"github.com/fortuna/janus/internal/publisher"
	"github.com/fortuna/janus/pkg/logger"
)

// TimelineStore loads and replaces persisted timelines.
type TimelineStore interface {
	GetTimeline(ctx context.Context, gameID string) (*pbp.Game, error)
	SaveTimeline(ctx context.Context, g *pbp.Game, excluded bool) error
}

// MiscountQueue lists the games with recorded miscounts and replaces their records.
type MiscountQueue interface {
	GameIDs(ctx context.Context) ([]string, error)
	Replace(ctx context.Context, gameID string, recs []pbp.MiscountRecord) error
}

// LineupStore keeps each game's contribution to the per-lineup season totals.
type LineupStore interface {
	ReplaceGameResults(ctx context.Context, gameID string, results []analytics.LineupResult) error
}

// Option configures optional orchestrator outputs.
type Option func(*Orchestrator)

// WithLineupStore updates the lineup totals of every re-resolved game.
func WithLineupStore(s LineupStore) Option {
	return func(o *Orchestrator) { o.lineups = s }
}

// Config holds scheduler configuration
type Config struct {
	ReresolveInterval time.Duration // Default: 1h
	DailySchedule     string        // cron spec, default "0 3 * * *"
	EnablePeriodic    bool
	EnableDaily       bool
	MaxRetries        int           // Default: 3
	RetryDelay        time.Duration // Default: 5s
}

// DefaultConfig returns default scheduler configuration
func DefaultConfig() *Config {
	return &Config{
		ReresolveInterval: time.Hour,
		DailySchedule:     "0 3 * * *",
		EnablePeriodic:    true,
		EnableDaily:       true,
		MaxRetries:        3,
		RetryDelay:        5 * time.Second,
	}
}

// Report summarizes one re-resolution pass.
type Report struct {
	Checked   int       `json:"checked"`
	Resolved  int       `json:"resolved"`
	Remaining int       `json:"remaining"`
	Failed    int       `json:"failed"`
	StartedAt time.Time `json:"started_at"`
	Duration  string    `json:"duration"`
}

// Orchestrator periodically reprocesses miscount games. A game whose quarters now reconcile
// is saved with its exclusion lifted.
type Orchestrator struct {
	timelines TimelineStore
	miscounts MiscountQueue
	processor *engine.Processor
	lineups   LineupStore
	sink      publisher.Sink
	config    *Config
	log       *logrus.Entry

	cron   *cron.Cron
	cancel context.CancelFunc

	// one pass at a time; the ticker and the cron job may overlap
	running sync.Mutex

	mu   sync.RWMutex
	last *Report
}

// NewOrchestrator creates a new scheduler orchestrator. sink may be nil.
func NewOrchestrator(timelines TimelineStore, miscounts MiscountQueue, processor *engine.Processor, sink publisher.Sink, config *Config, log logrus.FieldLogger, opts ...Option) *Orchestrator {
	if config == nil {
		config = DefaultConfig()
	}
	if config.MaxRetries < 1 {
		config.MaxRetries = 1
	}
	if log == nil {
		log = logger.GetLogger()
	}
	entry := logger.WithComponent(log, "scheduler")

	o := &Orchestrator{
		timelines: timelines,
		miscounts: miscounts,
		processor: processor,
		sink:      sink,
		config:    config,
		log:       entry,
		cron:      cron.New(cron.WithLogger(cron.PrintfLogger(entry))),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Start runs the scheduled tasks until ctx is cancelled or Stop is called.
func (o *Orchestrator) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	o.mu.Lock()
	o.cancel = cancel
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{
		"periodic": o.config.EnablePeriodic,
		"interval": o.config.ReresolveInterval.String(),
		"daily":    o.config.EnableDaily,
		"schedule": o.config.DailySchedule,
	}).Info("scheduler starting")

	if o.config.EnableDaily {
		_, err := o.cron.AddFunc(o.config.DailySchedule, func() { o.runWithRetry(ctx) })
		if err != nil {
			cancel()
			return fmt.Errorf("schedule daily re-resolution %q: %w", o.config.DailySchedule, err)
		}
		o.cron.Start()
	}

	if o.config.EnablePeriodic && o.config.ReresolveInterval > 0 {
		go o.runPeriodic(ctx)
	}

	<-ctx.Done()
	stopped := o.cron.Stop()
	<-stopped.Done()
	o.log.Info("scheduler stopped")
	return nil
}

func (o *Orchestrator) runPeriodic(ctx context.Context) {
	ticker := time.NewTicker(o.config.ReresolveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			o.runWithRetry(ctx)
		}
	}
}

// runWithRetry retries passes that could not list the queue.
func (o *Orchestrator) runWithRetry(ctx context.Context) {
	for attempt := 1; attempt <= o.config.MaxRetries; attempt++ {
		_, err := o.RunOnce(ctx)
		if err == nil {
			return
		}
		if errors.Is(err, context.Canceled) {
			return
		}
		o.log.WithError(err).WithField("attempt", attempt).Warn("re-resolution pass failed")

		if attempt < o.config.MaxRetries {
			select {
			case <-ctx.Done():
				return
			case <-time.After(o.config.RetryDelay * time.Duration(attempt)):
			}
		}
	}
	o.log.WithField("attempts", o.config.MaxRetries).Error("all re-resolution attempts failed")
}

// RunOnce reprocesses every queued game from its stored events.
func (o *Orchestrator) RunOnce(ctx context.Context) (*Report, error) {
	o.running.Lock()
	defer o.running.Unlock()

	report := &Report{StartedAt: time.Now().UTC()}
	ids, err := o.miscounts.GameIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list miscount games: %w", err)
	}

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		report.Checked++

		resolved, err := o.reresolve(ctx, id)
		switch {
		case err != nil:
			report.Failed++
			logger.WithGame(o.log, id).WithError(err).Warn("re-resolution failed")
		case resolved:
			report.Resolved++
		default:
			report.Remaining++
		}
	}
	report.Duration = time.Since(report.StartedAt).Round(time.Millisecond).String()

	o.mu.Lock()
	o.last = report
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{
		"checked":   report.Checked,
		"resolved":  report.Resolved,
		"remaining": report.Remaining,
		"failed":    report.Failed,
	}).Info("re-resolution pass complete")
	return report, nil
}

func (o *Orchestrator) reresolve(ctx context.Context, gameID string) (bool, error) {
	stored, err := o.timelines.GetTimeline(ctx, gameID)
	if err != nil {
		return false, fmt.Errorf("load timeline: %w", err)
	}

	events := make([]pbp.Event, len(stored.Plays))
	for i, p := range stored.Plays {
		events[i] = p.Event
	}
	g := pbp.NewGame(events)

	// The stored records stay until the new outcome is saved, so a failed pass leaves the
	// game queued.
	res, err := o.processor.Process(ctx, g)
	if err != nil {
		return false, err
	}
	if err := o.timelines.SaveTimeline(ctx, g, res.Excluded()); err != nil {
		return false, fmt.Errorf("save timeline: %w", err)
	}
	if err := o.miscounts.Replace(ctx, gameID, res.Miscounts); err != nil {
		return false, fmt.Errorf("replace miscounts: %w", err)
	}
	if err := o.saveLineups(ctx, res); err != nil {
		return false, err
	}

	if o.sink != nil {
		if err := o.sink.PublishGame(ctx, publisher.Summarize(res)); err != nil {
			logger.WithGame(o.log, gameID).WithError(err).Warn("failed to publish re-resolved game")
		}
	}
	return !res.Excluded(), nil
}

func (o *Orchestrator) saveLineups(ctx context.Context, res *engine.Result) error {
	opts := o.processor.Options()
	if o.lineups == nil || !opts.Lineups || !opts.Possessions {
		return nil
	}
	var results []analytics.LineupResult
	if len(o.processor.Kept(&engine.Batch{Results: []*engine.Result{res}})) > 0 {
		results = analytics.LineupResults(res.Game)
	}
	if err := o.lineups.ReplaceGameResults(ctx, res.Game.ID, results); err != nil {
		return fmt.Errorf("save lineup results: %w", err)
	}
	return nil
}

// Stop gracefully stops the scheduler
func (o *Orchestrator) Stop() {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.cancel != nil {
		o.cancel()
	}
}

// GetStatus returns current scheduler status
func (o *Orchestrator) GetStatus() map[string]interface{} {
	o.mu.RLock()
	defer o.mu.RUnlock()

	status := map[string]interface{}{
		"periodic_enabled":   o.config.EnablePeriodic,
		"reresolve_interval": o.config.ReresolveInterval.String(),
		"daily_enabled":      o.config.EnableDaily,
		"daily_schedule":     o.config.DailySchedule,
	}
	if o.last != nil {
		status["last_run"] = *o.last
	}
	return status
}
