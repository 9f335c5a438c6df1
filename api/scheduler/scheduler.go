package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/linesmerrill/commute-permit-api/expiration"
)

// Job is the unit of work run on every tick
type Job interface {
	Run(ctx context.Context) (expiration.RunResult, error)
}

// cronLogger routes cron's own messages to the global zap logger
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	zap.S().Debugw(msg, keysAndValues...)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	zap.S().Errorw(msg, append(keysAndValues, "error", err)...)
}

// Scheduler runs the expiration check on a cron schedule
type Scheduler struct {
	cron    *cron.Cron
	job     cron.Job
	Job     Job
	Spec    string
	Timeout time.Duration
	entryID cron.EntryID
}

// NewScheduler creates a new scheduler instance. spec is a standard five
// field cron expression evaluated in loc.
func NewScheduler(job Job, spec string, timeout time.Duration, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	s := &Scheduler{
		cron:    cron.New(cron.WithLocation(loc), cron.WithLogger(cronLogger{})),
		Job:     job,
		Spec:    spec,
		Timeout: timeout,
	}
	// a panicking check is logged instead of taking the server down
	s.job = cron.NewChain(
		cron.Recover(cronLogger{}),
		cron.SkipIfStillRunning(cronLogger{}),
	).Then(cron.FuncJob(s.runExpirationCheck))
	return s
}

// Start registers the expiration check and starts the cron loop
func (s *Scheduler) Start() error {
	id, err := s.cron.AddJob(s.Spec, s.job)
	if err != nil {
		zap.S().Errorw("failed to register expiration check job", "schedule", s.Spec, "error", err)
		return err
	}
	s.entryID = id
	s.cron.Start()
	zap.S().Infow("expiration scheduler started", "schedule", s.Spec, "next", s.Next())
	return nil
}

// Next returns the next planned run, or the zero time when not started
func (s *Scheduler) Next() time.Time {
	return s.cron.Entry(s.entryID).Next
}

// Stop gracefully stops the scheduler
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	zap.S().Info("expiration scheduler stopped")
}

func (s *Scheduler) runExpirationCheck() {
	ctx := context.Background()
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	start := time.Now()
	result, err := s.Job.Run(ctx)
	if errors.Is(err, expiration.ErrRunInProgress) {
		zap.S().Warnw("scheduled expiration check skipped", "error", err)
		return
	}
	if err != nil {
		zap.S().Errorw("scheduled expiration check failed", "error", err, "elapsed", time.Since(start))
		return
	}
	zap.S().Infow("scheduled expiration check complete",
		"sent", result.Sent,
		"skipped", result.Skipped,
		"failed", result.Failed,
		"elapsed", time.Since(start),
	)
}
