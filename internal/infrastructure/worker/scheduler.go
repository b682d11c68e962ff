package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/service"
)

// Job is one periodic task run by the scheduler
type Job struct {
	Name    string
	Spec    string
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Scheduler runs jobs on cron expressions. Overlapping runs of the same job
// are skipped.
type Scheduler struct {
	cron   *cron.Cron
	jobs   map[string]Job
	logger *zap.Logger

	mu      sync.RWMutex
	running bool
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewScheduler creates a scheduler using standard five-field cron specs
func NewScheduler(location *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if location == nil {
		location = time.Local
	}
	cronLogger := cron.PrintfLogger(zap.NewStdLog(logger))
	return &Scheduler{
		cron: cron.New(
			cron.WithLocation(location),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		jobs:   make(map[string]Job),
		logger: logger,
		ctx:    context.Background(),
	}
}

// Add registers a job. Names must be unique.
func (s *Scheduler) Add(job Job) error {
	if job.Name == "" || job.Run == nil {
		return fmt.Errorf("job requires a name and a run function")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("job %q already registered", job.Name)
	}

	if _, err := s.cron.AddFunc(job.Spec, func() { s.execute(job) }); err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", job.Spec, job.Name, err)
	}
	s.jobs[job.Name] = job

	s.logger.Info("Scheduled job registered",
		zap.String("job", job.Name),
		zap.String("spec", job.Spec))
	return nil
}

// RunNow executes a registered job synchronously
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.RLock()
	job, ok := s.jobs[name]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("unknown job %q", name)
	}
	return s.run(ctx, job)
}

// Start implements Worker
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()

	s.logger.Info("Scheduler started", zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop implements Worker. It waits for running jobs to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	done := s.cron.Stop()
	if cancel != nil {
		cancel()
	}
	<-done.Done()

	s.logger.Info("Scheduler stopped")
	return nil
}

// Name implements Worker
func (s *Scheduler) Name() string {
	return "Scheduler"
}

func (s *Scheduler) execute(job Job) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	if err := s.run(ctx, job); err != nil {
		s.logger.Error("Scheduled job failed",
			zap.String("job", job.Name),
			zap.Error(err))
	}
}

func (s *Scheduler) run(ctx context.Context, job Job) error {
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	start := time.Now()
	err := job.Run(ctx)
	s.logger.Debug("Scheduled job finished",
		zap.String("job", job.Name),
		zap.Duration("elapsed", time.Since(start)),
		zap.Bool("ok", err == nil))
	return err
}

// SweepRecorder counts documents acted on by a sweep
type SweepRecorder interface {
	SweepProcessed(sweep, action string, n int)
}

type nopRecorder struct{}

func (nopRecorder) SweepProcessed(string, string, int) {}

// Job names
const (
	JobAutoCancel = "auto_cancel"
	JobReminders  = "delivery_reminders"
)

// AutoCancelJob wraps the auto-cancel sweep
func AutoCancelJob(spec string, svc *service.AutoCancelService, recorder SweepRecorder, logger *zap.Logger) Job {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return Job{
		Name:    JobAutoCancel,
		Spec:    spec,
		Timeout: 10 * time.Minute,
		Run: func(ctx context.Context) error {
			result, err := svc.Sweep(ctx)
			if err != nil {
				return err
			}
			recorder.SweepProcessed(JobAutoCancel, "warned", len(result.Warned))
			recorder.SweepProcessed(JobAutoCancel, "canceled", len(result.Canceled))
			recorder.SweepProcessed(JobAutoCancel, "failed", result.Failed)
			if logger != nil {
				logger.Info("Auto-cancel sweep completed",
					zap.Int("scanned", result.Scanned),
					zap.Int("warned", len(result.Warned)),
					zap.Int("canceled", len(result.Canceled)),
					zap.Int("failed", result.Failed))
			}
			return nil
		},
	}
}

// ReminderJob wraps the delivery reminder sweep
func ReminderJob(spec string, svc *service.ReminderService, recorder SweepRecorder, logger *zap.Logger) Job {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return Job{
		Name:    JobReminders,
		Spec:    spec,
		Timeout: 10 * time.Minute,
		Run: func(ctx context.Context) error {
			result, err := svc.Sweep(ctx)
			if err != nil {
				return err
			}
			recorder.SweepProcessed(JobReminders, "scheduled", len(result.Scheduled))
			recorder.SweepProcessed(JobReminders, "sent", len(result.Sent))
			recorder.SweepProcessed(JobReminders, "cleared", len(result.Cleared))
			recorder.SweepProcessed(JobReminders, "failed", result.Failed)
			if logger != nil {
				logger.Info("Reminder sweep completed",
					zap.Int("scanned", result.Scanned),
					zap.Int("scheduled", len(result.Scheduled)),
					zap.Int("sent", len(result.Sent)),
					zap.Int("cleared", len(result.Cleared)),
					zap.Int("failed", result.Failed))
			}
			return nil
		},
	}
}
