package archival

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fuelops/internal/domain"
)

// DefaultSchedule fires at 02:00 on the first day of every month.
const DefaultSchedule = "0 2 1 * *"

const scheduledBy = "scheduler"

// Runner is the part of Orchestrator the scheduler needs.
type Runner interface {
	Run(ctx context.Context, opts RunOptions, initiatedBy string) (*domain.RunResult, error)
}

// Scheduler triggers archival runs on a cron schedule.
type Scheduler struct {
	runner   Runner
	schedule string
	opts     RunOptions
	cron     *cron.Cron
	parsed   cron.Schedule
	mu       sync.Mutex
	logger   zerolog.Logger
	running  bool
}

func NewScheduler(runner Runner, schedule string, opts RunOptions) *Scheduler {
	return &Scheduler{
		runner:   runner,
		schedule: schedule,
		opts:     opts,
		cron:     cron.New(),
		logger:   log.With().Str("component", "archival.scheduler").Logger(),
	}
}

// Start registers the schedule and starts the cron loop. An empty schedule
// disables scheduled runs. The scheduler stops when ctx is done.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.schedule == "" {
		s.logger.Info().Msg("archival schedule not configured, scheduler disabled")
		return nil
	}

	parsed, err := cron.ParseStandard(s.schedule)
	if err != nil {
		return fmt.Errorf("archival.Scheduler.Start: invalid cron schedule %q: %w", s.schedule, err)
	}
	s.parsed = parsed

	if _, err := s.cron.AddFunc(s.schedule, func() { s.runOnce(ctx) }); err != nil {
		return fmt.Errorf("archival.Scheduler.Start: %w", err)
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().Str("schedule", s.schedule).Msg("archival scheduler started")

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

func (s *Scheduler) runOnce(ctx context.Context) {
	s.logger.Info().Msg("starting scheduled archival run")

	result, err := s.runner.Run(ctx, s.opts, scheduledBy)
	switch {
	case IsRunInProgress(err):
		s.logger.Warn().Msg("previous archival run still in progress, skipping")
	case err != nil:
		s.logger.Error().Err(err).Msg("scheduled archival run could not start")
	case !result.Success:
		s.logger.Error().Strs("errors", result.Errors).Msg("scheduled archival run failed")
	default:
		s.logger.Info().Int64("archived", result.TotalRecordsArchived).Msg("scheduled archival run completed")
	}
}

// Stop stops the cron loop and waits for a running job to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		<-s.cron.Stop().Done()
		s.running = false
		s.logger.Info().Msg("archival scheduler stopped")
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// NextRun returns the next scheduled fire time, or nil when not scheduled.
func (s *Scheduler) NextRun() *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running || s.parsed == nil {
		return nil
	}
	next := s.parsed.Next(time.Now())
	return &next
}

// Schedule returns the configured cron expression.
func (s *Scheduler) Schedule() string {
	return s.schedule
}
