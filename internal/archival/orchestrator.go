package archival

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fuelops/internal/domain"
)

const (
	DefaultMonthsToKeep         = 6
	DefaultAuditLogMonthsToKeep = 12
)

// RunOptions configures one orchestrated run. Zero values take the defaults.
type RunOptions struct {
	MonthsToKeep         int
	AuditLogMonthsToKeep int
	DryRun               bool
	Collections          []domain.EntityType // empty means every registered collection
	BatchSize            int
	// ContinueOnError keeps archiving the remaining collections after one
	// fails. By default the run stops at the first failure.
	ContinueOnError bool
}

func (o RunOptions) withDefaults() RunOptions {
	if o.MonthsToKeep <= 0 {
		o.MonthsToKeep = DefaultMonthsToKeep
	}
	if o.AuditLogMonthsToKeep <= 0 {
		o.AuditLogMonthsToKeep = DefaultAuditLogMonthsToKeep
	}
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	return o
}

// Orchestrator runs the archiver across collections, one run at a time.
type Orchestrator struct {
	registry  *Registry
	resolver  *RetentionResolver
	archiver  *CollectionArchiver
	lock      RunLock
	publisher EventPublisher
	notifier  RunNotifier
	now       func() time.Time
	logger    zerolog.Logger
}

type Option func(*Orchestrator)

// WithRunLock replaces the default in-process lock.
func WithRunLock(l RunLock) Option {
	return func(o *Orchestrator) { o.lock = l }
}

func WithEventPublisher(p EventPublisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithNotifier(n RunNotifier) Option {
	return func(o *Orchestrator) { o.notifier = n }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func NewOrchestrator(registry *Registry, resolver *RetentionResolver, jobs domain.JobRepository, opts ...Option) *Orchestrator {
	if resolver == nil {
		resolver = NewRetentionResolver(nil)
	}
	o := &Orchestrator{
		registry: registry,
		resolver: resolver,
		archiver: NewCollectionArchiver(jobs),
		lock:     NewLocalLock(),
		now:      time.Now,
		logger:   log.With().Str("component", "archival.orchestrator").Logger(),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.archiver.now = o.now
	return o
}

type run struct {
	id          uuid.UUID
	opts        RunOptions
	initiatedBy string
	collections []*Collection
	release     func()
}

// Run executes one archival run and blocks until it finishes. The error is
// non-nil only when the run could not start: another run holds the lock, or
// the options name an unknown collection. In that case the returned result
// carries Success=false and the reason.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions, initiatedBy string) (*domain.RunResult, error) {
	r, err := o.begin(ctx, opts, initiatedBy)
	if err != nil {
		res := domain.NewRunResult(opts.DryRun)
		res.Fail(err.Error())
		return res, err
	}
	return o.execute(ctx, r), nil
}

// Start acquires the run lock and validates opts synchronously, then runs in
// the background. ctx governs the whole run, so it must outlive the caller's
// request. The channel receives exactly one result.
func (o *Orchestrator) Start(ctx context.Context, opts RunOptions, initiatedBy string) (uuid.UUID, <-chan *domain.RunResult, error) {
	r, err := o.begin(ctx, opts, initiatedBy)
	if err != nil {
		return uuid.Nil, nil, err
	}

	done := make(chan *domain.RunResult, 1)
	go func() {
		done <- o.execute(ctx, r)
		close(done)
	}()
	return r.id, done, nil
}

func (o *Orchestrator) begin(ctx context.Context, opts RunOptions, initiatedBy string) (*run, error) {
	opts = opts.withDefaults()

	collections, err := o.registry.Select(opts.Collections)
	if err != nil {
		return nil, fmt.Errorf("archival.Orchestrator.Run: %w", err)
	}

	release, err := o.lock.Acquire(ctx)
	if err != nil {
		runsTotal.WithLabelValues(outcomeRejected).Inc()
		return nil, fmt.Errorf("archival.Orchestrator.Run: %w", err)
	}

	return &run{
		id:          uuid.New(),
		opts:        opts,
		initiatedBy: initiatedBy,
		collections: collections,
		release:     release,
	}, nil
}

func (o *Orchestrator) execute(ctx context.Context, r *run) *domain.RunResult {
	defer r.release()
	runInProgress.Set(1)
	defer runInProgress.Set(0)

	start := o.now()
	result := domain.NewRunResult(r.opts.DryRun)
	logger := o.logger.With().
		Str("run_id", r.id.String()).
		Str("initiated_by", r.initiatedBy).
		Bool("dry_run", r.opts.DryRun).
		Logger()

	logger.Info().Int("collections", len(r.collections)).Msg("archival run started")
	o.publish(ctx, RunEvent{Type: EventRunStarted, RunID: r.id, DryRun: r.opts.DryRun, InitiatedBy: r.initiatedBy})

	for _, c := range r.collections {
		if err := ctx.Err(); err != nil {
			result.Fail(fmt.Sprintf("run cancelled before %s: %v", c.Type, err))
			break
		}

		defaultMonths := r.opts.MonthsToKeep
		if c.Class == ClassAuditLog {
			defaultMonths = r.opts.AuditLogMonthsToKeep
		}
		months, enabled := o.resolver.Resolve(ctx, c.Type, defaultMonths)
		if !enabled {
			logger.Info().Str("collection", string(c.Type)).Msg("archival disabled, skipping")
			result.Skipped = append(result.Skipped, c.Type)
			continue
		}

		cr, err := o.archiver.Archive(ctx, ArchiveRequest{
			EntityType:  c.Type,
			Hot:         c.Hot,
			Cold:        c.Cold,
			CutoffDate:  o.now().AddDate(0, -months, 0),
			InitiatedBy: r.initiatedBy,
			DryRun:      r.opts.DryRun,
			BatchSize:   r.opts.BatchSize,
			DateField:   c.DateField,
		})
		if err != nil {
			result.Fail(fmt.Sprintf("%s: %v", c.Type, err))
			o.publish(ctx, RunEvent{Type: EventCollectionFailed, RunID: r.id, Collection: c.Type, DryRun: r.opts.DryRun, Error: err.Error()})
			if !r.opts.ContinueOnError {
				logger.Error().Err(err).Str("collection", string(c.Type)).Msg("aborting run after collection failure")
				break
			}
			continue
		}

		result.CollectionsArchived[c.Type] = cr
		result.TotalRecordsArchived += cr.RecordsArchived
		o.publish(ctx, RunEvent{Type: EventCollectionArchived, RunID: r.id, Collection: c.Type, Records: cr.RecordsArchived, DryRun: r.opts.DryRun})
	}

	result.TotalDuration = o.now().Sub(start)

	if result.Success && !r.opts.DryRun {
		o.compact(ctx, logger, r.collections, result)
	}

	o.finish(ctx, logger, r, result)
	return result
}

// compact hints each store that lost records to reclaim space. Failures are
// logged only.
func (o *Orchestrator) compact(ctx context.Context, logger zerolog.Logger, collections []*Collection, result *domain.RunResult) {
	for _, c := range collections {
		cr, ok := result.CollectionsArchived[c.Type]
		if !ok || cr.RecordsArchived == 0 {
			continue
		}
		if err := c.Hot.Compact(ctx); err != nil {
			logger.Warn().Err(err).Str("collection", string(c.Type)).Msg("compaction hint failed")
		}
	}
}

func (o *Orchestrator) finish(ctx context.Context, logger zerolog.Logger, r *run, result *domain.RunResult) {
	ev := RunEvent{Type: EventRunCompleted, RunID: r.id, Records: result.TotalRecordsArchived, DryRun: r.opts.DryRun, Result: result}

	switch {
	case !result.Success:
		runsTotal.WithLabelValues(outcomeFailure).Inc()
		ev.Type = EventRunFailed
		logger.Error().Strs("errors", result.Errors).
			Int64("archived", result.TotalRecordsArchived).
			Dur("duration", result.TotalDuration).
			Msg("archival run failed")
	case r.opts.DryRun:
		runsTotal.WithLabelValues(outcomeDryRun).Inc()
		logger.Info().Int64("eligible", result.TotalRecordsArchived).
			Dur("duration", result.TotalDuration).
			Msg("archival dry run completed")
	default:
		runsTotal.WithLabelValues(outcomeSuccess).Inc()
		logger.Info().Int64("archived", result.TotalRecordsArchived).
			Dur("duration", result.TotalDuration).
			Msg("archival run completed")
	}

	o.publish(ctx, ev)

	if o.notifier != nil && !r.opts.DryRun {
		if err := o.notifier.NotifyRun(context.WithoutCancel(ctx), r.id, result); err != nil {
			logger.Warn().Err(err).Msg("run notification failed")
		}
	}
}

func (o *Orchestrator) publish(ctx context.Context, ev RunEvent) {
	if o.publisher == nil {
		return
	}
	ev.Timestamp = o.now()
	if err := o.publisher.Publish(context.WithoutCancel(ctx), EventsChannel, ev); err != nil {
		o.logger.Warn().Err(err).Str("event", string(ev.Type)).Msg("publish run event")
	}
}
