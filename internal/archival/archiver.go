package archival

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fuelops/internal/domain"
)

const DefaultBatchSize = 1000

// ArchivedReason describes the cutoff a pass archived under.
func ArchivedReason(dateField string, cutoff time.Time) string {
	return fmt.Sprintf("archived by retention policy: %s older than %s", dateField, cutoff.Format(time.DateOnly))
}

// ArchiveRequest describes one archival pass over one entity type.
type ArchiveRequest struct {
	EntityType  domain.EntityType
	Hot         domain.HotStore
	Cold        domain.ColdStore
	CutoffDate  time.Time
	InitiatedBy string
	DryRun      bool
	BatchSize   int    // defaults to DefaultBatchSize
	DateField   string // defaults to domain.DateFieldCreatedAt
}

// CollectionArchiver moves eligible records of one entity type from the hot
// store to the cold store in bounded batches.
type CollectionArchiver struct {
	jobs   domain.JobRepository
	now    func() time.Time
	logger zerolog.Logger
}

func NewCollectionArchiver(jobs domain.JobRepository) *CollectionArchiver {
	return &CollectionArchiver{
		jobs:   jobs,
		now:    time.Now,
		logger: log.With().Str("component", "archival.archiver").Logger(),
	}
}

// Archive runs one pass. A record leaves the hot store only after the cold
// store confirmed its insert; records whose insert failed stay hot and are
// picked up by a later run. Dry runs only count and write nothing, not even a
// job record.
func (a *CollectionArchiver) Archive(ctx context.Context, req ArchiveRequest) (domain.CollectionResult, error) {
	if req.EntityType == "" || req.Hot == nil || req.Cold == nil {
		return domain.CollectionResult{}, fmt.Errorf("archival.CollectionArchiver.Archive: %w", ErrInvalidRequest)
	}
	if req.BatchSize <= 0 {
		req.BatchSize = DefaultBatchSize
	}
	if req.DateField == "" {
		req.DateField = domain.DateFieldCreatedAt
	}

	start := a.now()
	result := domain.CollectionResult{CutoffDate: req.CutoffDate}
	logger := a.logger.With().
		Str("collection", string(req.EntityType)).
		Time("cutoff", req.CutoffDate).
		Bool("dry_run", req.DryRun).
		Logger()

	var job *domain.ArchiveJob
	if !req.DryRun {
		job = &domain.ArchiveJob{
			ID:             uuid.New(),
			CollectionName: req.EntityType,
			CutoffDate:     req.CutoffDate,
			InitiatedBy:    req.InitiatedBy,
			Status:         domain.JobStatusInProgress,
			StartedAt:      start,
		}
		if err := a.jobs.Create(ctx, job); err != nil {
			return result, fmt.Errorf("archival.CollectionArchiver.Archive: create job: %w", err)
		}
	}

	total, err := req.Hot.CountEligible(ctx, req.DateField, req.CutoffDate)
	if err != nil {
		return result, a.fail(ctx, job, 0, start, fmt.Errorf("count eligible: %w", err))
	}

	logger.Info().Int64("eligible", total).Msg("archival pass started")

	if total == 0 || req.DryRun {
		result.RecordsArchived = total
		if req.DryRun {
			result.Duration = a.now().Sub(start)
			return result, nil
		}
		return a.complete(ctx, job, result, start)
	}

	var (
		archived  int64
		processed int64
		cursor    = uuid.Nil
		batchNo   int
	)
	for {
		if err := ctx.Err(); err != nil {
			return result, a.fail(ctx, job, archived, start, err)
		}

		batch, err := req.Hot.FindEligible(ctx, domain.EligibleQuery{
			DateField: req.DateField,
			Cutoff:    req.CutoffDate,
			After:     cursor,
			Limit:     req.BatchSize,
		})
		if err != nil {
			return result, a.fail(ctx, job, archived, start, fmt.Errorf("find batch after %s: %w", cursor, err))
		}
		if len(batch) == 0 {
			break
		}
		batchNo++

		n, err := a.moveBatch(ctx, logger, req, batch)
		if err != nil {
			return result, a.fail(ctx, job, archived, start, fmt.Errorf("batch %d: %w", batchNo, err))
		}
		archived += n
		processed += int64(len(batch))
		cursor = batch[len(batch)-1].ID

		logger.Info().
			Int("batch", batchNo).
			Int64("archived", archived).
			Float64("progress_pct", progress(processed, total)).
			Msg("batch archived")

		if len(batch) < req.BatchSize {
			break
		}
	}

	result.RecordsArchived = archived
	recordsArchivedTotal.WithLabelValues(string(req.EntityType)).Add(float64(archived))
	return a.complete(ctx, job, result, start)
}

// moveBatch copies batch into cold storage and deletes from hot storage only
// the identities the cold store confirmed. Identities the cold store already
// held are confirmed too when the archived copy matches the hot record.
func (a *CollectionArchiver) moveBatch(ctx context.Context, logger zerolog.Logger, req ArchiveRequest, batch []*domain.Record) (int64, error) {
	archivedAt := a.now()
	reason := ArchivedReason(req.DateField, req.CutoffDate)
	docs := make([]*domain.ArchivedRecord, len(batch))
	for i, r := range batch {
		docs[i] = r.ToArchived(archivedAt, reason)
	}

	res, err := req.Cold.InsertBatch(ctx, docs)
	if err != nil {
		return 0, fmt.Errorf("insert into cold store: %w", err)
	}

	var conflicts []uuid.UUID
	for id, ferr := range res.Failed {
		if errors.Is(ferr, domain.ErrConflict) {
			conflicts = append(conflicts, id)
			continue
		}
		logger.Warn().Err(ferr).Str("record_id", id.String()).Msg("cold insert failed, record kept in hot store")
	}
	settled := a.reconcile(ctx, logger, req.Cold, batch, conflicts)
	if failed := len(res.Failed) - len(settled); failed > 0 {
		insertFailuresTotal.WithLabelValues(string(req.EntityType)).Add(float64(failed))
	}

	confirmed := make([]uuid.UUID, 0, len(res.Inserted)+len(settled))
	confirmed = append(confirmed, res.Inserted...)
	confirmed = append(confirmed, settled...)
	if len(confirmed) == 0 {
		return 0, nil
	}

	if _, err := req.Hot.DeleteByIDs(ctx, confirmed); err != nil {
		return 0, fmt.Errorf("delete %d archived records from hot store: %w", len(confirmed), err)
	}
	return int64(len(confirmed)), nil
}

// reconcile returns the conflicting identities whose existing archived copy
// matches the hot record. Those were archived by an earlier pass that never
// got to delete them. A failed lookup settles nothing.
func (a *CollectionArchiver) reconcile(ctx context.Context, logger zerolog.Logger, cold domain.ColdStore, batch []*domain.Record, ids []uuid.UUID) []uuid.UUID {
	if len(ids) == 0 {
		return nil
	}

	existing, err := cold.FindByOriginalIDs(ctx, ids)
	if err != nil {
		logger.Warn().Err(err).Int("records", len(ids)).Msg("lookup of already archived records failed, records kept in hot store")
		return nil
	}

	hot := make(map[uuid.UUID]*domain.Record, len(batch))
	for _, r := range batch {
		hot[r.ID] = r
	}
	matched := make(map[uuid.UUID]bool, len(existing))
	for _, doc := range existing {
		if r, ok := hot[doc.OriginalID]; ok && sameDocument(r, doc) {
			matched[doc.OriginalID] = true
		}
	}

	settled := make([]uuid.UUID, 0, len(matched))
	for _, id := range ids {
		if matched[id] {
			settled = append(settled, id)
			continue
		}
		logger.Warn().Str("record_id", id.String()).Msg("archived copy differs from hot record, record kept in hot store")
	}
	if len(settled) > 0 {
		logger.Info().Int("records", len(settled)).Msg("reconciled records already present in cold store")
	}
	return settled
}

func sameDocument(r *domain.Record, doc *domain.ArchivedRecord) bool {
	if r.IsDeleted != doc.IsDeleted || !r.Timestamp.Equal(doc.Timestamp) {
		return false
	}
	a, err := json.Marshal(r.Payload)
	if err != nil {
		return false
	}
	b, err := json.Marshal(doc.Payload)
	if err != nil {
		return false
	}
	return bytes.Equal(a, b)
}

func (a *CollectionArchiver) complete(ctx context.Context, job *domain.ArchiveJob, result domain.CollectionResult, start time.Time) (domain.CollectionResult, error) {
	end := a.now()
	result.Duration = end.Sub(start)
	collectionDurationSeconds.WithLabelValues(string(job.CollectionName)).Observe(result.Duration.Seconds())

	job.Status = domain.JobStatusCompleted
	job.RecordsArchived = result.RecordsArchived
	job.Duration = result.Duration
	job.CompletedAt = &end
	if err := a.jobs.Finish(ctx, job); err != nil {
		a.logger.Warn().Err(err).Str("job_id", job.ID.String()).Msg("failed to record job completion, retrying")
		if err := a.jobs.Finish(context.WithoutCancel(ctx), job); err != nil {
			a.logger.Error().Err(err).Str("job_id", job.ID.String()).Msg("job left in progress after records were archived")
			return result, fmt.Errorf("archival.CollectionArchiver.Archive: complete job %s: %w", job.ID, err)
		}
	}

	a.logger.Info().
		Str("collection", string(job.CollectionName)).
		Int64("archived", result.RecordsArchived).
		Dur("duration", result.Duration).
		Msg("archival pass completed")
	return result, nil
}

// fail marks the job failed with the records of fully processed batches.
// The job write ignores ctx cancellation so a cancelled run still leaves a
// terminal job record.
func (a *CollectionArchiver) fail(ctx context.Context, job *domain.ArchiveJob, archived int64, start time.Time, cause error) error {
	err := fmt.Errorf("archival.CollectionArchiver.Archive: %w", cause)
	if job == nil {
		return err
	}

	end := a.now()
	job.Status = domain.JobStatusFailed
	job.RecordsArchived = archived
	job.Duration = end.Sub(start)
	job.CompletedAt = &end
	job.Error = cause.Error()
	if archived > 0 {
		recordsArchivedTotal.WithLabelValues(string(job.CollectionName)).Add(float64(archived))
	}

	if ferr := a.jobs.Finish(context.WithoutCancel(ctx), job); ferr != nil {
		a.logger.Error().Err(ferr).Str("job_id", job.ID.String()).Msg("failed to record job failure")
	}
	a.logger.Error().Err(cause).
		Str("collection", string(job.CollectionName)).
		Int64("archived", archived).
		Msg("archival pass failed")
	return err
}

func progress(done, total int64) float64 {
	if total <= 0 {
		return 100
	}
	pct := float64(done) * 100 / float64(total)
	if pct > 100 {
		pct = 100
	}
	return pct
}
