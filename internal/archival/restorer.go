package archival

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fuelops/internal/domain"
)

// ErrRestoreConflict is returned when a restored identity already exists in
// the hot store under domain.ConflictFail.
var ErrRestoreConflict = errors.New("archival: restore conflict") //nolint:gochecknoglobals // sentinel error

type RestoreRequest struct {
	EntityType domain.EntityType
	// StartDate and EndDate bound ArchivedAt, inclusive. Nil means unbounded.
	StartDate  *time.Time
	EndDate    *time.Time
	OnConflict domain.ConflictPolicy // defaults to domain.ConflictFail
	BatchSize  int
}

type RestoreResult struct {
	RecordsRestored int64         `json:"records_restored"`
	RecordsSkipped  int64         `json:"records_skipped"`
	Duration        time.Duration `json:"duration"`
}

// Restorer moves archived records back into their hot store.
type Restorer struct {
	registry *Registry
	lock     RunLock
	logger   zerolog.Logger
}

// NewRestorer creates a restorer. Pass the orchestrator's lock so restores and
// archival runs exclude each other.
func NewRestorer(registry *Registry, lock RunLock) *Restorer {
	if lock == nil {
		lock = NewLocalLock()
	}
	return &Restorer{
		registry: registry,
		lock:     lock,
		logger:   log.With().Str("component", "archival.restorer").Logger(),
	}
}

// Restore reinserts matching archived records under their original IDs and
// removes them from the cold store once the hot write for their batch
// succeeded. Under ConflictSkip a colliding record keeps its archived copy.
func (r *Restorer) Restore(ctx context.Context, req RestoreRequest) (RestoreResult, error) {
	var result RestoreResult

	if req.OnConflict == "" {
		req.OnConflict = domain.ConflictFail
	}
	if !req.OnConflict.Valid() {
		return result, fmt.Errorf("archival.Restorer.Restore: conflict policy %q: %w", req.OnConflict, ErrInvalidRequest)
	}
	if req.StartDate != nil && req.EndDate != nil && req.StartDate.After(*req.EndDate) {
		return result, fmt.Errorf("archival.Restorer.Restore: start after end: %w", ErrInvalidRequest)
	}
	if req.BatchSize <= 0 {
		req.BatchSize = DefaultBatchSize
	}

	c, err := r.registry.Get(req.EntityType)
	if err != nil {
		return result, fmt.Errorf("archival.Restorer.Restore: %w", err)
	}

	release, err := r.lock.Acquire(ctx)
	if err != nil {
		return result, fmt.Errorf("archival.Restorer.Restore: %w", err)
	}
	defer release()

	start := time.Now()
	logger := r.logger.With().
		Str("collection", string(c.Type)).
		Str("on_conflict", string(req.OnConflict)).
		Logger()

	cursor := uuid.Nil
	for {
		if err := ctx.Err(); err != nil {
			return result, fmt.Errorf("archival.Restorer.Restore: %w", err)
		}

		batch, err := c.Cold.FindArchived(ctx, domain.ArchivedQuery{
			ArchivedFrom: req.StartDate,
			ArchivedTo:   req.EndDate,
			After:        cursor,
			Limit:        req.BatchSize,
		})
		if err != nil {
			return result, fmt.Errorf("archival.Restorer.Restore: find archived: %w", err)
		}
		if len(batch) == 0 {
			break
		}

		records := make([]*domain.Record, len(batch))
		for i, a := range batch {
			records[i] = a.Restored()
		}

		written, err := c.Hot.Restore(ctx, records, req.OnConflict)
		if err != nil {
			if errors.Is(err, domain.ErrConflict) {
				return result, fmt.Errorf("archival.Restorer.Restore: %w: %w", ErrRestoreConflict, err)
			}
			return result, fmt.Errorf("archival.Restorer.Restore: write hot: %w", err)
		}

		if len(written) > 0 {
			if _, err := c.Cold.DeleteByOriginalIDs(ctx, written); err != nil {
				return result, fmt.Errorf("archival.Restorer.Restore: delete restored from cold: %w", err)
			}
		}

		result.RecordsRestored += int64(len(written))
		result.RecordsSkipped += int64(len(batch) - len(written))
		recordsRestoredTotal.WithLabelValues(string(c.Type)).Add(float64(len(written)))
		cursor = batch[len(batch)-1].OriginalID

		logger.Debug().
			Int64("restored", result.RecordsRestored).
			Int64("skipped", result.RecordsSkipped).
			Msg("restore batch done")

		if len(batch) < req.BatchSize {
			break
		}
	}

	result.Duration = time.Since(start)
	logger.Info().
		Int64("restored", result.RecordsRestored).
		Int64("skipped", result.RecordsSkipped).
		Dur("duration", result.Duration).
		Msg("restore completed")
	return result, nil
}
