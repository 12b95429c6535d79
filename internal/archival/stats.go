package archival

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/gosuda/fuelops/internal/domain"
)

// EstimatedBytesPerRecord is the flat per-document size used for the space
// saved estimate.
const EstimatedBytesPerRecord = 1024

// Stats is a point-in-time view of hot and cold volumes.
type Stats struct {
	ActiveRecords         map[domain.EntityType]int64 `json:"active_records"`
	ArchivedRecords       map[domain.EntityType]int64 `json:"archived_records"`
	LastArchivalDate      *time.Time                  `json:"last_archival_date,omitempty"`
	TotalSpaceSaved       int64                       `json:"total_space_saved"`
	SpaceSavedApproximate bool                        `json:"space_saved_approximate"`
}

type StatsReporter struct {
	registry *Registry
	jobs     domain.JobRepository
}

func NewStatsReporter(registry *Registry, jobs domain.JobRepository) *StatsReporter {
	return &StatsReporter{registry: registry, jobs: jobs}
}

// Stats counts every hot and cold store concurrently and looks up the most
// recent completed job.
func (s *StatsReporter) Stats(ctx context.Context) (*Stats, error) {
	out := &Stats{
		ActiveRecords:         make(map[domain.EntityType]int64),
		ArchivedRecords:       make(map[domain.EntityType]int64),
		SpaceSavedApproximate: true,
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for _, c := range s.registry.All() {
		g.Go(func() error {
			n, err := c.Hot.Count(gctx)
			if err != nil {
				return fmt.Errorf("count active %s: %w", c.Type, err)
			}
			mu.Lock()
			out.ActiveRecords[c.Type] = n
			mu.Unlock()
			return nil
		})
		g.Go(func() error {
			n, err := c.Cold.Count(gctx)
			if err != nil {
				return fmt.Errorf("count archived %s: %w", c.Type, err)
			}
			mu.Lock()
			out.ArchivedRecords[c.Type] = n
			mu.Unlock()
			return nil
		})
	}

	g.Go(func() error {
		job, err := s.jobs.LatestCompleted(gctx)
		if errors.Is(err, domain.ErrNotFound) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("latest completed job: %w", err)
		}
		out.LastArchivalDate = job.CompletedAt
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("archival.StatsReporter.Stats: %w", err)
	}

	for _, n := range out.ArchivedRecords {
		out.TotalSpaceSaved += n * EstimatedBytesPerRecord
	}
	return out, nil
}
