package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/gosuda/fuelops/internal/domain"
)

// JobRepo is an in-memory domain.JobRepository.
type JobRepo struct {
	mu      sync.RWMutex
	jobs    map[uuid.UUID]*domain.ArchiveJob
	order   []uuid.UUID
	failErr error
}

func NewJobRepo() *JobRepo {
	return &JobRepo{jobs: make(map[uuid.UUID]*domain.ArchiveJob)}
}

// FailWith makes every subsequent call return err. A nil err clears it.
func (r *JobRepo) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failErr = err
}

func (r *JobRepo) Create(_ context.Context, job *domain.ArchiveJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failErr != nil {
		return fmt.Errorf("memory.JobRepo.Create: %w", r.failErr)
	}
	if _, exists := r.jobs[job.ID]; exists {
		return fmt.Errorf("memory.JobRepo.Create: %w", domain.ErrConflict)
	}
	cp := *job
	r.jobs[job.ID] = &cp
	r.order = append(r.order, job.ID)
	return nil
}

func (r *JobRepo) Finish(_ context.Context, job *domain.ArchiveJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.failErr != nil {
		return fmt.Errorf("memory.JobRepo.Finish: %w", r.failErr)
	}
	stored, ok := r.jobs[job.ID]
	if !ok {
		return fmt.Errorf("memory.JobRepo.Finish: %w", domain.ErrNotFound)
	}
	if !stored.Status.ValidTransition(job.Status) {
		return fmt.Errorf("memory.JobRepo.Finish: %s->%s: %w", stored.Status, job.Status, domain.ErrInvalidTransition)
	}
	cp := *job
	r.jobs[job.ID] = &cp
	return nil
}

func (r *JobRepo) GetByID(_ context.Context, id uuid.UUID) (*domain.ArchiveJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.failErr != nil {
		return nil, fmt.Errorf("memory.JobRepo.GetByID: %w", r.failErr)
	}
	j, ok := r.jobs[id]
	if !ok {
		return nil, fmt.Errorf("memory.JobRepo.GetByID: %w", domain.ErrNotFound)
	}
	cp := *j
	return &cp, nil
}

func (r *JobRepo) LatestCompleted(_ context.Context) (*domain.ArchiveJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.failErr != nil {
		return nil, fmt.Errorf("memory.JobRepo.LatestCompleted: %w", r.failErr)
	}

	var latest *domain.ArchiveJob
	for _, j := range r.jobs {
		if j.Status != domain.JobStatusCompleted || j.CompletedAt == nil {
			continue
		}
		if latest == nil || j.CompletedAt.After(*latest.CompletedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, fmt.Errorf("memory.JobRepo.LatestCompleted: %w", domain.ErrNotFound)
	}
	cp := *latest
	return &cp, nil
}

func (r *JobRepo) ListRecent(_ context.Context, collection domain.EntityType, limit int) ([]*domain.ArchiveJob, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.failErr != nil {
		return nil, fmt.Errorf("memory.JobRepo.ListRecent: %w", r.failErr)
	}

	out := make([]*domain.ArchiveJob, 0, len(r.order))
	for _, id := range r.order {
		j := r.jobs[id]
		if collection != "" && j.CollectionName != collection {
			continue
		}
		cp := *j
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, k int) bool { return out[i].StartedAt.After(out[k].StartedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// All returns every job in creation order.
func (r *JobRepo) All() []*domain.ArchiveJob {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.ArchiveJob, 0, len(r.order))
	for _, id := range r.order {
		cp := *r.jobs[id]
		out = append(out, &cp)
	}
	return out
}
