// Package memory holds in-process twins of the Postgres hot, cold and job
// stores. They implement the same domain interfaces and are used by tests and
// by local dry runs without a database.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/gosuda/fuelops/internal/domain"
)

// HotTable is an in-memory domain.HotStore.
type HotTable struct {
	mu          sync.RWMutex
	records     map[uuid.UUID]*domain.Record
	failures    map[string]error
	compactions int
}

func NewHotTable() *HotTable {
	return &HotTable{
		records:  make(map[uuid.UUID]*domain.Record),
		failures: make(map[string]error),
	}
}

// Put stores records as-is, replacing any with the same ID.
func (t *HotTable) Put(records ...*domain.Record) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range records {
		cp := *r
		t.records[r.ID] = &cp
	}
}

// Get returns a copy of the record with the given ID.
func (t *HotTable) Get(id uuid.UUID) (*domain.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.records[id]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

// IDs returns every stored identity in ascending order.
func (t *HotTable) IDs() []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// FailOn makes every subsequent call of op ("count", "find", "delete",
// "restore", "compact") return err. A nil err clears the failure.
func (t *HotTable) FailOn(op string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		delete(t.failures, op)
		return
	}
	t.failures[op] = err
}

// Compactions reports how many compaction hints were received.
func (t *HotTable) Compactions() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.compactions
}

func (t *HotTable) CountEligible(_ context.Context, _ string, cutoff time.Time) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if err := t.failures["count"]; err != nil {
		return 0, fmt.Errorf("memory.HotTable.CountEligible: %w", err)
	}

	var n int64
	for _, r := range t.records {
		if eligible(r, cutoff) {
			n++
		}
	}
	return n, nil
}

func (t *HotTable) FindEligible(_ context.Context, q domain.EligibleQuery) ([]*domain.Record, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if err := t.failures["find"]; err != nil {
		return nil, fmt.Errorf("memory.HotTable.FindEligible: %w", err)
	}

	var out []*domain.Record
	for _, r := range t.records {
		if !eligible(r, q.Cutoff) || !after(r.ID, q.After) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].ID, out[j].ID) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (t *HotTable) DeleteByIDs(_ context.Context, ids []uuid.UUID) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.failures["delete"]; err != nil {
		return 0, fmt.Errorf("memory.HotTable.DeleteByIDs: %w", err)
	}

	var n int64
	for _, id := range ids {
		if _, ok := t.records[id]; ok {
			delete(t.records, id)
			n++
		}
	}
	return n, nil
}

func (t *HotTable) Restore(_ context.Context, records []*domain.Record, onConflict domain.ConflictPolicy) ([]uuid.UUID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.failures["restore"]; err != nil {
		return nil, fmt.Errorf("memory.HotTable.Restore: %w", err)
	}

	if onConflict == domain.ConflictFail {
		for _, r := range records {
			if _, exists := t.records[r.ID]; exists {
				return nil, fmt.Errorf("memory.HotTable.Restore: id %s: %w", r.ID, domain.ErrConflict)
			}
		}
	}

	written := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		if _, exists := t.records[r.ID]; exists && onConflict == domain.ConflictSkip {
			continue
		}
		cp := *r
		t.records[r.ID] = &cp
		written = append(written, r.ID)
	}
	return written, nil
}

func (t *HotTable) Count(_ context.Context) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if err := t.failures["count"]; err != nil {
		return 0, fmt.Errorf("memory.HotTable.Count: %w", err)
	}
	return int64(len(t.records)), nil
}

func (t *HotTable) Compact(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.failures["compact"]; err != nil {
		return fmt.Errorf("memory.HotTable.Compact: %w", err)
	}
	t.compactions++
	return nil
}

// ColdTable is an in-memory domain.ColdStore. OriginalID is unique.
type ColdTable struct {
	mu         sync.RWMutex
	records    map[uuid.UUID]*domain.ArchivedRecord
	failures   map[string]error
	rejectFunc func(*domain.ArchivedRecord) error
	batches    []int
}

func NewColdTable() *ColdTable {
	return &ColdTable{
		records:  make(map[uuid.UUID]*domain.ArchivedRecord),
		failures: make(map[string]error),
	}
}

// Put stores archived records as-is.
func (t *ColdTable) Put(records ...*domain.ArchivedRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range records {
		cp := *r
		t.records[r.OriginalID] = &cp
	}
}

func (t *ColdTable) Get(originalID uuid.UUID) (*domain.ArchivedRecord, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	r, ok := t.records[originalID]
	if !ok {
		return nil, false
	}
	cp := *r
	return &cp, true
}

func (t *ColdTable) IDs() []uuid.UUID {
	t.mu.RLock()
	defer t.mu.RUnlock()

	ids := make([]uuid.UUID, 0, len(t.records))
	for id := range t.records {
		ids = append(ids, id)
	}
	sortIDs(ids)
	return ids
}

// RejectWith installs a per-document insert check. A non-nil error from fn
// rejects that document only; the rest of the batch is still inserted.
func (t *ColdTable) RejectWith(fn func(*domain.ArchivedRecord) error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.rejectFunc = fn
}

// FailOn makes every subsequent call of op ("insert", "find", "delete",
// "count") return err. A nil err clears the failure.
func (t *ColdTable) FailOn(op string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err == nil {
		delete(t.failures, op)
		return
	}
	t.failures[op] = err
}

// BatchSizes reports the size of every InsertBatch call, in order.
func (t *ColdTable) BatchSizes() []int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]int(nil), t.batches...)
}

func (t *ColdTable) InsertBatch(_ context.Context, records []*domain.ArchivedRecord) (domain.InsertResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.failures["insert"]; err != nil {
		return domain.InsertResult{}, fmt.Errorf("memory.ColdTable.InsertBatch: %w", err)
	}
	t.batches = append(t.batches, len(records))

	res := domain.InsertResult{
		Inserted: make([]uuid.UUID, 0, len(records)),
		Failed:   make(map[uuid.UUID]error),
	}
	for _, r := range records {
		if t.rejectFunc != nil {
			if err := t.rejectFunc(r); err != nil {
				res.Failed[r.OriginalID] = err
				continue
			}
		}
		if _, exists := t.records[r.OriginalID]; exists {
			res.Failed[r.OriginalID] = domain.ErrConflict
			continue
		}
		cp := *r
		t.records[r.OriginalID] = &cp
		res.Inserted = append(res.Inserted, r.OriginalID)
	}
	return res, nil
}

func (t *ColdTable) FindArchived(_ context.Context, q domain.ArchivedQuery) ([]*domain.ArchivedRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if err := t.failures["find"]; err != nil {
		return nil, fmt.Errorf("memory.ColdTable.FindArchived: %w", err)
	}

	var out []*domain.ArchivedRecord
	for _, r := range t.records {
		if !after(r.OriginalID, q.After) {
			continue
		}
		if q.ArchivedFrom != nil && r.ArchivedAt.Before(*q.ArchivedFrom) {
			continue
		}
		if q.ArchivedTo != nil && r.ArchivedAt.After(*q.ArchivedTo) {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i].OriginalID, out[j].OriginalID) })
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (t *ColdTable) FindByOriginalIDs(_ context.Context, ids []uuid.UUID) ([]*domain.ArchivedRecord, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if err := t.failures["find"]; err != nil {
		return nil, fmt.Errorf("memory.ColdTable.FindByOriginalIDs: %w", err)
	}

	out := make([]*domain.ArchivedRecord, 0, len(ids))
	for _, id := range ids {
		if r, ok := t.records[id]; ok {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (t *ColdTable) DeleteByOriginalIDs(_ context.Context, ids []uuid.UUID) (int64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.failures["delete"]; err != nil {
		return 0, fmt.Errorf("memory.ColdTable.DeleteByOriginalIDs: %w", err)
	}

	var n int64
	for _, id := range ids {
		if _, ok := t.records[id]; ok {
			delete(t.records, id)
			n++
		}
	}
	return n, nil
}

func (t *ColdTable) Count(_ context.Context) (int64, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	if err := t.failures["count"]; err != nil {
		return 0, fmt.Errorf("memory.ColdTable.Count: %w", err)
	}
	return int64(len(t.records)), nil
}

func eligible(r *domain.Record, cutoff time.Time) bool {
	return !r.IsDeleted && r.Timestamp.Before(cutoff)
}

// after reports whether id sorts strictly after cursor; uuid.Nil admits everything.
func after(id, cursor uuid.UUID) bool {
	if cursor == uuid.Nil {
		return true
	}
	return less(cursor, id)
}

// less orders identities bytewise, matching Postgres uuid ordering.
func less(a, b uuid.UUID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return less(ids[i], ids[j]) })
}
