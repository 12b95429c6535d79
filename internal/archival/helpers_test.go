package archival_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/fuelops/internal/archival"
	"github.com/gosuda/fuelops/internal/domain"
	"github.com/gosuda/fuelops/internal/store/memory"
)

var testNow = time.Date(2026, time.June, 15, 12, 0, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

// old is well past any retention period used in these tests.
var old = testNow.AddDate(-2, 0, 0)

// recent is inside every retention period used in these tests.
var recent = testNow.AddDate(0, 0, -3)

type stores struct {
	hot  *memory.HotTable
	cold *memory.ColdTable
}

type fixture struct {
	registry *archival.Registry
	stores   map[domain.EntityType]stores
	jobs     *memory.JobRepo
}

// newFixture registers every entity type backed by fresh memory tables.
func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		registry: archival.NewRegistry(),
		stores:   make(map[domain.EntityType]stores),
		jobs:     memory.NewJobRepo(),
	}
	for _, et := range domain.AllEntityTypes() {
		s := stores{hot: memory.NewHotTable(), cold: memory.NewColdTable()}
		c := archival.Collection{Type: et, Hot: s.hot, Cold: s.cold}
		if et == domain.EntityAuditLogs {
			c.DateField = domain.DateFieldTimestamp
			c.Class = archival.ClassAuditLog
		}
		require.NoError(t, f.registry.Register(c))
		f.stores[et] = s
	}
	return f
}

func (f *fixture) hot(et domain.EntityType) *memory.HotTable   { return f.stores[et].hot }
func (f *fixture) cold(et domain.EntityType) *memory.ColdTable { return f.stores[et].cold }

func (f *fixture) orchestrator(source domain.PolicySource, opts ...archival.Option) *archival.Orchestrator {
	opts = append([]archival.Option{archival.WithClock(fixedClock)}, opts...)
	return archival.NewOrchestrator(f.registry, archival.NewRetentionResolver(source), f.jobs, opts...)
}

// seed inserts n records of et stamped ts and returns their IDs.
func seed(hot *memory.HotTable, et domain.EntityType, n int, ts time.Time) []uuid.UUID {
	ids := make([]uuid.UUID, n)
	for i := range n {
		ids[i] = uuid.New()
		hot.Put(&domain.Record{
			ID:         ids[i],
			EntityType: et,
			Timestamp:  ts,
			Payload:    map[string]any{"seq": i, "entity": string(et)},
		})
	}
	return ids
}

type policyFunc func(ctx context.Context) (*domain.RetentionPolicy, error)

func (f policyFunc) RetentionPolicy(ctx context.Context) (*domain.RetentionPolicy, error) {
	return f(ctx)
}

func staticPolicy(p *domain.RetentionPolicy) policyFunc {
	return func(context.Context) (*domain.RetentionPolicy, error) { return p, nil }
}

// hotStub overrides selected HotStore methods of an embedded store.
type hotStub struct {
	domain.HotStore
	deleteFn func(ctx context.Context, ids []uuid.UUID) (int64, error)
}

func (h *hotStub) DeleteByIDs(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if h.deleteFn != nil {
		return h.deleteFn(ctx, ids)
	}
	return h.HotStore.DeleteByIDs(ctx, ids)
}

// jobsStub overrides Finish of an embedded repository.
type jobsStub struct {
	domain.JobRepository
	finishFn func(ctx context.Context, job *domain.ArchiveJob) error
}

func (j *jobsStub) Finish(ctx context.Context, job *domain.ArchiveJob) error {
	if j.finishFn != nil {
		return j.finishFn(ctx, job)
	}
	return j.JobRepository.Finish(ctx, job)
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []archival.RunEvent
}

func (p *recordingPublisher) Publish(_ context.Context, channel string, msg any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if channel == archival.EventsChannel {
		p.events = append(p.events, msg.(archival.RunEvent))
	}
	return nil
}

func (p *recordingPublisher) types() []archival.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]archival.EventType, len(p.events))
	for i, ev := range p.events {
		out[i] = ev.Type
	}
	return out
}

type notifierFunc func(ctx context.Context, runID uuid.UUID, result *domain.RunResult) error

func (f notifierFunc) NotifyRun(ctx context.Context, runID uuid.UUID, result *domain.RunResult) error {
	return f(ctx, runID, result)
}
