package v1_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/danielgtaylor/huma/v2/humatest"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	v1 "github.com/gosuda/fuelops/internal/api/v1"
	"github.com/gosuda/fuelops/internal/archival"
	"github.com/gosuda/fuelops/internal/domain"
)

// ---------------------------------------------------------------------------
// Mock ArchivalRunner
// ---------------------------------------------------------------------------

type mockRunner struct {
	runFunc   func(ctx context.Context, opts archival.RunOptions, initiatedBy string) (*domain.RunResult, error)
	startFunc func(ctx context.Context, opts archival.RunOptions, initiatedBy string) (uuid.UUID, <-chan *domain.RunResult, error)
}

func (m *mockRunner) Run(ctx context.Context, opts archival.RunOptions, initiatedBy string) (*domain.RunResult, error) {
	return m.runFunc(ctx, opts, initiatedBy)
}

func (m *mockRunner) Start(ctx context.Context, opts archival.RunOptions, initiatedBy string) (uuid.UUID, <-chan *domain.RunResult, error) {
	return m.startFunc(ctx, opts, initiatedBy)
}

// ---------------------------------------------------------------------------
// Mock RecordRestorer
// ---------------------------------------------------------------------------

type mockRestorer struct {
	restoreFunc func(ctx context.Context, req archival.RestoreRequest) (archival.RestoreResult, error)
}

func (m *mockRestorer) Restore(ctx context.Context, req archival.RestoreRequest) (archival.RestoreResult, error) {
	return m.restoreFunc(ctx, req)
}

// ---------------------------------------------------------------------------
// Mock StatsProvider
// ---------------------------------------------------------------------------

type mockStats struct {
	statsFunc func(ctx context.Context) (*archival.Stats, error)
}

func (m *mockStats) Stats(ctx context.Context) (*archival.Stats, error) {
	return m.statsFunc(ctx)
}

// ---------------------------------------------------------------------------
// Mock JobReader
// ---------------------------------------------------------------------------

type mockJobs struct {
	getByIDFunc    func(ctx context.Context, id uuid.UUID) (*domain.ArchiveJob, error)
	listRecentFunc func(ctx context.Context, collection domain.EntityType, limit int) ([]*domain.ArchiveJob, error)
}

func (m *mockJobs) GetByID(ctx context.Context, id uuid.UUID) (*domain.ArchiveJob, error) {
	return m.getByIDFunc(ctx, id)
}

func (m *mockJobs) ListRecent(ctx context.Context, collection domain.EntityType, limit int) ([]*domain.ArchiveJob, error) {
	return m.listRecentFunc(ctx, collection, limit)
}

// ---------------------------------------------------------------------------
// Mock ScheduleInfo
// ---------------------------------------------------------------------------

type mockSchedule struct {
	expr    string
	running bool
	next    *time.Time
}

func (m *mockSchedule) Schedule() string    { return m.expr }
func (m *mockSchedule) IsRunning() bool     { return m.running }
func (m *mockSchedule) NextRun() *time.Time { return m.next }

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type testDeps struct {
	runner   *mockRunner
	restorer *mockRestorer
	stats    *mockStats
	jobs     *mockJobs
	schedule *mockSchedule
}

func newArchivalTestAPI(t *testing.T) (humatest.TestAPI, *testDeps) {
	t.Helper()

	_, api := humatest.New(t)
	d := &testDeps{
		runner:   &mockRunner{},
		restorer: &mockRestorer{},
		stats:    &mockStats{},
		jobs:     &mockJobs{},
		schedule: &mockSchedule{},
	}

	v1.RegisterArchivalRoutes(api, v1.ArchivalDeps{
		Runner:     d.runner,
		Restorer:   d.restorer,
		Stats:      d.stats,
		Jobs:       d.jobs,
		Schedule:   d.schedule,
		RunContext: context.Background(),
	})

	return api, d
}

// parseErrorBody decodes the RFC 9457 problem detail from the response body.
func parseErrorBody(t *testing.T, raw []byte) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}
