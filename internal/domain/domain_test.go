package domain_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/fuelops/internal/domain"
)

// ---------------------------------------------------------------------------
// 1. JobStatus.ValidTransition: full 3x3 state-machine matrix.
// ---------------------------------------------------------------------------

func TestJobStatus_ValidTransition(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from domain.JobStatus
		to   domain.JobStatus
		want bool
	}{
		{domain.JobStatusInProgress, domain.JobStatusCompleted, true},
		{domain.JobStatusInProgress, domain.JobStatusFailed, true},
		{domain.JobStatusInProgress, domain.JobStatusInProgress, false},

		// Terminal states never move, not even back to in_progress.
		{domain.JobStatusCompleted, domain.JobStatusInProgress, false},
		{domain.JobStatusCompleted, domain.JobStatusFailed, false},
		{domain.JobStatusCompleted, domain.JobStatusCompleted, false},
		{domain.JobStatusFailed, domain.JobStatusInProgress, false},
		{domain.JobStatusFailed, domain.JobStatusCompleted, false},
		{domain.JobStatusFailed, domain.JobStatusFailed, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, tt.from.ValidTransition(tt.to))
		})
	}
}

func TestJobStatus_ValidTransition_UnknownStatus(t *testing.T) {
	t.Parallel()

	unknown := domain.JobStatus("paused")
	assert.False(t, unknown.ValidTransition(domain.JobStatusCompleted))
	assert.False(t, domain.JobStatusInProgress.ValidTransition(unknown))
}

// ---------------------------------------------------------------------------
// 2. Record <-> ArchivedRecord.
// ---------------------------------------------------------------------------

func TestRecord_ToArchived_RoundTrip(t *testing.T) {
	t.Parallel()

	created := time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)
	archivedAt := time.Date(2026, 10, 1, 2, 0, 0, 0, time.UTC)
	rec := &domain.Record{
		ID:         uuid.MustParse("550e8400-e29b-41d4-a716-446655440000"),
		EntityType: domain.EntityTripFuelRecords,
		Timestamp:  created,
		Payload:    map[string]any{"truck": "T-104", "litres": 412.5},
	}

	archived := rec.ToArchived(archivedAt, "older than 6 months")

	assert.Equal(t, rec.ID, archived.OriginalID)
	assert.Equal(t, archivedAt, archived.ArchivedAt)
	assert.Equal(t, "older than 6 months", archived.ArchivedReason)
	assert.Equal(t, rec.Payload, archived.Payload)

	restored := archived.Restored()
	assert.Equal(t, rec, restored)
}

// ---------------------------------------------------------------------------
// 3. ConflictPolicy.
// ---------------------------------------------------------------------------

func TestConflictPolicy_Valid(t *testing.T) {
	t.Parallel()

	for _, p := range []domain.ConflictPolicy{domain.ConflictFail, domain.ConflictSkip, domain.ConflictOverwrite} {
		assert.True(t, p.Valid(), "policy %q should be valid", p)
	}
	assert.False(t, domain.ConflictPolicy("merge").Valid())
	assert.False(t, domain.ConflictPolicy("").Valid())
}

// ---------------------------------------------------------------------------
// 4. Entity types and run results.
// ---------------------------------------------------------------------------

func TestAllEntityTypes_OrderAndUniqueness(t *testing.T) {
	t.Parallel()

	types := domain.AllEntityTypes()
	require.Len(t, types, 6)
	assert.Equal(t, domain.EntityTripFuelRecords, types[0])
	assert.Equal(t, domain.EntityAuditLogs, types[len(types)-1])

	seen := make(map[domain.EntityType]bool)
	for _, et := range types {
		assert.False(t, seen[et], "duplicate entity type %q", et)
		seen[et] = true
	}
}

func TestRunResult_Fail(t *testing.T) {
	t.Parallel()

	res := domain.NewRunResult(false)
	require.True(t, res.Success)
	require.NotNil(t, res.CollectionsArchived)
	require.Empty(t, res.Errors)

	res.Fail("delivery_orders: store unavailable")

	assert.False(t, res.Success)
	assert.Equal(t, []string{"delivery_orders: store unavailable"}, res.Errors)
}

// ---------------------------------------------------------------------------
// 5. Sentinel errors: identity and wrapping.
// ---------------------------------------------------------------------------

func TestSentinelErrors_Distinct(t *testing.T) {
	t.Parallel()

	sentinels := []error{
		domain.ErrNotFound,
		domain.ErrConflict,
		domain.ErrUnknownEntityType,
		domain.ErrRunInProgress,
		domain.ErrInvalidTransition,
	}

	for i, a := range sentinels {
		for j, b := range sentinels {
			if i == j {
				continue
			}
			assert.NotErrorIs(t, a, b)
		}
	}
}

func TestSentinelErrors_Wrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("jobRepo.GetByID: %w", domain.ErrNotFound)
	require.ErrorIs(t, wrapped, domain.ErrNotFound)
	assert.NotErrorIs(t, wrapped, domain.ErrConflict)
}
