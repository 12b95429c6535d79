package archival_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/fuelops/internal/archival"
	"github.com/gosuda/fuelops/internal/domain"
)

func TestOrchestrator_Run(t *testing.T) {
	t.Parallel()

	t.Run("archives every collection with its own cutoff", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		for _, et := range domain.AllEntityTypes() {
			seed(f.hot(et), et, 3, old)
		}
		// 9 months old: past the 6 month default, inside the 12 month audit default.
		mid := testNow.AddDate(0, -9, 0)
		seed(f.hot(domain.EntityTripFuelRecords), domain.EntityTripFuelRecords, 2, mid)
		seed(f.hot(domain.EntityAuditLogs), domain.EntityAuditLogs, 2, mid)

		res, err := f.orchestrator(nil).Run(context.Background(), archival.RunOptions{}, "admin")

		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Empty(t, res.Errors)
		assert.Len(t, res.CollectionsArchived, 6)
		assert.Equal(t, int64(5), res.CollectionsArchived[domain.EntityTripFuelRecords].RecordsArchived)
		assert.Equal(t, int64(3), res.CollectionsArchived[domain.EntityAuditLogs].RecordsArchived)
		assert.Equal(t, int64(20), res.TotalRecordsArchived)
		assert.Equal(t, testNow.AddDate(0, -6, 0), res.CollectionsArchived[domain.EntityDeliveryOrders].CutoffDate)
		assert.Equal(t, testNow.AddDate(0, -12, 0), res.CollectionsArchived[domain.EntityAuditLogs].CutoffDate)
		assert.Len(t, f.hot(domain.EntityAuditLogs).IDs(), 2)

		jobs := f.jobs.All()
		require.Len(t, jobs, 6)
		for i, et := range domain.AllEntityTypes() {
			assert.Equal(t, et, jobs[i].CollectionName)
			assert.Equal(t, "admin", jobs[i].InitiatedBy)
			assert.Equal(t, domain.JobStatusCompleted, jobs[i].Status)
		}
	})

	t.Run("six month retention splits seven and two month old records", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		et := domain.EntityTripFuelRecords
		oldIDs := seed(f.hot(et), et, 2500, testNow.AddDate(0, -7, 0))
		recentIDs := seed(f.hot(et), et, 500, testNow.AddDate(0, -2, 0))
		cutoff := testNow.AddDate(0, -6, 0)
		onCutoff := seed(f.hot(et), et, 1, cutoff)
		justBefore := seed(f.hot(et), et, 1, cutoff.Add(-time.Second))

		res, err := f.orchestrator(nil).Run(context.Background(), archival.RunOptions{
			Collections:  []domain.EntityType{et},
			MonthsToKeep: 6,
		}, "admin")

		require.NoError(t, err)
		require.True(t, res.Success)
		cr := res.CollectionsArchived[et]
		assert.Equal(t, time.Date(2025, time.December, 15, 12, 0, 0, 0, time.UTC), cr.CutoffDate)
		assert.Equal(t, int64(2501), cr.RecordsArchived)
		assert.Equal(t, []int{1000, 1000, 501}, f.cold(et).BatchSizes())
		assert.ElementsMatch(t, append(oldIDs, justBefore...), f.cold(et).IDs())
		assert.ElementsMatch(t, append(recentIDs, onCutoff...), f.hot(et).IDs())
	})

	t.Run("disabled collection is skipped without a job record", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		seed(f.hot(domain.EntityDeliveryOrders), domain.EntityDeliveryOrders, 4, old)
		seed(f.hot(domain.EntityTripFuelRecords), domain.EntityTripFuelRecords, 4, old)
		policy := staticPolicy(&domain.RetentionPolicy{
			Collections: map[domain.EntityType]domain.CollectionPolicy{
				domain.EntityDeliveryOrders: {Enabled: domain.Flag(false)},
			},
			Global: domain.GlobalPolicy{ArchivalEnabled: domain.Flag(true)},
		})

		res, err := f.orchestrator(policy).Run(context.Background(), archival.RunOptions{}, "admin")

		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.NotContains(t, res.CollectionsArchived, domain.EntityDeliveryOrders)
		assert.Equal(t, []domain.EntityType{domain.EntityDeliveryOrders}, res.Skipped)
		assert.Len(t, f.hot(domain.EntityDeliveryOrders).IDs(), 4)
		assert.Equal(t, int64(4), res.TotalRecordsArchived)
		for _, j := range f.jobs.All() {
			assert.NotEqual(t, domain.EntityDeliveryOrders, j.CollectionName)
		}
		assert.Len(t, f.jobs.All(), 5)
	})

	t.Run("collection override changes the cutoff", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		seed(f.hot(domain.EntityVoucherSummaries), domain.EntityVoucherSummaries, 2, testNow.AddDate(0, -2, 0))
		policy := staticPolicy(&domain.RetentionPolicy{
			Collections: map[domain.EntityType]domain.CollectionPolicy{
				domain.EntityVoucherSummaries: {Enabled: domain.Flag(true), RetentionMonths: 1},
			},
			Global: domain.GlobalPolicy{ArchivalEnabled: domain.Flag(true)},
		})

		res, err := f.orchestrator(policy).Run(context.Background(), archival.RunOptions{
			Collections: []domain.EntityType{domain.EntityVoucherSummaries},
		}, "admin")

		require.NoError(t, err)
		cr := res.CollectionsArchived[domain.EntityVoucherSummaries]
		assert.Equal(t, int64(2), cr.RecordsArchived)
		assert.Equal(t, testNow.AddDate(0, -1, 0), cr.CutoffDate)
	})

	t.Run("dry run is idempotent and mutates nothing", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		for _, et := range domain.AllEntityTypes() {
			seed(f.hot(et), et, 7, old)
		}
		o := f.orchestrator(nil)

		first, err := o.Run(context.Background(), archival.RunOptions{DryRun: true}, "admin")
		require.NoError(t, err)
		second, err := o.Run(context.Background(), archival.RunOptions{DryRun: true}, "admin")
		require.NoError(t, err)

		assert.True(t, first.DryRun)
		assert.Equal(t, int64(42), first.TotalRecordsArchived)
		assert.Equal(t, first.TotalRecordsArchived, second.TotalRecordsArchived)
		for et, cr := range first.CollectionsArchived {
			assert.Equal(t, cr.RecordsArchived, second.CollectionsArchived[et].RecordsArchived)
			assert.Len(t, f.hot(et).IDs(), 7)
			assert.Empty(t, f.cold(et).IDs())
			assert.Zero(t, f.hot(et).Compactions())
		}
		assert.Empty(t, f.jobs.All())
	})

	t.Run("default policy aborts remaining collections", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		for _, et := range domain.AllEntityTypes() {
			seed(f.hot(et), et, 2, old)
		}
		f.hot(domain.EntityPurchaseVoucherEntries).FailOn("find", errors.New("cursor lost"))

		res, err := f.orchestrator(nil).Run(context.Background(), archival.RunOptions{}, "admin")

		require.NoError(t, err)
		assert.False(t, res.Success)
		require.Len(t, res.Errors, 1)
		assert.Contains(t, res.Errors[0], string(domain.EntityPurchaseVoucherEntries))
		assert.Contains(t, res.Errors[0], "cursor lost")
		assert.Equal(t, []domain.EntityType{domain.EntityTripFuelRecords}, keys(res.CollectionsArchived))
		assert.Len(t, f.hot(domain.EntityVoucherSummaries).IDs(), 2)
		assert.Len(t, f.jobs.All(), 2)
		assert.Zero(t, f.hot(domain.EntityTripFuelRecords).Compactions())
	})

	t.Run("continue on error isolates the failing collection", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		for _, et := range domain.AllEntityTypes() {
			seed(f.hot(et), et, 2, old)
		}
		f.hot(domain.EntityPurchaseVoucherEntries).FailOn("find", errors.New("cursor lost"))

		res, err := f.orchestrator(nil).Run(context.Background(), archival.RunOptions{ContinueOnError: true}, "admin")

		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Len(t, res.Errors, 1)
		assert.Len(t, res.CollectionsArchived, 5)
		assert.Equal(t, int64(10), res.TotalRecordsArchived)
		assert.Empty(t, f.hot(domain.EntityAuditLogs).IDs())
	})

	t.Run("compaction hint only for collections that lost records", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		seed(f.hot(domain.EntityYardDispenseEvents), domain.EntityYardDispenseEvents, 3, old)
		f.hot(domain.EntityAuditLogs).FailOn("compact", errors.New("vacuum refused"))
		seed(f.hot(domain.EntityAuditLogs), domain.EntityAuditLogs, 1, old)

		res, err := f.orchestrator(nil).Run(context.Background(), archival.RunOptions{}, "admin")

		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, 1, f.hot(domain.EntityYardDispenseEvents).Compactions())
		assert.Zero(t, f.hot(domain.EntityTripFuelRecords).Compactions())
		assert.Zero(t, f.hot(domain.EntityAuditLogs).Compactions())
	})

	t.Run("unknown collection fails before any work", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		seed(f.hot(domain.EntityTripFuelRecords), domain.EntityTripFuelRecords, 2, old)

		res, err := f.orchestrator(nil).Run(context.Background(), archival.RunOptions{
			Collections: []domain.EntityType{domain.EntityTripFuelRecords, "drivers"},
		}, "admin")

		require.ErrorIs(t, err, domain.ErrUnknownEntityType)
		assert.False(t, res.Success)
		assert.Len(t, res.Errors, 1)
		assert.Len(t, f.hot(domain.EntityTripFuelRecords).IDs(), 2)
		assert.Empty(t, f.jobs.All())
	})

	t.Run("second run is rejected while the lock is held", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		lock := archival.NewLocalLock()
		release, err := lock.Acquire(context.Background())
		require.NoError(t, err)
		defer release()

		res, err := f.orchestrator(nil, archival.WithRunLock(lock)).Run(context.Background(), archival.RunOptions{}, "admin")

		require.ErrorIs(t, err, domain.ErrRunInProgress)
		assert.True(t, archival.IsRunInProgress(err))
		assert.False(t, res.Success)
		assert.Empty(t, f.jobs.All())
	})

	t.Run("publishes events and notifies once", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		seed(f.hot(domain.EntityTripFuelRecords), domain.EntityTripFuelRecords, 2, old)
		pub := &recordingPublisher{}
		var notified atomic.Int32
		var notifiedTotal atomic.Int64
		notifier := notifierFunc(func(_ context.Context, _ uuid.UUID, r *domain.RunResult) error {
			notified.Add(1)
			notifiedTotal.Store(r.TotalRecordsArchived)
			return errors.New("slack down")
		})

		res, err := f.orchestrator(nil, archival.WithEventPublisher(pub), archival.WithNotifier(notifier)).
			Run(context.Background(), archival.RunOptions{Collections: []domain.EntityType{domain.EntityTripFuelRecords}}, "admin")

		require.NoError(t, err)
		assert.True(t, res.Success)
		assert.Equal(t, []archival.EventType{
			archival.EventRunStarted,
			archival.EventCollectionArchived,
			archival.EventRunCompleted,
		}, pub.types())
		assert.Equal(t, int32(1), notified.Load())
		assert.Equal(t, int64(2), notifiedTotal.Load())
	})

	t.Run("dry run is not notified", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		var notified atomic.Int32
		notifier := notifierFunc(func(context.Context, uuid.UUID, *domain.RunResult) error {
			notified.Add(1)
			return nil
		})

		_, err := f.orchestrator(nil, archival.WithNotifier(notifier)).Run(context.Background(), archival.RunOptions{DryRun: true}, "admin")

		require.NoError(t, err)
		assert.Zero(t, notified.Load())
	})

	t.Run("cancelled run stops before the next collection", func(t *testing.T) {
		t.Parallel()

		f := newFixture(t)
		seed(f.hot(domain.EntityTripFuelRecords), domain.EntityTripFuelRecords, 2, old)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		res, err := f.orchestrator(nil).Run(ctx, archival.RunOptions{}, "admin")

		require.NoError(t, err)
		assert.False(t, res.Success)
		assert.Len(t, f.hot(domain.EntityTripFuelRecords).IDs(), 2)
	})
}

func TestOrchestrator_Start(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	seed(f.hot(domain.EntityDeliveryOrders), domain.EntityDeliveryOrders, 5, old)
	o := f.orchestrator(nil)

	runID, done, err := o.Start(context.Background(), archival.RunOptions{}, "api")
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, runID)

	select {
	case res := <-done:
		require.NotNil(t, res)
		assert.True(t, res.Success)
		assert.Equal(t, int64(5), res.TotalRecordsArchived)
	case <-time.After(5 * time.Second):
		t.Fatal("run did not finish")
	}

	// the lock is released once the run is done
	_, err = o.Run(context.Background(), archival.RunOptions{DryRun: true}, "api")
	require.NoError(t, err)
}

func TestOrchestrator_StartRejectsUnknownCollection(t *testing.T) {
	t.Parallel()

	f := newFixture(t)

	_, done, err := f.orchestrator(nil).Start(context.Background(), archival.RunOptions{
		Collections: []domain.EntityType{"fuel_cards"},
	}, "api")

	require.ErrorIs(t, err, domain.ErrUnknownEntityType)
	assert.Nil(t, done)
}

func keys(m map[domain.EntityType]domain.CollectionResult) []domain.EntityType {
	out := make([]domain.EntityType, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
