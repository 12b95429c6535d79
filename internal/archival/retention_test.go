package archival_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/fuelops/internal/archival"
	"github.com/gosuda/fuelops/internal/domain"
	"github.com/gosuda/fuelops/internal/policy"
)

func TestRetentionResolver_Resolve(t *testing.T) {
	t.Parallel()

	const et = domain.EntityPurchaseVoucherEntries

	tests := []struct {
		name        string
		policy      *domain.RetentionPolicy
		err         error
		wantMonths  int
		wantEnabled bool
	}{
		{
			name: "collection entry wins over global",
			policy: &domain.RetentionPolicy{
				Collections: map[domain.EntityType]domain.CollectionPolicy{et: {Enabled: domain.Flag(true), RetentionMonths: 3}},
				Global:      domain.GlobalPolicy{ArchivalEnabled: domain.Flag(true), ArchivalMonths: 9},
			},
			wantMonths:  3,
			wantEnabled: true,
		},
		{
			name: "disabled collection entry",
			policy: &domain.RetentionPolicy{
				Collections: map[domain.EntityType]domain.CollectionPolicy{et: {Enabled: domain.Flag(false), RetentionMonths: 3}},
				Global:      domain.GlobalPolicy{ArchivalEnabled: domain.Flag(true)},
			},
			wantMonths:  0,
			wantEnabled: false,
		},
		{
			name: "collection entry without months uses default",
			policy: &domain.RetentionPolicy{
				Collections: map[domain.EntityType]domain.CollectionPolicy{et: {Enabled: domain.Flag(true)}},
				Global:      domain.GlobalPolicy{ArchivalEnabled: domain.Flag(true), ArchivalMonths: 9},
			},
			wantMonths:  6,
			wantEnabled: true,
		},
		{
			name:        "global months apply without collection entry",
			policy:      &domain.RetentionPolicy{Global: domain.GlobalPolicy{ArchivalEnabled: domain.Flag(true), ArchivalMonths: 9}},
			wantMonths:  9,
			wantEnabled: true,
		},
		{
			name:        "global disabled",
			policy:      &domain.RetentionPolicy{Global: domain.GlobalPolicy{ArchivalEnabled: domain.Flag(false), ArchivalMonths: 9}},
			wantMonths:  0,
			wantEnabled: false,
		},
		{
			name:        "global enabled without months uses default",
			policy:      &domain.RetentionPolicy{Global: domain.GlobalPolicy{ArchivalEnabled: domain.Flag(true)}},
			wantMonths:  6,
			wantEnabled: true,
		},
		{
			name:        "read error falls back to enabled default",
			err:         errors.New("settings store timeout"),
			wantMonths:  6,
			wantEnabled: true,
		},
		{
			name:        "no policy document falls back to enabled default",
			wantMonths:  6,
			wantEnabled: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			src := policyFunc(func(context.Context) (*domain.RetentionPolicy, error) { return tt.policy, tt.err })

			months, enabled := archival.NewRetentionResolver(src).Resolve(context.Background(), et, 6)

			assert.Equal(t, tt.wantMonths, months)
			assert.Equal(t, tt.wantEnabled, enabled)
		})
	}
}

func TestRetentionResolver_NilSource(t *testing.T) {
	t.Parallel()

	months, enabled := archival.NewRetentionResolver(nil).Resolve(context.Background(), domain.EntityAuditLogs, 12)

	assert.Equal(t, 12, months)
	assert.True(t, enabled)
}

func TestRetentionResolver_PolicyFileDefaults(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		doc         string
		wantMonths  int
		wantEnabled bool
	}{
		{name: "empty file", doc: "", wantMonths: 6, wantEnabled: true},
		{
			name:        "collection override only",
			doc:         "collections:\n  audit_logs:\n    retention_months: 24\n",
			wantMonths:  6,
			wantEnabled: true,
		},
		{
			name:        "months only entry",
			doc:         "collections:\n  trip_fuel_records:\n    retention_months: 3\n",
			wantMonths:  3,
			wantEnabled: true,
		},
		{
			name:        "global months without flag",
			doc:         "global:\n  archival_months: 9\n",
			wantMonths:  9,
			wantEnabled: true,
		},
		{
			name:        "explicit false disables",
			doc:         "collections:\n  trip_fuel_records:\n    enabled: false\n",
			wantMonths:  0,
			wantEnabled: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := policy.Parse([]byte(tt.doc))
			require.NoError(t, err)

			months, enabled := archival.NewRetentionResolver(policy.NewStaticSource(p)).
				Resolve(context.Background(), domain.EntityTripFuelRecords, 6)

			assert.Equal(t, tt.wantMonths, months)
			assert.Equal(t, tt.wantEnabled, enabled)
		})
	}
}
