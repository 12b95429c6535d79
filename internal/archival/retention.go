package archival

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/gosuda/fuelops/internal/domain"
)

// RetentionResolver turns the retention policy into an effective period for
// one entity type. Precedence: per-type entry, then global entry, then the
// caller's default.
type RetentionResolver struct {
	source domain.PolicySource
	logger zerolog.Logger
}

// NewRetentionResolver creates a resolver. A nil source always yields the
// caller's default.
func NewRetentionResolver(source domain.PolicySource) *RetentionResolver {
	return &RetentionResolver{
		source: source,
		logger: log.With().Str("component", "archival.retention").Logger(),
	}
}

// Resolve returns the retention period in months and whether archival is
// enabled for et. A policy read failure falls back to (defaultMonths, true):
// a configuration outage must not switch archival off.
func (r *RetentionResolver) Resolve(ctx context.Context, et domain.EntityType, defaultMonths int) (int, bool) {
	if r.source == nil {
		return defaultMonths, true
	}

	policy, err := r.source.RetentionPolicy(ctx)
	if err != nil {
		r.logger.Warn().Err(err).
			Str("collection", string(et)).
			Int("default_months", defaultMonths).
			Msg("retention policy unavailable, using default")
		return defaultMonths, true
	}
	if policy == nil {
		return defaultMonths, true
	}

	if cp, ok := policy.Collections[et]; ok {
		if !cp.IsEnabled() {
			return 0, false
		}
		if cp.RetentionMonths > 0 {
			return cp.RetentionMonths, true
		}
		return defaultMonths, true
	}

	if !policy.Global.IsEnabled() {
		return 0, false
	}
	if policy.Global.ArchivalMonths > 0 {
		return policy.Global.ArchivalMonths, true
	}
	return defaultMonths, true
}
