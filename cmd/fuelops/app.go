package main

import (
	"context"
	"fmt"
	"math"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/fuelops/internal/archival"
	"github.com/gosuda/fuelops/internal/config"
	"github.com/gosuda/fuelops/internal/domain"
	slackmsg "github.com/gosuda/fuelops/internal/messenger/slack"
	"github.com/gosuda/fuelops/internal/notify"
	"github.com/gosuda/fuelops/internal/policy"
	"github.com/gosuda/fuelops/internal/store/postgres"
	redisstore "github.com/gosuda/fuelops/internal/store/redis"
)

// app holds the wired engine shared by every subcommand.
type app struct {
	store        *postgres.Store
	pubsub       *redisstore.PubSub // nil when Redis is disabled
	policyFile   *policy.FileSource // nil when no policy file is configured
	registry     *archival.Registry
	lock         archival.RunLock
	orchestrator *archival.Orchestrator
	restorer     *archival.Restorer
	stats        *archival.StatsReporter
}

// tableOpener returns the hot and cold stores of one entity type.
type tableOpener func(et domain.EntityType) (domain.HotStore, domain.ColdStore, error)

// buildRegistry registers every known entity type in archival order. Audit
// logs are aged by their event timestamp and use the audit retention class.
func buildRegistry(open tableOpener) (*archival.Registry, error) {
	registry := archival.NewRegistry()
	for _, et := range domain.AllEntityTypes() {
		hot, cold, err := open(et)
		if err != nil {
			return nil, fmt.Errorf("buildRegistry: %s: %w", et, err)
		}

		c := archival.Collection{
			Type:      et,
			Hot:       hot,
			Cold:      cold,
			DateField: domain.DateFieldCreatedAt,
			Class:     archival.ClassOperational,
		}
		if et == domain.EntityAuditLogs {
			c.DateField = domain.DateFieldTimestamp
			c.Class = archival.ClassAuditLog
		}
		if err := registry.Register(c); err != nil {
			return nil, fmt.Errorf("buildRegistry: %w", err)
		}
	}
	return registry, nil
}

func postgresTables(store *postgres.Store) tableOpener {
	return func(et domain.EntityType) (domain.HotStore, domain.ColdStore, error) {
		hot, err := store.Hot(et)
		if err != nil {
			return nil, nil, err
		}
		cold, err := store.Cold(et)
		if err != nil {
			return nil, nil, err
		}
		return hot, cold, nil
	}
}

// newNotifier posts run reports to Slack when a bot token is configured;
// otherwise reports are only logged.
func newNotifier(sc config.SlackConfig) *notify.Notifier {
	messengers := notify.NewRegistry()
	if sc.BotToken == "" {
		return notify.New(messengers)
	}

	slack := slackmsg.NewFromToken(sc.BotToken)
	messengers.Register(slack)
	log.Info().Str("channel", sc.Channel).Msg("slack run notifications enabled")
	return notify.New(messengers, notify.Target{Platform: slack.Platform(), ChannelID: sc.Channel})
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if cfg.Database.MaxConns > math.MaxInt32 {
		return nil, fmt.Errorf("database max_conns %d out of int32 range", cfg.Database.MaxConns)
	}

	if cfg.Database.MigrateOnStart {
		if err := postgres.Migrate(cfg.Database.DSN()); err != nil {
			return nil, err
		}
	}

	store, err := postgres.New(ctx, cfg.Database.DSN(), int32(cfg.Database.MaxConns)) //nolint:gosec // bounds checked above
	if err != nil {
		return nil, err
	}

	a := &app{store: store}

	a.registry, err = buildRegistry(postgresTables(store))
	if err != nil {
		a.close()
		return nil, err
	}

	local := archival.NewLocalLock()
	a.lock = local
	opts := []archival.Option{
		archival.WithNotifier(newNotifier(cfg.Slack)),
	}

	if cfg.Redis.Enabled {
		a.pubsub, err = redisstore.New(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			a.close()
			return nil, err
		}
		a.lock = archival.ChainLocks(local, redisstore.NewLease(a.pubsub.Client(), cfg.Archival.LockTTL))
		opts = append(opts, archival.WithEventPublisher(a.pubsub))
	}
	opts = append(opts, archival.WithRunLock(a.lock))

	var source domain.PolicySource
	if cfg.Archival.PolicyFile != "" {
		a.policyFile = policy.NewFileSource(cfg.Archival.PolicyFile)
		source = a.policyFile
	}

	a.orchestrator = archival.NewOrchestrator(a.registry, archival.NewRetentionResolver(source), store.Jobs(), opts...)
	a.restorer = archival.NewRestorer(a.registry, a.lock)
	a.stats = archival.NewStatsReporter(a.registry, store.Jobs())

	return a, nil
}

// runOptions converts the archival config into run defaults.
func runOptions(ac config.ArchivalConfig) archival.RunOptions {
	return archival.RunOptions{
		MonthsToKeep:         ac.MonthsToKeep,
		AuditLogMonthsToKeep: ac.AuditLogMonthsToKeep,
		BatchSize:            ac.BatchSize,
		ContinueOnError:      ac.ContinueOnError,
	}
}

func (a *app) close() {
	if a.pubsub != nil {
		if err := a.pubsub.Close(); err != nil {
			log.Warn().Err(err).Msg("close redis")
		}
	}
	a.store.Close()
}
