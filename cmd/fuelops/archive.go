package main

import (
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gosuda/fuelops/internal/domain"
)

const cliInitiator = "cli"

var archiveFlags struct {
	dryRun          bool
	collections     []string
	months          int
	auditMonths     int
	batchSize       int
	continueOnError bool
}

var errRunFailed = errors.New("archival run failed")

var archiveCmd = &cobra.Command{
	Use:   "archive",
	Short: "Run one archival pass now",
	Long: `Run one archival pass in the foreground and print the result as JSON.
Flags left unset fall back to the FUELOPS_ARCHIVAL_* settings.

Examples:
  # Count what would be archived
  fuelops archive --dry-run

  # Archive two collections with 3 months of retention
  fuelops archive --collections trip_fuel_records,delivery_orders --months 3`,
	RunE: runArchive,
}

func init() {
	rootCmd.AddCommand(archiveCmd)

	archiveCmd.Flags().BoolVar(&archiveFlags.dryRun, "dry-run", false, "count eligible records without moving them")
	archiveCmd.Flags().StringSliceVar(&archiveFlags.collections, "collections", nil, "collections to archive (default all)")
	archiveCmd.Flags().IntVar(&archiveFlags.months, "months", 0, "retention in months for operational collections")
	archiveCmd.Flags().IntVar(&archiveFlags.auditMonths, "audit-months", 0, "retention in months for audit logs")
	archiveCmd.Flags().IntVar(&archiveFlags.batchSize, "batch-size", 0, "records per batch")
	archiveCmd.Flags().BoolVar(&archiveFlags.continueOnError, "continue-on-error", false, "keep going after a collection fails")
}

func runArchive(cmd *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	opts := runOptions(cfg.Archival)
	opts.DryRun = archiveFlags.dryRun
	if archiveFlags.months > 0 {
		opts.MonthsToKeep = archiveFlags.months
	}
	if archiveFlags.auditMonths > 0 {
		opts.AuditLogMonthsToKeep = archiveFlags.auditMonths
	}
	if archiveFlags.batchSize > 0 {
		opts.BatchSize = archiveFlags.batchSize
	}
	if cmd.Flags().Changed("continue-on-error") {
		opts.ContinueOnError = archiveFlags.continueOnError
	}
	for _, c := range archiveFlags.collections {
		opts.Collections = append(opts.Collections, domain.EntityType(c))
	}

	result, runErr := a.orchestrator.Run(ctx, opts, cliInitiator)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if !result.Success {
		return errRunFailed
	}
	return nil
}
