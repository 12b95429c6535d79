package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gosuda/fuelops/internal/archival"
	"github.com/gosuda/fuelops/internal/domain"
)

var restoreFlags struct {
	collection string
	from       string
	to         string
	onConflict string
	batchSize  int
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Move archived records back into the live tables",
	Long: `Restore archived records of one collection, optionally limited to the
records archived between --from and --to (inclusive). Dates are RFC 3339
timestamps or YYYY-MM-DD; a bare --to date covers the whole day.

Examples:
  # Restore everything archived in January
  fuelops restore --collection audit_logs --from 2026-01-01 --to 2026-01-31

  # Keep live documents that share an identity with archived ones
  fuelops restore --collection delivery_orders --on-conflict skip`,
	RunE: runRestore,
}

func init() {
	rootCmd.AddCommand(restoreCmd)

	restoreCmd.Flags().StringVar(&restoreFlags.collection, "collection", "", "collection to restore (required)")
	restoreCmd.Flags().StringVar(&restoreFlags.from, "from", "", "earliest archive time")
	restoreCmd.Flags().StringVar(&restoreFlags.to, "to", "", "latest archive time")
	restoreCmd.Flags().StringVar(&restoreFlags.onConflict, "on-conflict", string(domain.ConflictFail), "fail, skip or overwrite")
	restoreCmd.Flags().IntVar(&restoreFlags.batchSize, "batch-size", 0, "records per batch")
	_ = restoreCmd.MarkFlagRequired("collection")
}

// parseBound parses a --from/--to value. A date without a time expands to the
// start of the day, or to its last instant when endOfDay is set.
func parseBound(v string, endOfDay bool) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: want RFC 3339 or YYYY-MM-DD", v)
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
	}
	return &t, nil
}

func runRestore(cmd *cobra.Command, _ []string) error {
	from, err := parseBound(restoreFlags.from, false)
	if err != nil {
		return fmt.Errorf("--from: %w", err)
	}
	to, err := parseBound(restoreFlags.to, true)
	if err != nil {
		return fmt.Errorf("--to: %w", err)
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.restorer.Restore(ctx, archival.RestoreRequest{
		EntityType: domain.EntityType(restoreFlags.collection),
		StartDate:  from,
		EndDate:    to,
		OnConflict: domain.ConflictPolicy(restoreFlags.onConflict),
		BatchSize:  restoreFlags.batchSize,
	})
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
